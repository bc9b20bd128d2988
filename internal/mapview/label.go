package mapview

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Spanish)

// PriceLabel formats a monthly price the way the map popups show it.
func PriceLabel(price *float64) string {
	if price == nil {
		return ""
	}
	return printer.Sprintf("%d €/mes", int64(math.Round(*price)))
}
