// Package avatar renders the fallback avatar shown for users without a photo.
package avatar

import (
	"fmt"
	"hash/fnv"
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultSize = 64
	MaxSize     = 512
)

var palette = []string{
	"#E57373", "#F06292", "#BA68C8", "#7986CB", "#4FC3F7",
	"#4DB6AC", "#81C784", "#FFB74D", "#A1887F", "#90A4AE",
}

var upper = cases.Upper(language.Spanish)

// Initials returns up to two initials from name: first letters of the first
// and last words. An empty name yields "?".
func Initials(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	switch len(words) {
	case 0:
		return "?"
	case 1:
		return upper.String(firstRune(words[0]))
	default:
		return upper.String(firstRune(words[0]) + firstRune(words[len(words)-1]))
	}
}

// Color picks a stable background colour for name.
func Color(name string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return palette[h.Sum32()%uint32(len(palette))]
}

// SVG renders the avatar as a square SVG of the given pixel size.
func SVG(name string, size int) string {
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%[1]d" height="%[1]d" viewBox="0 0 %[1]d %[1]d">`+
		`<rect width="100%%" height="100%%" rx="%[2]d" fill="%[3]s"/>`+
		`<text x="50%%" y="50%%" dy=".35em" text-anchor="middle" font-family="sans-serif" font-size="%[4]d" fill="#fff">%[5]s</text>`+
		`</svg>`,
		size, size/2, Color(name), size*2/5, html.EscapeString(Initials(name)))
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
