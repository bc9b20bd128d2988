package models

// Listing is a rentable property as stored by the hosted database.
type Listing struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Price  float64  `json:"price"` // monthly, EUR
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
	Images []string `json:"images"`
}

// Marker is the map projection of a Listing.
type Marker struct {
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
	Price *float64 `json:"price,omitempty"`
	Title string   `json:"title,omitempty"`
	Label string   `json:"label,omitempty"`
}

// Marker projects the listing onto the map. Zero prices are treated as unknown.
func (l Listing) Marker() Marker {
	m := Marker{Lat: l.Lat, Lng: l.Lng, Title: l.Title}
	if l.Price > 0 {
		price := l.Price
		m.Price = &price
	}
	return m
}

// HasCoordinates reports whether both latitude and longitude are present.
func (m Marker) HasCoordinates() bool {
	return m.Lat != nil && m.Lng != nil
}

func Markers(listings []Listing) []Marker {
	markers := make([]Marker, 0, len(listings))
	for _, l := range listings {
		markers = append(markers, l.Marker())
	}
	return markers
}
