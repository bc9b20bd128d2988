package mapview

import (
	"math"

	"github.com/RichardoC/compi/internal/models"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Bounds struct {
	SouthWest LatLng `json:"southWest"`
	NorthEast LatLng `json:"northEast"`
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p LatLng) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

// Pad grows the bounds on every side by ratio times its span.
func (b Bounds) Pad(ratio float64) Bounds {
	dLat := math.Abs(b.NorthEast.Lat-b.SouthWest.Lat) * ratio
	dLng := math.Abs(b.NorthEast.Lng-b.SouthWest.Lng) * ratio
	return Bounds{
		SouthWest: LatLng{Lat: clampLat(b.SouthWest.Lat - dLat), Lng: b.SouthWest.Lng - dLng},
		NorthEast: LatLng{Lat: clampLat(b.NorthEast.Lat + dLat), Lng: b.NorthEast.Lng + dLng},
	}
}

// Viewport is what the client should show: either Bounds to fit, or a
// Center with a Zoom.
type Viewport struct {
	Bounds *Bounds `json:"bounds,omitempty"`
	Center *LatLng `json:"center,omitempty"`
	Zoom   int     `json:"zoom,omitempty"`
}

// FitViewport returns the padded bounds of the placeable markers, or the
// fallback center and zoom when there are none.
func FitViewport(markers []models.Marker, fallback LatLng, zoom int, padding float64) Viewport {
	var (
		b     Bounds
		found bool
	)
	for _, m := range markers {
		if !m.HasCoordinates() {
			continue
		}
		p := LatLng{Lat: *m.Lat, Lng: *m.Lng}
		if !found {
			b = Bounds{SouthWest: p, NorthEast: p}
			found = true
			continue
		}
		b.SouthWest.Lat = math.Min(b.SouthWest.Lat, p.Lat)
		b.SouthWest.Lng = math.Min(b.SouthWest.Lng, p.Lng)
		b.NorthEast.Lat = math.Max(b.NorthEast.Lat, p.Lat)
		b.NorthEast.Lng = math.Max(b.NorthEast.Lng, p.Lng)
	}
	if !found {
		center := fallback
		return Viewport{Center: &center, Zoom: zoom}
	}
	padded := b.Pad(padding)
	return Viewport{Bounds: &padded}
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
