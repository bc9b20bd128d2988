package mapview

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RichardoC/compi/internal/models"
)

var ErrDetached = errors.New("map view is detached")

type State int

const (
	Attached State = iota
	Detached
)

func (s State) String() string {
	switch s {
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// Options configure new views.
type Options struct {
	Center  LatLng
	Zoom    int
	Padding float64
	// OnDetach runs when a view is torn down. Its errors and panics are
	// logged and otherwise ignored.
	OnDetach func(id string) error
}

// DefaultOptions centers on Granada.
func DefaultOptions() Options {
	return Options{
		Center:  LatLng{Lat: 37.1773, Lng: -3.5986},
		Zoom:    13,
		Padding: 0.2,
	}
}

// Diff lists the marker changes applied by a sync.
type Diff struct {
	Added   []models.Marker `json:"added"`
	Removed []models.Marker `json:"removed"`
	Updated []models.Marker `json:"updated"`
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// markerID identifies a marker by its coordinates; n tells apart markers
// sharing the same point.
type markerID struct {
	lat, lng float64
	n        int
}

type View struct {
	mu      sync.Mutex
	id      string
	opts    Options
	state   State
	key     string
	markers map[markerID]models.Marker
	order   []markerID
	touched time.Time
}

func newView(id string, opts Options, now time.Time) *View {
	return &View{
		id:      id,
		opts:    opts,
		markers: make(map[markerID]models.Marker),
		touched: now,
	}
}

func (v *View) ID() string { return v.id }

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Key is the derived key of the markers currently placed.
func (v *View) Key() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.key
}

// Markers returns the placed markers in placement order.
func (v *View) Markers() []models.Marker {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Marker, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.markers[id])
	}
	return out
}

// Viewport fits the placed markers or falls back to the configured center.
func (v *View) Viewport() Viewport {
	return FitViewport(v.Markers(), v.opts.Center, v.opts.Zoom, v.opts.Padding)
}

// Sync brings the placed markers in line with input. Markers without both
// coordinates are skipped. When the derived key is unchanged the view is left
// alone and the diff is empty.
func (v *View) Sync(input []models.Marker, now time.Time) (Diff, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == Detached {
		return Diff{}, ErrDetached
	}
	v.touched = now

	placeable := make([]models.Marker, 0, len(input))
	for _, m := range input {
		if !m.HasCoordinates() {
			continue
		}
		m.Label = PriceLabel(m.Price)
		placeable = append(placeable, m)
	}

	key := MarkerKey(placeable)
	if key == v.key {
		return Diff{}, nil
	}

	next := make(map[markerID]models.Marker, len(placeable))
	order := make([]markerID, 0, len(placeable))
	seen := make(map[LatLng]int)
	for _, m := range placeable {
		p := LatLng{Lat: *m.Lat, Lng: *m.Lng}
		id := markerID{lat: p.Lat, lng: p.Lng, n: seen[p]}
		seen[p]++
		next[id] = m
		order = append(order, id)
	}

	var diff Diff
	for _, id := range order {
		m := next[id]
		old, ok := v.markers[id]
		switch {
		case !ok:
			diff.Added = append(diff.Added, m)
		case !sameMarker(old, m):
			diff.Updated = append(diff.Updated, m)
		}
	}
	for _, id := range v.order {
		if _, ok := next[id]; !ok {
			diff.Removed = append(diff.Removed, v.markers[id])
		}
	}

	v.markers = next
	v.order = order
	v.key = key
	return diff, nil
}

func (v *View) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.touched)
}

// detach marks the view detached and drops its markers. It reports whether
// this call did the transition.
func (v *View) detach() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Detached {
		return false
	}
	v.state = Detached
	v.markers = make(map[markerID]models.Marker)
	v.order = nil
	v.key = ""
	return true
}

// MarkerKey derives the identity of a marker set from latitude, longitude and
// price. Titles do not take part.
func MarkerKey(markers []models.Marker) string {
	var b strings.Builder
	for _, m := range markers {
		if !m.HasCoordinates() {
			continue
		}
		b.WriteString(strconv.FormatFloat(*m.Lat, 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(*m.Lng, 'f', -1, 64))
		b.WriteByte(',')
		if m.Price != nil {
			b.WriteString(strconv.FormatFloat(*m.Price, 'f', -1, 64))
		}
		b.WriteByte(';')
	}
	return b.String()
}

func sameMarker(a, b models.Marker) bool {
	if a.Title != b.Title || (a.Price == nil) != (b.Price == nil) {
		return false
	}
	return a.Price == nil || *a.Price == *b.Price
}
