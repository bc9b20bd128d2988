package mapview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/models"
)

var ErrViewNotFound = errors.New("map view not found")

// Registry owns every attached view.
type Registry struct {
	mu     sync.Mutex
	views  map[string]*View
	opts   Options
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(opts Options, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		views:  make(map[string]*View),
		opts:   opts,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Attach creates a view and places the initial markers on it.
func (r *Registry) Attach(markers []models.Marker) (*View, Diff) {
	v := newView(uuid.NewString(), r.opts, r.now())
	// A fresh view cannot be detached yet.
	diff, _ := v.Sync(markers, r.now())

	r.mu.Lock()
	r.views[v.id] = v
	r.mu.Unlock()

	r.logger.Debug("map view attached", zap.String("view", v.id), zap.Int("markers", len(diff.Added)))
	return v, diff
}

func (r *Registry) Get(id string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return v, nil
}

// Sync resyncs the view with id against markers.
func (r *Registry) Sync(id string, markers []models.Marker) (*View, Diff, error) {
	v, err := r.Get(id)
	if err != nil {
		return nil, Diff{}, err
	}
	diff, err := v.Sync(markers, r.now())
	return v, diff, err
}

// Detach tears a view down and forgets it.
func (r *Registry) Detach(id string) error {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	r.teardown(v)
	return nil
}

// Sweep detaches views idle for longer than the TTL and returns how many.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	var stale []*View
	for id, v := range r.views {
		if v.idleSince(now) > r.ttl {
			stale = append(stale, v)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, v := range stale {
		r.teardown(v)
	}
	return len(stale)
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("detached idle map views", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *Registry) teardown(v *View) {
	if !v.detach() || r.opts.OnDetach == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("map view teardown panicked", zap.String("view", v.id), zap.Any("panic", p))
		}
	}()
	if err := r.opts.OnDetach(v.id); err != nil {
		r.logger.Warn("map view teardown failed", zap.String("view", v.id), zap.Error(err))
	}
}
