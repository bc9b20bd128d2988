// Package assets loads the map library's script and stylesheet from the CDN
// once per process and serves them locally.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/retry"
)

type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	return [...]string{"unloaded", "loading", "ready", "failed"}[s]
}

// Files the map page needs, with the content type they are served as.
var Files = map[string]string{
	"leaflet.js":  "application/javascript; charset=utf-8",
	"leaflet.css": "text/css; charset=utf-8",
}

const fetchTimeout = 30 * time.Second

type Asset struct {
	Name        string
	ContentType string
	Body        []byte
}

// attempt is one in-flight load; closing done wakes every waiter.
type attempt struct {
	done chan struct{}
	err  error
}

type Loader struct {
	mu      sync.Mutex
	state   State
	current *attempt
	assets  map[string]Asset

	baseURL string
	client  *http.Client
	retry   retry.Config
	logger  *zap.Logger
}

func NewLoader(baseURL string, client *http.Client, logger *zap.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		retry:   retry.Config{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Logger: logger},
		logger:  logger,
	}
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Load blocks until the library is ready. The first caller starts the fetch;
// callers arriving while it runs wait for the same result. After a failure
// the next call starts over.
func (l *Loader) Load(ctx context.Context) error {
	l.mu.Lock()
	if l.state == Ready {
		l.mu.Unlock()
		return nil
	}
	if l.current == nil {
		l.current = &attempt{done: make(chan struct{})}
		l.state = Loading
		go l.fetchAll(l.current)
	}
	a := l.current
	l.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns a loaded asset.
func (l *Loader) Get(name string) (Asset, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.assets[name]
	return a, ok
}

func (l *Loader) fetchAll(a *attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	loaded := make(map[string]Asset, len(Files))
	var err error
	for name, contentType := range Files {
		var body []byte
		err = l.retry.Do(ctx, "fetch "+name, func(ctx context.Context) error {
			var ferr error
			body, ferr = l.fetch(ctx, name)
			return ferr
		})
		if err != nil {
			break
		}
		loaded[name] = Asset{Name: name, ContentType: contentType, Body: body}
	}

	l.mu.Lock()
	if err != nil {
		l.state = Failed
		l.logger.Error("map library load failed", zap.String("base_url", l.baseURL), zap.Error(err))
	} else {
		l.state = Ready
		l.assets = loaded
		l.logger.Info("map library loaded", zap.String("base_url", l.baseURL))
	}
	l.current = nil
	a.err = err
	l.mu.Unlock()
	close(a.done)
}

func (l *Loader) fetch(ctx context.Context, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/"+name, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", name, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ServeHTTP serves /assets/{name}, loading the library on first use.
func (l *Loader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.PathValue("name")
	if _, ok := Files[name]; !ok {
		http.NotFound(w, r)
		return
	}
	if err := l.Load(r.Context()); err != nil {
		http.Error(w, "Map library unavailable", http.StatusServiceUnavailable)
		return
	}
	asset, _ := l.Get(name)
	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(asset.Body)
}
