package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/RichardoC/compi/internal/models"
)

// HistoryKey is the fixed key the terminal client stores its history under,
// matching the browser widget's local storage key.
const HistoryKey = "compi.chat.history"

// FileStore keeps each key's history as a JSON array of {id, role, text} in
// its own file under dir.
type FileStore struct {
	mu    sync.Mutex
	dir   string
	limit int
}

func NewFileStore(dir string, limit int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chat: create history dir: %w", err)
	}
	return &FileStore{dir: dir, limit: limit}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileStore) LoadHistory(_ context.Context, key string) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(key)
}

func (f *FileStore) AppendHistory(_ context.Context, key string, msgs ...models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	history, err := f.read(key)
	if err != nil {
		return err
	}
	history = append(history, msgs...)
	if f.limit > 0 && len(history) > f.limit {
		history = history[len(history)-f.limit:]
	}
	return f.write(key, history)
}

func (f *FileStore) ClearHistory(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("chat: clear history: %w", err)
	}
	return nil
}

func (f *FileStore) read(key string) ([]models.ChatMessage, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return []models.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat: read history: %w", err)
	}

	history := []models.ChatMessage{}
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("chat: decode history: %w", err)
	}
	return history, nil
}

func (f *FileStore) write(key string, history []models.ChatMessage) error {
	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("chat: write history: %w", err)
	}
	return os.Rename(tmp, f.path(key))
}
