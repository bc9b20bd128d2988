package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/db"
	"github.com/RichardoC/compi/internal/models"
)

type fakeCompleter struct {
	calls int
	reply string
	err   error
	seen  []models.ChatMessage
}

func (f *fakeCompleter) Complete(_ context.Context, messages []models.ChatMessage) (string, error) {
	f.calls++
	f.seen = messages
	return f.reply, f.err
}

func newSession(t *testing.T, llm Completer) (*Session, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), 50)
	require.NoError(t, err)
	return NewSession(HistoryKey, store, llm, zap.NewNop()), store
}

func TestSendIgnoresBlankText(t *testing.T) {
	llm := &fakeCompleter{reply: "hola"}
	s, _ := newSession(t, llm)

	history, err := s.Send(context.Background(), "  \n\t ")

	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Zero(t, llm.calls)
}

func TestSendAppendsUserAndAssistant(t *testing.T) {
	llm := &fakeCompleter{reply: "¿Cuál es tu presupuesto?"}
	s, _ := newSession(t, llm)

	history, err := s.Send(context.Background(), "  Busco piso en el Zaidín ")

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "Busco piso en el Zaidín", history[0].Text)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, "¿Cuál es tu presupuesto?", history[1].Text)
	assert.NotEqual(t, history[0].ID, history[1].ID)
	assert.Len(t, llm.seen, 1, "provider sees the history including the new user message")
}

func TestSendFailureAppendsSingleErrorMessage(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("network down")}
	s, _ := newSession(t, llm)

	history, err := s.Send(context.Background(), "hola")

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hola", history[0].Text)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, ErrorReply, history[1].Text)
}

// cancelOnComplete cancels the caller's context mid-reply, as a client
// disconnecting during the provider call does.
type cancelOnComplete struct {
	cancel context.CancelFunc
}

func (c *cancelOnComplete) Complete(ctx context.Context, _ []models.ChatMessage) (string, error) {
	c.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSendStoresErrorReplyWhenCallerCancels(t *testing.T) {
	store, err := db.New(filepath.Join(t.TempDir(), "compi.db"), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSession("anon:1", store, &cancelOnComplete{cancel: cancel}, zap.NewNop())

	history, err := s.Send(ctx, "hola")
	require.NoError(t, err)
	require.Len(t, history, 2)

	stored, err := store.LoadHistory(context.Background(), "anon:1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "hola", stored[0].Text)
	assert.Equal(t, models.RoleAssistant, stored[1].Role)
	assert.Equal(t, ErrorReply, stored[1].Text)
}

func TestSendHidesErrorRepliesFromProvider(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("network down")}
	s, _ := newSession(t, llm)
	_, err := s.Send(context.Background(), "hola")
	require.NoError(t, err)

	llm.err = nil
	llm.reply = "¿Qué zona prefieres?"
	history, err := s.Send(context.Background(), "busco piso")
	require.NoError(t, err)

	require.Len(t, history, 4)
	assert.Equal(t, ErrorReply, history[1].Text)
	require.Len(t, llm.seen, 2)
	assert.Equal(t, "hola", llm.seen[0].Text)
	assert.Equal(t, "busco piso", llm.seen[1].Text)
}

func TestClearEmptiesStore(t *testing.T) {
	s, store := newSession(t, &fakeCompleter{reply: "ok"})
	_, err := s.Send(context.Background(), "hola")
	require.NoError(t, err)

	require.NoError(t, s.Clear(context.Background()))

	history, err := s.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
	_, statErr := os.Stat(store.path(HistoryKey))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreCapsHistory(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), 2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AppendHistory(ctx, "k",
		models.ChatMessage{ID: "1", Role: models.RoleUser, Text: "a"},
		models.ChatMessage{ID: "2", Role: models.RoleAssistant, Text: "b"},
		models.ChatMessage{ID: "3", Role: models.RoleUser, Text: "c"},
	))

	history, err := store.LoadHistory(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []models.ChatMessage{
		{ID: "2", Role: models.RoleAssistant, Text: "b"},
		{ID: "3", Role: models.RoleUser, Text: "c"},
	}, history)
}

func TestFileStoreWritesWidgetShape(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), 10)
	require.NoError(t, err)
	require.NoError(t, store.AppendHistory(context.Background(), HistoryKey,
		models.ChatMessage{ID: "1", Role: models.RoleUser, Text: "hola"}))

	data, err := os.ReadFile(store.path(HistoryKey))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","role":"user","text":"hola"}]`, string(data))
}
