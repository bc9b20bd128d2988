package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/auth"
	"github.com/RichardoC/compi/internal/chat"
	"github.com/RichardoC/compi/internal/llm"
	"github.com/RichardoC/compi/internal/mapview"
	"github.com/RichardoC/compi/internal/models"
)

type stubListings struct {
	listings []models.Listing
	err      error
}

func (s *stubListings) ListListings(context.Context) ([]models.Listing, error) {
	return s.listings, s.err
}

func (s *stubListings) Close() error { return nil }

type stubProvider struct {
	chunks []string
	err    error
	calls  int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Stream(_ context.Context, _ string, _ []models.ChatMessage, onChunk func(string) error) error {
	p.calls++
	for _, c := range p.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return p.err
}

func f(v float64) *float64 { return &v }

func newTestHandler(t *testing.T, listings *stubListings, provider llm.Provider) (*Handler, *http.ServeMux) {
	t.Helper()
	store, err := chat.NewFileStore(t.TempDir(), 20)
	require.NoError(t, err)
	svc := llm.NewWithProvider(provider, zap.NewNop())
	h := NewHandler(listings, store, svc, mapview.NewRegistry(mapview.DefaultOptions(), time.Minute, zap.NewNop()), zap.NewNop())
	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux
}

func TestHandleChatStreamsReply(t *testing.T) {
	_, mux := newTestHandler(t, &stubListings{}, &stubProvider{chunks: []string{"¿Qué ", "zona ", "prefieres?"}})

	rec := httptest.NewRecorder()
	body := `{"messages":[{"id":"1","role":"user","text":"hola"}]}`
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "¿Qué zona prefieres?", rec.Body.String())
}

func TestHandleChatErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
		method   string
		body     string
		want     int
	}{
		{"bad json", &stubProvider{}, http.MethodPost, "{", http.StatusBadRequest},
		{"wrong method", &stubProvider{}, http.MethodGet, "", http.StatusMethodNotAllowed},
		{"no provider", nil, http.MethodPost, `{"messages":[]}`, http.StatusServiceUnavailable},
		{"provider down", &stubProvider{err: errors.New("502")}, http.MethodPost, `{"messages":[]}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux := newTestHandler(t, &stubListings{}, tt.provider)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/chat", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleChatCutsStreamOnLateFailure(t *testing.T) {
	_, mux := newTestHandler(t, &stubListings{}, &stubProvider{chunks: []string{"Hola"}, err: errors.New("reset")})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[]}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hola", rec.Body.String())
}

func TestHandleDebugEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("ENABLE_GEMINI", "false")
	t.Setenv("OPENAI_API_KEY", "o")
	t.Setenv("ENABLE_OPENAI", "true")
	_, mux := newTestHandler(t, &stubListings{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/debug/env", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hasGeminiKey":true,"enableGemini":false,"hasOpenAIKey":true,"enableOpenAI":true}`, rec.Body.String())
}

func TestChatHistoryFlow(t *testing.T) {
	provider := &stubProvider{chunks: []string{"¿Cuál es tu presupuesto?"}}
	_, mux := newTestHandler(t, &stubListings{}, provider)
	user := &models.User{ID: "u1"}

	do := func(method, body string) HistoryResponse {
		t.Helper()
		req := httptest.NewRequest(method, "/api/chat/history", strings.NewReader(body))
		req = req.WithContext(auth.WithUser(req.Context(), user))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp HistoryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	resp := do(http.MethodPost, `{"text":"   "}`)
	assert.Empty(t, resp.Messages)
	assert.Zero(t, provider.calls)

	resp = do(http.MethodPost, `{"text":"Busco piso"}`)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "¿Cuál es tu presupuesto?", resp.Messages[1].Text)

	provider.err = errors.New("down")
	provider.chunks = nil
	resp = do(http.MethodPost, `{"text":"400 euros"}`)
	require.Len(t, resp.Messages, 4)
	assert.Equal(t, "400 euros", resp.Messages[2].Text)
	assert.Equal(t, chat.ErrorReply, resp.Messages[3].Text)

	assert.Empty(t, do(http.MethodDelete, "").Messages)
	assert.Empty(t, do(http.MethodGet, "").Messages)
}

func TestChatHistorySetsAnonymousCookie(t *testing.T) {
	_, mux := newTestHandler(t, &stubListings{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, ChatCookie, cookies[0].Name)
}

func TestMapViewLifecycle(t *testing.T) {
	listings := &stubListings{listings: []models.Listing{
		{ID: "1", Title: "Realejo", Price: 350, Lat: f(37.172), Lng: f(-3.594)},
		{ID: "2", Title: "Sin mapa", Price: 300},
	}}
	_, mux := newTestHandler(t, listings, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/map/views", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created MapViewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Len(t, created.Markers, 1)
	assert.Equal(t, "350 €/mes", created.Markers[0].Label)
	require.NotNil(t, created.Viewport.Bounds)

	listings.listings = listings.listings[1:]
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/map/views/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var synced MapViewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&synced))
	assert.Len(t, synced.Diff.Removed, 1)
	require.NotNil(t, synced.Viewport.Center)
	assert.Equal(t, mapview.DefaultOptions().Center, *synced.Viewport.Center)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/map/views/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/map/views/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetListingsError(t *testing.T) {
	_, mux := newTestHandler(t, &stubListings{err: errors.New("db down")}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetAvatar(t *testing.T) {
	_, mux := newTestHandler(t, &stubListings{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/avatar?name=Ana+L%C3%B3pez&size=32", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), ">AL</text>")
}
