package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/auth"
	"github.com/RichardoC/compi/internal/avatar"
	"github.com/RichardoC/compi/internal/chat"
	"github.com/RichardoC/compi/internal/config"
	"github.com/RichardoC/compi/internal/db"
	"github.com/RichardoC/compi/internal/llm"
	"github.com/RichardoC/compi/internal/mapview"
	"github.com/RichardoC/compi/internal/models"
)

// ChatCookie holds the history key of visitors without a session.
const ChatCookie = "compi_chat"

type Handler struct {
	listings db.ListingReader
	history  chat.Store
	llm      *llm.Service
	views    *mapview.Registry
	logger   *zap.Logger
}

func NewHandler(listings db.ListingReader, history chat.Store, llmService *llm.Service, views *mapview.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		listings: listings,
		history:  history,
		llm:      llmService,
		views:    views,
		logger:   logger,
	}
}

type HistoryRequest struct {
	Text string `json:"text"`
}

type HistoryResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

type MapViewResponse struct {
	ID       string           `json:"id"`
	State    string           `json:"state"`
	Markers  []models.Marker  `json:"markers"`
	Diff     mapview.Diff     `json:"diff"`
	Viewport mapview.Viewport `json:"viewport"`
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", h.HandleChat)
	mux.HandleFunc("/api/chat/history", h.ChatHistory)
	mux.HandleFunc("/api/debug/env", h.HandleDebugEnv)
	mux.HandleFunc("/api/listings", h.GetListings)
	mux.HandleFunc("/api/map/views", h.AttachMapView)
	mux.HandleFunc("/api/map/views/{id}", h.MapView)
	mux.HandleFunc("/api/avatar", h.GetAvatar)
}

// HandleChat relays the provider's reply to the caller as it streams in.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	start := func() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		started = true
	}

	err := h.llm.Stream(r.Context(), req.Messages, func(chunk string) error {
		if !started {
			start()
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	switch {
	case err == nil:
		if !started {
			start()
		}
	case started:
		h.logger.Warn("chat stream interrupted", zap.Error(err))
	case errors.Is(err, llm.ErrNoProvider):
		http.Error(w, "Chat is not available", http.StatusServiceUnavailable)
	default:
		h.logger.Error("Failed to stream chat reply", zap.Error(err))
		http.Error(w, "Failed to reach chat provider", http.StatusBadGateway)
	}
}

// ChatHistory serves the chatbot widget: GET reads the history, POST sends a
// message and DELETE clears it.
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	session := chat.NewSession(h.historyKey(w, r), h.history, h.llm, h.logger)

	var (
		messages []models.ChatMessage
		err      error
	)
	switch r.Method {
	case http.MethodGet:
		messages, err = session.History(r.Context())

	case http.MethodPost:
		var req HistoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		messages, err = session.Send(r.Context(), req.Text)

	case http.MethodDelete:
		err = session.Clear(r.Context())
		messages = []models.ChatMessage{}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		h.logger.Error("Failed to handle chat history",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, HistoryResponse{Messages: messages})
}

// HandleDebugEnv reports which providers are configured.
func (h *Handler) HandleDebugEnv(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("debug env panicked", zap.Any("panic", p))
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed"})
		}
	}()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flags, err := config.ReadFlags()
	if err != nil {
		h.logger.Error("Failed to read flags", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, flags)
}

func (h *Handler) GetListings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	listings, err := h.listings.ListListings(r.Context())
	if err != nil {
		h.logger.Error("Failed to list listings", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Retrieved listings", zap.Int("count", len(listings)))
	h.writeJSON(w, http.StatusOK, listings)
}

// AttachMapView opens a view and places the current listings on it.
func (h *Handler) AttachMapView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	listings, err := h.listings.ListListings(r.Context())
	if err != nil {
		h.logger.Error("Failed to list listings", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	view, diff := h.views.Attach(models.Markers(listings))
	h.writeJSON(w, http.StatusCreated, viewResponse(view, diff))
}

// MapView resyncs (GET) or detaches (DELETE) a view.
func (h *Handler) MapView(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		listings, err := h.listings.ListListings(r.Context())
		if err != nil {
			h.logger.Error("Failed to list listings", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		view, diff, err := h.views.Sync(id, models.Markers(listings))
		if err != nil {
			h.mapViewError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, viewResponse(view, diff))

	case http.MethodDelete:
		if err := h.views.Detach(id); err != nil {
			h.mapViewError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	size := avatar.DefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	io.WriteString(w, avatar.SVG(r.URL.Query().Get("name"), size))
}

func (h *Handler) mapViewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mapview.ErrViewNotFound):
		http.Error(w, "Map view not found", http.StatusNotFound)
	case errors.Is(err, mapview.ErrDetached):
		http.Error(w, "Map view is detached", http.StatusGone)
	default:
		h.logger.Error("Failed to handle map view", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// historyKey is the session user's id, or an anonymous id kept in a cookie.
func (h *Handler) historyKey(w http.ResponseWriter, r *http.Request) string {
	if user := auth.UserFromContext(r.Context()); user != nil {
		return "user:" + user.ID
	}
	if c, err := r.Cookie(ChatCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return "anon:" + c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ChatCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return "anon:" + id
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func viewResponse(view *mapview.View, diff mapview.Diff) MapViewResponse {
	return MapViewResponse{
		ID:       view.ID(),
		State:    view.State().String(),
		Markers:  view.Markers(),
		Diff:     diff,
		Viewport: view.Viewport(),
	}
}
