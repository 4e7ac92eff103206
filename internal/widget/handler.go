package widget

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/wealth-widget/internal/api"
	"github.com/ashureev/wealth-widget/internal/conversation"
	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/identity"
	"github.com/ashureev/wealth-widget/internal/middleware"
	"github.com/ashureev/wealth-widget/internal/valuation"
)

const defaultMaxRequestBodySize = 64 << 10

// HandlerConfig tunes request limits.
type HandlerConfig struct {
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	MaxRequestBodySize int64
	AllowedOrigins     []string
	IsDevelopment      bool
}

// Handler exposes the widget conversation over HTTP.
type Handler struct {
	svc            *Service
	conns          *ConnectionManager
	rateLimiter    *middleware.RateLimiter
	maxBodySize    int64
	allowedOrigins []string
	isDev          bool
}

// MessageRequest is the body of POST /api/widget/message.
type MessageRequest struct {
	Message string `json:"message"`
}

// MessageResponse is the result of one conversation turn.
type MessageResponse struct {
	Accepted           bool             `json:"accepted"`
	Step               domain.Step      `json:"step"`
	Complete           bool             `json:"complete"`
	Messages           []domain.Message `json:"messages"`
	Prompt             string           `json:"prompt"`
	Placeholder        string           `json:"placeholder"`
	Valuation          float64          `json:"valuation,omitempty"`
	ValuationFormatted string           `json:"valuation_formatted,omitempty"`
	Tier               int              `json:"tier,omitempty"`
}

// NewHandler creates a widget HTTP handler.
func NewHandler(svc *Service, conns *ConnectionManager, cfg HandlerConfig) *Handler {
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 30
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		svc:            svc,
		conns:          conns,
		rateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		maxBodySize:    cfg.MaxRequestBodySize,
		allowedOrigins: cfg.AllowedOrigins,
		isDev:          cfg.IsDevelopment,
	}
}

// RegisterRoutes registers widget routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/widget", func(r chi.Router) {
		r.Post("/session", h.StartSession)
		r.Get("/session", h.GetSession)
		r.Delete("/session", h.DeleteSession)
		r.Post("/message", h.PostMessage)
	})
	r.Get("/ws/widget", h.ServeWebSocket)
}

// Close stops background work owned by the handler.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
}

// StartSession handles POST /api/widget/session.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	visitorID, tabID, ok := requestIdentity(w, r)
	if !ok {
		return
	}

	view, err := h.svc.Start(r.Context(), visitorID, tabID)
	if err != nil {
		writeServiceError(w, err, visitorID, tabID)
		return
	}
	api.JSON(w, http.StatusOK, view)
}

// GetSession handles GET /api/widget/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	visitorID, tabID, ok := requestIdentity(w, r)
	if !ok {
		return
	}

	view, err := h.svc.View(r.Context(), visitorID, tabID)
	if err != nil {
		writeServiceError(w, err, visitorID, tabID)
		return
	}
	api.JSON(w, http.StatusOK, view)
}

// DeleteSession handles DELETE /api/widget/session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	visitorID, tabID, ok := requestIdentity(w, r)
	if !ok {
		return
	}

	h.conns.CloseTab(visitorID, tabID)
	if err := h.svc.Close(r.Context(), visitorID, tabID); err != nil {
		writeServiceError(w, err, visitorID, tabID)
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// PostMessage handles POST /api/widget/message.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	visitorID, tabID, ok := requestIdentity(w, r)
	if !ok {
		return
	}

	// Rate-limit by visitor only so clients cannot bypass throttling by rotating tab IDs.
	if !h.rateLimiter.Allow(visitorID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.svc.Send(r.Context(), visitorID, tabID, req.Message)
	if err != nil {
		writeServiceError(w, err, visitorID, tabID)
		return
	}
	api.JSON(w, http.StatusOK, newMessageResponse(reply))
}

func newMessageResponse(reply conversation.Reply) MessageResponse {
	resp := MessageResponse{
		Accepted:    reply.Accepted,
		Step:        reply.Step,
		Complete:    reply.Complete(),
		Messages:    reply.Messages,
		Prompt:      reply.Prompt.Text,
		Placeholder: reply.Prompt.Placeholder,
	}
	if resp.Messages == nil {
		resp.Messages = []domain.Message{}
	}
	if reply.Result != nil && reply.Disclosed {
		resp.Valuation = reply.Result.Amount
		resp.ValuationFormatted = valuation.FormatUSD(reply.Result.Amount)
		resp.Tier = reply.Result.Tier.Level
	}
	return resp
}

func requestIdentity(w http.ResponseWriter, r *http.Request) (visitorID, tabID string, ok bool) {
	visitorID = identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return "", "", false
	}
	return visitorID, identity.SessionIDFromContext(r.Context()), true
}

// statusForError maps service errors to HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return http.StatusConflict, "assistant_typing"
	case errors.Is(err, conversation.ErrComplete):
		return http.StatusGone, "conversation_complete"
	case errors.Is(err, ErrNoSession):
		return http.StatusNotFound, "session_not_found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeServiceError(w http.ResponseWriter, err error, visitorID, tabID string) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("Widget request failed", "error", err, "visitor_id", visitorID, "session_id", tabID)
	}
	api.Error(w, status, code)
}
