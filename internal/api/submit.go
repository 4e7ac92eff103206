package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/validation"
	"github.com/ashureev/wealth-widget/internal/valuation"
)

// LeadSubmitter stores a completed lead.
type LeadSubmitter interface {
	Submit(ctx context.Context, rec domain.SubmissionRecord) error
}

// SubmitRequest is the body of POST /api/submit.
type SubmitRequest struct {
	Name         string  `json:"name"`
	BrokerageAUM float64 `json:"brokerage_aum"`
	AdvisoryAUM  float64 `json:"advisory_aum"`
	Revenue      float64 `json:"revenue"`
	Email        string  `json:"email"`
}

// SubmitData is the currency-formatted echo of a stored lead.
type SubmitData struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	BrokerageAUM string `json:"brokerage_aum"`
	AdvisoryAUM  string `json:"advisory_aum"`
	AUM          string `json:"aum"`
	Revenue      string `json:"revenue"`
	Valuation    string `json:"valuation"`
	Tier         int    `json:"tier"`
}

// SubmitResponse is returned on a successful submission.
type SubmitResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    SubmitData `json:"data"`
}

// SubmitHandler accepts leads that bypass the chat flow.
type SubmitHandler struct {
	sink        LeadSubmitter
	timeout     time.Duration
	maxBodySize int64
	isDev       bool
	now         func() time.Time
}

// NewSubmitHandler creates a submit handler. The test route is only
// registered when isDev is true.
func NewSubmitHandler(sink LeadSubmitter, timeout time.Duration, maxBodySize int64, isDev bool) *SubmitHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxBodySize <= 0 {
		maxBodySize = 64 << 10
	}
	return &SubmitHandler{
		sink:        sink,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		isDev:       isDev,
		now:         time.Now,
	}
}

// RegisterRoutes registers submission routes.
func (h *SubmitHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/submit", func(r chi.Router) {
		r.Post("/", h.Submit)
		if h.isDev {
			r.Post("/test", h.SubmitTest)
		}
	})
}

// Submit handles POST /api/submit.
func (h *SubmitHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fieldErrs, err := validation.ValidateSubmission(body)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(fieldErrs) > 0 {
		JSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "invalid submission",
			"details": fieldErrs,
		})
		return
	}

	var req SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	h.store(w, r, req, "Data successfully saved")
}

// SubmitTest handles POST /api/submit/test by storing a canned lead, which
// verifies sink credentials end to end.
func (h *SubmitHandler) SubmitTest(w http.ResponseWriter, r *http.Request) {
	h.store(w, r, SubmitRequest{
		Name:         "John Smith",
		BrokerageAUM: 1_000_000,
		AdvisoryAUM:  0,
		Revenue:      500_000,
		Email:        "test@example.com",
	}, "Test row successfully saved")
}

func (h *SubmitHandler) store(w http.ResponseWriter, r *http.Request, req SubmitRequest, message string) {
	result := valuation.Calculate(req.BrokerageAUM, req.AdvisoryAUM)
	rec := domain.NewSubmissionRecord(h.now(), req.Name, req.Email,
		req.BrokerageAUM, req.AdvisoryAUM, req.Revenue, result.Amount, result.Tier.Level)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.sink.Submit(ctx, rec); err != nil {
		slog.Error("Failed to save submission", "error", err, "submission_id", rec.ID)
		Error(w, http.StatusBadGateway, "failed to save data")
		return
	}

	JSON(w, http.StatusOK, SubmitResponse{
		Success: true,
		Message: message,
		Data: SubmitData{
			ID:           rec.ID,
			Timestamp:    rec.Timestamp.Format(time.RFC3339),
			Name:         rec.Name,
			Email:        rec.Email,
			BrokerageAUM: valuation.FormatUSD(rec.BrokerageAUM),
			AdvisoryAUM:  valuation.FormatUSD(rec.AdvisoryAUM),
			AUM:          valuation.FormatUSD(rec.AUM),
			Revenue:      valuation.FormatUSD(rec.Revenue),
			Valuation:    valuation.FormatUSD(rec.Valuation),
			Tier:         rec.Tier,
		},
	})
}
