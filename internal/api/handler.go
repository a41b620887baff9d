package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sentinelpay/monitor/internal/analysis"
	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/geo"
	"sentinelpay/monitor/internal/logging"
	"sentinelpay/monitor/internal/report"
	"sentinelpay/monitor/internal/scoring"
	"sentinelpay/monitor/internal/store"
	"sentinelpay/monitor/internal/traces"
)

// Submitter runs a raw transaction through analysis and persistence.
type Submitter interface {
	Submit(ctx context.Context, origin domain.Origin, tx *domain.Transaction) (*domain.AnalyzedTransaction, error)
}

// BaselineSource reports the rolling history statistics.
type BaselineSource interface {
	Baseline() domain.BaselineStats
}

// StreamController starts and stops the background feed.
type StreamController interface {
	Start(ctx context.Context) bool
	Stop() bool
	Running() bool
	Interval() time.Duration
}

// RealtimeStats reports live-push connection statistics.
type RealtimeStats interface {
	Stats() map[string]any
}

// Deps are the collaborators shared across all HTTP handlers.
type Deps struct {
	Submitter Submitter
	Feed      store.Feed
	Baseline  BaselineSource
	Settings  *analysis.Settings
	Stream    StreamController
	Webhooks  *store.Webhooks
	Geo       *geo.Classifier // optional
	Realtime  RealtimeStats   // optional, reported on /health
	Logger    *slog.Logger    // request-scoped base logger; slog.Default() when nil

	// BaseCtx outlives requests; the stream loop is started with it.
	BaseCtx context.Context
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	Deps
	now func() time.Time
}

// NewHandler creates a Handler wired to the given dependencies.
func NewHandler(d Deps) *Handler {
	if d.BaseCtx == nil {
		d.BaseCtx = context.Background()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{Deps: d, now: func() time.Time { return time.Now().UTC() }}
}

// ─── POST /api/v1/transactions ────────────────────────────────────────────────

// submitRequest is a manual submission. Velocity and clientIp are optional.
type submitRequest struct {
	Amount      float64  `json:"amount"`
	Merchant    string   `json:"merchant"`
	Location    string   `json:"location"`
	IsForeignIP bool     `json:"isForeignIp"`
	Velocity    *float64 `json:"velocity,omitempty"`
	ClientIP    string   `json:"clientIp,omitempty"`
}

// SubmitTransaction scores a manual transaction synchronously. The remote
// model is used when a credential is configured; any failure there falls
// back to the heuristic transparently.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	tx := &domain.Transaction{
		Amount:      req.Amount,
		Merchant:    strings.TrimSpace(req.Merchant),
		Location:    strings.TrimSpace(req.Location),
		IsForeignIP: req.IsForeignIP,
		Velocity:    domain.DefaultManualVelocity,
		Timestamp:   h.now(),
	}
	if req.Velocity != nil {
		tx.Velocity = *req.Velocity
	}
	if err := tx.Validate(); err != nil {
		badRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}
	if req.ClientIP != "" {
		if foreign, resolved := h.Geo.IsForeign(req.ClientIP); resolved {
			tx.IsForeignIP = foreign
		}
	}

	ctx, span := traces.StartSpan(r.Context(), "api.SubmitTransaction", traces.Amount(tx.Amount))
	defer span.End()

	result, err := h.Submitter.Submit(ctx, domain.OriginManual, tx)
	if err != nil {
		// The verdict stands; only the write failed. It is returned without persistedAt.
		logging.L(ctx).Error("manual transaction not persisted", "transaction_id", result.ID, "error", err)
		ok(w, result)
		return
	}
	created(w, result)
}

// ─── GET /api/v1/transactions ────────────────────────────────────────────────

// ListTransactions returns the live feed, newest first.
//
// Query params:
//
//	limit: number of transactions (default and max: 50)
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := domain.FeedLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > domain.FeedLimit {
			badRequest(w, "INVALID_PARAM", fmt.Sprintf("limit must be an integer between 1 and %d", domain.FeedLimit))
			return
		}
		limit = parsed
	}

	txs, err := h.Feed.Recent(r.Context(), limit)
	if err != nil {
		logging.L(r.Context()).Error("failed to read feed", "error", err)
		internalError(w)
		return
	}
	ok(w, txs)
}

// ─── GET /api/v1/transactions/{id} ───────────────────────────────────────────

// GetTransaction retrieves a previously scored transaction by its ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx, err := h.Feed.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, fmt.Sprintf("transaction '%s' not found", id))
		return
	}
	if err != nil {
		logging.L(r.Context()).Error("failed to read transaction", "transaction_id", id, "error", err)
		internalError(w)
		return
	}
	ok(w, tx)
}

// ─── Stats & rules ────────────────────────────────────────────────────────────

// GetStats summarises the live feed and the rolling baseline.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Feed.Recent(r.Context(), domain.FeedLimit)
	if err != nil {
		logging.L(r.Context()).Error("failed to read feed", "error", err)
		internalError(w)
		return
	}
	ok(w, report.Build(txs, h.Baseline.Baseline(), h.now()))
}

// ListRules returns the heuristic rule table in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{
		"rules":          scoring.Rules(),
		"fraudThreshold": domain.FraudThreshold,
		"maxRiskScore":   domain.MaxRiskScore,
	})
}

// ─── Model settings ───────────────────────────────────────────────────────────

type modelSettings struct {
	Configured bool `json:"configured"`
}

// GetModelSettings reports whether a remote model credential is set. The
// credential itself is never returned.
func (h *Handler) GetModelSettings(w http.ResponseWriter, r *http.Request) {
	ok(w, modelSettings{Configured: h.Settings.Configured()})
}

// PutModelSettings sets or, with an empty apiKey, clears the credential.
func (h *Handler) PutModelSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey *string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if req.APIKey == nil {
		badRequest(w, "MISSING_API_KEY", "apiKey is required (use an empty string to clear)")
		return
	}

	h.Settings.SetCredential(strings.TrimSpace(*req.APIKey))
	configured := h.Settings.Configured()
	logging.L(r.Context()).Info("model credential updated", "configured", configured)
	ok(w, modelSettings{Configured: configured})
}

// ─── Stream control ───────────────────────────────────────────────────────────

type streamState struct {
	Running    bool  `json:"running"`
	IntervalMS int64 `json:"intervalMs"`
}

func (h *Handler) streamState() streamState {
	return streamState{Running: h.Stream.Running(), IntervalMS: h.Stream.Interval().Milliseconds()}
}

// GetStream reports whether the background feed is running.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	ok(w, h.streamState())
}

// StartStream starts the background feed.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	if !h.Stream.Start(h.BaseCtx) {
		conflict(w, "stream is already running")
		return
	}
	ok(w, h.streamState())
}

// StopStream stops the background feed after any in-flight tick.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	if !h.Stream.Stop() {
		conflict(w, "stream is not running")
		return
	}
	ok(w, h.streamState())
}

// ─── Webhooks ─────────────────────────────────────────────────────────────────

// DefaultWebhookThreshold applies when a registration omits the threshold.
const DefaultWebhookThreshold = 80

// RegisterWebhook adds a new webhook endpoint.
func (h *Handler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL       string `json:"url"`
		Threshold int    `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if req.URL == "" {
		badRequest(w, "MISSING_URL", "url is required")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		badRequest(w, "INVALID_URL", "url must be an http or https URL")
		return
	}
	if req.Threshold < 0 || req.Threshold > domain.MaxRiskScore {
		badRequest(w, "INVALID_THRESHOLD", "threshold must be between 0 and 100")
		return
	}
	if req.Threshold == 0 {
		req.Threshold = DefaultWebhookThreshold
	}

	wh := &domain.WebhookConfig{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Threshold: req.Threshold,
		CreatedAt: h.now(),
		Active:    true,
	}
	h.Webhooks.Save(wh)
	created(w, wh)
}

// ListWebhooks returns all active webhooks.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	ok(w, h.Webhooks.ListActive())
}

// DeleteWebhook deactivates and removes a webhook.
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.Webhooks.Delete(id) {
		notFound(w, fmt.Sprintf("webhook '%s' not found", id))
		return
	}
	noContent(w)
}

// ─── Admin ────────────────────────────────────────────────────────────────────

// SeedData scores an array of raw transactions as stream traffic, warming the
// rolling baseline. Invalid entries are counted as skipped. Useful for
// populating demo environments.
func (h *Handler) SeedData(w http.ResponseWriter, r *http.Request) {
	var txs []domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
		badRequest(w, "INVALID_JSON", "body must be a JSON array of transactions")
		return
	}

	var loaded, skipped int
	for i := range txs {
		tx := &txs[i]
		if err := tx.Validate(); err != nil {
			skipped++
			continue
		}
		if tx.Timestamp.IsZero() {
			tx.Timestamp = h.now()
		}
		if _, err := h.Submitter.Submit(r.Context(), domain.OriginStream, tx); err != nil {
			skipped++
			continue
		}
		loaded++
	}

	ok(w, map[string]int{"loaded": loaded, "skipped": skipped})
}
