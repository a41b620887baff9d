package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sentinelpay/monitor/internal/logging"
	"sentinelpay/monitor/internal/metrics"
)

// NewRouter creates and returns a configured Chi router. ws may be nil, in
// which case /ws is not mounted.
func NewRouter(h *Handler, ws http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)

	// ── Health & ops ──────────────────────────────────────────────────────────
	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())
	if ws != nil {
		r.Get("/ws", ws)
	}

	// ── API v1 ────────────────────────────────────────────────────────────────
	r.Route("/api/v1", func(r chi.Router) {

		// Live feed and manual submissions
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.SubmitTransaction)
			r.Get("/{id}", h.GetTransaction)
		})

		r.Get("/stats", h.GetStats)
		r.Get("/rules", h.ListRules)

		// Runtime settings
		r.Get("/settings/model", h.GetModelSettings)
		r.Put("/settings/model", h.PutModelSettings)

		r.Route("/stream", func(r chi.Router) {
			r.Get("/", h.GetStream)
			r.Post("/start", h.StartStream)
			r.Post("/stop", h.StopStream)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", h.ListWebhooks)
			r.Post("/", h.RegisterWebhook)
			r.Delete("/{id}", h.DeleteWebhook)
		})

		// Admin / demo utilities
		r.Post("/admin/seed", h.SeedData)
	})

	return r
}

// Health reports liveness plus stream, model and realtime state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":       "ok",
		"service":      "sentinelpay-monitor",
		"streaming":    h.Stream.Running(),
		"remoteModel":  h.Settings.Configured(),
		"baselineSize": h.Baseline.Baseline().Samples,
	}
	if h.Realtime != nil {
		body["realtime"] = h.Realtime.Stats()
	}
	ok(w, body)
}

// requestLogger is a minimal structured-logging middleware.
// It replaces chi's default Logger to emit slog records, and installs the
// handler's logger in the request context for logging.L.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(logging.WithLogger(r.Context(), h.Logger))

		next.ServeHTTP(ww, r)

		logging.L(r.Context()).Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
