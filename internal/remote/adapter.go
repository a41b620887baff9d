// Package remote scores transactions with an external generative model and
// falls back to the local heuristic engine whenever that fails.
//
// The adapter never surfaces an error to its caller. Every failure (network,
// status, envelope, payload schema, timeout) is logged, counted and answered
// with a heuristic verdict for the same transaction.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/metrics"
	"sentinelpay/monitor/internal/scoring"
	"sentinelpay/monitor/internal/traces"
)

// DefaultEndpoint is the Gemini generateContent URL used when none is configured.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Failure classes. Every error returned by the remote call wraps exactly one.
var (
	ErrTransport = errors.New("remote: transport failure")
	ErrStatus    = errors.New("remote: unexpected response status")
	ErrEnvelope  = errors.New("remote: malformed response envelope")
	ErrSchema    = errors.New("remote: verdict does not match schema")
)

// FallbackFunc observes a remote failure before the heuristic verdict is returned.
type FallbackFunc func(tx *domain.Transaction, kind string, err error)

// Adapter calls the remote model.
type Adapter struct {
	endpoint   string
	timeout    time.Duration
	client     *http.Client
	fallback   *scoring.Engine
	onFallback FallbackFunc
	now        func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithEndpoint overrides the generateContent URL.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) {
		if endpoint != "" {
			a.endpoint = endpoint
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithClock overrides the clock used to stamp AnalyzedAt on remote verdicts.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithFallbackObserver registers fn to be called on every fallback.
func WithFallbackObserver(fn FallbackFunc) Option {
	return func(a *Adapter) { a.onFallback = fn }
}

// New creates an Adapter that falls back to the given heuristic engine.
func New(fallback *scoring.Engine, opts ...Option) *Adapter {
	a := &Adapter{
		endpoint: DefaultEndpoint,
		timeout:  DefaultTimeout,
		client:   &http.Client{},
		fallback: fallback,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Score asks the remote model for a verdict. It always returns a result: on
// any failure the transaction is scored by the heuristic engine instead, which
// also appends its amount to the shared history. A successful remote verdict
// leaves the history untouched.
func (a *Adapter) Score(ctx context.Context, tx *domain.Transaction, credential string) *domain.AnalyzedTransaction {
	ctx, span := traces.StartSpan(ctx, "remote.Score", traces.Amount(tx.Amount))
	defer span.End()

	start := time.Now()
	v, err := a.call(ctx, tx, credential)
	if err != nil {
		span.RecordError(err)
		return a.fallBack(ctx, tx, err)
	}
	metrics.AnalysisDuration.WithLabelValues(string(domain.AnalysisRemoteModel)).Observe(time.Since(start).Seconds())

	return &domain.AnalyzedTransaction{
		Transaction:  *tx,
		RiskScore:    *v.RiskScore,
		IsFraud:      *v.IsFraud,
		Reasons:      *v.Reasons,
		AnalysisType: domain.AnalysisRemoteModel,
		AnalyzedAt:   a.now(),
	}
}

func (a *Adapter) fallBack(ctx context.Context, tx *domain.Transaction, err error) *domain.AnalyzedTransaction {
	kind := FailureKind(err)
	slog.WarnContext(ctx, "remote: falling back to heuristic",
		"kind", kind,
		"amount", tx.Amount,
		"merchant", tx.Merchant,
		"error", err,
	)
	metrics.RemoteFallbacksTotal.WithLabelValues(kind).Inc()
	if a.onFallback != nil {
		a.onFallback(tx, kind, err)
	}
	return a.fallback.Score(tx)
}

// FailureKind classifies a remote error for logs and metrics.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrEnvelope):
		return "envelope"
	case errors.Is(err, ErrSchema):
		return "schema"
	default:
		return "unknown"
	}
}

// ─── Transport ────────────────────────────────────────────────────────────────

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (a *Adapter) call(ctx context.Context, tx *domain.Transaction, credential string) (*verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	target, err := url.Parse(a.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint: %v", ErrTransport, err)
	}
	q := target.Query()
	q.Set("key", credential)
	target.RawQuery = q.Encode()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: BuildPrompt(tx)}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the credential.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	text, err := extractText(raw)
	if err != nil {
		return nil, err
	}
	return parseVerdict(text)
}

// extractText pulls candidates[0].content.parts[0].text out of the envelope.
func extractText(raw []byte) (string, error) {
	var env generateResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	if len(env.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrEnvelope)
	}
	parts := env.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == "" {
		return "", fmt.Errorf("%w: empty candidate text", ErrEnvelope)
	}
	return parts[0].Text, nil
}
