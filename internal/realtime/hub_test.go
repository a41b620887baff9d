package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sentinelpay/monitor/internal/domain"
)

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func txEvent(score int, fraud bool, origin domain.Origin) *Event {
	return &Event{Type: EventTransaction, Data: &domain.AnalyzedTransaction{
		RiskScore: score, IsFraud: fraud, Origin: origin,
	}}
}

func TestShouldSend_ZeroSubscriptionReceivesAll(t *testing.T) {
	if !shouldSend(Subscription{}, txEvent(0, false, domain.OriginStream)) {
		t.Error("default subscription should receive transactions")
	}
	if !shouldSend(Subscription{}, &Event{Type: EventStreamState, Data: StreamState{Running: true}}) {
		t.Error("default subscription should receive stream state")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	sub := Subscription{EventTypes: []EventType{EventStreamState}}
	if shouldSend(sub, txEvent(90, true, domain.OriginStream)) {
		t.Error("should NOT receive transaction events")
	}
	if !shouldSend(sub, &Event{Type: EventStreamState}) {
		t.Error("should receive stream_state events")
	}
}

func TestShouldSend_FraudOnly(t *testing.T) {
	sub := Subscription{FraudOnly: true}
	if shouldSend(sub, txEvent(50, false, domain.OriginStream)) {
		t.Error("non-fraud transaction should be filtered")
	}
	if !shouldSend(sub, txEvent(51, true, domain.OriginStream)) {
		t.Error("fraud transaction should pass")
	}
	if !shouldSend(sub, &Event{Type: EventStreamState}) {
		t.Error("transaction filters must not hide stream state")
	}
}

func TestShouldSend_MinRiskScoreAndOrigin(t *testing.T) {
	sub := Subscription{MinRiskScore: 40, Origin: "manual"}
	if shouldSend(sub, txEvent(30, false, domain.OriginManual)) {
		t.Error("score below minimum should be filtered")
	}
	if shouldSend(sub, txEvent(80, true, domain.OriginStream)) {
		t.Error("stream origin should be filtered")
	}
	if !shouldSend(sub, txEvent(40, false, domain.OriginManual)) {
		t.Error("score at minimum from manual origin should pass")
	}
}

// ---------------------------------------------------------------------------
// End-to-end over a real socket
// ---------------------------------------------------------------------------

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Stats()["connectedClients"] == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d connected clients, got %v", n, h.Stats()["connectedClients"])
}

func TestHub_BroadcastsTransactionToClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub()
	go h.Run(ctx)

	conn := dial(t, h)
	waitForClients(t, h, 1)

	h.BroadcastTransaction(&domain.AnalyzedTransaction{ID: "tx-1", RiskScore: 95, IsFraud: true})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got struct {
		Type EventType `json:"type"`
		Data struct {
			ID        string `json:"id"`
			RiskScore int    `json:"riskScore"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != EventTransaction || got.Data.ID != "tx-1" || got.Data.RiskScore != 95 {
		t.Errorf("unexpected event %s", msg)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	go h.Run(ctx)

	conn := dial(t, h)
	waitForClients(t, h, 1)
	cancel()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close on hub shutdown")
	}
}
