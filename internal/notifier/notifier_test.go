package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cryptoflow/internal/model"
)

func TestSendSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{BaseURL: srv.URL, Token: "tok", Chat: "chat"})
	opp := model.Opportunity{Kind: model.KindCross, Pair: model.Pair{Base: "BTC", Quote: "USDT"}, NetBps: 42}

	if err := n.Send(context.Background(), opp); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSendRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(Config{BaseURL: srv.URL, Token: "tok", Chat: "chat", Attempts: 3})
	opp := model.Opportunity{Kind: model.KindCross, Pair: model.Pair{Base: "BTC", Quote: "USDT"}}

	start := time.Now()
	err := n.Send(context.Background(), opp)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if time.Since(start) <= 0 {
		t.Error("expected non-zero elapsed time due to backoff")
	}
}

func TestFormatMessageCross(t *testing.T) {
	opp := model.Opportunity{
		Kind:      model.KindCross,
		Pair:      model.Pair{Base: "BTC", Quote: "USDT"},
		BuyVenue:  model.VenueBinance,
		SellVenue: model.VenueBybit,
		NetBps:    31.5,
		Notional:  150,
		ID:        "abc-123",
	}
	msg := FormatMessage(opp)
	for _, want := range []string{"BTC/USDT", "binance", "bybit", "31.50", "abc-123"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestFormatMessageTri(t *testing.T) {
	opp := model.Opportunity{
		Kind:   model.KindTri,
		Venue:  model.VenueOKX,
		Base:   "BTC",
		Legs: [3]model.Leg{
			{Pair: model.Pair{Base: "BTC", Quote: "USDT"}, Side: "sell"},
			{Pair: model.Pair{Base: "ETH", Quote: "USDT"}, Side: "buy"},
			{Pair: model.Pair{Base: "BTC", Quote: "ETH"}, Side: "sell"},
		},
		NetBps: 20,
		ID:     "xyz",
	}
	msg := FormatMessage(opp)
	if !strings.Contains(msg, "okx") || !strings.Contains(msg, "xyz") {
		t.Errorf("message %q missing expected fields", msg)
	}
}
