package emitter

import (
	"context"
	"sync"
	"testing"
	"time"

	"cryptoflow/internal/model"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Opportunity
}

func (f *fakeNotifier) Send(_ context.Context, opp model.Opportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, opp)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePersist struct {
	mu   sync.Mutex
	sent []model.Opportunity
}

func (f *fakePersist) Append(_ context.Context, opp model.Opportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, opp)
	return nil
}

func (f *fakePersist) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func sampleOpportunity(netBps float64) model.Opportunity {
	return model.Opportunity{
		Kind:      model.KindCross,
		Pair:      model.Pair{Base: "BTC", Quote: "USDT"},
		BuyVenue:  model.VenueBinance,
		SellVenue: model.VenueBybit,
		NetBps:    netBps,
	}
}

func TestSubmitDispatchesOnce(t *testing.T) {
	notif := &fakeNotifier{}
	persist := &fakePersist{}
	e := New(Config{Cooldown: time.Minute}, notif, persist)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Submit(sampleOpportunity(30))

	deadline := time.After(time.Second)
	for notif.count() == 0 || persist.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for dispatch: notif=%d persist=%d", notif.count(), persist.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubmitCooldownSuppressesDuplicate(t *testing.T) {
	notif := &fakeNotifier{}
	persist := &fakePersist{}
	e := New(Config{Cooldown: time.Hour}, notif, persist)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Submit(sampleOpportunity(30))
	time.Sleep(20 * time.Millisecond)
	e.Submit(sampleOpportunity(31)) // same bucket at width 5, still suppressed

	time.Sleep(30 * time.Millisecond)
	if got := notif.count(); got != 1 {
		t.Errorf("notifier received %d sends, want 1 (cooldown should suppress duplicate)", got)
	}
}

func TestSubmitDifferentBucketNotSuppressed(t *testing.T) {
	notif := &fakeNotifier{}
	persist := &fakePersist{}
	e := New(Config{Cooldown: time.Hour, BucketWidthBps: 5}, notif, persist)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Submit(sampleOpportunity(30))
	e.Submit(sampleOpportunity(60))

	deadline := time.After(time.Second)
	for notif.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for 2 sends, got %d", notif.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	e := New(Config{QueueCapacity: 2, Cooldown: time.Millisecond}, nil, nil)

	for i := 0; i < 5; i++ {
		e.Submit(sampleOpportunity(float64(30 + i*10)))
		time.Sleep(time.Millisecond)
	}

	if len(e.notifyQueue) > 2 {
		t.Errorf("notifyQueue length = %d, want <= capacity 2", len(e.notifyQueue))
	}
}
