// Package emitter implements spec.md §4.8: deduplicate detected
// opportunities, apply a per-key cooldown, and fan the survivors out to the
// notifier and persistence sinks over bounded, drop-oldest queues so a slow
// downstream never blocks an engine's scan loop.
package emitter

import (
	"context"
	"sync"
	"time"

	"cryptoflow/internal/logger"
	"cryptoflow/internal/metrics"
	"cryptoflow/internal/model"

	"github.com/google/uuid"
)

const defaultQueueCapacity = 1024

// Notifier delivers one human-readable alert per surviving opportunity.
type Notifier interface {
	Send(ctx context.Context, opp model.Opportunity) error
}

// PersistenceSink appends one opportunity record to durable storage.
type PersistenceSink interface {
	Append(ctx context.Context, opp model.Opportunity) error
}

// Config controls dedup bucket width, cooldown and queue sizing.
type Config struct {
	BucketWidthBps float64
	Cooldown       time.Duration
	QueueCapacity  int
}

// Emitter is the single point through which both engines publish detections.
type Emitter struct {
	cfg       Config
	notifier  Notifier
	persist   PersistenceSink
	log       *logger.Log

	mu       sync.Mutex
	lastSeen map[string]time.Time

	notifyQueue  chan model.Opportunity
	persistQueue chan model.Opportunity

	wg sync.WaitGroup
}

// New constructs an Emitter. notifier and/or persist may be nil to disable
// that sink (e.g. in tests); Submit still performs dedup/cooldown in that
// case.
func New(cfg Config, notifier Notifier, persist PersistenceSink) *Emitter {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.BucketWidthBps <= 0 {
		cfg.BucketWidthBps = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}

	return &Emitter{
		cfg:          cfg,
		notifier:     notifier,
		persist:      persist,
		log:          logger.GetLogger(),
		lastSeen:     make(map[string]time.Time),
		notifyQueue:  make(chan model.Opportunity, cfg.QueueCapacity),
		persistQueue: make(chan model.Opportunity, cfg.QueueCapacity),
	}
}

// Run starts the two dispatch loops (notifier, persistence) and the queue
// depth reporter; it blocks until ctx is cancelled, then drains in-flight
// sends before returning.
func (e *Emitter) Run(ctx context.Context) {
	log := e.log.WithComponent("emitter")
	log.Info("starting emitter dispatch loops")

	metrics.StartQueueDepthMetrics(ctx, []metrics.QueueDepth{
		{Name: "notifier", Len: func() int { return len(e.notifyQueue) }, Capacity: e.cfg.QueueCapacity},
		{Name: "persistence", Len: func() int { return len(e.persistQueue) }, Capacity: e.cfg.QueueCapacity},
	}, time.Second)

	e.wg.Add(2)
	go e.runNotifyLoop(ctx)
	go e.runPersistLoop(ctx)

	<-ctx.Done()
	log.Info("emitter stopping, draining dispatch loops")
	e.wg.Wait()
	log.Info("emitter stopped")
}

// Submit applies dedup/cooldown and, if the opportunity survives, enqueues
// it on both sinks without blocking: a full queue drops the oldest entry.
func (e *Emitter) Submit(opp model.Opportunity) {
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}
	if opp.TDetected.IsZero() {
		opp.TDetected = time.Now()
	}

	key := opp.DedupeKey(e.cfg.BucketWidthBps)

	e.mu.Lock()
	now := time.Now()
	if last, ok := e.lastSeen[key]; ok && now.Sub(last) < e.cfg.Cooldown {
		e.mu.Unlock()
		return
	}
	e.lastSeen[key] = now
	e.pruneLocked(now)
	e.mu.Unlock()

	log := e.log.WithComponent("emitter").WithFields(logger.Fields{
		"kind":    string(opp.Kind),
		"pair":    opp.Pair.String(),
		"net_bps": opp.NetBps,
	})
	log.Info("opportunity accepted for dispatch")
	metrics.EmitMetric(e.log, "emitter", "opportunities_emitted", 1, "counter", logger.Fields{"kind": string(opp.Kind)})

	e.enqueue(e.persistQueue, opp, metrics.DropMetricPersistenceQueue, string(opp.Pair.String()))
	e.enqueue(e.notifyQueue, opp, metrics.DropMetricNotifierQueue, string(opp.Pair.String()))
}

// pruneLocked drops dedup entries whose cooldown has long expired so the map
// doesn't grow without bound over a long-running process. Must be called
// with e.mu held.
func (e *Emitter) pruneLocked(now time.Time) {
	if len(e.lastSeen) < 4096 {
		return
	}
	for k, t := range e.lastSeen {
		if now.Sub(t) > 4*e.cfg.Cooldown {
			delete(e.lastSeen, k)
		}
	}
}

// enqueue performs a non-blocking send; on a full queue it drops the single
// oldest pending item to make room, per spec.md §4.8's "oldest dropped"
// overflow policy, then counts the drop via the metric.
func (e *Emitter) enqueue(q chan model.Opportunity, opp model.Opportunity, metric metrics.DropMetric, pair string) {
	select {
	case q <- opp:
		return
	default:
	}

	select {
	case <-q:
		metrics.EmitDropMetric(e.log, metric, "", pair, "enqueue")
	default:
	}

	select {
	case q <- opp:
	default:
		metrics.EmitDropMetric(e.log, metric, "", pair, "enqueue")
	}
}

func (e *Emitter) runNotifyLoop(ctx context.Context) {
	defer e.wg.Done()
	log := e.log.WithComponent("emitter_notify")
	for {
		select {
		case <-ctx.Done():
			return
		case opp, ok := <-e.notifyQueue:
			if !ok {
				return
			}
			if e.notifier == nil {
				continue
			}
			if err := e.notifier.Send(ctx, opp); err != nil {
				log.WithError(err).WithFields(logger.Fields{"id": opp.ID}).Warn("notifier delivery failed after retries, dropping")
			}
		}
	}
}

func (e *Emitter) runPersistLoop(ctx context.Context) {
	defer e.wg.Done()
	log := e.log.WithComponent("emitter_persist")
	for {
		select {
		case <-ctx.Done():
			return
		case opp, ok := <-e.persistQueue:
			if !ok {
				return
			}
			if e.persist == nil {
				continue
			}
			if err := e.persist.Append(ctx, opp); err != nil {
				log.WithError(err).WithFields(logger.Fields{"id": opp.ID}).Warn("persistence append failed, dropping")
			}
		}
	}
}
