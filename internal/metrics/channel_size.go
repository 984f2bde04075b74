package metrics

import (
	"context"
	"time"

	"cryptoflow/internal/logger"
)

// QueueDepth is one bounded queue whose occupancy is sampled periodically,
// e.g. the Emitter's persistence or notifier sink queue (spec.md §4.8).
type QueueDepth struct {
	Name     string
	Len      func() int
	Capacity int
}

// StartQueueDepthMetrics emits occupancy gauges for the given queues every
// interval until ctx is cancelled. When interval <= 0, a one-second cadence
// is used. Grounded on the teacher's channel buffer occupancy reporter,
// generalized from fixed FOBS/FOBD/FOI/Liq/PI channels to an arbitrary set
// of named queues.
func StartQueueDepthMetrics(ctx context.Context, queues []QueueDepth, interval time.Duration) {
	if len(queues) == 0 {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "queue_depth"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, q := range queues {
					EmitMetric(log, component, q.Name+"_buffer_length", q.Len(), "gauge", logger.Fields{
						"buffer":   q.Name,
						"capacity": q.Capacity,
					})
				}
			}
		}
	}()
}
