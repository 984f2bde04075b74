package connector

import (
	"context"
	"strings"
	"time"

	"cryptoflow/internal/logger"
	"cryptoflow/internal/metrics/rate"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

const (
	defaultKeepAlive = 20 * time.Second
)

// SubscribeFunc sends whatever subscription messages a venue requires once a
// connection is established.
type SubscribeFunc func(conn *websocket.Conn) error

// RunWebSocketLoop dials url, subscribes, and reads messages into handler
// until ctx is cancelled, reconnecting with b between attempts. It mirrors
// the teacher's generic bybit websocket runner, generalized to take a
// venue-specific subscribe callback and reconnect backoff so OKX and MEXC
// share one dial/ping/read loop.
func RunWebSocketLoop(ctx context.Context, url string, b *backoff.Backoff, log *logger.Log, subscribe SubscribeFunc, handler func(string) error) {
	RunWebSocketLoopWithState(ctx, url, b, log, subscribe, handler, nil)
}

// RunWebSocketLoopWithState is RunWebSocketLoop with an onState hook invoked
// with StateStreaming after a successful subscribe and StateReconnecting
// before each backoff wait, so callers can keep a StateTracker accurate
// across reconnects.
func RunWebSocketLoopWithState(ctx context.Context, url string, b *backoff.Backoff, log *logger.Log, subscribe SubscribeFunc, handler func(string) error, onState func(State)) {
	dialer := websocket.DefaultDialer

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"url": url}).Warn("failed to connect to websocket")
			rate.ReportLimitFromMessage(log, venueFromURL(url), "", "", "websocket", err.Error())
			if onState != nil {
				onState(StateReconnecting)
			}
			if !WaitBackoff(ctx, b) {
				return
			}
			continue
		}

		if subscribe != nil {
			if err := subscribe(conn); err != nil {
				log.WithError(err).WithFields(logger.Fields{"url": url}).Warn("failed to subscribe")
				rate.ReportLimitFromMessage(log, venueFromURL(url), "", "", "websocket", err.Error())
				conn.Close()
				if onState != nil {
					onState(StateReconnecting)
				}
				if !WaitBackoff(ctx, b) {
					return
				}
				continue
			}
		}

		if onState != nil {
			onState(StateStreaming)
		}

		pingCancel := startPingLoop(ctx, conn, defaultKeepAlive, log)
		err = readMessages(ctx, conn, handler)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).WithFields(logger.Fields{"url": url}).Warn("websocket read loop ended")
			rate.ReportLimitFromMessage(log, venueFromURL(url), "", "", "websocket", err.Error())
		}
		pingCancel()
		conn.Close()
		b.Reset()

		if ctx.Err() != nil {
			return
		}
		if onState != nil {
			onState(StateReconnecting)
		}
		if !WaitBackoff(ctx, b) {
			return
		}
	}
}

// venueFromURL extracts a coarse exchange name from a websocket URL's host
// for rate.ReportLimitFromMessage's per-exchange keyword matching.
func venueFromURL(url string) string {
	lower := strings.ToLower(url)
	for _, v := range []string{"binance", "okx", "kucoin", "bybit", "mexc", "huobi"} {
		if strings.Contains(lower, v) {
			return v
		}
	}
	return "unknown"
}

func readMessages(ctx context.Context, conn *websocket.Conn, handler func(string) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		logger.IncrementWSRead(len(msg))
		if handler != nil {
			_ = handler(string(msg))
		}
	}
}

func startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *logger.Log) context.CancelFunc {
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(time.Second))
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					cancel()
					return
				}
			}
		}
	}()
	return cancel
}
