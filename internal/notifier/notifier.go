// Package notifier delivers one human-readable alert per surviving
// opportunity to a chat-bot HTTP endpoint, retrying transient failures with
// jpillora/backoff before giving up per spec.md §4.8's at-most-once policy.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cryptoflow/internal/logger"
	"cryptoflow/internal/model"

	"github.com/jpillora/backoff"
)

const (
	defaultAttempts   = 3
	defaultTimeout    = 10 * time.Second
	defaultMinBackoff = 250 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// Config carries the chat-bot endpoint credentials of spec.md §6.
type Config struct {
	BaseURL  string
	Token    string
	Chat     string
	Attempts int
	Timeout  time.Duration
}

// ChatNotifier sends one message per opportunity to a Telegram-shaped
// `sendMessage` HTTP endpoint. The base URL is configurable so the same
// client works against any bot-token service with that request shape.
type ChatNotifier struct {
	cfg    Config
	client *http.Client
	log    *logger.Log
}

// New constructs a ChatNotifier. A zero-value BaseURL defaults to the
// Telegram Bot API; Token/Chat are required for Send to succeed but are not
// validated here — a missing credential simply fails every send, which is
// surfaced as a downstream fault per spec.md §7.
func New(cfg Config) *ChatNotifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &ChatNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.GetLogger(),
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send formats opp as a human-readable alert and POSTs it to the configured
// chat endpoint, retrying up to cfg.Attempts times with exponential backoff
// and jitter before returning an error.
func (n *ChatNotifier) Send(ctx context.Context, opp model.Opportunity) error {
	log := n.log.WithComponent("notifier").WithFields(logger.Fields{
		"id":   opp.ID,
		"kind": string(opp.Kind),
	})

	body := FormatMessage(opp)
	b := &backoff.Backoff{
		Min:    defaultMinBackoff,
		Max:    defaultMaxBackoff,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.Attempts; attempt++ {
		if err := n.post(ctx, body); err != nil {
			lastErr = err
			log.WithError(err).WithFields(logger.Fields{"attempt": attempt}).Warn("notifier send attempt failed")

			if attempt == n.cfg.Attempts {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Duration()):
			}
			continue
		}
		log.Debug("notifier send succeeded")
		logger.IncrementAlertSent()
		return nil
	}

	return fmt.Errorf("notifier: all %d attempts failed: %w", n.cfg.Attempts, lastErr)
}

func (n *ChatNotifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: n.cfg.Chat, Text: text})
	if err != nil {
		return fmt.Errorf("marshal notifier payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.cfg.BaseURL, n.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifier endpoint returned %s", resp.Status)
	}
	return nil
}

// FormatMessage renders opp as the one-opportunity-per-message text body
// described in spec.md §6: pair, venues/legs, net bps, notional, detection id.
func FormatMessage(opp model.Opportunity) string {
	switch opp.Kind {
	case model.KindCross:
		return fmt.Sprintf(
			"cross arbitrage: %s buy@%s sell@%s net=%.2fbps notional=%.2f id=%s",
			opp.Pair.String(), opp.BuyVenue, opp.SellVenue, opp.NetBps, opp.Notional, opp.ID,
		)
	case model.KindTri:
		return fmt.Sprintf(
			"tri arbitrage: %s base=%s legs=%s/%s/%s net=%.2fbps notional=%.2f id=%s",
			opp.Venue, opp.Base,
			opp.Legs[0].Pair.String(), opp.Legs[1].Pair.String(), opp.Legs[2].Pair.String(),
			opp.NetBps, opp.Notional, opp.ID,
		)
	default:
		return fmt.Sprintf("arbitrage opportunity id=%s net=%.2fbps", opp.ID, opp.NetBps)
	}
}
