// Package bybit implements the Connector for Bybit spot markets using the
// bybit.go.api public WebSocket client for streaming and a plain REST call
// for instrument discovery, following the shape of the teacher's
// Bybit_FOBD_Reader generalized from futures to spot and to the canonical
// model types.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"cryptoflow/internal/config"
	"cryptoflow/internal/connector"
	"cryptoflow/internal/logger"
	"cryptoflow/internal/metrics/rate"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"

	bybitsdk "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
	timerate "golang.org/x/time/rate"
)

const (
	wsURL             = "wss://stream.bybit.com/v5/public/spot"
	instrumentsURL    = "https://api.bybit.com/v5/market/instruments-info?category=spot"
	heartbeatInterval = 15 * time.Second
	heartbeatTimeout  = 45 * time.Second
)

// Connector streams Bybit spot order books over the v5 public WebSocket.
type Connector struct {
	cfg      *config.Config
	registry *symbols.Registry
	limiter  *timerate.Limiter

	state *connector.StateTracker
	log   *logger.Log

	out chan model.BookSnapshot
}

// New constructs a Bybit Connector.
func New(cfg *config.Config, registry *symbols.Registry) *Connector {
	return &Connector{
		cfg:      cfg,
		registry: registry,
		limiter:  connector.NewRESTLimiter(cfg.RESTRateLimitRPS, cfg.RESTRateLimitBurst),
		state:    connector.NewStateTracker(),
		log:      logger.GetLogger(),
		out:      make(chan model.BookSnapshot, 256),
	}
}

func (c *Connector) Venue() model.Venue                   { return model.VenueBybit }
func (c *Connector) Snapshots() <-chan model.BookSnapshot  { return c.out }
func (c *Connector) State() connector.State                { return c.state.Get() }

type bybitInstrument struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

type bybitInstrumentsResponse struct {
	Result struct {
		List []bybitInstrument `json:"list"`
	} `json:"result"`
}

func (c *Connector) discover(ctx context.Context) ([]model.Market, error) {
	log := c.log.WithComponent("bybit_connector").WithFields(logger.Fields{"operation": "discover"})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instrumentsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build instruments request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		rate.ReportRateLimitExceeded(c.log, "bybit", "", "", "discover")
	} else if resp.StatusCode == http.StatusForbidden {
		rate.ReportIPBan(c.log, "bybit", "", "", "discover")
	}

	var parsed bybitInstrumentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode instruments response: %w", err)
	}

	var markets []model.Market
	for _, inst := range parsed.Result.List {
		if inst.Status != "Trading" {
			continue
		}
		pair, ok := c.registry.Canonicalize(model.VenueBybit, inst.Symbol)
		if !ok {
			continue
		}
		if !c.pairWanted(pair) {
			continue
		}
		m := model.Market{Venue: model.VenueBybit, Pair: pair, NativeSymbol: inst.Symbol, Active: true}
		c.registry.Upsert(m)
		markets = append(markets, m)
	}

	log.WithFields(logger.Fields{"count": len(markets)}).Info("bybit discovery complete")
	return markets, nil
}

func (c *Connector) pairWanted(pair model.Pair) bool {
	if len(c.cfg.SymbolUniverse) == 0 {
		return true
	}
	for _, p := range c.cfg.SymbolUniverse {
		if p == pair {
			return true
		}
	}
	return false
}

// Run drives INIT -> DISCOVER -> SUBSCRIBING -> STREAMING over a single
// multiplexed WebSocket connection for all selected markets, reconnecting on
// transport faults or a heartbeat timeout.
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.out)
	log := c.log.WithComponent("bybit_connector")

	c.state.Set(log, c.Venue(), connector.StateDiscover)
	markets, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("bybit discovery: %w", err)
	}
	if len(markets) == 0 {
		log.Warn("no bybit markets selected after filtering; connector idling")
		<-ctx.Done()
		c.state.Set(log, c.Venue(), connector.StateStopped)
		return nil
	}

	byTopic := make(map[string]*connector.ShadowBook, len(markets))
	trackers := make(map[string]*connector.SeqGapTracker, len(markets))
	topics := make([]string, 0, len(markets))
	for _, m := range markets {
		topic := "orderbook.50." + m.NativeSymbol
		byTopic[topic] = connector.NewShadowBook(model.VenueBybit, m.Pair, c.cfg.DepthLevels)
		trackers[topic] = &connector.SeqGapTracker{}
		topics = append(topics, topic)
	}

	b := connector.NewReconnectBackoff()
	for {
		if ctx.Err() != nil {
			c.state.Set(log, c.Venue(), connector.StateStopped)
			return nil
		}

		c.state.Set(log, c.Venue(), connector.StateSubscribing)
		c.streamOnce(ctx, topics, byTopic, trackers)

		if ctx.Err() != nil {
			c.state.Set(log, c.Venue(), connector.StateStopped)
			return nil
		}

		c.state.Set(log, c.Venue(), connector.StateReconnecting)
		if !connector.WaitBackoff(ctx, b) {
			c.state.Set(log, c.Venue(), connector.StateStopped)
			return nil
		}
	}
}

type bybitOrderbookMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
		Seq    int64      `json:"seq"`
	} `json:"data"`
}

func (c *Connector) streamOnce(ctx context.Context, topics []string, byTopic map[string]*connector.ShadowBook, trackers map[string]*connector.SeqGapTracker) {
	log := c.log.WithComponent("bybit_connector")
	coalescer := connector.NewCoalescer(c.cfg.CoalesceInterval, c.out)
	defer coalescer.Stop()

	var lastMsgMs int64
	touch := func() { atomic.StoreInt64(&lastMsgMs, time.Now().UnixMilli()) }
	touch()

	handler := func(message string) error {
		touch()
		var msg bybitOrderbookMessage
		if err := json.Unmarshal([]byte(message), &msg); err != nil {
			return nil
		}
		if !strings.HasPrefix(msg.Topic, "orderbook.") {
			return nil
		}
		book, ok := byTopic[msg.Topic]
		if !ok {
			return nil
		}

		tracker := trackers[msg.Topic]
		if tracker.Observe(msg.Data.Seq) {
			log.WithFields(logger.Fields{"topic": msg.Topic}).Warn("bybit sequence gap detected; awaiting next snapshot")
			book.Reset()
		}

		if msg.Type == "snapshot" {
			book.Reset()
		}
		applyBybitLevels(book, connector.SideBid, msg.Data.Bids, msg.Data.Seq)
		applyBybitLevels(book, connector.SideAsk, msg.Data.Asks, msg.Data.Seq)
		coalescer.Touch(book)
		return nil
	}

	ws := bybitsdk.NewBybitPublicWebSocket(wsURL, handler)
	ws.Connect().SendSubscription(topics)
	defer ws.Disconnect()

	c.state.Set(log, c.Venue(), connector.StateStreaming)

	watch := time.NewTicker(heartbeatInterval)
	defer watch.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watch.C:
			if time.Since(time.UnixMilli(atomic.LoadInt64(&lastMsgMs))) > heartbeatTimeout {
				log.Warn("bybit heartbeat timeout, forcing reconnect")
				return
			}
		}
	}
}

func applyBybitLevels(book *connector.ShadowBook, side connector.Side, entries [][]string, seq int64) {
	for _, e := range entries {
		if len(e) != 2 {
			continue
		}
		price, err := decimal.NewFromString(e[0])
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(e[1])
		if err != nil {
			continue
		}
		book.ApplyLevel(side, price, size, seq)
	}
}
