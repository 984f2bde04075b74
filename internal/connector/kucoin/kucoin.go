// Package kucoin implements the Connector for KuCoin spot markets using the
// kucoin-universal-sdk's public WebSocket client for streaming level2
// increments and a plain REST call for instrument discovery, generalizing
// the teacher's KuCoin futures delta reader to the spot surface (NewSpotPublicWS
// mirrors the observed NewFuturesPublicWS method, and WithSpotEndpoint mirrors
// WithFuturesEndpoint on the same client option builder).
package kucoin

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

	sdkapi "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	spotpublic "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/spot/spotpublic"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"github.com/shopspring/decimal"
	timerate "golang.org/x/time/rate"
)

const (
	spotEndpoint      = "https://api.kucoin.com"
	symbolsURL         = spotEndpoint + "/api/v1/symbols"
	heartbeatInterval  = 15 * time.Second
	heartbeatTimeout   = 45 * time.Second
)

// Connector streams KuCoin spot order books via level2 increment events.
type Connector struct {
	cfg      *config.Config
	registry *symbols.Registry
	limiter  *timerate.Limiter

	state *connector.StateTracker
	log   *logger.Log

	out chan model.BookSnapshot
}

// New constructs a KuCoin Connector.
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

func (c *Connector) Venue() model.Venue                  { return model.VenueKucoin }
func (c *Connector) Snapshots() <-chan model.BookSnapshot { return c.out }
func (c *Connector) State() connector.State               { return c.state.Get() }

type kucoinSymbol struct {
	Symbol      string `json:"symbol"`
	EnableTrading bool `json:"enableTrading"`
}

type kucoinSymbolsResponse struct {
	Data []kucoinSymbol `json:"data"`
}

func (c *Connector) discover(ctx context.Context) ([]model.Market, error) {
	log := c.log.WithComponent("kucoin_connector").WithFields(logger.Fields{"operation": "discover"})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, symbolsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build symbols request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch symbols: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		rate.ReportRateLimitExceeded(c.log, "kucoin", "", "", "discover")
	} else if resp.StatusCode == http.StatusForbidden {
		rate.ReportIPBan(c.log, "kucoin", "", "", "discover")
	}

	var parsed kucoinSymbolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode symbols response: %w", err)
	}

	var markets []model.Market
	for _, s := range parsed.Data {
		if !s.EnableTrading {
			continue
		}
		pair, ok := c.registry.Canonicalize(model.VenueKucoin, s.Symbol)
		if !ok {
			continue
		}
		if !c.pairWanted(pair) {
			continue
		}
		m := model.Market{Venue: model.VenueKucoin, Pair: pair, NativeSymbol: s.Symbol, Active: true}
		c.registry.Upsert(m)
		markets = append(markets, m)
	}

	log.WithFields(logger.Fields{"count": len(markets)}).Info("kucoin discovery complete")
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

// Run drives INIT -> DISCOVER -> SUBSCRIBING -> STREAMING, reconnecting with
// backoff and a full resync (KuCoin is treated like the other native-sequence
// venues: the increment stream's sequence must chain, gaps force a reset).
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.out)
	log := c.log.WithComponent("kucoin_connector")

	c.state.Set(log, c.Venue(), connector.StateDiscover)
	markets, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("kucoin discovery: %w", err)
	}
	if len(markets) == 0 {
		log.Warn("no kucoin markets selected after filtering; connector idling")
		<-ctx.Done()
		c.state.Set(log, c.Venue(), connector.StateStopped)
		return nil
	}

	b := connector.NewReconnectBackoff()
	for {
		if ctx.Err() != nil {
			c.state.Set(log, c.Venue(), connector.StateStopped)
			return nil
		}

		c.state.Set(log, c.Venue(), connector.StateSubscribing)
		if err := c.streamOnce(ctx, markets); err != nil {
			log.WithError(err).Warn("kucoin stream loop ended")
		}

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

func (c *Connector) streamOnce(ctx context.Context, markets []model.Market) error {
	log := c.log.WithComponent("kucoin_connector")
	coalescer := connector.NewCoalescer(c.cfg.CoalesceInterval, c.out)
	defer coalescer.Stop()

	option := sdktype.NewClientOptionBuilder().
		WithSpotEndpoint(spotEndpoint).
		Build()
	client := sdkapi.NewClient(option)
	ws := client.WsService().NewSpotPublicWS()

	if err := ws.Start(); err != nil {
		return fmt.Errorf("start kucoin websocket: %w", err)
	}
	defer ws.Stop()

	var lastMsgMs int64
	touch := func() { atomic.StoreInt64(&lastMsgMs, time.Now().UnixMilli()) }
	touch()

	books := make(map[string]*connector.ShadowBook, len(markets))
	trackers := make(map[string]*connector.SeqGapTracker, len(markets))
	for _, m := range markets {
		books[m.NativeSymbol] = connector.NewShadowBook(model.VenueKucoin, m.Pair, c.cfg.DepthLevels)
		trackers[m.NativeSymbol] = &connector.SeqGapTracker{}
	}

	for _, m := range markets {
		symbol := m.NativeSymbol
		book := books[symbol]
		tracker := trackers[symbol]
		_, err := ws.OrderbookLevel2(symbol, func(topic, subject string, data *spotpublic.OrderbookLevel2Event) error {
			touch()
			if tracker.Observe(data.SequenceEnd) {
				log.WithFields(logger.Fields{"symbol": symbol}).Warn("kucoin sequence gap detected; resetting book")
				book.Reset()
			}
			applyKucoinChanges(book, connector.SideBid, data.Changes.Bids, data.SequenceEnd)
			applyKucoinChanges(book, connector.SideAsk, data.Changes.Asks, data.SequenceEnd)
			coalescer.Touch(book)
			return nil
		})
		if err != nil {
			log.WithFields(logger.Fields{"symbol": symbol}).WithError(err).Warn("failed to subscribe to kucoin orderbook")
		}
	}

	c.state.Set(log, c.Venue(), connector.StateStreaming)

	watch := time.NewTicker(heartbeatInterval)
	defer watch.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watch.C:
			if time.Since(time.UnixMilli(atomic.LoadInt64(&lastMsgMs))) > heartbeatTimeout {
				return fmt.Errorf("heartbeat timeout")
			}
		}
	}
}

// applyKucoinChanges applies level2 change entries, each a single
// comma-joined "price,size,sequence" string; entries with fewer than two
// fields are skipped.
func applyKucoinChanges(book *connector.ShadowBook, side connector.Side, changes []string, seq int64) {
	for _, change := range changes {
		parts := strings.Split(change, ",")
		if len(parts) < 2 {
			continue
		}
		price, err := decimal.NewFromString(parts[0])
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(parts[1])
		if err != nil {
			continue
		}
		book.ApplyLevel(side, price, size, seq)
	}
}
