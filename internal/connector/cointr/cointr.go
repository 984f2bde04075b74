// Package cointr implements the Connector for CoinTR spot markets as a
// REST-polling fallback: CoinTR's public WebSocket is skipped in favor of a
// fixed-interval snapshot poll of the REST order book endpoint, mirroring
// the original reference connector's fetch_order_book path generalized to
// the canonical model types.
package cointr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cryptoflow/internal/config"
	"cryptoflow/internal/connector"
	"cryptoflow/internal/logger"
	"cryptoflow/internal/metrics/rate"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"

	"github.com/shopspring/decimal"
	timerate "golang.org/x/time/rate"
)

const (
	baseURL        = "https://api.cointr.com"
	symbolsPath    = "/api/v2/spot/public/symbols"
	orderbookPath  = "/api/v2/spot/market/orderbook"
	defaultPollGap = 1 * time.Second
)

// Connector polls CoinTR spot order books over REST on a fixed interval.
// There is no streaming transport to go DEGRADED/RECONNECTING on here; a
// failed poll simply logs and retries on the next tick.
type Connector struct {
	cfg      *config.Config
	registry *symbols.Registry
	client   *http.Client
	limiter  *timerate.Limiter

	state *connector.StateTracker
	log   *logger.Log

	out chan model.BookSnapshot
}

// New constructs a CoinTR Connector.
func New(cfg *config.Config, registry *symbols.Registry) *Connector {
	return &Connector{
		cfg:      cfg,
		registry: registry,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  connector.NewRESTLimiter(cfg.RESTRateLimitRPS, cfg.RESTRateLimitBurst),
		state:    connector.NewStateTracker(),
		log:      logger.GetLogger(),
		out:      make(chan model.BookSnapshot, 256),
	}
}

func (c *Connector) Venue() model.Venue                  { return model.VenueCointr }
func (c *Connector) Snapshots() <-chan model.BookSnapshot { return c.out }
func (c *Connector) State() connector.State               { return c.state.Get() }

type cointrSymbol struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

type cointrSymbolsResponse struct {
	Code string         `json:"code"`
	Data []cointrSymbol `json:"data"`
}

func (c *Connector) discover(ctx context.Context) ([]model.Market, error) {
	log := c.log.WithComponent("cointr_connector").WithFields(logger.Fields{"operation": "discover"})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+symbolsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build symbols request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch symbols: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		rate.ReportRateLimitExceeded(c.log, "cointr", "", "", "discover")
	} else if resp.StatusCode == http.StatusForbidden {
		rate.ReportIPBan(c.log, "cointr", "", "", "discover")
	}

	var parsed cointrSymbolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode symbols response: %w", err)
	}

	var markets []model.Market
	for _, s := range parsed.Data {
		if s.Status != "online" && s.Status != "trading" {
			continue
		}
		pair, ok := c.registry.Canonicalize(model.VenueCointr, s.Symbol)
		if !ok {
			continue
		}
		if !c.pairWanted(pair) {
			continue
		}
		m := model.Market{Venue: model.VenueCointr, Pair: pair, NativeSymbol: s.Symbol, Active: true}
		c.registry.Upsert(m)
		markets = append(markets, m)
	}

	log.WithFields(logger.Fields{"count": len(markets)}).Info("cointr discovery complete")
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

// Run drives INIT -> DISCOVER -> STREAMING (polling). There is no
// SUBSCRIBING/RECONNECTING phase: each market is polled independently on its
// own ticker and a transient REST failure just skips that tick.
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.out)
	log := c.log.WithComponent("cointr_connector")

	c.state.Set(log, c.Venue(), connector.StateDiscover)
	markets, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("cointr discovery: %w", err)
	}
	if len(markets) == 0 {
		log.Warn("no cointr markets selected after filtering; connector idling")
		<-ctx.Done()
		c.state.Set(log, c.Venue(), connector.StateStopped)
		return nil
	}

	c.state.Set(log, c.Venue(), connector.StateStreaming)

	pollInterval := c.cfg.CrossScanInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollGap
	}

	for _, m := range markets {
		go c.pollMarket(ctx, m, pollInterval)
	}

	<-ctx.Done()
	c.state.Set(log, c.Venue(), connector.StateStopped)
	return nil
}

func (c *Connector) pollMarket(ctx context.Context, m model.Market, interval time.Duration) {
	log := c.log.WithComponent("cointr_connector").WithFields(logger.Fields{"symbol": m.NativeSymbol})
	book := connector.NewShadowBook(model.VenueCointr, m.Pair, c.cfg.DepthLevels)
	coalescer := connector.NewCoalescer(c.cfg.CoalesceInterval, c.out)
	defer coalescer.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.fetchOnce(ctx, m, book); err != nil {
				log.WithError(err).Warn("failed to poll cointr order book")
				continue
			}
			coalescer.Touch(book)
		}
	}
}

type cointrOrderbook struct {
	Code string `json:"code"`
	Data struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
}

func (c *Connector) fetchOnce(ctx context.Context, m model.Market, book *connector.ShadowBook) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	u := fmt.Sprintf("%s%s?symbol=%s&limit=%d", baseURL, orderbookPath, m.NativeSymbol, c.cfg.DepthLevels)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		rate.ReportRateLimitExceeded(c.log, "cointr", m.NativeSymbol, "", "orderbook_poll")
	} else if resp.StatusCode == http.StatusForbidden {
		rate.ReportIPBan(c.log, "cointr", m.NativeSymbol, "", "orderbook_poll")
	}

	var parsed cointrOrderbook
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	logger.IncrementRESTRead(0)

	book.Reset()
	applyCointrLevels(book, connector.SideBid, parsed.Data.Bids)
	applyCointrLevels(book, connector.SideAsk, parsed.Data.Asks)
	return nil
}

func applyCointrLevels(book *connector.ShadowBook, side connector.Side, entries [][]string) {
	for _, e := range entries {
		if len(e) < 2 {
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
		book.ApplyLevel(side, price, size, 0)
	}
}
