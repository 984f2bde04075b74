// Package binance implements the Connector for Binance spot markets using
// the adshao/go-binance/v2 client for REST discovery and the client's depth
// WebSocket stream for live deltas, following the shape of the teacher's
// futures depth reader generalized to spot and to the canonical model types.
package binance

import (
	"context"
	"fmt"
	"sync"

	"cryptoflow/internal/config"
	"cryptoflow/internal/connector"
	"cryptoflow/internal/logger"
	"cryptoflow/internal/metrics"
	"cryptoflow/internal/metrics/rate"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"

	binancesdk "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	timerate "golang.org/x/time/rate"
)

const depthLimit = 100

// Connector streams Binance spot order books over WebSocket, discovering
// tradable markets and seeding the initial snapshot over REST.
type Connector struct {
	cfg      *config.Config
	registry *symbols.Registry
	client   *binancesdk.Client
	limiter  *timerate.Limiter

	state *connector.StateTracker
	log   *logger.Log

	out chan model.BookSnapshot

	mu     sync.Mutex
	wg     sync.WaitGroup
	active map[model.Pair]struct{}
}

// New constructs a Binance Connector. The registry is populated with
// discovered markets as a side effect of Run's DISCOVER phase.
func New(cfg *config.Config, registry *symbols.Registry) *Connector {
	return &Connector{
		cfg:      cfg,
		registry: registry,
		client:   binancesdk.NewClient("", ""),
		limiter:  connector.NewRESTLimiter(cfg.RESTRateLimitRPS, cfg.RESTRateLimitBurst),
		state:    connector.NewStateTracker(),
		log:      logger.GetLogger(),
		out:      make(chan model.BookSnapshot, 256),
		active:   make(map[model.Pair]struct{}),
	}
}

func (c *Connector) Venue() model.Venue            { return model.VenueBinance }
func (c *Connector) Snapshots() <-chan model.BookSnapshot { return c.out }
func (c *Connector) State() connector.State        { return c.state.Get() }

// Run drives INIT -> DISCOVER -> SUBSCRIBING -> STREAMING, reconnecting with
// backoff on transport faults until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.out)
	log := c.log.WithComponent("binance_connector")

	c.state.Set(log, c.Venue(), connector.StateDiscover)
	markets, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("binance discovery: %w", err)
	}
	if len(markets) == 0 {
		log.Warn("no binance markets selected after filtering; connector idling")
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
			log.WithError(err).Warn("binance stream loop ended")
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

func (c *Connector) discover(ctx context.Context) ([]model.Market, error) {
	log := c.log.WithComponent("binance_connector").WithFields(logger.Fields{"operation": "discover"})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		rate.ReportLimitFromMessage(c.log, "binance", "", "", "discover", err.Error())
		return nil, err
	}

	var markets []model.Market
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pair, ok := c.registry.Canonicalize(model.VenueBinance, s.Symbol)
		if !ok {
			continue
		}
		if !c.pairWanted(pair) {
			continue
		}

		market := model.Market{
			Venue:          model.VenueBinance,
			Pair:           pair,
			NativeSymbol:   s.Symbol,
			PricePrecision: s.QuotePrecision,
			SizePrecision:  s.BaseAssetPrecision,
			Active:         true,
		}
		c.registry.Upsert(market)
		markets = append(markets, market)
	}

	log.WithFields(logger.Fields{"count": len(markets)}).Info("binance discovery complete")
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

func (c *Connector) streamOnce(ctx context.Context, markets []model.Market) error {
	log := c.log.WithComponent("binance_connector")
	coalescer := connector.NewCoalescer(c.cfg.CoalesceInterval, c.out)
	defer coalescer.Stop()

	var wg sync.WaitGroup
	errs := make(chan error, len(markets))

	for _, m := range markets {
		wg.Add(1)
		go func(m model.Market) {
			defer wg.Done()
			if err := c.streamMarket(ctx, m, coalescer); err != nil && ctx.Err() == nil {
				errs <- err
			}
		}(m)
	}

	c.state.Set(log, c.Venue(), connector.StateStreaming)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-ctx.Done():
		<-done
		return nil
	case err := <-errs:
		<-done
		return err
	case <-done:
		return nil
	}
}

func (c *Connector) streamMarket(ctx context.Context, m model.Market, coalescer *connector.Coalescer) error {
	log := c.log.WithComponent("binance_connector").WithFields(logger.Fields{"symbol": m.NativeSymbol})

	book := connector.NewShadowBook(model.VenueBinance, m.Pair, c.cfg.DepthLevels)
	tracker := &connector.BinanceWindowTracker{}

	snapshot, err := c.client.NewDepthService().Symbol(m.NativeSymbol).Limit(depthLimit).Do(ctx)
	if err != nil {
		return fmt.Errorf("rest snapshot for %s: %w", m.NativeSymbol, err)
	}
	tracker.Sync(snapshot.LastUpdateID)
	seedLevels(book, connector.SideBid, snapshot.Bids)
	seedLevels(book, connector.SideAsk, snapshot.Asks)
	coalescer.Touch(book)

	handler := func(event *binancesdk.WsDepthEvent) {
		accept, gap := tracker.Observe(event.FirstUpdateID, event.LastUpdateID)
		if gap {
			log.Warn("sequence gap detected, resyncing from REST snapshot")
			snap, err := c.client.NewDepthService().Symbol(m.NativeSymbol).Limit(depthLimit).Do(ctx)
			if err != nil {
				log.WithError(err).Warn("resync snapshot fetch failed")
				return
			}
			book.Reset()
			tracker.Sync(snap.LastUpdateID)
			seedLevels(book, connector.SideBid, snap.Bids)
			seedLevels(book, connector.SideAsk, snap.Asks)
			coalescer.Touch(book)
			return
		}
		if !accept {
			return
		}

		seedLevels(book, connector.SideBid, event.Bids)
		seedLevels(book, connector.SideAsk, event.Asks)
		coalescer.Touch(book)
	}

	errHandler := func(err error) {
		metrics.EmitMetric(c.log, "binance_connector", "ws_error", 1, "counter", logger.Fields{"symbol": m.NativeSymbol})
		log.WithError(err).Warn("binance depth websocket error")
	}

	doneC, stopC, err := binancesdk.WsDepthServe100Ms(m.NativeSymbol, handler, errHandler)
	if err != nil {
		return fmt.Errorf("subscribe depth stream for %s: %w", m.NativeSymbol, err)
	}

	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return nil
	case <-doneC:
		return fmt.Errorf("depth stream for %s ended", m.NativeSymbol)
	}
}

func seedLevels(book *connector.ShadowBook, side connector.Side, levels []binancesdk.Bid) {
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(lvl.Quantity)
		if err != nil {
			continue
		}
		book.ApplyLevel(side, price, size, 0)
	}
}

