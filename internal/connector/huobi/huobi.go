// Package huobi implements the Connector for Huobi (HTX) spot markets over a
// plain gorilla/websocket connection. Huobi's public feed gzip-compresses
// every frame, so unlike OKX/MEXC this connector runs its own dial/read loop
// instead of the shared text-message helper, in the same hand-rolled style
// the teacher uses for venues without a Go SDK.
package huobi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"cryptoflow/internal/config"
	"cryptoflow/internal/connector"
	"cryptoflow/internal/logger"
	"cryptoflow/internal/metrics/rate"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	timerate "golang.org/x/time/rate"
)

const (
	wsURL          = "wss://api.huobi.pro/ws"
	instrumentsURL = "https://api.huobi.pro/v1/common/symbols"
)

// Connector streams Huobi spot order books over the public WebSocket.
type Connector struct {
	cfg      *config.Config
	registry *symbols.Registry
	limiter  *timerate.Limiter

	state *connector.StateTracker
	log   *logger.Log

	out chan model.BookSnapshot
}

// New constructs a Huobi Connector.
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

func (c *Connector) Venue() model.Venue                  { return model.VenueHuobi }
func (c *Connector) Snapshots() <-chan model.BookSnapshot { return c.out }
func (c *Connector) State() connector.State               { return c.state.Get() }

type huobiSymbol struct {
	Symbol string `json:"symbol"`
	State  string `json:"state"`
}

type huobiSymbolsResponse struct {
	Data []huobiSymbol `json:"data"`
}

func (c *Connector) discover(ctx context.Context) ([]model.Market, error) {
	log := c.log.WithComponent("huobi_connector").WithFields(logger.Fields{"operation": "discover"})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instrumentsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build symbols request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch symbols: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		rate.ReportRateLimitExceeded(c.log, "huobi", "", "", "discover")
	} else if resp.StatusCode == http.StatusForbidden {
		rate.ReportIPBan(c.log, "huobi", "", "", "discover")
	}

	var parsed huobiSymbolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode symbols response: %w", err)
	}

	var markets []model.Market
	for _, s := range parsed.Data {
		if s.State != "online" {
			continue
		}
		pair, ok := c.registry.Canonicalize(model.VenueHuobi, s.Symbol)
		if !ok {
			continue
		}
		if !c.pairWanted(pair) {
			continue
		}
		m := model.Market{Venue: model.VenueHuobi, Pair: pair, NativeSymbol: s.Symbol, Active: true}
		c.registry.Upsert(m)
		markets = append(markets, m)
	}

	log.WithFields(logger.Fields{"count": len(markets)}).Info("huobi discovery complete")
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

// Run drives INIT -> DISCOVER -> SUBSCRIBING -> STREAMING, always resyncing
// (full book reset) on reconnect since Huobi's step0 depth push carries no
// gap-detectable sequence usable across reconnects.
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.out)
	log := c.log.WithComponent("huobi_connector")

	c.state.Set(log, c.Venue(), connector.StateDiscover)
	markets, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("huobi discovery: %w", err)
	}
	if len(markets) == 0 {
		log.Warn("no huobi markets selected after filtering; connector idling")
		<-ctx.Done()
		c.state.Set(log, c.Venue(), connector.StateStopped)
		return nil
	}

	books := make(map[string]*connector.ShadowBook, len(markets))
	for _, m := range markets {
		books[m.NativeSymbol] = connector.NewShadowBook(model.VenueHuobi, m.Pair, c.cfg.DepthLevels)
	}

	b := connector.NewReconnectBackoff()
	for {
		if ctx.Err() != nil {
			c.state.Set(log, c.Venue(), connector.StateStopped)
			return nil
		}

		c.state.Set(log, c.Venue(), connector.StateSubscribing)
		c.streamOnce(ctx, markets, books)

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

func (c *Connector) streamOnce(ctx context.Context, markets []model.Market, books map[string]*connector.ShadowBook) {
	log := c.log.WithComponent("huobi_connector")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		log.WithError(err).Warn("failed to connect to huobi websocket")
		return
	}
	defer conn.Close()

	for _, m := range markets {
		req := map[string]any{"sub": fmt.Sprintf("market.%s.depth.step0", m.NativeSymbol), "id": m.NativeSymbol}
		if err := conn.WriteJSON(req); err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": m.NativeSymbol}).Warn("failed to subscribe")
			return
		}
		books[m.NativeSymbol].Reset()
	}

	coalescer := connector.NewCoalescer(c.cfg.CoalesceInterval, c.out)
	defer coalescer.Stop()

	c.state.Set(log, c.Venue(), connector.StateStreaming)

	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Warn("huobi websocket read loop ended")
			return
		}

		payload, err := gunzip(raw)
		if err != nil {
			continue
		}

		var ping struct {
			Ping int64 `json:"ping"`
		}
		if json.Unmarshal(payload, &ping) == nil && ping.Ping != 0 {
			pong, _ := json.Marshal(map[string]int64{"pong": ping.Ping})
			conn.WriteMessage(websocket.TextMessage, pong)
			continue
		}

		var evt huobiDepthEvent
		if err := json.Unmarshal(payload, &evt); err != nil || evt.Tick == nil {
			continue
		}
		symbol := symbolFromChannel(evt.Channel)
		book, ok := books[symbol]
		if !ok {
			continue
		}

		book.Reset()
		applyHuobiLevels(book, connector.SideBid, evt.Tick.Bids)
		applyHuobiLevels(book, connector.SideAsk, evt.Tick.Asks)
		coalescer.Touch(book)
	}
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func symbolFromChannel(channel string) string {
	// channel is "market.<symbol>.depth.step0"
	const prefix = "market."
	const suffix = ".depth.step0"
	if len(channel) <= len(prefix)+len(suffix) {
		return ""
	}
	return channel[len(prefix) : len(channel)-len(suffix)]
}

type huobiDepthTick struct {
	Bids [][2]float64 `json:"bids"`
	Asks [][2]float64 `json:"asks"`
}

type huobiDepthEvent struct {
	Channel string          `json:"ch"`
	Tick    *huobiDepthTick `json:"tick"`
}

func applyHuobiLevels(book *connector.ShadowBook, side connector.Side, levels [][2]float64) {
	for _, lvl := range levels {
		price := decimal.NewFromFloat(lvl[0])
		size := decimal.NewFromFloat(lvl[1])
		book.ApplyLevel(side, price, size, 0)
	}
}
