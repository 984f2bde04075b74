// Package mexc implements the Connector for MEXC spot markets over a plain
// gorilla/websocket connection, in the same hand-rolled style as the OKX
// connector: MEXC has no SDK in the dependency set, so discovery goes over
// REST and streaming subscribes to the public partial-depth channel.
package mexc

import (
	"context"
	"encoding/json"
	"fmt"
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
	wsURL          = "wss://wbs.mexc.com/ws"
	instrumentsURL = "https://api.mexc.com/api/v3/exchangeInfo"
)

// Connector streams MEXC spot order books over the public WebSocket.
type Connector struct {
	cfg      *config.Config
	registry *symbols.Registry
	limiter  *timerate.Limiter

	state *connector.StateTracker
	log   *logger.Log

	out chan model.BookSnapshot
}

// New constructs a MEXC Connector.
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

func (c *Connector) Venue() model.Venue                  { return model.VenueMEXC }
func (c *Connector) Snapshots() <-chan model.BookSnapshot { return c.out }
func (c *Connector) State() connector.State               { return c.state.Get() }

type mexcSymbol struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

type mexcExchangeInfo struct {
	Symbols []mexcSymbol `json:"symbols"`
}

func (c *Connector) discover(ctx context.Context) ([]model.Market, error) {
	log := c.log.WithComponent("mexc_connector").WithFields(logger.Fields{"operation": "discover"})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instrumentsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build exchange info request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		rate.ReportRateLimitExceeded(c.log, "mexc", "", "", "discover")
	} else if resp.StatusCode == http.StatusForbidden {
		rate.ReportIPBan(c.log, "mexc", "", "", "discover")
	}

	var parsed mexcExchangeInfo
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode exchange info response: %w", err)
	}

	var markets []model.Market
	for _, s := range parsed.Symbols {
		if s.Status != "ENABLED" && s.Status != "1" {
			continue
		}
		pair, ok := c.registry.Canonicalize(model.VenueMEXC, s.Symbol)
		if !ok {
			continue
		}
		if !c.pairWanted(pair) {
			continue
		}
		m := model.Market{Venue: model.VenueMEXC, Pair: pair, NativeSymbol: s.Symbol, Active: true}
		c.registry.Upsert(m)
		markets = append(markets, m)
	}

	log.WithFields(logger.Fields{"count": len(markets)}).Info("mexc discovery complete")
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

// Run drives INIT -> DISCOVER -> SUBSCRIBING -> STREAMING. MEXC's public
// depth channel carries no gap-detectable sequence, so every reconnect
// resubscribes and resets every tracked book.
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.out)
	log := c.log.WithComponent("mexc_connector")

	c.state.Set(log, c.Venue(), connector.StateDiscover)
	markets, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("mexc discovery: %w", err)
	}
	if len(markets) == 0 {
		log.Warn("no mexc markets selected after filtering; connector idling")
		<-ctx.Done()
		c.state.Set(log, c.Venue(), connector.StateStopped)
		return nil
	}

	books := make(map[string]*connector.ShadowBook, len(markets))
	for _, m := range markets {
		books[m.NativeSymbol] = connector.NewShadowBook(model.VenueMEXC, m.Pair, c.cfg.DepthLevels)
	}

	coalescer := connector.NewCoalescer(c.cfg.CoalesceInterval, c.out)
	defer coalescer.Stop()

	subscribe := func(conn *websocket.Conn) error {
		for _, m := range markets {
			req := map[string]any{
				"method": "SUBSCRIPTION",
				"params": []string{fmt.Sprintf("spot@public.limit.depth.v3.api@%s@20", m.NativeSymbol)},
			}
			if err := conn.WriteJSON(req); err != nil {
				return err
			}
		}
		return nil
	}

	handler := func(message string) error {
		var evt mexcDepthEvent
		if err := json.Unmarshal([]byte(message), &evt); err != nil {
			return nil
		}
		if evt.Channel == "" || evt.Data == nil {
			return nil
		}

		symbol := evt.Symbol
		book, ok := books[symbol]
		if !ok {
			return nil
		}

		book.Reset()
		applyMexcLevels(book, connector.SideBid, evt.Data.Bids)
		applyMexcLevels(book, connector.SideAsk, evt.Data.Asks)
		coalescer.Touch(book)
		return nil
	}

	c.state.Set(log, c.Venue(), connector.StateSubscribing)
	b := connector.NewReconnectBackoff()
	connector.RunWebSocketLoopWithState(ctx, wsURL, b, c.log, subscribe, handler, func(s connector.State) {
		c.state.Set(log, c.Venue(), s)
	})

	c.state.Set(log, c.Venue(), connector.StateStopped)
	return nil
}

type mexcDepthLevel struct {
	Price    string `json:"p"`
	Quantity string `json:"v"`
}

type mexcDepthData struct {
	Bids []mexcDepthLevel `json:"bids"`
	Asks []mexcDepthLevel `json:"asks"`
}

type mexcDepthEvent struct {
	Channel string          `json:"c"`
	Symbol  string          `json:"s"`
	Data    *mexcDepthData  `json:"d"`
}

func applyMexcLevels(book *connector.ShadowBook, side connector.Side, levels []mexcDepthLevel) {
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
