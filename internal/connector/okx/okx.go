// Package okx implements the Connector for OKX spot markets over a plain
// gorilla/websocket connection (OKX has no Go SDK in the dependency set),
// generalizing the teacher's hand-rolled swap order-book delta reader to
// spot "books" channel events and to the shared connector substrate.
package okx

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
	wsURL          = "wss://ws.okx.com:8443/ws/v5/public"
	instrumentsURL = "https://www.okx.com/api/v5/public/instruments?instType=SPOT"
)

// Connector streams OKX spot order books over the v5 public WebSocket.
type Connector struct {
	cfg      *config.Config
	registry *symbols.Registry
	limiter  *timerate.Limiter

	state *connector.StateTracker
	log   *logger.Log

	out chan model.BookSnapshot
}

// New constructs an OKX Connector.
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

func (c *Connector) Venue() model.Venue                  { return model.VenueOKX }
func (c *Connector) Snapshots() <-chan model.BookSnapshot { return c.out }
func (c *Connector) State() connector.State               { return c.state.Get() }

type okxInstrument struct {
	InstID string `json:"instId"`
	State  string `json:"state"`
}

type okxInstrumentsResponse struct {
	Data []okxInstrument `json:"data"`
}

func (c *Connector) discover(ctx context.Context) ([]model.Market, error) {
	log := c.log.WithComponent("okx_connector").WithFields(logger.Fields{"operation": "discover"})

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
		rate.ReportRateLimitExceeded(c.log, "okx", "", "", "discover")
	} else if resp.StatusCode == http.StatusForbidden {
		rate.ReportIPBan(c.log, "okx", "", "", "discover")
	}

	var parsed okxInstrumentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode instruments response: %w", err)
	}

	var markets []model.Market
	for _, inst := range parsed.Data {
		if inst.State != "live" {
			continue
		}
		pair, ok := c.registry.Canonicalize(model.VenueOKX, inst.InstID)
		if !ok {
			continue
		}
		if !c.pairWanted(pair) {
			continue
		}
		m := model.Market{Venue: model.VenueOKX, Pair: pair, NativeSymbol: inst.InstID, Active: true}
		c.registry.Upsert(m)
		markets = append(markets, m)
	}

	log.WithFields(logger.Fields{"count": len(markets)}).Info("okx discovery complete")
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

// Run drives INIT -> DISCOVER -> SUBSCRIBING -> STREAMING. OKX has no
// venue-native sequence exposed on the public "books" channel, so every
// reconnect triggers a full resubscribe and book reset per market.
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.out)
	log := c.log.WithComponent("okx_connector")

	c.state.Set(log, c.Venue(), connector.StateDiscover)
	markets, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("okx discovery: %w", err)
	}
	if len(markets) == 0 {
		log.Warn("no okx markets selected after filtering; connector idling")
		<-ctx.Done()
		c.state.Set(log, c.Venue(), connector.StateStopped)
		return nil
	}

	books := make(map[string]*connector.ShadowBook, len(markets))
	for _, m := range markets {
		books[m.NativeSymbol] = connector.NewShadowBook(model.VenueOKX, m.Pair, c.cfg.DepthLevels)
	}

	coalescer := connector.NewCoalescer(c.cfg.CoalesceInterval, c.out)
	defer coalescer.Stop()

	subscribe := func(conn *websocket.Conn) error {
		args := make([]map[string]string, 0, len(markets))
		for _, m := range markets {
			args = append(args, map[string]string{"channel": "books", "instId": m.NativeSymbol})
		}
		return conn.WriteJSON(map[string]any{"op": "subscribe", "args": args})
	}

	handler := func(message string) error {
		var base map[string]json.RawMessage
		if err := json.Unmarshal([]byte(message), &base); err != nil {
			return nil
		}
		if _, ok := base["event"]; ok {
			return nil
		}

		var evt okxOrderBookEvent
		if err := json.Unmarshal([]byte(message), &evt); err != nil {
			return nil
		}
		book, ok := books[evt.Arg.InstID]
		if !ok || len(evt.Data) == 0 {
			return nil
		}

		if evt.Action == "snapshot" {
			book.Reset()
		}
		data := evt.Data[0]
		applyOkxLevels(book, connector.SideBid, data.Bids)
		applyOkxLevels(book, connector.SideAsk, data.Asks)
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

type okxOrderBookEvent struct {
	Arg struct {
		InstID string `json:"instId"`
	} `json:"arg"`
	Action string `json:"action"`
	Data   []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
}

func applyOkxLevels(book *connector.ShadowBook, side connector.Side, entries [][]string) {
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
