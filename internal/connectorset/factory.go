// Package connectorset wires the per-venue connector implementations behind
// one factory so cmd/arbd can construct the enabled set from config without
// importing every venue package directly.
package connectorset

import (
	"fmt"

	"cryptoflow/internal/config"
	"cryptoflow/internal/connector"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"

	"cryptoflow/internal/connector/binance"
	"cryptoflow/internal/connector/bybit"
	"cryptoflow/internal/connector/cointr"
	"cryptoflow/internal/connector/huobi"
	"cryptoflow/internal/connector/kucoin"
	"cryptoflow/internal/connector/mexc"
	"cryptoflow/internal/connector/okx"
)

// New constructs the Connector for venue, wiring it to the shared config and
// symbol registry. It returns an error for any venue without a registered
// implementation.
func New(venue model.Venue, cfg *config.Config, registry *symbols.Registry) (connector.Connector, error) {
	switch venue {
	case model.VenueBinance:
		return binance.New(cfg, registry), nil
	case model.VenueBybit:
		return bybit.New(cfg, registry), nil
	case model.VenueKucoin:
		return kucoin.New(cfg, registry), nil
	case model.VenueOKX:
		return okx.New(cfg, registry), nil
	case model.VenueMEXC:
		return mexc.New(cfg, registry), nil
	case model.VenueHuobi:
		return huobi.New(cfg, registry), nil
	case model.VenueCointr:
		return cointr.New(cfg, registry), nil
	default:
		return nil, fmt.Errorf("connectorset: no implementation registered for venue %q", venue)
	}
}

// NewEnabled constructs a Connector for every venue in model.Venues that
// cfg.VenueEnabled allows.
func NewEnabled(cfg *config.Config, registry *symbols.Registry) ([]connector.Connector, error) {
	var out []connector.Connector
	for _, v := range model.Venues {
		if !cfg.VenueEnabled(v) {
			continue
		}
		c, err := New(v, cfg, registry)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
