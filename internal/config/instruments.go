package config

import (
	"fmt"
	"os"

	"cryptoflow/internal/faults"
	"cryptoflow/internal/model"

	"gopkg.in/yaml.v3"
)

// StaticInstrument is one row of an offline instrument fixture: the native
// symbol a venue reports plus the canonical pair and precision/notional
// metadata the Symbol Registry normally learns from a discovery call.
type StaticInstrument struct {
	Venue          string  `yaml:"venue"`
	NativeSymbol   string  `yaml:"native_symbol"`
	Base           string  `yaml:"base"`
	Quote          string  `yaml:"quote"`
	PricePrecision int     `yaml:"price_precision"`
	SizePrecision  int     `yaml:"size_precision"`
	MinNotional    float64 `yaml:"min_notional"`
}

type staticInstrumentsFile struct {
	Instruments []StaticInstrument `yaml:"instruments"`
}

// LoadStaticInstruments reads a YAML fixture and returns the Markets it
// describes. This seeds the Symbol Registry when a venue's discovery
// endpoint is unreachable at startup or during tests, grounded on the
// teacher's shard-file YAML loader but repurposed from IP sharding to an
// offline instrument fixture.
func LoadStaticInstruments(path string) ([]model.Market, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading static instruments %s: %v", faults.ErrConfig, path, err)
	}

	var parsed staticInstrumentsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing static instruments %s: %v", faults.ErrConfig, path, err)
	}

	markets := make([]model.Market, 0, len(parsed.Instruments))
	for _, inst := range parsed.Instruments {
		venue := model.Venue(inst.Venue)
		if !venue.Valid() {
			return nil, fmt.Errorf("%w: static instrument %s has unknown venue %q", faults.ErrConfig, inst.NativeSymbol, inst.Venue)
		}
		if inst.Base == "" || inst.Quote == "" || inst.NativeSymbol == "" {
			return nil, fmt.Errorf("%w: static instrument entry for venue %q is missing base/quote/native_symbol", faults.ErrConfig, inst.Venue)
		}

		markets = append(markets, model.Market{
			Venue:          venue,
			Pair:           model.Pair{Base: inst.Base, Quote: inst.Quote},
			NativeSymbol:   inst.NativeSymbol,
			PricePrecision: inst.PricePrecision,
			SizePrecision:  inst.SizePrecision,
			MinNotional:    inst.MinNotional,
			Active:         true,
		})
	}

	return markets, nil
}
