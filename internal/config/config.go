// Package config loads the environment-variable driven configuration of
// spec.md §6 into a typed, validated Config struct, following the teacher's
// config.LoadConfig/validateConfig pattern: fail fast with a wrapped error
// (internal/faults.ErrConfig, process exit code 2) on a malformed value.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptoflow/internal/faults"
	"cryptoflow/internal/model"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the fully resolved runtime configuration for one process.
type Config struct {
	MinSpreadBps     float64
	MinTriGainBps    float64
	MinNotional      decimal.Decimal
	SymbolUniverse   []model.Pair // empty => derive per spec.md §9 open question 3
	TriBases         []string
	TriExcludeQuotes map[string]struct{}
	IncludeExchanges map[model.Venue]struct{} // empty => all
	ExcludeExchanges map[model.Venue]struct{}
	DepthLevels      int
	CoalesceInterval time.Duration
	CrossScanInterval time.Duration
	TriScanInterval   time.Duration
	MaxStaleness      time.Duration
	AlertCooldown     time.Duration
	TriPathCacheTTL   time.Duration

	NotifierToken   string
	NotifierChat    string
	NotifierBaseURL string

	PersistBackend string // "file" (default) or "s3"
	PersistPath    string
	PersistBucket  string

	RESTRateLimitRPS   float64
	RESTRateLimitBurst int

	LogLevel string

	GraceShutdown time.Duration
}

// env reads name, falling back to def when unset or empty.
func env(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", faults.ErrConfig, name, raw)
	}
	return n, nil
}

func envFloat(name string, def float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", faults.ErrConfig, name, raw)
	}
	return f, nil
}

func envMillis(name string, defMs int) (time.Duration, error) {
	ms, err := envInt(name, defMs)
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %d", faults.ErrConfig, name, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func envSeconds(name string, defSec int) (time.Duration, error) {
	s, err := envInt(name, defSec)
	if err != nil {
		return 0, err
	}
	if s <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %d", faults.ErrConfig, name, s)
	}
	return time.Duration(s) * time.Second, nil
}

func envCSV(name string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv loads a local .env file for developer convenience, mirroring the
// teacher's main.go startup sequence. A missing file is not an error.
func LoadDotEnv(path string) {
	_ = godotenv.Load(path)
}

// Load reads and validates the process environment into a Config. Every
// validation failure is a Config fault per spec.md §7 and is fatal at
// startup (exit code 2).
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.MinSpreadBps, err = envFloat("MIN_SPREAD_BPS", 25); err != nil {
		return nil, err
	}
	if cfg.MinTriGainBps, err = envFloat("MIN_TRI_GAIN_BPS", 15); err != nil {
		return nil, err
	}
	minNotional, err := envFloat("MIN_NOTIONAL", 100)
	if err != nil {
		return nil, err
	}
	if minNotional <= 0 {
		return nil, fmt.Errorf("%w: MIN_NOTIONAL must be positive", faults.ErrConfig)
	}
	cfg.MinNotional = decimal.NewFromFloat(minNotional)

	for _, tok := range envCSV("SYMBOL_UNIVERSE") {
		pair, ok := parsePairToken(tok)
		if !ok {
			return nil, fmt.Errorf("%w: SYMBOL_UNIVERSE entry %q is not BASE/QUOTE", faults.ErrConfig, tok)
		}
		cfg.SymbolUniverse = append(cfg.SymbolUniverse, pair)
	}

	cfg.TriBases = envCSV("TRI_BASES")
	if len(cfg.TriBases) == 0 {
		cfg.TriBases = []string{"BTC", "ETH", "USDT"}
	}

	cfg.TriExcludeQuotes = make(map[string]struct{})
	for _, q := range envCSV("TRI_EXCLUDE_QUOTES") {
		cfg.TriExcludeQuotes[q] = struct{}{}
	}

	cfg.IncludeExchanges = make(map[model.Venue]struct{})
	for _, v := range envCSV("INCLUDE_EXCHANGES") {
		venue := model.Venue(strings.ToLower(v))
		if !venue.Valid() {
			return nil, fmt.Errorf("%w: INCLUDE_EXCHANGES entry %q is not a known venue", faults.ErrConfig, v)
		}
		cfg.IncludeExchanges[venue] = struct{}{}
	}
	cfg.ExcludeExchanges = make(map[model.Venue]struct{})
	for _, v := range envCSV("EXCLUDE_EXCHANGES") {
		venue := model.Venue(strings.ToLower(v))
		if !venue.Valid() {
			return nil, fmt.Errorf("%w: EXCLUDE_EXCHANGES entry %q is not a known venue", faults.ErrConfig, v)
		}
		cfg.ExcludeExchanges[venue] = struct{}{}
	}

	if cfg.DepthLevels, err = envInt("DEPTH_LEVELS", 20); err != nil {
		return nil, err
	}
	if cfg.DepthLevels <= 0 {
		return nil, fmt.Errorf("%w: DEPTH_LEVELS must be positive", faults.ErrConfig)
	}

	if cfg.CoalesceInterval, err = envMillis("COALESCE_MS", 100); err != nil {
		return nil, err
	}
	if cfg.CrossScanInterval, err = envMillis("CROSS_SCAN_MS", 1000); err != nil {
		return nil, err
	}
	if cfg.TriScanInterval, err = envMillis("TRI_SCAN_MS", 2000); err != nil {
		return nil, err
	}
	if cfg.MaxStaleness, err = envMillis("MAX_STALENESS_MS", 5000); err != nil {
		return nil, err
	}
	if cfg.AlertCooldown, err = envSeconds("ALERT_COOLDOWN_SEC", 60); err != nil {
		return nil, err
	}
	triCacheMs, err := envInt("TRI_PATH_CACHE_TTL_MS", 300000)
	if err != nil {
		return nil, err
	}
	cfg.TriPathCacheTTL = time.Duration(triCacheMs) * time.Millisecond

	graceMs, err := envInt("GRACE_SHUTDOWN_MS", 2000)
	if err != nil {
		return nil, err
	}
	cfg.GraceShutdown = time.Duration(graceMs) * time.Millisecond

	cfg.NotifierToken = os.Getenv("NOTIFIER_TOKEN")
	cfg.NotifierChat = os.Getenv("NOTIFIER_CHAT")
	cfg.NotifierBaseURL = env("NOTIFIER_BASE_URL", "https://api.telegram.org")

	cfg.PersistBackend = strings.ToLower(env("PERSIST_BACKEND", "file"))
	if cfg.PersistBackend != "file" && cfg.PersistBackend != "s3" {
		return nil, fmt.Errorf("%w: PERSIST_BACKEND must be file or s3, got %q", faults.ErrConfig, cfg.PersistBackend)
	}
	cfg.PersistPath = env("PERSIST_PATH", "data/opportunities.ndjson")
	cfg.PersistBucket = os.Getenv("PERSIST_BUCKET")
	if cfg.PersistBackend == "s3" && cfg.PersistBucket == "" {
		return nil, fmt.Errorf("%w: PERSIST_BUCKET is required when PERSIST_BACKEND=s3", faults.ErrConfig)
	}

	if cfg.RESTRateLimitRPS, err = envFloat("REST_RATE_LIMIT_RPS", 5); err != nil {
		return nil, err
	}
	if cfg.RESTRateLimitBurst, err = envInt("REST_RATE_LIMIT_BURST", 1); err != nil {
		return nil, err
	}

	cfg.LogLevel = env("LOG_LEVEL", "info")

	return cfg, nil
}

// parsePairToken parses a canonical "BASE/QUOTE" string into a model.Pair.
func parsePairToken(tok string) (model.Pair, bool) {
	parts := strings.SplitN(tok, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return model.Pair{}, false
	}
	return model.Pair{Base: parts[0], Quote: parts[1]}, true
}

// VenueEnabled reports whether venue should run given the include/exclude
// whitelists of spec.md §4.4's DISCOVER step.
func (c *Config) VenueEnabled(v model.Venue) bool {
	if len(c.ExcludeExchanges) > 0 {
		if _, excluded := c.ExcludeExchanges[v]; excluded {
			return false
		}
	}
	if len(c.IncludeExchanges) > 0 {
		_, included := c.IncludeExchanges[v]
		return included
	}
	return true
}
