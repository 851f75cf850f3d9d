package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

// Config is the full server configuration. Duration-like knobs are integer
// milliseconds so the TOML file stays plain numbers.
type Config struct {
	Server    ServerConfig              `toml:"server"`
	Backend   BackendConfig             `toml:"backend"`
	Search    SearchConfig              `toml:"search"`
	RateLimit map[string]CategoryConfig `toml:"ratelimit"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type BackendConfig struct {
	BaseURL       string  `toml:"base_url"`
	APIKey        string  `toml:"api_key"`
	JWTSecret     string  `toml:"jwt_secret"`
	TimeoutMS     int64   `toml:"timeout_ms"`
	OutboundRPS   float64 `toml:"outbound_rps"`
	OutboundBurst int     `toml:"outbound_burst"`
}

type SearchConfig struct {
	CacheTTLMS          int64 `toml:"cache_ttl_ms"`
	MaxCacheEntries     int   `toml:"max_cache_entries"`
	PopularHitThreshold int   `toml:"popular_hit_threshold"`
	MaxCachedResults    int   `toml:"max_cached_results"`
	SuggestTTLMS        int64 `toml:"suggest_ttl_ms"`
	MaxSuggestEntries   int   `toml:"max_suggest_entries"`
	MinQueryLen         int   `toml:"min_query_len"`
	MaxQueryLen         int   `toml:"max_query_len"`
	MaxBulkLines        int   `toml:"max_bulk_lines"`
	RequestTimeoutMS    int64 `toml:"request_timeout_ms"`
	SweepIntervalMS     int64 `toml:"sweep_interval_ms"`
}

type CategoryConfig struct {
	MaxRequests int    `toml:"max_requests"`
	WindowMS    int64  `toml:"window_ms"`
	Message     string `toml:"message"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8080"},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:54321",
			TimeoutMS:     8000,
			OutboundRPS:   50,
			OutboundBurst: 25,
		},
		Search: SearchConfig{
			CacheTTLMS:          5 * 60 * 1000,
			MaxCacheEntries:     200,
			PopularHitThreshold: 5,
			MaxCachedResults:    500,
			SuggestTTLMS:        2 * 60 * 1000,
			MaxSuggestEntries:   300,
			MinQueryLen:         2,
			MaxQueryLen:         100,
			MaxBulkLines:        200,
			RequestTimeoutMS:    10000,
			SweepIntervalMS:     60 * 1000,
		},
		RateLimit: map[string]CategoryConfig{
			"search":      {MaxRequests: 60, WindowMS: 60000, Message: "Too many searches. Please slow down."},
			"suggestions": {MaxRequests: 120, WindowMS: 60000, Message: "Too many suggestion requests."},
			"bulk":        {MaxRequests: 10, WindowMS: 60000, Message: "Too many bulk uploads. Please wait before retrying."},
			"auth":        {MaxRequests: 5, WindowMS: 60000, Message: "Too many sign-in attempts."},
			"general":     {MaxRequests: 100, WindowMS: 60000, Message: "Too many requests."},
		},
	}
}

// Load reads TOML config from path. A missing file is not an error: the
// defaults are returned so a bare checkout still runs against localhost.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	// a partial [ratelimit] table must not lose the categories it omits
	if cfg.RateLimit == nil {
		cfg.RateLimit = make(map[string]CategoryConfig)
	}
	for name, c := range Default().RateLimit {
		if _, ok := cfg.RateLimit[name]; !ok {
			cfg.RateLimit[name] = c
		}
	}
	return cfg, nil
}

// WriteExample writes a config file populated with the defaults next to
// wherever the operator points it. Existing files are left alone.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := toml.Marshal(*Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
