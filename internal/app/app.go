package app

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/config"
	handlers "github.com/Parts-Partner/PartsPartners-sub001/internal/http"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/notify"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/obs"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/ratelimit"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/remote"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/routes"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/search"
)

type App struct {
	Router  http.Handler
	Service *search.Service
	Limiter *ratelimit.Limiter
	Events  *notify.Dispatcher
	Metrics *obs.Metrics
	Logger  *slog.Logger

	cancelEvents func()
}

func New(cfg *config.Config) *App {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	registry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(registry)

	limiter := ratelimit.New(limitConfigs(cfg),
		ratelimit.WithSweepInterval(ms(cfg.Search.SweepIntervalMS)))

	cache := search.NewResultCache(
		ms(cfg.Search.CacheTTLMS),
		cfg.Search.MaxCacheEntries,
		cfg.Search.PopularHitThreshold,
		cfg.Search.MaxCachedResults,
		metrics,
	)
	suggestions := search.NewSuggestionCache(ms(cfg.Search.SuggestTTLMS), cfg.Search.MaxSuggestEntries)

	events := notify.NewDispatcher()
	client := remote.NewClient(cfg.Backend, metrics)

	svc := search.NewService(search.Options{
		Backend:     client,
		Limiter:     limiter,
		Cache:       cache,
		Suggestions: suggestions,
		Events:      events,
		Metrics:     metrics,
		Logger:      logger,
		Config: search.Config{
			MinQueryLen:    cfg.Search.MinQueryLen,
			MaxQueryLen:    cfg.Search.MaxQueryLen,
			MaxBulkLines:   cfg.Search.MaxBulkLines,
			RequestTimeout: ms(cfg.Search.RequestTimeoutMS),
		},
	})

	identity := remote.NewIdentity(cfg.Backend.JWTSecret)
	h := handlers.NewHandler(svc, identity)
	router := routes.GetRoutes(h, metrics, logger)

	// mirror rate-limit events into the log so operators see tripped limits
	// without scraping metrics
	ch, cancel := events.Subscribe(16)
	go func() {
		for e := range ch {
			logger.Warn("rate limit hit",
				"category", e.Category,
				"retry_after_s", e.RetryAfterSeconds,
			)
		}
	}()

	return &App{
		Router:       router,
		Service:      svc,
		Limiter:      limiter,
		Events:       events,
		Metrics:      metrics,
		Logger:       logger,
		cancelEvents: cancel,
	}
}

// Close releases timers and subscriptions. Each component owns its own
// cleanup; nothing here reaches into another component's state.
func (a *App) Close() {
	a.cancelEvents()
	a.Events.Close()
	a.Limiter.Close()
}

func limitConfigs(cfg *config.Config) map[ratelimit.Category]ratelimit.Config {
	out := make(map[ratelimit.Category]ratelimit.Config, len(cfg.RateLimit))
	for name, c := range cfg.RateLimit {
		out[ratelimit.Category(name)] = ratelimit.Config{
			MaxRequests: c.MaxRequests,
			Window:      ms(c.WindowMS),
			Message:     c.Message,
		}
	}
	return out
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
