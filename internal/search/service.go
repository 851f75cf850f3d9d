package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/notify"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/obs"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/ratelimit"
)

// Config holds the service-level knobs; zero values fall back to the
// storefront defaults.
type Config struct {
	MinQueryLen    int
	MaxQueryLen    int
	MaxBulkLines   int
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinQueryLen <= 0 {
		c.MinQueryLen = 2
	}
	if c.MaxQueryLen <= 0 {
		c.MaxQueryLen = 100
	}
	if c.MaxBulkLines <= 0 {
		c.MaxBulkLines = 200
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

type Options struct {
	Backend     Backend
	Limiter     *ratelimit.Limiter
	Cache       *ResultCache
	Suggestions *SuggestionCache
	Events      *notify.Dispatcher
	Metrics     *obs.Metrics
	Logger      *slog.Logger
	Config      Config
}

// Service sits between the storefront UI and the remote search RPCs:
// rate limit first, then cache, then a deduplicated remote fetch.
type Service struct {
	backend     Backend
	limiter     *ratelimit.Limiter
	cache       *ResultCache
	suggestions *SuggestionCache
	flights     *group
	events      *notify.Dispatcher
	metrics     *obs.Metrics
	logger      *slog.Logger
	cfg         Config
}

func NewService(o Options) *Service {
	cfg := o.Config.withDefaults()
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend:     o.Backend,
		limiter:     o.Limiter,
		cache:       o.Cache,
		suggestions: o.Suggestions,
		flights:     newGroup(cfg.RequestTimeout),
		events:      o.Events,
		metrics:     o.Metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// Search runs one part search. Queries below the minimum length return an
// empty result without touching the limiter or the network. A tripped rate
// limit surfaces as *RateLimitError, a hung remote call as *TimeoutError;
// any other remote failure degrades to the simpler uncached query and only
// propagates if that fails too.
func (s *Service) Search(ctx context.Context, caller Caller, q Query) ([]Part, error) {
	if s.metrics != nil {
		s.metrics.IncSearchRequests()
	}

	text := strings.TrimSpace(q.Text)
	if len(text) < s.cfg.MinQueryLen {
		if s.metrics != nil {
			s.metrics.IncShortQueryDrops()
		}
		return []Part{}, nil
	}
	if len(text) > s.cfg.MaxQueryLen {
		return nil, ErrQueryTooLong
	}
	q.Text = text

	if err := s.checkLimit(ratelimit.Search, caller); err != nil {
		return nil, err
	}

	key := q.Key()
	if parts, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.IncCacheHits()
		}
		return parts, nil
	}

	parts, shared, err := s.flights.do(ctx, key, func(ctx context.Context) ([]Part, error) {
		return s.backend.SearchParts(ctx, q)
	})
	if shared && s.metrics != nil {
		s.metrics.IncDedupShared()
	}
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("search failed, falling back to simple query", "key", key, "err", err)
		fctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
		fallback, ferr := s.backend.SearchPartsSimple(fctx, q)
		if ferr != nil {
			return nil, fmt.Errorf("search fallback: %w", ferr)
		}
		return fallback, nil
	}

	if !shared {
		s.cache.Put(key, parts)
	}
	return parts, nil
}

// Suggest mirrors Search with a more lenient category and a TTL-only cache.
// Suggestions are UI sugar: a tripped limit or a remote failure degrades to
// an empty list instead of surfacing an error.
func (s *Service) Suggest(ctx context.Context, caller Caller, prefix string, limit int) ([]Suggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < s.cfg.MinQueryLen {
		return []Suggestion{}, nil
	}
	if len(prefix) > s.cfg.MaxQueryLen {
		prefix = prefix[:s.cfg.MaxQueryLen]
	}
	if limit <= 0 {
		limit = 8
	}

	if err := s.checkLimit(ratelimit.Suggestions, caller); err != nil {
		return []Suggestion{}, nil
	}

	key := fmt.Sprintf("%s|%d", strings.ToLower(prefix), limit)
	if sugg, ok := s.suggestions.Get(key); ok {
		if s.metrics != nil {
			s.metrics.IncSuggestHits()
		}
		return sugg, nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	sugg, err := s.backend.Suggest(cctx, prefix, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("suggestions failed, degrading to empty", "prefix", prefix, "err", err)
		return []Suggestion{}, nil
	}

	s.suggestions.Put(key, sugg)
	return sugg, nil
}

// ValidateBulk checks a batch of part numbers against the remote validator.
// Unlike search, failures here are never swallowed: silently returning
// "nothing validated" could let bad data reach checkout.
func (s *Service) ValidateBulk(ctx context.Context, caller Caller, partNumbers []string, customerID string) ([]BulkValidation, error) {
	cleaned := make([]string, 0, len(partNumbers))
	for _, pn := range partNumbers {
		pn = strings.TrimSpace(pn)
		if pn != "" {
			cleaned = append(cleaned, pn)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(cleaned) > s.cfg.MaxBulkLines {
		return nil, ErrBatchTooLarge
	}

	if err := s.checkLimit(ratelimit.Bulk, caller); err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	out, err := s.backend.ValidateParts(cctx, cleaned, customerID)
	if err != nil {
		return nil, fmt.Errorf("bulk validation: %w", err)
	}
	return out, nil
}

func (s *Service) checkLimit(cat ratelimit.Category, caller Caller) error {
	res := s.limiter.Allow(cat, ratelimit.Key(cat, caller.UserID, caller.Fingerprint))
	if res.Allowed {
		return nil
	}
	if s.metrics != nil {
		s.metrics.IncRateLimitDrops(string(cat))
	}
	if s.events != nil {
		s.events.Publish(notify.Event{
			Category:          string(cat),
			Message:           res.Message,
			RetryAfterSeconds: int(math.Ceil(res.RetryAfter.Seconds())),
		})
	}
	return &RateLimitError{
		Category:   string(cat),
		Remaining:  res.Remaining,
		ResetTime:  res.ResetTime,
		RetryAfter: res.RetryAfter,
		Message:    res.Message,
	}
}

// Reset clears both caches. Rate-limit counters are owned by the limiter
// and reset through it.
func (s *Service) Reset() {
	s.cache.Reset()
	s.suggestions.Reset()
}
