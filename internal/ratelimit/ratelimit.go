package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/hako/durafmt"
)

type Category string

const (
	Search      Category = "search"
	Suggestions Category = "suggestions"
	Bulk        Category = "bulk"
	Auth        Category = "auth"
	General     Category = "general"
)

// Config bounds one category: at most MaxRequests per fixed Window.
type Config struct {
	MaxRequests int
	Window      time.Duration
	Message     string
}

// Result is the limiter's answer for a single call. Allow never fails;
// callers turn a denied Result into a typed error where one is needed.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
	Message    string
}

type entry struct {
	count     int
	resetTime time.Time
	blocked   bool
}

// Limiter counts requests per key in fixed windows. The window starts at the
// first request for a key and resets entirely once it elapses, which permits
// a burst of up to twice the bound straddling a window boundary; that is a
// known tradeoff for simplicity, kept deliberately.
type Limiter struct {
	mu      sync.Mutex
	configs map[Category]Config
	entries map[string]*entry

	now        func() time.Time
	sweepEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

type Option func(*Limiter)

// WithNow replaces the clock, for tests.
func WithNow(fn func() time.Time) Option {
	return func(l *Limiter) { l.now = fn }
}

func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepEvery = d }
}

func New(configs map[Category]Config, opts ...Option) *Limiter {
	l := &Limiter{
		configs:    make(map[Category]Config, len(configs)),
		entries:    make(map[string]*entry),
		now:        time.Now,
		sweepEvery: time.Minute,
		done:       make(chan struct{}),
	}
	for cat, cfg := range configs {
		l.configs[cat] = cfg
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sweepEvery > 0 {
		go l.janitor()
	}
	return l
}

func (l *Limiter) config(cat Category) Config {
	if cfg, ok := l.configs[cat]; ok {
		return cfg
	}
	if cfg, ok := l.configs[General]; ok {
		return cfg
	}
	return Config{MaxRequests: 100, Window: time.Minute}
}

// Allow reports whether the key may proceed in the given category and
// charges one request against its window. Exactly MaxRequests calls succeed
// per window; the call that would exceed the bound trips the block flag,
// which then holds for the remainder of the window without re-evaluation.
func (l *Limiter) Allow(cat Category, key string) Result {
	cfg := l.config(cat)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetTime) {
		// first request for the key, or its window has elapsed
		e = &entry{resetTime: now.Add(cfg.Window)}
		l.entries[key] = e
	}

	if e.blocked {
		return denied(cfg, e, now)
	}

	e.count++
	if e.count > cfg.MaxRequests {
		e.blocked = true
		return denied(cfg, e, now)
	}
	return Result{Allowed: true, Remaining: cfg.MaxRequests - e.count, ResetTime: e.resetTime}
}

func denied(cfg Config, e *entry, now time.Time) Result {
	wait := e.resetTime.Sub(now)
	if wait < 0 {
		wait = 0
	}
	msg := cfg.Message
	if msg == "" {
		msg = "Rate limit exceeded."
	}
	human := wait.Round(time.Second)
	if human <= 0 {
		human = time.Second
	}
	msg = fmt.Sprintf("%s Try again in %s.", msg, durafmt.Parse(human).LimitFirstN(1).String())
	return Result{Remaining: 0, ResetTime: e.resetTime, RetryAfter: wait, Message: msg}
}

// Key derives the counter key for a caller. Authenticated users are keyed by
// id; anonymous callers by their browser fingerprint. The fingerprint is weak
// identity, usable only to dampen abuse.
func Key(cat Category, userID, fingerprint string) string {
	if userID != "" {
		return fmt.Sprintf("%s:user:%s", cat, userID)
	}
	return fmt.Sprintf("%s:anon:%s", cat, fingerprint)
}

func (l *Limiter) janitor() {
	t := time.NewTicker(l.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

// Sweep deletes entries whose window has fully expired, bounding memory
// independent of request traffic.
func (l *Limiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if !now.Before(e.resetTime) {
			delete(l.entries, k)
		}
	}
}

// Len reports the number of live entries.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset drops all counters.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry)
}

// Close stops the janitor goroutine. Safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
