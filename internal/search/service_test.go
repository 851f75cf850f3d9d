package search_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/notify"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/ratelimit"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/search"
)

type fakeBackend struct {
	mu           sync.Mutex
	searchCalls  int
	simpleCalls  int
	suggestCalls int
	bulkCalls    int

	searchFn  func(ctx context.Context, q search.Query) ([]search.Part, error)
	simpleFn  func(ctx context.Context, q search.Query) ([]search.Part, error)
	suggestFn func(ctx context.Context, prefix string, limit int) ([]search.Suggestion, error)
	bulkFn    func(ctx context.Context, partNumbers []string, customerID string) ([]search.BulkValidation, error)
}

func pts(n int) []search.Part {
	out := make([]search.Part, n)
	for i := range out {
		out[i] = search.Part{PartNumber: fmt.Sprintf("IGN-%d", i), Manufacturer: "Acme"}
	}
	return out
}

func (f *fakeBackend) SearchParts(ctx context.Context, q search.Query) ([]search.Part, error) {
	f.mu.Lock()
	f.searchCalls++
	fn := f.searchFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, q)
	}
	return pts(2), nil
}

func (f *fakeBackend) SearchPartsSimple(ctx context.Context, q search.Query) ([]search.Part, error) {
	f.mu.Lock()
	f.simpleCalls++
	fn := f.simpleFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, q)
	}
	return pts(1), nil
}

func (f *fakeBackend) Suggest(ctx context.Context, prefix string, limit int) ([]search.Suggestion, error) {
	f.mu.Lock()
	f.suggestCalls++
	fn := f.suggestFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, prefix, limit)
	}
	return []search.Suggestion{{Value: prefix, Kind: "part"}}, nil
}

func (f *fakeBackend) ValidateParts(ctx context.Context, partNumbers []string, customerID string) ([]search.BulkValidation, error) {
	f.mu.Lock()
	f.bulkCalls++
	fn := f.bulkFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, partNumbers, customerID)
	}
	out := make([]search.BulkValidation, len(partNumbers))
	for i, pn := range partNumbers {
		out[i] = search.BulkValidation{PartNumber: pn, Valid: true}
	}
	return out, nil
}

func (f *fakeBackend) counts() (int, int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls, f.simpleCalls, f.suggestCalls, f.bulkCalls
}

func generousLimits() map[ratelimit.Category]ratelimit.Config {
	return map[ratelimit.Category]ratelimit.Config{
		ratelimit.Search:      {MaxRequests: 1000, Window: time.Minute},
		ratelimit.Suggestions: {MaxRequests: 1000, Window: time.Minute},
		ratelimit.Bulk:        {MaxRequests: 1000, Window: time.Minute},
		ratelimit.General:     {MaxRequests: 1000, Window: time.Minute},
	}
}

func newTestService(t *testing.T, backend search.Backend, limits map[ratelimit.Category]ratelimit.Config, events *notify.Dispatcher, cfg search.Config) *search.Service {
	t.Helper()
	limiter := ratelimit.New(limits, ratelimit.WithSweepInterval(0))
	t.Cleanup(limiter.Close)
	return search.NewService(search.Options{
		Backend:     backend,
		Limiter:     limiter,
		Cache:       search.NewResultCache(time.Minute, 100, 5, 500, nil),
		Suggestions: search.NewSuggestionCache(time.Minute, 100),
		Events:      events,
		Config:      cfg,
	})
}

func TestSearchShortQueryShortCircuits(t *testing.T) {
	backend := &fakeBackend{}
	// bound of 1 proves a short query is not charged against the limiter
	limits := generousLimits()
	limits[ratelimit.Search] = ratelimit.Config{MaxRequests: 1, Window: time.Minute}
	svc := newTestService(t, backend, limits, nil, search.Config{})

	parts, err := svc.Search(context.Background(), search.Caller{}, search.Query{Text: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 0 {
		t.Fatalf("expected empty result, got %d", len(parts))
	}
	if sc, _, _, _ := backend.counts(); sc != 0 {
		t.Fatalf("backend should never be invoked, got %d calls", sc)
	}

	if _, err := svc.Search(context.Background(), search.Caller{}, search.Query{Text: "igniter"}); err != nil {
		t.Fatalf("short query must not consume the rate budget: %v", err)
	}
}

func TestSearchQueryTooLong(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{MaxQueryLen: 5})

	_, err := svc.Search(context.Background(), search.Caller{}, search.Query{Text: "abcdefgh"})
	if !errors.Is(err, search.ErrQueryTooLong) {
		t.Fatalf("expected ErrQueryTooLong, got %v", err)
	}
	if sc, _, _, _ := backend.counts(); sc != 0 {
		t.Fatal("validation failures must cost no network call")
	}
}

func TestSearchRateLimitSurfacesTypedError(t *testing.T) {
	backend := &fakeBackend{}
	limits := generousLimits()
	limits[ratelimit.Search] = ratelimit.Config{MaxRequests: 1, Window: time.Minute, Message: "Too many searches."}
	events := notify.NewDispatcher()
	defer events.Close()
	ch, cancel := events.Subscribe(4)
	defer cancel()

	svc := newTestService(t, backend, limits, events, search.Config{})

	if _, err := svc.Search(context.Background(), search.Caller{UserID: "u1"}, search.Query{Text: "igniter"}); err != nil {
		t.Fatalf("first search should pass: %v", err)
	}
	// different text so the cache cannot satisfy it
	_, err := svc.Search(context.Background(), search.Caller{UserID: "u1"}, search.Query{Text: "valve kit"})

	var rle *search.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Category != "search" {
		t.Fatalf("unexpected category %q", rle.Category)
	}
	if rle.RetryAfter <= 0 {
		t.Fatalf("retry-after should be positive, got %v", rle.RetryAfter)
	}

	select {
	case e := <-ch:
		if e.Category != "search" || e.RetryAfterSeconds < 1 {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected a rate-limit event on the dispatcher")
	}
}

func TestSearchCacheHitSkipsBackend(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})
	q := search.Query{Text: "Igniter ", Limit: 20}

	first, err := svc.Search(context.Background(), search.Caller{}, q)
	if err != nil {
		t.Fatal(err)
	}
	// normalization: same query with different casing/whitespace hits the
	// same entry
	second, err := svc.Search(context.Background(), search.Caller{}, search.Query{Text: "igniter", Limit: 20})
	if err != nil {
		t.Fatal(err)
	}
	if sc, _, _, _ := backend.counts(); sc != 1 {
		t.Fatalf("expected a single backend call, got %d", sc)
	}
	if len(first) != len(second) {
		t.Fatalf("cached result should match: %d vs %d", len(first), len(second))
	}
}

func TestSearchEmptyResultsNotCached(t *testing.T) {
	backend := &fakeBackend{
		searchFn: func(ctx context.Context, q search.Query) ([]search.Part, error) {
			return []search.Part{}, nil
		},
	}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})
	q := search.Query{Text: "no such part"}

	for i := 0; i < 2; i++ {
		if _, err := svc.Search(context.Background(), search.Caller{}, q); err != nil {
			t.Fatal(err)
		}
	}
	if sc, _, _, _ := backend.counts(); sc != 2 {
		t.Fatalf("empty results must not be cached, expected 2 calls got %d", sc)
	}
}

func TestSearchConcurrentCallsDeduped(t *testing.T) {
	var startedOnce sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{
		searchFn: func(ctx context.Context, q search.Query) ([]search.Part, error) {
			startedOnce.Do(func() { close(started) })
			<-release
			return pts(3), nil
		},
	}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})
	q := search.Query{Text: "igniter"}

	results := make(chan int, 2)
	errs := make(chan error, 2)
	go func() {
		parts, err := svc.Search(context.Background(), search.Caller{}, q)
		results <- len(parts)
		errs <- err
	}()
	<-started
	go func() {
		parts, err := svc.Search(context.Background(), search.Caller{}, q)
		results <- len(parts)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := <-results; n != 3 {
			t.Fatalf("both callers should see 3 parts, got %d", n)
		}
	}
	if sc, _, _, _ := backend.counts(); sc != 1 {
		t.Fatalf("expected one remote call for concurrent identical searches, got %d", sc)
	}
}

func TestSearchFallsBackOnRemoteError(t *testing.T) {
	backend := &fakeBackend{
		searchFn: func(ctx context.Context, q search.Query) ([]search.Part, error) {
			return nil, errors.New("rpc exploded")
		},
	}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})
	q := search.Query{Text: "igniter"}

	parts, err := svc.Search(context.Background(), search.Caller{}, q)
	if err != nil {
		t.Fatalf("fallback should absorb the error, got %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected the fallback result, got %d parts", len(parts))
	}

	// the fallback result is served uncached, so the next call tries the
	// full path again
	if _, err := svc.Search(context.Background(), search.Caller{}, q); err != nil {
		t.Fatal(err)
	}
	sc, simple, _, _ := backend.counts()
	if sc != 2 || simple != 2 {
		t.Fatalf("expected 2 full and 2 fallback calls, got %d and %d", sc, simple)
	}
}

func TestSearchFallbackFailurePropagates(t *testing.T) {
	boom := errors.New("rpc exploded")
	backend := &fakeBackend{
		searchFn: func(ctx context.Context, q search.Query) ([]search.Part, error) {
			return nil, boom
		},
		simpleFn: func(ctx context.Context, q search.Query) ([]search.Part, error) {
			return nil, errors.New("fallback exploded too")
		},
	}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})

	_, err := svc.Search(context.Background(), search.Caller{}, search.Query{Text: "igniter"})
	if err == nil {
		t.Fatal("expected an error when both paths fail")
	}
}

func TestSearchTimeoutPropagatesAndFreesKey(t *testing.T) {
	backend := &fakeBackend{
		searchFn: func(ctx context.Context, q search.Query) ([]search.Part, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{RequestTimeout: 50 * time.Millisecond})
	q := search.Query{Text: "igniter"}

	_, err := svc.Search(context.Background(), search.Caller{}, q)
	var te *search.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}

	backend.mu.Lock()
	backend.searchFn = nil
	backend.mu.Unlock()
	if _, err := svc.Search(context.Background(), search.Caller{}, q); err != nil {
		t.Fatalf("retry after timeout should run fresh: %v", err)
	}
}

func TestSuggestDegradesOnRateLimit(t *testing.T) {
	backend := &fakeBackend{}
	limits := generousLimits()
	limits[ratelimit.Suggestions] = ratelimit.Config{MaxRequests: 1, Window: time.Minute}
	events := notify.NewDispatcher()
	defer events.Close()
	ch, cancel := events.Subscribe(4)
	defer cancel()

	svc := newTestService(t, backend, limits, events, search.Config{})

	if _, err := svc.Suggest(context.Background(), search.Caller{}, "igniter", 8); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Suggest(context.Background(), search.Caller{}, "valve", 8)
	if err != nil {
		t.Fatalf("suggestions degrade instead of erroring, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty suggestions, got %d", len(got))
	}
	if _, _, sg, _ := backend.counts(); sg != 1 {
		t.Fatalf("rate-limited suggest must not hit the backend, got %d calls", sg)
	}

	select {
	case e := <-ch:
		if e.Category != "suggestions" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("the event still fires even though the caller sees no error")
	}
}

func TestSuggestCaches(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})

	for i := 0; i < 2; i++ {
		got, err := svc.Suggest(context.Background(), search.Caller{}, "igniter", 8)
		if err != nil || len(got) != 1 {
			t.Fatalf("unexpected result: %v %d", err, len(got))
		}
	}
	if _, _, sg, _ := backend.counts(); sg != 1 {
		t.Fatalf("expected one backend call, got %d", sg)
	}
}

func TestSuggestDegradesOnRemoteError(t *testing.T) {
	backend := &fakeBackend{
		suggestFn: func(ctx context.Context, prefix string, limit int) ([]search.Suggestion, error) {
			return nil, errors.New("rpc exploded")
		},
	}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})

	got, err := svc.Suggest(context.Background(), search.Caller{}, "igniter", 8)
	if err != nil {
		t.Fatalf("suggest errors are swallowed, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty suggestions, got %d", len(got))
	}
}

func TestValidateBulkBounds(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{MaxBulkLines: 2})

	if _, err := svc.ValidateBulk(context.Background(), search.Caller{}, nil, ""); !errors.Is(err, search.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if _, err := svc.ValidateBulk(context.Background(), search.Caller{}, []string{" ", ""}, ""); !errors.Is(err, search.ErrEmptyBatch) {
		t.Fatalf("blank-only batch should be empty, got %v", err)
	}
	if _, err := svc.ValidateBulk(context.Background(), search.Caller{}, []string{"a", "b", "c"}, ""); !errors.Is(err, search.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if _, _, _, bc := backend.counts(); bc != 0 {
		t.Fatal("invalid batches must cost no network call")
	}
}

func TestValidateBulkRateLimitPropagates(t *testing.T) {
	backend := &fakeBackend{}
	limits := generousLimits()
	limits[ratelimit.Bulk] = ratelimit.Config{MaxRequests: 1, Window: time.Minute}
	svc := newTestService(t, backend, limits, nil, search.Config{})

	if _, err := svc.ValidateBulk(context.Background(), search.Caller{UserID: "u1"}, []string{"IGN-1"}, ""); err != nil {
		t.Fatal(err)
	}
	_, err := svc.ValidateBulk(context.Background(), search.Caller{UserID: "u1"}, []string{"IGN-2"}, "")
	var rle *search.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("bulk limit must surface as RateLimitError, got %v", err)
	}
}

func TestValidateBulkRemoteErrorPropagates(t *testing.T) {
	backend := &fakeBackend{
		bulkFn: func(ctx context.Context, partNumbers []string, customerID string) ([]search.BulkValidation, error) {
			return nil, errors.New("validator down")
		},
	}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})

	if _, err := svc.ValidateBulk(context.Background(), search.Caller{}, []string{"IGN-1"}, ""); err == nil {
		t.Fatal("bulk validation errors are never swallowed")
	}
}

func TestValidateBulkTrimsLines(t *testing.T) {
	var got []string
	backend := &fakeBackend{
		bulkFn: func(ctx context.Context, partNumbers []string, customerID string) ([]search.BulkValidation, error) {
			got = partNumbers
			return nil, nil
		},
	}
	svc := newTestService(t, backend, generousLimits(), nil, search.Config{})

	if _, err := svc.ValidateBulk(context.Background(), search.Caller{}, []string{" IGN-1 ", "", "IGN-2"}, "cust-9"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "IGN-1" || got[1] != "IGN-2" {
		t.Fatalf("expected trimmed non-blank lines, got %v", got)
	}
}
