package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Helion39/Clarify.id/internal/collector"
	"github.com/Helion39/Clarify.id/internal/processor"
	"github.com/Helion39/Clarify.id/internal/trust"
)

type fakeFetcher struct {
	name  string
	items []collector.RawArticle
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(ctx context.Context, query, category string) ([]collector.RawArticle, error) {
	atomic.AddInt32(&f.calls, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeFetcher) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

type fakeSaver struct {
	mu      sync.Mutex
	saved   []string
	failURL string
}

func (s *fakeSaver) SaveFromProvider(a processor.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.URL == s.failURL {
		return fmt.Errorf("duplicate key: %s", a.URL)
	}
	s.saved = append(s.saved, a.URL)
	return nil
}

func newTestService(fetchers []collector.Fetcher, saver ArticleSaver, ttl time.Duration) *Service {
	norm := processor.NewNormalizer(trust.NewRegistry(trust.DefaultSources()))
	return New(fetchers, norm, saver, ttl)
}

func TestGetColdSlotNormalizesAndDedups(t *testing.T) {
	now := time.Now()
	providerA := &fakeFetcher{name: "newsapi", items: []collector.RawArticle{
		{Title: "T1", URL: "https://example.com/u1", Source: "Reuters", PublishedAt: now},
		{Title: "[Removed]", URL: "https://example.com/u2", PublishedAt: now},
	}}
	providerB := &fakeFetcher{name: "gnews", items: []collector.RawArticle{
		{Title: "T1-dup", URL: "https://example.com/u1", Source: "Other", PublishedAt: now},
	}}

	svc := newTestService([]collector.Fetcher{providerA, providerB}, &fakeSaver{}, time.Minute)

	got := svc.Get(context.Background(), "technology")
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 article after normalize+dedup, got %d", len(got))
	}
	// 先注册的提供方优先：标题应来自 provider A
	if got[0].URL != "https://example.com/u1" || got[0].Title != "T1" {
		t.Fatalf("first-seen-wins violated: %+v", got[0])
	}
	if got[0].Category != "technology" {
		t.Fatalf("hint not applied: %q", got[0].Category)
	}
}

func TestFreshSlotDoesNotRefetch(t *testing.T) {
	f := &fakeFetcher{name: "newsapi", items: []collector.RawArticle{
		{Title: "T1", URL: "https://example.com/u1", PublishedAt: time.Now()},
	}}
	svc := newTestService([]collector.Fetcher{f}, &fakeSaver{}, time.Minute)

	_ = svc.Get(context.Background(), "technology")
	_ = svc.Get(context.Background(), "technology")

	if f.callCount() != 1 {
		t.Fatalf("fresh slot must not refetch, calls = %d", f.callCount())
	}
}

func TestTTLExpiryTriggersRefresh(t *testing.T) {
	f := &fakeFetcher{name: "newsapi", items: []collector.RawArticle{
		{Title: "T1", URL: "https://example.com/u1", PublishedAt: time.Now()},
	}}
	svc := newTestService([]collector.Fetcher{f}, &fakeSaver{}, 5*time.Minute)

	base := time.Now()
	svc.now = func() time.Time { return base }

	_ = svc.Get(context.Background(), "technology")
	if f.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", f.callCount())
	}

	// TTL 内仍然新鲜
	svc.now = func() time.Time { return base.Add(4 * time.Minute) }
	_ = svc.Get(context.Background(), "technology")
	if f.callCount() != 1 {
		t.Fatalf("slot should still be fresh, calls = %d", f.callCount())
	}

	// TTL 过后过期，触发新一轮
	svc.now = func() time.Time { return base.Add(6 * time.Minute) }
	_ = svc.Get(context.Background(), "technology")
	if f.callCount() != 2 {
		t.Fatalf("stale slot should refetch, calls = %d", f.callCount())
	}
}

func TestAllProvidersFailCommitsEmptySlot(t *testing.T) {
	fa := &fakeFetcher{name: "newsapi", err: fmt.Errorf("boom")}
	fb := &fakeFetcher{name: "gnews", err: fmt.Errorf("no credentials")}
	svc := newTestService([]collector.Fetcher{fa, fb}, &fakeSaver{}, time.Minute)

	got := svc.Get(context.Background(), "technology")
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}

	// 槽位应已提交为空列表而不是一直处于加载中：再次读取不触发新拉取
	_ = svc.Get(context.Background(), "technology")
	if fa.callCount() != 1 || fb.callCount() != 1 {
		t.Fatalf("empty commit should count as populated, calls = %d/%d", fa.callCount(), fb.callCount())
	}
}

func TestPersistConflictStillServedFromCache(t *testing.T) {
	f := &fakeFetcher{name: "newsapi", items: []collector.RawArticle{
		{Title: "T1", URL: "https://example.com/u1", PublishedAt: time.Now()},
		{Title: "T2", URL: "https://example.com/u2", PublishedAt: time.Now()},
	}}
	saver := &fakeSaver{failURL: "https://example.com/u1"}
	svc := newTestService([]collector.Fetcher{f}, saver, time.Minute)

	got := svc.Get(context.Background(), "technology")
	if len(got) != 2 {
		t.Fatalf("conflicting article must stay in cache result, got %d", len(got))
	}
	if len(saver.saved) != 1 || saver.saved[0] != "https://example.com/u2" {
		t.Fatalf("unexpected persisted set: %v", saver.saved)
	}
}

func TestCanceledCallerDoesNotPoisonSlot(t *testing.T) {
	f := &fakeFetcher{name: "newsapi", items: []collector.RawArticle{
		{Title: "T1", URL: "https://example.com/u1", Source: "Reuters", PublishedAt: time.Now()},
	}}
	svc := newTestService([]collector.Fetcher{f}, &fakeSaver{}, time.Hour)

	// 客户端在冷加载期间断开：刷新必须照常跑完，
	// 不能把空结果带着新时间戳提交进槽位
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := svc.Get(ctx, "technology")
	if len(got) != 1 {
		t.Fatalf("refresh must complete despite canceled caller, got %d articles", len(got))
	}

	// 后续存活请求读到的应是这轮的结果，而不是被污染的空槽位
	got = svc.Get(context.Background(), "technology")
	if len(got) != 1 {
		t.Fatalf("expected committed articles, got %d", len(got))
	}
	if f.callCount() != 1 {
		t.Fatalf("slot should be fresh after the detached refresh, calls = %d", f.callCount())
	}
}

func TestConcurrentGetsShareOneRefresh(t *testing.T) {
	f := &fakeFetcher{
		name:  "newsapi",
		delay: 50 * time.Millisecond,
		items: []collector.RawArticle{
			{Title: "T1", URL: "https://example.com/u1", PublishedAt: time.Now()},
		},
	}
	svc := newTestService([]collector.Fetcher{f}, &fakeSaver{}, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := svc.Get(context.Background(), "technology"); len(got) != 1 {
				t.Errorf("expected 1 article, got %d", len(got))
			}
		}()
	}
	wg.Wait()

	if f.callCount() != 1 {
		t.Fatalf("concurrent cold reads must coalesce into one refresh, calls = %d", f.callCount())
	}
}

func TestClearForcesSynchronousRefresh(t *testing.T) {
	f := &fakeFetcher{name: "newsapi", items: []collector.RawArticle{
		{Title: "T1", URL: "https://example.com/u1", PublishedAt: time.Now()},
	}}
	svc := newTestService([]collector.Fetcher{f}, &fakeSaver{}, time.Hour)

	_ = svc.Get(context.Background(), "technology")
	svc.Clear("technology")

	_ = svc.Get(context.Background(), "technology")
	if f.callCount() != 2 {
		t.Fatalf("cleared slot should refetch, calls = %d", f.callCount())
	}
}

func TestKeyNormalization(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", GeneralKey},
		{"all", GeneralKey},
		{"  Technology ", "technology"},
		{"SPORTS", "sports"},
	}
	for _, c := range cases {
		if got := Key(c.in); got != c.want {
			t.Fatalf("Key(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
