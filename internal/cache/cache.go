package cache

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Helion39/Clarify.id/internal/collector"
	"github.com/Helion39/Clarify.id/internal/processor"
	"golang.org/x/sync/singleflight"
)

// GeneralKey 未指定分类时的哨兵槽位
const GeneralKey = "general"

// 单个提供方在一轮刷新里允许的最长耗时；超时只拖慢本轮，不影响其它槽位
const fetchTimeout = 20 * time.Second

// ArticleSaver 刷新结果的持久化入口。入库失败不影响缓存对外服务。
type ArticleSaver interface {
	SaveFromProvider(a processor.Article) error
}

// slot 每个分类一个缓存槽位；timestamp 为零值表示尚未填充
type slot struct {
	articles  []processor.Article
	timestamp time.Time
}

// Service 分类缓存与刷新编排。
// 同一分类的并发刷新通过 singleflight 合并为一次，不同分类互不影响。
type Service struct {
	mu    sync.RWMutex
	slots map[string]*slot

	fetchers []collector.Fetcher
	norm     *processor.Normalizer
	store    ArticleSaver
	ttl      time.Duration

	group singleflight.Group
	now   func() time.Time
}

func New(fetchers []collector.Fetcher, norm *processor.Normalizer, store ArticleSaver, ttl time.Duration) *Service {
	return &Service{
		slots:    make(map[string]*slot),
		fetchers: fetchers,
		norm:     norm,
		store:    store,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Key 规范化分类键；空串与 "all" 都映射到哨兵槽位
func Key(slug string) string {
	s := strings.ToLower(strings.TrimSpace(slug))
	if s == "" || s == "all" {
		return GeneralKey
	}
	return s
}

// Get 返回某分类当前可用的文章列表。
// 槽位过期或为空时先做一轮刷新（并发请求共享同一轮），之后返回已提交的数据；
// 即便刷新全军覆没，调用方也能拿到当前最好的结果而不是错误。
func (s *Service) Get(ctx context.Context, slug string) []processor.Article {
	key := Key(slug)

	if arts, ok := s.freshSnapshot(key); ok {
		return arts
	}

	if _, err, _ := s.group.Do(key, func() (any, error) {
		return nil, s.refresh(ctx, key)
	}); err != nil {
		log.Printf("cache: refresh %s error: %v", key, err)
	}

	return s.Snapshot(key)
}

// Snapshot 返回槽位当前已提交的数据副本，不触发刷新
func (s *Service) Snapshot(slug string) []processor.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[Key(slug)]
	if !ok {
		return nil
	}
	return append([]processor.Article(nil), sl.articles...)
}

// CachedArticles 返回所有槽位已提交的文章（跨槽位按 id 查找用）
func (s *Service) CachedArticles() []processor.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []processor.Article
	for _, sl := range s.slots {
		out = append(out, sl.articles...)
	}
	return out
}

// Clear 清空某个分类的槽位；slug 为空时清空全部。
// 下一次读取会同步触发刷新。
func (s *Service) Clear(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slug == "" {
		s.slots = make(map[string]*slot)
		return
	}
	delete(s.slots, Key(slug))
}

// Keys 返回当前存在的槽位键
func (s *Service) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	return keys
}

func (s *Service) freshSnapshot(key string) ([]processor.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[key]
	if !ok || sl.timestamp.IsZero() {
		return nil, false
	}
	if s.now().Sub(sl.timestamp) >= s.ttl {
		return nil, false
	}
	return append([]processor.Article(nil), sl.articles...), true
}

// refresh 对一个分类做一轮完整刷新：并行拉取所有提供方，单个失败只降级为空，
// 归一化、去重、尽力入库后整体提交。
func (s *Service) refresh(ctx context.Context, key string) error {
	// 可能有请求在排队等待期间别人已刷新完成，避免背靠背重复拉取
	if _, ok := s.freshSnapshot(key); ok {
		return nil
	}

	// 刷新一旦开始就与触发它的请求解耦：客户端断开不能取消拉取，
	// 否则会把空结果带着新时间戳提交，整个 TTL 周期都只能读到空槽位
	ctx = context.WithoutCancel(ctx)

	term := searchTermFor(key)
	hint := ""
	if key != GeneralKey {
		hint = key
	}

	// 结果按提供方注册序存放，保证去重时先注册的提供方优先，
	// 与各提供方的完成先后无关
	rawResults := make([][]collector.RawArticle, len(s.fetchers))

	var wg sync.WaitGroup
	for i, f := range s.fetchers {
		wg.Add(1)
		go func(i int, f collector.Fetcher) {
			defer wg.Done()

			fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			items, err := f.Fetch(fctx, term, hint)
			if err != nil {
				log.Printf("cache: refresh %s: fetch %s error: %v", key, f.Name(), err)
				return
			}
			rawResults[i] = items
		}(i, f)
	}
	wg.Wait()

	var normalized []processor.Article
	for i, f := range s.fetchers {
		for _, raw := range rawResults[i] {
			if a, ok := s.norm.Normalize(raw, f.Name(), hint); ok {
				normalized = append(normalized, a)
			}
		}
	}

	deduped := processor.Deduplicate(normalized)

	for _, a := range deduped {
		if err := s.store.SaveFromProvider(a); err != nil {
			// 入库冲突只记录；该条仍然保留在缓存结果里
			log.Printf("cache: refresh %s: persist %s: %v", key, a.URL, err)
		}
	}

	// 所有提供方都失败时也提交空列表，让槽位回到已填充状态，
	// TTL 过后下一次读取会再试
	s.commit(key, deduped)

	log.Printf("cache: refresh %s done, %d articles", key, len(deduped))
	return nil
}

func (s *Service) commit(key string, articles []processor.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{}
		s.slots[key] = sl
	}
	sl.articles = articles
	sl.timestamp = s.now()
}

// searchTermFor 由分类键构造提供方检索词
func searchTermFor(key string) string {
	if key == GeneralKey {
		return "latest news"
	}
	return strings.ReplaceAll(key, "-", " ") + " news"
}
