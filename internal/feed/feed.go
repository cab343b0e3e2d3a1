package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Helion39/Clarify.id/internal/cache"
	"github.com/Helion39/Clarify.id/internal/processor"
	"github.com/Helion39/Clarify.id/internal/storage"
)

// Params 查询合成参数
type Params struct {
	// 请求的分类 slug；为空或包含 "all" 时走哨兵槽位且不做严格分类过滤
	Categories []string
	// 标题/摘要/正文的子串过滤
	Query string
	// 来源过滤（大小写不敏感的全等）
	Source string
	// all / daily / weekly / monthly / yearly
	TimeFilter string

	Page      int
	Limit     int
	Offset    int
	Paginated bool
}

// Paginated 分页响应信封
type Paginated struct {
	Articles        []processor.Article `json:"articles"`
	TotalCount      int                 `json:"totalCount"`
	CurrentPage     int                 `json:"currentPage"`
	TotalPages      int                 `json:"totalPages"`
	HasNextPage     bool                `json:"hasNextPage"`
	HasPreviousPage bool                `json:"hasPreviousPage"`
}

// RefreshResult 管理端刷新操作的确认信息
type RefreshResult struct {
	Message       string    `json:"message"`
	ArticlesAdded int       `json:"articlesAdded"`
	RefreshedAt   time.Time `json:"refreshedAt"`
}

// Service 面向 HTTP 层的查询合成器：多分类并集、严格分类过滤、
// 时间窗过滤、按发布时间排序与分页
type Service struct {
	cache *cache.Service
	store *storage.Store
	now   func() time.Time
}

func New(c *cache.Service, s *storage.Store) *Service {
	return &Service{
		cache: c,
		store: s,
		now:   time.Now,
	}
}

// GetFeed 返回合成后的文章列表。Paginated 为 true 时返回分页信封，
// 否则返回扁平列表（可带 legacy 的 offset/limit 截取）。
func (s *Service) GetFeed(ctx context.Context, p Params) (*Paginated, []processor.Article) {
	list := s.compose(ctx, p)

	if p.Paginated {
		return paginate(list, p.Page, p.Limit), nil
	}

	if p.Limit > 0 {
		start := p.Offset
		if start < 0 {
			start = 0
		}
		if start > len(list) {
			start = len(list)
		}
		end := start + p.Limit
		if end > len(list) {
			end = len(list)
		}
		list = list[start:end]
	}
	if list == nil {
		list = []processor.Article{}
	}
	return nil, list
}

func (s *Service) compose(ctx context.Context, p Params) []processor.Article {
	keys, explicit := requestedKeys(p.Categories)

	// 每个分类独立走缓存，再做跨分类并集去重：
	// 同一条新闻被缓存到两个分类下时不能重复计数
	var union []processor.Article
	for _, k := range keys {
		union = append(union, s.cache.Get(ctx, k)...)
	}
	union = processor.Deduplicate(union)

	// 严格分类过滤：启发式分类与跨分类缓存可能混入不匹配的条目，
	// 以文章自身的分类字段为准做一次校正
	if explicit {
		union = filterByCategories(union, keys)
	}

	if q := strings.ToLower(strings.TrimSpace(p.Query)); q != "" {
		union = filterInPlace(union, func(a processor.Article) bool {
			return strings.Contains(strings.ToLower(a.Title), q) ||
				strings.Contains(strings.ToLower(a.Description), q) ||
				strings.Contains(strings.ToLower(a.Content), q)
		})
	}

	if src := strings.ToLower(strings.TrimSpace(p.Source)); src != "" {
		union = filterInPlace(union, func(a processor.Article) bool {
			return strings.ToLower(a.Source) == src
		})
	}

	if cutoff, ok := s.cutoff(p.TimeFilter); ok {
		union = filterInPlace(union, func(a processor.Article) bool {
			return !a.PublishedAt.Before(cutoff)
		})
	}

	// 稳定排序：发布时间相同的保持并集原序
	sort.SliceStable(union, func(i, j int) bool {
		return union[i].PublishedAt.After(union[j].PublishedAt)
	})

	return union
}

// GetArticle 按 id 查找。先查库；API 拉取的文章可能只存在于缓存槽位，
// 库中未命中时再扫一遍缓存。未找到返回 (nil, nil)。
func (s *Service) GetArticle(id string) (*processor.Article, error) {
	a, err := s.store.GetArticleByID(id)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return a, nil
	}

	for _, c := range s.cache.CachedArticles() {
		if c.ID == id {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

// CreateArticle 透传到库（API 集成入口）
func (s *Service) CreateArticle(a processor.Article) (processor.Article, error) {
	return s.store.CreateArticle(a)
}

// Refresh 清空指定分类（为空时全部启用中的分类）的缓存槽位并同步刷新一轮
func (s *Service) Refresh(ctx context.Context, category string) (*RefreshResult, error) {
	var slugs []string
	if category != "" {
		slugs = []string{cache.Key(category)}
	} else {
		cats, err := s.store.ListCategories()
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		slugs = append(slugs, cache.GeneralKey)
		for _, c := range cats {
			if c.Slug == "all" {
				continue
			}
			slugs = append(slugs, c.Slug)
		}
	}

	total := 0
	for _, slug := range slugs {
		s.cache.Clear(slug)
		total += len(s.cache.Get(ctx, slug))
	}

	return &RefreshResult{
		Message:       fmt.Sprintf("Successfully refreshed %d articles", total),
		ArticlesAdded: total,
		RefreshedAt:   s.now(),
	}, nil
}

// requestedKeys 规范化请求的分类键。
// explicit 为 false 表示未指定具体分类（空或含 "all"），此时跳过严格分类过滤。
func requestedKeys(categories []string) (keys []string, explicit bool) {
	seen := make(map[string]struct{})
	for _, c := range categories {
		k := strings.ToLower(strings.TrimSpace(c))
		if k == "" {
			continue
		}
		if k == "all" {
			return []string{cache.GeneralKey}, false
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	if len(keys) == 0 {
		return []string{cache.GeneralKey}, false
	}
	return keys, true
}

// filterByCategories 保留自身分类命中请求键、或标签包含请求键子串的文章
func filterByCategories(list []processor.Article, keys []string) []processor.Article {
	return filterInPlace(list, func(a processor.Article) bool {
		for _, k := range keys {
			if a.Category == k {
				return true
			}
			for _, tag := range a.Metadata.Tags {
				if strings.Contains(strings.ToLower(tag), k) {
					return true
				}
			}
		}
		return false
	})
}

func filterInPlace(list []processor.Article, keep func(processor.Article) bool) []processor.Article {
	out := list[:0]
	for _, a := range list {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// cutoff 计算时间窗起点；ok 为 false 表示不过滤
func (s *Service) cutoff(filter string) (time.Time, bool) {
	now := s.now()
	switch filter {
	case "", "all":
		return time.Time{}, false
	case "daily":
		// 当天零点，而不是 24 小时前
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), true
	case "weekly":
		return now.AddDate(0, 0, -7), true
	case "monthly":
		return now.AddDate(0, -1, 0), true
	case "yearly":
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

func paginate(list []processor.Article, page, limit int) *Paginated {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	total := len(list)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	articles := list[start:end]
	if articles == nil {
		articles = []processor.Article{}
	}

	return &Paginated{
		Articles:        articles,
		TotalCount:      total,
		CurrentPage:     page,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1 && total > 0,
	}
}
