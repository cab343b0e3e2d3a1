package processor

import (
	"regexp"
	"strings"
	"time"

	"github.com/Helion39/Clarify.id/internal/collector"
	"github.com/Helion39/Clarify.id/internal/trust"
	"github.com/google/uuid"
)

// Metadata 文章的附加信息，随文章一起序列化给前端
type Metadata struct {
	Priority    string   `json:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	APISource   string   `json:"apiSource,omitempty"`
	OriginalURL string   `json:"originalUrl,omitempty"`
}

// Article 归一化后的统一文章结构，缓存与 API 响应均使用它
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"imageUrl"`
	PublishedAt time.Time `json:"publishedAt"`
	Source      string    `json:"source"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	IsVerified  bool      `json:"isVerified"`
	Metadata    Metadata  `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// 提供方下架内容的占位标题，出现即整条丢弃
const removedMarker = "[removed]"

// 常用分类 slug
const (
	CategoryTechnology    = "technology"
	CategorySports        = "sports"
	CategoryEntertainment = "entertainment"
	CategoryMedia         = "media"
	CategoryBusiness      = "business"
)

// 分类关键词族，按优先级排列，先命中先得；都不命中时落到 technology。
// 这是尽力而为的启发式，最终正确性由查询侧的严格分类过滤兜底。
var categoryKeywords = []struct {
	slug     string
	keywords []string
}{
	{CategorySports, []string{
		"football", "soccer", "basketball", "tennis", "cricket", "olympic",
		"championship", "league", "tournament", "athlete", "world cup",
	}},
	{CategoryEntertainment, []string{
		"movie", "film", "music", "celebrity", "hollywood", "concert",
		"festival", "box office", "actor", "actress", "streaming series",
	}},
	{CategoryMedia, []string{
		"journalism", "journalist", "newsroom", "broadcast", "newspaper",
		"press freedom", "publisher", "media company",
	}},
	{CategoryBusiness, []string{
		"market", "stock", "economy", "startup", "finance", "investment",
		"earnings", "inflation", "merger", "revenue", "bank",
	}},
}

var (
	// 来源名里的括号注释，例如 "Reuters (UK)"
	parenRe = regexp.MustCompile(`\s*\([^)]*\)`)
	// 常见公司后缀
	suffixRe = regexp.MustCompile(`(?i)[,\s]+(inc|llc|corp|corporation|ltd|limited|co)\.?\s*$`)
)

// Normalizer 将提供方的候选文章转为统一结构，并做校验、清洗与可信标记
type Normalizer struct {
	registry *trust.Registry
	now      func() time.Time
}

func NewNormalizer(registry *trust.Registry) *Normalizer {
	return &Normalizer{
		registry: registry,
		now:      time.Now,
	}
}

// Normalize 处理单条候选。返回 false 表示该条被拒绝（缺标题/缺链接/已下架），
// 这是过滤决策而不是错误。
func (n *Normalizer) Normalize(raw collector.RawArticle, provider, categoryHint string) (Article, bool) {
	title := strings.TrimSpace(raw.Title)
	url := strings.TrimSpace(raw.URL)

	if title == "" || url == "" {
		return Article{}, false
	}
	if strings.Contains(strings.ToLower(title), removedMarker) {
		return Article{}, false
	}

	source := CleanSourceName(raw.Source)
	if source == "" {
		source = "Unknown"
	}

	category := strings.ToLower(strings.TrimSpace(categoryHint))
	if category == "" {
		category = inferCategory(title + " " + raw.Description)
	}

	description := strings.TrimSpace(raw.Description)
	content := strings.TrimSpace(raw.Content)
	if content == "" {
		content = description
	}

	author := strings.TrimSpace(raw.Author)
	if author == "" {
		author = defaultAuthor(provider)
	}

	tags := []string{category}
	if pc := strings.ToLower(strings.TrimSpace(raw.Category)); pc != "" && pc != category {
		tags = append(tags, pc)
	}

	return Article{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Content:     content,
		URL:         url,
		ImageURL:    strings.TrimSpace(raw.ImageURL),
		PublishedAt: raw.PublishedAt,
		Source:      source,
		Author:      author,
		Category:    category,
		IsVerified:  n.registry.IsVerified(source),
		Metadata: Metadata{
			Priority:    "medium",
			Tags:        tags,
			APISource:   provider,
			OriginalURL: url,
		},
		CreatedAt: n.now(),
	}, true
}

// CleanSourceName 去掉括号注释与常见公司后缀后返回展示用来源名
func CleanSourceName(source string) string {
	s := parenRe.ReplaceAllString(source, "")
	// 后缀可能叠加出现，例如 "Example News Co., Ltd."
	for {
		stripped := suffixRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return strings.TrimSpace(s)
}

func inferCategory(text string) string {
	lower := strings.ToLower(text)
	for _, family := range categoryKeywords {
		for _, kw := range family.keywords {
			if strings.Contains(lower, kw) {
				return family.slug
			}
		}
	}
	return CategoryTechnology
}

func defaultAuthor(provider string) string {
	switch provider {
	case "gnews":
		return "GNews Desk"
	default:
		return "Unknown Author"
	}
}

// Deduplicate 按 URL 去重，保留首次出现的条目。
// 先后顺序由上游的提供方调用序决定，先被查询的提供方优先。
func Deduplicate(articles []Article) []Article {
	out := make([]Article, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))

	for _, a := range articles {
		if _, ok := seen[a.URL]; ok {
			continue
		}
		seen[a.URL] = struct{}{}
		out = append(out, a)
	}

	return out
}
