package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Helion39/Clarify.id/internal/processor"
	"github.com/Helion39/Clarify.id/internal/trust"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Article 文章的入库结构。库按产品约定是进程内易失的（默认内存 sqlite），
// 重启后由提供方拉取重建。
type Article struct {
	ID          string            `gorm:"primaryKey;size:36" json:"id"`
	Title       string            `gorm:"size:512;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	Content     string            `gorm:"type:text" json:"content"`
	URL         string            `gorm:"size:1024;uniqueIndex;not null" json:"url"`
	ImageURL    string            `gorm:"size:1024" json:"imageUrl"`
	PublishedAt time.Time         `gorm:"index" json:"publishedAt"`
	Source      string            `gorm:"size:256;index" json:"source"`
	Author      string            `gorm:"size:256" json:"author"`
	Category    string            `gorm:"size:64;index" json:"category"`
	IsVerified  bool              `json:"isVerified"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type Category struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Name     string `gorm:"size:128;uniqueIndex" json:"name"`
	Slug     string `gorm:"size:64;uniqueIndex" json:"slug"`
	Icon     string `gorm:"size:64" json:"icon"`
	Color    string `gorm:"size:32" json:"color"`
	IsActive bool   `gorm:"index" json:"isActive"`
}

type Source struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Name        string `gorm:"size:128;uniqueIndex" json:"name"`
	Domain      string `gorm:"size:256" json:"domain"`
	IsVerified  bool   `gorm:"index" json:"isVerified"`
	TrustRating string `gorm:"size:32" json:"trustRating"`
}

// DefaultCategories 启动时种子化的分类
func DefaultCategories() []Category {
	return []Category{
		{Name: "All News", Slug: "all", Icon: "newspaper", Color: "red", IsActive: true},
		{Name: "Technology", Slug: "technology", Icon: "laptop-code", Color: "blue", IsActive: true},
		{Name: "Politics", Slug: "politics", Icon: "university", Color: "red", IsActive: true},
		{Name: "Business", Slug: "business", Icon: "chart-line", Color: "yellow", IsActive: true},
		{Name: "Science", Slug: "science", Icon: "flask", Color: "purple", IsActive: true},
		{Name: "Health", Slug: "health", Icon: "heartbeat", Color: "green", IsActive: true},
		{Name: "Sports", Slug: "sports", Icon: "futbol", Color: "orange", IsActive: true},
		{Name: "Entertainment", Slug: "entertainment", Icon: "film", Color: "pink", IsActive: true},
		{Name: "World", Slug: "world", Icon: "globe", Color: "gray", IsActive: true},
	}
}

// ErrDuplicateURL 表示同一 URL 的文章已存在
var ErrDuplicateURL = errors.New("article url already exists")

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Article{}, &Category{}, &Source{}); err != nil {
		return nil, err
	}

	// Redis 只做查询结果的二级缓存，未配置或不可用时自动退化为直查 DB
	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("warn: redis ping failed: %v", err)
		}
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// EnsureCategory 确保某个分类存在
func (s *Store) EnsureCategory(c Category) (*Category, error) {
	existing := &Category{}
	if err := s.DB.Where("slug = ?", c.Slug).First(existing).Error; err == nil {
		return existing, nil
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.DB.Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// EnsureSource 确保白名单来源存在
func (s *Store) EnsureSource(src trust.Source) (*Source, error) {
	existing := &Source{}
	if err := s.DB.Where("name = ?", src.Name).First(existing).Error; err == nil {
		return existing, nil
	}

	m := &Source{
		ID:          uuid.NewString(),
		Name:        src.Name,
		Domain:      src.Domain,
		IsVerified:  src.IsVerified,
		TrustRating: src.TrustRating,
	}
	if err := s.DB.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// SaveFromProvider 以 URL 作为幂等键保存一条归一化文章；已存在时仅更新可变字段。
// 入库失败不影响缓存侧继续对外提供这条数据，由调用方决定是否忽略错误。
func (s *Store) SaveFromProvider(a processor.Article) error {
	m := toModel(a)
	if err := s.DB.Where("url = ?", m.URL).FirstOrCreate(&m).Error; err != nil {
		return fmt.Errorf("save article %s: %w", m.URL, err)
	}

	return s.DB.Model(&Article{ID: m.ID}).Updates(map[string]any{
		"title":        a.Title,
		"description":  a.Description,
		"content":      a.Content,
		"image_url":    a.ImageURL,
		"published_at": a.PublishedAt,
		"is_verified":  a.IsVerified,
	}).Error
}

// CreateArticle 显式创建一条文章（API 集成用），分配 id 与创建时间
func (s *Store) CreateArticle(a processor.Article) (processor.Article, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	m := toModel(a)
	if err := s.DB.Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return processor.Article{}, fmt.Errorf("create article %s: %w", m.URL, ErrDuplicateURL)
		}
		return processor.Article{}, fmt.Errorf("create article: %w", err)
	}
	return toDomain(m), nil
}

// GetArticleByID 按 id 查询，未找到时返回 (nil, nil)
func (s *Store) GetArticleByID(id string) (*processor.Article, error) {
	var m Article
	if err := s.DB.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	a := toDomain(m)
	return &a, nil
}

// articleColumns 外部可改字段的 JSON 键到列名的映射；id/createdAt 不可改
var articleColumns = map[string]string{
	"title":       "title",
	"description": "description",
	"content":     "content",
	"url":         "url",
	"imageUrl":    "image_url",
	"publishedAt": "published_at",
	"source":      "source",
	"author":      "author",
	"category":    "category",
	"isVerified":  "is_verified",
	"metadata":    "metadata",
}

// UpdateArticle 部分更新，未找到时返回 (nil, nil)。
// updates 的键是 API 层的 camelCase 字段名，未知键忽略。
func (s *Store) UpdateArticle(id string, updates map[string]any) (*processor.Article, error) {
	var m Article
	if err := s.DB.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	cols := make(map[string]any, len(updates))
	for k, v := range updates {
		col, ok := articleColumns[k]
		if !ok {
			continue
		}
		switch col {
		case "published_at":
			// JSON 里的时间是 RFC3339 字符串
			if str, ok := v.(string); ok {
				t, err := time.Parse(time.RFC3339, str)
				if err != nil {
					return nil, fmt.Errorf("update article: bad publishedAt %q: %w", str, err)
				}
				v = t
			}
		case "metadata":
			if mv, ok := v.(map[string]any); ok {
				v = datatypes.JSONMap(mv)
			}
		}
		cols[col] = v
	}

	if len(cols) > 0 {
		if err := s.DB.Model(&m).Updates(cols).Error; err != nil {
			return nil, err
		}
		if err := s.DB.Where("id = ?", id).First(&m).Error; err != nil {
			return nil, err
		}
	}

	a := toDomain(m)
	return &a, nil
}

func (s *Store) DeleteArticle(id string) (bool, error) {
	res := s.DB.Where("id = ?", id).Delete(&Article{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SearchParams 库内检索参数（子串匹配，非全文检索）
type SearchParams struct {
	Query    string
	Category string
	Source   string
	Limit    int
	Offset   int
}

// SearchArticles 按分类/来源/关键词子串检索，按发布时间倒序，带 Redis 二级缓存
func (s *Store) SearchArticles(p SearchParams) ([]processor.Article, error) {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	ctx := context.Background()
	cacheKey := fmt.Sprintf("news:search:%s:%s:%s:%d:%d", p.Query, p.Category, p.Source, p.Limit, p.Offset)

	// L2: Redis 缓存
	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Article
			if err := json.Unmarshal(bs, &cached); err == nil {
				return toDomainList(cached), nil
			}
		}
	}

	db := s.DB.Model(&Article{})

	if c := strings.ToLower(strings.TrimSpace(p.Category)); c != "" && c != "all" {
		db = db.Where("LOWER(category) = ?", c)
	}
	if src := strings.ToLower(strings.TrimSpace(p.Source)); src != "" {
		db = db.Where("LOWER(source) = ?", src)
	}
	if q := strings.ToLower(strings.TrimSpace(p.Query)); q != "" {
		like := "%" + q + "%"
		db = db.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(content) LIKE ?", like, like, like)
	}

	var list []Article
	if err := db.Order("published_at DESC").Offset(p.Offset).Limit(p.Limit).Find(&list).Error; err != nil {
		return nil, err
	}

	// 回写缓存（5 分钟，减轻热门检索词的 DB 压力）
	const listCacheTTL = 5 * time.Minute
	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}

	return toDomainList(list), nil
}

// ListCategories 返回启用中的分类
func (s *Store) ListCategories() ([]Category, error) {
	var list []Category
	if err := s.DB.Where("is_active = ?", true).Order("name ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListSources 返回来源，verifiedOnly 为 true 时只返回可信来源
func (s *Store) ListSources(verifiedOnly bool) ([]Source, error) {
	db := s.DB.Model(&Source{})
	if verifiedOnly {
		db = db.Where("is_verified = ?", true)
	}

	var list []Source
	if err := db.Order("name ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func toModel(a processor.Article) Article {
	meta := datatypes.JSONMap{}
	if a.Metadata.Priority != "" {
		meta["priority"] = a.Metadata.Priority
	}
	if len(a.Metadata.Tags) > 0 {
		tags := make([]any, 0, len(a.Metadata.Tags))
		for _, t := range a.Metadata.Tags {
			tags = append(tags, t)
		}
		meta["tags"] = tags
	}
	if a.Metadata.APISource != "" {
		meta["apiSource"] = a.Metadata.APISource
	}
	if a.Metadata.OriginalURL != "" {
		meta["originalUrl"] = a.Metadata.OriginalURL
	}

	return Article{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Content:     a.Content,
		URL:         a.URL,
		ImageURL:    a.ImageURL,
		PublishedAt: a.PublishedAt,
		Source:      a.Source,
		Author:      a.Author,
		Category:    a.Category,
		IsVerified:  a.IsVerified,
		Metadata:    meta,
		CreatedAt:   a.CreatedAt,
	}
}

func toDomain(m Article) processor.Article {
	meta := processor.Metadata{}
	if v, ok := m.Metadata["priority"].(string); ok {
		meta.Priority = v
	}
	if v, ok := m.Metadata["apiSource"].(string); ok {
		meta.APISource = v
	}
	if v, ok := m.Metadata["originalUrl"].(string); ok {
		meta.OriginalURL = v
	}
	if raw, ok := m.Metadata["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				meta.Tags = append(meta.Tags, s)
			}
		}
	}

	return processor.Article{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Content:     m.Content,
		URL:         m.URL,
		ImageURL:    m.ImageURL,
		PublishedAt: m.PublishedAt,
		Source:      m.Source,
		Author:      m.Author,
		Category:    m.Category,
		IsVerified:  m.IsVerified,
		Metadata:    meta,
		CreatedAt:   m.CreatedAt,
	}
}

func toDomainList(models []Article) []processor.Article {
	out := make([]processor.Article, 0, len(models))
	for _, m := range models {
		out = append(out, toDomain(m))
	}
	return out
}
