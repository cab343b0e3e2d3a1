package collector

import (
	"context"
	"time"
)

// RawArticle 各提供方经字段对齐后的候选文章，尚未清洗与校验
type RawArticle struct {
	Title       string
	Description string
	Content     string
	URL         string
	ImageURL    string
	Author      string
	Source      string
	// 提供方自带的分类（多数提供方为空）
	Category    string
	PublishedAt time.Time
}

// Fetcher 抽象每一个新闻提供方
type Fetcher interface {
	Name() string
	// Fetch 按检索词与可选分类拉取候选文章；任何传输/解析失败返回 error，
	// 由上层降级为空结果，不影响其它提供方
	Fetch(ctx context.Context, query, category string) ([]RawArticle, error)
}

// parseArticleTime 解析提供方的 RFC3339 时间，失败时用拉取时间兜底
func parseArticleTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return fallback
}
