package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const (
	newsAPIBaseURL       = "https://newsapi.org/v2"
	newsAPIPageSize      = 10
	newsAPIMaxBytes      = 1 << 20 // 1MB
	newsAPIClientTimeout = 10 * time.Second
)

// top-headlines 仅支持这组分类，其余分类回落到关键词检索
var newsAPICategories = map[string]bool{
	"business": true, "entertainment": true, "general": true,
	"health": true, "science": true, "sports": true, "technology": true,
}

// NewsAPIFetcher 通过 NewsAPI 拉取头条/检索结果
type NewsAPIFetcher struct {
	APIKey  string
	BaseURL string // 测试时可覆盖，为空时用官方地址
}

func NewNewsAPI(apiKey string) *NewsAPIFetcher {
	return &NewsAPIFetcher{APIKey: apiKey}
}

func (f *NewsAPIFetcher) Name() string {
	return "newsapi"
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

func (f *NewsAPIFetcher) Fetch(ctx context.Context, query, category string) ([]RawArticle, error) {
	if f.APIKey == "" {
		return nil, fmt.Errorf("newsapi: api key not configured")
	}

	base := f.BaseURL
	if base == "" {
		base = newsAPIBaseURL
	}

	// 支持的分类走 top-headlines，其余用 everything 做关键词检索
	q := url.Values{}
	q.Set("language", "en")
	q.Set("pageSize", fmt.Sprint(newsAPIPageSize))
	q.Set("apiKey", f.APIKey)

	var endpoint string
	if newsAPICategories[category] {
		endpoint = base + "/top-headlines"
		q.Set("category", category)
	} else {
		endpoint = base + "/everything"
		q.Set("q", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: build request: %w", err)
	}

	client := &http.Client{Timeout: newsAPIClientTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi: unexpected status %d", resp.StatusCode)
	}

	var payload newsAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, newsAPIMaxBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("newsapi: decode response: %w", err)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("newsapi: api error %s: %s", payload.Code, payload.Message)
	}

	log.Printf("newsapi: fetched %d articles (total=%d)", len(payload.Articles), payload.TotalResults)
	return f.convert(payload.Articles), nil
}

func (f *NewsAPIFetcher) convert(items []newsAPIArticle) []RawArticle {
	fetchedAt := time.Now()
	out := make([]RawArticle, 0, len(items))
	for _, it := range items {
		out = append(out, RawArticle{
			Title:       it.Title,
			Description: it.Description,
			Content:     it.Content,
			URL:         it.URL,
			ImageURL:    it.URLToImage,
			Author:      it.Author,
			Source:      it.Source.Name,
			PublishedAt: parseArticleTime(it.PublishedAt, fetchedAt),
		})
	}
	return out
}
