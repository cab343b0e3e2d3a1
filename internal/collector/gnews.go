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
	gnewsBaseURL       = "https://gnews.io/api/v4"
	gnewsMaxResults    = 10
	gnewsMaxBytes      = 1 << 20 // 1MB
	gnewsClientTimeout = 10 * time.Second
)

// GNewsFetcher 通过 GNews 拉取检索结果
type GNewsFetcher struct {
	APIKey  string
	BaseURL string
}

func NewGNews(apiKey string) *GNewsFetcher {
	return &GNewsFetcher{APIKey: apiKey}
}

func (f *GNewsFetcher) Name() string {
	return "gnews"
}

type gnewsResponse struct {
	TotalArticles int            `json:"totalArticles"`
	Articles      []gnewsArticle `json:"articles"`
	Errors        []string       `json:"errors"`
}

type gnewsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"source"`
}

func (f *GNewsFetcher) Fetch(ctx context.Context, query, category string) ([]RawArticle, error) {
	if f.APIKey == "" {
		return nil, fmt.Errorf("gnews: api key not configured")
	}

	base := f.BaseURL
	if base == "" {
		base = gnewsBaseURL
	}

	// GNews 的 search 没有独立分类参数，分类并入检索词
	term := query
	if category != "" {
		term = category
	}

	q := url.Values{}
	q.Set("q", term)
	q.Set("lang", "en")
	q.Set("max", fmt.Sprint(gnewsMaxResults))
	q.Set("token", f.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gnews: build request: %w", err)
	}

	client := &http.Client{Timeout: gnewsClientTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gnews: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gnews: unexpected status %d", resp.StatusCode)
	}

	var payload gnewsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, gnewsMaxBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("gnews: decode response: %w", err)
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("gnews: api error: %v", payload.Errors)
	}

	log.Printf("gnews: fetched %d articles (total=%d)", len(payload.Articles), payload.TotalArticles)
	return f.convert(payload.Articles), nil
}

func (f *GNewsFetcher) convert(items []gnewsArticle) []RawArticle {
	fetchedAt := time.Now()
	out := make([]RawArticle, 0, len(items))
	for _, it := range items {
		out = append(out, RawArticle{
			Title:       it.Title,
			Description: it.Description,
			Content:     it.Content,
			URL:         it.URL,
			ImageURL:    it.Image,
			Source:      it.Source.Name,
			PublishedAt: parseArticleTime(it.PublishedAt, fetchedAt),
		})
	}
	return out
}
