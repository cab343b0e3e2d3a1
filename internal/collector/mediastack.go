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
	mediastackBaseURL       = "http://api.mediastack.com/v1"
	mediastackLimit         = 10
	mediastackMaxBytes      = 1 << 20 // 1MB
	mediastackClientTimeout = 10 * time.Second
)

// Mediastack 自己的分类枚举，命中时才传 categories 参数
var mediastackCategories = map[string]bool{
	"general": true, "business": true, "entertainment": true,
	"health": true, "science": true, "sports": true, "technology": true,
}

// MediastackFetcher 通过 Mediastack 拉取实时新闻
type MediastackFetcher struct {
	APIKey  string
	BaseURL string
}

func NewMediastack(apiKey string) *MediastackFetcher {
	return &MediastackFetcher{APIKey: apiKey}
}

func (f *MediastackFetcher) Name() string {
	return "mediastack"
}

type mediastackResponse struct {
	Data  []mediastackArticle `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type mediastackArticle struct {
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	Language    string `json:"language"`
	Country     string `json:"country"`
	PublishedAt string `json:"published_at"`
}

func (f *MediastackFetcher) Fetch(ctx context.Context, query, category string) ([]RawArticle, error) {
	if f.APIKey == "" {
		return nil, fmt.Errorf("mediastack: api key not configured")
	}

	base := f.BaseURL
	if base == "" {
		base = mediastackBaseURL
	}

	q := url.Values{}
	q.Set("access_key", f.APIKey)
	q.Set("languages", "en")
	q.Set("limit", fmt.Sprint(mediastackLimit))
	if mediastackCategories[category] {
		q.Set("categories", category)
	} else {
		q.Set("keywords", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/news?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("mediastack: build request: %w", err)
	}

	client := &http.Client{Timeout: mediastackClientTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mediastack: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mediastack: unexpected status %d", resp.StatusCode)
	}

	var payload mediastackResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, mediastackMaxBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("mediastack: decode response: %w", err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("mediastack: api error %s: %s", payload.Error.Code, payload.Error.Message)
	}

	log.Printf("mediastack: fetched %d articles", len(payload.Data))
	return f.convert(payload.Data), nil
}

func (f *MediastackFetcher) convert(items []mediastackArticle) []RawArticle {
	fetchedAt := time.Now()
	out := make([]RawArticle, 0, len(items))
	for _, it := range items {
		out = append(out, RawArticle{
			Title:       it.Title,
			Description: it.Description,
			URL:         it.URL,
			ImageURL:    it.Image,
			Author:      it.Author,
			Source:      it.Source,
			Category:    it.Category,
			PublishedAt: parseArticleTime(it.PublishedAt, fetchedAt),
		})
	}
	return out
}
