package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Helion39/Clarify.id/internal/cache"
	"github.com/Helion39/Clarify.id/internal/collector"
	"github.com/Helion39/Clarify.id/internal/feed"
	"github.com/Helion39/Clarify.id/internal/processor"
	"github.com/Helion39/Clarify.id/internal/storage"
	"github.com/Helion39/Clarify.id/internal/trust"
	"github.com/gin-gonic/gin"
)

type stubFetcher struct {
	items []collector.RawArticle
}

func (f *stubFetcher) Name() string { return "newsapi" }

func (f *stubFetcher) Fetch(ctx context.Context, query, category string) ([]collector.RawArticle, error) {
	return f.items, nil
}

func newTestRouter(t *testing.T, items []collector.RawArticle) (*gin.Engine, *storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	store, err := storage.NewStore(dsn, "")
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	for _, c := range storage.DefaultCategories() {
		if _, err := store.EnsureCategory(c); err != nil {
			t.Fatalf("EnsureCategory error: %v", err)
		}
	}
	for _, src := range trust.DefaultSources() {
		if _, err := store.EnsureSource(src); err != nil {
			t.Fatalf("EnsureSource error: %v", err)
		}
	}

	norm := processor.NewNormalizer(trust.NewRegistry(trust.DefaultSources()))
	c := cache.New([]collector.Fetcher{&stubFetcher{items: items}}, norm, store, time.Hour)
	f := feed.New(c, store)

	r := gin.New()
	NewServer(f, store).RegisterRoutes(r)
	return r, store
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := doRequest(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetNewsValidation(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	for _, path := range []string{
		"/api/news?timeFilter=hourly",
		"/api/news?page=-1",
		"/api/news?limit=101",
		"/api/news?offset=-1",
	} {
		w := doRequest(r, http.MethodGet, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, w.Code)
		}
		var body struct {
			Message string  `json:"message"`
			Errors  []gin.H `json:"errors"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode error: %v", path, err)
		}
		if body.Message != "Invalid query parameters" || len(body.Errors) == 0 {
			t.Fatalf("%s: unexpected envelope: %s", path, w.Body.String())
		}
	}
}

func TestGetNewsPaginatedEnvelope(t *testing.T) {
	now := time.Now()
	items := make([]collector.RawArticle, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, collector.RawArticle{
			Title:       fmt.Sprintf("Story %d", i),
			URL:         fmt.Sprintf("https://example.com/s%d", i),
			Source:      "Reuters",
			PublishedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	r, _ := newTestRouter(t, items)

	w := doRequest(r, http.MethodGet, "/api/news?category=technology&paginated=true&page=1&limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var env feed.Paginated
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if env.TotalCount != 5 || len(env.Articles) != 2 || env.TotalPages != 3 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if !env.HasNextPage || env.HasPreviousPage {
		t.Fatalf("page flags wrong: %+v", env)
	}
	// 响应字段是 camelCase
	if !strings.Contains(w.Body.String(), `"publishedAt"`) || !strings.Contains(w.Body.String(), `"isVerified"`) {
		t.Fatalf("expected camelCase article fields: %s", w.Body.String())
	}
}

func TestGetNewsFlatList(t *testing.T) {
	r, _ := newTestRouter(t, []collector.RawArticle{
		{Title: "Solo", URL: "https://example.com/solo", Source: "NPR", PublishedAt: time.Now()},
	})

	w := doRequest(r, http.MethodGet, "/api/news?category=technology", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list []processor.Article
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Solo" {
		t.Fatalf("unexpected list: %s", w.Body.String())
	}
}

func TestArticleCRUD(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doRequest(r, http.MethodPost, "/api/news", gin.H{
		"title":  "Manual entry",
		"url":    "https://example.com/manual",
		"source": "Reuters",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created processor.Article
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected assigned id")
	}

	// 同 URL 再建冲突
	w = doRequest(r, http.MethodPost, "/api/news", gin.H{
		"title": "Manual entry again",
		"url":   "https://example.com/manual",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", w.Code)
	}

	// 缺 title/url 校验失败
	w = doRequest(r, http.MethodPost, "/api/news", gin.H{"description": "no title"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid create status = %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/api/news/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doRequest(r, http.MethodPut, "/api/news/"+created.ID, gin.H{
		"title":      "Renamed",
		"imageUrl":   "https://example.com/cover.png",
		"isVerified": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}
	var updated processor.Article
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if updated.Title != "Renamed" || updated.ImageURL != "https://example.com/cover.png" || !updated.IsVerified {
		t.Fatalf("camelCase fields not updated: %+v", updated)
	}

	w = doRequest(r, http.MethodDelete, "/api/news/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/api/news/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", w.Code)
	}
	w = doRequest(r, http.MethodDelete, "/api/news/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("double delete status = %d", w.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, []collector.RawArticle{
		{Title: "Fresh", URL: "https://example.com/fresh", Source: "Reuters", PublishedAt: time.Now()},
	})

	w := doRequest(r, http.MethodPost, "/api/news/refresh", gin.H{"category": "technology"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res feed.RefreshResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if res.ArticlesAdded != 1 || !strings.Contains(res.Message, "refreshed") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestListCategoriesAndSources(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doRequest(r, http.MethodGet, "/api/categories", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("categories status = %d", w.Code)
	}
	var cats []storage.Category
	if err := json.Unmarshal(w.Body.Bytes(), &cats); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(cats) != len(storage.DefaultCategories()) {
		t.Fatalf("categories = %d, want %d", len(cats), len(storage.DefaultCategories()))
	}

	w = doRequest(r, http.MethodGet, "/api/sources", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sources status = %d", w.Code)
	}
	var srcs []storage.Source
	if err := json.Unmarshal(w.Body.Bytes(), &srcs); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(srcs) != len(trust.DefaultSources()) {
		t.Fatalf("sources = %d, want %d", len(srcs), len(trust.DefaultSources()))
	}
}
