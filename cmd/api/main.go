package main

import (
	"log"
	"net/http"
	"path/filepath"

	"github.com/Helion39/Clarify.id/internal/api"
	"github.com/Helion39/Clarify.id/internal/cache"
	"github.com/Helion39/Clarify.id/internal/collector"
	"github.com/Helion39/Clarify.id/internal/config"
	"github.com/Helion39/Clarify.id/internal/feed"
	"github.com/Helion39/Clarify.id/internal/processor"
	"github.com/Helion39/Clarify.id/internal/scheduler"
	"github.com/Helion39/Clarify.id/internal/storage"
	"github.com/Helion39/Clarify.id/internal/trust"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using process env")
	}
	cfg := config.Load()

	store, err := storage.NewStore(cfg.DatabaseDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	// 种子化默认分类与可信来源白名单
	for _, c := range storage.DefaultCategories() {
		if _, err := store.EnsureCategory(c); err != nil {
			log.Fatalf("ensure category %s failed: %v", c.Slug, err)
		}
	}
	sources := trust.DefaultSources()
	for _, src := range sources {
		if _, err := store.EnsureSource(src); err != nil {
			log.Fatalf("ensure source %s failed: %v", src.Name, err)
		}
	}

	// 按凭证装配提供方，全部缺失时服务仍可启动（只提供库内数据）
	var fetchers []collector.Fetcher
	if cfg.NewsAPIKey != "" {
		fetchers = append(fetchers, collector.NewNewsAPI(cfg.NewsAPIKey))
	}
	if cfg.GNewsAPIKey != "" {
		fetchers = append(fetchers, collector.NewGNews(cfg.GNewsAPIKey))
	}
	if cfg.MediastackAPIKey != "" {
		fetchers = append(fetchers, collector.NewMediastack(cfg.MediastackAPIKey))
	}
	if len(fetchers) == 0 {
		log.Printf("warn: no provider credentials configured, live fetch disabled")
	}

	norm := processor.NewNormalizer(trust.NewRegistry(sources))
	articleCache := cache.New(fetchers, norm, store, cfg.CacheTTL)
	feedService := feed.New(articleCache, store)

	s, err := scheduler.New(cfg.CronSpec, feedService)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	if len(fetchers) > 0 {
		s.Start()
	}

	// API
	r := gin.Default()
	apiServer := api.NewServer(feedService, store)
	apiServer.RegisterRoutes(r)

	// 若配置了前端目录，则托管 SPA 静态文件并做 fallback
	if cfg.WebRoot != "" {
		assetsDir := filepath.Join(cfg.WebRoot, "assets")
		indexFile := filepath.Join(cfg.WebRoot, "index.html")
		r.Static("/assets", assetsDir)
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet {
				c.Status(http.StatusNotFound)
				return
			}
			// SPA：未匹配 API 的 GET 均返回 index.html
			c.File(indexFile)
		})
	}

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}
