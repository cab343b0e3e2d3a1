package config

import (
	"log"
	"os"
	"time"
)

type Config struct {
	AppPort string

	DatabaseDSN string
	RedisAddr   string

	// 三个新闻提供方的凭证，任意一个为空时对应的采集器会被跳过
	NewsAPIKey       string
	GNewsAPIKey      string
	MediastackAPIKey string

	// 分类缓存的新鲜度窗口
	CacheTTL time.Duration

	CronSpec string

	WebRoot string
}

func Load() *Config {
	cfg := &Config{
		AppPort: getEnv("APP_PORT", "9000"),
		// 默认使用进程内 sqlite：文章库按产品约定是易失的，重启后由提供方拉取重建
		DatabaseDSN: getEnv("DATABASE_DSN", "file::memory:?cache=shared"),
		RedisAddr:   getEnv("REDIS_ADDR", ""),

		NewsAPIKey:       getEnv("NEWSAPI_KEY", ""),
		GNewsAPIKey:      getEnv("GNEWS_API_KEY", ""),
		MediastackAPIKey: getEnv("MEDIASTACK_API_KEY", ""),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),
		CronSpec: getEnv("CRON_SPEC", "*/30 * * * *"),
		WebRoot:  getEnv("WEB_ROOT", ""),
	}

	log.Printf("config loaded: port=%s cron=%s ttl=%s", cfg.AppPort, cfg.CronSpec, cfg.CacheTTL)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("warn: invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}
