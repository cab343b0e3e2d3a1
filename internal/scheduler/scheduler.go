package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/Helion39/Clarify.id/internal/feed"
	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron *cron.Cron
	feed *feed.Service
}

func New(spec string, f *feed.Service) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron: c,
		feed: f,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮采集，避免与用户首次打开页面的请求争抢资源，首屏加载更快
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		go s.runOnce()
	})
}

// RunOnce 对外暴露的单次执行入口，方便手动触发刷新
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runOnce() {
	log.Println("start refresh job...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := s.feed.Refresh(ctx, "")
	if err != nil {
		log.Printf("refresh job error: %v", err)
		return
	}
	// 条数 = 刷新后各分类槽位的文章总数（非“新增数”）
	log.Printf("refresh job done, cached=%d articles", res.ArticlesAdded)
}
