package scheduler

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron       *cron.Cron
	analyzeJob *AnalyzeJob
}

// NewScheduler 註冊病例分析任務；前一次執行尚未結束時會略過本次觸發
func NewScheduler(runner PendingRunner, analyzeCronSpec string) (*Scheduler, error) {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	analyzeJob := NewAnalyzeJob(runner)

	if analyzeCronSpec != "" {
		if _, err := c.AddJob(analyzeCronSpec, analyzeJob); err != nil {
			return nil, fmt.Errorf("無法新增病例分析任務到排程器 (spec: %s): %w", analyzeCronSpec, err)
		}
		log.Printf("資訊：病例分析任務已註冊，排程：%s\n", analyzeCronSpec)
	} else {
		log.Println("警告：未提供病例分析任務的 Cron 表達式，該任務將不會被排程。")
	}

	return &Scheduler{cron: c, analyzeJob: analyzeJob}, nil
}

// Entries 回傳已註冊的任務數
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start() // 非阻塞啟動
	log.Println("資訊：排程器已非阻塞啟動 (如果任務已註冊)。")
}

func (s *Scheduler) Stop() {
	log.Println("資訊：正在停止排程器...")
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		log.Println("資訊：排程器已優雅停止，所有運行中任務已完成。")
	case <-time.After(10 * time.Second):
		log.Println("警告：排程器停止超時，可能仍有任務在執行。")
	}
}
