package scheduler

import (
	"log"
)

// PendingRunner 由 *services.AnalyzeService 實作
type PendingRunner interface {
	RunPending() error
}

// AnalyzeJob 是一個排程任務，用於自動分析等待中的病例
type AnalyzeJob struct {
	runner PendingRunner
}

// NewAnalyzeJob 建立一個 AnalyzeJob
func NewAnalyzeJob(r PendingRunner) *AnalyzeJob {
	return &AnalyzeJob{runner: r}
}

// Run 實現 cron.Job 介面 (github.com/robfig/cron/v3)
func (j *AnalyzeJob) Run() {
	log.Println("資訊：執行排程任務 - 病例影像分析...")
	if err := j.runner.RunPending(); err != nil {
		log.Printf("錯誤：病例影像分析排程任務執行失敗: %v", err)
	} else {
		log.Println("資訊：病例影像分析排程任務執行完成。")
	}
}
