package models

import (
	"time"
)

// TrainingJobStatus 定義模型訓練任務狀態
type TrainingJobStatus string

const (
	TrainingQueued    TrainingJobStatus = "QUEUED"
	TrainingRunning   TrainingJobStatus = "TRAINING"
	TrainingCompleted TrainingJobStatus = "COMPLETED"
	TrainingFailed    TrainingJobStatus = "FAILED"
)

// TrainingJob 是技術工作區顯示的模型訓練任務
type TrainingJob struct {
	ID        string            `json:"id"`
	ModelName string            `json:"modelName"`
	Version   string            `json:"version"`
	Status    TrainingJobStatus `json:"status"`
	Progress  int               `json:"progress"`
	Accuracy  *float64          `json:"accuracy,omitempty"`
	Loss      *float64          `json:"loss,omitempty"`
}

// UploadStage 定義上傳流程的階段
type UploadStage string

const (
	UploadReceived    UploadStage = "RECEIVED"
	UploadAnonymizing UploadStage = "ANONYMIZING"
	UploadStoring     UploadStage = "STORING"
	UploadQueued      UploadStage = "QUEUED"
	UploadCompleted   UploadStage = "COMPLETED"
	UploadFailed      UploadStage = "FAILED"
	UploadCancelled   UploadStage = "CANCELLED"
)

// Terminal 表示此階段後不會再有任何變化
func (s UploadStage) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed || s == UploadCancelled
}

// UploadJob 記錄一次上傳流程的進度
type UploadJob struct {
	ID        string      `json:"id"`
	FileName  string      `json:"fileName"`
	Stage     UploadStage `json:"stage"`
	Progress  int         `json:"progress"`
	CaseID    string      `json:"caseId,omitempty"`
	Error     string      `json:"error,omitempty"`
	StartedAt time.Time   `json:"startedAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
