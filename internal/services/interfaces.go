package services

import (
	"NCDEarlyDetect/internal/models"
	"context"
)

// ImageStorage 介面定義了影像儲存操作 (NAS 或物件儲存)
type ImageStorage interface {
	SaveImage(caseID string, originalFileName string, data []byte) (string, error)
	ReadImage(relativePath string) ([]byte, error)
	DeleteImage(relativePath string) error
}

// CaseStore 介面定義了病例與分析結果的持久化操作
type CaseStore interface {
	ListCases(status models.CaseStatus) ([]models.PatientCase, error)
	GetCase(id string) (*models.PatientCase, error)
	CreateCase(c *models.PatientCase) error
	UpdateCaseStatus(id string, status models.CaseStatus, findings models.JsonNullString, confidence *float64) error
	SaveAnalysisResult(result *models.AnalysisResult) error
	GetAnalysisResult(caseID string) (*models.AnalysisResult, error)
	Close() error
}

// ImageAnalyzer 是推論服務轉接層，*gemini.Client 實作此介面
type ImageAnalyzer interface {
	Analyze(ctx context.Context, imageRef string, focus string) (*models.AnalysisResult, error)
	AnalyzeImage(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
}
