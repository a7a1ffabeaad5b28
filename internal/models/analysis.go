package models

import (
	"time"
)

// AnalysisRequest 代表一次影像分析請求：影像內容、MIME 類型與分析重點 (例如影像模態名稱)
type AnalysisRequest struct {
	ImageData []byte
	MIMEType  string
	Focus     string
}

// AnalysisResult 對應模型回傳的結構化判讀結果，也對應 analysis_results 資料表
type AnalysisResult struct {
	CaseID           string    `json:"case_id,omitempty"`
	Classification   string    `json:"classification"`
	Confidence       float64   `json:"confidence"`
	FindingsSummary  string    `json:"findings_summary"`
	Recommendations  []string  `json:"recommendations"`
	HeatmapURL       string    `json:"heatmap_url,omitempty"`
	SegmentationMask string    `json:"segmentation_mask,omitempty"` // Base64 mask
	PromptVersion    string    `json:"prompt_version,omitempty"`
	Model            string    `json:"model,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

// ConfidencePercent 以百分比格式回傳信心值，例如 "89.0%"
func (r *AnalysisResult) ConfidencePercent() string {
	return formatPercent(r.Confidence)
}
