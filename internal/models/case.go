package models

import (
	"fmt"
	"strings"
	"time"
)

// CaseStatus 定義病例的分析狀態
type CaseStatus string

const (
	CaseStatusPending  CaseStatus = "PENDING"
	CaseStatusAnalyzed CaseStatus = "ANALYZED"
	CaseStatusFailed   CaseStatus = "FAILED"
)

// Valid 檢查狀態是否為已知值
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusPending, CaseStatusAnalyzed, CaseStatusFailed:
		return true
	}
	return false
}

// ImageModality 是影像檔案的格式 (與臨床上的影像模態不同，後者見 Modalities)
type ImageModality string

const (
	ModalityDICOM ImageModality = "DICOM"
	ModalityPNG   ImageModality = "PNG"
	ModalityJPEG  ImageModality = "JPEG"
)

// ModalityFromExtension 依副檔名判斷影像格式
func ModalityFromExtension(ext string) (ImageModality, error) {
	switch strings.ToLower(ext) {
	case ".dcm":
		return ModalityDICOM, nil
	case ".png":
		return ModalityPNG, nil
	case ".jpg", ".jpeg":
		return ModalityJPEG, nil
	}
	return "", fmt.Errorf("不支援的影像副檔名 '%s' (僅支援 .dcm, .png, .jpg, .jpeg)", ext)
}

// MIMEType 回傳影像格式對應的 MIME 類型
func (m ImageModality) MIMEType() string {
	switch m {
	case ModalityDICOM:
		return "application/dicom"
	case ModalityJPEG:
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// PatientCase 對應 patient_cases 資料表
type PatientCase struct {
	ID          string         `json:"id"`
	PatientID   string         `json:"patientId"`
	PatientName string         `json:"patientName"`
	Age         int            `json:"age"`
	Gender      string         `json:"gender"`
	Modality    ImageModality  `json:"modality"`
	Focus       string         `json:"focus,omitempty"`
	ImageURL    string         `json:"imageUrl"`
	ImagePath   string         `json:"-"` // 影像儲存中的相對路徑
	Status      CaseStatus     `json:"status"`
	Findings    JsonNullString `json:"findings"`
	Confidence  *float64       `json:"confidence,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// AnalysisFocus 回傳送給模型的分析重點；未設定時退回影像格式名稱
func (c *PatientCase) AnalysisFocus() string {
	if strings.TrimSpace(c.Focus) != "" {
		return c.Focus
	}
	return string(c.Modality)
}

// DisplayTimestamp 以儀表板使用的格式輸出時間
func (c *PatientCase) DisplayTimestamp() string {
	return c.Timestamp.Format("2006-01-02 15:04")
}

// ConfidencePercent 以百分比格式回傳信心值；尚未分析時回傳空字串
func (c *PatientCase) ConfidencePercent() string {
	if c.Confidence == nil {
		return ""
	}
	return formatPercent(*c.Confidence)
}
