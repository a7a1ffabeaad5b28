package models

import (
	"time"
)

// MedicalDisclaimer 顯示於所有頁面底部
const MedicalDisclaimer = "This system is an AI-assisted medical imaging platform intended to support healthcare professionals. It does not provide diagnoses or treatment advice."

// Modalities 是上傳表單可選的臨床影像模態
var Modalities = []string{"Chest X-Ray", "CT Scan", "MRI", "Ultrasound"}

func floatPtr(f float64) *float64 { return &f }

// MockCases 回傳示範用的病例資料，每次呼叫都回傳新的副本
func MockCases() []PatientCase {
	return []PatientCase{
		{
			ID:          "CASE-001",
			PatientID:   "UG-1092",
			PatientName: "K. Musoke",
			Age:         45,
			Gender:      "M",
			Modality:    ModalityDICOM,
			Focus:       "Chest X-Ray",
			ImageURL:    "https://picsum.photos/seed/case1/800/600",
			Status:      CaseStatusAnalyzed,
			Findings:    NewJsonNullString("Potential early stage pneumonia indicators detected in lower left lobe."),
			Confidence:  floatPtr(0.89),
			Timestamp:   time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			ID:          "CASE-002",
			PatientID:   "UG-3321",
			PatientName: "A. Nakato",
			Age:         32,
			Gender:      "F",
			Modality:    ModalityPNG,
			ImageURL:    "https://picsum.photos/seed/case2/800/600",
			Status:      CaseStatusPending,
			Timestamp:   time.Date(2024, 5, 11, 14, 15, 0, 0, time.UTC),
		},
	}
}

// MockTrainingJobs 回傳技術工作區的示範訓練任務
func MockTrainingJobs() []TrainingJob {
	return []TrainingJob{
		{ID: "JOB-001", ModelName: "NCD-Lung-Seg-Net", Version: "v1.4.2", Status: TrainingRunning, Progress: 72, Accuracy: floatPtr(0.92)},
		{ID: "JOB-002", ModelName: "Cardio-Risk-Classify", Version: "v0.9.1", Status: TrainingCompleted, Progress: 100, Accuracy: floatPtr(0.88)},
		{ID: "JOB-003", ModelName: "Liver-Density-Estimator", Version: "v1.0.0", Status: TrainingFailed, Progress: 15},
	}
}
