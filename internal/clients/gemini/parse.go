package gemini

import (
	"NCDEarlyDetect/internal/models"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// rawFinding 以指標欄位接收模型回應，用來區分「欄位缺少」與「零值」
type rawFinding struct {
	Classification   *string   `json:"classification"`
	Confidence       *float64  `json:"confidence"`
	FindingsSummary  *string   `json:"findings_summary"`
	Recommendations  *[]string `json:"recommendations"`
	HeatmapURL       string    `json:"heatmap_url"`
	SegmentationMask string    `json:"segmentation_mask"`
}

// cleanJSONString 清理從 LLM 收到的可能包含雜質的 JSON 字串
func cleanJSONString(rawResponse string) string {
	cleaned := strings.TrimSpace(rawResponse)
	cleaned = strings.TrimPrefix(cleaned, "\uFEFF")

	// 移除可能的 markdown 代碼塊標記
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}
	cleaned = strings.TrimSpace(cleaned)

	// 尋找最外層的 JSON 物件
	firstBrace := strings.Index(cleaned, "{")
	lastBrace := strings.LastIndex(cleaned, "}")
	if firstBrace != -1 && lastBrace > firstBrace {
		cleaned = cleaned[firstBrace : lastBrace+1]
	}

	return cleaned
}

// ParseResult 將模型回傳的文字轉換為 AnalysisResult。
// 空字串、非 JSON 與不符合結構的內容都會回傳具型別的錯誤，不會回傳部分填寫的結果。
func ParseResult(text string) (*models.AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &MalformedResponseError{Raw: text, Err: ErrEmptyResponse}
	}
	cleaned := cleanJSONString(text)
	if !utf8.ValidString(cleaned) {
		return nil, &MalformedResponseError{Raw: text, Err: errors.New("回應包含無效的 UTF-8 位元組")}
	}

	var raw rawFinding
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if typeErr.Field == "" {
				return nil, &SchemaViolationError{Reason: fmt.Sprintf("期望 JSON 物件，但得到 %s", typeErr.Value)}
			}
			return nil, &SchemaViolationError{Field: typeErr.Field, Reason: fmt.Sprintf("期望 %s，但得到 %s", typeErr.Type, typeErr.Value)}
		}
		return nil, &MalformedResponseError{Raw: text, Err: err}
	}

	switch {
	case raw.Classification == nil:
		return nil, &SchemaViolationError{Field: "classification", Reason: "缺少必要欄位"}
	case raw.Confidence == nil:
		return nil, &SchemaViolationError{Field: "confidence", Reason: "缺少必要欄位"}
	case math.IsNaN(*raw.Confidence) || *raw.Confidence < 0 || *raw.Confidence > 1:
		return nil, &SchemaViolationError{Field: "confidence", Reason: fmt.Sprintf("數值 %v 不在 [0,1] 區間", *raw.Confidence)}
	case raw.FindingsSummary == nil:
		return nil, &SchemaViolationError{Field: "findings_summary", Reason: "缺少必要欄位"}
	case raw.Recommendations == nil:
		return nil, &SchemaViolationError{Field: "recommendations", Reason: "缺少必要欄位"}
	}

	recommendations := make([]string, len(*raw.Recommendations))
	copy(recommendations, *raw.Recommendations)

	return &models.AnalysisResult{
		Classification:   *raw.Classification,
		Confidence:       *raw.Confidence,
		FindingsSummary:  *raw.FindingsSummary,
		Recommendations:  recommendations,
		HeatmapURL:       raw.HeatmapURL,
		SegmentationMask: raw.SegmentationMask,
	}, nil
}

// firstNChars 以 rune 為單位截斷字串，供日誌使用
func firstNChars(s string, n int) string {
	runes := []rune(s)
	if n > 0 && len(runes) > n {
		return string(runes[:n])
	}
	return s
}
