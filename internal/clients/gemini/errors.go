package gemini

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingAPIKey 在第一次呼叫分析時才會回報，啟動時不檢查
	ErrMissingAPIKey = errors.New("Gemini API Key 未設定")
	ErrInvalidImage  = errors.New("無效的影像內容")
	ErrEmptyFocus    = errors.New("分析重點不得為空")
	ErrEmptyResponse = errors.New("模型回傳的文字內容為空")
	ErrNoCandidates  = errors.New("模型回應沒有任何候選結果")
	ErrBlocked       = errors.New("模型回應被安全機制阻擋")
	ErrQuotaExceeded = errors.New("AI 服務配額已用盡")
)

// TransportError 表示無法連線到模型服務、服務回傳非 2xx，或服務端拒絕產生內容。不會重試。
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Gemini %s 失敗 (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("Gemini %s 失敗: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is 讓 HTTP 429 也能以 errors.Is(err, ErrQuotaExceeded) 判斷
func (e *TransportError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.StatusCode == http.StatusTooManyRequests
}

// MalformedResponseError 表示模型回傳的文字不是有效的 JSON 物件
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("模型回應不是有效的 JSON: %v (原始內容: %q)", e.Err, firstNChars(e.Raw, 100))
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// SchemaViolationError 表示 JSON 有效但缺少必要欄位或欄位值不合法
type SchemaViolationError struct {
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("模型回應不符合結構定義: %s", e.Reason)
	}
	return fmt.Sprintf("模型回應欄位 '%s' 不符合結構定義: %s", e.Field, e.Reason)
}
