package handlers

import (
	"NCDEarlyDetect/internal/clients/gemini"
	"NCDEarlyDetect/internal/services"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// 錯誤回應中的 kind 欄位，前端依此顯示不同的錯誤狀態
const (
	KindInvalidInput      = "invalid_input"
	KindForbidden         = "forbidden"
	KindNotFound          = "not_found"
	KindInProgress        = "in_progress"
	KindMissingAPIKey     = "missing_api_key"
	KindQuotaExceeded     = "quota_exceeded"
	KindTimeout           = "timeout"
	KindTransport         = "transport"
	KindMalformedResponse = "malformed_response"
	KindSchemaViolation   = "schema_violation"
	KindInternal          = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("錯誤：[Handlers] 寫入 JSON 回應失敗: %v", err)
	}
}

func writeErrorKind(w http.ResponseWriter, status int, kind string, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

// classifyError 將服務層與推論轉接層的錯誤對應到 HTTP 狀態碼與 kind
func classifyError(err error) (int, string) {
	var (
		transportErr *gemini.TransportError
		malformedErr *gemini.MalformedResponseError
		schemaErr    *gemini.SchemaViolationError
	)
	switch {
	case errors.Is(err, gemini.ErrInvalidImage),
		errors.Is(err, gemini.ErrEmptyFocus),
		errors.Is(err, services.ErrInvalidUpload):
		return http.StatusBadRequest, KindInvalidInput
	case errors.Is(err, services.ErrCaseNotFound),
		errors.Is(err, services.ErrResultNotFound),
		errors.Is(err, services.ErrUploadNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, services.ErrAnalysisInProgress),
		errors.Is(err, services.ErrUploadFinished):
		return http.StatusConflict, KindInProgress
	case errors.Is(err, gemini.ErrMissingAPIKey):
		return http.StatusServiceUnavailable, KindMissingAPIKey
	case errors.Is(err, gemini.ErrQuotaExceeded):
		return http.StatusTooManyRequests, KindQuotaExceeded
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, KindTimeout
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, KindTransport
	case errors.As(err, &schemaErr):
		return http.StatusBadGateway, KindSchemaViolation
	case errors.As(err, &malformedErr):
		return http.StatusBadGateway, KindMalformedResponse
	}
	return http.StatusInternalServerError, KindInternal
}

func writeError(w http.ResponseWriter, component string, err error) {
	status, kind := classifyError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("錯誤：[%s] %v", component, err)
	} else {
		log.Printf("警告：[%s] %v", component, err)
	}
	writeErrorKind(w, status, kind, err.Error())
}
