package handlers

import (
	"NCDEarlyDetect/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	analyzeRequestTimeout = 3 * time.Minute
	maxAnalyzeBodyBytes   = 70 << 20 // base64 後的影像約為原檔的 4/3
)

// CaseAnalyzer 由 *services.AnalyzeService 實作
type CaseAnalyzer interface {
	ListCases(status models.CaseStatus) ([]models.PatientCase, error)
	GetCase(caseID string) (*models.PatientCase, error)
	AnalyzeCase(ctx context.Context, caseID string) (*models.AnalysisResult, error)
	AnalyzeImage(ctx context.Context, imageRef string, focus string) (*models.AnalysisResult, error)
	GetResult(caseID string) (*models.AnalysisResult, error)
}

// CaseHandler 提供病例查詢與同步分析端點
type CaseHandler struct {
	analyzer CaseAnalyzer
}

// NewCaseHandler 建立一個 CaseHandler 實例
func NewCaseHandler(a CaseAnalyzer) *CaseHandler {
	if a == nil {
		log.Panicln("CaseHandler：CaseAnalyzer 不得為空")
	}
	return &CaseHandler{analyzer: a}
}

// List 列出病例，可用 ?status= 篩選
func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.CaseStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, fmt.Sprintf("未知的病例狀態 '%s'", status))
		return
	}
	cases, err := h.analyzer.ListCases(status)
	if err != nil {
		writeError(w, "CaseHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.analyzer.GetCase(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "CaseHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Analyze 同步分析病例；同一病例已在分析中時回傳 409
func (h *CaseHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	log.Printf("資訊：[CaseHandler] 收到病例 %s 的分析請求，來自 %s\n", caseID, r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), analyzeRequestTimeout)
	defer cancel()
	result, err := h.analyzer.AnalyzeCase(ctx, caseID)
	if err != nil {
		writeError(w, "CaseHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Result 回傳病例最近一次的分析結果
func (h *CaseHandler) Result(w http.ResponseWriter, r *http.Request) {
	result, err := h.analyzer.GetResult(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "CaseHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type analyzeImageRequest struct {
	Image string `json:"image"`
	Focus string `json:"focus"`
}

// AnalyzeImage 分析以 data URI 傳入的影像，不建立病例
func (h *CaseHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var body analyzeImageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyzeBodyBytes)).Decode(&body); err != nil {
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, fmt.Sprintf("無法解析請求內容: %v", err))
		return
	}
	if body.Image == "" {
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, "image 欄位不得為空")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeRequestTimeout)
	defer cancel()
	result, err := h.analyzer.AnalyzeImage(ctx, body.Image, body.Focus)
	if err != nil {
		writeError(w, "CaseHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
