package handlers

import (
	"log"
	"net/http"
	"sync"
)

// PendingRunner 由 *services.AnalyzeService 實作
type PendingRunner interface {
	RunPending() error
}

// TriggerAnalysisHandler 手動觸發等待中病例的批次分析
type TriggerAnalysisHandler struct {
	runner      PendingRunner
	mu          sync.Mutex
	isAnalyzing bool
}

// NewTriggerAnalysisHandler 建立一個 TriggerAnalysisHandler 實例
func NewTriggerAnalysisHandler(r PendingRunner) *TriggerAnalysisHandler {
	if r == nil {
		log.Panicln("TriggerAnalysisHandler：PendingRunner 不得為空")
	}
	return &TriggerAnalysisHandler{runner: r}
}

// ServeHTTP 實現 http.Handler 介面
func (h *TriggerAnalysisHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[TriggerAnalysisHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	h.mu.Lock()
	if h.isAnalyzing {
		h.mu.Unlock()
		log.Println("警告：[TriggerAnalysisHandler] 批次分析已在進行中，拒絕新的觸發。")
		writeErrorKind(w, http.StatusConflict, KindInProgress, "批次分析已在進行中，請稍候。")
		return
	}
	h.isAnalyzing = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			h.isAnalyzing = false
			h.mu.Unlock()
			log.Println("資訊：[TriggerAnalysisHandler] 手動觸發的批次分析 goroutine 已結束。")
		}()

		if err := h.runner.RunPending(); err != nil {
			log.Printf("錯誤：[TriggerAnalysisHandler] 手動觸發的批次分析執行失敗: %v", err)
		} else {
			log.Println("資訊：[TriggerAnalysisHandler] 手動觸發的批次分析執行成功。")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "等待中病例的分析已觸發，正在背景執行。請稍後查看結果。"})
}
