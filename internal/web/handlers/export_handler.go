package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// CaseExporter 由 *services.ExportService 實作
type CaseExporter interface {
	WriteCSV(w io.Writer) error
	WriteXLSX(w io.Writer) error
}

// ExportHandler 負責處理匯出請求
type ExportHandler struct {
	exporter CaseExporter
	now      func() time.Time
}

// NewExportHandler 建立一個 ExportHandler 實例
func NewExportHandler(e CaseExporter) *ExportHandler {
	if e == nil {
		log.Panicln("ExportHandler：CaseExporter 不得為空")
	}
	return &ExportHandler{exporter: e, now: time.Now}
}

// ServeHTTP 依 ?format=csv|xlsx 匯出病例與分析結果，預設為 csv
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[ExportHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	date := h.now().Format("2006-01-02")

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=case_report_%s.csv", date))
		if err := h.exporter.WriteCSV(w); err != nil {
			// 標頭已送出，只能記錄
			log.Printf("錯誤：[ExportHandler] 匯出 CSV 失敗: %v", err)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=case_report_%s.xlsx", date))
		if err := h.exporter.WriteXLSX(w); err != nil {
			log.Printf("錯誤：[ExportHandler] 匯出 XLSX 失敗: %v", err)
		}
	default:
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, fmt.Sprintf("不支援的匯出格式 '%s' (僅支援 csv, xlsx)", format))
	}
}
