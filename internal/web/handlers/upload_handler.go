package handlers

import (
	"NCDEarlyDetect/internal/models"
	"NCDEarlyDetect/internal/services"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// UploadPipeline 由 *services.UploadService 實作
type UploadPipeline interface {
	Start(req services.UploadRequest, progress func(models.UploadJob)) (*models.UploadJob, error)
	Get(jobID string) (*models.UploadJob, error)
	Cancel(jobID string) error
}

// UploadHandler 接收 multipart 影像上傳並回報任務進度
type UploadHandler struct {
	pipeline UploadPipeline
	maxBytes int64
}

func NewUploadHandler(p UploadPipeline, maxBytes int64) *UploadHandler {
	if p == nil {
		log.Panicln("UploadHandler：UploadPipeline 不得為空")
	}
	return &UploadHandler{pipeline: p, maxBytes: maxBytes}
}

// Create 解析欄位 file 及病患資料，啟動背景上傳流程並回傳 202
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, fmt.Sprintf("無法解析上傳內容: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, "缺少上傳檔案欄位 'file'")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, fmt.Sprintf("讀取上傳檔案失敗: %v", err))
		return
	}

	age := 0
	if v := r.FormValue("age"); v != "" {
		age, err = strconv.Atoi(v)
		if err != nil || age < 0 {
			writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, fmt.Sprintf("無效的年齡 '%s'", v))
			return
		}
	}

	job, err := h.pipeline.Start(services.UploadRequest{
		FileName:    header.Filename,
		Data:        data,
		PatientID:   r.FormValue("patientId"),
		PatientName: r.FormValue("patientName"),
		Age:         age,
		Gender:      r.FormValue("gender"),
		Focus:       r.FormValue("focus"),
		Anonymize:   r.FormValue("anonymize") != "false",
	}, func(j models.UploadJob) {
		log.Printf("資訊：[UploadHandler] 任務 %s 進度 %d%% (%s)\n", j.ID, j.Progress, j.Stage)
	})
	if err != nil {
		writeError(w, "UploadHandler", err)
		return
	}
	w.Header().Set("Location", "/api/uploads/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (h *UploadHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.pipeline.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "UploadHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Cancel 要求取消任務，回傳 202；任務會在下一個檢查點進入 CANCELLED
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := h.pipeline.Cancel(jobID); err != nil {
		writeError(w, "UploadHandler", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "已要求取消上傳任務", "id": jobID})
}
