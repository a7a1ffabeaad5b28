package services

import (
	"NCDEarlyDetect/internal/config"
	"NCDEarlyDetect/internal/models"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUploadNotFound = errors.New("找不到指定的上傳任務")
	ErrUploadFinished = errors.New("上傳任務已結束，無法取消")
	ErrInvalidUpload  = errors.New("上傳檔案無效")
)

const finishedJobRetention = time.Hour

// UploadRequest 是一次影像上傳的內容與病患資料
type UploadRequest struct {
	FileName    string
	Data        []byte
	PatientID   string
	PatientName string
	Age         int
	Gender      string
	Focus       string
	Anonymize   bool
}

// imageLinker 由可直接提供影像網址的儲存實作 (例如 NAS)
type imageLinker interface {
	ImageURL(relativePath string) string
}

type uploadEntry struct {
	job    models.UploadJob
	cancel context.CancelFunc
	// committed 表示已通過最後一個取消檢查點，之後 Cancel 一律拒絕
	committed bool
}

// UploadService 以背景 goroutine 執行上傳流程：去識別化、寫入影像儲存、建立待分析病例
type UploadService struct {
	store    CaseStore
	images   ImageStorage
	maxBytes int64
	now      func() time.Time

	mu   sync.Mutex
	jobs map[string]*uploadEntry
	wg   sync.WaitGroup
}

// NewUploadService 建立 UploadService 實例
func NewUploadService(cfg *config.Config, store CaseStore, images ImageStorage) (*UploadService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("UploadService：設定不得為空")
	}
	if store == nil || images == nil {
		return nil, fmt.Errorf("UploadService：CaseStore 與 ImageStorage 不得為空")
	}
	maxBytes := cfg.Upload.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	log.Printf("資訊：UploadService 初始化完成，檔案大小上限 %d bytes。\n", maxBytes)
	return &UploadService{
		store:    store,
		images:   images,
		maxBytes: maxBytes,
		now:      time.Now,
		jobs:     make(map[string]*uploadEntry),
	}, nil
}

func (s *UploadService) validate(req UploadRequest) (models.ImageModality, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return "", fmt.Errorf("%w: 檔名不得為空", ErrInvalidUpload)
	}
	if len(req.Data) == 0 {
		return "", fmt.Errorf("%w: 檔案內容為空", ErrInvalidUpload)
	}
	if int64(len(req.Data)) > s.maxBytes {
		return "", fmt.Errorf("%w: 檔案大小 %d bytes 超過上限 %d bytes", ErrInvalidUpload, len(req.Data), s.maxBytes)
	}
	modality, err := models.ModalityFromExtension(filepath.Ext(req.FileName))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	return modality, nil
}

// Start 驗證檔案並啟動背景上傳流程，立即回傳任務快照。
// progress 會在每次階段變化時被呼叫 (可為 nil)。
func (s *UploadService) Start(req UploadRequest, progress func(models.UploadJob)) (*models.UploadJob, error) {
	modality, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ctx, cancel := context.WithCancel(context.Background())
	entry := &uploadEntry{
		job: models.UploadJob{
			ID:        uuid.NewString(),
			FileName:  filepath.Base(req.FileName),
			Stage:     models.UploadReceived,
			StartedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.jobs[entry.job.ID] = entry
	snapshot := entry.job
	s.mu.Unlock()

	log.Printf("資訊：[UploadService] 已接收上傳 %s (任務 %s, %d bytes)\n", snapshot.FileName, snapshot.ID, len(req.Data))
	if progress != nil {
		progress(snapshot)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, snapshot.ID, req, modality, progress)
	}()
	return &snapshot, nil
}

// pruneLocked 移除結束超過保留時間的任務，呼叫端須持有 s.mu
func (s *UploadService) pruneLocked(now time.Time) {
	for id, e := range s.jobs {
		if e.job.Stage.Terminal() && now.Sub(e.job.UpdatedAt) > finishedJobRetention {
			delete(s.jobs, id)
		}
	}
}

// setStage 更新任務階段並通知 progress；任務已結束時不再變更
func (s *UploadService) setStage(jobID string, stage models.UploadStage, percent int, mutate func(*models.UploadJob), progress func(models.UploadJob)) {
	s.mu.Lock()
	e, ok := s.jobs[jobID]
	if !ok || e.job.Stage.Terminal() {
		s.mu.Unlock()
		return
	}
	e.job.Stage = stage
	e.job.Progress = percent
	e.job.UpdatedAt = s.now()
	if mutate != nil {
		mutate(&e.job)
	}
	snapshot := e.job
	s.mu.Unlock()

	if progress != nil {
		progress(snapshot)
	}
}

func (s *UploadService) run(ctx context.Context, jobID string, req UploadRequest, modality models.ImageModality, progress func(models.UploadJob)) {
	fail := func(err error) {
		log.Printf("錯誤：[UploadService] 任務 %s 失敗: %v\n", jobID, err)
		s.setStage(jobID, models.UploadFailed, 100, func(j *models.UploadJob) { j.Error = err.Error() }, progress)
	}
	cancelled := func(storedPath string) bool {
		if ctx.Err() == nil {
			return false
		}
		if storedPath != "" {
			if err := s.images.DeleteImage(storedPath); err != nil {
				log.Printf("警告：[UploadService] 任務 %s 取消後刪除影像 '%s' 失敗: %v\n", jobID, storedPath, err)
			}
		}
		log.Printf("資訊：[UploadService] 任務 %s 已取消。\n", jobID)
		s.setStage(jobID, models.UploadCancelled, 100, nil, progress)
		return true
	}

	s.setStage(jobID, models.UploadAnonymizing, 20, nil, progress)
	data := req.Data
	if req.Anonymize {
		cleaned, err := stripImageMetadata(data, modality)
		if err != nil {
			fail(err)
			return
		}
		data = cleaned
	}
	if cancelled("") {
		return
	}

	caseID := "CASE-" + strings.ToUpper(uuid.NewString()[:8])
	s.setStage(jobID, models.UploadStoring, 50, func(j *models.UploadJob) { j.CaseID = caseID }, progress)
	storedPath, err := s.images.SaveImage(caseID, filepath.Base(req.FileName), data)
	if err != nil {
		fail(fmt.Errorf("儲存影像失敗: %w", err))
		return
	}
	if cancelled(storedPath) {
		return
	}

	s.setStage(jobID, models.UploadQueued, 80, nil, progress)
	if !s.commit(ctx, jobID) {
		cancelled(storedPath)
		return
	}
	patientCase := &models.PatientCase{
		ID:          caseID,
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		Age:         req.Age,
		Gender:      req.Gender,
		Modality:    modality,
		Focus:       req.Focus,
		ImagePath:   storedPath,
		Status:      models.CaseStatusPending,
		Timestamp:   s.now(),
	}
	if l, ok := s.images.(imageLinker); ok {
		patientCase.ImageURL = l.ImageURL(storedPath)
	}
	if err := s.store.CreateCase(patientCase); err != nil {
		if delErr := s.images.DeleteImage(storedPath); delErr != nil {
			log.Printf("警告：[UploadService] 刪除影像 '%s' 失敗: %v\n", storedPath, delErr)
		}
		fail(fmt.Errorf("建立病例失敗: %w", err))
		return
	}

	s.setStage(jobID, models.UploadCompleted, 100, nil, progress)
	log.Printf("資訊：[UploadService] 任務 %s 完成，已建立病例 %s\n", jobID, caseID)
}

// commit 在持有 s.mu 時檢查取消狀態並標記任務不可再取消。
// 回傳 false 表示任務已被取消。
func (s *UploadService) commit(ctx context.Context, jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	if e, ok := s.jobs[jobID]; ok {
		e.committed = true
	}
	return true
}

// Get 回傳任務目前的快照
func (s *UploadService) Get(jobID string) (*models.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, jobID)
	}
	snapshot := e.job
	return &snapshot, nil
}

// Cancel 取消進行中的任務；實際的 CANCELLED 階段由背景流程在下一個檢查點設定。
// 任務開始建立病例後即無法取消。
func (s *UploadService) Cancel(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUploadNotFound, jobID)
	}
	if e.job.Stage.Terminal() || e.committed {
		return fmt.Errorf("%w: %s (%s)", ErrUploadFinished, jobID, e.job.Stage)
	}
	e.cancel()
	log.Printf("資訊：[UploadService] 已要求取消任務 %s\n", jobID)
	return nil
}

// Wait 等待所有背景流程結束
func (s *UploadService) Wait() {
	s.wg.Wait()
}

// Shutdown 取消所有進行中的任務並等待結束
func (s *UploadService) Shutdown() {
	s.mu.Lock()
	for _, e := range s.jobs {
		if !e.job.Stage.Terminal() {
			e.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// stripImageMetadata 以重新編碼的方式移除 PNG/JPEG 的中繼資料 (EXIF、文字區塊)。
// DICOM 檔案原樣保留。
func stripImageMetadata(data []byte, modality models.ImageModality) ([]byte, error) {
	if modality == models.ModalityDICOM {
		return data, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: 無法解碼影像: %v", ErrInvalidUpload, err)
	}
	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("重新編碼影像失敗: %w", err)
	}
	return buf.Bytes(), nil
}
