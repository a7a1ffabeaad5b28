package services

import (
	"NCDEarlyDetect/internal/config"
	"NCDEarlyDetect/internal/models"
	"NCDEarlyDetect/internal/storage"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	ErrCaseNotFound       = errors.New("找不到指定的病例")
	ErrResultNotFound     = errors.New("此病例尚無分析結果")
	ErrAnalysisInProgress = errors.New("此病例的分析已在進行中")
	ErrNoImage            = errors.New("此病例沒有可分析的影像")
)

const caseAnalysisTimeout = 3 * time.Minute

// AnalyzeService 負責病例影像分析流程：讀取影像、呼叫推論服務、保存結果
type AnalyzeService struct {
	store     CaseStore
	images    ImageStorage
	analyzer  ImageAnalyzer
	fetcher   *FetchService
	batchSize int
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewAnalyzeService 建立 AnalyzeService 實例
func NewAnalyzeService(
	cfg *config.Config,
	store CaseStore,
	images ImageStorage,
	analyzer ImageAnalyzer,
	fetcher *FetchService,
) (*AnalyzeService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("AnalyzeService：設定不得為空")
	}
	if store == nil {
		return nil, fmt.Errorf("AnalyzeService：CaseStore 不得為空")
	}
	if images == nil {
		return nil, fmt.Errorf("AnalyzeService：ImageStorage 不得為空")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("AnalyzeService：ImageAnalyzer 不得為空")
	}
	if fetcher == nil {
		fetcher = NewFetchService(nil)
	}
	batchSize := cfg.Scheduler.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	log.Println("資訊：AnalyzeService 初始化完成。")
	return &AnalyzeService{
		store:     store,
		images:    images,
		analyzer:  analyzer,
		fetcher:   fetcher,
		batchSize: batchSize,
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}, nil
}

// tryAcquire 設定病例的忙碌旗標；已在分析中時回傳 false
func (s *AnalyzeService) tryAcquire(caseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[caseID]; busy {
		return false
	}
	s.inFlight[caseID] = struct{}{}
	return true
}

func (s *AnalyzeService) release(caseID string) {
	s.mu.Lock()
	delete(s.inFlight, caseID)
	s.mu.Unlock()
}

// IsAnalyzing 回傳病例是否有進行中的分析
func (s *AnalyzeService) IsAnalyzing(caseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[caseID]
	return busy
}

// ListCases 列出病例
func (s *AnalyzeService) ListCases(status models.CaseStatus) ([]models.PatientCase, error) {
	return s.store.ListCases(status)
}

// GetCase 取得單一病例
func (s *AnalyzeService) GetCase(caseID string) (*models.PatientCase, error) {
	c, err := s.store.GetCase(caseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	return c, err
}

// GetResult 取得病例最近一次的分析結果
func (s *AnalyzeService) GetResult(caseID string) (*models.AnalysisResult, error) {
	r, err := s.store.GetAnalysisResult(caseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, caseID)
	}
	return r, err
}

// AnalyzeImage 直接將影像轉交推論服務，不涉及病例
func (s *AnalyzeService) AnalyzeImage(ctx context.Context, imageRef string, focus string) (*models.AnalysisResult, error) {
	return s.analyzer.Analyze(ctx, imageRef, focus)
}

// loadImage 優先讀取影像儲存中的檔案，其次下載病例的影像 URL
func (s *AnalyzeService) loadImage(ctx context.Context, c *models.PatientCase) ([]byte, string, error) {
	if c.ImagePath != "" {
		data, err := s.images.ReadImage(c.ImagePath)
		if err != nil {
			return nil, "", fmt.Errorf("讀取病例 '%s' 的影像失敗: %w", c.ID, err)
		}
		mimeType := c.Modality.MIMEType()
		if detected := http.DetectContentType(data); strings.HasPrefix(detected, "image/") {
			mimeType = detected
		}
		return data, mimeType, nil
	}
	if c.ImageURL != "" {
		return s.fetcher.FetchImage(ctx, c.ImageURL)
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNoImage, c.ID)
}

// AnalyzeCase 分析單一病例並保存結果。同一病例同時只允許一個進行中的分析。
func (s *AnalyzeService) AnalyzeCase(ctx context.Context, caseID string) (*models.AnalysisResult, error) {
	if !s.tryAcquire(caseID) {
		log.Printf("警告：[AnalyzeService] 病例 %s 的分析已在進行中，拒絕新的觸發。\n", caseID)
		return nil, fmt.Errorf("%w: %s", ErrAnalysisInProgress, caseID)
	}
	defer s.release(caseID)

	c, err := s.GetCase(caseID)
	if err != nil {
		return nil, err
	}
	log.Printf("資訊：[AnalyzeService] 開始分析病例 %s (分析重點: %s)\n", c.ID, c.AnalysisFocus())

	data, mimeType, err := s.loadImage(ctx, c)
	if err != nil {
		s.markFailed(c.ID, err)
		return nil, err
	}

	result, err := s.analyzer.AnalyzeImage(ctx, models.AnalysisRequest{ImageData: data, MIMEType: mimeType, Focus: c.AnalysisFocus()})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("警告：[AnalyzeService] 病例 %s 的分析已被取消。\n", c.ID)
			return nil, err
		}
		s.markFailed(c.ID, err)
		return nil, err
	}

	result.CaseID = c.ID
	result.CreatedAt = s.now()
	if err := s.store.SaveAnalysisResult(result); err != nil {
		log.Printf("錯誤：[AnalyzeService] 儲存病例 %s 的分析結果失敗: %v", c.ID, err)
		s.markFailed(c.ID, err)
		return nil, fmt.Errorf("儲存分析結果失敗: %w", err)
	}
	confidence := result.Confidence
	if err := s.store.UpdateCaseStatus(c.ID, models.CaseStatusAnalyzed, models.NewJsonNullString(result.FindingsSummary), &confidence); err != nil {
		log.Printf("警告：[AnalyzeService] 更新病例 %s 狀態為 '%s' 失敗: %v\n", c.ID, models.CaseStatusAnalyzed, err)
	}
	log.Printf("資訊：[AnalyzeService] 病例 %s 分析完成: %s (%s)\n", c.ID, result.Classification, result.ConfidencePercent())
	return result, nil
}

func (s *AnalyzeService) markFailed(caseID string, cause error) {
	log.Printf("錯誤：[AnalyzeService] 病例 %s 分析失敗: %v\n", caseID, cause)
	if err := s.store.UpdateCaseStatus(caseID, models.CaseStatusFailed, models.NewJsonNullString("分析失敗: "+cause.Error()), nil); err != nil {
		log.Printf("警告：[AnalyzeService] 更新病例 %s 狀態為 '%s' 失敗: %v\n", caseID, models.CaseStatusFailed, err)
	}
}

// RunPending 分析等待中的病例，供排程器呼叫
func (s *AnalyzeService) RunPending() error {
	log.Println("資訊：[AnalyzeService-Pending] 開始分析等待中的病例...")
	cases, err := s.store.ListCases(models.CaseStatusPending)
	if err != nil {
		log.Printf("錯誤：[AnalyzeService-Pending] 取得等待中病例失敗: %v", err)
		return err
	}
	if len(cases) == 0 {
		log.Println("資訊：[AnalyzeService-Pending] 沒有等待分析的病例。")
		return nil
	}
	if len(cases) > s.batchSize {
		cases = cases[:s.batchSize]
	}

	var successCount, failCount, skipCount int
	for _, c := range cases {
		if c.ImagePath == "" && c.ImageURL == "" {
			skipCount++
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), caseAnalysisTimeout)
		_, err := s.AnalyzeCase(ctx, c.ID)
		cancel()
		switch {
		case errors.Is(err, ErrAnalysisInProgress):
			skipCount++
		case err != nil:
			failCount++
		default:
			successCount++
		}
	}
	log.Printf("資訊：[AnalyzeService-Pending] 分析流程完成。成功: %d, 失敗: %d, 略過: %d\n", successCount, failCount, skipCount)
	return nil
}
