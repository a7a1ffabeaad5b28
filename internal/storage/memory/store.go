package memory

import (
	"NCDEarlyDetect/internal/models"
	"NCDEarlyDetect/internal/storage"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Store 是記憶體中的病例儲存，程式結束後資料即消失
type Store struct {
	mu      sync.RWMutex
	cases   map[string]models.PatientCase
	results map[string]models.AnalysisResult
}

// NewStore 建立記憶體儲存；seed 為 true 時載入示範病例
func NewStore(seed bool) *Store {
	s := &Store{
		cases:   make(map[string]models.PatientCase),
		results: make(map[string]models.AnalysisResult),
	}
	if seed {
		for _, c := range models.MockCases() {
			s.cases[c.ID] = c
		}
		log.Printf("資訊：[MemoryStore] 已載入 %d 筆示範病例。\n", len(s.cases))
	}
	return s
}

func (s *Store) Close() error { return nil }

// ListCases 依時間由新到舊回傳病例；status 為空時回傳全部
func (s *Store) ListCases(status models.CaseStatus) ([]models.PatientCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PatientCase, 0, len(s.cases))
	for _, c := range s.cases {
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) GetCase(id string) (*models.PatientCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("病例 '%s': %w", id, storage.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) CreateCase(c *models.PatientCase) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("CreateCase 參數 病例 ID 不得為空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return fmt.Errorf("病例 '%s' 已存在", c.ID)
	}
	s.cases[c.ID] = *c
	return nil
}

func (s *Store) UpdateCaseStatus(id string, status models.CaseStatus, findings models.JsonNullString, confidence *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return fmt.Errorf("病例 '%s': %w", id, storage.ErrNotFound)
	}
	c.Status = status
	c.Findings = findings
	c.Confidence = confidence
	s.cases[id] = c
	return nil
}

func (s *Store) SaveAnalysisResult(result *models.AnalysisResult) error {
	if result == nil || result.CaseID == "" {
		return fmt.Errorf("SaveAnalysisResult 參數 CaseID 不得為空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *result
	stored.Recommendations = append([]string(nil), result.Recommendations...)
	s.results[result.CaseID] = stored
	return nil
}

func (s *Store) GetAnalysisResult(caseID string) (*models.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[caseID]
	if !ok {
		return nil, fmt.Errorf("病例 '%s' 的分析結果: %w", caseID, storage.ErrNotFound)
	}
	r.Recommendations = append([]string(nil), r.Recommendations...)
	return &r, nil
}
