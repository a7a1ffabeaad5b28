package mysql

import (
	"NCDEarlyDetect/internal/config"
	"NCDEarlyDetect/internal/models"
	"NCDEarlyDetect/internal/storage"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// MySQLStore 結構
type MySQLStore struct {
	db *sql.DB
}

const caseColumns = `id, patient_id, patient_name, age, gender, modality, focus, image_url, image_path, status, findings, confidence, created_at`

// NewMySQLStore 開啟連線並確認資料庫可用
func NewMySQLStore(dbCfg config.DatabaseConfig) (*MySQLStore, error) {
	if dbCfg.Driver != "mysql" {
		return nil, fmt.Errorf("不支援的資料庫驅動程式: %s", dbCfg.Driver)
	}
	db, err := sql.Open("mysql", dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("開啟資料庫連線失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("無法連線到資料庫 (ping 失敗): %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	log.Println("資訊：成功連線到 MySQL 資料庫。")
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	if s.db != nil {
		log.Println("資訊：正在關閉 MySQL 資料庫連線...")
		return s.db.Close()
	}
	return nil
}

// SeedMockCases 在資料表為空時寫入示範病例
func (s *MySQLStore) SeedMockCases() error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM patient_cases").Scan(&count); err != nil {
		return fmt.Errorf("查詢病例數量失敗: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, c := range models.MockCases() {
		c := c
		if err := s.CreateCase(&c); err != nil {
			return err
		}
	}
	log.Println("資訊：[MySQLStore] 已寫入示範病例。")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (*models.PatientCase, error) {
	var c models.PatientCase
	var focus, imageURL, imagePath sql.NullString
	var confidence sql.NullFloat64
	if err := row.Scan(&c.ID, &c.PatientID, &c.PatientName, &c.Age, &c.Gender, &c.Modality, &focus, &imageURL, &imagePath, &c.Status, &c.Findings.NullString, &confidence, &c.Timestamp); err != nil {
		return nil, err
	}
	c.Focus = focus.String
	c.ImageURL = imageURL.String
	c.ImagePath = imagePath.String
	if confidence.Valid {
		v := confidence.Float64
		c.Confidence = &v
	}
	return &c, nil
}

// ListCases 依建立時間由新到舊回傳病例；status 為空時回傳全部
func (s *MySQLStore) ListCases(status models.CaseStatus) ([]models.PatientCase, error) {
	query := "SELECT " + caseColumns + " FROM patient_cases"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("查詢病例失敗: %w", err)
	}
	defer rows.Close()

	return collectCases(rows)
}

type rowIterator interface {
	rowScanner
	Next() bool
	Err() error
}

// collectCases 讀取所有列；任何一列掃描失敗即回傳錯誤
func collectCases(rows rowIterator) ([]models.PatientCase, error) {
	var cases []models.PatientCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("掃描病例查詢結果失敗: %w", err)
		}
		cases = append(cases, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("處理病例查詢結果集時發生錯誤: %w", err)
	}
	return cases, nil
}

func (s *MySQLStore) GetCase(id string) (*models.PatientCase, error) {
	row := s.db.QueryRow("SELECT "+caseColumns+" FROM patient_cases WHERE id = ?", id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("病例 '%s': %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("查詢病例 '%s' 失敗: %w", id, err)
	}
	return c, nil
}

func (s *MySQLStore) CreateCase(c *models.PatientCase) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("CreateCase 參數 病例 ID 不得為空")
	}
	var confidence sql.NullFloat64
	if c.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *c.Confidence, Valid: true}
	}
	_, err := s.db.Exec(
		"INSERT INTO patient_cases ("+caseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.PatientID, c.PatientName, c.Age, c.Gender, string(c.Modality), c.Focus, c.ImageURL, c.ImagePath,
		string(c.Status), c.Findings.NullString, confidence, c.Timestamp,
	)
	if err != nil {
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == 1062 {
			return fmt.Errorf("病例 '%s' 已存在", c.ID)
		}
		return fmt.Errorf("新增病例 '%s' 失敗: %w", c.ID, err)
	}
	return nil
}

func (s *MySQLStore) UpdateCaseStatus(id string, status models.CaseStatus, findings models.JsonNullString, confidence *float64) error {
	var conf sql.NullFloat64
	if confidence != nil {
		conf = sql.NullFloat64{Float64: *confidence, Valid: true}
	}
	res, err := s.db.Exec("UPDATE patient_cases SET status = ?, findings = ?, confidence = ? WHERE id = ?", string(status), findings.NullString, conf, id)
	if err != nil {
		return fmt.Errorf("更新病例 '%s' 狀態失敗: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// 值未變動時 MySQL 也回報 0，需再確認病例是否存在
		if _, getErr := s.GetCase(id); getErr != nil {
			return getErr
		}
	}
	return nil
}

// SaveAnalysisResult 以 case_id 為鍵寫入或覆蓋分析結果
func (s *MySQLStore) SaveAnalysisResult(result *models.AnalysisResult) error {
	if result == nil || result.CaseID == "" {
		return fmt.Errorf("SaveAnalysisResult 參數 CaseID 不得為空")
	}
	recs := result.Recommendations
	if recs == nil {
		recs = []string{}
	}
	recJSON, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("序列化建議事項失敗: %w", err)
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.Exec(`
		INSERT INTO analysis_results
			(case_id, classification, confidence, findings_summary, recommendations, heatmap_url, segmentation_mask, prompt_version, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			classification = VALUES(classification), confidence = VALUES(confidence),
			findings_summary = VALUES(findings_summary), recommendations = VALUES(recommendations),
			heatmap_url = VALUES(heatmap_url), segmentation_mask = VALUES(segmentation_mask),
			prompt_version = VALUES(prompt_version), model = VALUES(model), created_at = VALUES(created_at)`,
		result.CaseID, result.Classification, result.Confidence, result.FindingsSummary, recJSON,
		result.HeatmapURL, result.SegmentationMask, result.PromptVersion, result.Model, createdAt,
	)
	if err != nil {
		return fmt.Errorf("儲存病例 '%s' 的分析結果失敗: %w", result.CaseID, err)
	}
	return nil
}

func (s *MySQLStore) GetAnalysisResult(caseID string) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	var recJSON []byte
	var heatmap, mask, promptVersion, model sql.NullString
	err := s.db.QueryRow(`
		SELECT case_id, classification, confidence, findings_summary, recommendations,
			heatmap_url, segmentation_mask, prompt_version, model, created_at
		FROM analysis_results WHERE case_id = ?`, caseID).
		Scan(&r.CaseID, &r.Classification, &r.Confidence, &r.FindingsSummary, &recJSON, &heatmap, &mask, &promptVersion, &model, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("病例 '%s' 的分析結果: %w", caseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("查詢病例 '%s' 的分析結果失敗: %w", caseID, err)
	}
	r.Recommendations = []string{}
	if len(recJSON) > 0 {
		if err := json.Unmarshal(recJSON, &r.Recommendations); err != nil {
			return nil, fmt.Errorf("無法解析病例 '%s' 的建議事項: %w", caseID, err)
		}
	}
	r.HeatmapURL = heatmap.String
	r.SegmentationMask = mask.String
	r.PromptVersion = promptVersion.String
	r.Model = model.String
	return &r, nil
}
