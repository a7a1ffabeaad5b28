package services

import (
	"NCDEarlyDetect/internal/models"
	"NCDEarlyDetect/internal/storage"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheetName = "病例分析"

var exportHeaders = []string{
	"病例編號",
	"病患編號",
	"病患姓名",
	"年齡",
	"性別",
	"影像格式",
	"分析重點",
	"狀態",
	"建立時間",
	"分類",
	"信心度",
	"發現摘要",
	"建議",
	"模型",
	"提示版本",
}

// ExportRow 是匯出報表中的一列
type ExportRow struct {
	Case   models.PatientCase
	Result *models.AnalysisResult
}

// Values 依 exportHeaders 的順序輸出欄位
func (r ExportRow) Values() []string {
	row := make([]string, len(exportHeaders))
	row[0] = r.Case.ID
	row[1] = r.Case.PatientID
	row[2] = r.Case.PatientName
	if r.Case.Age > 0 {
		row[3] = strconv.Itoa(r.Case.Age)
	}
	row[4] = r.Case.Gender
	row[5] = string(r.Case.Modality)
	row[6] = r.Case.AnalysisFocus()
	row[7] = string(r.Case.Status)
	row[8] = r.Case.DisplayTimestamp()
	row[10] = r.Case.ConfidencePercent()
	row[11] = r.Case.Findings.String
	if r.Result != nil {
		row[9] = r.Result.Classification
		row[10] = r.Result.ConfidencePercent()
		row[11] = r.Result.FindingsSummary
		row[12] = strings.Join(r.Result.Recommendations, "; ")
		row[13] = r.Result.Model
		row[14] = r.Result.PromptVersion
	}
	return row
}

// ExportService 將病例與分析結果匯出為 CSV 或 XLSX
type ExportService struct {
	store CaseStore
}

func NewExportService(store CaseStore) (*ExportService, error) {
	if store == nil {
		return nil, fmt.Errorf("ExportService：CaseStore 不得為空")
	}
	return &ExportService{store: store}, nil
}

// Rows 讀取所有病例 (由新到舊) 及其分析結果
func (s *ExportService) Rows() ([]ExportRow, error) {
	cases, err := s.store.ListCases("")
	if err != nil {
		return nil, fmt.Errorf("取得病例失敗: %w", err)
	}
	rows := make([]ExportRow, 0, len(cases))
	for _, c := range cases {
		row := ExportRow{Case: c}
		result, err := s.store.GetAnalysisResult(c.ID)
		switch {
		case err == nil:
			row.Result = result
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("取得病例 '%s' 的分析結果失敗: %w", c.ID, err)
		}
		rows = append(rows, row)
	}
	log.Printf("資訊：[ExportService] 準備匯出 %d 筆病例。", len(rows))
	return rows, nil
}

// WriteCSV 以 UTF-8 BOM 開頭寫出 CSV，讓試算表軟體正確顯示中文
func (s *ExportService) WriteCSV(w io.Writer) error {
	rows, err := s.Rows()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return fmt.Errorf("寫入 CSV BOM 失敗: %w", err)
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeaders); err != nil {
		return fmt.Errorf("寫入 CSV 標題失敗: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row.Values()); err != nil {
			return fmt.Errorf("寫入 CSV 資料列失敗 (病例 %s): %w", row.Case.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX 寫出單一工作表的 Excel 檔案
func (s *ExportService) WriteXLSX(w io.Writer) error {
	rows, err := s.Rows()
	if err != nil {
		return err
	}
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("警告：[ExportService] 關閉 Excel 檔案失敗: %v", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", exportSheetName); err != nil {
		return fmt.Errorf("設定工作表名稱失敗: %w", err)
	}

	if err := setRow(f, 1, exportHeaders); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, i+2, row.Values()); err != nil {
			return err
		}
	}
	if err := f.SetPanes(exportSheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("設定凍結窗格失敗: %w", err)
	}
	if err := f.SetColWidth(exportSheetName, "L", "M", 60); err != nil {
		return fmt.Errorf("設定欄寬失敗: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("寫出 Excel 檔案失敗: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("計算儲存格位置失敗: %w", err)
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(exportSheetName, cell, &row); err != nil {
		return fmt.Errorf("寫入第 %d 列失敗: %w", rowNum, err)
	}
	return nil
}
