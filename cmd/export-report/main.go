package main

import (
	"NCDEarlyDetect/internal/config"
	"NCDEarlyDetect/internal/services"
	"NCDEarlyDetect/internal/storage/memory"
	"NCDEarlyDetect/internal/storage/mysql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const exportLongDesc = `將病例清單與分析結果匯出為 CSV 或 XLSX 檔案。

範例:
  export-report --format xlsx
  export-report --format csv --output ./reports/cases.csv`

type exportCommander struct {
	configDir string
	format    string
	output    string
}

func newExportCmd() *cobra.Command {
	cmder := &exportCommander{}
	cmd := &cobra.Command{
		Use:          "export-report",
		Short:        "匯出病例分析報表",
		Long:         exportLongDesc,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run()
		},
	}
	cmd.Flags().StringVarP(&cmder.configDir, "config-dir", "c", "configs", "設定檔所在目錄")
	cmd.Flags().StringVarP(&cmder.format, "format", "f", "xlsx", "匯出格式 (csv 或 xlsx)")
	cmd.Flags().StringVarP(&cmder.output, "output", "o", "", "輸出檔案路徑，預設為 reports/case_report_<日期>.<格式>")
	return cmd
}

func (c *exportCommander) run() error {
	format := strings.ToLower(c.format)
	if format != "csv" && format != "xlsx" {
		return fmt.Errorf("不支援的匯出格式 '%s' (僅支援 csv, xlsx)", c.format)
	}

	cfg, err := config.Load(c.configDir, "config")
	if err != nil {
		return fmt.Errorf("無法載入設定: %w", err)
	}

	var store services.CaseStore
	if cfg.Database.Driver == "mysql" {
		mysqlStore, err := mysql.NewMySQLStore(cfg.Database)
		if err != nil {
			return fmt.Errorf("無法連接到資料庫: %w", err)
		}
		store = mysqlStore
	} else {
		log.Println("警告：目前設定使用記憶體儲存，報表只會包含示範病例。")
		store = memory.NewStore(cfg.Database.SeedMockData)
	}
	defer store.Close()

	exporter, err := services.NewExportService(store)
	if err != nil {
		return err
	}

	outputPath := c.output
	if outputPath == "" {
		outputPath = filepath.Join("reports", fmt.Sprintf("case_report_%s.%s", time.Now().Format("2006-01-02"), format))
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("無法建立輸出目錄: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("無法建立輸出檔案: %w", err)
	}
	defer file.Close()

	var write func(io.Writer) error = exporter.WriteXLSX
	if format == "csv" {
		write = exporter.WriteCSV
	}
	if err := write(file); err != nil {
		return fmt.Errorf("匯出失敗: %w", err)
	}
	log.Printf("資訊：報表已產生: %s", outputPath)
	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := newExportCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
