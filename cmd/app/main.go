package main

import (
	"NCDEarlyDetect/internal/clients/gemini"
	"NCDEarlyDetect/internal/config"
	"NCDEarlyDetect/internal/scheduler"
	"NCDEarlyDetect/internal/services"
	"NCDEarlyDetect/internal/storage/memory"
	"NCDEarlyDetect/internal/storage/mysql"
	"NCDEarlyDetect/internal/storage/nas"
	"NCDEarlyDetect/internal/storage/objectstore"
	"NCDEarlyDetect/internal/web"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func openCaseStore(cfg *config.Config) (services.CaseStore, error) {
	if cfg.Database.Driver != "mysql" {
		log.Println("資訊：使用記憶體病例儲存，程式結束後資料不會保留。")
		return memory.NewStore(cfg.Database.SeedMockData), nil
	}
	if err := mysql.Migrate(cfg.Database); err != nil {
		return nil, err
	}
	store, err := mysql.NewMySQLStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.SeedMockData {
		if err := store.SeedMockCases(); err != nil {
			log.Printf("警告：載入示範病例失敗: %v", err)
		}
	}
	return store, nil
}

// openImageStorage 回傳影像儲存與 /media/ 使用的根目錄 (物件儲存時為空)
func openImageStorage(ctx context.Context, cfg *config.Config) (services.ImageStorage, string, error) {
	if cfg.Storage.Driver == "minio" {
		store, err := objectstore.New(ctx, cfg.Storage.MinIO)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}
	fs, err := nas.NewFileSystemStorage(cfg.Storage.NAS)
	if err != nil {
		return nil, "", err
	}
	return fs, fs.BasePath(), nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load("./configs", "config")
	if err != nil {
		log.Fatalf("錯誤：無法載入設定: %v", err)
	}
	log.Println("資訊：應用程式設定載入成功。")

	caseStore, err := openCaseStore(cfg)
	if err != nil {
		log.Fatalf("錯誤：初始化病例儲存失敗: %v", err)
	}
	defer caseStore.Close()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	imageStorage, mediaBasePath, err := openImageStorage(initCtx, cfg)
	initCancel()
	if err != nil {
		log.Fatalf("錯誤：初始化影像儲存失敗: %v", err)
	}

	promptTemplate, promptVersion := cfg.ImageAnalysisPrompt()
	geminiClient := gemini.NewClient(cfg.GeminiClient.APIKey, cfg.GeminiClient.Model, promptTemplate, promptVersion)
	defer geminiClient.Close()
	log.Printf("資訊：Gemini 客戶端已設定，模型: %s, Prompt 版本: %s", geminiClient.ModelName(), promptVersion)

	analyzeSvc, err := services.NewAnalyzeService(cfg, caseStore, imageStorage, geminiClient, services.NewFetchService(nil))
	if err != nil {
		log.Fatalf("錯誤：初始化影像分析服務失敗: %v", err)
	}
	uploadSvc, err := services.NewUploadService(cfg, caseStore, imageStorage)
	if err != nil {
		log.Fatalf("錯誤：初始化上傳服務失敗: %v", err)
	}
	exportSvc, err := services.NewExportService(caseStore)
	if err != nil {
		log.Fatalf("錯誤：初始化匯出服務失敗: %v", err)
	}

	if cfg.Scheduler.Enabled {
		log.Println("資訊：排程器已在設定檔中啟用，正在初始化...")
		appScheduler, err := scheduler.NewScheduler(analyzeSvc, cfg.Scheduler.AnalyzeCronSpec)
		if err != nil {
			log.Fatalf("錯誤：初始化排程器失敗: %v", err)
		}
		appScheduler.Start()
		defer appScheduler.Stop()
	} else {
		log.Println("資訊：排程器已在設定檔中禁用。")
	}

	router, err := web.SetupRouter(cfg, analyzeSvc, uploadSvc, exportSvc, mediaBasePath)
	if err != nil {
		log.Fatalf("錯誤：無法建立 HTTP 路由: %v", err)
	}
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("資訊：HTTP 伺服器正在監聽 %s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("錯誤：HTTP 伺服器監聽失敗: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("資訊：收到關閉訊號，正在關閉應用程式...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("錯誤：HTTP 伺服器優雅關閉失敗: %v", err)
	}
	log.Println("資訊：HTTP 伺服器已關閉。")
	uploadSvc.Shutdown()
	log.Println("資訊：應用程式已成功關閉。")
}
