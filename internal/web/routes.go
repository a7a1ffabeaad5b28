package web

import (
	"NCDEarlyDetect/internal/config"
	"NCDEarlyDetect/internal/web/handlers"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AnalysisServiceRunner 由 *services.AnalyzeService 實作
type AnalysisServiceRunner interface {
	handlers.CaseAnalyzer
	handlers.PendingRunner
}

// SetupRouter 建立 HTTP 路由。mediaBasePath 為空時不提供 /media/ (例如使用物件儲存時)。
func SetupRouter(
	appConfig *config.Config,
	analyzeService AnalysisServiceRunner,
	uploadService handlers.UploadPipeline,
	exporter handlers.CaseExporter,
	mediaBasePath string,
) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   appConfig.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", handlers.RoleHeader},
		ExposedHeaders:   []string{"Content-Disposition", "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	workspaceHandler := handlers.NewWorkspaceHandler(appConfig.AppName)
	caseHandler := handlers.NewCaseHandler(analyzeService)
	uploadHandler := handlers.NewUploadHandler(uploadService, appConfig.Upload.MaxBytes)
	triggerAnalysisHandler := handlers.NewTriggerAnalysisHandler(analyzeService)
	exportHandler := handlers.NewExportHandler(exporter)

	r.Get("/healthz", workspaceHandler.Health)

	r.Route("/api", func(api chi.Router) {
		api.Get("/meta", workspaceHandler.Meta)
		api.Get("/workspace", workspaceHandler.Workspace)
		api.Get("/training-jobs", workspaceHandler.TrainingJobs)

		api.Route("/cases", func(cr chi.Router) {
			cr.Get("/", caseHandler.List)
			cr.Method(http.MethodPost, "/analyze-pending", triggerAnalysisHandler)
			cr.Get("/{id}", caseHandler.Get)
			cr.Post("/{id}/analyze", caseHandler.Analyze)
			cr.Get("/{id}/analysis", caseHandler.Result)
		})
		api.Post("/analyze", caseHandler.AnalyzeImage)

		api.Route("/uploads", func(ur chi.Router) {
			ur.Post("/", uploadHandler.Create)
			ur.Get("/{id}", uploadHandler.Get)
			ur.Delete("/{id}", uploadHandler.Cancel)
		})

		api.With(middleware.Timeout(2*time.Minute)).Method(http.MethodGet, "/export", exportHandler)
	})

	if mediaBasePath != "" {
		mediaHandler, err := handlers.NewMediaHandler(mediaBasePath)
		if err != nil {
			return nil, err
		}
		// http.StripPrefix 會移除 "/media" 前綴，剩下的相對路徑交給 mediaHandler
		r.Handle("/media/*", http.StripPrefix("/media", mediaHandler))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("警告：未匹配的路由: %s", r.URL.Path)
		http.NotFound(w, r)
	})

	log.Println("資訊：HTTP 路由設定完成。")
	return r, nil
}
