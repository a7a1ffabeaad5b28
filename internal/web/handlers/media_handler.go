package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MediaHandler 提供檔案系統影像儲存中的影像
type MediaHandler struct {
	basePath string // 影像儲存的絕對根路徑
}

// NewMediaHandler 建立一個 MediaHandler 實例
func NewMediaHandler(imageBasePath string) (*MediaHandler, error) {
	if imageBasePath == "" {
		return nil, fmt.Errorf("MediaHandler: 影像根路徑不得為空")
	}
	absBasePath, err := filepath.Abs(imageBasePath)
	if err != nil {
		return nil, fmt.Errorf("MediaHandler: 無法取得影像根路徑的絕對路徑 '%s': %w", imageBasePath, err)
	}
	log.Printf("資訊：[MediaHandler] 初始化成功，影像服務根路徑: %s", absBasePath)
	return &MediaHandler{basePath: absBasePath}, nil
}

// ServeHTTP 期望已移除 /media/ 前綴的相對路徑，例如 2024/05/10/CASE-001/scan.png
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	relativePath := strings.TrimPrefix(r.URL.Path, "/")
	if relativePath == "" || strings.HasSuffix(relativePath, "/") {
		http.Error(w, "無效的影像路徑", http.StatusBadRequest)
		return
	}

	fullPath, err := filepath.Abs(filepath.Join(h.basePath, relativePath))
	if err != nil {
		log.Printf("錯誤：[MediaHandler] 無法解析影像絕對路徑 '%s': %v", relativePath, err)
		http.Error(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}
	if fullPath != h.basePath && !strings.HasPrefix(fullPath, h.basePath+string(os.PathSeparator)) {
		log.Printf("警告：[MediaHandler] 偵測到潛在的路徑遍歷嘗試: '%s' (解析為 '%s')", relativePath, fullPath)
		http.Error(w, "禁止存取", http.StatusForbidden)
		return
	}

	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		log.Printf("錯誤：[MediaHandler] 檢查影像檔案 '%s' 時發生錯誤: %v", fullPath, err)
		http.Error(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, fullPath)
}
