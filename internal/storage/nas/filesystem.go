package nas

import (
	"NCDEarlyDetect/internal/config"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSystemStorage 結構負責與本地檔案系統互動
type FileSystemStorage struct {
	basePath string // 從設定檔讀取的影像儲存根路徑
	now      func() time.Time
}

// NewFileSystemStorage 建立一個 FileSystemStorage 實例
// 它會檢查 basePath 是否存在，如果不存在則嘗試建立它。
func NewFileSystemStorage(nasCfg config.NASConfig) (*FileSystemStorage, error) {
	if nasCfg.ImagePath == "" {
		return nil, fmt.Errorf("NAS 設定中的 imagePath 不得為空")
	}

	absBasePath, err := filepath.Abs(nasCfg.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("無法取得 NAS imagePath 的絕對路徑 '%s': %w", nasCfg.ImagePath, err)
	}

	if _, err := os.Stat(absBasePath); os.IsNotExist(err) {
		log.Printf("資訊：NAS 根目錄 '%s' 不存在，正在嘗試建立...", absBasePath)
		if err := os.MkdirAll(absBasePath, 0o755); err != nil {
			return nil, fmt.Errorf("無法建立 NAS 根目錄 '%s': %w", absBasePath, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("檢查 NAS 根目錄 '%s' 時發生錯誤: %w", absBasePath, err)
	}

	log.Printf("資訊：FileSystemStorage 初始化成功，影像根路徑設定為: %s", absBasePath)
	return &FileSystemStorage{basePath: absBasePath, now: time.Now}, nil
}

// BasePath 回傳影像根目錄的絕對路徑
func (fs *FileSystemStorage) BasePath() string { return fs.basePath }

// ImageURL 回傳 /media/ 路由下對應的網址
func (fs *FileSystemStorage) ImageURL(relativePath string) string {
	return "/media/" + strings.TrimPrefix(filepath.ToSlash(relativePath), "/")
}

// buildTargetPath 構造儲存路徑，例如：/basePath/2025/05/24/CASE-ABC/scan.png
func (fs *FileSystemStorage) buildTargetPath(caseID, originalFileName string) string {
	datePath := fs.now().Format("2006/01/02")
	safeCaseID := filepath.Base(filepath.Clean(caseID))
	safeFileName := filepath.Base(filepath.Clean(originalFileName))
	return filepath.Join(fs.basePath, datePath, safeCaseID, safeFileName)
}

// SaveImage 將影像資料儲存到本地檔案系統，回傳相對於 basePath 的路徑
func (fs *FileSystemStorage) SaveImage(caseID string, originalFileName string, data []byte) (string, error) {
	if caseID == "" || originalFileName == "" {
		return "", fmt.Errorf("SaveImage 參數 caseID, originalFileName 不得為空")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("SaveImage 參數 data 不得為空")
	}

	targetPath := fs.buildTargetPath(caseID, originalFileName)
	targetDir := filepath.Dir(targetPath)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("無法建立目標目錄 '%s': %w", targetDir, err)
	}

	log.Printf("資訊：正在將影像儲存到 '%s'", targetPath)
	if err := os.WriteFile(targetPath, data, 0o644); err != nil {
		return "", fmt.Errorf("無法寫入影像檔案到 '%s': %w", targetPath, err)
	}

	relativePath, err := filepath.Rel(fs.basePath, targetPath)
	if err != nil {
		return "", fmt.Errorf("無法取得 '%s' 相對於 '%s' 的路徑: %w", targetPath, fs.basePath, err)
	}
	return filepath.ToSlash(relativePath), nil
}

// GetImageAbsolutePath 將相對路徑轉換為絕對路徑，並拒絕跳出 basePath 的路徑
func (fs *FileSystemStorage) GetImageAbsolutePath(relativePath string) (string, error) {
	if relativePath == "" {
		return "", fmt.Errorf("GetImageAbsolutePath 參數 relativePath 不得為空")
	}
	absPath := filepath.Join(fs.basePath, filepath.FromSlash(relativePath))
	if absPath != fs.basePath && !strings.HasPrefix(absPath, fs.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("路徑 '%s' 超出影像根目錄", relativePath)
	}
	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("影像檔案 '%s' 無法存取: %w", absPath, err)
	}
	return absPath, nil
}

// ReadImage 讀取影像內容
func (fs *FileSystemStorage) ReadImage(relativePath string) ([]byte, error) {
	absolutePath, err := fs.GetImageAbsolutePath(relativePath)
	if err != nil {
		return nil, fmt.Errorf("無法獲取影像絕對路徑: %w", err)
	}
	data, err := os.ReadFile(absolutePath)
	if err != nil {
		return nil, fmt.Errorf("無法讀取影像檔案 '%s': %w", absolutePath, err)
	}
	return data, nil
}

// DeleteImage 刪除影像檔案，並清除因此變空的病例目錄
func (fs *FileSystemStorage) DeleteImage(relativePath string) error {
	absolutePath, err := fs.GetImageAbsolutePath(relativePath)
	if err != nil {
		return fmt.Errorf("無法獲取待刪除影像的絕對路徑: %w", err)
	}
	if err := os.Remove(absolutePath); err != nil {
		return fmt.Errorf("無法刪除影像檔案 '%s': %w", absolutePath, err)
	}
	log.Printf("資訊：影像 '%s' 刪除成功。", absolutePath)

	parentDir := filepath.Dir(absolutePath)
	if items, err := os.ReadDir(parentDir); err == nil && len(items) == 0 && parentDir != fs.basePath {
		os.Remove(parentDir)
	}
	return nil
}
