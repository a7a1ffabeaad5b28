package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"
)

const maxRemoteImageBytes = 50 << 20

// FetchService 下載病例中以 URL 參照、尚未存入影像儲存的影像
type FetchService struct {
	httpClient *http.Client
}

// NewFetchService 建立 FetchService 實例；httpClient 為 nil 時使用預設逾時設定
func NewFetchService(httpClient *http.Client) *FetchService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &FetchService{httpClient: httpClient}
}

// FetchImage 下載影像並回傳內容與 MIME 類型
func (s *FetchService) FetchImage(ctx context.Context, url string) ([]byte, string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, "", fmt.Errorf("不支援的影像 URL '%s'", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("建立影像下載請求失敗: %w", err)
	}
	log.Printf("資訊：[FetchService] 正在下載影像: %s\n", url)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("下載影像 '%s' 失敗: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("下載影像 '%s' 失敗: HTTP %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("讀取影像 '%s' 內容失敗: %w", url, err)
	}
	if len(data) > maxRemoteImageBytes {
		return nil, "", fmt.Errorf("影像 '%s' 超過大小上限 %d bytes", url, maxRemoteImageBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("影像 '%s' 內容為空", url)
	}

	mimeType := http.DetectContentType(data)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil && strings.HasPrefix(parsed, "image/") {
			mimeType = parsed
		}
	}
	log.Printf("資訊：[FetchService] 影像下載完成 (%s, %d bytes)\n", mimeType, len(data))
	return data, mimeType, nil
}
