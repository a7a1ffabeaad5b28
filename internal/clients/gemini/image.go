package gemini

import (
	"encoding/base64"
	"fmt"
	"strings"
)

var supportedImageMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// normalizeMIMEType 統一大小寫並修正常見的別名
func normalizeMIMEType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "image/jpg" {
		return "image/jpeg"
	}
	return mimeType
}

// IsSupportedMIMEType 回傳模型是否接受此影像類型
func IsSupportedMIMEType(mimeType string) bool {
	return supportedImageMIMETypes[normalizeMIMEType(mimeType)]
}

// ParseDataURI 解析 "data:<mime>;base64,<body>" 格式的影像字串
func ParseDataURI(imageRef string) ([]byte, string, error) {
	header, body, found := strings.Cut(strings.TrimSpace(imageRef), ",")
	if !found {
		return nil, "", fmt.Errorf("%w: 缺少以逗號分隔的 data URI 標頭", ErrInvalidImage)
	}
	if !strings.HasPrefix(strings.ToLower(header), "data:") {
		return nil, "", fmt.Errorf("%w: 標頭必須以 'data:' 開頭", ErrInvalidImage)
	}
	meta := strings.Split(header[len("data:"):], ";")
	mimeType := normalizeMIMEType(meta[0])
	isBase64 := false
	for _, p := range meta[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: 僅支援 base64 編碼", ErrInvalidImage)
	}
	if !IsSupportedMIMEType(mimeType) {
		return nil, "", fmt.Errorf("%w: 不支援的 MIME 類型 '%s'", ErrInvalidImage, mimeType)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		return nil, "", fmt.Errorf("%w: base64 解碼失敗: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: 影像內容為空", ErrInvalidImage)
	}
	return data, mimeType, nil
}

// EncodeDataURI 將影像內容轉換為 data URI
func EncodeDataURI(data []byte, mimeType string) string {
	return fmt.Sprintf("data:%s;base64,%s", normalizeMIMEType(mimeType), base64.StdEncoding.EncodeToString(data))
}
