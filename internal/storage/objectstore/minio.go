package objectstore

import (
	"NCDEarlyDetect/internal/config"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const opTimeout = 30 * time.Second

// Store 將病例影像存放在 MinIO / S3 相容的物件儲存
type Store struct {
	client     *minio.Client
	bucketName string
	now        func() time.Time
}

// New 建立 MinIO 連線並確保 bucket 存在
func New(ctx context.Context, cfg config.MinIOConfig) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("MinIO 設定中的 endpoint 與 bucket 不得為空")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("建立 MinIO 客戶端失敗: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("檢查 bucket '%s' 失敗: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("建立 bucket '%s' 失敗: %w", cfg.Bucket, err)
		}
		log.Printf("資訊：[ObjectStore] 已建立 bucket '%s'。", cfg.Bucket)
	}
	log.Printf("資訊：[ObjectStore] 初始化成功，endpoint: %s, bucket: %s", cfg.Endpoint, cfg.Bucket)
	return &Store{client: cli, bucketName: cfg.Bucket, now: time.Now}, nil
}

// objectKey 組合物件鍵，例如 2025/05/24/CASE-ABC/scan.png
func (s *Store) objectKey(caseID, fileName string) string {
	return path.Join(s.now().Format("2006/01/02"), path.Base(path.Clean("/"+caseID)), path.Base(path.Clean("/"+fileName)))
}

// SaveImage 上傳影像並回傳物件鍵
func (s *Store) SaveImage(caseID string, originalFileName string, data []byte) (string, error) {
	if caseID == "" || originalFileName == "" {
		return "", fmt.Errorf("SaveImage 參數 caseID, originalFileName 不得為空")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("SaveImage 參數 data 不得為空")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := s.objectKey(caseID, originalFileName)
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(data),
	})
	if err != nil {
		return "", fmt.Errorf("上傳影像 '%s' 失敗: %w", key, err)
	}
	log.Printf("資訊：[ObjectStore] 影像成功上傳到 '%s/%s'", s.bucketName, key)
	return key, nil
}

// ReadImage 下載影像內容
func (s *Store) ReadImage(key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("ReadImage 參數 key 不得為空")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("下載影像 '%s' 失敗: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("讀取影像 '%s' 失敗: %w", key, err)
	}
	return data, nil
}

// DeleteImage 刪除影像物件
func (s *Store) DeleteImage(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("刪除影像 '%s' 失敗: %w", key, err)
	}
	return nil
}
