package services

import (
	"NCDEarlyDetect/internal/config"
	"NCDEarlyDetect/internal/models"
	"context"
	"fmt"
	"sync"
)

type fakeImages struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
	// block 不為 nil 時 SaveImage 會等到 channel 關閉
	block   chan struct{}
	entered chan struct{}
}

func newFakeImages() *fakeImages {
	return &fakeImages{files: make(map[string][]byte)}
}

func (f *fakeImages) SaveImage(caseID string, originalFileName string, data []byte) (string, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := caseID + "/" + originalFileName
	f.files[p] = append([]byte(nil), data...)
	return p, nil
}

func (f *fakeImages) ReadImage(relativePath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[relativePath]
	if !ok {
		return nil, fmt.Errorf("影像不存在: %s", relativePath)
	}
	return data, nil
}

func (f *fakeImages) DeleteImage(relativePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, relativePath)
	return nil
}

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	requests []models.AnalysisRequest
	result   *models.AnalysisResult
	err      error
	// release 不為 nil 時 AnalyzeImage 會等到 channel 關閉
	release chan struct{}
	started chan string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, imageRef string, focus string) (*models.AnalysisResult, error) {
	return f.AnalyzeImage(ctx, models.AnalysisRequest{ImageData: []byte(imageRef), MIMEType: "image/png", Focus: focus})
}

func (f *fakeAnalyzer) AnalyzeImage(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- req.Focus
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.Recommendations = append([]string(nil), f.result.Recommendations...)
	return &r, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Scheduler.BatchSize = 5
	cfg.Upload.MaxBytes = 1 << 20
	return cfg
}
