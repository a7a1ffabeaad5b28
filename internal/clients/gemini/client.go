package gemini

import (
	"NCDEarlyDetect/internal/models"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultModelName = "gemini-3-flash-preview"

// contentGenerator 是 *genai.GenerativeModel 中我們用到的部分，測試時可替換
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client 結構用於與 Gemini API 互動。
// SDK 客戶端在第一次分析時才建立，缺少 API Key 時於該次呼叫回傳 ErrMissingAPIKey。
type Client struct {
	apiKey         string
	modelName      string
	promptTemplate string
	promptVersion  string

	mu        sync.Mutex
	sdkClient *genai.Client
	model     contentGenerator
}

// NewClient 建立一個 Gemini 客戶端實例 (不會立即連線)
func NewClient(apiKey string, modelName string, promptTemplate string, promptVersion string) *Client {
	if modelName == "" {
		modelName = defaultModelName
		log.Printf("警告：[Gemini Client] 未提供影像分析模型名稱，使用預設值: %s\n", modelName)
	}
	return &Client{
		apiKey:         apiKey,
		modelName:      modelName,
		promptTemplate: promptTemplate,
		promptVersion:  promptVersion,
	}
}

// ModelName 回傳使用的模型名稱
func (c *Client) ModelName() string { return c.modelName }

// findingSchema 定義模型必須遵守的回應結構
func findingSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"classification":   {Type: genai.TypeString},
			"confidence":       {Type: genai.TypeNumber},
			"findings_summary": {Type: genai.TypeString},
			"recommendations": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"classification", "confidence", "findings_summary", "recommendations"},
	}
}

// ensureModel 延遲建立 SDK 客戶端；失敗時下一次呼叫會重試建立
func (c *Client) ensureModel(ctx context.Context) (contentGenerator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != nil {
		return c.model, nil
	}
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	sdkClient, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, &TransportError{Op: "建立客戶端", Err: err}
	}
	model := sdkClient.GenerativeModel(c.modelName)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   findingSchema(),
	}
	c.sdkClient = sdkClient
	c.model = model
	log.Printf("資訊：[Gemini Client] 影像分析模型 '%s' 初始化成功。\n", c.modelName)
	return model, nil
}

// Close 釋放 SDK 客戶端
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sdkClient == nil {
		return nil
	}
	err := c.sdkClient.Close()
	c.sdkClient = nil
	c.model = nil
	return err
}

// BuildPrompt 將分析重點原樣放入 Prompt 範本；範本沒有 %s 時附加在最後
func BuildPrompt(template string, focus string) string {
	if strings.Contains(template, "%s") {
		return strings.Replace(template, "%s", focus, 1)
	}
	return strings.TrimSpace(template) + " Focus on " + focus + "."
}

// Analyze 接收 data URI 格式的影像與分析重點，回傳結構化的判讀結果
func (c *Client) Analyze(ctx context.Context, imageRef string, focus string) (*models.AnalysisResult, error) {
	data, mimeType, err := ParseDataURI(imageRef)
	if err != nil {
		return nil, err
	}
	return c.AnalyzeImage(ctx, models.AnalysisRequest{ImageData: data, MIMEType: mimeType, Focus: focus})
}

// AnalyzeImage 向 Gemini API 發送影像和 Prompt 以進行分析
func (c *Client) AnalyzeImage(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if len(req.ImageData) == 0 {
		return nil, fmt.Errorf("%w: 影像內容為空", ErrInvalidImage)
	}
	mimeType := normalizeMIMEType(req.MIMEType)
	if !IsSupportedMIMEType(mimeType) {
		return nil, fmt.Errorf("%w: 不支援的 MIME 類型 '%s'", ErrInvalidImage, req.MIMEType)
	}
	if strings.TrimSpace(req.Focus) == "" {
		return nil, ErrEmptyFocus
	}

	model, err := c.ensureModel(ctx)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(c.promptTemplate, req.Focus)
	log.Printf("資訊：[Gemini Client] AnalyzeImage - 開始分析影像 (%s, %d bytes)，分析重點: %s\n", mimeType, len(req.ImageData), req.Focus)
	requestParts := []genai.Part{
		genai.Blob{MIMEType: mimeType, Data: req.ImageData},
		genai.Text(prompt),
	}
	resp, err := model.GenerateContent(ctx, requestParts...)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	log.Printf("資訊：[Gemini Client] AnalyzeImage - 收到 API 的原始文字回應 (長度: %d)\n", len(text))

	result, err := ParseResult(text)
	if err != nil {
		log.Printf("錯誤：[Gemini Client] AnalyzeImage - 解析模型回應失敗: %v\n", err)
		return nil, err
	}
	result.Model = c.modelName
	result.PromptVersion = c.promptVersion
	log.Printf("資訊：[Gemini Client] AnalyzeImage - 解析成功: %s (%s)\n", result.Classification, result.ConfidencePercent())
	return result, nil
}

// classifyProviderError 將 SDK 錯誤轉為 TransportError 並保留 HTTP 狀態碼
func classifyProviderError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &TransportError{Op: "GenerateContent", Err: fmt.Errorf("%w: %v", ErrBlocked, blocked)}
	}
	te := &TransportError{Op: "GenerateContent", Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		te.StatusCode = apiErr.Code
	}
	return te
}

// responseText 串接第一個候選結果的文字內容
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &TransportError{Op: "GenerateContent", Err: ErrNoCandidates}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			for _, rating := range candidate.SafetyRatings {
				log.Printf("警告：[Gemini Client] 安全評級 - Category: %s, Probability: %s\n", rating.Category, rating.Probability)
			}
			return "", &TransportError{Op: "GenerateContent", Err: fmt.Errorf("%w (FinishReason: %s)", ErrBlocked, candidate.FinishReason.String())}
		}
		return "", nil
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			log.Printf("警告：[Gemini Client] 收到非預期的 Part 類型: %T\n", part)
		}
	}
	return sb.String(), nil
}
