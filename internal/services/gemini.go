package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Gemini generated-image provider
// Last real provider before the placeholder: when no stock search has a hit,
// a scene image is generated from the query instead.
// ---------------------------------------------------------------------------

const geminiModel = "gemini-3-pro-image-preview"

type GeminiProvider struct {
	apiKey string
	client *http.Client
	logger *slog.Logger
}

var _ AssetProvider = (*GeminiProvider)(nil)

func NewGeminiProvider(apiKey string, timeout time.Duration, logger *slog.Logger) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Gemini API request/response structures
type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (p *GeminiProvider) Search(ctx context.Context, query string) (*AssetResult, error) {
	prompt := fmt.Sprintf(
		"Generate a single photorealistic portrait-orientation illustration for a narrated video scene about: %s. No text or captions in the image.",
		query)

	reqBody := geminiGenerateContentRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        &geminiImageConfig{AspectRatio: "9:16"},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailurePermanent, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", geminiModel, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailurePermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailureTransient, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider: p.Name(),
			Kind:     classifyStatus(resp.StatusCode),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(bodyBytes), 200)),
		}
	}

	var geminiResp geminiGenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailureTransient, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailureEmpty, Err: fmt.Errorf("no candidates in response")}
	}

	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			imageData, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, &ProviderError{Provider: p.Name(), Kind: FailureTransient, Err: fmt.Errorf("failed to decode base64 image: %w", err)}
			}
			ext := ".png"
			if part.InlineData.MimeType == "image/jpeg" {
				ext = ".jpg"
			}
			p.logger.Debug("gemini generated image", "query", query, "bytes", len(imageData))
			return &AssetResult{Data: imageData, Extension: ext}, nil
		}
	}

	return nil, &ProviderError{Provider: p.Name(), Kind: FailureEmpty, Err: fmt.Errorf("no image data in response")}
}

// truncate limits a string to maxLen characters for log and error output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
