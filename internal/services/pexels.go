package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ---------------------------------------------------------------------------
// Pexels photo search
// First provider in the fallback chain: free stock photography with generous
// portrait-orientation coverage.
// ---------------------------------------------------------------------------

const pexelsBaseURL = "https://api.pexels.com/v1"

type PexelsProvider struct {
	apiKey string
	client *http.Client
	logger *slog.Logger
}

var _ AssetProvider = (*PexelsProvider)(nil)

func NewPexelsProvider(apiKey string, timeout time.Duration, logger *slog.Logger) *PexelsProvider {
	return &PexelsProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *PexelsProvider) Name() string { return "pexels" }

type pexelsSearchResponse struct {
	Photos []struct {
		ID  int `json:"id"`
		Src struct {
			Large2x  string `json:"large2x"`
			Large    string `json:"large"`
			Original string `json:"original"`
		} `json:"src"`
	} `json:"photos"`
}

func (p *PexelsProvider) Search(ctx context.Context, query string) (*AssetResult, error) {
	reqURL := fmt.Sprintf("%s/search?query=%s&per_page=1&orientation=portrait",
		pexelsBaseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailurePermanent, Err: err}
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{
			Provider: p.Name(),
			Kind:     classifyStatus(resp.StatusCode),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var result pexelsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailureTransient, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(result.Photos) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailureEmpty, Err: fmt.Errorf("no photos for %q", query)}
	}

	src := result.Photos[0].Src
	assetURL := src.Large2x
	if assetURL == "" {
		assetURL = src.Large
	}
	if assetURL == "" {
		assetURL = src.Original
	}

	p.logger.Debug("pexels hit", "query", query, "photo_id", result.Photos[0].ID)
	return &AssetResult{URL: assetURL, Extension: ".jpg"}, nil
}
