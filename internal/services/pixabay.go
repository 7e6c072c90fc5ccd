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
// Pixabay image search
// Second provider in the fallback chain; key travels as a query parameter.
// ---------------------------------------------------------------------------

const pixabayBaseURL = "https://pixabay.com/api/"

type PixabayProvider struct {
	apiKey string
	client *http.Client
	logger *slog.Logger
}

var _ AssetProvider = (*PixabayProvider)(nil)

func NewPixabayProvider(apiKey string, timeout time.Duration, logger *slog.Logger) *PixabayProvider {
	return &PixabayProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *PixabayProvider) Name() string { return "pixabay" }

type pixabaySearchResponse struct {
	Hits []struct {
		ID            int    `json:"id"`
		LargeImageURL string `json:"largeImageURL"`
		WebformatURL  string `json:"webformatURL"`
	} `json:"hits"`
}

func (p *PixabayProvider) Search(ctx context.Context, query string) (*AssetResult, error) {
	reqURL := fmt.Sprintf("%s?key=%s&q=%s&image_type=photo&orientation=vertical&per_page=3",
		pixabayBaseURL, url.QueryEscape(p.apiKey), url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailurePermanent, Err: err}
	}

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

	var result pixabaySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailureTransient, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(result.Hits) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Kind: FailureEmpty, Err: fmt.Errorf("no hits for %q", query)}
	}

	hit := result.Hits[0]
	assetURL := hit.LargeImageURL
	if assetURL == "" {
		assetURL = hit.WebformatURL
	}

	p.logger.Debug("pixabay hit", "query", query, "image_id", hit.ID)
	return &AssetResult{URL: assetURL, Extension: ".jpg"}, nil
}
