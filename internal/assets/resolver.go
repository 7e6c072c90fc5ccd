package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/voxreel/voxreel/internal/models"
	"github.com/voxreel/voxreel/internal/services"
)

// providerClass tags every cache key written by this resolver so entries
// stay distinct from any future asset family (audio beds, b-roll clips).
const providerClass = "image_portrait"

// Resolution is the outcome of resolving one scene's visual. Resolve always
// produces one; the chain bottoms out in a locally generated placeholder.
type Resolution struct {
	Path        string
	Source      string // provider name, "cache", or "placeholder"
	FromCache   bool
	Placeholder bool
}

// Resolver walks cache, then the configured provider chain in order, then
// the placeholder generator. Provider failures are classified: a permanent
// or empty result moves to the next provider immediately, a transient one
// does too (the per-scene budget has no room for in-place retries; the job
// level retry covers genuine outages).
type Resolver struct {
	cache           Cache
	providers       []services.AssetProvider
	assetDir        string
	providerTimeout time.Duration
	cacheTTL        time.Duration
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewResolver(cache Cache, providers []services.AssetProvider, assetDir string, providerTimeout, cacheTTL time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:           cache,
		providers:       providers,
		assetDir:        assetDir,
		providerTimeout: providerTimeout,
		cacheTTL:        cacheTTL,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		logger:          logger,
	}
}

// Resolve finds or creates a visual for the given scene text. It never
// returns an error: every failure mode ends in the placeholder.
func (r *Resolver) Resolve(ctx context.Context, sceneText string) Resolution {
	query := ExtractQuery(sceneText)
	key := CacheKey(query, providerClass)

	if res, ok := r.fromCache(ctx, key); ok {
		return res
	}

	for _, provider := range r.providers {
		res, err := r.tryProvider(ctx, provider, query, key)
		if err == nil {
			return res
		}

		var provErr *services.ProviderError
		if errors.As(err, &provErr) {
			r.logger.Warn("asset provider failed, falling through",
				"provider", provider.Name(), "kind", provErr.Kind, "query", query)
		} else {
			r.logger.Warn("asset provider failed, falling through",
				"provider", provider.Name(), "error", err, "query", query)
		}
	}

	return r.placeholder(ctx, key, query)
}

func (r *Resolver) fromCache(ctx context.Context, key string) (Resolution, bool) {
	entry, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache lookup failed", "error", err)
		return Resolution{}, false
	}
	if entry == nil {
		return Resolution{}, false
	}

	// A hit requires the file to still exist; the cache index and the asset
	// directory can drift apart.
	if _, err := os.Stat(entry.ResolvedPath); err != nil {
		return Resolution{}, false
	}

	return Resolution{
		Path:        entry.ResolvedPath,
		Source:      "cache",
		FromCache:   true,
		Placeholder: entry.SourceProvider == "placeholder",
	}, true
}

func (r *Resolver) tryProvider(ctx context.Context, provider services.AssetProvider, query, key string) (Resolution, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.providerTimeout)
	defer cancel()

	result, err := provider.Search(callCtx, query)
	if err != nil {
		return Resolution{}, err
	}

	path, err := r.materialize(callCtx, result, key)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to materialize asset from %s: %w", provider.Name(), err)
	}

	r.remember(ctx, key, path, provider.Name())

	return Resolution{Path: path, Source: provider.Name()}, nil
}

// materialize lands the provider result on disk: inline bytes are written
// directly, URLs are downloaded.
func (r *Resolver) materialize(ctx context.Context, result *services.AssetResult, key string) (string, error) {
	if err := os.MkdirAll(r.assetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create asset dir: %w", err)
	}

	ext := result.Extension
	if ext == "" {
		ext = ".jpg"
	}
	path := filepath.Join(r.assetDir, key+ext)

	if len(result.Data) > 0 {
		if err := os.WriteFile(path, result.Data, 0644); err != nil {
			return "", fmt.Errorf("failed to write asset: %w", err)
		}
		return path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create asset file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to save asset: %w", err)
	}

	return path, nil
}

func (r *Resolver) placeholder(ctx context.Context, key, query string) Resolution {
	path, err := WritePlaceholder(r.assetDir, key)
	if err != nil {
		// Out of disk or similar. Surface a path anyway; composition will
		// fail loudly there and the job-level retry takes over.
		r.logger.Error("placeholder generation failed", "error", err, "query", query)
		return Resolution{
			Path:        filepath.Join(r.assetDir, key+"_placeholder.png"),
			Source:      "placeholder",
			Placeholder: true,
		}
	}

	r.remember(ctx, key, path, "placeholder")

	return Resolution{Path: path, Source: "placeholder", Placeholder: true}
}

func (r *Resolver) remember(ctx context.Context, key, path, source string) {
	entry := &models.CacheEntry{
		CacheKey:       key,
		ResolvedPath:   path,
		SourceProvider: source,
		FetchedAt:      time.Now(),
	}
	if err := r.cache.Put(ctx, entry, r.cacheTTL); err != nil {
		r.logger.Warn("cache write failed", "error", err)
	}
}
