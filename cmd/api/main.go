package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/voxreel/voxreel/internal/api"
	"github.com/voxreel/voxreel/internal/assets"
	"github.com/voxreel/voxreel/internal/compose"
	"github.com/voxreel/voxreel/internal/config"
	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/queue"
	"github.com/voxreel/voxreel/internal/scenes"
	"github.com/voxreel/voxreel/internal/services"
	"github.com/voxreel/voxreel/internal/synthesis"
	"github.com/voxreel/voxreel/internal/worker"
	"github.com/voxreel/voxreel/internal/ws"
)

const reapInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogFormat)
	logger.Info("starting voxreel API")

	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize job store", "error", err)
		os.Exit(1)
	}

	q, err := newQueue(cfg)
	if err != nil {
		logger.Error("failed to initialize queue", "error", err)
		os.Exit(1)
	}
	defer q.Close()
	logger.Info("queue ready", "backend", cfg.QueueBackend)

	hub := ws.NewHub(logger)

	sceneOpts := scenes.Options{
		WordsPerSecond:  cfg.WordsPerSecond,
		MinSceneSeconds: cfg.MinSceneSeconds,
		MaxSceneSeconds: cfg.MaxSceneSeconds,
	}

	handler := api.NewHandler(store, q, hub, sceneOpts, cfg.MaxRetries, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		logger.Info("API key authentication enabled")
	} else {
		logger.Warn("no BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.WorkerEnabled {
		pool, err := newWorkerPool(cfg, store, q, hub, sceneOpts, logger)
		if err != nil {
			logger.Error("failed to initialize worker pool", "error", err)
			os.Exit(1)
		}
		go pool.Start(workerCtx)
	}

	// Maintenance cycle: reap terminal jobs past retention, then re-enqueue
	// any PENDING job whose envelope was lost (for example a delayed retry
	// scheduled by a worker that shut down before the backoff elapsed).
	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				n, err := store.Reap(ctx, cfg.JobRetentionTTL)
				if err != nil {
					logger.Error("job reap failed", "error", err)
				} else if n > 0 {
					logger.Info("reaped expired jobs", "count", n)
				}

				rescued, err := worker.RescuePending(ctx, store, q, 0)
				if err != nil {
					logger.Error("pending job rescue failed", "error", err)
				} else if rescued > 0 {
					logger.Info("re-enqueued orphaned pending jobs", "count", rescued)
				}
				cancel()
			}
		}
	}()

	go func() {
		logger.Info("API server listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}

func newLogger(format string) *slog.Logger {
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}

func newStore(cfg *config.Config, logger *slog.Logger) (jobs.Store, error) {
	if cfg.StoreBackend == "memory" {
		logger.Warn("using in-memory job store, records do not survive restarts")
		return jobs.NewMemoryStore(logger), nil
	}
	return jobs.NewPostgresStore(cfg.DatabaseURL, logger)
}

func newQueue(cfg *config.Config) (queue.Queue, error) {
	if cfg.QueueBackend == "memory" {
		return queue.NewMemoryQueue(0), nil
	}
	return queue.NewRedisQueue(cfg.RedisURL)
}

func newCache(cfg *config.Config) (assets.Cache, error) {
	if cfg.QueueBackend == "memory" {
		return assets.NewMemoryCache(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return assets.NewRedisCache(client), nil
}

func newWorkerPool(cfg *config.Config, store jobs.Store, q queue.Queue, hub *ws.Hub, sceneOpts scenes.Options, logger *slog.Logger) (*worker.Pool, error) {
	cache, err := newCache(cfg)
	if err != nil {
		return nil, err
	}

	// Provider chain in fallback order: stock photo search first, generated
	// imagery after. Providers without a configured key are skipped.
	var providers []services.AssetProvider
	if cfg.PexelsAPIKey != "" {
		providers = append(providers, services.NewPexelsProvider(cfg.PexelsAPIKey, cfg.ProviderTimeout, logger))
	}
	if cfg.PixabayAPIKey != "" {
		providers = append(providers, services.NewPixabayProvider(cfg.PixabayAPIKey, cfg.ProviderTimeout, logger))
	}
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, services.NewGeminiProvider(cfg.GeminiAPIKey, cfg.ProviderTimeout, logger))
	}
	if len(providers) == 0 {
		logger.Warn("no asset provider keys configured, every scene will use placeholder visuals")
	}

	var tts services.TTSService
	if cfg.TTSProvider == "openai" {
		tts = services.NewOpenAITTSService(cfg.OpenAIKey, logger)
		logger.Info("TTS provider: OpenAI")
	} else {
		tts = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, logger)
		logger.Info("TTS provider: ElevenLabs", "voice", cfg.ElevenLabsVoiceID)
	}

	ffmpeg, err := services.NewFFmpegService(cfg.TempDir, logger)
	if err != nil {
		return nil, err
	}

	resolver := assets.NewResolver(cache, providers, cfg.AssetCacheDir, cfg.ProviderTimeout, cfg.AssetCacheTTL, logger)
	synth := synthesis.NewSynthesizer(tts, ffmpeg, ffmpeg, filepath.Join(cfg.TempDir, "audio"), logger)

	composer, err := compose.NewComposer(ffmpeg, cfg.OutputDir, logger)
	if err != nil {
		return nil, err
	}

	sink := worker.MultiSink{
		worker.NewStoreSink(store),
		worker.NewHubSink(hub),
	}

	return worker.NewPool(store, q, resolver, synth, composer, sink, worker.Options{
		Concurrency: cfg.MaxConcurrentJobs,
		SoftTimeout: cfg.SoftJobTimeout,
		HardTimeout: cfg.HardJobTimeout,
		SceneOpts:   sceneOpts,
	}, logger), nil
}
