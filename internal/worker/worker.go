package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/voxreel/voxreel/internal/assets"
	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
	"github.com/voxreel/voxreel/internal/queue"
	"github.com/voxreel/voxreel/internal/scenes"
	"github.com/voxreel/voxreel/internal/synthesis"
)

const (
	dequeueTimeout  = 5 * time.Second
	terminalTimeout = 10 * time.Second
	sceneGroupLimit = 4
)

// Pipeline stage collaborators, narrowed to what the worker calls.
type assetResolver interface {
	Resolve(ctx context.Context, sceneText string) assets.Resolution
}

type sceneSynthesizer interface {
	SynthesizeScene(ctx context.Context, jobID uuid.UUID, ordinal int, text, voiceProfileID string, estimatedSec float64) (*synthesis.Result, error)
}

type videoComposer interface {
	Compose(ctx context.Context, jobID uuid.UUID, sceneList []models.Scene) (*models.RenderResult, error)
}

// Options tunes the worker pool.
type Options struct {
	WorkerID    string
	Concurrency int
	SoftTimeout time.Duration // cancels the pipeline context
	HardTimeout time.Duration // backstop: fail the job even if the pipeline hangs
	SceneOpts   scenes.Options
}

// Pool consumes job envelopes from the queue lanes and drives each job
// through the full pipeline: decompose, resolve assets, synthesize narration,
// reflow the timeline, compose the artifact.
type Pool struct {
	store    jobs.Store
	queue    queue.Queue
	resolver assetResolver
	synth    sceneSynthesizer
	composer videoComposer
	sink     ProgressSink
	opts     Options
	logger   *slog.Logger
}

func NewPool(store jobs.Store, q queue.Queue, resolver assetResolver, synth sceneSynthesizer, composer videoComposer, sink ProgressSink, opts Options, logger *slog.Logger) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.WorkerID == "" {
		opts.WorkerID = fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	}
	if opts.HardTimeout < opts.SoftTimeout {
		opts.HardTimeout = opts.SoftTimeout
	}

	return &Pool{
		store:    store,
		queue:    q,
		resolver: resolver,
		synth:    synth,
		composer: composer,
		sink:     sink,
		opts:     opts,
		logger:   logger.With("worker_id", opts.WorkerID),
	}
}

// Start runs the consume loops until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool starting", "concurrency", p.opts.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.consume(ctx, slot)
		}(i)
	}
	wg.Wait()

	p.logger.Info("worker pool stopped")
}

func (p *Pool) consume(ctx context.Context, slot int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", "slot", slot, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if env == nil {
			continue
		}

		p.handle(ctx, env)
	}
}

// handle claims the job and runs the pipeline under the soft/hard timeout
// pair. Envelopes whose job is no longer claimable (already claimed by
// another worker, cancelled while queued, or a duplicate delivery) are
// dropped silently.
func (p *Pool) handle(ctx context.Context, env *queue.Envelope) {
	logger := p.logger.With("job_id", env.JobID)

	if err := p.store.Claim(ctx, env.JobID, p.opts.WorkerID); err != nil {
		// ErrAlreadyTerminal covers the cancelled-while-queued case; the
		// stale envelope is simply consumed.
		if errors.Is(err, jobs.ErrNotClaimable) ||
			errors.Is(err, jobs.ErrAlreadyTerminal) ||
			errors.Is(err, jobs.ErrNotFound) {
			logger.Debug("dropping unclaimable delivery", "reason", err)
			return
		}
		logger.Error("claim failed", "error", err)
		return
	}

	job, err := p.store.Get(ctx, env.JobID)
	if err != nil {
		logger.Error("failed to load claimed job", "error", err)
		return
	}

	logger.Info("job claimed", "priority", job.Priority, "attempt", env.Attempt)

	runCtx, cancel := context.WithTimeout(ctx, p.opts.SoftTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.execute(runCtx, job)
	}()

	hardTimer := time.NewTimer(p.opts.HardTimeout)
	defer hardTimer.Stop()

	select {
	case err := <-done:
		if err != nil {
			p.dispose(env, job, err, logger)
		}
	case <-hardTimer.C:
		cancel()
		logger.Error("job exceeded hard timeout, abandoning pipeline")
		p.fail(job.ID, "processing exceeded the hard timeout", logger)
	}
}

// dispose routes a pipeline error to its terminal outcome.
func (p *Pool) dispose(env *queue.Envelope, job *models.Job, pipelineErr error, logger *slog.Logger) {
	switch classify(pipelineErr) {
	case dispositionAbandon:
		logger.Info("job cancelled mid-flight, abandoning", "error", pipelineErr)

	case dispositionFail:
		logger.Warn("job failed permanently", "error", pipelineErr)
		msg := pipelineErr.Error()
		if errors.Is(pipelineErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timeout: processing exceeded %s", p.opts.SoftTimeout)
		}
		p.fail(job.ID, msg, logger)

	case dispositionRetry:
		if job.RetryCount >= job.MaxRetries {
			logger.Warn("retry budget exhausted", "retry_count", job.RetryCount, "error", pipelineErr)
			p.fail(job.ID, fmt.Sprintf("failed after %d retries: %v", job.RetryCount, pipelineErr), logger)
			return
		}
		p.requeue(env, job, pipelineErr, logger)
	}
}

func (p *Pool) fail(jobID uuid.UUID, msg string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalTimeout)
	defer cancel()

	if err := p.store.Fail(ctx, jobID, msg); err != nil && !errors.Is(err, jobs.ErrAlreadyTerminal) {
		logger.Error("failed to record job failure", "error", err)
	}
}

// requeue puts the job back to PENDING and re-enqueues the envelope after a
// backoff so the failure has time to clear.
func (p *Pool) requeue(env *queue.Envelope, job *models.Job, cause error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalTimeout)
	defer cancel()

	if err := p.store.Requeue(ctx, job.ID, cause.Error()); err != nil {
		if errors.Is(err, jobs.ErrAlreadyTerminal) {
			logger.Info("job reached a terminal state before requeue, abandoning")
			return
		}
		logger.Error("requeue failed", "error", err)
		return
	}

	delay := retryDelay(env.Attempt)
	logger.Info("job requeued after transient failure",
		"attempt", env.Attempt+1, "delay", delay, "error", cause)

	next := *env
	next.Attempt++
	time.AfterFunc(delay, func() {
		enqCtx, enqCancel := context.WithTimeout(context.Background(), terminalTimeout)
		defer enqCancel()
		if err := p.queue.Enqueue(enqCtx, &next); err != nil {
			logger.Error("delayed re-enqueue failed", "error", err)
		}
	})
}

// execute runs the pipeline for one claimed job. A nil return means the job
// reached SUCCESS. Progress reports double as cancellation checkpoints: the
// store sink returns ErrAlreadyTerminal once the job has been cancelled.
func (p *Pool) execute(ctx context.Context, job *models.Job) error {
	if err := p.sink.Report(ctx, job.ID, 0.05, "decomposing narration"); err != nil {
		return err
	}

	sceneList, err := scenes.Decompose(job.ID, job.NarrationText, p.opts.SceneOpts)
	if err != nil {
		return err
	}

	measured := make([]float64, len(sceneList))
	degraded := 0

	var mu sync.Mutex
	completedScenes := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sceneGroupLimit)

	for i := range sceneList {
		i := i
		g.Go(func() error {
			scene := &sceneList[i]

			res := p.resolver.Resolve(gctx, scene.NarrationText)
			scene.ResolvedAssetRef = res.Path

			audio, err := p.synth.SynthesizeScene(gctx, job.ID, scene.Ordinal, scene.NarrationText, job.VoiceProfileID, scene.EstimatedSec)
			if err != nil {
				return fmt.Errorf("scene %d: %w", scene.Ordinal, err)
			}
			scene.ResolvedAudioRef = audio.AudioPath
			measured[i] = audio.DurationSec

			mu.Lock()
			if res.Placeholder || audio.Degraded {
				degraded++
			}
			completedScenes++
			progress := 0.1 + 0.6*float64(completedScenes)/float64(len(sceneList))
			msg := fmt.Sprintf("prepared scene %d of %d", completedScenes, len(sceneList))
			mu.Unlock()

			return p.sink.Report(gctx, job.ID, progress, msg)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	sceneList = scenes.Reflow(sceneList, measured)

	if err := p.sink.Report(ctx, job.ID, 0.8, "composing video"); err != nil {
		return err
	}

	result, err := p.composer.Compose(ctx, job.ID, sceneList)
	if err != nil {
		return fmt.Errorf("composition failed: %w", err)
	}

	if err := p.sink.Report(ctx, job.ID, 0.95, finalMessage(degraded, len(sceneList))); err != nil {
		return err
	}

	termCtx, cancel := context.WithTimeout(context.Background(), terminalTimeout)
	defer cancel()

	if err := p.store.Complete(termCtx, job.ID, *result); err != nil {
		return err
	}

	p.logger.Info("job completed",
		"job_id", job.ID, "duration_sec", result.DurationSec, "degraded_scenes", degraded)
	return nil
}

func finalMessage(degraded, total int) string {
	if degraded == 0 {
		return "finalizing artifact"
	}
	return fmt.Sprintf("finalizing artifact (%d of %d scenes degraded)", degraded, total)
}
