// Package pipeline answers site queries arriving on a message stream in batches.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
)

// BatchExtractor reads up to batchSize raw query messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer turns a raw query message into a response message.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple response messages to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Options tunes batch processing.
type Options struct {
	BatchSize int
	// Workers bounds how many queries of a batch are searched concurrently.
	Workers int
}

// Pipeline orchestrates the extract-search-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	opts        Options
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// CheckReadiness returns nil once the pipeline has answered at least one batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not answered any queries yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.opts.BatchSize, "workers", p.opts.Workers)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	b := newBackoff(200*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, b) {
			return nil
		}
	}
}

// processBatch runs one extract-search-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, b *backoff) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.opts.BatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return b.wait(ctx)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	b.reset()

	outBatch := p.transformAll(ctx, rawBatch)
	if ctx.Err() != nil {
		// Answers computed under a cancelled context are incomplete; leave the
		// batch uncommitted so it is redelivered.
		return false
	}

	if !p.loadWithRetry(ctx, outBatch, b) {
		return false
	}
	for _, raw := range rawBatch {
		p.commitOffset(ctx, raw)
	}

	if len(outBatch) > 0 {
		p.metrics.MessagesProduced.Add(float64(len(outBatch)))
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// transformAll answers every message of the batch with at most Workers
// searches in flight. Output keeps the batch order; messages that cannot be
// parsed are dropped.
func (p *Pipeline) transformAll(ctx context.Context, rawBatch []domain.RawEvent) []domain.OutputEvent {
	outs := make([]domain.OutputEvent, len(rawBatch))
	ok := make([]bool, len(rawBatch))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i := range rawBatch {
		g.Go(func() error {
			raw := rawBatch[i]
			out, err := p.transformer.Transform(ctx, raw)
			if err != nil {
				p.logger.Warn("transform failed, skipping message",
					"error", err,
					"topic", raw.Topic,
					"partition", raw.Partition,
					"offset", raw.Offset,
				)
				p.metrics.TransformErrors.Inc()
				return nil
			}
			outs[i], ok[i] = out, true
			return nil
		})
	}
	_ = g.Wait()

	outBatch := make([]domain.OutputEvent, 0, len(rawBatch))
	for i, out := range outs {
		if ok[i] {
			outBatch = append(outBatch, out)
		}
	}
	return outBatch
}

// loadWithRetry publishes the batch, backing off between failed attempts until
// it succeeds or the context ends. Returns false if the pipeline should stop.
func (p *Pipeline) loadWithRetry(ctx context.Context, outBatch []domain.OutputEvent, b *backoff) bool {
	if len(outBatch) == 0 {
		return true
	}
	for {
		err := p.loader.LoadBatch(ctx, outBatch)
		if err == nil {
			b.reset()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(outBatch), "retry_in", b.current)
		if !b.wait(ctx) {
			return false
		}
	}
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoff doubles its delay after every wait, up to max.
type backoff struct {
	initial time.Duration
	current time.Duration
	max     time.Duration
}

func newBackoff(initial, maxDelay time.Duration) *backoff {
	return &backoff{initial: initial, current: initial, max: maxDelay}
}

func (b *backoff) reset() {
	b.current = b.initial
}

// wait sleeps for the current delay and advances it. Returns false if the
// context ended first.
func (b *backoff) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, b.current) {
		return false
	}
	b.current = retry.NextBackoff(b.current, b.max)
	return true
}
