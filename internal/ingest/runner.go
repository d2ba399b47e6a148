package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"rail-connection-check/internal/feed"
)

// RunnerMetrics receives the outcome of every pass. Implementations must
// tolerate a zero Summary when the fetch itself failed.
type RunnerMetrics interface {
	ObservePass(sum Summary, err error)
	ObserveFetch(d time.Duration, err error)
}

// Notifier announces finished passes to downstream consumers.
type Notifier interface {
	PublishPass(sum Summary, passErr error) error
}

// Runner fetches a snapshot and ingests it on a fixed interval.
type Runner struct {
	source   feed.Source
	pipeline *Pipeline
	interval time.Duration
	metrics  RunnerMetrics
	notifier Notifier

	mu      sync.Mutex // one pass at a time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun time.Time
}

func NewRunner(source feed.Source, pipeline *Pipeline, interval time.Duration, metrics RunnerMetrics, notifier Notifier) *Runner {
	return &Runner{
		source:   source,
		pipeline: pipeline,
		interval: interval,
		metrics:  metrics,
		notifier: notifier,
	}
}

// RunOnce performs one fetch-and-ingest pass.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	snap, err := r.source.Fetch(ctx)
	if r.metrics != nil {
		r.metrics.ObserveFetch(time.Since(start), err)
	}
	if err != nil {
		err = fmt.Errorf("fetch snapshot: %w", err)
		r.finish(Summary{StartedAt: start, FinishedAt: time.Now()}, err)
		return Summary{}, err
	}

	sum, err := r.pipeline.Ingest(ctx, snap)
	if err != nil {
		sum.FinishedAt = time.Now()
	}
	r.finish(sum, err)
	if err != nil {
		return sum, err
	}
	r.lastRun = sum.FinishedAt
	return sum, nil
}

func (r *Runner) finish(sum Summary, err error) {
	if r.metrics != nil {
		r.metrics.ObservePass(sum, err)
	}
	if r.notifier != nil {
		if nerr := r.notifier.PublishPass(sum, err); nerr != nil {
			log.Printf("ingest notify error: %v", nerr)
		}
	}
}

// LastSuccess reports when the last pass committed.
func (r *Runner) LastSuccess() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// Start runs a pass immediately, then one per interval until Stop or
// parent cancellation. Failed passes are logged and left for the next tick.
func (r *Runner) Start(parent context.Context) {
	if r.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.tick(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

func (r *Runner) tick(ctx context.Context) {
	sum, err := r.RunOnce(ctx)
	if err != nil {
		log.Printf("ingest pass failed: %v", err)
		return
	}
	log.Printf("ingest pass %s ok in %s: routes+%d stations+%d trains %d/%d stops %d/%d skipped runs=%d stops=%d",
		sum.PassID, sum.Duration().Round(time.Millisecond),
		sum.RoutesCreated, sum.StationsCreated,
		sum.TrainsInserted, sum.TrainsUpdated,
		sum.StopsInserted, sum.StopsUpdated,
		sum.RunsSkipped, sum.StopsSkipped)
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
