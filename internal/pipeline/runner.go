package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/observability"
)

// BatchProcessor processes a single day. *Processor implements it.
type BatchProcessor interface {
	Process(ctx context.Context, runID string, batch Batch, classes domain.ClassSet) (domain.BatchResult, error)
}

// BatchFailure records a day that could not be processed.
type BatchFailure struct {
	Date time.Time
	Err  error
}

// Summary reports the outcome of a Run, ordered by batch date.
type Summary struct {
	RunID    string
	Results  []domain.BatchResult
	Failures []BatchFailure
}

// Err joins the failures, or returns nil when every batch succeeded.
func (s Summary) Err() error {
	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = fmt.Errorf("%s: %w", domain.DateStamp(f.Date), f.Err)
	}
	return errors.Join(errs...)
}

// Runner processes several days, a bounded number at a time. A failed day
// never stops the others.
type Runner struct {
	processor   BatchProcessor
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	newRunID    func() string
}

// NewRunner creates a Runner that processes up to concurrency batches at once.
func NewRunner(processor BatchProcessor, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		processor:   processor,
		concurrency: max(concurrency, 1),
		logger:      logger,
		metrics:     metrics,
		newRunID:    uuid.NewString,
	}
}

// CheckReadiness returns nil once at least one batch has completed.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no batch has completed yet")
	}
	return nil
}

// Run processes batches against classes and reports every outcome.
func (r *Runner) Run(ctx context.Context, batches []Batch, classes domain.ClassSet) Summary {
	runID := r.newRunID()
	r.logger.Info("run started", "run_id", runID, "batches", len(batches), "concurrency", r.concurrency)

	var (
		mu      sync.Mutex
		summary = Summary{RunID: runID}
		g       errgroup.Group
	)
	g.SetLimit(r.concurrency)
	for _, b := range batches {
		g.Go(func() error {
			start := time.Now()
			res, err := r.processor.Process(ctx, runID, b, classes)
			r.metrics.BatchDuration.Observe(time.Since(start).Seconds())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.metrics.BatchesTotal.WithLabelValues("error").Inc()
				r.logger.Error("batch failed",
					"run_id", runID,
					"batch_date", domain.DateStamp(b.Date),
					"error", err,
					"kind", domain.ErrorKind(err),
				)
				summary.Failures = append(summary.Failures, BatchFailure{Date: b.Date, Err: err})
				return nil
			}
			r.metrics.BatchesTotal.WithLabelValues("success").Inc()
			r.ready.Store(true)
			summary.Results = append(summary.Results, res)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures live in the summary

	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].BatchDate.Before(summary.Results[j].BatchDate)
	})
	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Date.Before(summary.Failures[j].Date)
	})

	r.logger.Info("run finished",
		"run_id", runID,
		"succeeded", len(summary.Results),
		"failed", len(summary.Failures),
	)
	return summary
}
