package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"gm-batch-converter/internal/domain"
)

// MaxWorkers caps concurrent gm processes.
const MaxWorkers = 8

// Converter runs one job; *gm.Runner is the production implementation.
type Converter interface {
	Tool() string
	CheckTool() (string, error)
	Convert(ctx context.Context, job domain.ConversionJob, opts domain.ConvertOptions) (domain.ConversionResult, error)
}

// Work is one batch ready to execute.
type Work struct {
	ID      string
	Jobs    []domain.ConversionJob
	Skip    []domain.ConversionJob
	Options domain.ConvertOptions
}

// Executor fans jobs out over a bounded worker pool.
type Executor struct {
	converter Converter
	workers   int
	log       logrus.FieldLogger
}

// DefaultWorkers returns the pool size used when settings leave it at zero.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// NewExecutor creates an executor running at most workers jobs at once.
func NewExecutor(converter Converter, workers int, log logrus.FieldLogger) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{converter: converter, workers: workers, log: log}
}

// Run executes work and blocks until every job has reported exactly once.
// A missing gm binary aborts before any job starts. Cancelling ctx reports
// not-yet-started jobs as skipped and kills in-flight processes.
func (e *Executor) Run(ctx context.Context, work Work, sink Sink) (domain.BatchSummary, error) {
	if _, err := e.converter.CheckTool(); err != nil {
		return domain.BatchSummary{}, err
	}

	total := len(work.Jobs) + len(work.Skip)
	reporter := NewReporter(work.ID, e.converter.Tool(), total, sink)
	log := e.log.WithFields(logrus.Fields{"batch": work.ID, "jobs": total, "workers": e.workers})
	log.Info("batch started")

	for _, job := range work.Skip {
		reporter.Record(domain.ConversionResult{Job: job, Skipped: true, Error: "output exists"})
	}

	if len(work.Jobs) > 0 {
		if err := e.runPool(ctx, work, reporter, log); err != nil {
			return domain.BatchSummary{}, err
		}
	}

	summary := reporter.Summary(ctx.Err() != nil && reporter.Progress().Skipped > len(work.Skip))
	log.WithFields(logrus.Fields{
		"status":    summary.Status,
		"succeeded": summary.Succeeded,
		"failed":    len(summary.Failed),
		"skipped":   summary.Skipped,
		"duration":  summary.Duration,
	}).Info("batch finished")
	return summary, nil
}

// runPool submits every job to an ants pool and waits for all results.
func (e *Executor) runPool(ctx context.Context, work Work, reporter *Reporter, log logrus.FieldLogger) error {
	pool, err := ants.NewPool(e.workers, ants.WithPreAlloc(true))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, job := range work.Jobs {
		if ctx.Err() != nil {
			reporter.Record(cancelledResult(job))
			continue
		}

		job := job
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			reporter.Record(e.convert(ctx, job, work.Options, log))
		})
		if submitErr != nil {
			wg.Done()
			reporter.Record(domain.ConversionResult{
				Job:   job,
				Error: fmt.Sprintf("schedule job: %v", submitErr),
			})
		}
	}
	wg.Wait()
	return nil
}

// convert runs one job and folds its error into the result.
func (e *Executor) convert(ctx context.Context, job domain.ConversionJob, opts domain.ConvertOptions, log logrus.FieldLogger) domain.ConversionResult {
	if ctx.Err() != nil {
		return cancelledResult(job)
	}

	result, err := e.converter.Convert(ctx, job, opts)
	result.Job = job
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return cancelledResult(job)
		}
		result.Success = false
		if result.Error == "" {
			result.Error = err.Error()
		}
		log.WithFields(logrus.Fields{
			"input": job.InputPath,
			"exit":  result.ExitCode,
		}).WithError(err).Warn("conversion failed")
		return result
	}

	log.WithFields(logrus.Fields{
		"input":    job.InputPath,
		"output":   job.OutputPath,
		"duration": result.Duration,
	}).Debug("conversion done")
	return result
}

func cancelledResult(job domain.ConversionJob) domain.ConversionResult {
	return domain.ConversionResult{Job: job, Skipped: true, Error: "cancelled"}
}
