// Package pipeline orchestrates one calibration batch: drain the intake of
// pending flight submissions, normalize and align each one, archive the
// successes, and report a disposition for every flight.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cosmiconair/flight-dose-etl/internal/archive"
	"github.com/cosmiconair/flight-dose-etl/internal/domain"
	"github.com/cosmiconair/flight-dose-etl/internal/observability"
)

// SubmissionSource lists the flights waiting for calibration and acknowledges
// the ones that made it into the archive. Unacknowledged submissions stay
// pending and are picked up again by the next batch.
type SubmissionSource interface {
	Pending(ctx context.Context) ([]domain.Submission, error)
	Done(key domain.Key) error
}

// Archiver persists a calibrated record together with its raw inputs.
// Satisfied by *archive.Archive.
type Archiver interface {
	Add(ctx context.Context, rec *domain.FlightRecord, raw archive.RawFiles) (*archive.Entry, error)
}

// Notifier hands a freshly archived flight to downstream consumers.
// Delivery is best effort; a notify failure never unarchives the flight.
type Notifier interface {
	Notify(ctx context.Context, rec *domain.FlightRecord, entry *archive.Entry) error
}

// Disposition is the terminal state of one flight within a batch.
type Disposition string

const (
	// DispositionArchived: calibrated and stored under its key.
	DispositionArchived Disposition = "archived"
	// DispositionDeferred: not enough overlap between the sources, typically a
	// reference upload that has not arrived yet. Retried by a later batch.
	DispositionDeferred Disposition = "deferred"
	// DispositionUnresolved: alignment confidence below threshold. Held for
	// manual review instead of being archived with a bad calibration.
	DispositionUnresolved Disposition = "unresolved"
	// DispositionFailed: anything else, from malformed input to storage errors.
	DispositionFailed Disposition = "failed"
)

// Result is one flight's outcome.
type Result struct {
	Key         domain.Key
	Disposition Disposition
	Alignment   domain.AlignmentResult // meaningful only when archived
	Err         error                  // nil when archived
}

// Report summarizes a completed batch. Results are ordered by flight key so
// successive runs over the same intake are comparable.
type Report struct {
	Started   time.Time
	Completed time.Time
	Results   []Result
}

// Counts tallies results per disposition.
func (r *Report) Counts() map[Disposition]int {
	out := make(map[Disposition]int)
	for _, res := range r.Results {
		out[res.Disposition]++
	}
	return out
}

// Pipeline runs calibration batches over an intake of flight submissions.
type Pipeline struct {
	source   SubmissionSource
	archiver Archiver
	notifier Notifier // nil when notification is disabled
	logger   *slog.Logger
	metrics  *observability.Metrics

	normCfg     domain.NormalizeConfig
	alignCfg    domain.AlignConfig
	concurrency int

	ready atomic.Bool
}

// New creates a Pipeline with the given collaborators and calibration settings.
func New(source SubmissionSource, archiver Archiver, notifier Notifier,
	logger *slog.Logger, metrics *observability.Metrics,
	normCfg domain.NormalizeConfig, alignCfg domain.AlignConfig, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		source:      source,
		archiver:    archiver,
		notifier:    notifier,
		logger:      logger,
		metrics:     metrics,
		normCfg:     normCfg,
		alignCfg:    alignCfg,
		concurrency: concurrency,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one
// batch, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no calibration batch has completed yet")
	}
	return nil
}

// Run executes one batch: every pending submission is taken through
// normalize, align, build, archive. Per-flight failures never abort sibling
// flights; the report carries one Result per submission.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{Started: clock.Now().UTC()}
	p.metrics.BatchRunning.Set(1)
	defer p.metrics.BatchRunning.Set(0)

	pending, err := p.source.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}
	p.logger.Info("batch started", "pending", len(pending), "workers", p.concurrency)

	results := make([]Result, len(pending))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p.metrics.WorkersBusy.Inc()
				results[i] = p.processOne(ctx, pending[i])
				p.metrics.WorkersBusy.Dec()
			}
		}()
	}
feed:
	for i := range pending {
		select {
		case <-ctx.Done():
			// Stop feeding; flights never handed to a worker stay pending.
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	// Submissions not reached before cancellation have a zero Result.
	compact := results[:0]
	for _, res := range results {
		if res.Disposition != "" {
			compact = append(compact, res)
		}
	}
	report.Results = compact

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Key.String() < report.Results[j].Key.String()
	})
	report.Completed = clock.Now().UTC()
	p.metrics.BatchDuration.Observe(report.Completed.Sub(report.Started).Seconds())
	p.ready.Store(true)

	counts := report.Counts()
	p.logger.Info("batch completed",
		"archived", counts[DispositionArchived],
		"deferred", counts[DispositionDeferred],
		"unresolved", counts[DispositionUnresolved],
		"failed", counts[DispositionFailed],
	)
	return report, ctx.Err()
}

// processOne takes a single submission through the calibration stages and
// maps each failure mode to its disposition.
func (p *Pipeline) processOne(ctx context.Context, sub domain.Submission) Result {
	key := domain.NewKey(sub.Meta)
	log := p.logger.With("data_id", key.String())

	timestamps := sub.Timestamps
	if timestamps == "" {
		timestamps = domain.TimestampsOriginal
	}

	rows, err := domain.Normalize(sub.Readings, sub.Trajectory, sub.Simulation, p.normCfg)
	if err != nil {
		var overlap *domain.InsufficientOverlapError
		if errors.As(err, &overlap) {
			log.Warn("flight deferred", "error", err)
			p.metrics.FlightsProcessed.WithLabelValues(string(DispositionDeferred)).Inc()
			return Result{Key: key, Disposition: DispositionDeferred, Err: err}
		}
		return p.failed(log, key, fmt.Errorf("normalize: %w", err))
	}

	alignStart := clock.Now()
	alignment, err := domain.Align(rows, p.alignCfg)
	p.metrics.AlignmentDuration.Observe(clock.Since(alignStart).Seconds())
	if err != nil {
		var unresolved *domain.AlignmentFailedError
		if errors.As(err, &unresolved) {
			log.Warn("flight unresolved", "error", err)
			p.metrics.FlightsProcessed.WithLabelValues(string(DispositionUnresolved)).Inc()
			return Result{Key: key, Disposition: DispositionUnresolved, Err: err}
		}
		return p.failed(log, key, fmt.Errorf("align: %w", err))
	}

	rec := domain.BuildRecord(sub.Meta, timestamps, rows, alignment)

	raw, err := rawFiles(sub)
	if err != nil {
		return p.failed(log, key, err)
	}
	entry, err := p.archiver.Add(ctx, &rec, raw)
	if err != nil {
		p.metrics.ArchiveOps.WithLabelValues("add", "error").Inc()
		return p.failed(log, key, fmt.Errorf("archive: %w", err))
	}
	p.metrics.ArchiveOps.WithLabelValues("add", "success").Inc()

	if err := p.source.Done(key); err != nil {
		log.Warn("acknowledge submission failed", "error", err)
	}

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, &rec, entry); err != nil {
			log.Warn("notify failed", "error", err)
			p.metrics.NotifyFailures.Inc()
		}
	}

	log.Info("flight archived",
		"offset_s", alignment.OffsetSeconds,
		"beta", alignment.ScalingBeta,
		"fit_r2", alignment.FitR2,
	)
	p.metrics.FlightsProcessed.WithLabelValues(string(DispositionArchived)).Inc()
	return Result{Key: key, Disposition: DispositionArchived, Alignment: alignment}
}

func (p *Pipeline) failed(log *slog.Logger, key domain.Key, err error) Result {
	log.Error("flight failed", "error", err)
	p.metrics.FlightsProcessed.WithLabelValues(string(DispositionFailed)).Inc()
	return Result{Key: key, Disposition: DispositionFailed, Err: err}
}

// rawFiles serializes the submission and its simulation reference for storage
// next to the processed record, so the flight can be reprocessed later.
func rawFiles(sub domain.Submission) (archive.RawFiles, error) {
	bundle, err := json.Marshal(sub)
	if err != nil {
		return archive.RawFiles{}, fmt.Errorf("marshal submission: %w", err)
	}
	ref, err := json.Marshal(sub.Simulation)
	if err != nil {
		return archive.RawFiles{}, fmt.Errorf("marshal reference: %w", err)
	}
	return archive.RawFiles{Submission: bundle, Reference: ref}, nil
}
