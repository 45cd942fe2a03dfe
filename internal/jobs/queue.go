package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/robert-malhotra/hyp3-srg/internal/pipeline"
	"github.com/robert-malhotra/hyp3-srg/internal/storage"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srg",
		Name:      "jobs_total",
		Help:      "Jobs finished, by type and final status.",
	}, []string{"type", "status"})

	jobsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srg",
		Name:      "jobs_queued",
		Help:      "Jobs waiting for the worker.",
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "srg",
		Name:      "job_duration_seconds",
		Help:      "Wall time of finished jobs.",
		Buckets:   prometheus.ExponentialBuckets(30, 2, 10),
	}, []string{"type"})
)

// Runner executes pipelines. *pipeline.Coordinator implements it.
type Runner interface {
	BackProject(ctx context.Context, opts pipeline.BackProjectionOptions) (*pipeline.Result, error)
	TimeSeries(ctx context.Context, opts pipeline.TimeSeriesOptions) (*pipeline.Result, error)
}

// Queue runs submitted jobs one at a time, each in <workRoot>/<job id>.
type Queue struct {
	store    *MemoryStore
	runner   Runner
	workRoot string
	pending  chan string
	logger   *slog.Logger
}

// NewQueue creates a queue holding at most depth waiting jobs.
func NewQueue(store *MemoryStore, runner Runner, workRoot string, depth int) *Queue {
	if depth <= 0 {
		depth = 16
	}
	return &Queue{
		store:    store,
		runner:   runner,
		workRoot: workRoot,
		pending:  make(chan string, depth),
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the queue
func (q *Queue) WithLogger(logger *slog.Logger) *Queue {
	q.logger = logger
	return q
}

// Store returns the job store.
func (q *Queue) Store() *MemoryStore {
	return q.store
}

// Submit validates params for typ and queues a new job.
func (q *Queue) Submit(typ Type, params json.RawMessage) (Job, error) {
	if err := validate(typ, params); err != nil {
		return Job{}, err
	}

	job := Job{
		ID:         uuid.NewString(),
		Type:       typ,
		Status:     StatusPending,
		Parameters: params,
		Submitted:  time.Now().UTC(),
	}
	q.store.Put(job)

	select {
	case q.pending <- job.ID:
		jobsQueued.Inc()
	default:
		q.store.Update(job.ID, func(j *Job) {
			j.Status = StatusFailed
			j.Error = ErrQueueFull.Error()
		})
		return Job{}, ErrQueueFull
	}

	q.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(typ)),
	)
	return job, nil
}

// Run processes jobs until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.pending:
			jobsQueued.Dec()
			q.process(ctx, id)
		}
	}
}

func (q *Queue) process(ctx context.Context, id string) {
	job, err := q.store.Get(id)
	if err != nil {
		return
	}

	started := time.Now().UTC()
	q.store.Update(id, func(j *Job) {
		j.Status = StatusRunning
		j.Started = &started
	})
	q.logger.InfoContext(ctx, "job started", slog.String("job_id", id), slog.String("job_type", string(job.Type)))

	res, err := q.execute(ctx, job)

	finished := time.Now().UTC()
	status := StatusSucceeded
	q.store.Update(id, func(j *Job) {
		j.Finished = &finished
		if err != nil {
			status = StatusFailed
			j.Status = StatusFailed
			j.Error = err.Error()
			return
		}
		j.Status = StatusSucceeded
		j.Product = res.ProductName
		j.Item = res.Item
		j.Files = []string{res.Archive}
		if res.UploadedURI != "" {
			j.Files = []string{res.UploadedURI}
		}
	})

	jobsTotal.WithLabelValues(string(job.Type), string(status)).Inc()
	jobDuration.WithLabelValues(string(job.Type)).Observe(finished.Sub(started).Seconds())

	if err != nil {
		q.logger.ErrorContext(ctx, "job failed",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	q.logger.InfoContext(ctx, "job finished",
		slog.String("job_id", id),
		slog.String("product", res.ProductName),
		slog.Duration("duration", finished.Sub(started)),
	)
}

func (q *Queue) execute(ctx context.Context, job Job) (*pipeline.Result, error) {
	workDir := filepath.Join(q.workRoot, job.ID)

	switch job.Type {
	case TypeBackProjection:
		var opts pipeline.BackProjectionOptions
		if err := decode(job.Parameters, &opts); err != nil {
			return nil, err
		}
		opts.WorkDir = workDir
		return q.runner.BackProject(ctx, opts)
	case TypeTimeSeries:
		var opts pipeline.TimeSeriesOptions
		if err := decode(job.Parameters, &opts); err != nil {
			return nil, err
		}
		opts.WorkDir = workDir
		return q.runner.TimeSeries(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, job.Type)
	}
}

func validate(typ Type, params json.RawMessage) error {
	switch typ {
	case TypeBackProjection:
		var opts pipeline.BackProjectionOptions
		if err := decode(params, &opts); err != nil {
			return err
		}
		if err := opts.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
	case TypeTimeSeries:
		var opts pipeline.TimeSeriesOptions
		if err := decode(params, &opts); err != nil {
			return err
		}
		if err := opts.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
		for _, g := range opts.Granules {
			if err := checkProductSource(g); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, typ)
	}
	return nil
}

// checkProductSource limits submitted GSLC inputs to s3:// and gs:// objects
// or bare product names inside the job directory. Local paths and http(s)
// URLs are only accepted from the CLI.
func checkProductSource(g string) error {
	if strings.Contains(g, "://") {
		if _, err := storage.ParseURI(g); err != nil {
			return fmt.Errorf("%w: granule %q: %v", ErrInvalidJob, g, err)
		}
		return nil
	}
	if g == "" || strings.ContainsAny(g, `/\:`) || strings.HasPrefix(g, ".") {
		return fmt.Errorf("%w: granule %q must be an s3:// or gs:// URI or a product name", ErrInvalidJob, g)
	}
	return nil
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid job parameters: %v", ErrInvalidJob, err)
	}
	return nil
}
