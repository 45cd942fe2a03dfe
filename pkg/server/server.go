// Package server provides a public API for embedding the srg job worker.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/hyp3-srg/internal/api"
	"github.com/robert-malhotra/hyp3-srg/internal/jobs"
)

// Runner executes back-projection and time-series pipelines.
type Runner = jobs.Runner

// Options configures the job worker.
type Options struct {
	// WorkDir is the root under which every job gets its own directory (required).
	WorkDir string

	// JobTTL is how long finished jobs stay queryable.
	// Default: 24h
	JobTTL time.Duration

	// CleanupInterval is how often expired jobs are dropped.
	// Default: 5m
	CleanupInterval time.Duration

	// QueueDepth is the number of jobs that may wait for the worker.
	// Default: 16
	QueueDepth int

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a job worker that can be embedded in another application.
type Server struct {
	router chi.Router
	store  *jobs.MemoryStore
	queue  *jobs.Queue
}

// New creates a job worker executing jobs through runner.
func New(runner Runner, opts Options) *Server {
	if opts.JobTTL == 0 {
		opts.JobTTL = 24 * time.Hour
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	if opts.QueueDepth == 0 {
		opts.QueueDepth = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	store := jobs.NewMemoryStore(opts.JobTTL, opts.CleanupInterval)
	queue := jobs.NewQueue(store, runner, opts.WorkDir, opts.QueueDepth).WithLogger(opts.Logger)
	router := api.NewRouter(api.NewHandlers(queue, opts.Logger), opts.Logger)

	return &Server{
		router: router,
		store:  store,
		queue:  queue,
	}
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start runs queued jobs in the background until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go s.queue.Run(ctx)
}

// Close stops background goroutines (job expiry).
func (s *Server) Close() {
	s.store.Stop()
}
