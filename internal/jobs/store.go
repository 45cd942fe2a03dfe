// Package jobs queues pipeline runs submitted over HTTP and keeps their
// state in memory.
package jobs

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/planetlabs/go-stac"
)

// Type names a pipeline.
type Type string

const (
	TypeBackProjection Type = "BACK_PROJECTION"
	TypeTimeSeries     Type = "TIME_SERIES"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Done reports whether s is terminal.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Sentinel errors for job store operations
var (
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidJob  = errors.New("invalid job")
	ErrQueueFull   = errors.New("job queue is full")
)

// Job is one submitted pipeline run.
type Job struct {
	ID         string          `json:"job_id"`
	Type       Type            `json:"job_type"`
	Status     Status          `json:"status_code"`
	Parameters json.RawMessage `json:"job_parameters"`
	Submitted  time.Time       `json:"request_time"`
	Started    *time.Time      `json:"processing_started,omitempty"`
	Finished   *time.Time      `json:"processing_finished,omitempty"`
	Product    string          `json:"product_name,omitempty"`
	Files      []string        `json:"files,omitempty"`
	Error      string          `json:"error,omitempty"`

	Item *stac.Item `json:"-"`
}

type jobEntry struct {
	job       Job
	expiresAt time.Time // zero until the job finishes
}

// MemoryStore keeps jobs in memory. Finished jobs expire after the TTL.
// This is suitable for a single worker instance.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*jobEntry
	ttl      time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store. ttl specifies how long finished jobs are
// kept; cleanupInterval specifies how often expired jobs are removed.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	store := &MemoryStore{
		jobs:     make(map[string]*jobEntry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	go store.cleanupLoop(cleanupInterval)

	return store
}

// Put adds or replaces a job.
func (s *MemoryStore) Put(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &jobEntry{job: job, expiresAt: s.expiry(job)}
}

// Get returns a copy of the job.
func (s *MemoryStore) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.jobs[id]
	if !ok || s.expired(entry, time.Now()) {
		return Job{}, ErrJobNotFound
	}
	return entry.job, nil
}

// Update applies fn to the stored job under the store lock.
func (s *MemoryStore) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(&entry.job)
	entry.expiresAt = s.expiry(entry.job)
	return nil
}

// List returns every live job, oldest first.
func (s *MemoryStore) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make([]Job, 0, len(s.jobs))
	for _, entry := range s.jobs {
		if !s.expired(entry, now) {
			out = append(out, entry.job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Submitted.Before(out[j].Submitted)
	})
	return out
}

// Stop stops the background cleanup goroutine.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *MemoryStore) expiry(job Job) time.Time {
	if !job.Status.Done() {
		return time.Time{}
	}
	return time.Now().Add(s.ttl)
}

func (s *MemoryStore) expired(entry *jobEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && now.After(entry.expiresAt)
}

// cleanupLoop periodically removes expired jobs.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, entry := range s.jobs {
		if s.expired(entry, now) {
			delete(s.jobs, id)
		}
	}
}
