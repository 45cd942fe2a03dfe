package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/hyp3-srg/internal/jobs"
)

// maxRequestBody bounds job submission bodies.
const maxRequestBody = 1 << 20

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	JobType       jobs.Type       `json:"job_type"`
	JobParameters json.RawMessage `json:"job_parameters"`
}

// JobList is the body of GET /jobs.
type JobList struct {
	Jobs []jobs.Job `json:"jobs"`
}

// Handlers serves the job API.
type Handlers struct {
	queue  *jobs.Queue
	logger *slog.Logger
}

// NewHandlers creates handlers over queue.
func NewHandlers(queue *jobs.Queue, logger *slog.Logger) *Handlers {
	return &Handlers{queue: queue, logger: logger}
}

// SubmitJob queues a pipeline run.
// POST /jobs
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	body := io.LimitReader(r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	job, err := h.queue.Submit(req.JobType, req.JobParameters)
	switch {
	case errors.Is(err, jobs.ErrInvalidJob):
		WriteBadRequest(w, err.Error())
		return
	case errors.Is(err, jobs.ErrQueueFull):
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "job submission failed", slog.String("error", err.Error()))
		WriteInternalError(w, "job submission failed", "")
		return
	}

	w.Header().Set("Location", "/jobs/"+job.ID)
	WriteJSON(w, http.StatusAccepted, job)
}

// ListJobs returns live jobs, optionally filtered by ?status= and ?job_type=.
// GET /jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := jobs.Status(r.URL.Query().Get("status"))
	typ := jobs.Type(r.URL.Query().Get("job_type"))

	out := JobList{Jobs: []jobs.Job{}}
	for _, job := range h.queue.Store().List() {
		if status != "" && job.Status != status {
			continue
		}
		if typ != "" && job.Type != typ {
			continue
		}
		out.Jobs = append(out.Jobs, job)
	}
	WriteJSON(w, http.StatusOK, out)
}

// GetJob returns one job.
// GET /jobs/{jobId}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// JobItem returns the STAC item of a finished job's product.
// GET /jobs/{jobId}/item
func (h *Handlers) JobItem(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusSucceeded || job.Item == nil {
		WriteError(w, http.StatusConflict, ErrCodeConflict, "job "+job.ID+" has no product yet (status "+string(job.Status)+")")
		return
	}
	WriteGeoJSON(w, http.StatusOK, job.Item)
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (jobs.Job, bool) {
	id := chi.URLParam(r, "jobId")
	job, err := h.queue.Store().Get(id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		WriteNotFound(w, "job not found: "+id)
		return jobs.Job{}, false
	}
	if err != nil {
		WriteInternalError(w, err.Error(), "")
		return jobs.Job{}, false
	}
	return job, true
}
