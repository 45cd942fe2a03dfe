package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/hyp3-srg/internal/jobs"
	"github.com/robert-malhotra/hyp3-srg/internal/pipeline"
)

type runner struct{}

func (runner) BackProject(ctx context.Context, opts pipeline.BackProjectionOptions) (*pipeline.Result, error) {
	return &pipeline.Result{ProductName: opts.Granules[0]}, nil
}

func (runner) TimeSeries(ctx context.Context, opts pipeline.TimeSeriesOptions) (*pipeline.Result, error) {
	return &pipeline.Result{ProductName: "S1_SRG_SBAS"}, nil
}

func TestServer_RunsSubmittedJobs(t *testing.T) {
	s := New(runner{}, Options{
		WorkDir: t.TempDir(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/srg/", http.StripPrefix("/srg", s.Router()))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/srg/jobs", "application/json",
		strings.NewReader(`{"job_type":"BACK_PROJECTION","job_parameters":{"granules":["S1A_SCENE"]}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var job jobs.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))

	assert.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/srg/jobs/" + job.ID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var got jobs.Job
		if json.NewDecoder(r.Body).Decode(&got) != nil {
			return false
		}
		return got.Status == jobs.StatusSucceeded && got.Product == "S1A_SCENE"
	}, 2*time.Second, 20*time.Millisecond)
}
