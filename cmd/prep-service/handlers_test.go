package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/ehrprep/pkg/common/models"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
	"github.com/synaptica-ai/ehrprep/pkg/runs"
)

type fakeRuns struct {
	created   []models.PrepareRequest
	createErr error
	stored    map[uuid.UUID]models.PreparationRun
	listed    string
}

func (f *fakeRuns) Create(_ context.Context, req models.PrepareRequest) (models.PreparationRun, error) {
	if f.createErr != nil {
		return models.PreparationRun{}, f.createErr
	}
	f.created = append(f.created, req)
	return models.PreparationRun{ID: uuid.New(), Kind: req.Kind, Status: runs.StatusQueued, CreatedAt: time.Now()}, nil
}

func (f *fakeRuns) Get(_ context.Context, id uuid.UUID) (models.PreparationRun, error) {
	run, ok := f.stored[id]
	if !ok {
		return models.PreparationRun{}, runs.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeRuns) List(_ context.Context, status string, _ int) ([]models.PreparationRun, error) {
	f.listed = status
	out := make([]models.PreparationRun, 0, len(f.stored))
	for _, run := range f.stored {
		out = append(out, run)
	}
	return out, nil
}

func serve(t *testing.T, svc *fakeRuns, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	router := newRouter(&PrepService{runs: svc})
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, &fakeRuns{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, &fakeRuns{}, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ehrprep_runs_completed_total")
}

func TestCreatePreparation(t *testing.T) {
	svc := &fakeRuns{}
	body := []byte(`{"kind":"finetune","config_path":"configs/finetune.yaml","run_name":"death"}`)

	rec := serve(t, svc, http.MethodPost, "/api/v1/preparations", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run models.PreparationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, runs.StatusQueued, run.Status)
	require.Len(t, svc.created, 1)
	assert.Equal(t, "death", svc.created[0].RunName)
}

func TestCreatePreparationErrors(t *testing.T) {
	rec := serve(t, &fakeRuns{}, http.MethodPost, "/api/v1/preparations", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := &fakeRuns{createErr: patientdata.ConfigError("unknown gender %q", "X")}
	rec = serve(t, svc, http.MethodPost, "/api/v1/preparations", []byte(`{"kind":"finetune"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown gender")

	svc = &fakeRuns{createErr: errors.New("database down")}
	rec = serve(t, svc, http.MethodPost, "/api/v1/preparations", []byte(`{"kind":"finetune"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetPreparation(t *testing.T) {
	id := uuid.New()
	svc := &fakeRuns{stored: map[uuid.UUID]models.PreparationRun{
		id: {ID: id, Kind: models.KindMLM, Status: runs.StatusCompleted},
	}}

	rec := serve(t, svc, http.MethodGet, "/api/v1/preparations/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.PreparationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, id, run.ID)

	rec = serve(t, svc, http.MethodGet, "/api/v1/preparations/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, svc, http.MethodGet, "/api/v1/preparations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPreparations(t *testing.T) {
	id := uuid.New()
	svc := &fakeRuns{stored: map[uuid.UUID]models.PreparationRun{id: {ID: id}}}

	rec := serve(t, svc, http.MethodGet, "/api/v1/preparations?status=failed&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", svc.listed)

	var body struct {
		Runs  []models.PreparationRun `json:"runs"`
		Count int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	rec = serve(t, svc, http.MethodGet, "/api/v1/preparations?limit=-2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
