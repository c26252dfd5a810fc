package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/scheduler"
)

type fakeLogReader struct {
	byOperation map[string][]models.OperationLogEntry
	recent      []models.OperationLogEntry
	lastLimit   int
	err         error
}

func (f *fakeLogReader) GetOperationLogs(ctx context.Context, operationID string, limit int) ([]models.OperationLogEntry, error) {
	f.lastLimit = limit
	return f.byOperation[operationID], f.err
}

func (f *fakeLogReader) Recent(ctx context.Context, limit int) ([]models.OperationLogEntry, error) {
	f.lastLimit = limit
	return f.recent, f.err
}

func TestOperationLogsHandler(t *testing.T) {
	reader := &fakeLogReader{
		byOperation: map[string][]models.OperationLogEntry{
			"op-1": {{OperationID: "op-1", Level: "INF", Message: "Account switched"}},
		},
		recent: []models.OperationLogEntry{{OperationID: "op-2", Message: "Domain vacated"}},
	}
	h := NewOperationLogsHandler(reader, arbor.NewLogger())

	rec := serve(t, h.ListHandler, http.MethodGet, "/api/operations?id=op-1&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Account switched")
	assert.Equal(t, 5, reader.lastLimit)

	rec = serve(t, h.ListHandler, http.MethodGet, "/api/operations?limit=bad", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Domain vacated")
	assert.Equal(t, defaultOperationLogLimit, reader.lastLimit)

	reader.err = errors.New("disk gone")
	rec = serve(t, h.ListHandler, http.MethodGet, "/api/operations", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSchedulerHandler(t *testing.T) {
	svc := scheduler.NewService(arbor.NewLogger())
	require.NoError(t, svc.RegisterJob("validate", "@every 30s", "Validate token", func() error { return nil }))
	h := NewSchedulerHandler(svc)

	rec := serve(t, h.ListJobsHandler, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"validate"`)

	rec = serve(t, h.TriggerJobHandler, http.MethodPost, "/api/jobs/validate/trigger", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(t, h.TriggerJobHandler, http.MethodPost, "/api/jobs/unknown/trigger", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h.DisableJobHandler, http.MethodPost, "/api/jobs/validate/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)

	rec = serve(t, h.EnableJobHandler, http.MethodPost, "/api/jobs/validate/enable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":true`)

	rec = serve(t, h.EnableJobHandler, http.MethodGet, "/api/jobs/validate/enable", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
