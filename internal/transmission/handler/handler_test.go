package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"stampgate/internal/transmission/models"
	"stampgate/internal/transmission/service"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
)

// mockEngine records calls and replays scripted results.
type mockEngine struct {
	record    models.TransmissionRecord
	stats     models.Stats
	buckets   []models.TimelineBucket
	err       error
	lastOpts  service.RetryOptions
	cancelled id.TransmissionID
}

func (m *mockEngine) Enqueue(context.Context, id.StampID) (models.TransmissionRecord, error) {
	return m.record, m.err
}

func (m *mockEngine) Get(context.Context, id.TransmissionID) (models.TransmissionRecord, error) {
	return m.record, m.err
}

func (m *mockEngine) RetryNow(_ context.Context, _ id.TransmissionID, opts service.RetryOptions) (models.TransmissionRecord, error) {
	m.lastOpts = opts
	return m.record, m.err
}

func (m *mockEngine) Cancel(_ context.Context, recordID id.TransmissionID) error {
	m.cancelled = recordID
	return m.err
}

func (m *mockEngine) Statistics(context.Context) (models.Stats, error) {
	return m.stats, m.err
}

func (m *mockEngine) Timeline(context.Context, time.Time, time.Time, time.Duration) ([]models.TimelineBucket, error) {
	return m.buckets, m.err
}

func newServer(engine *mockEngine) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(engine, logger).Register(r)
	return httptest.NewServer(r)
}

func TestHandleEnqueue(t *testing.T) {
	engine := &mockEngine{record: models.TransmissionRecord{
		ID:     id.NewTransmissionID(),
		Status: models.StatusQueued,
	}}
	srv := newServer(engine)
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"csid": id.NewStampID().String()})
	resp, err := http.Post(srv.URL+"/transmissions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got models.TransmissionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, models.StatusQueued, got.Status)
}

func TestHandleEnqueueRequiresCSID(t *testing.T) {
	srv := newServer(&mockEngine{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/transmissions", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRetryPassesOptions(t *testing.T) {
	engine := &mockEngine{record: models.TransmissionRecord{Status: models.StatusSucceeded}}
	srv := newServer(engine)
	defer srv.Close()

	body := []byte(`{"force": true, "max_retries": 5}`)
	resp, err := http.Post(srv.URL+"/transmissions/"+id.NewTransmissionID().String()+"/retry",
		"application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, engine.lastOpts.Force)
	require.NotNil(t, engine.lastOpts.MaxRetries)
	require.Equal(t, 5, *engine.lastOpts.MaxRetries)
}

func TestHandleRetryDeadLetterConflict(t *testing.T) {
	engine := &mockEngine{err: dErrors.New(dErrors.CodeInvalidTransition, "record is dead-lettered; retry requires force")}
	srv := newServer(engine)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/transmissions/"+id.NewTransmissionID().String()+"/retry",
		"application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var errBody map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	require.Equal(t, "invalid_transition", errBody["error"])
}

func TestHandleCancel(t *testing.T) {
	engine := &mockEngine{}
	srv := newServer(engine)
	defer srv.Close()

	recordID := id.NewTransmissionID()
	resp, err := http.Post(srv.URL+"/transmissions/"+recordID.String()+"/cancel",
		"application/json", http.NoBody)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, recordID, engine.cancelled)
}

func TestHandleStatistics(t *testing.T) {
	engine := &mockEngine{stats: models.Stats{Total: 10, SuccessRate: 0.9, SignedCount: 12}}
	srv := newServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/transmissions/statistics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, int64(10), got.Total)
	require.Equal(t, 0.9, got.SuccessRate)
}

func TestHandleTimelineValidatesQuery(t *testing.T) {
	srv := newServer(&mockEngine{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/transmissions/timeline?start=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleTimeline(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	engine := &mockEngine{buckets: []models.TimelineBucket{
		{Start: start, Succeeded: 3, Failed: 1},
	}}
	srv := newServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/transmissions/timeline?start=2026-03-14T10:00:00Z&end=2026-03-14T11:00:00Z&interval=5m")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []models.TimelineBucket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	require.Equal(t, int64(3), got[0].Succeeded)
}
