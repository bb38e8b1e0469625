package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/accounts/internal/jobmetrics"
)

type stampCall struct {
	id int64
	at time.Time
}

type fakeStamper struct {
	calls []stampCall
	err   error
}

func (f *fakeStamper) StampLastLogin(_ context.Context, id int64, at time.Time) error {
	f.calls = append(f.calls, stampCall{id: id, at: at})
	return f.err
}

type fakeEnqueuer struct {
	tasks  []*asynq.Task
	err    error
	closed bool
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error {
	f.closed = true
	return nil
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestNewStampLastLoginTaskRejectsInvalidID(t *testing.T) {
	_, err := NewStampLastLoginTask(StampLastLoginPayload{UserID: 0})
	assert.Error(t, err)
}

func TestStampLastLoginJobAppliesPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task, err := NewStampLastLoginTask(StampLastLoginPayload{UserID: 7, At: at})
	require.NoError(t, err)
	assert.Equal(t, TaskStampLastLogin, task.Type())

	stamper := &fakeStamper{}
	job := NewStampLastLoginJob(stamper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, stamper.calls, 1)
	assert.EqualValues(t, 7, stamper.calls[0].id)
	assert.True(t, stamper.calls[0].at.Equal(at))
}

func TestStampLastLoginJobSkipsMalformedPayload(t *testing.T) {
	stamper := &fakeStamper{}
	job := NewStampLastLoginJob(stamper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	for _, payload := range []string{`not json`, `{"user_id":0}`} {
		err := job.Handle(context.Background(), asynq.NewTask(TaskStampLastLogin, []byte(payload)))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	}
	assert.Empty(t, stamper.calls)
}

func TestStampLastLoginJobReturnsStoreErrors(t *testing.T) {
	boom := errors.New("store down")
	stamper := &fakeStamper{err: boom}
	job := NewStampLastLoginJob(stamper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewStampLastLoginTask(StampLastLoginPayload{UserID: 1, At: time.Now()})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestNilJobIsNotConfigured(t *testing.T) {
	var job *StampLastLoginJob
	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskStampLastLogin, nil)))
}

func TestClientRecordLoginQueuesTask(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := &Client{client: enq}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	require.NoError(t, client.RecordLogin(context.Background(), 42, at))
	require.Len(t, enq.tasks, 1)

	var payload StampLastLoginPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.EqualValues(t, 42, payload.UserID)
	assert.True(t, payload.At.Equal(at))
	assert.Equal(t, time.UTC, payload.At.Location())

	require.NoError(t, client.Close())
	assert.True(t, enq.closed)
}

func TestClientRecordLoginPropagatesEnqueueError(t *testing.T) {
	client := &Client{client: &fakeEnqueuer{err: errors.New("redis down")}}
	assert.Error(t, client.RecordLogin(context.Background(), 1, time.Now()))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	assert.Error(t, err)
}

func serveHealth(t *testing.T, h *Handler) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := serveHealth(t, NewHandler(nil, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"retry":0,"failed":0}`, rr.Body.String())
}

func TestHealthReportsQueueInfo(t *testing.T) {
	h := NewHandler(nil, nil)
	h.inspector = fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1, Archived: 2}}
	rr := serveHealth(t, h)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"retry":1,"failed":2}`, rr.Body.String())
}

func TestHealthUnavailable(t *testing.T) {
	h := NewHandler(nil, nil)
	h.inspector = fakeInspector{err: errors.New("dial tcp: refused")}
	rr := serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "refused")
}
