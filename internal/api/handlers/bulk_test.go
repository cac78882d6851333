package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathsynch/internal/billing"
	"pathsynch/internal/bulk"
	"pathsynch/internal/db"
	"pathsynch/internal/types"
)

// =============================================================================
// Mock Stores
// =============================================================================

type mockBulkJobStore struct {
	createFn     func(ctx context.Context, job *types.BulkJob) error
	getByIDFn    func(ctx context.Context, id string) (*types.BulkJob, error)
	listByUserFn func(ctx context.Context, userID string, params db.ListJobsParams) ([]*types.BulkJob, types.PageInfo, error)

	created *types.BulkJob
}

func (m *mockBulkJobStore) Create(ctx context.Context, job *types.BulkJob) error {
	m.created = job
	if m.createFn != nil {
		return m.createFn(ctx, job)
	}
	return nil
}

func (m *mockBulkJobStore) GetByID(ctx context.Context, id string) (*types.BulkJob, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundJob, "not found", nil)
}

func (m *mockBulkJobStore) ListByUser(ctx context.Context, userID string, params db.ListJobsParams) ([]*types.BulkJob, types.PageInfo, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, params)
	}
	return nil, types.PageInfo{}, nil
}

type mockJobPitchLister struct {
	listByJobFn func(ctx context.Context, jobID string) ([]*types.Pitch, error)
}

func (m *mockJobPitchLister) ListByJob(ctx context.Context, jobID string) ([]*types.Pitch, error) {
	if m.listByJobFn != nil {
		return m.listByJobFn(ctx, jobID)
	}
	return nil, nil
}

type mockJobEnqueuer struct {
	dispatchFn func(ctx context.Context, msg types.BulkJobMessage) error

	dispatched []types.BulkJobMessage
}

func (m *mockJobEnqueuer) Dispatch(ctx context.Context, msg types.BulkJobMessage) error {
	m.dispatched = append(m.dispatched, msg)
	if m.dispatchFn != nil {
		return m.dispatchFn(ctx, msg)
	}
	return nil
}

type bulkFixture struct {
	handler *BulkHandler
	jobs    *mockBulkJobStore
	pitches *mockJobPitchLister
	queue   *mockJobEnqueuer
	gate    *mockGate
}

func newTestBulkHandler() *bulkFixture {
	jobs := &mockBulkJobStore{}
	pitches := &mockJobPitchLister{}
	queue := &mockJobEnqueuer{}
	gate := &mockGate{}
	h := NewBulkHandler(jobs, pitches, queue, gate, billing.NewStaticPlanRegistry(), nil)
	return &bulkFixture{handler: h, jobs: jobs, pitches: pitches, queue: queue, gate: gate}
}

const bulkCSVRow = `Bluebird Coffee,Coffee Shop,,OR,Portland,Sam Reyes,sam@bluebird.coffee,5035551234,,https://bluebird.coffee,4.6,212`

func bulkCSV(rows ...string) string {
	return bulk.TemplateHeader + "\n" + strings.Join(rows, "\n") + "\n"
}

func postCSV(t *testing.T, h *BulkHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/bulk/upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()
	h.Upload(w, req)
	return w
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestBulkHandler_Upload(t *testing.T) {
	f := newTestBulkHandler()

	w := postCSV(t, f.handler, bulkCSV(bulkCSVRow))

	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, f.gate.admitted, 1)
	assert.Equal(t, types.FeatureBulkUpload, f.gate.admitted[0].Feature)
	assert.Equal(t, types.UsageBulkUploads, f.gate.admitted[0].UsageType)
	assert.Equal(t, 1, f.gate.admitted[0].Rows)

	require.NotNil(t, f.jobs.created)
	assert.Equal(t, types.JobPending, f.jobs.created.Status)
	assert.Equal(t, 1, f.jobs.created.ValidRows)

	require.Len(t, f.queue.dispatched, 1)
	assert.Equal(t, f.jobs.created.ID, f.queue.dispatched[0].JobID)

	require.Len(t, f.gate.recorded, 1)
	assert.Equal(t, types.UsageBulkUploads, f.gate.recorded[0].Type)
}

func TestBulkHandler_Upload_Multipart(t *testing.T) {
	f := newTestBulkHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "upload.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, bulkCSV(bulkCSVRow))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/bulk/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Upload(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, f.jobs.created)
	assert.Equal(t, 1, f.jobs.created.ValidRows)
}

func TestBulkHandler_Upload_AllInvalidFailsWithoutEnqueue(t *testing.T) {
	f := newTestBulkHandler()

	// Row with a bad email and missing owner.
	badRow := `Bluebird Coffee,Coffee Shop,,OR,Portland,,not-an-email,5035551234,,https://bluebird.coffee,4.6,212`
	w := postCSV(t, f.handler, bulkCSV(badRow))

	assert.Equal(t, http.StatusAccepted, w.Code)

	require.NotNil(t, f.jobs.created)
	assert.Equal(t, types.JobFailed, f.jobs.created.Status)
	assert.NotNil(t, f.jobs.created.CompletedAt)
	assert.NotEmpty(t, f.jobs.created.Errors)
	assert.Empty(t, f.queue.dispatched, "all-invalid upload must not reach the queue")
}

func TestBulkHandler_Upload_RowLimitRejected(t *testing.T) {
	f := newTestBulkHandler()
	f.gate.admitFn = func(_ context.Context, req billing.GateRequest) (*types.GateDecision, error) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationRowLimit,
			"Row limit exceeded", nil,
			map[string]any{"limit": 50, "submitted": req.Rows})
	}

	w := postCSV(t, f.handler, bulkCSV(bulkCSVRow))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, f.jobs.created, "rejected upload must not create a job")
	assert.Empty(t, f.queue.dispatched)
	assert.Empty(t, f.gate.recorded)
}

func TestBulkHandler_Upload_WrongHeader(t *testing.T) {
	f := newTestBulkHandler()

	w := postCSV(t, f.handler, "name,city\nBluebird,Portland\n")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, string(types.ErrCodeValidationCSVHeader), resp.Error)
	assert.Nil(t, f.jobs.created)
}

func TestBulkHandler_Upload_PriorityFlagForEnterprise(t *testing.T) {
	f := newTestBulkHandler()
	f.gate.admitFn = func(_ context.Context, req billing.GateRequest) (*types.GateDecision, error) {
		return &types.GateDecision{UserID: req.UserID, Plan: types.PlanEnterprise}, nil
	}

	postCSV(t, f.handler, bulkCSV(bulkCSVRow))

	require.Len(t, f.queue.dispatched, 1)
	assert.True(t, f.queue.dispatched[0].Priority)
}

// =============================================================================
// Template, Polling, and Download Tests
// =============================================================================

func TestBulkHandler_Template(t *testing.T) {
	f := newTestBulkHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/bulk/template", nil)
	w := httptest.NewRecorder()

	f.handler.Template(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), bulk.TemplateHeader))
}

func TestBulkHandler_GetJob_CrossUserForbidden(t *testing.T) {
	f := newTestBulkHandler()
	f.jobs.getByIDFn = func(_ context.Context, id string) (*types.BulkJob, error) {
		return &types.BulkJob{ID: id, UserID: "someone-else", Status: types.JobProcessing}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/bulk/jobs/j1", nil)
	req = req.WithContext(userContext(testUserID))
	req = withURLParam(req, "id", "j1")
	w := httptest.NewRecorder()

	f.handler.GetJob(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBulkHandler_Download(t *testing.T) {
	f := newTestBulkHandler()
	f.jobs.getByIDFn = func(_ context.Context, id string) (*types.BulkJob, error) {
		return &types.BulkJob{ID: id, UserID: testUserID, Status: types.JobCompleted, CreatedAt: time.Now().UTC()}, nil
	}
	f.pitches.listByJobFn = func(_ context.Context, jobID string) ([]*types.Pitch, error) {
		return []*types.Pitch{
			{ID: "p1", BusinessName: "Bluebird Coffee", HTML: "<html>one</html>"},
			{ID: "p2", BusinessName: "Joe's Plumbing", HTML: "<html>two</html>"},
		}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/bulk/jobs/j1/download", nil)
	req = req.WithContext(userContext(testUserID))
	req = withURLParam(req, "id", "j1")
	w := httptest.NewRecorder()

	f.handler.Download(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))

	reader, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, reader.File, 2)
	assert.Equal(t, "bluebird-coffee-p1.html", reader.File[0].Name)
	assert.Equal(t, "joe-s-plumbing-p2.html", reader.File[1].Name)
}

func TestBulkHandler_Download_NoPitchesYet(t *testing.T) {
	f := newTestBulkHandler()
	f.jobs.getByIDFn = func(_ context.Context, id string) (*types.BulkJob, error) {
		return &types.BulkJob{ID: id, UserID: testUserID, Status: types.JobProcessing}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/bulk/jobs/j1/download", nil)
	req = req.WithContext(userContext(testUserID))
	req = withURLParam(req, "id", "j1")
	w := httptest.NewRecorder()

	f.handler.Download(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
