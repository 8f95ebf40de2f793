package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/cdnilsen/eliot-web/internal/config"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/workflows"
)

// jsonValue stands in for a query result.
type jsonValue struct{ v any }

func (j jsonValue) HasValue() bool { return j.v != nil }

func (j jsonValue) Get(ptr interface{}) error {
	data, err := json.Marshal(j.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, ptr)
}

type fakeHapaxes struct {
	limit int
	out   []models.Hapax
	err   error
}

func (f *fakeHapaxes) Hapaxes(ctx context.Context, limit int) ([]models.Hapax, error) {
	f.limit = limit
	return f.out, f.err
}

func newTestServer(t *testing.T) (*mocks.Client, *fakeHapaxes, http.Handler) {
	t.Helper()
	tc := &mocks.Client{}
	t.Cleanup(func() { tc.AssertExpectations(t) })
	hx := &fakeHapaxes{}
	cfg := config.Config{TemporalTaskQueue: "eliot"}
	return tc, hx, NewServer(cfg, tc, hx).Routes()
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealthz(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := serve(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStartBookReconcile(t *testing.T) {
	tc, _, h := newTestServer(t)
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("reconcile-1-samuel")
	run.On("GetRunID").Return("run-1")
	tc.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o tclient.StartWorkflowOptions) bool {
		return o.ID == "reconcile-1-samuel" && o.TaskQueue == "eliot" && o.WorkflowExecutionErrorWhenAlreadyStarted
	}), mock.Anything, workflows.ReconcileBookInput{Book: "1 Samuel"}).Return(run, nil)

	rec := serve(h, http.MethodPost, "/books/1%20samuel/reconcile")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1 Samuel", body["book"])
	assert.Equal(t, "run-1", body["run_id"])
}

func TestStartBookReconcileConflict(t *testing.T) {
	tc, _, h := newTestServer(t)
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("running", "", ""))

	rec := serve(h, http.MethodPost, "/books/Ruth/reconcile")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EW-API-4009", errorCode(t, rec))
}

func TestBookRoutesRejectBadInput(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := serve(h, http.MethodPost, "/books/Tobit/reconcile")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodGet, "/books/Ruth/reconcile")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(h, http.MethodGet, "/books/Ruth/verses")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookStatus(t *testing.T) {
	tc, _, h := newTestServer(t)
	tc.On("QueryWorkflow", mock.Anything, "reconcile-ruth", "", workflows.QueryGetBookStatus).
		Return(jsonValue{v: workflows.BookStatus{Book: "Ruth", Status: workflows.StatusDone}}, nil)
	tc.On("QueryWorkflow", mock.Anything, "reconcile-jonah", "", workflows.QueryGetBookStatus).
		Return(nil, serviceerror.NewNotFound("workflow not found"))

	rec := serve(h, http.MethodGet, "/books/Ruth/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status workflows.BookStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, workflows.StatusDone, status.Status)

	rec = serve(h, http.MethodGet, "/books/Jonah/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorpusReconcileAndProgress(t *testing.T) {
	tc, _, h := newTestServer(t)
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(workflows.CorpusWorkflowID)
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(in workflows.ReconcileCorpusInput) bool {
		return in.RunID != "" && in.SkipSweep
	})).Return(run, nil)
	tc.On("QueryWorkflow", mock.Anything, workflows.CorpusWorkflowID, "", workflows.QueryGetProgress).
		Return(jsonValue{v: workflows.CorpusProgress{Total: 66, Done: 10}}, nil)

	rec := serve(h, http.MethodPost, "/corpus/reconcile?sweep=false")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(h, http.MethodGet, "/corpus/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	var prog workflows.CorpusProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prog))
	assert.Equal(t, 66, prog.Total)
	assert.Equal(t, 10, prog.Done)
}

func TestCorpusReconcileTemporalDown(t *testing.T) {
	tc, _, h := newTestServer(t)
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: connection refused"))

	rec := serve(h, http.MethodPost, "/corpus/reconcile")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "EW-API-5020", errorCode(t, rec))
}

func TestHapaxes(t *testing.T) {
	_, hx, h := newTestServer(t)
	hx.out = []models.Hapax{{Headword: "nashpe", VerseID: 2008001002, NoDiacritics: "nashpe"}}

	rec := serve(h, http.MethodGet, "/hapaxes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHapaxLimit, hx.limit)

	rec = serve(h, http.MethodGet, "/hapaxes?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, hx.limit)
	var body struct {
		Hapaxes []models.Hapax `json:"hapaxes"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "nashpe", body.Hapaxes[0].Headword)

	rec = serve(h, http.MethodGet, "/hapaxes?limit=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := serve(h, http.MethodOptions, "/hapaxes")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
