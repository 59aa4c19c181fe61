package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabledock/internal/blob"
	"github.com/JonMunkholm/tabledock/internal/config"
	"github.com/JonMunkholm/tabledock/internal/core"
	_ "github.com/JonMunkholm/tabledock/internal/core/formats"
	"github.com/JonMunkholm/tabledock/internal/index"
	"github.com/JonMunkholm/tabledock/internal/memstore"
)

const peopleCSV = "id,name,city\n1,Ann,Oslo\n2,Ben,Bergen\n3,Cy,Oslo\n"

type testServer struct {
	srv   *Server
	svc   *core.Service
	store *memstore.Store
}

func newTestServer(t *testing.T, maxFileSize int64) *testServer {
	t.Helper()

	files, err := blob.NewDir(t.TempDir())
	require.NoError(t, err)
	exports, err := blob.NewDir(t.TempDir())
	require.NoError(t, err)
	store := memstore.New()

	svc, err := core.NewService(core.Deps{
		Datasets: store,
		Uploads:  store,
		Tasks:    store,
		Index:    index.NewMemory(),
		Files:    files,
		Exports:  exports,
	}, core.Options{MaxFileSize: maxFileSize})
	require.NoError(t, err)

	cfg := &config.Config{
		Import: config.ImportConfig{MaxFileSize: maxFileSize},
	}
	srv := NewServer(svc, cfg)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.Shutdown(context.Background())
	})

	return &testServer{srv: srv, svc: svc, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", "tester")
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("encoding", "utf-8"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 1<<20)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestImportSearchExportFlow(t *testing.T) {
	ts := newTestServer(t, 1<<20)

	rec := ts.upload(t, "people.csv", peopleCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	up := decode[core.Upload](t, rec)
	assert.Equal(t, []string{"id", "name", "city"}, up.Columns)

	rec = ts.do(t, http.MethodPost, "/api/datasets", map[string]string{"name": "People"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ds := decode[core.Dataset](t, rec)
	assert.Equal(t, "people", ds.Slug)
	assert.Equal(t, "tester", ds.Creator)

	rec = ts.do(t, http.MethodPost, "/api/datasets/people/import", map[string]any{
		"upload_id":               up.ID,
		"external_id_field_index": 0,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	task := decode[core.TaskStatus](t, rec)
	assert.Equal(t, core.TaskPending, task.Status)

	ts.svc.Wait()
	rec = ts.do(t, http.MethodGet, "/api/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.TaskSuccess, decode[core.TaskStatus](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/api/datasets/people/rows?q=oslo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.RowPage](t, rec)
	assert.Equal(t, int64(2), page.Total)

	rec = ts.do(t, http.MethodGet, "/api/datasets/people/rows/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"2", "Ben", "Bergen"}, decode[core.Row](t, rec).Data)

	rec = ts.do(t, http.MethodPut, "/api/datasets/people/rows/2", map[string]any{"data": []string{"2", "Ben", "Tromsø"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodDelete, "/api/datasets/people/rows/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/datasets/people/export", map[string]string{"filename": "out"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	ts.svc.Wait()

	rec = ts.do(t, http.MethodGet, "/api/exports/out.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// The replaced row is appended after the existing ones.
	assert.Equal(t, "id,name,city\n3,Cy,Oslo\n2,Ben,Tromsø\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "out.csv")

	rec = ts.do(t, http.MethodGet, "/api/tasks?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[struct {
		Tasks []core.TaskStatus `json:"tasks"`
	}](t, rec)
	assert.Len(t, tasks.Tasks, 2)

	rec = ts.do(t, http.MethodGet, "/api/datasets?q=people", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"people"`)
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t, 64)
	ctx := context.Background()

	_, err := ts.svc.CreateDataset(ctx, "Locked", "")
	require.NoError(t, err)
	_, err = ts.svc.CreateDataset(ctx, "Bare", "")
	require.NoError(t, err)
	ok, err := ts.store.TryLock(ctx, "locked", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	tests := []struct {
		name     string
		rec      func() *httptest.ResponseRecorder
		status   int
		wantCode string
	}{
		{
			name:     "missing dataset",
			rec:      func() *httptest.ResponseRecorder { return ts.do(t, http.MethodGet, "/api/datasets/nope", nil) },
			status:   http.StatusNotFound,
			wantCode: "NF001",
		},
		{
			name: "malformed body",
			rec: func() *httptest.ResponseRecorder {
				return ts.do(t, http.MethodPost, "/api/datasets", map[string]any{"name": 7})
			},
			status:   http.StatusBadRequest,
			wantCode: "REQ001",
		},
		{
			name: "import without upload id",
			rec: func() *httptest.ResponseRecorder {
				return ts.do(t, http.MethodPost, "/api/datasets/locked/import", map[string]any{})
			},
			status:   http.StatusBadRequest,
			wantCode: "REQ001",
		},
		{
			name:     "unsupported file type",
			rec:      func() *httptest.ResponseRecorder { return ts.upload(t, "notes.pdf", "%PDF") },
			status:   http.StatusBadRequest,
			wantCode: "IMP001",
		},
		{
			name:     "file too large",
			rec:      func() *httptest.ResponseRecorder { return ts.upload(t, "big.csv", strings.Repeat("a,b\n", 40)) },
			status:   http.StatusRequestEntityTooLarge,
			wantCode: "IMP004",
		},
		{
			name:     "empty file",
			rec:      func() *httptest.ResponseRecorder { return ts.upload(t, "empty.csv", "") },
			status:   http.StatusUnprocessableEntity,
			wantCode: "IMP002",
		},
		{
			name:     "locked dataset",
			rec:      func() *httptest.ResponseRecorder { return ts.do(t, http.MethodPost, "/api/datasets/locked/export", nil) },
			status:   http.StatusConflict,
			wantCode: "LCK001",
		},
		{
			name:     "export without columns",
			rec:      func() *httptest.ResponseRecorder { return ts.do(t, http.MethodPost, "/api/datasets/bare/export", nil) },
			status:   http.StatusBadRequest,
			wantCode: "IMP001",
		},
		{
			name:     "missing task",
			rec:      func() *httptest.ResponseRecorder { return ts.do(t, http.MethodPost, "/api/tasks/nope/abort", nil) },
			status:   http.StatusNotFound,
			wantCode: "NF001",
		},
		{
			name:     "missing export",
			rec:      func() *httptest.ResponseRecorder { return ts.do(t, http.MethodGet, "/api/exports/none.csv", nil) },
			status:   http.StatusNotFound,
			wantCode: "NF001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec()
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAbortFinishedTaskConflicts(t *testing.T) {
	ts := newTestServer(t, 1<<20)

	rec := ts.upload(t, "people.csv", peopleCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	up := decode[core.Upload](t, rec)
	rec = ts.do(t, http.MethodPost, "/api/datasets", map[string]string{"name": "People"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/datasets/people/import", map[string]any{"upload_id": up.ID})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	ts.svc.Wait()

	rec = ts.do(t, http.MethodPost, "/api/datasets/people/export", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	task := decode[core.TaskStatus](t, rec)
	ts.svc.Wait()

	rec = ts.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/abort", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TSK001", decode[ErrorResponse](t, rec).Code)
}

func TestDeleteDataset(t *testing.T) {
	ts := newTestServer(t, 1<<20)

	rec := ts.do(t, http.MethodPost, "/api/datasets", map[string]string{"name": "Gone"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/datasets/gone", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	ts.svc.Wait()

	rec = ts.do(t, http.MethodGet, "/api/datasets/gone", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	srv := &Server{}
	rl := srv.newRateLimiter(2, time.Hour)
	defer rl.stop()

	assert.True(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"))

	rl.stop()
	rl.stop()
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", core.ErrDatasetLocked), http.StatusConflict},
		{core.ErrInvalidTaskTransition, http.StatusConflict},
		{core.NewDataImportError("bad"), http.StatusBadRequest},
		{&core.NotSniffableError{Filename: "a.csv", Reason: "empty"}, http.StatusUnprocessableEntity},
		{&core.EncodingError{Encoding: "utf-8", Row: 2}, http.StatusUnprocessableEntity},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrTooManyTasks, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
