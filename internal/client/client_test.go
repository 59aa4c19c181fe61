package client_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabledock/internal/blob"
	"github.com/JonMunkholm/tabledock/internal/client"
	"github.com/JonMunkholm/tabledock/internal/config"
	"github.com/JonMunkholm/tabledock/internal/core"
	_ "github.com/JonMunkholm/tabledock/internal/core/formats"
	"github.com/JonMunkholm/tabledock/internal/index"
	"github.com/JonMunkholm/tabledock/internal/memstore"
	"github.com/JonMunkholm/tabledock/internal/web"
)

func newClient(t *testing.T) (*client.Client, string) {
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
	}, core.Options{})
	require.NoError(t, err)

	srv := web.NewServer(svc, &config.Config{
		Import:   config.ImportConfig{MaxFileSize: 1 << 20},
		Security: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}},
	})
	hs := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		hs.Close()
		_ = srv.Shutdown(context.Background())
		_ = svc.Shutdown(context.Background())
	})

	return client.New(client.Options{BaseURL: hs.URL + "/", APIKey: "secret", User: "cli"}), hs.URL
}

func TestClient_ImportAndExport(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cities.csv")
	require.NoError(t, os.WriteFile(path, []byte("code,city\nOSL,Oslo\nBGO,Bergen\n"), 0o644))

	up, err := c.Upload(ctx, path, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "cities.csv", up.OriginalFilename)

	ds, err := c.CreateDataset(ctx, "Cities", "Norwegian cities")
	require.NoError(t, err)
	assert.Equal(t, "cli", ds.Creator)

	task, err := c.Import(ctx, ds.Slug, up.ID, core.ImportOptions{ExternalIDIndex: new(int)})
	require.NoError(t, err)

	var seen int
	task, err = c.WaitTask(ctx, task.ID, 10*time.Millisecond, func(*core.TaskStatus) { seen++ })
	require.NoError(t, err)
	assert.Equal(t, core.TaskSuccess, task.Status)
	assert.Positive(t, seen)

	row, err := c.GetRow(ctx, ds.Slug, "BGO")
	require.NoError(t, err)
	assert.Equal(t, []string{"BGO", "Bergen"}, row.Data)

	page, err := c.SearchRows(ctx, ds.Slug, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	task, err = c.Export(ctx, ds.Slug, "cities-out.csv")
	require.NoError(t, err)
	task, err = c.WaitTask(ctx, task.ID, 10*time.Millisecond, nil)
	require.NoError(t, err)
	require.Equal(t, core.TaskSuccess, task.Status, task.Message)

	var buf bytes.Buffer
	require.NoError(t, c.DownloadExport(ctx, "cities-out.csv", &buf))
	assert.Equal(t, "code,city\nOSL,Oslo\nBGO,Bergen\n", buf.String())

	tasks, err := c.ListTasks(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestClient_APIError(t *testing.T) {
	c, _ := newClient(t)

	_, err := c.GetDataset(context.Background(), "missing")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NF001", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "Code: NF001")
}

func TestClient_RejectsWrongAPIKey(t *testing.T) {
	_, url := newClient(t)
	bad := client.New(client.Options{BaseURL: url, APIKey: "nope"})

	_, err := bad.ListDatasets(context.Background(), "")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "AUTH_INVALID_KEY", apiErr.Code)
}
