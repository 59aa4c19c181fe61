package index

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabledock/internal/core"
)

func TestSolr_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/solr/data/select", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, `dataset_slug:"a"`, q.Get("q"))
		assert.Equal(t, "full_text", q.Get("df"))
		assert.Equal(t, "20", q.Get("start"))
		assert.Equal(t, "10", q.Get("rows"))
		assert.Equal(t, "row asc, id asc", q.Get("sort"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"response":{"numFound":42,"start":20,"docs":[{"id":"r1","data":"[\"x\"]","row":21}]}}`)
	}))
	defer srv.Close()

	s := NewSolr(srv.URL+"/solr/", time.Second)
	res, err := s.Query(context.Background(), "data", `dataset_slug:"a"`, core.QueryOptions{Offset: 20, Limit: 10, Sort: "row asc, id asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 42, res.NumFound)
	require.Len(t, res.Docs, 1)

	doc, err := core.DocumentFromFields(res.Docs[0])
	require.NoError(t, err)
	assert.Equal(t, 21, doc.Row)
	assert.Equal(t, []string{"x"}, doc.Data)
}

func TestSolr_AddAndDelete(t *testing.T) {
	var bodies []map[string]any
	var adds [][]map[string]any
	var commits []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/data/update", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		commits = append(commits, r.URL.Query().Get("commit"))

		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 && raw[0] == '[' {
			var docs []map[string]any
			assert.NoError(t, json.Unmarshal(raw, &docs))
			adds = append(adds, docs)
		} else {
			var body map[string]any
			assert.NoError(t, json.Unmarshal(raw, &body))
			bodies = append(bodies, body)
		}
		io.WriteString(w, `{"responseHeader":{"status":0}}`)
	}))
	defer srv.Close()

	ctx := context.Background()
	s := NewSolr(srv.URL, time.Second)

	require.NoError(t, s.Add(ctx, "data", []map[string]any{{"id": "1"}, {"id": "2"}}, false))
	require.NoError(t, s.Delete(ctx, "data", `dataset_slug:"a"`, true))
	require.NoError(t, s.Commit(ctx, "data"))

	require.Len(t, adds, 1)
	assert.Len(t, adds[0], 2)
	require.Len(t, bodies, 2)
	assert.Equal(t, map[string]any{"query": `dataset_slug:"a"`}, bodies[0]["delete"])
	assert.Contains(t, bodies[1], "commit")
	assert.Equal(t, []string{"", "true", ""}, commits)
}

func TestSolr_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "undefined field foo", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSolr(srv.URL, time.Second).Commit(context.Background(), "data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index returned 400: undefined field foo")
	assert.Equal(t, "IDX001", core.MapError(err).Code)
}
