package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// Solr talks to a Solr server's JSON update and select handlers. Queries
// are passed through unchanged; the query language is a subset of Lucene
// syntax with full_text as the default field.
type Solr struct {
	baseURL string
	client  *http.Client
}

var _ core.Index = (*Solr)(nil)

// NewSolr returns a client for the Solr server at baseURL, for example
// http://localhost:8983/solr.
func NewSolr(baseURL string, timeout time.Duration) *Solr {
	return &Solr{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *Solr) Add(ctx context.Context, coreName string, docs []map[string]any, commit bool) error {
	return s.update(ctx, coreName, docs, commit)
}

func (s *Solr) Delete(ctx context.Context, coreName, query string, commit bool) error {
	if _, err := ParseQuery(query); err != nil {
		return err
	}
	body := map[string]any{"delete": map[string]string{"query": query}}
	return s.update(ctx, coreName, body, commit)
}

func (s *Solr) Commit(ctx context.Context, coreName string) error {
	return s.update(ctx, coreName, map[string]any{"commit": map[string]any{}}, false)
}

func (s *Solr) update(ctx context.Context, coreName string, body any, commit bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	params := url.Values{"wt": {"json"}}
	if commit {
		params.Set("commit", "true")
	}
	endpoint := fmt.Sprintf("%s/%s/update?%s", s.baseURL, url.PathEscape(coreName), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("update %s: %w", coreName, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("update %s: %w", coreName, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type selectResponse struct {
	Response struct {
		NumFound int64            `json:"numFound"`
		Docs     []map[string]any `json:"docs"`
	} `json:"response"`
}

func (s *Solr) Query(ctx context.Context, coreName, query string, opts core.QueryOptions) (*core.QueryResult, error) {
	if _, err := ParseQuery(query); err != nil {
		return nil, err
	}
	if _, err := ParseSort(opts.Sort); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		query = "*:*"
	}

	params := url.Values{
		"q":     {query},
		"df":    {core.FieldFullText},
		"q.op":  {"AND"},
		"wt":    {"json"},
		"start": {strconv.Itoa(max(opts.Offset, 0))},
		"rows":  {strconv.Itoa(max(opts.Limit, 0))},
	}
	if opts.Sort != "" {
		params.Set("sort", opts.Sort)
	}
	endpoint := fmt.Sprintf("%s/%s/select?%s", s.baseURL, url.PathEscape(coreName), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", coreName, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("query %s: %w", coreName, err)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var out selectResponse
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", coreName, err)
	}

	res := &core.QueryResult{NumFound: out.Response.NumFound}
	if opts.Limit > 0 {
		res.Docs = out.Response.Docs
	}
	return res, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("index returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
