// Package client provides an HTTP client for the tabledock API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// Client talks to a tabledock server.
type Client struct {
	baseURL    string
	apiKey     string
	user       string
	httpClient *http.Client
}

// Options configure a Client. Empty fields fall back to the TABLEDOCK_URL,
// TABLEDOCK_API_KEY and TABLEDOCK_USER environment variables.
type Options struct {
	BaseURL string
	APIKey  string
	User    string
	Timeout time.Duration
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = os.Getenv("TABLEDOCK_URL")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("TABLEDOCK_API_KEY")
	}
	if opts.User == "" {
		opts.User = os.Getenv("TABLEDOCK_USER")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute // large uploads
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		user:       opts.User,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Action  string `json:"action"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Code != "" {
		msg += " (Code: " + e.Code + ")"
	}
	if e.Action != "" {
		msg += ". " + e.Action
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.user != "" {
		req.Header.Set("X-User", c.user)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if w, ok := result.(io.Writer); ok {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	}
	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

// Upload sends a local file. An empty encoding uses the server default.
func (c *Client) Upload(ctx context.Context, path, encoding string) (*core.Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(mw, filepath.Base(path), f, encoding)
		pw.CloseWithError(err)
	}()

	var up core.Upload
	if err := c.do(ctx, http.MethodPost, "/api/uploads/", pr, mw.FormDataContentType(), &up); err != nil {
		return nil, err
	}
	return &up, nil
}

func writeMultipart(mw *multipart.Writer, name string, r io.Reader, encoding string) error {
	if encoding != "" {
		if err := mw.WriteField("encoding", encoding); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return err
	}
	return mw.Close()
}

// ListUploads returns every upload, newest first.
func (c *Client) ListUploads(ctx context.Context) ([]core.Upload, error) {
	var out struct {
		Uploads []core.Upload `json:"uploads"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/uploads/", nil, &out)
	return out.Uploads, err
}

// GetUpload returns one upload.
func (c *Client) GetUpload(ctx context.Context, id string) (*core.Upload, error) {
	var up core.Upload
	if err := c.doJSON(ctx, http.MethodGet, "/api/uploads/"+url.PathEscape(id), nil, &up); err != nil {
		return nil, err
	}
	return &up, nil
}

// CreateDataset creates an empty dataset.
func (c *Client) CreateDataset(ctx context.Context, name, description string) (*core.Dataset, error) {
	var ds core.Dataset
	in := map[string]string{"name": name, "description": description}
	if err := c.doJSON(ctx, http.MethodPost, "/api/datasets/", in, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// ListDatasets lists datasets; a non-empty query searches them instead.
func (c *Client) ListDatasets(ctx context.Context, query string) ([]core.Dataset, error) {
	path := "/api/datasets/"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out struct {
		Datasets []core.Dataset `json:"datasets"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out.Datasets, err
}

// GetDataset returns one dataset.
func (c *Client) GetDataset(ctx context.Context, slug string) (*core.Dataset, error) {
	var ds core.Dataset
	if err := c.doJSON(ctx, http.MethodGet, "/api/datasets/"+url.PathEscape(slug), nil, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// DeleteDataset deletes a dataset; its rows are purged in the background.
func (c *Client) DeleteDataset(ctx context.Context, slug string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/datasets/"+url.PathEscape(slug), nil, nil)
}

// Import schedules an import of an upload into a dataset.
func (c *Client) Import(ctx context.Context, slug, uploadID string, opts core.ImportOptions) (*core.TaskStatus, error) {
	in := struct {
		UploadID string `json:"upload_id"`
		core.ImportOptions
	}{uploadID, opts}
	return c.task(ctx, "/api/datasets/"+url.PathEscape(slug)+"/import", in)
}

// Reindex schedules a reindex of a dataset.
func (c *Client) Reindex(ctx context.Context, slug string, opts core.ImportOptions) (*core.TaskStatus, error) {
	return c.task(ctx, "/api/datasets/"+url.PathEscape(slug)+"/reindex", opts)
}

// Export schedules a CSV export. An empty filename lets the server choose.
func (c *Client) Export(ctx context.Context, slug, filename string) (*core.TaskStatus, error) {
	return c.task(ctx, "/api/datasets/"+url.PathEscape(slug)+"/export", map[string]string{"filename": filename})
}

func (c *Client) task(ctx context.Context, path string, in any) (*core.TaskStatus, error) {
	var task core.TaskStatus
	if err := c.doJSON(ctx, http.MethodPost, path, in, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DownloadExport writes a finished export file to w.
func (c *Client) DownloadExport(ctx context.Context, name string, w io.Writer) error {
	return c.do(ctx, http.MethodGet, "/api/exports/"+url.PathEscape(name), nil, "", w)
}

// GetTask returns one task.
func (c *Client) GetTask(ctx context.Context, id string) (*core.TaskStatus, error) {
	var task core.TaskStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns up to limit tasks, newest first.
func (c *Client) ListTasks(ctx context.Context, limit int) ([]core.TaskStatus, error) {
	var out struct {
		Tasks []core.TaskStatus `json:"tasks"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/tasks/?limit="+strconv.Itoa(limit), nil, &out)
	return out.Tasks, err
}

// AbortTask requests that a task stop.
func (c *Client) AbortTask(ctx context.Context, id string) (*core.TaskStatus, error) {
	return c.task(ctx, "/api/tasks/"+url.PathEscape(id)+"/abort", nil)
}

// WaitTask polls a task until it reaches a terminal state.
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration, progress func(*core.TaskStatus)) (*core.TaskStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := c.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if progress != nil {
			progress(task)
		}
		if task.Status.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SearchRows returns a page of rows matching text.
func (c *Client) SearchRows(ctx context.Context, slug, text string, offset, limit int) (*core.RowPage, error) {
	q := url.Values{}
	if text != "" {
		q.Set("q", text)
	}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var page core.RowPage
	if err := c.doJSON(ctx, http.MethodGet, "/api/datasets/"+url.PathEscape(slug)+"/rows?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetRow returns the row with the given external id.
func (c *Client) GetRow(ctx context.Context, slug, externalID string) (*core.Row, error) {
	var row core.Row
	if err := c.doJSON(ctx, http.MethodGet, rowPath(slug, externalID), nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// PutRow adds or replaces the row with the given external id.
func (c *Client) PutRow(ctx context.Context, slug, externalID string, data []string) (*core.Row, error) {
	var row core.Row
	if err := c.doJSON(ctx, http.MethodPut, rowPath(slug, externalID), map[string]any{"data": data}, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteRow removes the row with the given external id.
func (c *Client) DeleteRow(ctx context.Context, slug, externalID string) error {
	return c.doJSON(ctx, http.MethodDelete, rowPath(slug, externalID), nil, nil)
}

func rowPath(slug, externalID string) string {
	return "/api/datasets/" + url.PathEscape(slug) + "/rows/" + url.PathEscape(externalID)
}
