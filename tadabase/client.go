/*
Package tadabase talks to the vendor's record API.

PURPOSE:
  The vendor platform owns every shift, availability, employee and tag
  record. This package wraps its REST surface (list with filters and
  pagination, get one, create, update) and maps records onto the schedule
  types.

WIRE FORMAT:
  GET  {base}/data-tables/{table}/records?filters[items][i][field_id]=..
       &filters[items][i][operator]=..&filters[items][i][val]=..&limit=100&page=n
       -> {"items": [...], "total_pages": n}
  GET  {base}/data-tables/{table}/records/{id}       -> {"item": {...}}
  POST {base}/data-tables/{table}/records[/{id}]     multipart form -> {"recordId": ".."}

  Every request carries X-Tadabase-App-id / App-Key / App-Secret.

SEE ALSO:
  - record.go: loose decoding of record fields
  - adapter.go: mapping to schedule types
*/
package tadabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the vendor API root.
const DefaultBaseURL = "https://api.tadabase.io/api/v1"

// DefaultPageSize is the vendor's maximum page size.
const DefaultPageSize = 100

// maxPages bounds pagination against a misbehaving total_pages.
const maxPages = 1000

// Credentials are the static app credentials sent on every request.
type Credentials struct {
	AppID     string
	AppKey    string
	AppSecret string
}

// Filter is one condition of a list query, e.g.
// {FieldID: "field_60", Operator: "is on or after", Value: "2024-06-03"}.
type Filter struct {
	FieldID  string
	Operator string
	Value    string
}

// Fields are form values for create and update. Values holding several
// ids are comma-joined.
type Fields map[string]string

// Client is a vendor API client.
type Client struct {
	baseURL  string
	creds    Credentials
	http     *http.Client
	log      *zap.Logger
	pageSize int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

func WithPageSize(n int) Option { return func(c *Client) { c.pageSize = n } }

// NewClient creates a client. An empty baseURL means DefaultBaseURL.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  baseURL,
		creds:    creds,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      zap.NewNop(),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listResponse struct {
	Items      []Record `json:"items"`
	TotalPages int      `json:"total_pages"`
}

type getResponse struct {
	Item Record `json:"item"`
}

type saveResponse struct {
	RecordID string `json:"recordId"`
}

// List returns every record of table matching filters, walking all pages.
func (c *Client) List(ctx context.Context, table string, filters []Filter) ([]Record, error) {
	var all []Record
	for page, total := 1, 1; page <= total; page++ {
		var resp listResponse
		if err := c.do(ctx, http.MethodGet, c.recordsURL(table, "", listQuery(filters, c.pageSize, page)), nil, "", &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Items...)
		total = min(resp.TotalPages, maxPages)
	}
	c.log.Debug("listed records", zap.String("table", table), zap.Int("count", len(all)))
	return all, nil
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, table, id string) (Record, error) {
	var resp getResponse
	if err := c.do(ctx, http.MethodGet, c.recordsURL(table, id, nil), nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Item == nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, id, ErrMalformedResponse)
	}
	return resp.Item, nil
}

// Create inserts a record and returns its id.
func (c *Client) Create(ctx context.Context, table string, fields Fields) (string, error) {
	return c.save(ctx, table, "", fields)
}

// Update changes the given fields of record id. Fields not named are left
// untouched by the vendor.
func (c *Client) Update(ctx context.Context, table, id string, fields Fields) (string, error) {
	if id == "" {
		return "", errors.New("update: empty record id")
	}
	return c.save(ctx, table, id, fields)
}

func (c *Client) save(ctx context.Context, table, id string, fields Fields) (string, error) {
	body, contentType, err := encodeForm(fields)
	if err != nil {
		return "", err
	}
	var resp saveResponse
	if err := c.do(ctx, http.MethodPost, c.recordsURL(table, id, nil), body, contentType, &resp); err != nil {
		return "", err
	}
	if resp.RecordID == "" {
		if id != "" {
			return id, nil
		}
		return "", fmt.Errorf("create in %s: %w", table, ErrMalformedResponse)
	}
	return resp.RecordID, nil
}

func (c *Client) recordsURL(table, id string, q url.Values) string {
	u := c.baseURL + "/data-tables/" + url.PathEscape(table) + "/records"
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func listQuery(filters []Filter, limit, page int) url.Values {
	q := url.Values{}
	for i, f := range filters {
		prefix := "filters[items][" + strconv.Itoa(i) + "]"
		q.Set(prefix+"[field_id]", f.FieldID)
		q.Set(prefix+"[operator]", f.Operator)
		q.Set(prefix+"[val]", f.Value)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("page", strconv.Itoa(page))
	return q
}

func encodeForm(fields Fields) (*bytes.Buffer, string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("failed to encode form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to encode form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Tadabase-App-id", c.creds.AppID)
	req.Header.Set("X-Tadabase-App-Key", c.creds.AppKey)
	req.Header.Set("X-Tadabase-App-Secret", c.creds.AppSecret)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: req.URL.Path, StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, req.URL.Path, ErrMalformedResponse, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
