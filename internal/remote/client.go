// Package remote wraps network calls to the authoritative backend and
// exposes a change-feed subscription primitive. The wire format is the
// opsline reference server's, but managers only see the Store interface.
package remote

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
)

// Filter matches records whose named payload fields equal the given
// values.
type Filter map[string]string

// Change describes one row change in a watched table. The feed says that
// something changed, not what the row now contains; subscribers reload.
type Change struct {
	Seq      int64  `json:"seq"`
	Table    string `json:"table"`
	Op       string `json:"op"`
	RecordID string `json:"record_id"`
	TS       string `json:"ts"`
}

// Store is the adapter boundary the collection managers depend on.
type Store interface {
	Select(ctx context.Context, table string, filters Filter) ([]json.RawMessage, error)
	Insert(ctx context.Context, table string, record any) (json.RawMessage, error)
	Update(ctx context.Context, table, id string, partial any) (json.RawMessage, error)
	Delete(ctx context.Context, table, id string) error
}

// Client is the HTTP implementation of Store plus the change feed.
type Client struct {
	BaseURL     string
	TokenSource func() string
	HTTPClient  *http.Client
	Timeout     time.Duration

	// PollInterval is how often subscriptions poll the change feed.
	PollInterval time.Duration
}

// New creates a client with sane defaults. tokenSource is consulted on
// every request so a session expiry takes effect immediately.
func New(baseURL string, tokenSource func() string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		TokenSource:  tokenSource,
		Timeout:      10 * time.Second,
		PollInterval: 2 * time.Second,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.TokenSource != nil {
		if token := c.TokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", ErrUnauthorized, res.StatusCode)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &APIError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type recordsEnvelope struct {
	Records []json.RawMessage `json:"records"`
}

type recordEnvelope struct {
	Record json.RawMessage `json:"record"`
}

func (c *Client) Select(ctx context.Context, table string, filters Filter) ([]json.RawMessage, error) {
	q := url.Values{}
	for field, value := range filters {
		q.Add("filter", field+":"+value)
	}
	var env recordsEnvelope
	if err := c.do(ctx, http.MethodGet, "/v0/collections/"+table, q, nil, &env); err != nil {
		return nil, err
	}
	return env.Records, nil
}

func (c *Client) Insert(ctx context.Context, table string, record any) (json.RawMessage, error) {
	var env recordEnvelope
	if err := c.do(ctx, http.MethodPost, "/v0/collections/"+table, nil, record, &env); err != nil {
		return nil, err
	}
	return env.Record, nil
}

func (c *Client) Update(ctx context.Context, table, id string, partial any) (json.RawMessage, error) {
	var env recordEnvelope
	if err := c.do(ctx, http.MethodPatch, "/v0/collections/"+table+"/"+id, nil, partial, &env); err != nil {
		return nil, err
	}
	return env.Record, nil
}

func (c *Client) Delete(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, "/v0/collections/"+table+"/"+id, nil, nil, nil)
}

type changesEnvelope struct {
	Changes []Change `json:"changes"`
}

// Changes returns feed entries for table with seq greater than after.
func (c *Client) Changes(ctx context.Context, table string, after int64) ([]Change, error) {
	q := url.Values{}
	q.Set("table", table)
	q.Set("after", strconv.FormatInt(after, 10))
	var env changesEnvelope
	if err := c.do(ctx, http.MethodGet, "/v0/changes", q, nil, &env); err != nil {
		return nil, err
	}
	return env.Changes, nil
}
