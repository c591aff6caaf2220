package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/syncer"
	"go.uber.org/zap"
)

// Client is the HTTP backend store for one collection. It implements
// syncer.Remote[E] against the backend's collection endpoints:
//
//	GET  /api/<collection>          -> {"items": [...]}
//	POST /api/<collection>/upsert   <- {"items": [...]}
//	POST /api/<collection>/delete   <- {"keys": [...]}
//
// All calls carry the session's bearer token. A 404 on the collection
// route means the backend does not serve this collection at all and is
// reported as syncer.ErrSchemaMissing so the engine can degrade to
// local-only instead of flagging a sync error.
type Client[E any] struct {
	base       string
	collection string
	session    *auth.Session
	httpc      *http.Client
	logger     *zap.Logger
}

// NewClient creates a collection client. baseURL has no trailing slash.
func NewClient[E any](baseURL, collection string, session *auth.Session, timeout time.Duration, logger *zap.Logger) *Client[E] {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client[E]{
		base:       baseURL,
		collection: collection,
		session:    session,
		httpc:      &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

var _ syncer.Remote[struct{}] = (*Client[struct{}])(nil)

// FetchAll downloads the caller's full collection snapshot. ownerID is
// implied by the bearer token; the argument only guards against a stale
// session race between engine and client.
func (c *Client[E]) FetchAll(ctx context.Context, ownerID string) ([]E, error) {
	var out struct {
		Items []E `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// UpsertMany uploads items keyed on their natural key; replays are
// idempotent server-side.
func (c *Client[E]) UpsertMany(ctx context.Context, items []E) error {
	body := map[string]any{"items": items}
	return c.do(ctx, http.MethodPost, "/upsert", body, nil)
}

// DeleteMany removes rows by natural key. Unknown keys are ignored
// server-side so replays are safe.
func (c *Client[E]) DeleteMany(ctx context.Context, keys []string) error {
	body := map[string]any{"keys": keys}
	return c.do(ctx, http.MethodPost, "/delete", body, nil)
}

func (c *Client[E]) do(ctx context.Context, method, suffix string, body, out any) error {
	url := c.base + "/api/" + c.collection + suffix

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.session.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", syncer.ErrSchemaMissing, c.collection)
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("remote: %s %s: %s", method, url, apiErr.Error)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("remote: decode %s: %w", url, err)
		}
	}
	return nil
}
