// Package httptransport carries distributed cache traffic over HTTP/JSON.
//
// Routes served by Handler:
//
//	GET    /v1/cache/*key          200 JSON value, 404 when absent
//	PUT    /v1/cache/*key?ttl=90s  body is the JSON value; 204 on success
//	DELETE /v1/cache/*key          204, 404 when absent
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/IvanBrykalov/tiercache/distributed"
)

// PathPrefix is the route prefix shared by Client and Handler.
const PathPrefix = "/v1/cache/"

// maxBody caps error bodies read back into error messages.
const maxBody = 512

// Client implements distributed.Transport over HTTP. Peer addresses are
// host:port pairs or base URLs ("https://cache-2:7070").
type Client[V any] struct {
	hc *http.Client
}

var _ distributed.Transport[string] = (*Client[string])(nil)

// NewClient returns a Client using hc, or a client with a 5s timeout when
// hc is nil. Per-call deadlines come from the context.
func NewClient[V any](hc *http.Client) *Client[V] {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client[V]{hc: hc}
}

// Get fetches key from peer. A 404 is a miss, not an error.
func (c *Client[V]) Get(ctx context.Context, peer distributed.Peer, key string) (V, bool, error) {
	var zero V
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keyURL(peer.Address, key, 0), nil)
	if err != nil {
		return zero, false, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return zero, false, fmt.Errorf("%w: %s: %v", distributed.ErrPeerUnavailable, peer.ID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return zero, false, nil
	default:
		return zero, false, statusError(peer, resp)
	}

	var v V
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return zero, false, fmt.Errorf("httptransport: decode value from %s: %w", peer.ID, err)
	}
	return v, true, nil
}

// Put stores key on peer with ttl (zero = no expiry).
func (c *Client[V]) Put(ctx context.Context, peer distributed.Peer, key string, v V, ttl time.Duration) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("httptransport: encode value for %q: %w", key, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, keyURL(peer.Address, key, ttl), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", distributed.ErrPeerUnavailable, peer.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusError(peer, resp)
	}
	return nil
}

func keyURL(address, key string, ttl time.Duration) string {
	base := address
	if u, err := url.Parse(address); err != nil || u.Scheme == "" || u.Host == "" {
		base = "http://" + address
	}
	s := base + PathPrefix + url.PathEscape(key)
	if ttl > 0 {
		s += "?ttl=" + url.QueryEscape(ttl.String())
	}
	return s
}

func statusError(peer distributed.Peer, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	err := fmt.Errorf("httptransport: %s answered %s: %s", peer.ID, resp.Status, bytes.TrimSpace(msg))
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %v", distributed.ErrPeerUnavailable, err)
	}
	return err
}
