package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TransportError wraps any failure talking to the sync endpoint. A pass that
// hits one is aborted with local state untouched and retried on the next
// schedule; it is never fatal.
type TransportError struct {
	Op  string // "fetch" or "push"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sync transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is a sync transport failure.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Transport exchanges snapshot documents with the sync endpoint.
type Transport interface {
	// FetchSnapshot returns the owner's remote snapshot, or (nil, nil) when
	// none has been pushed yet.
	FetchSnapshot(ctx context.Context, ownerID string) (*Snapshot, error)
	// PushSnapshot replaces the owner's remote snapshot.
	PushSnapshot(ctx context.Context, ownerID string, snap *Snapshot) error
}

// HTTPTransport talks JSON over HTTP: GET/PUT {endpoint}/users/{owner}/snapshot.json.
// The endpoint is an opaque document store; authentication is its concern,
// not ours.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport creates a transport for the given endpoint base URL.
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) snapshotURL(ownerID string) string {
	return t.endpoint + "/users/" + url.PathEscape(ownerID) + "/snapshot.json"
}

// FetchSnapshot implements Transport.
func (t *HTTPTransport) FetchSnapshot(ctx context.Context, ownerID string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.snapshotURL(ownerID), nil)
	if err != nil {
		return nil, &TransportError{Op: "fetch", Err: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "fetch", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "fetch", Err: err}
	}
	// Some document stores serve "null" for an absent key rather than 404.
	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &TransportError{Op: "fetch", Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return &snap, nil
}

// PushSnapshot implements Transport.
func (t *HTTPTransport) PushSnapshot(ctx context.Context, ownerID string, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return &TransportError{Op: "push", Err: fmt.Errorf("encode snapshot: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.snapshotURL(ownerID), bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: "push", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &TransportError{Op: "push", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return &TransportError{Op: "push", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
}
