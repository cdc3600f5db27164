// Package transport provides the two ways the game client talks to the
// server: one HTTP GET per request, or a single websocket carrying
// id-correlated request frames.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/astromechza/memoreez/pkg/memoreez"
)

// maxBodySize caps how much of a response body is read. Longer bodies are
// reported as malformed rather than truncated.
const maxBodySize = 64 << 10

var _ memoreez.Transport = (*HTTP)(nil)

type HTTP struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTP returns an HTTP transport. A nil client means http.DefaultClient.
func NewHTTP(client *http.Client, logger *slog.Logger) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{client: client, logger: logger}
}

func (t *HTTP) Send(ctx context.Context, url string, onLoad func(string), onError func(error)) {
	go func() {
		body, err := t.get(ctx, url)
		if err != nil {
			onError(err)
			return
		}
		onLoad(body)
	}()
}

func (t *HTTP) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &memoreez.TransportError{URL: url, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", &memoreez.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return "", &memoreez.TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	t.logger.Debug("request settled", "url", url, "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &memoreez.TransportError{URL: url, StatusCode: resp.StatusCode}
	}
	if len(raw) > maxBodySize {
		return "", &memoreez.TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: body exceeds %d bytes", memoreez.ErrMalformedResponse, maxBodySize)}
	}
	return string(raw), nil
}
