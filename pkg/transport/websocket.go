package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/astromechza/memoreez/pkg/memoreez"
)

// Request is a client frame. Query is the query string the same request would
// carry over HTTP, e.g. "cell=3" or "" for the cell count.
type Request struct {
	ID    uint64 `json:"id"`
	Query string `json:"query"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     uint64 `json:"id"`
	Status int    `json:"status"`
	Body   string `json:"body"`
}

var _ memoreez.Transport = (*Websocket)(nil)

// Websocket multiplexes requests over one connection, dialled on first use
// and redialled on the next request after the connection fails. When a
// connection drops every request outstanding on it fails.
type Websocket struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  uint64
	pending map[uint64]*wsRequest
}

type wsRequest struct {
	url     string
	conn    *websocket.Conn
	onLoad  func(string)
	onError func(error)
	done    chan struct{}
}

// NewWebsocket returns a transport for the websocket at endpoint (a ws:// or
// wss:// URL). A nil dialer means websocket.DefaultDialer.
func NewWebsocket(endpoint string, dialer *websocket.Dialer, logger *slog.Logger) *Websocket {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Websocket{
		endpoint: endpoint,
		dialer:   dialer,
		logger:   logger,
		pending:  make(map[uint64]*wsRequest),
	}
}

// Send forwards the query string of rawURL; the path is ignored.
func (t *Websocket) Send(ctx context.Context, rawURL string, onLoad func(string), onError func(error)) {
	u, err := url.Parse(rawURL)
	if err != nil {
		go onError(&memoreez.TransportError{URL: rawURL, Err: fmt.Errorf("failed to parse url: %w", err)})
		return
	}
	go t.send(ctx, rawURL, u.RawQuery, onLoad, onError)
}

func (t *Websocket) send(ctx context.Context, rawURL, query string, onLoad func(string), onError func(error)) {
	t.mu.Lock()
	conn, err := t.connectLocked(ctx)
	if err != nil {
		t.mu.Unlock()
		onError(&memoreez.TransportError{URL: rawURL, Err: err})
		return
	}
	t.nextID++
	id := t.nextID
	req := &wsRequest{url: rawURL, conn: conn, onLoad: onLoad, onError: onError, done: make(chan struct{})}
	t.pending[id] = req
	if err := conn.WriteJSON(Request{ID: id, Query: query}); err != nil {
		delete(t.pending, id)
		t.dropLocked(conn)
		t.mu.Unlock()
		onError(&memoreez.TransportError{URL: rawURL, Err: fmt.Errorf("failed to write request: %w", err)})
		return
	}
	t.mu.Unlock()

	select {
	case <-req.done:
	case <-ctx.Done():
		if r := t.take(id); r != nil {
			r.onError(&memoreez.TransportError{URL: rawURL, Err: ctx.Err()})
		}
	}
}

// connectLocked must be called with t.mu held.
func (t *Websocket) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}
	conn, _, err := t.dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	t.logger.Info("connected", "endpoint", t.endpoint)
	t.conn = conn
	go t.readLoop(conn)
	return conn, nil
}

// dropLocked must be called with t.mu held.
func (t *Websocket) dropLocked(conn *websocket.Conn) {
	_ = conn.Close()
	if t.conn == conn {
		t.conn = nil
	}
}

// take removes and returns the pending request with id, or nil if it has
// already settled. Whoever takes a request owns its callbacks.
func (t *Websocket) take(id uint64) *wsRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.pending[id]
	if !ok {
		return nil
	}
	delete(t.pending, id)
	close(r.done)
	return r
}

func (t *Websocket) readLoop(conn *websocket.Conn) {
	for {
		var resp Response
		if err := conn.ReadJSON(&resp); err != nil {
			t.failAll(conn, err)
			return
		}
		r := t.take(resp.ID)
		if r == nil {
			t.logger.Debug("dropping response for settled request", "id", resp.ID)
			continue
		}
		if resp.Status < 200 || resp.Status > 299 {
			r.onError(&memoreez.TransportError{URL: r.url, StatusCode: resp.Status})
			continue
		}
		r.onLoad(resp.Body)
	}
}

func (t *Websocket) failAll(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	t.dropLocked(conn)
	var failed []*wsRequest
	for id, r := range t.pending {
		if r.conn == conn {
			delete(t.pending, id)
			close(r.done)
			failed = append(failed, r)
		}
	}
	t.mu.Unlock()

	if len(failed) > 0 {
		t.logger.Warn("connection lost", "err", cause, "failed", len(failed))
	}
	for _, r := range failed {
		r.onError(&memoreez.TransportError{URL: r.url, Err: fmt.Errorf("connection lost: %w", cause)})
	}
}

// Close shuts the current connection. Outstanding requests fail.
func (t *Websocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Resolver answers a query the way the HTTP endpoint would.
type Resolver func(ctx context.Context, query url.Values) (status int, body string)

// Serve answers request frames on conn until the peer goes away or ctx is
// done. Frames are answered in arrival order.
func Serve(ctx context.Context, conn *websocket.Conn, resolve Resolver) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}
		resp := Response{ID: req.ID}
		if q, err := url.ParseQuery(req.Query); err != nil {
			resp.Status, resp.Body = http.StatusBadRequest, "malformed query"
		} else {
			resp.Status, resp.Body = resolve(ctx, q)
		}
		if err := conn.WriteJSON(resp); err != nil {
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}
