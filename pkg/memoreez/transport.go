package memoreez

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -destination "mock_memoreez_test.go" -package memoreez -write_package_comment=false github.com/astromechza/memoreez/pkg/memoreez Transport,View

// Transport issues a single asynchronous GET. Send must not block on the
// network; exactly one of onLoad or onError is called, at most once, when the
// request settles. Implementations route 2xx responses to onLoad and
// everything else, including a cancelled ctx, to onError.
type Transport interface {
	Send(ctx context.Context, url string, onLoad func(body string), onError func(err error))
}

// ErrMalformedResponse is wrapped by a TransportError when the server answered
// successfully but the body could not be used.
var ErrMalformedResponse = errors.New("malformed response")

// TransportError is the only kind of failure the game reports. StatusCode is
// zero when no HTTP status was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("request to %s failed with status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("request to %s failed with status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
