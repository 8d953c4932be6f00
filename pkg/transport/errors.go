package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/agenthands/slp/pkg/core"
)

// Error is returned when no usable response was received: the connection
// could not be established, the exchange timed out, or the peer spoke
// malformed HTTP. A non-2xx status is not an Error.
type Error struct {
	Op  string // "GET" or "PUT"
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URL, core.ErrTransport.Error(), e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	return []error{core.ErrTransport, e.Err}
}

// Timeout reports whether the call failed because its deadline expired.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
