package transport

import (
	"errors"
	"io"
)

// bodyCursor streams an immutable buffer to the wire. It owns nothing but the
// read offset, so the caller's slice is never copied.
type bodyCursor struct {
	data []byte
	off  int64
}

func newBodyCursor(data []byte) *bodyCursor {
	return &bodyCursor{data: data}
}

// Len returns the number of bytes not yet read.
func (c *bodyCursor) Len() int {
	if c.off >= int64(len(c.data)) {
		return 0
	}
	return int(int64(len(c.data)) - c.off)
}

func (c *bodyCursor) Read(p []byte) (int, error) {
	if c.off >= int64(len(c.data)) {
		return 0, io.EOF
	}
	n := copy(p, c.data[c.off:])
	c.off += int64(n)
	return n, nil
}

func (c *bodyCursor) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = c.off + offset
	case io.SeekEnd:
		abs = int64(len(c.data)) + offset
	default:
		return 0, errors.New("transport: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("transport: negative position")
	}
	c.off = abs
	return abs, nil
}

func (c *bodyCursor) Close() error { return nil }
