package core

import (
	"errors"
)

var (
	ErrTransport         = errors.New("slp: transport failure")
	ErrUploadFailed      = errors.New("slp: upload failed")
	ErrNotFound          = errors.New("slp: not found")
	ErrIntegrityMismatch = errors.New("slp: integrity mismatch")
	ErrInvalidInput      = errors.New("slp: invalid input")
	ErrClosed            = errors.New("slp: client closed")
)
