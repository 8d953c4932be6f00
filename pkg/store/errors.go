package store

import (
	"github.com/agenthands/slp/pkg/core"
)

var (
	ErrTransport         = core.ErrTransport
	ErrUploadFailed      = core.ErrUploadFailed
	ErrNotFound          = core.ErrNotFound
	ErrIntegrityMismatch = core.ErrIntegrityMismatch
	ErrInvalidInput      = core.ErrInvalidInput
)
