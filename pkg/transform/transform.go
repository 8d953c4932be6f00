package transform

import (
	"bytes"
	"fmt"

	"github.com/agenthands/slp/pkg/core"
	"github.com/klauspost/compress/zstd"
)

// zstdMagic opens every zstd frame (RFC 8878, section 3.1.1).
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Transform encodes a payload before upload. The object key is always the
// digest of the encoded bytes, so a Transform never affects verification.
type Transform interface {
	Name() string
	// Ext is appended to the category extension, e.g. ".jsonl" + ".zst".
	Ext() string
	Encode(plain []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

// New returns the transform registered under name.
func New(name string, level int) (Transform, error) {
	switch name {
	case "zstd":
		return NewZstd(level)
	case "none", "":
		return NewNone(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported transform: %s", core.ErrInvalidInput, name)
	}
}

// None transform doesn't apply any transformation.
type noneTransform struct{}

func NewNone() Transform {
	return &noneTransform{}
}

func (t *noneTransform) Name() string                         { return "none" }
func (t *noneTransform) Ext() string                          { return "" }
func (t *noneTransform) Encode(plain []byte) ([]byte, error)  { return plain, nil }
func (t *noneTransform) Decode(stored []byte) ([]byte, error) { return stored, nil }

// Zstd transform writes standard zstd frames readable by the zstd CLI.
type zstdTransform struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewZstd(level int) (Transform, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &zstdTransform{
		encoder: enc,
		decoder: dec,
	}, nil
}

func (t *zstdTransform) Name() string { return "zstd" }
func (t *zstdTransform) Ext() string  { return ".zst" }

func (t *zstdTransform) Encode(plain []byte) ([]byte, error) {
	return t.encoder.EncodeAll(plain, nil), nil
}

func (t *zstdTransform) Decode(stored []byte) ([]byte, error) {
	if !bytes.HasPrefix(stored, zstdMagic) {
		return nil, fmt.Errorf("%w: not a zstd frame", core.ErrInvalidInput)
	}
	plain, err := t.decoder.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	return plain, nil
}
