package manifest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agenthands/slp/pkg/core"
	"github.com/fxamacker/cbor/v2"
)

// Suffix is appended to "<category>/<digest>" to name a manifest sidecar.
const Suffix = ".manifest.json"

// MaxNameLen bounds OriginalName.
const MaxNameLen = 4096

// Manifest describes a stored object. It is written once, next to the object.
type Manifest struct {
	Digest       core.ObjectKey `cbor:"sha256"`
	SizeBytes    uint64         `cbor:"size_bytes"`
	CreatedAt    string         `cbor:"created_at"`
	OriginalName string         `cbor:"original_name"`
}

// Build assembles a Manifest. It does not validate; see Validate.
func Build(key core.ObjectKey, size uint64, createdAt, originalName string) Manifest {
	return Manifest{
		Digest:       key,
		SizeBytes:    size,
		CreatedAt:    createdAt,
		OriginalName: originalName,
	}
}

// Now formats the current time the way CreatedAt is recorded.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Validate checks that the manifest can be published.
func (m Manifest) Validate() error {
	if !m.Digest.Valid() {
		return fmt.Errorf("%w: malformed digest %q", core.ErrInvalidInput, m.Digest)
	}
	if len(m.OriginalName) > MaxNameLen {
		return fmt.Errorf("%w: original name too long: %d > %d", core.ErrInvalidInput, len(m.OriginalName), MaxNameLen)
	}
	return nil
}

// Serialize renders the manifest as JSON with a fixed key order.
func (m Manifest) Serialize() []byte {
	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString(`  "sha256": "` + EscapeString(string(m.Digest)) + "\",\n")
	b.WriteString(`  "size_bytes": ` + strconv.FormatUint(m.SizeBytes, 10) + ",\n")
	b.WriteString(`  "created_at": "` + EscapeString(m.CreatedAt) + "\",\n")
	b.WriteString(`  "original_name": "` + EscapeString(m.OriginalName) + "\"\n")
	b.WriteString("}")
	return []byte(b.String())
}

const hexDigits = "0123456789abcdef"

// EscapeString escapes quote, backslash and control characters for use inside
// a JSON string literal. Every other byte, including invalid UTF-8 and
// existing escape sequences, is copied unchanged.
func EscapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xF])
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// Codec encodes manifests as canonical CBOR for local records.
type Codec interface {
	Encode(m Manifest) ([]byte, error)
	Decode(b []byte) (Manifest, error)
}

type codec struct {
	encMode cbor.EncMode
}

// NewCodec returns a new Codec implementation.
func NewCodec() Codec {
	// Use canonical CBOR encoding (Core Deterministic Encoding Requirements)
	em, _ := cbor.CanonicalEncOptions().EncMode()
	return &codec{encMode: em}
}

func (c *codec) Encode(m Manifest) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return c.encMode.Marshal(m)
}

func (c *codec) Decode(b []byte) (Manifest, error) {
	var m Manifest
	if err := cbor.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: failed to unmarshal manifest: %v", core.ErrInvalidInput, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
