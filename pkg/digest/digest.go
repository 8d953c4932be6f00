package digest

import (
	"encoding/hex"
	"fmt"

	"github.com/agenthands/slp/pkg/core"
	"github.com/minio/sha256-simd"
)

// Size is the length in bytes of a raw digest.
const Size = sha256.Size

// Raw returns the 32-byte SHA-256 digest of data.
func Raw(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Hex returns the lowercase hex SHA-256 digest of data as an ObjectKey.
func Hex(data []byte) core.ObjectKey {
	sum := sha256.Sum256(data)
	return core.ObjectKey(hex.EncodeToString(sum[:]))
}

// Verify recomputes the digest of data and compares it against key.
func Verify(key core.ObjectKey, data []byte) error {
	got := Hex(data)
	if got != key {
		return fmt.Errorf("%w: want %s, got %s", core.ErrIntegrityMismatch, key, got)
	}
	return nil
}

// ParseKey validates s as an ObjectKey.
func ParseKey(s string) (core.ObjectKey, error) {
	k := core.ObjectKey(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: malformed object key %q", core.ErrInvalidInput, s)
	}
	return k, nil
}
