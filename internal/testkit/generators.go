package testkit

import (
	"math/rand"
	"time"
)

// RNG provides a deterministic random number generator.
// If seed is 0, it uses the current time.
func RNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomBytes generates a slice of random bytes of the given length.
func RandomBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	_, _ = r.Read(b)
	return b
}

// CompressibleBytes generates a slice of highly compressible bytes of the given length.
func CompressibleBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	pattern := []byte(`{"prompt":"What is AI?","success":true,"response":"..."}` + "\n")
	pLen := len(pattern)
	for i := 0; i < length; i++ {
		b[i] = pattern[i%pLen]
	}

	for i := 0; i < length/1024; i++ {
		b[r.Intn(length)] = byte(r.Intn(256))
	}

	return b
}

// Flip returns a copy of payload with the bits of byte i inverted.
func Flip(payload []byte, i int) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	if len(out) > 0 {
		out[i%len(out)] ^= 0xFF
	}
	return out
}
