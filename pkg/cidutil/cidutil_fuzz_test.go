package cidutil

import (
	"testing"

	"github.com/ipfs/go-cid"
)

func FuzzCIDVerify(f *testing.F) {
	builder := NewBuilder()

	validData := []byte("hello world payload")
	validCID, _ := builder.ObjectCID(validData)

	f.Add(validCID.Bytes(), validData)

	corruptCID := append([]byte(nil), validCID.Bytes()...)
	corruptCID[3] ^= 0x01
	f.Add(corruptCID, validData)

	corruptData := append([]byte(nil), validData...)
	corruptData[0] ^= 0xFF
	f.Add(validCID.Bytes(), corruptData)

	f.Add([]byte("not a cid at all"), validData)
	f.Add([]byte{}, validData)

	f.Fuzz(func(t *testing.T, cidBytes []byte, payload []byte) {
		c, err := cid.Cast(cidBytes)
		if err != nil {
			return
		}
		// Verify and Key should not panic regardless of input
		_ = builder.Verify(c, payload)
		_, _ = builder.Key(c)
	})
}
