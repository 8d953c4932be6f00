package cidutil

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/agenthands/slp/pkg/core"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Builder maps ObjectKeys to and from CIDv1 (raw codec, sha2-256), the
// content-addressed name the same bytes carry in IPLD tooling.
type Builder interface {
	KeyCID(key core.ObjectKey) (cid.Cid, error)
	ObjectCID(data []byte) (cid.Cid, error)
	Key(c cid.Cid) (core.ObjectKey, error)
	Verify(c cid.Cid, data []byte) error
}

type builder struct{}

// NewBuilder returns a new CID builder implementation.
func NewBuilder() Builder {
	return &builder{}
}

func (b *builder) KeyCID(key core.ObjectKey) (cid.Cid, error) {
	raw, err := hex.DecodeString(string(key))
	if err != nil || !key.Valid() {
		return cid.Undef, fmt.Errorf("%w: malformed object key %q", core.ErrInvalidInput, key)
	}

	mh, err := multihash.Encode(raw, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to encode multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

func (b *builder) ObjectCID(data []byte) (cid.Cid, error) {
	hash, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to compute multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, hash), nil
}

// Key is the inverse of KeyCID. Only sha2-256 CIDs map to an ObjectKey.
func (b *builder) Key(c cid.Cid) (core.ObjectKey, error) {
	if !c.Defined() {
		return "", fmt.Errorf("%w: undefined CID", core.ErrInvalidInput)
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return "", fmt.Errorf("%w: invalid multihash: %v", core.ErrInvalidInput, err)
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != 32 {
		return "", fmt.Errorf("%w: unsupported hash %s", core.ErrInvalidInput, multihash.Codes[dec.Code])
	}
	return core.ObjectKey(hex.EncodeToString(dec.Digest)), nil
}

func (b *builder) Verify(c cid.Cid, data []byte) error {
	if !c.Defined() {
		return fmt.Errorf("%w: undefined CID", core.ErrIntegrityMismatch)
	}

	prefix := c.Prefix()
	hash, err := multihash.Sum(data, prefix.MhType, prefix.MhLength)
	if err != nil {
		return fmt.Errorf("failed to compute multihash for verification: %w", err)
	}

	if !bytes.Equal(c.Hash(), hash) {
		return fmt.Errorf("%w: CID mismatch", core.ErrIntegrityMismatch)
	}

	return nil
}
