package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/manifest"
	"github.com/cockroachdb/pebble"
)

var (
	PrefixN2K = []byte("n2k:") // <category>\x00<name> -> key
	PrefixK2M = []byte("k2m:") // <category>\x00<key>  -> CBOR manifest
)

// Catalog is a local index of uploads: which key a display name was
// published under and the manifest written for it.
type Catalog interface {
	Record(ctx context.Context, cat core.Category, m manifest.Manifest) error
	Lookup(ctx context.Context, cat core.Category, name string) (core.ObjectKey, bool, error)
	Manifest(ctx context.Context, cat core.Category, key core.ObjectKey) (manifest.Manifest, bool, error)
	Iterate(ctx context.Context, cat core.Category, fn func(m manifest.Manifest) error) error
	Close() error
}

type pebbleCatalog struct {
	db    *pebble.DB
	codec manifest.Codec
}

// Open opens a Pebble-based catalog in the specified directory.
func Open(dir string) (Catalog, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &pebbleCatalog{db: db, codec: manifest.NewCodec()}, nil
}

func (c *pebbleCatalog) Close() error {
	return c.db.Close()
}

func (c *pebbleCatalog) Record(ctx context.Context, cat core.Category, m manifest.Manifest) error {
	val, err := c.codec.Encode(m)
	if err != nil {
		return err
	}

	batch := c.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(categoryKey(PrefixK2M, cat, string(m.Digest)), val, nil); err != nil {
		return err
	}
	if m.OriginalName != "" {
		if err := batch.Set(categoryKey(PrefixN2K, cat, m.OriginalName), []byte(m.Digest), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (c *pebbleCatalog) Lookup(ctx context.Context, cat core.Category, name string) (core.ObjectKey, bool, error) {
	val, closer, err := c.db.Get(categoryKey(PrefixN2K, cat, name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	defer closer.Close()

	key := core.ObjectKey(string(val))
	if !key.Valid() {
		return "", false, fmt.Errorf("%w: corrupt catalog entry for %q", core.ErrIntegrityMismatch, name)
	}
	return key, true, nil
}

func (c *pebbleCatalog) Manifest(ctx context.Context, cat core.Category, key core.ObjectKey) (manifest.Manifest, bool, error) {
	val, closer, err := c.db.Get(categoryKey(PrefixK2M, cat, string(key)))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return manifest.Manifest{}, false, nil
		}
		return manifest.Manifest{}, false, err
	}
	defer closer.Close()

	m, err := c.codec.Decode(val)
	if err != nil {
		return manifest.Manifest{}, false, err
	}
	return m, true, nil
}

func (c *pebbleCatalog) Iterate(ctx context.Context, cat core.Category, fn func(m manifest.Manifest) error) error {
	prefix := categoryKey(PrefixK2M, cat, "")
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementByte(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m, err := c.codec.Decode(iter.Value())
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return iter.Error()
}

func categoryKey(prefix []byte, cat core.Category, id string) []byte {
	k := make([]byte, 0, len(prefix)+len(cat.Name)+1+len(id))
	k = append(k, prefix...)
	k = append(k, cat.Name...)
	k = append(k, 0)
	return append(k, id...)
}

func incrementByte(b []byte) []byte {
	res := make([]byte, len(b))
	copy(res, b)
	for i := len(res) - 1; i >= 0; i-- {
		res[i]++
		if res[i] != 0 {
			return res
		}
	}
	return nil
}
