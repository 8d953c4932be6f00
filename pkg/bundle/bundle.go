// Package bundle moves verified objects in and out of CARv2 archives. Each
// object becomes one raw block whose CID carries the object's SHA-256, so an
// archive can be checked with any IPFS tooling.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/agenthands/slp/pkg/cidutil"
	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/digest"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car/v2"
	"github.com/ipld/go-car/v2/blockstore"
)

var cids = cidutil.NewBuilder()

// Object is a verified payload and its key.
type Object struct {
	Key  core.ObjectKey
	Data []byte
}

// Write replaces path with a CARv2 archive holding objs. Every object's
// digest is checked before it is written; duplicates are stored once.
func Write(ctx context.Context, path string, objs []Object) error {
	if len(objs) == 0 {
		return fmt.Errorf("%w: empty bundle", core.ErrInvalidInput)
	}

	var (
		roots  = make([]cid.Cid, 0, len(objs))
		unique = make([]Object, 0, len(objs))
		seen   = make(map[core.ObjectKey]struct{}, len(objs))
	)
	for _, o := range objs {
		if err := digest.Verify(o.Key, o.Data); err != nil {
			return err
		}
		if _, ok := seen[o.Key]; ok {
			continue
		}
		seen[o.Key] = struct{}{}

		c, err := cids.KeyCID(o.Key)
		if err != nil {
			return err
		}
		roots = append(roots, c)
		unique = append(unique, o)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	bs, err := blockstore.OpenReadWrite(path, roots)
	if err != nil {
		return fmt.Errorf("failed to create bundle %s: %w", path, err)
	}

	for i, c := range roots {
		if ctx.Err() != nil {
			bs.Discard()
			return ctx.Err()
		}

		blk, err := blocks.NewBlockWithCid(unique[i].Data, c)
		if err != nil {
			bs.Discard()
			return fmt.Errorf("block %d: %w", i, err)
		}
		if err := bs.Put(ctx, blk); err != nil {
			bs.Discard()
			return fmt.Errorf("block %d: %w", i, err)
		}
	}

	if err := bs.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize bundle %s: %w", path, err)
	}
	return nil
}

// Read streams the blocks of the archive at path to fn in file order. Each
// block is re-verified; a mismatch aborts with ErrIntegrityMismatch before
// fn sees the block.
func Read(ctx context.Context, path string, fn func(Object) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	defer f.Close()

	br, err := carv2.NewBlockReader(f)
	if err != nil {
		return fmt.Errorf("failed to read bundle %s: %w", path, err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		blk, err := br.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read block from %s: %w", path, err)
		}

		key, err := cids.Key(blk.Cid())
		if err != nil {
			return err
		}
		if err := digest.Verify(key, blk.RawData()); err != nil {
			return err
		}
		if err := fn(Object{Key: key, Data: blk.RawData()}); err != nil {
			return err
		}
	}
}

// Roots returns the keys an archive declares as its roots.
func Roots(path string) ([]core.ObjectKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	defer f.Close()

	br, err := carv2.NewBlockReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle %s: %w", path, err)
	}

	keys := make([]core.ObjectKey, 0, len(br.Roots))
	for _, c := range br.Roots {
		k, err := cids.Key(c)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
