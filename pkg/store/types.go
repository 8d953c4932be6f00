package store

import (
	"context"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/manifest"
)

type ObjectKey = core.ObjectKey
type Category = core.Category

// Store is a content-addressed view of a path-addressed remote filer.
type Store interface {
	// Put uploads data under its digest and returns the digest.
	Put(ctx context.Context, cat Category, data []byte) (ObjectKey, error)
	// Get downloads the object and returns it only if its digest equals key.
	Get(ctx context.Context, cat Category, key ObjectKey) ([]byte, error)
	// PutManifest writes m next to the object it describes.
	PutManifest(ctx context.Context, cat Category, m manifest.Manifest) error

	URL(cat Category, key ObjectKey) string
	ManifestURL(cat Category, key ObjectKey) string
}
