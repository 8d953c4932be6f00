package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/digest"
	"github.com/agenthands/slp/pkg/manifest"
	"github.com/agenthands/slp/pkg/transport"
	"go.uber.org/zap"
)

const (
	contentTypeOctet = "application/octet-stream"
	contentTypeJSON  = "application/json"
)

type store struct {
	baseURL string
	tr      transport.Client
	lg      *zap.Logger
}

// Option configures a Store.
type Option func(*store)

// WithLogger sets the logger for upload and download events.
func WithLogger(lg *zap.Logger) Option {
	return func(s *store) { s.lg = lg }
}

// New returns a Store rooted at baseURL. The transport stays owned by the caller.
func New(baseURL string, tr transport.Client, opts ...Option) Store {
	s := &store{
		baseURL: strings.TrimRight(baseURL, "/"),
		tr:      tr,
		lg:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.lg == nil {
		s.lg = zap.NewNop()
	}
	return s
}

func (s *store) URL(cat Category, key ObjectKey) string {
	return s.baseURL + "/" + cat.Name + "/" + string(key) + cat.Ext
}

// ManifestURL is where the manifest of key lives.
func (s *store) ManifestURL(cat Category, key ObjectKey) string {
	return s.baseURL + "/" + cat.Name + "/" + string(key) + manifest.Suffix
}

func (s *store) Put(ctx context.Context, cat Category, data []byte) (ObjectKey, error) {
	key := digest.Hex(data)
	url := s.URL(cat, key)

	if err := s.put(ctx, url, data, contentTypeOctet); err != nil {
		return "", err
	}

	s.lg.Info("uploaded object",
		zap.String("category", cat.Name),
		zap.String("key", string(key)),
		zap.Int("size", len(data)))
	return key, nil
}

func (s *store) PutManifest(ctx context.Context, cat Category, m manifest.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.put(ctx, s.ManifestURL(cat, m.Digest), m.Serialize(), contentTypeJSON)
}

func (s *store) put(ctx context.Context, url string, data []byte, contentType string) error {
	res, err := s.tr.Put(ctx, url, data, contentType)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrUploadFailed, err)
	}

	// SeaweedFS answers 201 for a new file and 200 for an overwrite.
	if res.Status != http.StatusOK && res.Status != http.StatusCreated {
		return fmt.Errorf("%w: PUT %s: HTTP %d", core.ErrUploadFailed, url, res.Status)
	}
	return nil
}

func (s *store) Get(ctx context.Context, cat Category, key ObjectKey) ([]byte, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: malformed object key %q", core.ErrInvalidInput, key)
	}
	url := s.URL(cat, key)

	res, err := s.tr.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if res.Status != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: HTTP %d", core.ErrNotFound, url, res.Status)
	}

	if err := digest.Verify(key, res.Body); err != nil {
		s.lg.Warn("rejected corrupt object",
			zap.String("category", cat.Name),
			zap.String("key", string(key)),
			zap.Int("size", len(res.Body)))
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	return res.Body, nil
}
