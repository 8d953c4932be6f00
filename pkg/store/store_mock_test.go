package store_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/agenthands/slp/internal/testkit"
	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/digest"
	"github.com/agenthands/slp/pkg/store"
	"github.com/agenthands/slp/pkg/transport"
)

var errMock = errors.New("mock error")

// ---------- Mock Transport ----------

type mockTransport struct {
	getRes transport.Result
	getErr error
	putRes transport.Result
	putErr error

	urls  []string
	types []string
}

func (m *mockTransport) Get(ctx context.Context, url string) (transport.Result, error) {
	m.urls = append(m.urls, url)
	return m.getRes, m.getErr
}

func (m *mockTransport) Put(ctx context.Context, url string, body []byte, contentType string) (transport.Result, error) {
	m.urls = append(m.urls, url)
	m.types = append(m.types, contentType)
	return m.putRes, m.putErr
}

func (m *mockTransport) Close() error { return nil }

func TestStoreMock_SuccessCodes(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		tr := &mockTransport{putRes: transport.Result{Status: status}}
		s := store.New("http://filer", tr)

		if _, err := s.Put(context.Background(), core.Bench, []byte("x")); err != nil {
			t.Errorf("status %d should succeed: %v", status, err)
		}
		if tr.types[0] != "application/octet-stream" {
			t.Errorf("unexpected content type %q", tr.types[0])
		}
	}

	for _, status := range []int{http.StatusNoContent, http.StatusAccepted, http.StatusFound, http.StatusForbidden} {
		tr := &mockTransport{putRes: transport.Result{Status: status}}
		s := store.New("http://filer", tr)

		if _, err := s.Put(context.Background(), core.Bench, []byte("x")); !errors.Is(err, store.ErrUploadFailed) {
			t.Errorf("status %d: expected ErrUploadFailed, got %v", status, err)
		}
	}
}

func TestStoreMock_TransportErrorOnPut(t *testing.T) {
	cause := &transport.Error{Op: "PUT", URL: "http://filer/x", Err: errMock}
	s := store.New("http://filer", &mockTransport{putErr: cause})

	_, err := s.Put(context.Background(), core.Bench, []byte("x"))
	if !errors.Is(err, store.ErrUploadFailed) || !errors.Is(err, store.ErrTransport) || !errors.Is(err, errMock) {
		t.Errorf("expected upload failure wrapping the transport error, got %v", err)
	}
}

func TestStoreMock_SubstitutedBody(t *testing.T) {
	want := []byte("the real model")
	key := digest.Hex(want)

	for name, body := range map[string][]byte{
		"flipped":   testkit.Flip(want, 3),
		"truncated": want[:5],
		"extended":  append(append([]byte{}, want...), '!'),
		"empty":     {},
		"other":     []byte("a different, valid object"),
	} {
		t.Run(name, func(t *testing.T) {
			tr := &mockTransport{getRes: transport.Result{Status: http.StatusOK, Body: body}}
			s := store.New("http://filer", tr)

			got, err := s.Get(context.Background(), core.Models, key)
			if !errors.Is(err, store.ErrIntegrityMismatch) {
				t.Fatalf("expected ErrIntegrityMismatch, got %v", err)
			}
			if got != nil {
				t.Error("unverified bytes returned")
			}
		})
	}
}

func TestStoreMock_Addressing(t *testing.T) {
	tr := &mockTransport{putRes: transport.Result{Status: http.StatusCreated}}
	s := store.New("http://filer:8888/", tr)

	data := []byte("prompts")
	key, _ := s.Put(context.Background(), core.Prompts, data)

	want := "http://filer:8888/prompts/" + string(key) + ".jsonl"
	if tr.urls[0] != want {
		t.Errorf("expected %s, got %s", want, tr.urls[0])
	}
}
