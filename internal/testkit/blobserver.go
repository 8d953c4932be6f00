package testkit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// BlobServer is an in-memory stand-in for a path-addressed filer. PUT stores
// the request body under the request path, GET returns it.
type BlobServer struct {
	*httptest.Server

	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	gets      int
	putStatus int
	getStatus int
	corrupt   bool
	truncate  bool
	hangup    bool
	delay     time.Duration
}

// NewBlobServer starts a BlobServer. Callers must Close it.
func NewBlobServer() *BlobServer {
	s := &BlobServer{objects: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// FailPuts makes every subsequent PUT answer with status. Zero restores normal behavior.
func (s *BlobServer) FailPuts(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putStatus = status
}

// FailGets makes every subsequent GET answer with status. Zero restores normal behavior.
func (s *BlobServer) FailGets(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getStatus = status
}

// CorruptReads flips a byte in every GET body.
func (s *BlobServer) CorruptReads(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt = on
}

// TruncateReads advertises the full Content-Length but sends half of the body.
func (s *BlobServer) TruncateReads(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate = on
}

// HangUp closes the connection without answering.
func (s *BlobServer) HangUp(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hangup = on
}

// Delay stalls every request before answering.
func (s *BlobServer) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Object returns the bytes stored under path.
func (s *BlobServer) Object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	return b, ok
}

// Len returns the number of stored objects.
func (s *BlobServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Puts returns the number of PUT requests served.
func (s *BlobServer) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Gets returns the number of GET requests served.
func (s *BlobServer) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *BlobServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay, hangup := s.delay, s.hangup
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if hangup {
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
				return
			}
		}
	}

	switch r.Method {
	case http.MethodPut:
		s.servePut(w, r)
	case http.MethodGet:
		s.serveGet(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *BlobServer) servePut(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.ContentLength != int64(len(body)) {
		http.Error(w, "content length mismatch", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++
	if s.putStatus != 0 {
		w.WriteHeader(s.putStatus)
		return
	}

	_, existed := s.objects[r.URL.Path]
	s.objects[r.URL.Path] = body

	w.Header().Set("Content-Type", "application/json")
	if existed {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	_, _ = io.WriteString(w, `{"name":"`+r.URL.Path+`","size":`+strconv.Itoa(len(body))+`}`)
}

func (s *BlobServer) serveGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.gets++
	status := s.getStatus
	body, ok := s.objects[r.URL.Path]
	corrupt, truncate := s.corrupt, s.truncate
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	if corrupt {
		body = Flip(body, len(body)/2)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if truncate {
		body = body[:len(body)/2]
	}
	_, _ = w.Write(body)
}
