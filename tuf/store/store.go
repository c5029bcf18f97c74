// Package store implements the Transport abstraction (spec §4.3): a
// length-capped byte fetch by name, with HTTP and filesystem backends.
//
// Grounded on kolide-updater's tuf/client.go (http.NewRequest +
// io.LimitReader as the length-capping idiom) and johnsandiford-notary's
// store.MetadataStore contract referenced throughout
// client/client_update_test.go (GetMeta(role, maxSize), ErrMetaNotFound,
// ErrServerUnavailable, ErrMaliciousServer).
package store

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// MetadataStore is the Transport contract the loader depends on: fetch
// role by name, capped at maxSize bytes. A maxSize <= 0 means unbounded.
type MetadataStore interface {
	GetMeta(name string, maxSize int64) ([]byte, error)
}

// ErrMetaNotFound mirrors the teacher's store.ErrMetaNotFound: the
// backend has no object under this name (HTTP 404, or file absent).
type ErrMetaNotFound struct {
	Resource string
}

func (e ErrMetaNotFound) Error() string { return fmt.Sprintf("store: %s not found", e.Resource) }

// ErrServerUnavailable mirrors the teacher's store.ErrServerUnavailable:
// a non-2xx, non-404 response, or a transport-level failure.
type ErrServerUnavailable struct {
	Resource string
	Code     int
}

func (e ErrServerUnavailable) Error() string {
	return fmt.Sprintf("store: %s unavailable (status %d)", e.Resource, e.Code)
}

// ErrMaliciousServer mirrors the teacher's store.ErrMaliciousServer: the
// backend claimed or delivered more bytes than maxSize allows.
type ErrMaliciousServer struct {
	Resource string
	MaxSize  int64
}

func (e ErrMaliciousServer) Error() string {
	return fmt.Sprintf("store: %s exceeded the %d byte cap", e.Resource, e.MaxSize)
}

// HTTPStore fetches role/target bytes from a metadata or targets base URL
// over HTTP(S), matching kolide-updater's NewRequest+LimitReader pattern.
type HTTPStore struct {
	BaseURL *url.URL
	Client  *http.Client
}

// NewHTTPStore builds an HTTPStore rooted at baseURL. client may be nil,
// in which case a new http.Client with a 30s timeout is used.
func NewHTTPStore(baseURL string, client *http.Client) (*HTTPStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing store base url")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{BaseURL: u, Client: client}, nil
}

// GetMeta performs a GET of name relative to the store's base URL.
// Responses larger than maxSize (by Content-Length, or by exceeding the
// LimitReader cap when Content-Length is absent/untrustworthy) are
// rejected as ErrMaliciousServer, never silently truncated.
func (s *HTTPStore) GetMeta(name string, maxSize int64) ([]byte, error) {
	target := *s.BaseURL
	target.Path = path.Join(target.Path, name)

	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", name)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, ErrServerUnavailable{Resource: name, Code: 0}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrMetaNotFound{Resource: name}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, ErrServerUnavailable{Resource: name, Code: resp.StatusCode}
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" && maxSize > 0 {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > maxSize {
			return nil, ErrMaliciousServer{Resource: name, MaxSize: maxSize}
		}
	}

	var reader io.Reader = resp.Body
	if maxSize > 0 {
		reader = io.LimitReader(resp.Body, maxSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "reading response body for %s", name)
	}
	if maxSize > 0 && int64(len(body)) > maxSize {
		return nil, ErrMaliciousServer{Resource: name, MaxSize: maxSize}
	}
	return body, nil
}

// FileStore fetches role/target bytes from a local directory, used for
// "file://" mirrors and as the on-disk side of the trust dir cache.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

// GetMeta reads dir/name, enforcing maxSize the same way HTTPStore does.
func (s *FileStore) GetMeta(name string, maxSize int64) ([]byte, error) {
	full := path.Join(s.Dir, name)
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMetaNotFound{Resource: name}
		}
		return nil, errors.Wrapf(err, "opening %s", full)
	}
	defer f.Close()

	var reader io.Reader = f
	if maxSize > 0 {
		reader = io.LimitReader(f, maxSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", full)
	}
	if maxSize > 0 && int64(len(body)) > maxSize {
		return nil, ErrMaliciousServer{Resource: name, MaxSize: maxSize}
	}
	return body, nil
}

// MemoryStore is an in-memory MetadataStore used by loader tests,
// mirroring the teacher's store.NewMemoryStore fixture.
type MemoryStore struct {
	Files map[string][]byte
}

// NewMemoryStore wraps files as a MetadataStore.
func NewMemoryStore(files map[string][]byte) *MemoryStore {
	if files == nil {
		files = map[string][]byte{}
	}
	return &MemoryStore{Files: files}
}

// GetMeta returns the stored bytes for name, enforcing maxSize.
func (s *MemoryStore) GetMeta(name string, maxSize int64) ([]byte, error) {
	body, ok := s.Files[name]
	if !ok {
		return nil, ErrMetaNotFound{Resource: name}
	}
	if maxSize > 0 && int64(len(body)) > maxSize {
		return nil, ErrMaliciousServer{Resource: name, MaxSize: maxSize}
	}
	return body, nil
}

// SetMeta stores or replaces body under name, used by tests to seed a
// server fixture.
func (s *MemoryStore) SetMeta(name string, body []byte) {
	s.Files[name] = body
}
