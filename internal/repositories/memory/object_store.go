package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"receivables/internal/common"
)

// ObjectStore keeps uploaded documents in memory and serves them under
// baseURL.
type ObjectStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	types   map[string]string
}

func NewObjectStore(baseURL string) *ObjectStore {
	return &ObjectStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *ObjectStore) Upload(ctx context.Context, objectName, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = append([]byte(nil), data...)
	s.types[objectName] = contentType
	return nil
}

func (s *ObjectStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[objectName]; !ok {
		return "", common.NewNotFoundError("object", objectName)
	}
	return s.baseURL + "/" + objectName, nil
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	return nil
}

// Object returns a stored document and its content type.
func (s *ObjectStore) Object(objectName string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[objectName]
	return data, s.types[objectName], ok
}
