package storage

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
)

// MemoryObjectStorage keeps uploaded objects in process. It backs local
// development and tests when no bucket is configured.
type MemoryObjectStorage struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]MemoryObject
}

// MemoryObject is one stored file
type MemoryObject struct {
	ContentType string
	Data        []byte
	UploadedAt  time.Time
}

// NewMemoryObjectStorage creates an empty store
func NewMemoryObjectStorage() *MemoryObjectStorage {
	return &MemoryObjectStorage{
		BaseURL: "http://storage.local",
		objects: make(map[string]MemoryObject),
	}
}

// Upload stores a copy of data under key
func (m *MemoryObjectStorage) Upload(_ context.Context, key, contentType string, data []byte) error {
	if key == "" {
		return errKeyRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = MemoryObject{
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
		UploadedAt:  time.Now(),
	}
	return nil
}

// PresignGet returns a link carrying the expiry as a query parameter
func (m *MemoryObjectStorage) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", errKeyRequired
	}
	expires := time.Now().Add(ttl).Unix()
	return m.BaseURL + "/" + url.PathEscape(key) + "?expires=" + strconv.FormatInt(expires, 10), nil
}

// Get returns the object stored under key
func (m *MemoryObjectStorage) Get(key string) (MemoryObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

var _ appinv.ObjectStorage = (*MemoryObjectStorage)(nil)
