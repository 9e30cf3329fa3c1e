// Package memory implements an in-memory blob Store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/blob"
)

var _ blob.Store = (*Store)(nil)

type entry struct {
	info blob.Info
	data []byte
}

type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
}

func New() *Store { return &Store{objs: make(map[string]entry)} }

func (s *Store) Driver() blob.Driver { return blob.DriverMemory }

func (s *Store) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("blob key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objs[key] = entry{
		info: blob.Info{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  contentType,
			LastModified: time.Now().UTC(),
		},
		data: append([]byte(nil), data...),
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (blob.Info, []byte, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return blob.Info{}, nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	return obj.info, append([]byte(nil), obj.data...), nil
}

// Keys returns every stored key. Order is unspecified.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objs))
	for k := range s.objs {
		keys = append(keys, k)
	}
	return keys
}
