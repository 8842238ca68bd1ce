package colshm

import (
	"fmt"
	"sync"
)

// MemStore is a transient in-process DirectoryStore intended for tests and
// for regions that are only shared between goroutines.
type MemStore struct {
	mu     sync.Mutex
	dir    *Directory
	closed bool
}

var _ DirectoryStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (*Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("directory store closed")
	}
	if s.dir == nil {
		return &Directory{}, nil
	}
	return s.dir.clone(), nil
}

func (s *MemStore) Save(d *Directory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("directory store closed")
	}
	s.dir = d.clone()
	return nil
}

func (s *MemStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = nil
	return nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
