package mmap

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrClosed = errors.New("mmap: arena closed")

// Arena is a fixed-size file mapped read-write and shared, so that every
// process that maps the same path sees the same physical pages. Placing the
// file on a tmpfs such as /dev/shm gives POSIX shared memory semantics.
type Arena struct {
	path string
	f    *os.File
	data []byte

	closeOnce sync.Once
	closeErr  error
}

// CreateArena creates a new zero-filled file of the given size and maps it.
// It fails with an error satisfying os.IsExist if the file already exists.
func CreateArena(path string, size int, opt Options) (*Arena, error) {
	if size <= 0 || size > MaxSize {
		return nil, fmt.Errorf("mmap: invalid arena size %d", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	a, err := mapArena(path, f, size, opt)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return a, nil
}

// AttachArena maps an existing arena file. The size is taken from the file.
func AttachArena(path string, opt Options) (*Arena, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()
	if size <= 0 || size > MaxSize {
		f.Close()
		return nil, fmt.Errorf("mmap: %s: invalid arena size %d", path, size)
	}
	return mapArena(path, f, int(size), opt)
}

func mapArena(path string, f *os.File, size int, opt Options) (*Arena, error) {
	data, err := mapShared(f, size, opt)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Arena{path: path, f: f, data: data}, nil
}

func (a *Arena) Path() string {
	return a.path
}

// Bytes returns the mapped memory. It must not be used after Close.
func (a *Arena) Bytes() []byte {
	return a.data
}

func (a *Arena) Size() int {
	return len(a.data)
}

// Sync flushes dirty pages of the mapping to the backing file. On tmpfs this
// is effectively free and only matters for arenas placed on a real disk.
func (a *Arena) Sync() error {
	if a.data == nil {
		return ErrClosed
	}
	return flush(a.f, a.data)
}

// Close unmaps the arena and closes the file. The file itself is left in
// place for other processes. Close is idempotent.
func (a *Arena) Close() error {
	a.closeOnce.Do(func() {
		if a.data != nil {
			a.closeErr = unmap(a.data)
			a.data = nil
		}
		if err := a.f.Close(); err != nil && a.closeErr == nil {
			a.closeErr = err
		}
	})
	return a.closeErr
}
