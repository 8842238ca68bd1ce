//go:build windows

package lock

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// File is an exclusive lock held by owning a lock file.
type File struct {
	f *os.File
}

// Acquire blocks until it can atomically create the lock file at path.
//
// On Windows, this is implemented by creating the file with O_EXCL and
// retrying while it exists. A lock file left behind by a crashed process
// must be removed manually.
func Acquire(path string) (*File, error) {
	for {
		l, err := TryAcquire(path)
		if !errors.Is(err, ErrLocked) {
			return l, err
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TryAcquire is like Acquire but fails immediately with ErrLocked if the lock
// file exists.
func TryAcquire(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if errors.Is(err, os.ErrExist) {
		return nil, ErrLocked
	} else if err != nil {
		return nil, fmt.Errorf("unable to open lock file: %w", err)
	}
	return &File{f}, nil
}

// Release closes and removes the lock file. It should be called exactly once
// for each successful Acquire.
func (l *File) Release() {
	name := l.f.Name()
	l.f.Close()
	os.Remove(name)
}
