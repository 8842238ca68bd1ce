// Package lock serializes work across processes with a lock file.
package lock

import "errors"

var ErrLocked = errors.New("lock is held by another process")
