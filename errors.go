package colshm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned by the encoder for a column whose values
	// cannot be mapped to Int64, Float64 or Utf8.
	ErrUnsupportedType = errors.New("unsupported column type")

	// ErrCorruptBuffer is returned when a buffer does not match the expected
	// table or column framing.
	ErrCorruptBuffer = errors.New("corrupt buffer")

	ErrColumnNotFound = errors.New("column not found")
	ErrTableNotFound  = errors.New("table not found")

	// ErrOutOfSpace is returned by Region.AddTable when the encoded table does
	// not fit into the remaining arena capacity.
	ErrOutOfSpace = errors.New("out of space")

	ErrAllocation = errors.New("cannot allocate shared region")
	ErrAttach     = errors.New("cannot attach shared region")

	ErrClosed = errors.New("region closed")

	// ErrCorruptDirectory is returned when a persisted directory fails its
	// checksum or cannot be decoded.
	ErrCorruptDirectory = errors.New("corrupt directory")
)

// DataError describes a framing problem at a particular offset of a buffer.
// It matches ErrCorruptBuffer with errors.Is.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Is(target error) bool {
	return target == ErrCorruptBuffer
}

func (e *DataError) Error() string {
	const contextLen = 32
	n := len(e.Data)
	start, end := e.Off-contextLen, e.Off+contextLen
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %s at offset %d: %v: (%d) %x", ErrCorruptBuffer, e.Msg, e.Off, e.Err, n, e.Data[start:end])
	} else {
		return fmt.Sprintf("%v: %s at offset %d: (%d) %x", ErrCorruptBuffer, e.Msg, e.Off, n, e.Data[start:end])
	}
}

// ColumnError attributes an encode or lookup failure to a column.
type ColumnError struct {
	Column string
	Type   string // Go or Arrow type name, when known
	Err    error
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}

func (e *ColumnError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("column %q (%s): %v", e.Column, e.Type, e.Err)
	}
	return fmt.Sprintf("column %q: %v", e.Column, e.Err)
}

// OutOfSpaceError reports how much room an AddTable call needed.
type OutOfSpaceError struct {
	Table    string
	Need     int
	Cursor   int64
	Capacity int
}

func (e *OutOfSpaceError) Unwrap() error {
	return ErrOutOfSpace
}

func (e *OutOfSpaceError) Error() string {
	return fmt.Sprintf("table %q: %v: need %d bytes at cursor %d, capacity %d", e.Table, ErrOutOfSpace, e.Need, e.Cursor, e.Capacity)
}

// RegionError wraps a failure to create or attach a shared region. Kind is
// ErrAllocation or ErrAttach.
type RegionError struct {
	Region string
	Op     string
	Kind   error
	Err    error
}

func regionErr(region, op string, kind, err error) error {
	return &RegionError{region, op, kind, err}
}

func (e *RegionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *RegionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %s: %v", e.Region, e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Region, e.Kind, e.Op)
}
