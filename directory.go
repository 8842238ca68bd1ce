package colshm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry records where a table starts inside a region.
type Entry struct {
	Name   string `msgpack:"n"`
	Offset int64  `msgpack:"o"`
}

// Directory is the persisted description of a region: the tables it holds,
// in insertion order, and the next free byte. Entries are only ever
// appended.
type Directory struct {
	Entries []Entry `msgpack:"e"`
	Cursor  int64   `msgpack:"c"`

	index map[string]int
}

func (d *Directory) reindex() {
	d.index = make(map[string]int, len(d.Entries))
	for i, e := range d.Entries {
		if _, dup := d.index[e.Name]; !dup {
			d.index[e.Name] = i
		}
	}
}

// Lookup returns the offset of the named table.
func (d *Directory) Lookup(name string) (int64, bool) {
	if d.index == nil {
		d.reindex()
	}
	i, ok := d.index[name]
	if !ok {
		return 0, false
	}
	return d.Entries[i].Offset, true
}

func (d *Directory) Has(name string) bool {
	_, ok := d.Lookup(name)
	return ok
}

func (d *Directory) Len() int {
	return len(d.Entries)
}

// add appends an entry at the cursor and advances the cursor by size.
func (d *Directory) add(name string, size int) Entry {
	if d.index == nil {
		d.reindex()
	}
	e := Entry{Name: name, Offset: d.Cursor}
	d.index[name] = len(d.Entries)
	d.Entries = append(d.Entries, e)
	d.Cursor += int64(size)
	return e
}

func (d *Directory) clone() *Directory {
	return &Directory{
		Entries: append([]Entry(nil), d.Entries...),
		Cursor:  d.Cursor,
	}
}

// validate checks the invariants a loaded directory must satisfy for a region
// of the given capacity.
func (d *Directory) validate(capacity int) error {
	var prev int64 = -1
	for _, e := range d.Entries {
		if e.Offset <= prev || e.Offset >= d.Cursor {
			return fmt.Errorf("%w: table %q at offset %d (previous %d, cursor %d)", ErrCorruptDirectory, e.Name, e.Offset, prev, d.Cursor)
		}
		prev = e.Offset
	}
	if d.Cursor < 0 || d.Cursor > int64(capacity) {
		return fmt.Errorf("%w: cursor %d outside capacity %d", ErrCorruptDirectory, d.Cursor, capacity)
	}
	return nil
}

// DirectoryStore persists a region's directory so that processes attaching
// later can rebuild their view of the region.
type DirectoryStore interface {
	// Load returns the stored directory, or an empty one if nothing has been
	// stored yet.
	Load() (*Directory, error)
	// Save replaces the stored directory.
	Save(d *Directory) error
	// Remove deletes all persisted state.
	Remove() error
	Close() error
}

// FileStore keeps the directory in a single side file: a msgpack document
// followed by its little-endian xxhash64. Saves write a temporary file and
// rename it over the old one, so readers never observe a partial write.
type FileStore struct {
	path string
}

var _ DirectoryStore = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (*Directory, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Directory{}, nil
	} else if err != nil {
		return nil, err
	}
	return decodeDirectory(data)
}

func decodeDirectory(data []byte) (*Directory, error) {
	const sumSize = 8
	n := len(data)
	if n < sumSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptDirectory, n)
	}
	payload := data[:n-sumSize]
	if want, got := binary.LittleEndian.Uint64(data[n-sumSize:]), xxhash.Sum64(payload); want != got {
		return nil, fmt.Errorf("%w: checksum %016x, wanted %016x", ErrCorruptDirectory, got, want)
	}

	var r bytes.Reader
	r.Reset(payload)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	d := new(Directory)
	err := dec.Decode(d)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDirectory, err)
	}
	return d, nil
}

func encodeDirectory(d *Directory) ([]byte, error) {
	var bb bytesBuilder
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	err := enc.Encode(d)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode directory using MsgPack: %w", err)
	}
	bb.AppendUint64(xxhash.Sum64(bb.Buf))
	return bb.Buf, nil
}

func (s *FileStore) Save(d *Directory) error {
	data, err := encodeDirectory(d)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *FileStore) Remove() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) Close() error {
	return nil
}
