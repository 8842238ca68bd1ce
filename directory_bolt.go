package colshm

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

var (
	tablesBucket = []byte("tables")
	metaBucket   = []byte("meta")
	cursorKey    = []byte("cursor")
)

// BoltStore keeps the directory in a Bolt database: bucket "tables" maps
// table names to 8-byte big-endian offsets, bucket "meta" holds the cursor.
//
// Bolt allows a single writer per file, so the database is opened for the
// duration of each call rather than held open, which lets several processes
// share one directory.
type BoltStore struct {
	path    string
	timeout time.Duration
}

var _ DirectoryStore = (*BoltStore)(nil)

func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path, timeout: 10 * time.Second}
}

func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) open(readOnly bool) (*bbolt.DB, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = s.timeout
	bopt.ReadOnly = readOnly
	bdb, err := bbolt.Open(s.path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("directory %s: %w", s.path, err)
	}
	return bdb, nil
}

func (s *BoltStore) Load() (*Directory, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return &Directory{}, nil
	}
	bdb, err := s.open(true)
	if err != nil {
		return nil, err
	}
	defer bdb.Close()

	d := new(Directory)
	err = bdb.View(func(btx *bbolt.Tx) error {
		if meta := btx.Bucket(metaBucket); meta != nil {
			if v := meta.Get(cursorKey); v != nil {
				if len(v) != 8 {
					return fmt.Errorf("%w: cursor is %d bytes", ErrCorruptDirectory, len(v))
				}
				d.Cursor = int64(binary.BigEndian.Uint64(v))
			}
		}
		tables := btx.Bucket(tablesBucket)
		if tables == nil {
			return nil
		}
		return tables.ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("%w: offset of %q is %d bytes", ErrCorruptDirectory, k, len(v))
			}
			d.Entries = append(d.Entries, Entry{Name: string(k), Offset: int64(binary.BigEndian.Uint64(v))})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// Bolt iterates in key order; the directory is kept in allocation order.
	slices.SortFunc(d.Entries, func(a, b Entry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	return d, nil
}

func (s *BoltStore) Save(d *Directory) error {
	bdb, err := s.open(false)
	if err != nil {
		return err
	}
	defer bdb.Close()

	return bdb.Update(func(btx *bbolt.Tx) error {
		tables, err := btx.CreateBucketIfNotExists(tablesBucket)
		if err != nil {
			return err
		}
		meta, err := btx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		var v [8]byte
		for _, e := range d.Entries {
			if tables.Get(unsafeBytesFromString(e.Name)) != nil {
				continue
			}
			binary.BigEndian.PutUint64(v[:], uint64(e.Offset))
			if err := tables.Put([]byte(e.Name), slices.Clone(v[:])); err != nil {
				return err
			}
		}
		binary.BigEndian.PutUint64(v[:], uint64(d.Cursor))
		return meta.Put(cursorKey, slices.Clone(v[:]))
	})
}

func (s *BoltStore) Remove() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *BoltStore) Close() error {
	return nil
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
