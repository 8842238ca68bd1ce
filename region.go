package colshm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/andreyvit/colshm/internal/lock"
	"github.com/andreyvit/colshm/mmap"
)

// DefaultCapacity is the arena size used by the command-line tool.
const DefaultCapacity = 200_000_000

type Options struct {
	// Dir holds the arena file, its lock file and, by default, the directory
	// side file. Defaults to DefaultDir().
	Dir string

	// DirectoryPath overrides the side file location used by the default
	// FileStore. Ignored when Store is set.
	DirectoryPath string

	// Store persists the directory. Defaults to a FileStore.
	Store DirectoryStore

	Logger     *slog.Logger
	Aggregator Aggregator

	// Sync flushes the arena to its backing file after each AddTable, before
	// the directory is updated.
	Sync bool

	// Prefault populates the whole mapping on open.
	Prefault bool

	// NoLock skips the cross-process lock around arena creation and table
	// registration. Only safe when a single process writes.
	NoLock bool
}

// DefaultDir returns /dev/shm when it exists, and the temporary directory
// otherwise.
func DefaultDir() string {
	if st, err := os.Stat("/dev/shm"); err == nil && st.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

func (opt *Options) applyDefaults() {
	if opt.Dir == "" {
		opt.Dir = DefaultDir()
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Aggregator == nil {
		opt.Aggregator = HashAggregator{}
	}
}

func (opt *Options) paths(name string) (arena, lockFile, dir string) {
	arena = filepath.Join(opt.Dir, name)
	dir = opt.DirectoryPath
	if dir == "" {
		dir = arena + ".dir"
	}
	return arena, arena + ".lock", dir
}

func validRegionName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Region is a named, fixed-capacity shared arena holding encoded tables back
// to back, plus the directory that maps table names to their offsets.
//
// Every process that opens a region with the same name and Dir maps the same
// memory. Tables are appended with a bump allocator and never move or
// disappear; the directory is persisted after every successful AddTable and
// re-read whenever a lookup misses.
type Region struct {
	name     string
	arena    *mmap.Arena
	data     []byte
	lockPath string
	store    DirectoryStore
	logger   *slog.Logger
	agg      Aggregator
	fsync    bool
	noLock   bool
	ownStore bool

	mu      sync.Mutex
	dir     *Directory
	layouts map[string]*Layout
	closed  atomic.Bool

	colLocksMu sync.Mutex
	colLocks   map[string]*sync.Mutex

	AddCount       atomic.Uint64
	DuplicateCount atomic.Uint64
	HeadCount      atomic.Uint64
	GroupByCount   atomic.Uint64
	MapCount       atomic.Uint64
	MappedValues   atomic.Uint64
}

// OpenOrCreate attaches to the region called name, creating it with the given
// capacity if it does not exist yet. A newly created arena is zero-filled and
// starts with an empty directory; an attached one keeps its own capacity.
//
// Creation failures are reported as ErrAllocation and attach failures as
// ErrAttach, both wrapped in *RegionError.
func OpenOrCreate(name string, capacity int, opt Options) (*Region, error) {
	opt.applyDefaults()
	if !validRegionName(name) {
		return nil, regionErr(name, "invalid region name", ErrAllocation, nil)
	}
	arenaPath, lockPath, dirPath := opt.paths(name)

	if err := os.MkdirAll(opt.Dir, 0777); err != nil {
		return nil, regionErr(name, "create directory", ErrAllocation, err)
	}

	if !opt.NoLock {
		l, err := lock.Acquire(lockPath)
		if err != nil {
			return nil, regionErr(name, "lock", ErrAttach, err)
		}
		defer l.Release()
	}

	var mopt mmap.Options
	if opt.Prefault {
		mopt |= mmap.Prefault
	}

	created := false
	arena, err := mmap.AttachArena(arenaPath, mopt)
	if errors.Is(err, os.ErrNotExist) {
		if capacity <= 0 || capacity > mmap.MaxSize {
			return nil, regionErr(name, fmt.Sprintf("invalid capacity %d", capacity), ErrAllocation, nil)
		}
		arena, err = mmap.CreateArena(arenaPath, capacity, mopt)
		if err != nil {
			return nil, regionErr(name, "create arena", ErrAllocation, err)
		}
		created = true
	} else if err != nil {
		return nil, regionErr(name, "attach arena", ErrAttach, err)
	}

	store := opt.Store
	if store == nil {
		store = NewFileStore(dirPath)
	}

	var dir *Directory
	if created {
		dir = &Directory{}
		err = store.Save(dir)
	} else {
		dir, err = store.Load()
		if err == nil {
			err = dir.validate(arena.Size())
		}
	}
	if err != nil {
		arena.Close()
		if created {
			os.Remove(arenaPath)
			return nil, regionErr(name, "initialize directory", ErrAllocation, err)
		}
		return nil, regionErr(name, "load directory", ErrAttach, err)
	}

	r := &Region{
		name:     name,
		arena:    arena,
		data:     arena.Bytes(),
		lockPath: lockPath,
		store:    store,
		logger:   opt.Logger.With("region", name),
		agg:      opt.Aggregator,
		fsync:    opt.Sync,
		noLock:   opt.NoLock,
		ownStore: opt.Store == nil,
		dir:      dir,
		layouts:  make(map[string]*Layout),
		colLocks: make(map[string]*sync.Mutex),
	}
	if created {
		r.logger.Debug("created shared region", "path", arenaPath, "capacity", arena.Size())
	} else {
		r.logger.Debug("attached shared region", "path", arenaPath, "capacity", arena.Size(), "tables", dir.Len(), "used", dir.Cursor)
	}
	return r, nil
}

func (r *Region) Name() string {
	return r.name
}

func (r *Region) Capacity() int {
	return len(r.data)
}

// Used returns the allocation cursor as last seen by this process.
func (r *Region) Used() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir.Cursor
}

// Tables lists the tables known to this process, in allocation order.
func (r *Region) Tables() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.dir.Entries...)
}

// Refresh re-reads the directory to pick up tables added by other processes.
func (r *Region) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrClosed
	}
	return r.reloadLocked()
}

func (r *Region) reloadLocked() error {
	dir, err := r.store.Load()
	if err != nil {
		return err
	}
	if err := dir.validate(len(r.data)); err != nil {
		return err
	}
	r.dir = dir
	return nil
}

// AddTable encodes src and appends it to the region under name. If a table
// with that name already exists, AddTable logs a note and does nothing.
//
// The bytes are copied into the arena before the directory is updated, so a
// failure at any point leaves at most an unreferenced gap after the cursor.
func (r *Region) AddTable(name string, src Source) error {
	if name == "" {
		return fmt.Errorf("%s: empty table name", r.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrClosed
	}

	if !r.noLock {
		l, err := lock.Acquire(r.lockPath)
		if err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
		defer l.Release()
	}

	if err := r.reloadLocked(); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	if r.dir.Has(name) {
		r.DuplicateCount.Add(1)
		r.logger.Info("table already exists in shared region", "table", name)
		return nil
	}

	encoded, err := Encode(src)
	if err != nil {
		return fmt.Errorf("table %q: %w", name, err)
	}
	cursor := r.dir.Cursor
	if cursor+int64(len(encoded)) > int64(len(r.data)) {
		return &OutOfSpaceError{Table: name, Need: len(encoded), Cursor: cursor, Capacity: len(r.data)}
	}

	copy(r.data[cursor:], encoded)
	if r.fsync {
		if err := r.arena.Sync(); err != nil {
			return fmt.Errorf("table %q: %w", name, err)
		}
	}

	next := r.dir.clone()
	e := next.add(name, len(encoded))
	if err := r.store.Save(next); err != nil {
		return fmt.Errorf("table %q: saving directory: %w", name, err)
	}
	r.dir = next

	r.AddCount.Add(1)
	r.logger.Debug("added table", "table", name, "offset", e.Offset, "size", len(encoded))
	return nil
}

func (r *Region) offset(name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if off, ok := r.dir.Lookup(name); ok {
		return off, nil
	}
	// Another process may have added it since we last looked.
	if err := r.reloadLocked(); err != nil {
		return 0, fmt.Errorf("%s: %w", r.name, err)
	}
	if off, ok := r.dir.Lookup(name); ok {
		return off, nil
	}
	return 0, fmt.Errorf("table %q: %w", name, ErrTableNotFound)
}

// View returns the region's memory from the start of the named table to the
// end of the arena. Writes through the view are visible to every process
// attached to the region. The view must not be used after Close.
func (r *Region) View(name string) ([]byte, error) {
	off, err := r.offset(name)
	if err != nil {
		return nil, err
	}
	return r.data[off:], nil
}

// Layout returns the structural index of the named table. Layouts are cached
// because tables never change shape.
func (r *Region) Layout(name string) (*Layout, error) {
	view, err := r.View(name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	l := r.layouts[name]
	r.mu.Unlock()
	if l != nil {
		return l, nil
	}

	l, err = ReadLayout(view)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	r.mu.Lock()
	r.layouts[name] = l
	r.mu.Unlock()
	return l, nil
}

// TableBytes returns exactly the bytes of the named table, without copying.
func (r *Region) TableBytes(name string) ([]byte, error) {
	view, err := r.View(name)
	if err != nil {
		return nil, err
	}
	l, err := r.Layout(name)
	if err != nil {
		return nil, err
	}
	return view[:l.Size()], nil
}

// Head decodes the first n rows of the named table.
func (r *Region) Head(name string, n int) (*Frame, error) {
	view, err := r.View(name)
	if err != nil {
		return nil, err
	}
	r.HeadCount.Add(1)
	f, err := DecodeHead(view, n)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	return f, nil
}

// GroupBySum decodes the grouping and summed columns of the named table and
// hands them to the region's Aggregator.
func (r *Region) GroupBySum(name, groupCol, sumCol string) (*Frame, error) {
	view, err := r.View(name)
	if err != nil {
		return nil, err
	}
	r.GroupByCount.Add(1)
	cols, err := DecodeColumns(view, groupCol, sumCol)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	keys, values := cols[groupCol], cols[sumCol]
	f, err := r.agg.GroupBySum(&keys, &values)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	return f, nil
}

// MapNumericColumn applies fn in place to every value of a numeric column of
// the named table. Missing and Utf8 columns are left alone. Calls for the same
// table and column are serialized within this process; callers must
// coordinate mutators across processes themselves.
func (r *Region) MapNumericColumn(name, column string, fn Transform) (int, error) {
	view, err := r.View(name)
	if err != nil {
		return 0, err
	}
	l, err := r.Layout(name)
	if err != nil {
		return 0, err
	}

	mu := r.columnLock(name, column)
	mu.Lock()
	defer mu.Unlock()

	n := MapLayoutColumn(view, l, column, fn)
	r.MapCount.Add(1)
	r.MappedValues.Add(uint64(n))
	if n == 0 {
		r.logger.Debug("column not mapped", "table", name, "column", column)
	}
	return n, nil
}

func (r *Region) columnLock(table, column string) *sync.Mutex {
	key := table + "\x00" + column
	r.colLocksMu.Lock()
	defer r.colLocksMu.Unlock()
	mu := r.colLocks[key]
	if mu == nil {
		mu = new(sync.Mutex)
		r.colLocks[key] = mu
	}
	return mu
}

// Close releases this process's mapping of the region. The region itself
// stays available to other processes; see Unlink. Close never fails.
func (r *Region) Close() {
	if r.closed.Swap(true) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.arena.Close(); err != nil {
		r.logger.Debug("closing arena", "err", err)
	}
	if r.ownStore {
		if err := r.store.Close(); err != nil {
			r.logger.Debug("closing directory store", "err", err)
		}
	}
	r.data = nil
}

// Unlink destroys the region called name: the arena file, its lock file and
// the persisted directory. Processes that still have the region open keep
// their mapping until they close it.
func Unlink(name string, opt Options) error {
	opt.applyDefaults()
	if !validRegionName(name) {
		return regionErr(name, "invalid region name", ErrAttach, nil)
	}
	arenaPath, lockPath, dirPath := opt.paths(name)
	store := opt.Store
	if store == nil {
		store = NewFileStore(dirPath)
	}
	return errors.Join(
		removeIfExists(arenaPath),
		store.Remove(),
		removeIfExists(lockPath),
	)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// RegionStats is a snapshot of a region's usage and operation counters.
type RegionStats struct {
	Name         string
	Capacity     int
	Used         int64
	Tables       int
	Adds         uint64
	Duplicates   uint64
	Heads        uint64
	GroupBys     uint64
	Maps         uint64
	MappedValues uint64
}

func (r *Region) Stats() RegionStats {
	r.mu.Lock()
	used, tables := r.dir.Cursor, r.dir.Len()
	r.mu.Unlock()
	return RegionStats{
		Name:         r.name,
		Capacity:     len(r.data),
		Used:         used,
		Tables:       tables,
		Adds:         r.AddCount.Load(),
		Duplicates:   r.DuplicateCount.Load(),
		Heads:        r.HeadCount.Load(),
		GroupBys:     r.GroupByCount.Load(),
		Maps:         r.MapCount.Load(),
		MappedValues: r.MappedValues.Load(),
	}
}
