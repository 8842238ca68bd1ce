package colshm

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(t testing.TB) Options {
	return Options{
		Dir:    t.TempDir(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func setup(t testing.TB, capacity int, opt Options) *Region {
	t.Helper()
	r, err := OpenOrCreate("test", capacity, opt)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRegion_Create(t *testing.T) {
	opt := testOptions(t)
	r := setup(t, 4096, opt)

	assert.Equal(t, "test", r.Name())
	assert.Equal(t, 4096, r.Capacity())
	assert.EqualValues(t, 0, r.Used())
	assert.Empty(t, r.Tables())

	for _, name := range []string{"test", "test.dir"} {
		_, err := os.Stat(filepath.Join(opt.Dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRegion_AddTableAndRead(t *testing.T) {
	r := setup(t, 4096, testOptions(t))
	src := sampleFrame()
	encoded := must(Encode(src))

	require.NoError(t, r.AddTable("sales", src))
	assert.EqualValues(t, len(encoded), r.Used())
	assert.Equal(t, []Entry{{"sales", 0}}, r.Tables())

	tb, err := r.TableBytes("sales")
	require.NoError(t, err)
	assert.Equal(t, encoded, tb)

	view := must(r.View("sales"))
	assert.Len(t, view, 4096)

	f, err := r.Head("sales", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, f.Columns[1].Ints)

	require.NoError(t, r.AddTable("second", NewFrame(IntColumn("x", 9))))
	off := must(r.View("second"))
	assert.Equal(t, len(view)-len(encoded), len(off))
	assert.Equal(t, []int64{9}, must(r.Head("second", 10)).Columns[0].Ints)
}

func TestRegion_AddTableIsIdempotent(t *testing.T) {
	r := setup(t, 4096, testOptions(t))
	require.NoError(t, r.AddTable("t", NewFrame(IntColumn("a", 1))))
	used := r.Used()

	require.NoError(t, r.AddTable("t", NewFrame(IntColumn("a", 2, 3, 4))))
	assert.Equal(t, used, r.Used())
	assert.Len(t, r.Tables(), 1)
	assert.Equal(t, []int64{1}, must(r.Head("t", 5)).Columns[0].Ints)
	assert.EqualValues(t, 1, r.DuplicateCount.Load())
}

func TestRegion_OutOfSpace(t *testing.T) {
	first := NewFrame(IntColumn("a", 1))
	size := must(EncodedSize(first))
	r := setup(t, size+10, testOptions(t))

	require.NoError(t, r.AddTable("first", first))
	before := r.Tables()

	err := r.AddTable("big", NewFrame(IntColumn("a", 1, 2)))
	require.ErrorIs(t, err, ErrOutOfSpace)
	var oe *OutOfSpaceError
	require.ErrorAs(t, err, &oe)
	assert.EqualValues(t, size, oe.Cursor)
	assert.Equal(t, size+10, oe.Capacity)

	assert.EqualValues(t, size, r.Used())
	assert.Equal(t, before, r.Tables())
	_, err = r.View("big")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestRegion_ExactFit(t *testing.T) {
	src := NewFrame(StringColumn("s", "hello"))
	size := must(EncodedSize(src))
	r := setup(t, size, testOptions(t))
	require.NoError(t, r.AddTable("t", src))
	assert.EqualValues(t, size, r.Used())
}

func TestRegion_Reopen(t *testing.T) {
	opt := testOptions(t)
	r1, err := OpenOrCreate("test", 4096, opt)
	require.NoError(t, err)
	require.NoError(t, r1.AddTable("a", NewFrame(IntColumn("v", 1, 2, 3))))
	r1.Close()

	r2, err := OpenOrCreate("test", 99999, opt)
	require.NoError(t, err)
	defer r2.Close()
	assert.Equal(t, 4096, r2.Capacity(), "attach keeps the capacity the arena was created with")
	assert.Len(t, r2.Tables(), 1)
	assert.Equal(t, []int64{1, 2, 3}, must(r2.Head("a", 10)).Columns[0].Ints)

	require.NoError(t, r2.AddTable("b", NewFrame(IntColumn("v", 4))))
	assert.Equal(t, []Entry{{"a", 0}, {"b", int64(must(EncodedSize(NewFrame(IntColumn("v", 1, 2, 3)))))}}, r2.Tables())
}

func TestRegion_SharedBetweenHandles(t *testing.T) {
	opt := testOptions(t)
	r1 := setup(t, 4096, opt)
	r2 := setup(t, 4096, opt)

	// r2 has never seen "t" and picks it up from the directory on lookup.
	require.NoError(t, r1.AddTable("t", NewFrame(StringColumn("k", "a", "b"), IntColumn("v", 1, 2))))
	assert.Equal(t, []string{"a", "b"}, must(r2.Head("t", 5)).Columns[0].Strings)

	n, err := r1.MapNumericColumn("t", "v", AffineTransform(1, 100))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{101, 102}, must(r2.Head("t", 5)).Columns[1].Ints)

	// Adding through r2 must not overwrite r1's table.
	require.NoError(t, r2.AddTable("u", NewFrame(IntColumn("x", 7))))
	assert.Equal(t, []int64{101, 102}, must(r1.Head("t", 5)).Columns[1].Ints)
	assert.Equal(t, []int64{7}, must(r1.Head("u", 5)).Columns[0].Ints)
}

func TestRegion_ConcurrentAdds(t *testing.T) {
	opt := testOptions(t)
	regions := []*Region{setup(t, 1<<16, opt), setup(t, 1<<16, opt)}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := regions[i%2]
			assert.NoError(t, r.AddTable(fmt.Sprintf("t%d", i), NewFrame(IntColumn("v", int64(i)))))
		}()
	}
	wg.Wait()

	require.NoError(t, regions[0].Refresh())
	tables := regions[0].Tables()
	require.Len(t, tables, 20)
	for i := range 20 {
		f := must(regions[1].Head(fmt.Sprintf("t%d", i), 1))
		assert.Equal(t, []int64{int64(i)}, f.Columns[0].Ints)
	}
}

func TestRegion_GroupBySum(t *testing.T) {
	r := setup(t, 4096, testOptions(t))
	require.NoError(t, r.AddTable("t", NewFrame(
		StringColumn("k", "a", "b", "a"),
		IntColumn("v", 1, 2, 3),
		FloatColumn("w", 1, 1, 1),
	)))

	f, err := r.GroupBySum("t", "k", "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.Columns[0].Strings)
	assert.Equal(t, []int64{4, 2}, f.Columns[1].Ints)

	_, err = r.GroupBySum("t", "k", "missing")
	assert.ErrorIs(t, err, ErrColumnNotFound)
	_, err = r.GroupBySum("nope", "k", "v")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

type countingAggregator struct {
	HashAggregator
	calls int
}

func (a *countingAggregator) GroupBySum(keys, values *Column) (*Frame, error) {
	a.calls++
	return a.HashAggregator.GroupBySum(keys, values)
}

func TestRegion_CustomAggregator(t *testing.T) {
	agg := &countingAggregator{}
	opt := testOptions(t)
	opt.Aggregator = agg
	r := setup(t, 4096, opt)
	require.NoError(t, r.AddTable("t", NewFrame(IntColumn("k", 1), IntColumn("v", 2))))
	must(r.GroupBySum("t", "k", "v"))
	assert.Equal(t, 1, agg.calls)
}

func TestRegion_MapNumericColumn(t *testing.T) {
	r := setup(t, 4096, testOptions(t))
	require.NoError(t, r.AddTable("t", NewFrame(IntColumn("a", 1, 2, 3), StringColumn("s", "x", "y", "z"))))
	before := bytes.Clone(must(r.TableBytes("t")))

	assert.Equal(t, 0, must(r.MapNumericColumn("t", "s", AffineTransform(2, 0))))
	assert.Equal(t, 0, must(r.MapNumericColumn("t", "missing", AffineTransform(2, 0))))
	assert.Equal(t, before, must(r.TableBytes("t")))

	assert.Equal(t, 3, must(r.MapNumericColumn("t", "a", IntTransform(func(v int64) int64 { return v + 10 }))))
	assert.Equal(t, []int64{11, 12, 13}, must(r.Head("t", 3)).Columns[0].Ints)
	assert.EqualValues(t, 3, r.MappedValues.Load())

	_, err := r.MapNumericColumn("nope", "a", AffineTransform(2, 0))
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestRegion_TableNotFound(t *testing.T) {
	r := setup(t, 4096, testOptions(t))
	_, err := r.View("nope")
	assert.ErrorIs(t, err, ErrTableNotFound)
	_, err = r.Head("nope", 1)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestRegion_InvalidArguments(t *testing.T) {
	opt := testOptions(t)
	for _, name := range []string{"", ".", "..", "a/b"} {
		_, err := OpenOrCreate(name, 4096, opt)
		assert.ErrorIs(t, err, ErrAllocation, "name %q", name)
	}
	_, err := OpenOrCreate("zero", 0, opt)
	assert.ErrorIs(t, err, ErrAllocation)

	r := setup(t, 4096, opt)
	assert.Error(t, r.AddTable("", NewFrame()))

	err = r.AddTable("bad", sliceSource{names: []string{"b"}, values: []any{[]bool{true}}})
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.EqualValues(t, 0, r.Used())
}

func TestRegion_AttachWithCorruptDirectory(t *testing.T) {
	opt := testOptions(t)
	r, err := OpenOrCreate("test", 4096, opt)
	require.NoError(t, err)
	r.Close()

	require.NoError(t, os.WriteFile(filepath.Join(opt.Dir, "test.dir"), []byte("garbage!!"), 0666))
	_, err = OpenOrCreate("test", 4096, opt)
	assert.ErrorIs(t, err, ErrAttach)
	assert.ErrorIs(t, err, ErrCorruptDirectory)
}

func TestRegion_Close(t *testing.T) {
	r, err := OpenOrCreate("test", 4096, testOptions(t))
	require.NoError(t, err)
	require.NoError(t, r.AddTable("t", NewFrame(IntColumn("a", 1))))
	r.Close()
	r.Close()

	_, err = r.View("t")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.AddTable("u", NewFrame()), ErrClosed)
	assert.ErrorIs(t, r.Refresh(), ErrClosed)
}

func TestRegion_SharedMemStore(t *testing.T) {
	opt := testOptions(t)
	opt.Store = NewMemStore()
	r1, err := OpenOrCreate("test", 4096, opt)
	require.NoError(t, err)
	require.NoError(t, r1.AddTable("t", NewFrame(IntColumn("a", 5))))
	r1.Close()

	// The store belongs to the caller and survives the first region.
	r2 := setup(t, 4096, opt)
	assert.Equal(t, []int64{5}, must(r2.Head("t", 1)).Columns[0].Ints)
}

func TestRegion_BoltStore(t *testing.T) {
	opt := testOptions(t)
	opt.Store = NewBoltStore(filepath.Join(opt.Dir, "test.bolt"))
	opt.Sync = true
	r1, err := OpenOrCreate("test", 4096, opt)
	require.NoError(t, err)
	require.NoError(t, r1.AddTable("b", NewFrame(IntColumn("a", 1))))
	require.NoError(t, r1.AddTable("a", NewFrame(IntColumn("a", 2))))
	r1.Close()

	r2 := setup(t, 4096, opt)
	assert.Equal(t, []string{"b", "a"}, []string{r2.Tables()[0].Name, r2.Tables()[1].Name})
	assert.Equal(t, []int64{2}, must(r2.Head("a", 1)).Columns[0].Ints)
}

func TestUnlink(t *testing.T) {
	opt := testOptions(t)
	r, err := OpenOrCreate("test", 4096, opt)
	require.NoError(t, err)
	require.NoError(t, r.AddTable("t", NewFrame(IntColumn("a", 1))))
	r.Close()

	require.NoError(t, Unlink("test", opt))
	entries := must(os.ReadDir(opt.Dir))
	assert.Empty(t, entries)
	require.NoError(t, Unlink("test", opt), "unlinking a missing region")

	r2 := setup(t, 128, opt)
	assert.Empty(t, r2.Tables())
	assert.Equal(t, 128, r2.Capacity())
}

func TestRegion_TableStats(t *testing.T) {
	r := setup(t, 4096, testOptions(t))
	require.NoError(t, r.AddTable("t", NewFrame(StringColumn("s", "ab", "c"), IntColumn("n", 1, 2))))
	ts, err := r.TableStats("t")
	require.NoError(t, err)
	assert.Equal(t, "t", ts.Name)
	assert.Equal(t, 2, ts.Rows)
	assert.Equal(t, 2, ts.Columns)
	assert.Equal(t, 16, ts.NumericBytes)
	assert.Equal(t, 4+2+4+1, ts.StringBytes)
	assert.Equal(t, len(must(r.TableBytes("t"))), ts.Size)
}
