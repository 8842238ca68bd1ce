package colshm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() *Frame {
	return &Frame{
		Label: "sales",
		Columns: []Column{
			StringColumn("city", "a", "b", "a", ""),
			IntColumn("qty", 1, 2, 3, math.MinInt64),
			FloatColumn("price", 0.5, math.NaN(), math.Inf(1), math.Copysign(0, -1)),
		},
	}
}

func TestEncode_ByteExact(t *testing.T) {
	f := &Frame{Label: "L", Columns: []Column{
		IntColumn("a", 1),
		StringColumn("s", "xy"),
	}}
	got := must(Encode(f))
	want := x(`
		01000000 4c
		02000000
		01000000 61 00 01000000 0100000000000000
		01000000 73 02 01000000 02000000 7879
	`)
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), must(EncodedSize(f)))
}

func TestEncode_DefaultLabel(t *testing.T) {
	f := must(Decode(must(Encode(NewFrame(IntColumn("a", 1))))))
	assert.Equal(t, DefaultLabel, f.Label)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	src := sampleFrame()
	buf := must(Encode(src))
	f, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, "sales", f.Label)
	require.Equal(t, []string{"city", "qty", "price"}, f.Names())
	assert.Equal(t, src.Columns[0].Strings, f.Columns[0].Strings)
	assert.Equal(t, src.Columns[1].Ints, f.Columns[1].Ints)
	require.Len(t, f.Columns[2].Floats, 4)
	for i, v := range src.Columns[2].Floats {
		assert.Equal(t, math.Float64bits(v), math.Float64bits(f.Columns[2].Floats[i]), "row %d", i)
	}
}

func TestEncode_ZeroColumns(t *testing.T) {
	buf := must(Encode(&Frame{Label: "empty"}))
	assert.Len(t, buf, 4+5+4)
	f := must(Decode(buf))
	assert.Equal(t, "empty", f.Label)
	assert.Empty(t, f.Columns)
	assert.Equal(t, 0, f.Rows())
}

func TestEncode_ZeroRows(t *testing.T) {
	f := must(Decode(must(Encode(NewFrame(IntColumn("a"), StringColumn("b"))))))
	require.Len(t, f.Columns, 2)
	assert.Equal(t, 0, f.Rows())
	assert.Equal(t, Utf8, f.Columns[1].Type)
}

func TestAppendEncoded(t *testing.T) {
	src := sampleFrame()
	buf := must(AppendEncoded([]byte{0xFF}, src))
	assert.Equal(t, byte(0xFF), buf[0])
	assert.Equal(t, must(Encode(src)), buf[1:])
}

type sliceSource struct {
	names  []string
	values []any
}

func (s sliceSource) TableLabel() string      { return "" }
func (s sliceSource) NumColumns() int         { return len(s.names) }
func (s sliceSource) ColumnName(i int) string { return s.names[i] }
func (s sliceSource) ColumnValues(i int) any  { return s.values[i] }

func TestEncode_WidensNarrowTypes(t *testing.T) {
	src := sliceSource{
		names:  []string{"i", "i32", "f32"},
		values: []any{[]int{1, -2}, []int32{3, 4}, []float32{0.5, 1.5}},
	}
	f := must(Decode(must(Encode(src))))
	assert.Equal(t, []int64{1, -2}, f.Columns[0].Ints)
	assert.Equal(t, []int64{3, 4}, f.Columns[1].Ints)
	assert.Equal(t, []float64{0.5, 1.5}, f.Columns[2].Floats)
}

func TestEncode_UnsupportedType(t *testing.T) {
	src := sliceSource{
		names:  []string{"ok", "flags"},
		values: []any{[]int64{1}, []bool{true}},
	}
	_, err := Encode(src)
	require.ErrorIs(t, err, ErrUnsupportedType)
	var ce *ColumnError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "flags", ce.Column)
	assert.Equal(t, "[]bool", ce.Type)
}

func TestDecode_Corrupt(t *testing.T) {
	buf := must(Encode(sampleFrame()))

	t.Run("truncated", func(t *testing.T) {
		for _, n := range []int{0, 3, 10, len(buf) / 2, len(buf) - 1} {
			_, err := Decode(buf[:n])
			assert.ErrorIs(t, err, ErrCorruptBuffer, "truncated to %d", n)
		}
	})

	t.Run("bad tag", func(t *testing.T) {
		bad := append([]byte(nil), buf...)
		l := must(ReadLayout(buf))
		bad[l.Slots[1].CountOff-1] = 9
		_, err := Decode(bad)
		require.ErrorIs(t, err, ErrCorruptBuffer)
		var de *DataError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, l.Slots[1].CountOff-1, de.Off)
	})

	t.Run("huge count", func(t *testing.T) {
		bad := append([]byte(nil), buf...)
		l := must(ReadLayout(buf))
		copy(bad[l.Slots[2].CountOff:], []byte{0xFF, 0xFF, 0xFF, 0x7F})
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorruptBuffer)
	})
}

func TestDecodeHead(t *testing.T) {
	buf := must(Encode(sampleFrame()))
	tests := []struct {
		n, rows int
	}{
		{0, 0}, {-1, 0}, {2, 2}, {4, 4}, {100, 4},
	}
	for _, tt := range tests {
		f, err := DecodeHead(buf, tt.n)
		require.NoError(t, err)
		for _, c := range f.Columns {
			assert.Equal(t, tt.rows, c.Len(), "n=%d column %s", tt.n, c.Name)
		}
	}

	f := must(DecodeHead(buf, 2))
	assert.Equal(t, []string{"a", "b"}, f.Columns[0].Strings)
	assert.Equal(t, []int64{1, 2}, f.Columns[1].Ints)
}

func TestDecode_TrailingBytesIgnored(t *testing.T) {
	buf := must(Encode(sampleFrame()))
	buf = append(buf, 0xDE, 0xAD, 0xBE, 0xEF)
	f := must(Decode(buf))
	assert.Equal(t, 4, f.Rows())
}
