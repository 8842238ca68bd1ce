package colshm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLayout(t *testing.T) {
	buf := must(Encode(sampleFrame()))
	l, err := ReadLayout(append(buf, make([]byte, 64)...))
	require.NoError(t, err)

	assert.Equal(t, "sales", l.Label)
	assert.Equal(t, len(buf), l.Size())
	assert.Equal(t, 4, l.Rows())
	require.Len(t, l.Slots, 3)

	prevEnd := 4 + len("sales") + 4
	for i, s := range l.Slots {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, prevEnd, s.Off, "slot %s", s.Name)
		assert.Equal(t, s.Off+4+len(s.Name)+1, s.CountOff, "slot %s", s.Name)
		assert.Equal(t, s.CountOff+4, s.DataOff, "slot %s", s.Name)
		assert.Equal(t, uint32(s.Count), binary.LittleEndian.Uint32(buf[s.CountOff:]))
		prevEnd = s.End
	}
	assert.Equal(t, len(buf), prevEnd)

	qty, ok := l.Lookup("qty")
	require.True(t, ok)
	assert.Equal(t, Int64, qty.Type)
	assert.Equal(t, qty.DataOff+4*8, qty.End)

	_, ok = l.Lookup("nope")
	assert.False(t, ok)
}

func TestReadLayout_LongNames(t *testing.T) {
	// Count offsets follow the actual name length rather than a fixed delta.
	long := string(make([]byte, 300))
	buf := must(Encode(NewFrame(IntColumn(long, 7), FloatColumn("b", 1.5))))
	l := must(ReadLayout(buf))
	assert.Equal(t, 4+len(DefaultLabel)+4+4+300+1, l.Slots[0].CountOff)
	assert.Equal(t, 1, l.Slots[0].Count)
}
