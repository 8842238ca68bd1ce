package colshm

import (
	"encoding/binary"
	"math"
)

// Transform maps the values of a numeric column. A nil field leaves columns of
// that type untouched.
type Transform struct {
	Int   func(int64) int64
	Float func(float64) float64
}

func IntTransform(f func(int64) int64) Transform {
	return Transform{Int: f}
}

func FloatTransform(f func(float64) float64) Transform {
	return Transform{Float: f}
}

// AffineTransform computes v*mul + add for both numeric types. For Int64
// columns mul and add are truncated to int64 first, and overflow wraps.
func AffineTransform(mul, add float64) Transform {
	im, ia := int64(mul), int64(add)
	return Transform{
		Int:   func(v int64) int64 { return v*im + ia },
		Float: func(v float64) float64 { return v*mul + add },
	}
}

func (t Transform) applies(typ DType) bool {
	switch typ {
	case Int64:
		return t.Int != nil
	case Float64:
		return t.Float != nil
	default:
		return false
	}
}

// MapNumericColumn rewrites every value of the named column directly in buf
// and returns the number of values visited. It does nothing if the column
// does not exist or is not numeric.
//
// Each 8-byte value is read, transformed and written back individually;
// concurrent readers of the same memory may observe a partially updated
// column, and concurrent mutators of the same column lose updates.
func MapNumericColumn(buf []byte, name string, fn Transform) (int, error) {
	layout, err := ReadLayout(buf)
	if err != nil {
		return 0, err
	}
	return MapLayoutColumn(buf, layout, name, fn), nil
}

// MapLayoutColumn is MapNumericColumn with a layout previously obtained from
// ReadLayout on the same buffer.
func MapLayoutColumn(buf []byte, layout *Layout, name string, fn Transform) int {
	slot, ok := layout.Lookup(name)
	if !ok || !fn.applies(slot.Type) {
		return 0
	}
	n := int(binary.LittleEndian.Uint32(buf[slot.CountOff:]))
	data := buf[slot.DataOff : slot.DataOff+n*elementSize]
	switch slot.Type {
	case Int64:
		for off := 0; off < len(data); off += elementSize {
			v := int64(binary.LittleEndian.Uint64(data[off:]))
			binary.LittleEndian.PutUint64(data[off:], uint64(fn.Int(v)))
		}
	case Float64:
		for off := 0; off < len(data); off += elementSize {
			v := math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
			binary.LittleEndian.PutUint64(data[off:], math.Float64bits(fn.Float(v)))
		}
	}
	return n
}
