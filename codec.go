package colshm

import (
	"fmt"
	"math"
)

const (
	countSize   = 4
	elementSize = 8
	tagSize     = 1
)

// Encode serializes src into the columnar table layout:
//
//	table        = label:string column_count:uint32 column_block*
//	column_block = name:string dtype:uint8 count:uint32 element*
//	string       = len:uint32 bytes
//
// All integers are little-endian. Int64 and Float64 elements are raw 8-byte
// values; Utf8 elements are inline length-prefixed strings.
func Encode(src Source) ([]byte, error) {
	cols, err := sourceColumns(src)
	if err != nil {
		return nil, err
	}
	var bb bytesBuilder
	bb.EnsureExtra(encodedSize(labelOf(src), cols))
	encodeColumns(&bb, labelOf(src), cols)
	return bb.Buf, nil
}

// AppendEncoded appends the encoding of src to buf.
func AppendEncoded(buf []byte, src Source) ([]byte, error) {
	cols, err := sourceColumns(src)
	if err != nil {
		return buf, err
	}
	bb := bytesBuilder{buf}
	bb.EnsureExtra(encodedSize(labelOf(src), cols))
	encodeColumns(&bb, labelOf(src), cols)
	return bb.Buf, nil
}

// EncodedSize returns the exact number of bytes Encode would produce.
func EncodedSize(src Source) (int, error) {
	cols, err := sourceColumns(src)
	if err != nil {
		return 0, err
	}
	return encodedSize(labelOf(src), cols), nil
}

func labelOf(src Source) string {
	if label := src.TableLabel(); label != "" {
		return label
	}
	return DefaultLabel
}

func sourceColumns(src Source) ([]Column, error) {
	n := src.NumColumns()
	if uint64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d columns", ErrUnsupportedType, n)
	}
	cols := make([]Column, n)
	for i := range cols {
		c, err := sourceColumn(src, i)
		if err != nil {
			return nil, err
		}
		if uint64(c.Len()) > math.MaxUint32 || uint64(len(c.Name)) > math.MaxUint32 {
			return nil, &ColumnError{Column: c.Name, Type: c.Type.String(), Err: fmt.Errorf("%w: %d values", ErrUnsupportedType, c.Len())}
		}
		cols[i] = c
	}
	return cols, nil
}

func encodedSize(label string, cols []Column) int {
	n := countSize + len(label) + countSize
	for i := range cols {
		c := &cols[i]
		n += countSize + len(c.Name) + tagSize + countSize
		switch c.Type {
		case Int64, Float64:
			n += elementSize * c.Len()
		case Utf8:
			for _, s := range c.Strings {
				n += countSize + len(s)
			}
		}
	}
	return n
}

func encodeColumns(bb *bytesBuilder, label string, cols []Column) {
	bb.AppendString(label)
	bb.AppendUint32(uint32(len(cols)))
	for i := range cols {
		encodeColumn(bb, &cols[i])
	}
}

func encodeColumn(bb *bytesBuilder, c *Column) {
	bb.AppendString(c.Name)
	bb.AppendByte(byte(c.Type))
	bb.AppendUint32(uint32(c.Len()))
	switch c.Type {
	case Int64:
		for _, v := range c.Ints {
			bb.AppendInt64(v)
		}
	case Float64:
		for _, v := range c.Floats {
			bb.AppendFloat64(v)
		}
	case Utf8:
		for _, v := range c.Strings {
			bb.AppendString(v)
		}
	}
}
