package colshm

import (
	"fmt"
	"reflect"
)

// DType identifies the element type of a column. The numeric value is the tag
// byte stored in each column block.
type DType uint8

const (
	Int64   DType = 0
	Float64 DType = 1
	Utf8    DType = 2
)

func (t DType) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Utf8:
		return "utf8"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(t))
	}
}

func (t DType) valid() bool {
	return t <= Utf8
}

// Numeric reports whether values of this type occupy fixed 8-byte slots.
func (t DType) Numeric() bool {
	return t == Int64 || t == Float64
}

// ParseDType accepts the names returned by DType.String, plus a few common
// aliases.
func ParseDType(s string) (DType, error) {
	switch s {
	case "int64", "int", "integer":
		return Int64, nil
	case "float64", "float", "double":
		return Float64, nil
	case "utf8", "string", "str", "object":
		return Utf8, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// Column is a named, homogeneous vector. Exactly one of Ints, Floats, Strings
// is used, selected by Type.
type Column struct {
	Name    string
	Type    DType
	Ints    []int64
	Floats  []float64
	Strings []string
}

func IntColumn(name string, values ...int64) Column {
	return Column{Name: name, Type: Int64, Ints: values}
}

func FloatColumn(name string, values ...float64) Column {
	return Column{Name: name, Type: Float64, Floats: values}
}

func StringColumn(name string, values ...string) Column {
	return Column{Name: name, Type: Utf8, Strings: values}
}

func (c *Column) Len() int {
	switch c.Type {
	case Int64:
		return len(c.Ints)
	case Float64:
		return len(c.Floats)
	case Utf8:
		return len(c.Strings)
	default:
		return 0
	}
}

// Values returns the populated vector as []int64, []float64 or []string.
func (c *Column) Values() any {
	switch c.Type {
	case Int64:
		return c.Ints
	case Float64:
		return c.Floats
	case Utf8:
		return c.Strings
	default:
		return nil
	}
}

// Value returns row i as int64, float64 or string.
func (c *Column) Value(i int) any {
	switch c.Type {
	case Int64:
		return c.Ints[i]
	case Float64:
		return c.Floats[i]
	default:
		return c.Strings[i]
	}
}

func (c *Column) truncate(n int) {
	switch c.Type {
	case Int64:
		c.Ints = c.Ints[:min(n, len(c.Ints))]
	case Float64:
		c.Floats = c.Floats[:min(n, len(c.Floats))]
	case Utf8:
		c.Strings = c.Strings[:min(n, len(c.Strings))]
	}
}

// DefaultLabel is written for frames that have no label of their own.
const DefaultLabel = "DataFrame Metadata"

// Frame is a table: an ordered list of columns sharing a row count.
type Frame struct {
	Label   string
	Columns []Column
}

func NewFrame(columns ...Column) *Frame {
	return &Frame{Columns: columns}
}

// Rows returns the length of the first column, which is how readers derive
// the row count of an encoded table.
func (f *Frame) Rows() int {
	if len(f.Columns) == 0 {
		return 0
	}
	return f.Columns[0].Len()
}

// Column returns the first column with the given name.
func (f *Frame) Column(name string) (*Column, bool) {
	for i := range f.Columns {
		if f.Columns[i].Name == name {
			return &f.Columns[i], true
		}
	}
	return nil, false
}

// Names returns column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

var _ Source = (*Frame)(nil)

func (f *Frame) TableLabel() string      { return f.Label }
func (f *Frame) NumColumns() int         { return len(f.Columns) }
func (f *Frame) ColumnName(i int) string { return f.Columns[i].Name }
func (f *Frame) ColumnValues(i int) any  { return f.Columns[i].Values() }

// Source is the host table consumed by the encoder: an ordered set of named
// columns. ColumnValues must return []int64, []int, []int32, []float64,
// []float32 or []string; anything else fails the encode with
// ErrUnsupportedType.
type Source interface {
	TableLabel() string
	NumColumns() int
	ColumnName(i int) string
	ColumnValues(i int) any
}

// sourceColumn resolves column i of src into its dtype and a normalized
// vector. Narrow numeric types are widened.
func sourceColumn(src Source, i int) (Column, error) {
	name := src.ColumnName(i)
	switch v := src.ColumnValues(i).(type) {
	case []int64:
		return IntColumn(name, v...), nil
	case []int:
		out := make([]int64, len(v))
		for j, x := range v {
			out[j] = int64(x)
		}
		return IntColumn(name, out...), nil
	case []int32:
		out := make([]int64, len(v))
		for j, x := range v {
			out[j] = int64(x)
		}
		return IntColumn(name, out...), nil
	case []float64:
		return FloatColumn(name, v...), nil
	case []float32:
		out := make([]float64, len(v))
		for j, x := range v {
			out[j] = float64(x)
		}
		return FloatColumn(name, out...), nil
	case []string:
		return StringColumn(name, v...), nil
	case error:
		return Column{}, &ColumnError{Column: name, Err: v}
	default:
		return Column{}, &ColumnError{Column: name, Type: typeName(v), Err: ErrUnsupportedType}
	}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
