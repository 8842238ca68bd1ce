package colshm

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// arrowLabelKey is the schema metadata key that carries a table label.
const arrowLabelKey = "colshm.label"

type arrowSource struct {
	rec arrow.Record
}

// FromArrow exposes an Arrow record as a Source. Int32/Int64 columns encode as
// Int64, Float32/Float64 as Float64, String/LargeString as Utf8. Columns of
// any other type, or containing nulls, fail the encode with
// ErrUnsupportedType.
func FromArrow(rec arrow.Record) Source {
	return arrowSource{rec}
}

func (s arrowSource) TableLabel() string {
	md := s.rec.Schema().Metadata()
	if i := md.FindKey(arrowLabelKey); i >= 0 {
		return md.Values()[i]
	}
	return ""
}

func (s arrowSource) NumColumns() int {
	return int(s.rec.NumCols())
}

func (s arrowSource) ColumnName(i int) string {
	return s.rec.ColumnName(i)
}

func (s arrowSource) ColumnValues(i int) any {
	col := s.rec.Column(i)
	if n := col.NullN(); n > 0 {
		return fmt.Errorf("%w: %d nulls in arrow %s column", ErrUnsupportedType, n, col.DataType())
	}
	switch a := col.(type) {
	case *array.Int64:
		return a.Int64Values()
	case *array.Int32:
		return a.Int32Values()
	case *array.Float64:
		return a.Float64Values()
	case *array.Float32:
		return a.Float32Values()
	case *array.String:
		out := make([]string, a.Len())
		for j := range out {
			out[j] = a.Value(j)
		}
		return out
	case *array.LargeString:
		out := make([]string, a.Len())
		for j := range out {
			out[j] = a.Value(j)
		}
		return out
	default:
		return fmt.Errorf("%w: arrow %s", ErrUnsupportedType, col.DataType())
	}
}

// ToArrow builds an Arrow record holding a copy of the frame. The caller
// must Release it. All columns must have the same length.
func (f *Frame) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	rows := f.Rows()
	fields := make([]arrow.Field, len(f.Columns))
	cols := make([]arrow.Array, 0, len(f.Columns))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	for i := range f.Columns {
		c := &f.Columns[i]
		if c.Len() != rows {
			return nil, &ColumnError{Column: c.Name, Type: c.Type.String(), Err: fmt.Errorf("has %d rows, wanted %d", c.Len(), rows)}
		}
		switch c.Type {
		case Int64:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int64}
			b := array.NewInt64Builder(mem)
			b.AppendValues(c.Ints, nil)
			cols = append(cols, b.NewArray())
			b.Release()
		case Float64:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64}
			b := array.NewFloat64Builder(mem)
			b.AppendValues(c.Floats, nil)
			cols = append(cols, b.NewArray())
			b.Release()
		case Utf8:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.String}
			b := array.NewStringBuilder(mem)
			b.AppendValues(c.Strings, nil)
			cols = append(cols, b.NewArray())
			b.Release()
		default:
			return nil, &ColumnError{Column: c.Name, Type: c.Type.String(), Err: ErrUnsupportedType}
		}
	}

	md := arrow.NewMetadata([]string{arrowLabelKey}, []string{f.Label})
	schema := arrow.NewSchema(fields, &md)
	return array.NewRecord(schema, cols, int64(rows)), nil
}
