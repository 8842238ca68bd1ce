package main

import (
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/andreyvit/colshm"
)

// tableJSON is the input format of the add command:
//
//	{"label": "...", "columns": [{"name": "a", "type": "int64", "values": [1, 2]}]}
type tableJSON struct {
	Label   string       `json:"label"`
	Columns []columnJSON `json:"columns"`
}

type columnJSON struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Values gojson.RawMessage `json:"values"`
}

func readFrame(r io.Reader) (*colshm.Frame, error) {
	var in tableJSON
	dec := gojson.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("parsing table: %w", err)
	}

	f := &colshm.Frame{Label: in.Label}
	for i, c := range in.Columns {
		col, err := c.column()
		if err != nil {
			return nil, err
		}
		if i > 0 && col.Len() != f.Rows() {
			return nil, fmt.Errorf("column %q has %d values, wanted %d", c.Name, col.Len(), f.Rows())
		}
		f.Columns = append(f.Columns, col)
	}
	return f, nil
}

func (c columnJSON) column() (colshm.Column, error) {
	if c.Name == "" {
		return colshm.Column{}, fmt.Errorf("column without a name")
	}
	typ, err := colshm.ParseDType(c.Type)
	if err != nil {
		return colshm.Column{}, fmt.Errorf("column %q: %w", c.Name, err)
	}
	col := colshm.Column{Name: c.Name, Type: typ}
	switch typ {
	case colshm.Int64:
		err = unmarshalValues(c.Values, &col.Ints)
	case colshm.Float64:
		err = unmarshalValues(c.Values, &col.Floats)
	case colshm.Utf8:
		err = unmarshalValues(c.Values, &col.Strings)
	}
	if err != nil {
		return colshm.Column{}, fmt.Errorf("column %q (%v): %w", c.Name, typ, err)
	}
	return col, nil
}

func unmarshalValues[T any](raw gojson.RawMessage, out *[]T) error {
	if len(raw) == 0 {
		*out = []T{}
		return nil
	}
	return gojson.Unmarshal(raw, out)
}
