package colshm

import "math"

// DecodeHead returns the first min(n, R) rows of the table encoded at the
// start of buf, where R is the element count of the first column. Values are
// copied out of buf.
func DecodeHead(buf []byte, n int) (*Frame, error) {
	s, err := newScanner(buf)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		Label:   s.label,
		Columns: make([]Column, 0, s.ncols),
	}
	limit := -1
	for {
		slot, ok, err := s.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if limit < 0 {
			limit = min(max(n, 0), slot.Count)
		}
		c, err := s.decode(&slot, limit)
		if err != nil {
			return nil, err
		}
		f.Columns = append(f.Columns, c)
	}
	return f, nil
}

// Decode returns every row of the table encoded at the start of buf.
func Decode(buf []byte) (*Frame, error) {
	return DecodeHead(buf, math.MaxInt)
}

// DecodeColumns decodes only the named columns, stopping as soon as all of
// them have been found. If the table has several columns with the same name,
// the first one wins.
func DecodeColumns(buf []byte, names ...string) (map[string]Column, error) {
	s, err := newScanner(buf)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}
	result := make(map[string]Column, len(want))
	for len(result) < len(want) {
		slot, ok, err := s.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if _, done := result[slot.Name]; want[slot.Name] && !done {
			c, err := s.decode(&slot, slot.Count)
			if err != nil {
				return nil, err
			}
			result[slot.Name] = c
		} else if err := s.skip(&slot); err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		if _, ok := result[name]; !ok {
			return nil, &ColumnError{Column: name, Err: ErrColumnNotFound}
		}
	}
	return result, nil
}
