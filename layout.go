package colshm

import "math"

// Slot locates one column block inside an encoded table. All offsets are
// absolute within the buffer the layout was read from.
type Slot struct {
	Name     string
	Type     DType
	Index    int
	Off      int // start of the column block
	CountOff int // the uint32 element count
	Count    int
	DataOff  int // first element
	End      int // one past the last element
}

// Layout is a structural index of an encoded table, built by a single pass
// over its column blocks. Tables never change shape after encoding, so a
// layout stays valid for as long as the buffer does, including across
// in-place mutations.
type Layout struct {
	Label string
	Slots []Slot
	size  int
}

// ReadLayout indexes every column block in buf. Bytes after the end of the
// table are ignored, so buf may be a view extending to the end of a region.
func ReadLayout(buf []byte) (*Layout, error) {
	s, err := newScanner(buf)
	if err != nil {
		return nil, err
	}
	l := &Layout{
		Label: s.label,
		Slots: make([]Slot, 0, s.ncols),
	}
	for {
		slot, ok, err := s.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := s.skip(&slot); err != nil {
			return nil, err
		}
		l.Slots = append(l.Slots, slot)
	}
	l.size = s.d.Off()
	return l, nil
}

// Size is the number of bytes the table occupies.
func (l *Layout) Size() int {
	return l.size
}

// Rows is the element count of the first column.
func (l *Layout) Rows() int {
	if len(l.Slots) == 0 {
		return 0
	}
	return l.Slots[0].Count
}

// Lookup returns the first column with the given name.
func (l *Layout) Lookup(name string) (*Slot, bool) {
	for i := range l.Slots {
		if l.Slots[i].Name == name {
			return &l.Slots[i], true
		}
	}
	return nil, false
}

const minBlockSize = countSize + tagSize + countSize

// scanner walks column blocks front to back. Each call to next must be
// followed by exactly one call to skip or decode.
type scanner struct {
	d     byteDecoder
	label string
	ncols int
	i     int
}

func newScanner(buf []byte) (*scanner, error) {
	s := &scanner{d: makeByteDecoder(buf)}
	var err error
	s.label, err = s.d.ReadString()
	if err != nil {
		return nil, err
	}
	s.ncols, err = s.d.Count(minBlockSize)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *scanner) next() (Slot, bool, error) {
	if s.i >= s.ncols {
		return Slot{}, false, nil
	}
	slot := Slot{Index: s.i, Off: s.d.Off()}
	s.i++

	name, err := s.d.ReadString()
	if err != nil {
		return slot, false, err
	}
	slot.Name = name

	tagOff := s.d.Off()
	tag, err := s.d.Byte()
	if err != nil {
		return slot, false, err
	}
	slot.Type = DType(tag)
	if !slot.Type.valid() {
		return slot, false, dataErrf(s.d.Orig, tagOff, nil, "column %q has invalid dtype tag %d", name, tag)
	}

	slot.CountOff = s.d.Off()
	minElem := elementSize
	if slot.Type == Utf8 {
		minElem = countSize
	}
	slot.Count, err = s.d.Count(minElem)
	if err != nil {
		return slot, false, err
	}
	slot.DataOff = s.d.Off()
	return slot, true, nil
}

func (s *scanner) skip(slot *Slot) error {
	switch slot.Type {
	case Int64, Float64:
		if err := s.d.Skip(slot.Count * elementSize); err != nil {
			return err
		}
	case Utf8:
		for range slot.Count {
			if err := s.d.SkipString(); err != nil {
				return err
			}
		}
	}
	slot.End = s.d.Off()
	return nil
}

// decode copies the first limit values of the column and advances past the
// rest.
func (s *scanner) decode(slot *Slot, limit int) (Column, error) {
	n := min(max(limit, 0), slot.Count)
	c := Column{Name: slot.Name, Type: slot.Type}
	switch slot.Type {
	case Int64:
		c.Ints = make([]int64, n)
		for i := range c.Ints {
			v, err := s.d.Uint64()
			if err != nil {
				return c, err
			}
			c.Ints[i] = int64(v)
		}
		if err := s.d.Skip((slot.Count - n) * elementSize); err != nil {
			return c, err
		}
	case Float64:
		c.Floats = make([]float64, n)
		for i := range c.Floats {
			v, err := s.d.Uint64()
			if err != nil {
				return c, err
			}
			c.Floats[i] = math.Float64frombits(v)
		}
		if err := s.d.Skip((slot.Count - n) * elementSize); err != nil {
			return c, err
		}
	case Utf8:
		c.Strings = make([]string, n)
		for i := range c.Strings {
			v, err := s.d.ReadString()
			if err != nil {
				return c, err
			}
			c.Strings[i] = v
		}
		for range slot.Count - n {
			if err := s.d.SkipString(); err != nil {
				return c, err
			}
		}
	}
	slot.End = s.d.Off()
	return c, nil
}
