package colshm

import (
	"encoding/binary"
	"io"
	"math"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

func appendRaw(buf []byte, chunk []byte) []byte {
	n := len(chunk)
	off, buf := grow(buf, n)
	copy(buf[off:], chunk)
	return buf
}

// bytesBuilder appends little-endian fixed-width fields.
type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) EnsureExtra(n int) {
	bb.Buf = ensureCapacity(bb.Buf, len(bb.Buf)+n)
}

func (bb *bytesBuilder) Grow(n int) (off int) {
	off, bb.Buf = grow(bb.Buf, n)
	return
}

func (bb *bytesBuilder) Trim(off int) {
	bb.Buf = bb.Buf[:off]
}

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = appendRaw(bb.Buf, b)
	return len(b), nil
}

func (bb *bytesBuilder) AppendByte(v byte) {
	off := bb.Grow(1)
	bb.Buf[off] = v
}

func (bb *bytesBuilder) AppendUint32(v uint32) {
	off := bb.Grow(4)
	binary.LittleEndian.PutUint32(bb.Buf[off:], v)
}

func (bb *bytesBuilder) AppendUint64(v uint64) {
	off := bb.Grow(8)
	binary.LittleEndian.PutUint64(bb.Buf[off:], v)
}

func (bb *bytesBuilder) AppendInt64(v int64) {
	bb.AppendUint64(uint64(v))
}

func (bb *bytesBuilder) AppendFloat64(v float64) {
	bb.AppendUint64(math.Float64bits(v))
}

// AppendString writes a uint32 length prefix followed by the raw bytes.
func (bb *bytesBuilder) AppendString(s string) {
	off := bb.Grow(4 + len(s))
	binary.LittleEndian.PutUint32(bb.Buf[off:], uint32(len(s)))
	copy(bb.Buf[off+4:], s)
}

// byteDecoder walks a buffer front to back. Orig is kept so errors can report
// absolute offsets.
type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf, buf}
}

func (d *byteDecoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *byteDecoder) Remaining() int {
	return len(d.Buf)
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if n < 0 || len(d.Buf) < n {
		return nil, dataErrf(d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *byteDecoder) Skip(n int) error {
	_, err := d.Raw(n)
	return err
}

func (d *byteDecoder) Byte() (byte, error) {
	b, err := d.Raw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *byteDecoder) Uint32() (uint32, error) {
	b, err := d.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *byteDecoder) Uint64() (uint64, error) {
	b, err := d.Raw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Count reads a uint32 element count and verifies that count elements of at
// least minSize bytes each can fit into the rest of the buffer.
func (d *byteDecoder) Count(minSize int) (int, error) {
	off := d.Off()
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minSize) > uint64(len(d.Buf)) {
		return 0, dataErrf(d.Orig, off, nil, "count %d does not fit into %d remaining bytes", n, len(d.Buf))
	}
	return int(n), nil
}

// StringBytes returns the bytes of a length-prefixed string without copying.
func (d *byteDecoder) StringBytes() ([]byte, error) {
	n, err := d.Count(1)
	if err != nil {
		return nil, err
	}
	return d.Raw(n)
}

// ReadString returns a copy of a length-prefixed string.
func (d *byteDecoder) ReadString() (string, error) {
	b, err := d.StringBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SkipString advances past a length-prefixed string.
func (d *byteDecoder) SkipString() error {
	_, err := d.StringBytes()
	return err
}
