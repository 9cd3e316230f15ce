package qpack

import (
	"encoding/binary"
	"fmt"
	"math"
)

const defaultAllocSize = 64

// Packer builds a qpack buffer. The zero value is not usable; create one
// with NewPacker.
type Packer struct {
	buf       []byte
	allocSize int
	reserved  int
	taken     bool
}

// NewPacker returns an empty packer. allocSize is both the initial
// capacity and the granularity capacity is rounded up to when growing.
func NewPacker(allocSize int) *Packer {
	if allocSize <= 0 {
		allocSize = defaultAllocSize
	}
	return &Packer{
		buf:       make([]byte, 0, allocSize),
		allocSize: allocSize,
	}
}

// NewReservedPacker returns a packer whose buffer starts with n zero
// bytes that are not part of the encoded output. The owner of the buffer
// after Take can fill them in, which is how a frame header shares one
// allocation with its payload.
func NewReservedPacker(n, allocSize int) *Packer {
	if allocSize < n {
		allocSize = n
	}
	p := NewPacker(allocSize)
	p.buf = p.buf[:n]
	p.reserved = n
	return p
}

// Len returns the encoded length, not counting reserved bytes.
func (p *Packer) Len() int {
	return len(p.buf) - p.reserved
}

// Cap returns the current capacity of the backing buffer.
func (p *Packer) Cap() int {
	return cap(p.buf)
}

// Reserved returns the number of prefix bytes created by NewReservedPacker.
func (p *Packer) Reserved() int {
	return p.reserved
}

// Bytes returns the encoded output. The slice is only valid until the
// next Add call.
func (p *Packer) Bytes() []byte {
	p.mustLive()
	return p.buf[p.reserved:]
}

// Reset drops encoded output and keeps the buffer for reuse.
func (p *Packer) Reset() {
	p.mustLive()
	clear(p.buf[:p.reserved])
	p.buf = p.buf[:p.reserved]
}

// Take transfers the whole buffer, reserved prefix included, to the
// caller. The packer must not be used afterwards.
func (p *Packer) Take() []byte {
	p.mustLive()
	b := p.buf
	p.buf = nil
	p.taken = true
	return b
}

// Extend appends the encoded output of src.
func (p *Packer) Extend(src *Packer) {
	p.write(src.Bytes())
}

// AddRaw appends a raw byte sequence.
func (p *Packer) AddRaw(raw []byte) {
	p.addRawHeader(len(raw))
	p.write(raw)
}

// AddRawTerm appends raw followed by a NUL byte, the terminator counted in
// the encoded length.
func (p *Packer) AddRawTerm(raw []byte) {
	p.addRawHeader(len(raw) + 1)
	p.write(raw)
	p.writeByte(0)
}

// AddString appends s as raw bytes.
func (p *Packer) AddString(s string) {
	p.addRawHeader(len(s))
	p.writeString(s)
}

// AddStringTerm appends s as NUL terminated raw bytes.
func (p *Packer) AddStringTerm(s string) {
	p.addRawHeader(len(s) + 1)
	p.writeString(s)
	p.writeByte(0)
}

// AddFmt appends a formatted string, cut off at MaxFmtSize bytes.
func (p *Packer) AddFmt(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	if len(s) > MaxFmtSize {
		s = s[:MaxFmtSize]
	}
	p.AddString(s)
}

// AddDouble appends a float64. -1.0, 0.0 and 1.0 take a single byte.
func (p *Packer) AddDouble(d float64) {
	switch d {
	case -1.0:
		p.writeByte(tagDoubleN1)
	case 0.0:
		p.writeByte(tagDouble0)
	case 1.0:
		p.writeByte(tagDouble1)
	default:
		b := p.grow(9)
		b[0] = tagDouble
		binary.LittleEndian.PutUint64(b[1:], math.Float64bits(d))
	}
}

// AddInt64 appends an integer using the narrowest encoding that holds it.
func (p *Packer) AddInt64(i int64) {
	switch {
	case i >= 0 && i <= int64(tagFixedIntMax):
		p.writeByte(byte(i))
	case i < 0 && i >= minFixedNeg:
		p.writeByte(byte(int64(tagFixedIntMax) - i))
	case i >= math.MinInt8 && i <= math.MaxInt8:
		b := p.grow(2)
		b[0] = tagInt8
		b[1] = byte(int8(i))
	case i >= math.MinInt16 && i <= math.MaxInt16:
		b := p.grow(3)
		b[0] = tagInt16
		binary.LittleEndian.PutUint16(b[1:], uint16(int16(i)))
	case i >= math.MinInt32 && i <= math.MaxInt32:
		b := p.grow(5)
		b[0] = tagInt32
		binary.LittleEndian.PutUint32(b[1:], uint32(int32(i)))
	default:
		b := p.grow(9)
		b[0] = tagInt64
		binary.LittleEndian.PutUint64(b[1:], uint64(i))
	}
}

func (p *Packer) AddInt8(i int8)   { p.AddInt64(int64(i)) }
func (p *Packer) AddInt16(i int16) { p.AddInt64(int64(i)) }
func (p *Packer) AddInt32(i int32) { p.AddInt64(int64(i)) }

// AddArray appends a fixed array header for n items, 0 <= n <= 5. The n
// items must follow.
func (p *Packer) AddArray(n int) error {
	if n < 0 || n > maxFixedContainer {
		return ErrFixedSize
	}
	p.writeByte(tagArray0 + byte(n))
	return nil
}

// AddMap appends a fixed map header for n key/value pairs, 0 <= n <= 5.
func (p *Packer) AddMap(n int) error {
	if n < 0 || n > maxFixedContainer {
		return ErrFixedSize
	}
	p.writeByte(tagMap0 + byte(n))
	return nil
}

func (p *Packer) AddTrue()  { p.writeByte(tagTrue) }
func (p *Packer) AddFalse() { p.writeByte(tagFalse) }
func (p *Packer) AddNull()  { p.writeByte(tagNull) }

func (p *Packer) AddBool(b bool) {
	if b {
		p.AddTrue()
		return
	}
	p.AddFalse()
}

// ArrayOpen starts an array of unknown length. A matching ArrayClose is
// only required when more values follow the array in the same buffer.
func (p *Packer) ArrayOpen() { p.writeByte(tagArrayOpen) }

func (p *Packer) ArrayClose() { p.writeByte(tagArrayClose) }

// MapOpen starts a map of unknown length; see ArrayOpen for closing rules.
func (p *Packer) MapOpen() { p.writeByte(tagMapOpen) }

func (p *Packer) MapClose() { p.writeByte(tagMapClose) }

func (p *Packer) addRawHeader(n int) {
	switch {
	case n <= maxFixedRawLen:
		p.writeByte(tagRawFixed + byte(n))
	case n <= math.MaxUint8:
		b := p.grow(2)
		b[0] = tagRaw8
		b[1] = byte(n)
	case n <= math.MaxUint16:
		b := p.grow(3)
		b[0] = tagRaw16
		binary.LittleEndian.PutUint16(b[1:], uint16(n))
	case uint64(n) <= math.MaxUint32:
		b := p.grow(5)
		b[0] = tagRaw32
		binary.LittleEndian.PutUint32(b[1:], uint32(n))
	default:
		b := p.grow(9)
		b[0] = tagRaw64
		binary.LittleEndian.PutUint64(b[1:], uint64(n))
	}
}

func (p *Packer) writeByte(c byte) {
	p.grow(1)[0] = c
}

func (p *Packer) write(b []byte) {
	copy(p.grow(len(b)), b)
}

func (p *Packer) writeString(s string) {
	copy(p.grow(len(s)), s)
}

// grow extends the buffer by n bytes and returns them. Capacity at least
// doubles on every reallocation so appends stay amortized O(1) per byte.
func (p *Packer) grow(n int) []byte {
	p.mustLive()
	l := len(p.buf)
	if l+n > cap(p.buf) {
		size := 2 * cap(p.buf)
		if size < l+n {
			size = l + n
		}
		if rem := size % p.allocSize; rem != 0 {
			size += p.allocSize - rem
		}
		buf := make([]byte, l, size)
		copy(buf, p.buf)
		p.buf = buf
	}
	p.buf = p.buf[:l+n]
	return p.buf[l:]
}

func (p *Packer) mustLive() {
	if p.taken {
		panic("qpack: packer used after Take")
	}
}
