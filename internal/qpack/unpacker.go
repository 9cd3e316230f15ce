package qpack

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Unpacker walks a qpack buffer one object at a time. It is not safe for
// concurrent use.
type Unpacker struct {
	src   []byte
	pos   int
	owned bool
	obj   Object
	err   error
	depth int
}

// NewUnpacker borrows data; the caller keeps it alive and unmodified for
// as long as the unpacker or any object it returned is in use.
func NewUnpacker(data []byte) *Unpacker {
	return &Unpacker{src: data}
}

// NewUnpackerCopy decodes from a private copy of data.
func NewUnpackerCopy(data []byte) *Unpacker {
	src := make([]byte, len(data))
	copy(src, data)
	return &Unpacker{src: src, owned: true}
}

// NewUnpackerFromFile reads the whole file before decoding starts.
func NewUnpackerFromFile(path string) (*Unpacker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("qpack: read %s: %w", path, err)
	}
	return &Unpacker{src: data, owned: true}, nil
}

// Object returns the scratch object filled by the last Next call. It is
// overwritten by the following call.
func (u *Unpacker) Object() *Object {
	return &u.obj
}

// Err returns the error that caused Next to report KindErr.
func (u *Unpacker) Err() error {
	return u.err
}

// OwnsSource reports whether the unpacker decodes from a private copy.
func (u *Unpacker) OwnsSource() bool {
	return u.owned
}

// Offset returns the read position within the source.
func (u *Unpacker) Offset() int {
	return u.pos
}

// Remaining returns the number of unread bytes.
func (u *Unpacker) Remaining() int {
	return len(u.src) - u.pos
}

// Next decodes one object into the scratch object and returns its kind.
// KindEnd is returned at the end of the buffer. KindErr is returned for
// truncated input; once it is returned every following call returns it
// too.
func (u *Unpacker) Next() Kind {
	if u.err != nil {
		u.obj.reset(KindErr)
		return KindErr
	}
	if u.pos >= len(u.src) {
		u.obj.reset(KindEnd)
		return KindEnd
	}
	start := u.pos
	tag := u.src[u.pos]
	u.pos++

	switch {
	case tag <= tagFixedIntMax:
		u.setInt(int64(tag))
	case tag <= tagFixedNegMax:
		u.setInt(int64(tagFixedIntMax) - int64(tag))
	case tag == tagDoubleN1:
		u.setDouble(-1.0)
	case tag == tagDouble0:
		u.setDouble(0.0)
	case tag == tagDouble1:
		u.setDouble(1.0)
	case tag <= tagRawFixedMax:
		return u.readRaw(start, uint64(tag-tagRawFixed))
	case tag == tagRaw8, tag == tagRaw16, tag == tagRaw32, tag == tagRaw64:
		n, ok := u.readUint(1 << (tag - tagRaw8))
		if !ok {
			return u.fail(start)
		}
		return u.readRaw(start, n)
	case tag == tagInt8:
		b, ok := u.take(1)
		if !ok {
			return u.fail(start)
		}
		u.setInt(int64(int8(b[0])))
	case tag == tagInt16:
		b, ok := u.take(2)
		if !ok {
			return u.fail(start)
		}
		u.setInt(int64(int16(binary.LittleEndian.Uint16(b))))
	case tag == tagInt32:
		b, ok := u.take(4)
		if !ok {
			return u.fail(start)
		}
		u.setInt(int64(int32(binary.LittleEndian.Uint32(b))))
	case tag == tagInt64:
		b, ok := u.take(8)
		if !ok {
			return u.fail(start)
		}
		u.setInt(int64(binary.LittleEndian.Uint64(b)))
	case tag == tagDouble:
		b, ok := u.take(8)
		if !ok {
			return u.fail(start)
		}
		u.setDouble(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case tag < tagMap0:
		u.obj.reset(KindArray0 + Kind(tag-tagArray0))
	case tag < tagTrue:
		u.obj.reset(KindMap0 + Kind(tag-tagMap0))
	case tag == tagTrue:
		u.obj.reset(KindTrue)
	case tag == tagFalse:
		u.obj.reset(KindFalse)
	case tag == tagNull:
		u.obj.reset(KindNull)
	case tag == tagArrayOpen:
		u.obj.reset(KindArrayOpen)
	case tag == tagArrayClose:
		u.obj.reset(KindArrayClose)
	case tag == tagMapOpen:
		u.obj.reset(KindMapOpen)
	default:
		u.obj.reset(KindMapClose)
	}
	return u.obj.Kind
}

// CopyNext decodes one object and returns an owned copy of it.
func (u *Unpacker) CopyNext() (Object, Kind) {
	k := u.Next()
	return u.obj.Clone(), k
}

// CopyObject returns an owned copy of the scratch object.
func (u *Unpacker) CopyObject() Object {
	return u.obj.Clone()
}

func (u *Unpacker) setInt(i int64) {
	u.obj.reset(KindInt64)
	u.obj.Int64 = i
}

func (u *Unpacker) setDouble(d float64) {
	u.obj.reset(KindDouble)
	u.obj.Double = d
}

func (u *Unpacker) readRaw(start int, n uint64) Kind {
	if n > uint64(len(u.src)-u.pos) {
		return u.fail(start)
	}
	end := u.pos + int(n)
	u.obj.reset(KindRaw)
	u.obj.Len = int(n)
	u.obj.raw = u.src[u.pos:end:end]
	u.pos = end
	return KindRaw
}

func (u *Unpacker) readUint(size int) (uint64, bool) {
	b, ok := u.take(size)
	if !ok {
		return 0, false
	}
	switch size {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), true
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), true
	default:
		return binary.LittleEndian.Uint64(b), true
	}
}

func (u *Unpacker) take(n int) ([]byte, bool) {
	if n > len(u.src)-u.pos {
		return nil, false
	}
	b := u.src[u.pos : u.pos+n]
	u.pos += n
	return b, true
}

func (u *Unpacker) fail(start int) Kind {
	u.err = fmt.Errorf("%w: tag 0x%02x at offset %d", ErrTruncated, u.src[start], start)
	u.pos = len(u.src)
	u.obj.reset(KindErr)
	return KindErr
}

// enter opens one container level; leave must follow when it succeeds.
func (u *Unpacker) enter() error {
	if u.depth >= MaxDepth {
		return fmt.Errorf("%w: more than %d levels at offset %d", ErrTooDeep, MaxDepth, u.pos-1)
	}
	u.depth++
	return nil
}

func (u *Unpacker) leave() {
	u.depth--
}
