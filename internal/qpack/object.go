package qpack

import (
	"fmt"
	"strconv"
)

// Object is one decoded value. Int64 is set for KindInt64, Double for
// KindDouble, and the raw view for KindRaw. Containers, booleans and null
// carry no payload.
type Object struct {
	Kind   Kind
	Len    int
	Int64  int64
	Double float64

	raw   []byte
	owned bool
}

// Raw returns the bytes of a raw object. Unless Owned reports true the
// slice aliases the unpacker source.
func (o *Object) Raw() []byte {
	return o.raw
}

// Owned reports whether the raw bytes are independent of any unpacker.
func (o *Object) Owned() bool {
	return o.owned || o.raw == nil
}

// Str returns raw bytes as a string, without the terminator written by
// AddRawTerm or AddStringTerm. Any single trailing NUL is dropped, so use
// Raw where the exact bytes matter.
func (o *Object) Str() string {
	b := o.raw
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// Equal reports whether raw bytes equal s.
func (o *Object) Equal(s string) bool {
	return o.Kind == KindRaw && string(o.raw) == s
}

// Clone returns a copy whose raw bytes are privately owned.
func (o *Object) Clone() Object {
	c := *o
	if o.raw != nil {
		c.raw = make([]byte, len(o.raw))
		copy(c.raw, o.raw)
		c.owned = true
	}
	return c
}

func (o *Object) reset(k Kind) {
	*o = Object{Kind: k}
}

func (o Object) String() string {
	switch o.Kind {
	case KindRaw:
		return strconv.Quote(string(o.raw))
	case KindInt64:
		return strconv.FormatInt(o.Int64, 10)
	case KindDouble:
		return strconv.FormatFloat(o.Double, 'g', -1, 64)
	default:
		return fmt.Sprintf("<%s>", o.Kind)
	}
}
