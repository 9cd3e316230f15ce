package qpack

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"
)

// Sprint renders data as JSON-like text for debugging. Decoding stops at
// the first error, which is rendered inline.
func Sprint(data []byte) string {
	var buf bytes.Buffer
	_ = Fprint(&buf, data)
	return buf.String()
}

// Fprint writes the Sprint rendering of data to w. Nesting past MaxDepth
// is rendered inline and also returned as ErrTooDeep.
func Fprint(w io.Writer, data []byte) error {
	pr := printer{u: NewUnpacker(data)}
	for {
		k := pr.u.Next()
		if k == KindEnd {
			break
		}
		if pr.n > 0 {
			pr.buf.WriteByte(' ')
		}
		pr.n++
		if !pr.object(k) {
			break
		}
	}
	if _, err := w.Write(pr.buf.Bytes()); err != nil {
		return err
	}
	return pr.err
}

type printer struct {
	u     *Unpacker
	buf   bytes.Buffer
	n     int
	depth int
	err   error
}

// object renders the object of kind k and everything it contains. It
// returns false once the stream is exhausted or broken.
func (pr *printer) object(k Kind) bool {
	if IsArray(k) || IsMap(k) {
		if pr.depth >= MaxDepth {
			pr.err = fmt.Errorf("%w: more than %d levels", ErrTooDeep, MaxDepth)
			pr.buf.WriteString("<error: ")
			pr.buf.WriteString(pr.err.Error())
			pr.buf.WriteByte('>')
			return false
		}
		pr.depth++
		defer func() { pr.depth-- }()
	}
	o := pr.u.Object()
	switch {
	case k == KindErr:
		pr.buf.WriteString("<error: ")
		pr.buf.WriteString(pr.u.Err().Error())
		pr.buf.WriteByte('>')
		return false
	case k == KindRaw:
		if utf8.Valid(o.raw) {
			pr.buf.WriteString(strconv.Quote(string(o.raw)))
		} else {
			pr.buf.WriteString("<raw ")
			pr.buf.WriteString(strconv.Itoa(o.Len))
			pr.buf.WriteByte('>')
		}
	case k == KindInt64, k == KindDouble:
		pr.buf.WriteString(o.String())
	case k == KindTrue:
		pr.buf.WriteString("true")
	case k == KindFalse:
		pr.buf.WriteString("false")
	case k == KindNull:
		pr.buf.WriteString("null")
	case k == KindArrayOpen:
		return pr.open('[', ']', KindArrayClose, false)
	case k == KindMapOpen:
		return pr.open('{', '}', KindMapClose, true)
	case k == KindArrayClose, k == KindMapClose:
		pr.buf.WriteString("<" + k.String() + ">")
	case IsArray(k):
		n, _ := k.FixedSize()
		return pr.fixed('[', ']', n, false)
	case IsMap(k):
		n, _ := k.FixedSize()
		return pr.fixed('{', '}', n*2, true)
	}
	return true
}

func (pr *printer) fixed(lb, rb byte, n int, isMap bool) bool {
	pr.buf.WriteByte(lb)
	for i := 0; i < n; i++ {
		pr.sep(i, isMap)
		k := pr.u.Next()
		if k == KindEnd {
			pr.buf.WriteString("<end>")
			return false
		}
		if !pr.object(k) {
			return false
		}
	}
	pr.buf.WriteByte(rb)
	return true
}

// open renders an open/close delimited container. The end of the data
// closes it implicitly.
func (pr *printer) open(lb, rb byte, closer Kind, isMap bool) bool {
	pr.buf.WriteByte(lb)
	for i := 0; ; i++ {
		k := pr.u.Next()
		if k == closer || k == KindEnd {
			pr.buf.WriteByte(rb)
			return k != KindEnd
		}
		pr.sep(i, isMap)
		if !pr.object(k) {
			if pr.u.Err() == nil && pr.err == nil {
				pr.buf.WriteByte(rb)
			}
			return false
		}
	}
}

func (pr *printer) sep(i int, isMap bool) {
	switch {
	case i == 0:
	case isMap && i%2 == 1:
		pr.buf.WriteString(": ")
	default:
		pr.buf.WriteString(", ")
	}
}
