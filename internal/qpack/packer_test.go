package qpack

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/danmuck/qpnet/internal/testutil/testlog"
)

func TestAddInt64FixedRangeIsOneByte(t *testing.T) {
	testlog.Start(t)
	for i := int64(-61); i <= 63; i++ {
		p := NewPacker(0)
		p.AddInt64(i)
		if p.Len() != 1 {
			t.Fatalf("int %d encoded in %d bytes", i, p.Len())
		}
	}
	p := NewPacker(0)
	p.AddInt64(-1)
	p.AddInt64(-61)
	p.AddInt64(63)
	if got, want := p.Bytes(), []byte{64, 124, 63}; !bytes.Equal(got, want) {
		t.Fatalf("fixed ints got=%v want=%v", got, want)
	}
}

func TestAddInt64PicksNarrowestWidth(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		in   int64
		want []byte
	}{
		{64, []byte{tagInt8, 64}},
		{-62, []byte{tagInt8, 0xc2}},
		{math.MaxInt8, []byte{tagInt8, 0x7f}},
		{math.MinInt8, []byte{tagInt8, 0x80}},
		{math.MaxInt8 + 1, []byte{tagInt16, 0x80, 0x00}},
		{math.MinInt8 - 1, []byte{tagInt16, 0x7f, 0xff}},
		{math.MaxInt16 + 1, []byte{tagInt32, 0x00, 0x80, 0x00, 0x00}},
		{math.MinInt32, []byte{tagInt32, 0x00, 0x00, 0x00, 0x80}},
		{math.MaxInt32 + 1, []byte{tagInt64, 0x00, 0x00, 0x00, 0x80, 0, 0, 0, 0}},
		{math.MinInt64, []byte{tagInt64, 0, 0, 0, 0, 0, 0, 0, 0x80}},
	}
	for _, tc := range tests {
		p := NewPacker(0)
		p.AddInt64(tc.in)
		if !bytes.Equal(p.Bytes(), tc.want) {
			t.Fatalf("int %d got=%v want=%v", tc.in, p.Bytes(), tc.want)
		}
	}
}

func TestAddDoubleLiterals(t *testing.T) {
	testlog.Start(t)
	p := NewPacker(0)
	p.AddDouble(-1.0)
	p.AddDouble(0.0)
	p.AddDouble(1.0)
	if got, want := p.Bytes(), []byte{125, 126, 127}; !bytes.Equal(got, want) {
		t.Fatalf("double literals got=%v want=%v", got, want)
	}

	p.Reset()
	p.AddDouble(1.5)
	if p.Len() != 9 || p.Bytes()[0] != tagDouble {
		t.Fatalf("double 1.5 got=%v", p.Bytes())
	}
}

func TestAddRawLengthPrefixes(t *testing.T) {
	testlog.Start(t)
	for l := 0; l < 100; l++ {
		p := NewPacker(0)
		p.AddRaw(bytes.Repeat([]byte{'x'}, l))
		if p.Len() != 1+l {
			t.Fatalf("raw len %d encoded in %d bytes", l, p.Len())
		}
		if p.Bytes()[0] != byte(128+l) {
			t.Fatalf("raw len %d tag=%d", l, p.Bytes()[0])
		}
	}

	tests := []struct {
		n    int
		head []byte
	}{
		{100, []byte{tagRaw8, 100}},
		{255, []byte{tagRaw8, 255}},
		{256, []byte{tagRaw16, 0x00, 0x01}},
		{65536, []byte{tagRaw32, 0x00, 0x00, 0x01, 0x00}},
	}
	for _, tc := range tests {
		p := NewPacker(0)
		p.AddRaw(make([]byte, tc.n))
		if !bytes.HasPrefix(p.Bytes(), tc.head) {
			t.Fatalf("raw len %d head=%v want=%v", tc.n, p.Bytes()[:len(tc.head)], tc.head)
		}
		if p.Len() != len(tc.head)+tc.n {
			t.Fatalf("raw len %d total=%d", tc.n, p.Len())
		}
	}
}

func TestAddRawTermCountsTerminator(t *testing.T) {
	testlog.Start(t)
	p := NewPacker(0)
	p.AddStringTerm("ab")
	if got, want := p.Bytes(), []byte{131, 'a', 'b', 0}; !bytes.Equal(got, want) {
		t.Fatalf("term got=%v want=%v", got, want)
	}
	u := NewUnpacker(p.Bytes())
	if k := u.Next(); k != KindRaw {
		t.Fatalf("kind=%s", k)
	}
	if s := u.Object().Str(); s != "ab" {
		t.Fatalf("str=%q", s)
	}
}

func TestAddFmtTruncates(t *testing.T) {
	testlog.Start(t)
	p := NewPacker(0)
	p.AddFmt("%s-%d", strings.Repeat("x", 2000), 7)
	u := NewUnpacker(p.Bytes())
	if k := u.Next(); k != KindRaw {
		t.Fatalf("kind=%s", k)
	}
	if u.Object().Len != MaxFmtSize {
		t.Fatalf("fmt len=%d want=%d", u.Object().Len, MaxFmtSize)
	}

	p.Reset()
	p.AddFmt("points=%d", 12)
	if got := NewUnpacker(p.Bytes()); got.Next() != KindRaw || got.Object().Str() != "points=12" {
		t.Fatalf("short fmt got=%q", got.Object().Str())
	}
}

func TestFixedArrayHasNoLengthField(t *testing.T) {
	testlog.Start(t)
	p := NewPacker(0)
	if err := p.AddArray(3); err != nil {
		t.Fatalf("add array: %v", err)
	}
	p.AddInt64(1)
	p.AddInt64(2)
	p.AddInt64(3)
	if got, want := p.Bytes(), []byte{240, 1, 2, 3}; !bytes.Equal(got, want) {
		t.Fatalf("array3 got=%v want=%v", got, want)
	}
	if err := p.AddArray(6); !errors.Is(err, ErrFixedSize) {
		t.Fatalf("expected ErrFixedSize, got %v", err)
	}
	if err := p.AddMap(-1); !errors.Is(err, ErrFixedSize) {
		t.Fatalf("expected ErrFixedSize, got %v", err)
	}
}

func TestSingletonsAndMarkers(t *testing.T) {
	testlog.Start(t)
	p := NewPacker(0)
	p.AddTrue()
	p.AddFalse()
	p.AddNull()
	p.ArrayOpen()
	p.ArrayClose()
	p.MapOpen()
	p.MapClose()
	if got, want := p.Bytes(), []byte{249, 250, 251, 252, 253, 254, 255}; !bytes.Equal(got, want) {
		t.Fatalf("markers got=%v want=%v", got, want)
	}
}

func TestMapScenarioBytes(t *testing.T) {
	testlog.Start(t)
	p := NewPacker(0)
	if err := p.AddMap(2); err != nil {
		t.Fatalf("add map: %v", err)
	}
	p.AddString("a")
	p.AddInt64(1)
	p.AddString("b")
	p.AddInt64(-61)
	want := []byte{245, 129, 'a', 1, 129, 'b', 124}
	if !bytes.Equal(p.Bytes(), want) {
		t.Fatalf("map got=%v want=%v", p.Bytes(), want)
	}
}

func TestPackerGrowthIsGeometric(t *testing.T) {
	testlog.Start(t)
	p := NewPacker(16)
	reallocs := 0
	last := p.Cap()
	for i := 0; i < 100000; i++ {
		p.AddNull()
		if p.Cap() != last {
			reallocs++
			if p.Cap() < 2*last {
				t.Fatalf("capacity grew from %d to %d", last, p.Cap())
			}
			if p.Cap()%16 != 0 {
				t.Fatalf("capacity %d not a multiple of the alloc size", p.Cap())
			}
			last = p.Cap()
		}
	}
	if reallocs > 14 {
		t.Fatalf("too many reallocations: %d", reallocs)
	}
}

func TestExtendAppendsEncodedOutput(t *testing.T) {
	testlog.Start(t)
	a := NewPacker(0)
	a.AddString("k")
	b := NewPacker(0)
	b.AddInt64(5)
	b.AddTrue()
	a.Extend(b)
	if got, want := a.Bytes(), []byte{129, 'k', 5, 249}; !bytes.Equal(got, want) {
		t.Fatalf("extend got=%v want=%v", got, want)
	}
}

func TestReservedPackerAndTake(t *testing.T) {
	testlog.Start(t)
	p := NewReservedPacker(8, 32)
	p.AddNull()
	if p.Len() != 1 || !bytes.Equal(p.Bytes(), []byte{tagNull}) {
		t.Fatalf("reserved bytes leaked into output: %v", p.Bytes())
	}
	buf := p.Take()
	if len(buf) != 9 || buf[8] != tagNull {
		t.Fatalf("take got=%v", buf)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on use after Take")
		}
	}()
	p.AddNull()
}
