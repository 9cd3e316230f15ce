package qpack

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMarshalUnmarshalNested(t *testing.T) {
	in := map[string]any{
		"name":   "cpu",
		"ok":     true,
		"none":   nil,
		"ratio":  0.25,
		"count":  int64(-7000),
		"points": []any{int64(1), int64(2), int64(3), int64(4), int64(5), int64(6), int64(7)},
		"tags":   map[string]any{"host": "a"},
	}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if data[0] != tagMapOpen {
		t.Fatalf("seven entries should use an open map, tag=%d", data[0])
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalNarrowsUnsigned(t *testing.T) {
	data, err := Marshal(uint64(200))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) != 3 || data[0] != tagInt16 {
		t.Fatalf("uint64(200) got=%v", data)
	}
	if _, err := Marshal(uint64(math.MaxUint64)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if _, err := Marshal(struct{}{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestUnmarshalMultipleTopLevelValues(t *testing.T) {
	p := NewPacker(0)
	p.AddInt64(1)
	p.AddString("two")
	out, err := Unmarshal(p.Bytes())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff([]any{int64(1), "two"}, out); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValueNonRawKeysAreFormatted(t *testing.T) {
	p := NewPacker(0)
	if err := p.AddMap(2); err != nil {
		t.Fatal(err)
	}
	p.AddInt64(1)
	p.AddString("one")
	p.AddTrue()
	p.AddNull()
	out, err := Unmarshal(p.Bytes())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{"1": "one", "true": nil}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValueRejectsStrayClose(t *testing.T) {
	p := NewPacker(0)
	p.ArrayOpen()
	p.MapClose()
	if _, err := Unmarshal(p.Bytes()); !errors.Is(err, ErrUnexpected) {
		t.Fatalf("expected ErrUnexpected, got %v", err)
	}
}

func TestAddObjectRepacks(t *testing.T) {
	src := NewPacker(0)
	src.AddString("db")
	src.AddInt64(-300)
	u := NewUnpacker(src.Bytes())

	dst := NewPacker(0)
	for u.Next() != KindEnd {
		if err := dst.Add(u.Object()); err != nil {
			t.Fatalf("add object: %v", err)
		}
	}
	if diff := cmp.Diff(src.Bytes(), dst.Bytes()); diff != "" {
		t.Fatalf("repack mismatch (-want +got):\n%s", diff)
	}
}

func TestSprint(t *testing.T) {
	p := NewPacker(0)
	if err := p.AddMap(1); err != nil {
		t.Fatal(err)
	}
	p.AddString("a")
	if err := p.AddArray(4); err != nil {
		t.Fatal(err)
	}
	p.AddInt64(1)
	p.AddDouble(2.5)
	p.AddTrue()
	p.AddNull()
	p.ArrayOpen()
	p.AddString("x")

	got := Sprint(p.Bytes())
	want := `{"a": [1, 2.5, true, null]} ["x"]`
	if got != want {
		t.Fatalf("sprint got=%s want=%s", got, want)
	}

	broken := Sprint([]byte{tagArray0 + 2, 1, tagInt16})
	if want := "[1, <error: qpack: truncated data: tag 0xe9 at offset 2>"; broken != want {
		t.Fatalf("sprint broken got=%s want=%s", broken, want)
	}
}

func TestDeepNestingIsRejected(t *testing.T) {
	deep := bytes.Repeat([]byte{0xfc}, 1<<20)

	if _, err := NewUnpacker(deep).Skip(); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("skip: expected ErrTooDeep, got %v", err)
	}
	if _, err := NewUnpacker(deep).Value(); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("value: expected ErrTooDeep, got %v", err)
	}
	var buf bytes.Buffer
	if err := Fprint(&buf, deep); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("fprint: expected ErrTooDeep, got %v", err)
	}
	if out := Sprint(deep); !strings.Contains(out, "nesting too deep") {
		t.Fatalf("sprint missing depth error: %.64q", out)
	}
}

func TestNestingWithinMaxDepth(t *testing.T) {
	data := append(bytes.Repeat([]byte{0xee}, 100), 0x00)

	k, err := NewUnpacker(data).Skip()
	if err != nil || k != KindArray1 {
		t.Fatalf("skip got kind=%s err=%v", k, err)
	}
	v, err := NewUnpacker(data).Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	for i := 0; i < 100; i++ {
		arr, ok := v.([]any)
		if !ok || len(arr) != 1 {
			t.Fatalf("level %d got %#v", i, v)
		}
		v = arr[0]
	}
	if v != int64(0) {
		t.Fatalf("innermost got %#v", v)
	}
	var buf bytes.Buffer
	if err := Fprint(&buf, data); err != nil {
		t.Fatalf("fprint: %v", err)
	}
}
