package schema

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/danmuck/qpnet/internal/testutil/testlog"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := qpack.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestValidateAuthPayload(t *testing.T) {
	testlog.Start(t)
	payload := mustMarshal(t, []any{"iris", "siri", "dbtest"})
	if err := Validate(protocol.ReqAuth, payload); err != nil {
		t.Fatalf("validate auth: %v", err)
	}
}

func TestValidateOpenArrayAuthPayload(t *testing.T) {
	testlog.Start(t)
	p := qpack.NewPacker(0)
	p.ArrayOpen()
	p.AddString("iris")
	p.AddString("siri")
	p.AddString("dbtest")
	if err := Validate(protocol.ReqAuth, p.Bytes()); err != nil {
		t.Fatalf("implicitly closed array: %v", err)
	}
	p.ArrayClose()
	if err := Validate(protocol.ReqAuth, p.Bytes()); err != nil {
		t.Fatalf("closed array: %v", err)
	}
}

func TestValidateMissingItemDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(protocol.ReqAuth, mustMarshal(t, []any{"iris", "siri"}))
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Item != 3 || ve.Reason != "missing required item" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateOpenArrayMissingItem(t *testing.T) {
	testlog.Start(t)
	p := qpack.NewPacker(0)
	p.ArrayOpen()
	p.AddString("iris")
	p.ArrayClose()
	err := Validate(protocol.ReqAuth, p.Bytes())
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Item != 2 {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(protocol.ReqAuth, mustMarshal(t, []any{"iris", int64(5), "dbtest"}))
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Item != 2 || ve.Reason != "type mismatch got=int64 want=raw" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateExactRejectsExtraItems(t *testing.T) {
	testlog.Start(t)
	err := Validate(protocol.ReqAuth, mustMarshal(t, []any{"a", "b", "c", "d"}))
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Item != 4 || ve.Reason != "unexpected item" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateQueryAllowsOptions(t *testing.T) {
	testlog.Start(t)
	payload := mustMarshal(t, []any{"select * from 'cpu'", int64(1)})
	if err := Validate(protocol.ReqQuery, payload); err != nil {
		t.Fatalf("validate query: %v", err)
	}
}

func TestValidateInsertNeedsMap(t *testing.T) {
	testlog.Start(t)
	ok := mustMarshal(t, map[string]any{"cpu": []any{[]any{int64(1), 0.5}}})
	if err := Validate(protocol.ReqInsert, ok); err != nil {
		t.Fatalf("validate insert: %v", err)
	}
	err := Validate(protocol.ReqInsert, mustMarshal(t, []any{"cpu"}))
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "expected map, got array1" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMalformedPayloads(t *testing.T) {
	testlog.Start(t)
	cases := map[string][]byte{
		"empty":     nil,
		"truncated": {0xe8},
		"trailing":  append(mustMarshal(t, map[string]any{}), 1),
	}
	for name, payload := range cases {
		if err := Validate(protocol.ReqInsert, payload); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidatePingIgnoresPayload(t *testing.T) {
	testlog.Start(t)
	if err := Validate(protocol.ReqPing, []byte{0xe8}); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestValidateUnknownType(t *testing.T) {
	testlog.Start(t)
	err := Validate(protocol.ReqFileDatabase, nil)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "unknown message type" {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ve.Error(); got != "schema: message_type=req_file_database: unknown message type" {
		t.Fatalf("error text got=%s", got)
	}
}

func TestValidationErrorSentinels(t *testing.T) {
	testlog.Start(t)
	if err := Validate(protocol.ReqFileDatabase, nil); !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	err := Validate(protocol.ReqInsert, []byte{0xf1})
	if !errors.Is(err, protocol.ErrInvalidPayload) || errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}

	deep := bytes.Repeat([]byte{0xfe}, 1<<20)
	if err := Validate(protocol.ReqInsert, deep); !errors.Is(err, protocol.ErrInvalidPayload) {
		t.Fatalf("deep nesting: expected ErrInvalidPayload, got %v", err)
	}
}
