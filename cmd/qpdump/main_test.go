package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/danmuck/qpnet/internal/testutil/testlog"
)

func writeSample(t *testing.T) string {
	t.Helper()
	data, err := qpack.Marshal(map[string]any{"a": []any{1, "x"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "sample.qp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestDumpFormats(t *testing.T) {
	testlog.Start(t)
	path := writeSample(t)
	tests := []struct {
		format string
		want   string
	}{
		{format: "text", want: "{\"a\": [1, \"x\"]}\n"},
		{format: "json", want: "{\n  \"a\": [\n    1,\n    \"x\"\n  ]\n}\n"},
		{format: "cbor", want: "a1616182016178\n"},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			var out bytes.Buffer
			if err := run([]string{"--format", tc.format, path}, &out); err != nil {
				t.Fatalf("run: %v", err)
			}
			if out.String() != tc.want {
				t.Fatalf("output got=%q want=%q", out.String(), tc.want)
			}
		})
	}
}

func TestDumpYAML(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	if err := run([]string{"-f", "yaml", writeSample(t)}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out.String(), "a:\n") || !strings.Contains(out.String(), "- x") {
		t.Fatalf("unexpected yaml:\n%s", out.String())
	}
}

func TestDumpFrames(t *testing.T) {
	testlog.Start(t)
	var stream bytes.Buffer
	for pid, msg := range []string{"first", "second"} {
		pkg, err := frame.NewError(uint16(pid), protocol.ErrQuery, msg)
		if err != nil {
			t.Fatalf("new error package: %v", err)
		}
		if err := frame.WritePackage(&stream, pkg); err != nil {
			t.Fatalf("write package: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "stream.bin")
	if err := os.WriteFile(path, stream.Bytes(), 0o644); err != nil {
		t.Fatalf("write stream: %v", err)
	}

	var out bytes.Buffer
	if err := run([]string{"--frames", path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "# pid=0 ") || lines[1] != `{"error_msg": "first"}` {
		t.Fatalf("unexpected first package:\n%s", out.String())
	}
	if !strings.HasPrefix(lines[2], "# pid=1 ") || lines[3] != `{"error_msg": "second"}` {
		t.Fatalf("unexpected second package:\n%s", out.String())
	}
}

func TestDumpFramesTruncated(t *testing.T) {
	testlog.Start(t)
	pkg, err := frame.New(1, protocol.ResAck, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("new package: %v", err)
	}
	pkg.Seal()
	wire := pkg.Bytes()
	path := filepath.Join(t.TempDir(), "short.bin")
	if err := os.WriteFile(path, wire[:len(wire)-1], 0o644); err != nil {
		t.Fatalf("write stream: %v", err)
	}
	if err := run([]string{"--frames", path}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected truncated stream error")
	}
}

func TestDumpRejectsUnknownFormat(t *testing.T) {
	testlog.Start(t)
	if err := run([]string{"--format", "xml", writeSample(t)}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
