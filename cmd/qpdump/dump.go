package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// encoder writes one decoded qpack buffer.
type encoder interface {
	Encode(w io.Writer, data []byte) error
}

func newEncoder(format string) (encoder, error) {
	switch format {
	case "text":
		return textEncoder{}, nil
	case "json":
		return valueEncoder(func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}), nil
	case "yaml":
		return valueEncoder(yaml.Marshal), nil
	case "cbor":
		mode, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		return valueEncoder(func(v any) ([]byte, error) {
			b, err := mode.Marshal(v)
			if err != nil {
				return nil, err
			}
			return []byte(hex.EncodeToString(b)), nil
		}), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

type textEncoder struct{}

func (textEncoder) Encode(w io.Writer, data []byte) error {
	if err := qpack.Fprint(w, data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// valueEncoder renders every top-level value on its own.
type valueEncoder func(v any) ([]byte, error)

func (f valueEncoder) Encode(w io.Writer, data []byte) error {
	return f.encodeAll(w, qpack.NewUnpacker(data))
}

func (f valueEncoder) encodeAll(w io.Writer, u *qpack.Unpacker) error {
	for u.Remaining() > 0 {
		v, err := u.Value()
		if err != nil {
			return err
		}
		b, err := f(v)
		if err != nil {
			return err
		}
		if len(b) == 0 || b[len(b)-1] != '\n' {
			b = append(b, '\n')
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func dumpFile(w io.Writer, enc encoder, path string) error {
	if ve, ok := enc.(valueEncoder); ok {
		u, err := qpack.NewUnpackerFromFile(path)
		if err != nil {
			return err
		}
		return ve.encodeAll(w, u)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return enc.Encode(w, data)
}

func dumpFrames(w io.Writer, enc encoder, path string, maxPayload uint32) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	limits := frame.DefaultLimits()
	if maxPayload > 0 {
		limits.MaxPayloadBytes = maxPayload
	}
	for {
		pkg, err := frame.ReadPackage(f, limits)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, err := fmt.Fprintf(w, "# %s\n", pkg); err != nil {
			return err
		}
		if err := enc.Encode(w, pkg.Data()); err != nil {
			return err
		}
	}
}
