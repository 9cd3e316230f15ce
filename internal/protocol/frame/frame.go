package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/qpack"
)

// HeaderSize is the fixed wire header length:
// pid u16 | len u32 | type u8 | check u8, little-endian.
const HeaderSize = 8

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrTruncated       = errors.New("frame: truncated payload")
	ErrIntegrity       = errors.New("frame: integrity check failed")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrNotReserved     = errors.New("frame: packer has no header reservation")
)

// Header is the fixed wire header.
type Header struct {
	PID   uint16
	Len   uint32
	Type  protocol.MsgType
	Check uint8
}

// Package is one header plus payload sharing a single backing array.
type Package struct {
	Header
	buf []byte
}

// Limits constrains decode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 8 * 1024 * 1024}
}

// NewPacker returns a packer that reserves room for the header so
// FromPacker can adopt its buffer without copying.
func NewPacker(allocSize int) *qpack.Packer {
	return qpack.NewReservedPacker(HeaderSize, allocSize)
}

// New copies data into a fresh package. Check stays zero until the
// package is sealed for sending.
func New(pid uint16, tp protocol.MsgType, data []byte) (*Package, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	buf := make([]byte, HeaderSize+len(data))
	copy(buf[HeaderSize:], data)
	return &Package{
		Header: Header{PID: pid, Len: uint32(len(data)), Type: tp},
		buf:    buf,
	}, nil
}

// FromPacker adopts the packer's buffer as the payload. The packer is
// invalid afterwards, also on error. Packers created with NewPacker are
// adopted in place; any other packer is copied once.
func FromPacker(p *qpack.Packer, pid uint16, tp protocol.MsgType) (*Package, error) {
	reserved := p.Reserved()
	if reserved != 0 && reserved != HeaderSize {
		p.Take()
		return nil, fmt.Errorf("%w: reserved=%d", ErrNotReserved, reserved)
	}
	buf := p.Take()
	if reserved == 0 {
		return New(pid, tp, buf)
	}
	n := len(buf) - HeaderSize
	if uint64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	clear(buf[:HeaderSize])
	return &Package{
		Header: Header{PID: pid, Len: uint32(n), Type: tp},
		buf:    buf,
	}, nil
}

// NewError builds the uniform failure response, a one entry map
// {"error_msg": msg}.
func NewError(pid uint16, tp protocol.MsgType, msg string) (*Package, error) {
	p := NewPacker(len(msg) + 32)
	if err := p.AddMap(1); err != nil {
		return nil, err
	}
	p.AddString("error_msg")
	p.AddString(msg)
	return FromPacker(p, pid, tp)
}

// Data returns the payload view.
func (pkg *Package) Data() []byte {
	return pkg.buf[HeaderSize:]
}

// Bytes returns the contiguous wire form with the current header.
func (pkg *Package) Bytes() []byte {
	EncodeHeaderTo(pkg.buf[:HeaderSize], pkg.Header)
	return pkg.buf
}

// Dup returns an independent deep copy.
func (pkg *Package) Dup() *Package {
	buf := make([]byte, len(pkg.buf))
	copy(buf, pkg.buf)
	return &Package{Header: pkg.Header, buf: buf}
}

// Seal sets the integrity byte. It is called right before the bytes are
// handed to a stream.
func (pkg *Package) Seal() {
	pkg.Check = CheckFor(pkg.Type)
}

// Verify reports whether the integrity byte matches the type.
func (pkg *Package) Verify() bool {
	return pkg.Check == CheckFor(pkg.Type)
}

func (pkg *Package) String() string {
	return fmt.Sprintf("pid=%d len=%d type=%s check=0x%02x", pkg.PID, pkg.Len, pkg.Type, pkg.Check)
}

// CheckFor returns the integrity byte for a message type.
func CheckFor(tp protocol.MsgType) uint8 {
	return uint8(tp) ^ 0xFF
}

func ReadPackage(r io.Reader, limits Limits) (*Package, error) {
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}
	h, err := DecodeHeader(hb[:])
	if err != nil {
		return nil, err
	}
	if h.Check != CheckFor(h.Type) {
		return nil, fmt.Errorf("%w: pid=%d type=%d check=0x%02x", ErrIntegrity, h.PID, uint8(h.Type), h.Check)
	}
	if h.Len > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, h.Len, limits.MaxPayloadBytes)
	}

	buf := make([]byte, HeaderSize+int(h.Len))
	copy(buf, hb[:])
	if _, err := io.ReadFull(r, buf[HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: pid=%d want=%d", ErrTruncated, h.PID, h.Len)
		}
		return nil, err
	}
	return &Package{Header: h, buf: buf}, nil
}

// WritePackage seals pkg and writes its wire form.
func WritePackage(w io.Writer, pkg *Package) error {
	pkg.Seal()
	_, err := w.Write(pkg.Bytes())
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	EncodeHeaderTo(buf, h)
	return buf
}

// EncodeHeaderTo writes h into the first HeaderSize bytes of buf.
func EncodeHeaderTo(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:2], h.PID)
	binary.LittleEndian.PutUint32(buf[2:6], h.Len)
	buf[6] = uint8(h.Type)
	buf[7] = h.Check
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, fmt.Errorf("frame: invalid header length: %d", len(b))
	}
	return Header{
		PID:   binary.LittleEndian.Uint16(b[0:2]),
		Len:   binary.LittleEndian.Uint32(b[2:6]),
		Type:  protocol.MsgType(b[6]),
		Check: b[7],
	}, nil
}
