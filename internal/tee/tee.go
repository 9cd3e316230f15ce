// Package tee forwards copies of packages to a local unix socket for
// passive inspection. The peer never answers; anything it sends is read
// and discarded.
package tee

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/danmuck/qpnet/internal/observability"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const readBufferSize = 512

var (
	ErrDisabled     = errors.New("tee: disabled")
	ErrNotConnected = errors.New("tee: not connected")
)

type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// link is one live pipe connection.
type link struct {
	conn   net.Conn
	stream *session.Stream
	buf    [readBufferSize]byte
}

// Tee owns the pipe connection state machine:
// Disconnected -> Connecting -> Connected -> Closing -> Disconnected.
// A failed connect goes straight back to Disconnected.
type Tee struct {
	cfg    session.Config
	dialer net.Dialer

	mu       sync.Mutex
	state    State
	pipeName string
	err      error
	link     *link
}

func New(cfg session.Config) *Tee {
	return &Tee{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.ConnectTimeout},
	}
}

// SetPipeName replaces the pipe target. An open connection is closed and
// the last error cleared; an empty name disables the tee. Call Connect to
// open the new pipe.
func (t *Tee) SetPipeName(name string) {
	t.mu.Lock()
	old := t.link
	t.link = nil
	t.pipeName = name
	t.err = nil
	if old != nil {
		t.state = Closing
	}
	t.mu.Unlock()

	if old != nil {
		_ = old.stream.Close()
	}

	t.mu.Lock()
	if t.link == nil && t.state != Connecting {
		t.state = Disconnected
	}
	t.mu.Unlock()

	if name == "" {
		log.Info().Msg("tee disabled")
	} else {
		log.Info().Str("pipe", name).Msg("tee pipe configured")
	}
}

// Connect dials the configured pipe. It returns nil without dialing while
// a connect is in progress or the pipe is already connected.
func (t *Tee) Connect(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case Connecting, Connected:
		t.mu.Unlock()
		return nil
	case Closing:
		t.mu.Unlock()
		return ErrNotConnected
	}
	name := t.pipeName
	if name == "" {
		t.mu.Unlock()
		return ErrDisabled
	}
	t.state = Connecting
	t.mu.Unlock()

	conn, err := t.dialer.DialContext(ctx, "unix", name)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pipeName != name {
		// Target changed while dialing.
		if conn != nil {
			_ = conn.Close()
		}
		if t.state == Connecting {
			t.state = Disconnected
		}
		return ErrNotConnected
	}
	if err != nil {
		t.err = fmt.Errorf("tee: cannot connect to pipe %q: %w", name, err)
		t.state = Disconnected
		log.Warn().Err(err).Str("pipe", name).Msg("tee connect failed")
		return t.err
	}

	l := &link{conn: conn, stream: session.NewStream(conn, t.cfg)}
	t.link = l
	t.err = nil
	t.state = Connected
	log.Info().Str("pipe", name).Msg("tee connected")
	go t.readLoop(l)
	return nil
}

// readLoop drains and discards whatever the peer sends until the pipe
// closes.
func (t *Tee) readLoop(l *link) {
	for {
		_, err := l.conn.Read(l.buf[:])
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			log.Error().Err(err).Str("pipe", l.conn.RemoteAddr().String()).Msg("tee read failed")
		}
		t.drop(l)
		return
	}
}

func (t *Tee) drop(l *link) {
	t.mu.Lock()
	if t.link != l {
		t.mu.Unlock()
		return
	}
	t.state = Closing
	t.mu.Unlock()

	_ = l.stream.Close()

	t.mu.Lock()
	if t.link == l {
		t.link = nil
		t.state = Disconnected
	}
	t.mu.Unlock()
	log.Info().Msg("tee disconnected")
}

// Write queues an independent copy of pkg on the pipe. Packages offered
// while the pipe is not connected are dropped.
func (t *Tee) Write(pkg *frame.Package) error {
	t.mu.Lock()
	l := t.link
	connected := t.state == Connected && l != nil
	t.mu.Unlock()
	if !connected {
		observability.RecordTeeWrite("dropped")
		return ErrNotConnected
	}

	dup := pkg.Dup()
	dup.Seal()
	err := l.stream.QueueWrite(dup.Bytes(), func(err error) {
		if err != nil {
			log.Error().Err(err).Msg("tee write failed")
			observability.RecordTeeWrite("error")
			return
		}
		observability.RecordTeeWrite("ok")
	})
	if err != nil {
		observability.RecordTeeWrite("error")
		return err
	}
	return nil
}

func (t *Tee) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the last connect failure, cleared by SetPipeName and by a
// successful connect.
func (t *Tee) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tee) PipeName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pipeName
}

// Enabled reports whether a pipe name is configured.
func (t *Tee) Enabled() bool {
	return t.PipeName() != ""
}

// String is the status line: last error, pipe name or "disabled".
func (t *Tee) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err.Error()
	}
	if t.pipeName != "" {
		return t.pipeName
	}
	return "disabled"
}

// Close disables the tee.
func (t *Tee) Close() error {
	t.SetPipeName("")
	return nil
}
