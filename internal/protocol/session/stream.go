package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/qpnet/internal/observability"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var ErrStreamClosed = errors.New("session: stream closed")

// Handler receives every package read by Stream.Serve. Calls happen on
// the read goroutine, one at a time.
type Handler interface {
	ServePackage(s *Stream, pkg *frame.Package)
}

type HandlerFunc func(s *Stream, pkg *frame.Package)

func (f HandlerFunc) ServePackage(s *Stream, pkg *frame.Package) {
	f(s, pkg)
}

type pendingWrite struct {
	b    []byte
	done func(error)
}

// Stream frames packages over a net.Conn. Writes go through an unbounded
// FIFO drained by one writer goroutine; completion callbacks run on that
// goroutine in queue order.
type Stream struct {
	conn   net.Conn
	cfg    Config
	remote string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []pendingWrite
	closed bool

	inflight  sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

func NewStream(conn net.Conn, cfg Config) *Stream {
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	s := &Stream{
		conn:   conn,
		cfg:    cfg,
		remote: conn.RemoteAddr().String(),
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.writeLoop()
	return s
}

func (s *Stream) RemoteAddr() string {
	return s.remote
}

// QueueWrite appends b to the write queue.
func (s *Stream) QueueWrite(b []byte, done func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.inflight.Add(1)
	s.queue = append(s.queue, pendingWrite{b: b, done: done})
	s.cond.Signal()
	return nil
}

// Pending returns the number of queued writes not yet started.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Wait blocks until every queued write has completed. It must not be
// called from a completion callback.
func (s *Stream) Wait() {
	s.inflight.Wait()
}

// Done is closed once the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close fails queued writes with ErrStreamClosed and closes the
// connection. A write already on the wire fails with the conn error.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := s.queue
		s.queue = nil
		s.cond.Broadcast()
		s.mu.Unlock()

		err = s.conn.Close()
		for _, w := range pending {
			s.complete(w, ErrStreamClosed)
		}
		close(s.done)
		log.Debug().Str("remote", s.remote).Int("dropped", len(pending)).Msg("session.Stream closed")
	})
	return err
}

func (s *Stream) writeLoop() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		w := s.queue[0]
		s.queue[0] = pendingWrite{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if s.cfg.WriteTimeout > 0 {
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		_, err := s.conn.Write(w.b)
		s.complete(w, err)
		if err != nil {
			_ = s.Close()
			return
		}
	}
}

func (s *Stream) complete(w pendingWrite, err error) {
	defer s.inflight.Done()
	if w.done != nil {
		w.done(err)
	}
}

// Serve reads packages until the peer closes, ctx ends or the stream
// fails. A failed integrity check is fatal for the stream since there is
// no way to find the next header. Serve closes the stream on return; a
// clean peer close returns nil.
func (s *Stream) Serve(ctx context.Context, h Handler) error {
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		pkg, err := frame.ReadPackage(s.conn, s.cfg.Limits)
		if err != nil {
			return s.readFailed(ctx, err)
		}
		observability.RecordPackageReceived(pkg.Type.String(), frame.HeaderSize+int(pkg.Len))
		h.ServePackage(s, pkg)
	}
}

func (s *Stream) readFailed(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		log.Debug().Str("remote", s.remote).Msg("session.Stream peer closed")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, frame.ErrIntegrity):
		observability.RecordIntegrityFailure()
		log.Error().Err(err).Str("remote", s.remote).Msg("session.Stream desynchronized, closing")
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}
	log.Error().Err(err).Str("remote", s.remote).Msg("session.Stream read failed")
	return err
}
