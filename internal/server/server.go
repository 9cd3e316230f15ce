// Package server accepts package streams and dispatches requests.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/qpnet/internal/auth"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const Version = "0.3.0"

// Forwarder receives copies of accepted insert packages.
type Forwarder interface {
	Write(pkg *frame.Package) error
	Enabled() bool
	String() string
}

type Config struct {
	ListenAddr string
	Session    session.Config
}

func DefaultConfig() Config {
	return Config{
		ListenAddr: ":9000",
		Session:    session.DefaultConfig(),
	}
}

// Server runs the stream listener. Handle is shared with other
// transports.
type Server struct {
	cfg   Config
	authn auth.Authenticator
	fwd   Forwarder

	connsMu sync.Mutex
	conns   map[*session.Stream]struct{}
	clients atomic.Int64
}

// New builds a server. fwd may be nil.
func New(cfg Config, authn auth.Authenticator, fwd Forwarder) *Server {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	return &Server{
		cfg:   cfg,
		authn: authn,
		fwd:   fwd,
		conns: make(map[*session.Stream]struct{}),
	}
}

// Listen opens the TCP or TLS listener selected by the session config.
func (s *Server) Listen() (net.Listener, error) {
	if err := s.cfg.Session.ValidateServerTransport(); err != nil {
		return nil, err
	}
	if !s.cfg.Session.TLS.Enabled {
		return net.Listen("tcp", s.cfg.ListenAddr)
	}
	tlsCfg, err := s.cfg.Session.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Bool("tls", s.cfg.Session.TLS.Enabled).Msg("server listening")
	return s.Serve(ctx, ln)
}

// Serve accepts streams on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAll()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// Clients returns the number of connected streams.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	stream := session.NewStream(conn, s.cfg.Session)
	s.track(stream)
	defer s.untrack(stream)

	remote := stream.RemoteAddr()
	active := s.clients.Add(1)
	log.Info().Str("remote", remote).Int64("active_clients", active).Msg("server client connected")
	defer func() {
		remaining := s.clients.Add(-1)
		log.Info().Str("remote", remote).Int64("active_clients", remaining).Msg("server client disconnected")
	}()

	state := &ConnState{}
	err := stream.Serve(ctx, session.HandlerFunc(func(st *session.Stream, pkg *frame.Package) {
		s.Handle(st, state, pkg)
	}))
	if err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("remote", remote).Msg("server stream ended")
	}
}

func (s *Server) track(st *session.Stream) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[st] = struct{}{}
}

func (s *Server) untrack(st *session.Stream) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, st)
}

func (s *Server) closeAll() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for st := range s.conns {
		_ = st.Close()
		delete(s.conns, st)
	}
}
