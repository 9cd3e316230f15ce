package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/rs/zerolog/log"
)

var ErrRequestTimeout = errors.New("session: request timed out")

// Client sends requests over one stream and matches responses by pid.
type Client struct {
	cfg      Config
	stream   *Stream
	promises *Promises
	served   chan struct{}
	cancel   context.CancelFunc
}

// Dial connects to addr, with TLS when cfg enables it.
func Dial(ctx context.Context, addr string, cfg Config) (*Client, error) {
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	conn := rawConn
	if cfg.TLS.Enabled {
		tlsCfg, err := cfg.ClientTLSConfig(addr)
		if err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		tlsConn := tls.Client(rawConn, tlsCfg)
		handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
		if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		conn = tlsConn
	}
	log.Debug().Str("addr", addr).Bool("tls", cfg.TLS.Enabled).Msg("session.Dial connected")
	return NewClient(conn, cfg), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, cfg Config) *Client {
	// Responses come back unsolicited; an idle client must not time out.
	cfg.ReadTimeout = 0
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		stream:   NewStream(conn, cfg),
		promises: NewPromises(),
		served:   make(chan struct{}),
		cancel:   cancel,
	}
	go func() {
		defer close(c.served)
		err := c.stream.Serve(ctx, HandlerFunc(c.resolve))
		if err == nil {
			err = ErrStreamClosed
		}
		if n := c.promises.FailAll(err); n > 0 {
			log.Warn().Err(err).Int("pending", n).Msg("session.Client failed pending requests")
		}
	}()
	return c
}

func (c *Client) resolve(_ *Stream, pkg *frame.Package) {
	if !c.promises.Resolve(pkg) {
		log.Warn().Uint16("pid", pkg.PID).Str("type", pkg.Type.String()).Msg("session.Client response without request")
	}
}

// Request sends a request of type tp and waits for its response. payload
// is consumed; nil sends an empty payload.
func (c *Client) Request(ctx context.Context, tp protocol.MsgType, payload *qpack.Packer) (*frame.Package, error) {
	p, err := c.promises.Add(tp, time.Now())
	if err != nil {
		return nil, err
	}

	var pkg *frame.Package
	if payload == nil {
		pkg, err = frame.New(p.PID, tp, nil)
	} else {
		pkg, err = frame.FromPacker(payload, p.PID, tp)
	}
	if err != nil {
		c.promises.Remove(p.PID)
		return nil, err
	}
	if err := Send(c.stream, pkg); err != nil {
		c.promises.Remove(p.PID)
		return nil, err
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	resp, err := p.Wait(ctx)
	if err != nil {
		c.promises.Remove(p.PID)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: pid=%d type=%s", ErrRequestTimeout, p.PID, protocol.RequestName(tp))
		}
		return nil, err
	}
	return resp, nil
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	return c.promises.Len()
}

func (c *Client) RemoteAddr() string {
	return c.stream.RemoteAddr()
}

// Close closes the stream and fails pending requests.
func (c *Client) Close() error {
	c.cancel()
	err := c.stream.Close()
	<-c.served
	return err
}
