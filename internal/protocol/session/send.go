package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/qpnet/internal/observability"
	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedEndpoint = errors.New("session: unsupported endpoint")

// Endpoint is anything a package can be sent to.
type Endpoint interface {
	RemoteAddr() string
}

// StreamWriter is a raw byte stream. QueueWrite returns once b is queued;
// done runs after the write finished or failed. b must not be modified
// until done runs.
type StreamWriter interface {
	Endpoint
	QueueWrite(b []byte, done func(error)) error
}

// Responder is an HTTP-style endpoint that takes a status and a body
// instead of framed bytes.
type Responder interface {
	Endpoint
	Respond(status int, payload []byte) error
}

// Send hands pkg to ep. Streams get the sealed wire form; responders get
// the payload with the status mapped from the message type. pkg belongs
// to Send afterwards, whatever the result.
func Send(ep Endpoint, pkg *frame.Package) error {
	switch e := ep.(type) {
	case StreamWriter:
		return sendStream(e, pkg)
	case Responder:
		pkg.Seal()
		status := protocol.HTTPStatus(pkg.Type)
		if err := e.Respond(status, pkg.Data()); err != nil {
			log.Error().Err(err).Str("remote", e.RemoteAddr()).Int("status", status).Msg("session.Send respond failed")
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedEndpoint, ep)
}

func sendStream(w StreamWriter, pkg *frame.Package) error {
	pkg.Seal()
	wire := pkg.Bytes()
	tp, pid, remote := pkg.Type, pkg.PID, w.RemoteAddr()
	err := w.QueueWrite(wire, func(err error) {
		if err != nil {
			log.Error().Err(err).Str("remote", remote).Uint16("pid", pid).Str("type", tp.String()).Msg("session.Send write failed")
			observability.RecordWriteError()
			return
		}
		observability.RecordPackageSent(tp.String(), len(wire))
	})
	if err != nil {
		log.Error().Err(err).Str("remote", remote).Uint16("pid", pid).Msg("session.Send queue failed")
		observability.RecordWriteError()
		return err
	}
	return nil
}
