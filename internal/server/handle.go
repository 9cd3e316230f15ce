package server

import (
	"errors"
	"fmt"

	"github.com/danmuck/qpnet/internal/auth"
	"github.com/danmuck/qpnet/internal/observability"
	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/protocol/schema"
	"github.com/danmuck/qpnet/internal/protocol/session"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/danmuck/qpnet/internal/tee"
	"github.com/rs/zerolog/log"
)

// ConnState is the authentication state of one client.
type ConnState struct {
	User     string
	Database string
	authed   bool
}

// Authenticated returns a state that already passed auth, for transports
// that authenticate outside the package stream.
func Authenticated(user, db string) *ConnState {
	return &ConnState{User: user, Database: db, authed: true}
}

func (c *ConnState) IsAuthenticated() bool {
	return c.authed
}

// Handle answers one request package on ep.
func (s *Server) Handle(ep session.Endpoint, c *ConnState, pkg *frame.Package) {
	log.Debug().Str("remote", ep.RemoteAddr()).Uint16("pid", pkg.PID).Str("type", protocol.RequestName(pkg.Type)).Msg("server.Handle")

	var resp *frame.Package
	var err error
	switch pkg.Type {
	case protocol.ReqPing:
		resp, err = frame.New(pkg.PID, protocol.ResAck, nil)
	case protocol.ReqInfo:
		resp, err = s.info(pkg.PID)
	case protocol.ReqAuth:
		resp, err = s.authenticate(c, pkg)
	case protocol.ReqInsert:
		resp, err = s.requireAuth(c, pkg, s.insert)
	case protocol.ReqQuery:
		resp, err = s.requireAuth(c, pkg, s.query)
	default:
		resp, err = s.requireAuth(c, pkg, func(_ *ConnState, pkg *frame.Package) (*frame.Package, error) {
			return frame.NewError(pkg.PID, protocol.ErrMsg,
				fmt.Sprintf("unsupported request type: %s", protocol.RequestName(pkg.Type)))
		})
	}
	if err != nil {
		log.Error().Err(err).Uint16("pid", pkg.PID).Msg("server.Handle build response failed")
		resp, err = frame.NewError(pkg.PID, protocol.ErrServer, "cannot build response")
		if err != nil {
			return
		}
	}
	// Send logs its own failures and the request is over either way.
	_ = session.Send(ep, resp)
}

func (s *Server) requireAuth(
	c *ConnState,
	pkg *frame.Package,
	next func(*ConnState, *frame.Package) (*frame.Package, error),
) (*frame.Package, error) {
	if !c.IsAuthenticated() {
		return frame.NewError(pkg.PID, protocol.ErrNotAuthenticated, "not authenticated")
	}
	return next(c, pkg)
}

func (s *Server) authenticate(c *ConnState, pkg *frame.Package) (*frame.Package, error) {
	if s.authn == nil {
		return frame.NewError(pkg.PID, protocol.ErrAuthCredentials, auth.Message(protocol.ErrAuthCredentials))
	}
	res, err := auth.Request(s.authn, pkg.Data())
	if err != nil {
		return frame.NewError(pkg.PID, protocol.ErrMsg, err.Error())
	}
	if !res.OK() {
		return frame.NewError(pkg.PID, res.Type, auth.Message(res.Type))
	}
	c.User, c.Database, c.authed = res.User, res.Database, true
	return frame.New(pkg.PID, protocol.ResAuthSuccess, nil)
}

func (s *Server) info(pid uint16) (*frame.Package, error) {
	status := "disabled"
	if s.fwd != nil {
		status = s.fwd.String()
	}
	p := frame.NewPacker(64)
	err := p.Add(map[string]any{
		"version": Version,
		"tee":     status,
		"clients": s.Clients(),
	})
	if err != nil {
		return nil, err
	}
	return frame.FromPacker(p, pid, protocol.ResInfo)
}

func (s *Server) insert(c *ConnState, pkg *frame.Package) (*frame.Package, error) {
	if err := schema.Validate(protocol.ReqInsert, pkg.Data()); err != nil {
		return frame.NewError(pkg.PID, protocol.ErrInsert, err.Error())
	}
	series, points, err := CountPoints(pkg.Data())
	if err != nil {
		return frame.NewError(pkg.PID, protocol.ErrInsert, err.Error())
	}

	if s.fwd != nil && s.fwd.Enabled() {
		if err := s.fwd.Write(pkg); err != nil && !errors.Is(err, tee.ErrNotConnected) {
			log.Warn().Err(err).Msg("server.insert tee write failed")
		}
	}
	observability.RecordInsertedPoints(c.Database, points)
	log.Info().Str("db", c.Database).Int("series", series).Int("points", points).Msg("server.insert accepted")

	p := frame.NewPacker(64)
	if err := p.AddMap(1); err != nil {
		return nil, err
	}
	p.AddString("success_msg")
	p.AddFmt("Successfully inserted %d point(s).", points)
	return frame.FromPacker(p, pkg.PID, protocol.ResInsert)
}

func (s *Server) query(_ *ConnState, pkg *frame.Package) (*frame.Package, error) {
	if err := schema.Validate(protocol.ReqQuery, pkg.Data()); err != nil {
		return frame.NewError(pkg.PID, protocol.ErrQuery, err.Error())
	}
	u := qpack.NewUnpacker(pkg.Data())
	u.Next()
	u.Next()
	log.Debug().Str("query", u.Object().Str()).Msg("server.query rejected")
	return frame.NewError(pkg.PID, protocol.ErrQuery, "query execution is not available")
}
