package api

import (
	"net/http"
	"time"

	"github.com/danmuck/qpnet/internal/auth"
	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/protocol/session"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/danmuck/qpnet/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func (a *API) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.started).String(),
			"service": a.cfg.ID,
			"version": server.Version,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.POST("/auth/:db", func(c *gin.Context) {
		r := newResponder(c)
		if _, ok := a.authenticate(c, r); !ok {
			return
		}
		pkg, err := frame.New(0, protocol.ResAuthSuccess, nil)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		_ = session.Send(r, pkg)
	})

	a.router.POST("/insert/:db", func(c *gin.Context) {
		r := newResponder(c)
		state, ok := a.authenticate(c, r)
		if !ok {
			return
		}
		body, err := readBody(c, a.cfg.MaxPayloadBytes)
		if err != nil {
			sendError(r, protocol.ErrInsert, err.Error())
			return
		}
		pkg, err := frame.New(0, protocol.ReqInsert, body)
		if err != nil {
			sendError(r, protocol.ErrInsert, err.Error())
			return
		}
		a.srv.Handle(r, state, pkg)
	})
}

// authenticate checks basic auth credentials for the :db path parameter
// and answers the request itself when they are rejected.
func (a *API) authenticate(c *gin.Context, r *responder) (*server.ConnState, bool) {
	user, password, ok := c.Request.BasicAuth()
	if !ok {
		sendError(r, protocol.ErrNotAuthenticated, "not authenticated")
		return nil, false
	}
	db := c.Param("db")
	payload, err := qpack.Marshal([]any{user, password, db})
	if err != nil {
		sendError(r, protocol.ErrServer, err.Error())
		return nil, false
	}
	if a.authn == nil {
		sendError(r, protocol.ErrAuthCredentials, auth.Message(protocol.ErrAuthCredentials))
		return nil, false
	}
	res, err := auth.Request(a.authn, payload)
	if err != nil {
		sendError(r, protocol.ErrMsg, err.Error())
		return nil, false
	}
	if !res.OK() {
		sendError(r, res.Type, auth.Message(res.Type))
		return nil, false
	}
	return server.Authenticated(res.User, res.Database), true
}

func sendError(r *responder, tp protocol.MsgType, msg string) {
	pkg, err := frame.NewError(0, tp, msg)
	if err != nil {
		log.Error().Err(err).Msg("api build error response failed")
		r.c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	_ = session.Send(r, pkg)
}
