// Package api serves the request dispatch over HTTP. Clients send qpack
// or JSON bodies and authenticate with HTTP basic auth per request.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/qpnet/internal/auth"
	"github.com/danmuck/qpnet/internal/observability"
	"github.com/danmuck/qpnet/internal/server"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	ContentTypeQPack = "application/qpack"
	ContentTypeJSON  = "application/json"
)

type Config struct {
	ID              string
	CORSOrigins     []string
	MaxPayloadBytes int64
}

type API struct {
	cfg     Config
	srv     *server.Server
	authn   auth.Authenticator
	router  *gin.Engine
	started time.Time
}

func New(cfg Config, srv *server.Server, authn auth.Authenticator) *API {
	observability.RegisterMetrics()
	if cfg.ID == "" {
		cfg.ID = "qpackd"
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = 8 * 1024 * 1024
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPMiddleware(log.Logger, cfg.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &API{
		cfg:     cfg,
		srv:     srv,
		authn:   authn,
		router:  r,
		started: time.Now(),
	}
	a.registerRoutes()
	return a
}

func (a *API) Router() *gin.Engine {
	return a.router
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (a *API) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("api listening")
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
