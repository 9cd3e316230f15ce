package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/danmuck/qpnet/internal/api"
	"github.com/danmuck/qpnet/internal/config"
	"github.com/danmuck/qpnet/internal/observability"
	"github.com/danmuck/qpnet/internal/server"
	"github.com/danmuck/qpnet/internal/tee"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "qpackd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("qpackd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "cmd/qpackd/config.toml", "path to the server config")
	listen := flags.String("listen", "", "stream listen address (overrides config)")
	apiAddr := flags.String("api-addr", "", "http api address (overrides config, \"-\" disables)")
	teePipe := flags.String("tee", "", "unix socket for the package tee (overrides config)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *apiAddr != "" {
		cfg.APIAddr = *apiAddr
	}
	if *teePipe != "" {
		cfg.TeePipe = *teePipe
	}
	if cfg.APIAddr == "-" {
		cfg.APIAddr = ""
	}

	observability.InitLogger(cfg.ID, cfg.LogLevel)
	log.Info().Str("path", *configPath).Str("version", server.Version).Msg("qpackd config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := cfg.Session()
	fwd := tee.New(sess)
	fwd.SetPipeName(cfg.TeePipe)
	defer fwd.Close()

	authn := cfg.Authenticator()
	srv := server.New(cfg.Server(), authn, fwd)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fwd.Run(ctx, sess.Backoff)
	}()

	errCh := make(chan error, 2)
	if cfg.APIAddr != "" {
		httpAPI := api.New(cfg.API(), srv, authn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpAPI.ListenAndServe(ctx, cfg.APIAddr); err != nil {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx); err != nil {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("qpackd shutting down")
	case err = <-errCh:
		log.Error().Err(err).Msg("qpackd stopped")
	}
	stop()
	wg.Wait()
	return err
}
