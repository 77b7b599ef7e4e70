package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/stompctl/internal/client"
	"github.com/danmuck/stompctl/internal/logging"
	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "stompctl: %v\n", err)
		os.Exit(2)
	}
	if opts.logLevel != "" && !logging.SetLevel(opts.logLevel) {
		fmt.Fprintf(os.Stderr, "stompctl: unknown log level %q\n", opts.logLevel)
		os.Exit(2)
	}
	cfg, err := opts.resolve()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load client config")
	}

	dialer, err := transport.NewDialer(cfg.Transport)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid transport config")
	}
	c, err := client.New(client.Config{
		Session: cfg.Session,
		Limits:  cfg.Transport.Limits,
		Dialer:  dialer,
		Out:     os.Stdout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Debug().Str("transport", cfg.Transport.Kind).Msg("stompctl ready")
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx, os.Stdin) }()
	select {
	case err = <-runErr:
	case <-ctx.Done():
		_ = c.Close()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("stompctl stopped")
		os.Exit(1)
	}
}

func serveMetrics(addr string) *http.Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics listener failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
