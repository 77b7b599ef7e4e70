package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/stompctl/internal/broker"
	"github.com/danmuck/stompctl/internal/config"
	"github.com/danmuck/stompctl/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "cmd/stompd/config.toml"

func main() {
	logging.ConfigureRuntime()
	fs := pflag.NewFlagSet("stompd", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "broker config file (default "+defaultConfigPath+" when present)")
	tcpAddr := fs.String("tcp", "", "TCP listen address")
	httpAddr := fs.String("http", "", "HTTP listen address for WebSocket, /metrics and /healthz")
	logLevel := fs.String("log-level", "", "log level: trace|debug|info|warn|error|off")
	_ = fs.Parse(os.Args[1:])

	if *logLevel != "" && !logging.SetLevel(*logLevel) {
		fmt.Fprintf(os.Stderr, "stompd: unknown log level %q\n", *logLevel)
		os.Exit(2)
	}

	cfg := broker.DefaultConfig()
	path := *configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	if path != "" {
		loaded, err := config.LoadBrokerConfig(path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load broker config")
		}
		cfg = loaded
		log.Info().Str("path", path).Msg("loaded broker config")
	}
	if fs.Changed("tcp") {
		cfg.TCPAddr = strings.TrimSpace(*tcpAddr)
	}
	if fs.Changed("http") {
		cfg.HTTPAddr = strings.TrimSpace(*httpAddr)
	}
	if err := config.ValidateBrokerConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid broker config")
	}

	gin.SetMode(gin.ReleaseMode)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := broker.NewService(cfg)
	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("stompd stopped")
		os.Exit(1)
	}
}
