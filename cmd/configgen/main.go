package main

import (
	"github.com/danmuck/stompctl/internal/config"
	"github.com/danmuck/stompctl/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()
	kind := pflag.StringP("kind", "k", config.KindClient, "config kind: client|broker")
	output := pflag.StringP("output", "o", "", "output path for config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := pflag.Bool("force", false, "overwrite existing config file")
	pflag.Parse()

	defaultPath, err := config.DefaultPath(*kind)
	if err != nil {
		log.Fatal().Err(err).Msg("unknown config kind")
	}

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		if err := config.Validate(path, *kind); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("config invalid")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("config valid")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Str("path", target).Msg("write template failed")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
