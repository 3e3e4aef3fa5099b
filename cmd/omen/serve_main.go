package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omen-systems/omen/internal/application"
	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/scheduler"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	schedCfg := scheduler.DefaultConfig()
	if path, _ := cmd.Flags().GetString("scheduler-config"); path != "" {
		schedCfg, err = scheduler.LoadConfig(path)
		if err != nil {
			return err
		}
	}

	engine, err := application.New(cfg, version, schedCfg)
	if err != nil {
		return err
	}

	log.Info().Str("version", version).Str("env", string(cfg.Env)).Msg("OMEN starting")
	return engine.Run(cmd.Context())
}
