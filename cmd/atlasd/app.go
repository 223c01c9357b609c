package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/atlasmemory/atlas/internal/config"
	"github.com/atlasmemory/atlas/internal/logging"
	"github.com/atlasmemory/atlas/pkg/atlas"
)

// buildApp loads configuration and logging, validates the config, and
// constructs the application service every subcommand drives.
func buildApp() (*atlas.App, *logging.Logger, *config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logCfg, err := logging.ConfigFromAtlas(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating logger: %w", err)
	}

	return atlas.New(*cfg, logger), logger, cfg, nil
}

// outputJSON prints v as indented JSON to stdout, for subcommands'
// --json mode.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
