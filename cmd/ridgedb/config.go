package main

import (
	"github.com/ridgedb/ridgedb/internal/config"
)

// loadConfig reads --config over the engine defaults, honoring --data-dir
// as an override the way a flag should beat a config file.
func loadConfig(dataDirFlag string) (config.EngineConfig, error) {
	loader, err := config.NewLoader(cfgPath)
	if err != nil {
		return config.EngineConfig{}, err
	}
	cfg := loader.Current()
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	return cfg, nil
}
