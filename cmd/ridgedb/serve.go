package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ridgedb/ridgedb/internal/engine"
)

var serveDataDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "open a data directory and run its background checkpoint loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(serveDataDir)
		if err != nil {
			return err
		}
		e, err := engine.Open(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		fmt.Printf("ridgedb serving %s (checkpoint every %s)\n", cfg.DataDir, cfg.CheckpointInterval)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		fmt.Println("shutting down")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "data directory (overrides config)")
}
