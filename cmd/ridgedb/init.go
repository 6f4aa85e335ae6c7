package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/config"
	"github.com/ridgedb/ridgedb/internal/engine"
	"github.com/ridgedb/ridgedb/internal/exec"
	"github.com/ridgedb/ridgedb/internal/storage/txn"
)

var (
	initDataDir     string
	initDatabase    string
	initUser        string
	initPassword    string
	initWriteConfig string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "create (or open) a data directory and optionally a database and superuser",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(initDataDir)
		if err != nil {
			return err
		}

		if initWriteConfig != "" {
			if err := config.WriteDefault(initWriteConfig, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote config to %s\n", initWriteConfig)
		}

		e, err := engine.Open(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := exec.New(context.Background(), "root", "", txn.ReadCommitted)

		if initUser != "" {
			res, _, err := e.Exec.Execute(ctx, &ast.CreateUserStmt{Username: initUser, Password: initPassword})
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("create user: %s", res.Message)
			}
			fmt.Printf("created user %q\n", initUser)
		}

		if initDatabase != "" {
			res, _, err := e.Exec.Execute(ctx, &ast.CreateDatabaseStmt{Name: initDatabase})
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("create database: %s", res.Message)
			}
			fmt.Printf("created database %q\n", initDatabase)
		}

		fmt.Printf("initialized %s\n", cfg.DataDir)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "", "data directory (overrides config)")
	initCmd.Flags().StringVar(&initDatabase, "database", "", "database to create, if any")
	initCmd.Flags().StringVar(&initUser, "user", "", "superuser to create, if any")
	initCmd.Flags().StringVar(&initPassword, "password", "", "password for --user")
	initCmd.Flags().StringVar(&initWriteConfig, "write-config", "", "scaffold a yaml config file at this path before opening")
}
