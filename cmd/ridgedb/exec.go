package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridgedb/ridgedb/internal/engine"
	"github.com/ridgedb/ridgedb/internal/exec"
	"github.com/ridgedb/ridgedb/internal/storage/txn"
)

var (
	execDataDir   string
	execUser      string
	execDatabase  string
	execIsolation string
)

var isolationByFlag = map[string]txn.Isolation{
	"read_uncommitted": txn.ReadUncommitted,
	"read_committed":   txn.ReadCommitted,
	"repeatable_read":  txn.RepeatableRead,
	"snapshot":         txn.Snapshot,
	"serializable":     txn.Serializable,
}

var execCmd = &cobra.Command{
	Use:   "exec <fixture.json|->",
	Short: "run one statement fixture against a data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		isolation, ok := isolationByFlag[execIsolation]
		if !ok {
			return fmt.Errorf("unknown isolation level %q", execIsolation)
		}

		raw, err := readFixtureArg(args[0])
		if err != nil {
			return err
		}
		stmt, err := decodeFixture(raw)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(execDataDir)
		if err != nil {
			return err
		}
		e, err := engine.Open(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := exec.New(context.Background(), execUser, execDatabase, isolation)
		result, rows, err := e.Exec.Execute(ctx, stmt)
		if err != nil {
			return err
		}
		return printExecution(result, rows)
	},
}

func init() {
	execCmd.Flags().StringVar(&execDataDir, "data-dir", "", "data directory (overrides config)")
	execCmd.Flags().StringVar(&execUser, "user", "root", "executing user")
	execCmd.Flags().StringVar(&execDatabase, "database", "", "current database")
	execCmd.Flags().StringVar(&execIsolation, "isolation", "read_committed", "isolation level for an implicit autocommit transaction")
}

func readFixtureArg(arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(arg)
}

func printExecution(result *exec.ExecutionResult, rows *exec.ResultSet) error {
	if !result.Success {
		return fmt.Errorf("%s", result.Message)
	}
	if rows == nil {
		fmt.Println(result.Message)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
