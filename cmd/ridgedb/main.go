// Command ridgedb is a thin CLI proving the engine is embeddable: it opens
// a data directory, runs one statement fixture through it, or serves
// forever while a periodic checkpoint loop runs in the background. It is
// not a REPL and has no wire protocol — callers embed internal/engine
// directly for anything beyond this.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "ridgedb",
	Short: "ridgedb - an embeddable relational storage engine",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a ridgedb config file (yaml/toml/json)")
	rootCmd.AddCommand(initCmd, execCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
