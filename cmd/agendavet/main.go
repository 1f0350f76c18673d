package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/agendavet-scheduling/internal/app"
	"github.com/hackgods/agendavet-scheduling/internal/config"
	"github.com/hackgods/agendavet-scheduling/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "agendavet",
	Short:         "Operate the AgendaVet scheduling agent",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log agent activity to stderr")
	rootCmd.AddCommand(transitionsCmd, suggestCmd, queueCmd, drainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openAgent wires the same components the api-server runs with.
func openAgent(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := zerolog.Nop()
	if verbose {
		logger = logging.NewWithWriter(os.Stderr, "dev", cfg.LogLevel)
	}

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return app.Open(openCtx, cfg, "agendavet-cli", logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
