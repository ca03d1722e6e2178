package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/madison88admin/supplychain-app-sub002/internal/config"
	"github.com/madison88admin/supplychain-app-sub002/internal/logger"
	"github.com/spf13/cobra"
)

var version = "dev"

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "databank",
		Short:         "Paginated, searchable access to the data bank's tables",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "databank.yaml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override the configured log level")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Override the configured log format (json, console)")

	root.AddCommand(newServeCmd(g))
	root.AddCommand(newTablesCmd(g))
	root.AddCommand(newQueryCmd(g))
	root.AddCommand(newUploadCmd(g))
	root.AddCommand(newExportCmd(g))

	return root
}

// load reads the configuration named by the flags and builds a logger that
// writes to the command's stderr.
func (g *globals) load(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(config.Options{
		Path:     g.configPath,
		Required: cmd.Flags().Changed("config"),
	})
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}

	lc := cfg.Log.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	return cfg, logger.New(lc), nil
}

// open loads the configuration and opens the app for one command.
func (g *globals) open(cmd *cobra.Command) (*app, error) {
	cfg, log, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
