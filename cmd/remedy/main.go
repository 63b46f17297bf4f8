package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/remedy/pkg/config"
	"github.com/ormasoftchile/remedy/pkg/console"
	"github.com/ormasoftchile/remedy/pkg/runtime"
	"github.com/ormasoftchile/remedy/pkg/snapshot"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagConfig   string
	flagStore    string
	flagLogLevel string
	flagCatalog  string
)

var rootCmd = &cobra.Command{
	Use:           "remedy",
	Short:         "Guided troubleshooting workflows",
	Long:          "remedy walks you from an error report to a verified, documented fix, one step at a time, and keeps a history of how long each step took.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// loadConfig reads the config and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagStore != "" {
		cfg.StorePath = flagStore
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagCatalog != "" {
		cfg.CatalogPath = flagCatalog
	}
	return cfg, nil
}

func openRuntime(fresh bool) (*runtime.Runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return runtime.Open(cfg, runtime.Options{Fresh: fresh})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- run ---

var runFresh bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive troubleshooting console",
	Long:  "Start the interactive console. The workflow is resumed from the last run unless --fresh is given, and saved again on exit.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(runFresh)
		if err != nil {
			return err
		}
		c := console.New(rt.Session)
		c.SetOutput(cmd.OutOrStdout())
		runErr := c.Run(cmd.Context())
		if err := rt.Close(); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	},
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "JSON Schema operations",
}

var schemaOut string

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the JSON Schema of snapshot documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := snapshot.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		if schemaOut == "" {
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(schemaOut, data, 0o644); err != nil {
			return fmt.Errorf("write schema: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema written to %s\n", schemaOut)
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "remedy %s (%s), snapshot format %s\n", version, commit, snapshot.Version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to remedy.yaml (default: search upward from the working directory)")
	pf.StringVar(&flagStore, "store", "", "State database path, or :memory: (overrides store_path)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log_level)")
	pf.StringVar(&flagCatalog, "catalog", "", "Step catalog YAML (overrides catalog)")

	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Start from the catalog instead of the saved workflow")

	schemaExportCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this file instead of stdout")
	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
