package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/remedy/pkg/render"
	"github.com/ormasoftchile/remedy/pkg/snapshot"
)

// --- export ---

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the saved workflow as a snapshot document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()

		doc := rt.Session.Export()
		if exportOut == "" {
			data, err := snapshot.Marshal(doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := snapshot.SaveFile(doc, exportOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", exportOut)
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Replace the saved workflow with a snapshot document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		rt, err := openRuntime(true)
		if err != nil {
			return err
		}
		res, err := rt.Session.Import(data)
		if err != nil {
			rt.Close()
			return err
		}
		if err := rt.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d steps (version %s, exported %s)\n",
			len(res.Steps), res.Version, res.Timestamp.Format("2006-01-02 15:04"))
		return nil
	},
}

// --- check ---

var checkCmd = &cobra.Command{
	Use:   "check <snapshot.json>",
	Short: "Check a snapshot document without importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := snapshot.LoadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is a valid snapshot (%d steps, version %s)\n", args[0], len(res.Steps), res.Version)
		return nil
	},
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start the saved workflow over from the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(true)
		if err != nil {
			return err
		}
		if err := rt.Close(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Workflow reset.")
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved workflow's steps and progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		m := rt.Session.Machine
		render.Steps(cmd.OutOrStdout(), m.Steps(), m.Durations())
		fmt.Fprintln(cmd.OutOrStdout(), render.Summary(rt.Session.Analytics()))
		return nil
	},
}

// --- analytics ---

var analyticsJSON bool

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show progress, timing and bottlenecks of the saved workflow",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		report := rt.Session.Report(cmd.Context())
		if analyticsJSON {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Markdown(render.ReportMarkdown(report), 100))
		return nil
	},
}

// --- metrics ---

var (
	metricsDays int
	metricsJSON bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show per-step and daily metrics from the history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if metricsDays < -1 {
			return fmt.Errorf("--days must be 0 (all time) or more")
		}
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		m := rt.Session.Metrics(metricsDays)
		if metricsJSON {
			return writeJSON(cmd.OutOrStdout(), m)
		}
		render.Metrics(cmd.OutOrStdout(), m)
		return nil
	},
}

// --- history ---

var (
	historyClear bool
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the step history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()

		if historyClear {
			if err := rt.Session.ClearHistory(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		}
		entries := rt.Session.Ledger.All()
		if historyJSON {
			return writeJSON(cmd.OutOrStdout(), entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No history recorded.")
			return nil
		}
		render.History(cmd.OutOrStdout(), entries)
		return nil
	},
}

// --- diagram ---

var diagramFormat string

var diagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Draw the saved workflow's step requirements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		out, err := render.Diagram("remedy", rt.Session.Machine.Steps(), render.Format(diagramFormat))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Write the snapshot to this file instead of stdout")
	analyticsCmd.Flags().BoolVar(&analyticsJSON, "json", false, "Output the report as JSON")
	metricsCmd.Flags().IntVar(&metricsDays, "days", -1, "Days of history to include; 0 for all time (default: metrics_range_days)")
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete all history entries")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output entries as JSON")
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "ascii", "Diagram format: ascii or mermaid")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(diagramCmd)
}
