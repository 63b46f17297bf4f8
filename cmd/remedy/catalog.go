package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/remedy/pkg/guide"
	"github.com/ormasoftchile/remedy/pkg/render"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Step catalog operations",
}

// --- catalog validate ---

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <catalog.yaml>",
	Short: "Check a step catalog for unknown requirements, cycles and bad rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer f.Close()

		c, err := workflow.LoadCatalog(f)
		if err != nil {
			return err
		}
		if errs := c.Validate(); len(errs) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Validation failed: %d error(s)\n\n", len(errs))
			for i, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %d. %s\n", i+1, e.Message)
				if e.Path != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", len(errs))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d steps)\n", c.Name, len(c.Steps))
		return nil
	},
}

// --- catalog show ---

var catalogShowDiagram string

var catalogShowCmd = &cobra.Command{
	Use:   "show [catalog.yaml]",
	Short: "Describe each step of a catalog (the configured one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalogFor(args)
		if err != nil {
			return err
		}
		if catalogShowDiagram != "" {
			steps, err := workflow.BuildInitialSteps(c, "")
			if err != nil {
				return err
			}
			out, err := render.Diagram(c.Name, steps, render.Format(catalogShowDiagram))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		}

		var md strings.Builder
		fmt.Fprintf(&md, "# %s\n\n", c.Name)
		if c.Description != "" {
			fmt.Fprintf(&md, "%s\n\n", c.Description)
		}
		for _, s := range c.Steps {
			md.WriteString(render.StepMarkdown(s, nil))
			md.WriteString("\n")
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Markdown(md.String(), 100))
		return nil
	},
}

// --- catalog import-md ---

var importMDOut string

var catalogImportMDCmd = &cobra.Command{
	Use:   "import-md <guide.md>",
	Short: "Turn a Markdown troubleshooting guide into a step catalog",
	Long:  "Each level-2 heading becomes a step that requires the one before it. A heading ending in (optional) makes an optional step.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read guide: %w", err)
		}
		c, warnings, err := guide.Compile(source)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
		}

		w := cmd.OutOrStdout()
		if importMDOut != "" {
			f, err := os.Create(importMDOut)
			if err != nil {
				return fmt.Errorf("create catalog: %w", err)
			}
			defer f.Close()
			w = f
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("write catalog: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("write catalog: %w", err)
		}
		if importMDOut != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog with %d steps written to %s\n", len(c.Steps), importMDOut)
		}
		return nil
	},
}

func catalogFor(args []string) (*workflow.Catalog, error) {
	if len(args) == 1 {
		return workflow.LoadCatalogFile(args[0])
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.CatalogPath == "" {
		return workflow.DefaultCatalog(), nil
	}
	return workflow.LoadCatalogFile(cfg.CatalogPath)
}

func init() {
	catalogShowCmd.Flags().StringVar(&catalogShowDiagram, "diagram", "", "Draw the catalog instead: ascii or mermaid")
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogImportMDCmd.Flags().StringVar(&importMDOut, "out", "", "Write the catalog to this file instead of stdout")
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogImportMDCmd)
	rootCmd.AddCommand(catalogCmd)
}
