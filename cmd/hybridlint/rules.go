package main

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hybridlint/internal/registry"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the registered rules and their strategy cascades",
		Args:  cobra.NoArgs,
		RunE:  runRules,
	}
	cmd.Flags().String("rules-dir", "", "Load rule folders from this directory instead of the builtin catalog")
	cmd.Flags().String("overrides", "", "Registry override file")
	cmd.Flags().String("engine", "", "Only show strategies this engine can run")
	return cmd
}

func runRules(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("rules-dir")
	overrides, _ := cmd.Flags().GetString("overrides")
	engineID, _ := cmd.Flags().GetString("engine")
	if engineID != "" && !registry.IsEngine(engineID) {
		return usageError(fmt.Errorf("unknown engine %q (want one of %s)", engineID, strings.Join(registry.Engines(), ", ")))
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	reg, err := loadRegistry(dir, overrides, logger)
	if err != nil {
		return &exitError{code: exitFindings, err: err}
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSEVERITY\tCATEGORY\tSTRATEGIES\tNAME")
	for _, rule := range reg.List() {
		handles := rule.Strategies
		if engineID != "" {
			handles = reg.CompatibleStrategies(rule.ID, engineID)
		}
		cascade := make([]string, 0, len(handles))
		for _, h := range handles {
			cascade = append(cascade, fmt.Sprintf("%s(%s)", h.Kind, h.Origin))
		}
		if len(cascade) == 0 {
			cascade = append(cascade, "-")
		}
		strategies := strings.Join(cascade, " > ")
		if rule.SemanticOnly {
			strategies += " [semantic-only]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rule.ID, rule.DefaultSeverity, rule.Category, strategies, rule.Name)
	}
	return tw.Flush()
}
