package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ledgerline/docaudit/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage business-rule thresholds",
}

// -- rules show --

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active thresholds as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := env.Orchestrator.Rules()
		fmt.Fprintf(os.Stdout, "# version %d\n", r.Version)
		return yaml.NewEncoder(os.Stdout).Encode(r.Map())
	},
}

// -- rules set --

var rulesSetCmd = &cobra.Command{
	Use:   "set <key=value> ...",
	Short: "Override thresholds and persist a new rule version",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		overrides, err := parseAdjustments(args)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		merged, err := env.Orchestrator.Rules().Merge(overrides)
		if err != nil {
			return err
		}
		if err := env.Store.PutBusinessRules(ctx, merged.Map()); err != nil {
			return eris.Wrap(err, "persist rules")
		}

		zap.L().Info("rules updated",
			zap.Int("version", merged.Version),
			zap.Int("overrides", len(overrides)),
		)
		return nil
	},
}

// -- rules export --

var rulesExportCmd = &cobra.Command{
	Use:   "export <file.yaml>",
	Short: "Write the active thresholds to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := yaml.Marshal(env.Orchestrator.Rules().Map())
		if err != nil {
			return eris.Wrap(err, "marshal rules")
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			return eris.Wrap(err, "write rules file")
		}
		return nil
	},
}

// -- rules import --

var rulesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Load thresholds from a YAML file and persist a new rule version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read rules file")
		}
		var overrides map[string]float64
		if err := yaml.Unmarshal(data, &overrides); err != nil {
			return eris.Wrap(err, "parse rules file")
		}

		merged, err := rules.Defaults().Merge(overrides)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.PutBusinessRules(ctx, merged.Map()); err != nil {
			return eris.Wrap(err, "persist rules")
		}

		zap.L().Info("rules imported",
			zap.String("file", args[0]),
			zap.Int("version", merged.Version),
		)
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesSetCmd)
	rulesCmd.AddCommand(rulesExportCmd)
	rulesCmd.AddCommand(rulesImportCmd)
	rootCmd.AddCommand(rulesCmd)
}
