package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"storagesim/internal/config"
	"storagesim/internal/factory"
)

var (
	validateConfigPath string
	validateSchemaPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a simulation configuration",
	Long:  "validate loads the configuration, checks it against the CUE schema and builds the system, including all profiles over the full horizon.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(validateConfigPath, validateSchemaPath)
		if err != nil {
			return err
		}
		plan, err := factory.Build(cfg, factory.WithBaseDir(filepath.Dir(validateConfigPath)))
		if err != nil {
			return err
		}
		defer plan.System.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: system %s, %d storages in %d ac systems, %d steps of %s\n",
			plan.System.Name(), len(plan.System.Storages()), len(plan.System.Systems()), plan.Steps, plan.Timestep)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	validateCmd.Flags().StringVar(&validateSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
}
