package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/solatis/rulekeeper/internal/dialect"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a rule set against an input file and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		rulesPath, _ := cmd.Flags().GetString("rules")
		inputsPath, _ := cmd.Flags().GetString("inputs")
		cacheSize, _ := cmd.Flags().GetInt("cache-size")
		return runRules(cmd.OutOrStdout(), rulesPath, inputsPath, cacheSize)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("rules", "", "rule set file (.json, .yaml, .yml)")
	runCmd.Flags().String("inputs", "-", "input map file (.json, .yaml, .yml), - for stdin")
	runCmd.Flags().Int("cache-size", types.DefaultExpressionCacheSize, "compiled expression cache size per dialect")
	runCmd.MarkFlagRequired("rules")
}

func newEngine(cacheSize int, opts ...rules.Option) *rules.Engine {
	reg := rules.NewRegistryWithDialects(nil, dialect.DefaultsWithCache(cacheSize)...)
	if logger != nil {
		opts = append(opts, rules.WithLogger(logger))
	}
	return rules.NewEngine(reg, opts...)
}

func runRules(out io.Writer, rulesPath, inputsPath string, cacheSize int) error {
	set, err := loadRuleSet(rulesPath)
	if err != nil {
		return err
	}
	inputs, err := loadInputs(inputsPath)
	if err != nil {
		return err
	}

	engine := newEngine(cacheSize)
	if err := engine.AddRuleSet(set); err != nil {
		return err
	}
	results, err := engine.ExecuteRules(inputs)
	if err != nil {
		return err
	}
	if err := types.WriteIndentedJSON(out, results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
