package cmd

import (
	_ "embed"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"

	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

//go:embed schema/ruleset.schema.json
var ruleSetSchema []byte

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a rule set file without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("rules")
		return validateFile(cmd.OutOrStdout(), path)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("rules", "", "rule set file (.json, .yaml, .yml)")
	validateCmd.MarkFlagRequired("rules")
}

// validateFile checks path against the rule-set schema, then builds every
// rule through the validator. Every problem is printed to out.
func validateFile(out io.Writer, path string) error {
	data, err := readDocument(path)
	if err != nil {
		return err
	}

	problems, err := schemaProblems(data)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		set, err := types.ParseRuleSet(data)
		if err != nil {
			return err
		}
		reg := rules.NewDefaultRegistry(nil)
		for _, p := range rules.NewValidator(reg.Operators(), reg).ValidateRuleSet(set) {
			problems = append(problems, p.Error())
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		return fmt.Errorf("%s: %d problem(s)", path, len(problems))
	}
	fmt.Fprintf(out, "%s: ok\n", path)
	return nil
}

func schemaProblems(doc []byte) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(ruleSetSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return problems, nil
}
