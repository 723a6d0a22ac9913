package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wendlabs/wend/internal/expressions"
	"github.com/wendlabs/wend/internal/validation"
	"github.com/wendlabs/wend/internal/workflow"
	"github.com/wendlabs/wend/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file-or-dir>",
	Short: "Validate workflow definition files",
	Long: `Validate loads one file or every .yaml/.yml file in a directory and runs
the full validation pipeline on each definition: structure, phrase and
guard checks, then graph reachability. Warnings do not fail the command;
errors do.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := workflow.LoadPath(args[0])
		if err != nil {
			return err
		}
		eval, err := expressions.NewEvaluator()
		if err != nil {
			return err
		}
		v, err := validation.NewWorkflowValidator(eval)
		if err != nil {
			return err
		}

		invalid := 0
		for _, def := range defs {
			name := def.Name
			if name == "" {
				name = "(unnamed)"
			}
			result := v.Validate(def)
			printValidation(name, result)
			if !result.Valid() {
				invalid++
			}
		}
		if invalid > 0 {
			return &exitError{code: 1, message: fmt.Sprintf("%d of %d workflows invalid", invalid, len(defs))}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func printValidation(name string, result *schema.ValidationResult) {
	switch {
	case result.Valid() && len(result.Warnings) == 0:
		fmt.Printf("%s: ok\n", name)
		return
	case result.Valid():
		fmt.Printf("%s: ok with warnings\n", name)
	default:
		fmt.Printf("%s: invalid\n", name)
	}
	for _, issue := range result.Errors {
		fmt.Printf("  error %s at %s: %s\n", issue.Code, issue.Path, issue.Message)
	}
	for _, issue := range result.Warnings {
		fmt.Printf("  warning %s at %s: %s\n", issue.Code, issue.Path, issue.Message)
	}
}
