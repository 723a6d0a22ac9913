package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wendlabs/wend/internal/phrase"
	"github.com/wendlabs/wend/pkg/schema"
)

var parseCmd = &cobra.Command{
	Use:   "parse <phrase>",
	Short: "Parse an action phrase and print the typed action",
	Long: `Parse checks a single action phrase against the grammar and prints the
typed action it produces. On a parse failure the error, with the offset
and the tokens that would have been accepted, is printed instead.

Examples:
  wend parse 'run command "make build"'
  wend parse 'wait 5 seconds'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		act, err := phrase.Parse(args[0])
		if err != nil {
			var pe *phrase.ParseError
			if errors.As(err, &pe) {
				if printErr := printJSON(pe.WendError()); printErr != nil {
					return printErr
				}
				return &exitError{code: 1}
			}
			return err
		}
		return printJSON(schema.Describe(act))
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
