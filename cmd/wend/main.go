package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/wend/
var version = "dev"

var (
	cfgPath   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "wend",
	Short: "Run declarative state-machine workflows",
	Long: `Wend executes workflows declared as YAML state machines. Each state
binds one action phrase, guarded transitions pick the next state, and
every run is archived with its full event history.

Examples:
  wend run deploy --var env=prod
  wend validate ./workflows
  wend runs --workflow deploy --outcome failed
  wend graph deploy --format mermaid
  wend serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default $WEND_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override the configured log format (text, json)")
}

// exitError carries a specific process exit code out of a command. Commands
// return it from RunE when the work itself decided the outcome and the usual
// error printing would only repeat what is already on screen.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.message != "" {
			fmt.Fprintln(os.Stderr, exit.message)
		}
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "wend:", err)
	os.Exit(1)
}
