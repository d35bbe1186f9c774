package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string // Log verbosity level

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "samplegen",
	Short: "Imitation-learning sample generator for branch-and-bound variable selection",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
}
