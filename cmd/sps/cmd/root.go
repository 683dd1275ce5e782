package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"speaker-split/cmd/sps/cmd/serve"
	"speaker-split/cmd/sps/cmd/version"
)

var Verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sps",
	Short: "Orchestration tier for the Speaker Split audio processing app",
	Long: `The Speaker Split service tier sits between the web client and the ML
audio backend. It relays streamed processing events, tracks job records and
enforces per-user monthly credit quotas.`,
	TraverseChildren: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(version.Cmd)

	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
}
