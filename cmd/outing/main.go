package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "outing",
	Short:         "Activities and date ideas chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if off, _ := cmd.Flags().GetBool("no-color"); off {
			noColor = true
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the outing version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(stdout, "outing version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.AddCommand(
		serveCmd,
		stopCmd,
		statusCmd,
		mcpCmd,
		chatCmd,
		prefsCmd,
		historyCmd,
		scrapeCmd,
		configCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
