package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the docdispatch application
var rootCmd = &cobra.Command{
	Use:   "docdispatch",
	Short: "Emails case folders to their recipients and archives them",
	Long: `docdispatch picks up case folders from a root directory, resolves each
folder's recipients from the recipient workbook, emails the documents and
archives the folder. Every outcome is written to an xlsx ledger that is mailed
to the report recipients at the end of the run.

It can run as:
  - A batch job (default)
  - An MCP (Model Context Protocol) server for operators and AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// configPath is the settings file shared by every subcommand.
var configPath string

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "docdispatch version %s\n" .Version}}`)

	// If no subcommand is provided, run one batch by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Settings file (.yaml, .yml or .toml). Can also use DOCDISPATCH_CONFIG env var.")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}

func defaultConfigPath() string {
	if p := os.Getenv("DOCDISPATCH_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
