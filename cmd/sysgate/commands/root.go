// Package commands provides the CLI commands for sysgate.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
	assumeYes bool
)

var rootCmd = &cobra.Command{
	Use:   "sysgate",
	Short: "sysgate - permission-gated system operation broker",
	Long: `sysgate brokers file and OS-level actions behind a permission table:
running commands, controlling services, editing the registry, adding
firewall rules and scheduling tasks all require a standing grant or an
interactive consent prompt, and the most recent reversible mutation can
be rolled back.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "directory", "C", "", "Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Approve all consent prompts without asking")

	rootCmd.SetVersionTemplate(fmt.Sprintf("sysgate %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(fsCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(grantsCmd)
	rootCmd.AddCommand(systemCmd)
	rootCmd.AddCommand(elevateCmd)
	rootCmd.AddCommand(rollbackCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
