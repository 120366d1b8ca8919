package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sysgate-io/sysgate/internal/executor"
)

var (
	execCwd        string
	execTimeout    time.Duration
	execBackground bool
)

var execCmd = &cobra.Command{
	Use:   "exec [command...]",
	Short: "Run a shell command through the permission broker",
	Long: `Run a shell command. Safe commands (ls, echo, pwd, ...) run without
a prompt; anything else needs a standing grant or interactive consent.

Examples:
  sysgate exec "ls -la"
  sysgate exec --background "sleep 60"
  sysgate exec --timeout 10s "curl https://example.com"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "Working directory for the command")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Timeout for synchronous execution")
	execCmd.Flags().BoolVarP(&execBackground, "background", "b", false, "Run in the background and print the process id")
}

func runExec(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	command := strings.Join(args, " ")
	res := a.broker.ExecuteCommand(context.Background(), command, executor.Options{
		Cwd:        execCwd,
		Timeout:    execTimeout,
		Background: execBackground,
	})
	return printExecResult(res)
}

func printExecResult(res executor.Result) error {
	if res.BackgroundID != "" {
		fmt.Println(res.BackgroundID)
		return nil
	}
	if res.Stdout != "" {
		fmt.Print(res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
		if !strings.HasSuffix(res.Stderr, "\n") {
			fmt.Fprintln(os.Stderr)
		}
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("exit code %d", res.ExitCode)
	}
	return nil
}

var (
	scriptCwd        string
	scriptBackground bool
)

var scriptCmd = &cobra.Command{
	Use:   "script <path> [args...]",
	Short: "Run a script file with its interpreter",
	Long: `Run a script file by extension (.py, .sh, .ps1). Permission is keyed
on the script path, not the interpreter.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScript,
}

func init() {
	scriptCmd.Flags().StringVar(&scriptCwd, "cwd", "", "Working directory for the script")
	scriptCmd.Flags().BoolVarP(&scriptBackground, "background", "b", false, "Run in the background and print the process id")
}

func runScript(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	res := a.broker.ExecuteScript(context.Background(), args[0], args[1:], executor.Options{
		Cwd:        scriptCwd,
		Background: scriptBackground,
	})
	return printExecResult(res)
}

var (
	installUpgrade bool
	installUser    bool
)

var installCmd = &cobra.Command{
	Use:   "install <package>",
	Short: "Install a Python package with pip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		res := a.broker.InstallPackage(context.Background(), args[0], installUpgrade, installUser)
		return printExecResult(res)
	},
}

func init() {
	installCmd.Flags().BoolVarP(&installUpgrade, "upgrade", "U", false, "Upgrade the package if already installed")
	installCmd.Flags().BoolVar(&installUser, "user", false, "Install into the user site-packages")
}

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open a file with the default application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		res := a.broker.OpenFile(context.Background(), args[0])
		if !res.Success {
			return fmt.Errorf("%s", res.Message)
		}
		fmt.Println(res.Message)
		return nil
	},
}
