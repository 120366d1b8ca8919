package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/sysgate-io/sysgate/internal/proc"
)

var (
	psWait        bool
	psWaitTimeout time.Duration
)

var psCmd = &cobra.Command{
	Use:   "ps [id]",
	Short: "Show background processes",
	Long: `Without an id, list the known background process ids. With an id,
print its state and, once it has finished, exit code and output.

  sysgate ps
  sysgate ps 01J8ZQ8R2P --wait`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPs,
}

func init() {
	psCmd.Flags().BoolVarP(&psWait, "wait", "w", false, "Poll until the process reaches a terminal state")
	psCmd.Flags().DurationVar(&psWaitTimeout, "wait-timeout", 10*time.Minute, "Give up waiting after this long")
}

func runPs(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		for _, id := range a.broker.ListProcesses() {
			fmt.Println(id)
		}
		return nil
	}

	id := args[0]
	status := a.broker.GetProcessStatus(id)
	if !status.Exists {
		return fmt.Errorf("unknown process id: %s", id)
	}

	if psWait && !status.Completed() {
		status, err = waitForTerminal(a, id)
		if err != nil {
			return err
		}
	}

	printStatus(id, status)
	return nil
}

// waitForTerminal polls the tracker with exponential backoff until the
// process leaves the running state. The broker itself never retries;
// waiting is strictly a caller concern.
func waitForTerminal(a *app, id string) (proc.Status, error) {
	var status proc.Status

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = psWaitTimeout

	stillRunning := errors.New("still running")
	err := backoff.Retry(func() error {
		status = a.broker.GetProcessStatus(id)
		if !status.Completed() {
			return stillRunning
		}
		return nil
	}, policy)
	if err != nil {
		return status, fmt.Errorf("process %s still running after %s", id, psWaitTimeout)
	}
	return status, nil
}

func printStatus(id string, status proc.Status) {
	fmt.Printf("id:    %s\n", id)
	fmt.Printf("state: %s\n", status.State)
	if !status.Completed() {
		return
	}
	fmt.Printf("exit:  %d\n", status.ExitCode)
	if status.Stdout != "" {
		fmt.Print(status.Stdout)
	}
	if status.Stderr != "" {
		fmt.Fprint(os.Stderr, status.Stderr)
	}
}

var killCmd = &cobra.Command{
	Use:   "kill <id>",
	Short: "Terminate a background process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if !a.broker.KillProcess(args[0]) {
			return fmt.Errorf("unknown process id: %s", args[0])
		}
		fmt.Println("killed")
		return nil
	},
}
