package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sysgate-io/sysgate/internal/broker"
	"github.com/sysgate-io/sysgate/internal/platform"
)

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Registry, service, firewall and scheduled-task operations",
}

func reportResult(res broker.Result) error {
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	fmt.Println(res.Message)
	return nil
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Read, write and delete registry values (windows only)",
}

var registryGetCmd = &cobra.Command{
	Use:   "get <key> <name>",
	Short: "Read a registry value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		val, err := a.broker.ReadRegistry(args[0], args[1])
		if err != nil {
			return err
		}
		if val == nil {
			return fmt.Errorf("value not found: %s\\%s", args[0], args[1])
		}
		fmt.Printf("%s\t%s\t%s\n", val.Name, val.Type, val.Data)
		return nil
	},
}

var registryType string

var registrySetCmd = &cobra.Command{
	Use:   "set <key> <name> <value>",
	Short: "Write a registry value, recording the prior value for rollback",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		return reportResult(a.broker.ModifyRegistry(args[0], args[1], args[2], registryType))
	},
}

var registryDeleteCmd = &cobra.Command{
	Use:   "delete <key> [name]",
	Short: "Delete a registry value, or a whole key",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		return reportResult(a.broker.DeleteRegistryValue(args[0], name))
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service <query|start|stop|restart> <name>",
	Short: "Query or control an OS service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		action := platform.ServiceAction(args[0])
		switch action {
		case platform.ServiceQuery, platform.ServiceStart, platform.ServiceStop, platform.ServiceRestart:
		default:
			return fmt.Errorf("unknown service action %q", args[0])
		}
		return reportResult(a.broker.ManageService(args[1], action))
	},
}

var (
	firewallAction    string
	firewallDirection string
	firewallProtocol  string
	firewallPort      int
)

var firewallCmd = &cobra.Command{
	Use:   "firewall <name>",
	Short: "Create a firewall rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		return reportResult(a.broker.CreateFirewallRule(platform.FirewallRule{
			Name:      args[0],
			Action:    firewallAction,
			Direction: firewallDirection,
			Protocol:  firewallProtocol,
			Port:      firewallPort,
		}))
	},
}

var (
	taskCommand  string
	taskSchedule string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and delete scheduled tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if taskCommand == "" {
			return fmt.Errorf("--command is required")
		}
		return reportResult(a.broker.CreateScheduledTask(args[0], taskCommand, taskSchedule))
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		return reportResult(a.broker.DeleteScheduledTask(args[0]))
	},
}

var elevateCmd = &cobra.Command{
	Use:   "elevate [reason]",
	Short: "Relaunch sysgate with administrator privileges",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		reason := "requested from the command line"
		if len(args) == 1 {
			reason = args[0]
		}
		ok, err := a.broker.ElevatePrivileges(reason)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("elevation denied")
		}
		fmt.Println("already elevated")
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Undo the most recent reversible operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if !a.broker.RollbackLastOperation() {
			return fmt.Errorf("nothing to roll back")
		}
		fmt.Println("rolled back")
		return nil
	},
}

func init() {
	registrySetCmd.Flags().StringVar(&registryType, "type", "REG_SZ", "Registry value type (REG_SZ|REG_DWORD|...)")
	firewallCmd.Flags().StringVar(&firewallAction, "action", "allow", "allow or block")
	firewallCmd.Flags().StringVar(&firewallDirection, "dir", "in", "in or out")
	firewallCmd.Flags().StringVar(&firewallProtocol, "protocol", "TCP", "TCP or UDP")
	firewallCmd.Flags().IntVar(&firewallPort, "port", 0, "Local port (0 = any)")
	taskCreateCmd.Flags().StringVar(&taskCommand, "command", "", "Command the task runs")
	taskCreateCmd.Flags().StringVar(&taskSchedule, "schedule", "DAILY", "Schedule (MINUTE|HOURLY|DAILY|WEEKLY|ONSTART|...)")

	registryCmd.AddCommand(registryGetCmd)
	registryCmd.AddCommand(registrySetCmd)
	registryCmd.AddCommand(registryDeleteCmd)
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskDeleteCmd)

	systemCmd.AddCommand(registryCmd)
	systemCmd.AddCommand(serviceCmd)
	systemCmd.AddCommand(firewallCmd)
	systemCmd.AddCommand(taskCmd)
}
