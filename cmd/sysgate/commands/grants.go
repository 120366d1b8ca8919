package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sysgate-io/sysgate/internal/permission"
)

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Inspect and edit the permission table",
}

var grantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current grants",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		records := a.store.List()
		if len(records) == 0 {
			fmt.Println("no grants")
			return nil
		}
		for _, rec := range records {
			expiry := "permanent"
			if rec.ExpiresAt != nil {
				expiry = "until " + rec.ExpiresAt.Format(time.RFC3339)
			}
			ops := make([]string, len(rec.Operations))
			for i, op := range rec.Operations {
				ops[i] = string(op)
			}
			fmt.Printf("%s\t[%s]\t%s\t(by %s)\n", rec.Path, strings.Join(ops, ","), expiry, rec.GrantedBy)
		}
		return nil
	},
}

var (
	grantOps      []string
	grantDuration time.Duration
)

var grantsGrantCmd = &cobra.Command{
	Use:   "grant <path>",
	Short: "Add a grant",
	Long: `Grant operations on a path or command token.

  sysgate grants grant /etc/hosts --ops read
  sysgate grants grant git --ops execute --duration 1h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		ops, err := parseOps(grantOps)
		if err != nil {
			return err
		}
		a.store.Grant(permission.Canonicalize(args[0]), ops, grantDuration, "user")
		fmt.Println("granted")
		return nil
	},
}

var revokeOps []string

var grantsRevokeCmd = &cobra.Command{
	Use:   "revoke <path>",
	Short: "Remove a grant, or some of its operations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		ops, err := parseOps(revokeOps)
		if err != nil {
			return err
		}
		a.store.Revoke(permission.Canonicalize(args[0]), ops...)
		fmt.Println("revoked")
		return nil
	},
}

var grantsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every grant",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		a.store.Clear()
		fmt.Println("cleared")
		return nil
	},
}

func init() {
	grantsGrantCmd.Flags().StringSliceVar(&grantOps, "ops", []string{"read"}, "Operations (read,write,execute,delete)")
	grantsGrantCmd.Flags().DurationVar(&grantDuration, "duration", 0, "Grant lifetime (0 = permanent)")
	grantsRevokeCmd.Flags().StringSliceVar(&revokeOps, "ops", nil, "Operations to revoke (default: the whole record)")

	grantsCmd.AddCommand(grantsListCmd)
	grantsCmd.AddCommand(grantsGrantCmd)
	grantsCmd.AddCommand(grantsRevokeCmd)
	grantsCmd.AddCommand(grantsClearCmd)
}

func parseOps(names []string) ([]permission.Operation, error) {
	ops := make([]permission.Operation, 0, len(names))
	for _, name := range names {
		op := permission.Operation(strings.ToLower(strings.TrimSpace(name)))
		switch op {
		case permission.OpRead, permission.OpWrite, permission.OpExecute, permission.OpDelete:
			ops = append(ops, op)
		default:
			return nil, fmt.Errorf("unknown operation %q", name)
		}
	}
	return ops, nil
}
