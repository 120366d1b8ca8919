package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sysgate-io/sysgate/internal/fileops"
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Permission-checked file operations",
}

func fileManager() (*fileops.Manager, error) {
	a, err := buildApp()
	if err != nil {
		return nil, err
	}
	return fileops.NewManager(a.broker), nil
}

var fsCatCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := fileManager()
		if err != nil {
			return err
		}
		data, err := m.ReadFile(args[0])
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	},
}

var fsWriteAppend bool

var fsWriteCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Write stdin to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := fileManager()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		if fsWriteAppend {
			return m.AppendFile(args[0], data)
		}
		return m.WriteFile(args[0], data)
	},
}

var fsLsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := fileManager()
		if err != nil {
			return err
		}
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		entries, err := m.ListDirectory(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			kind := "f"
			if entry.IsDir {
				kind = "d"
			}
			fmt.Printf("%s %10d %s\n", kind, entry.Size, entry.Name)
		}
		return nil
	},
}

var fsRmRecursive bool

var fsRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := fileManager()
		if err != nil {
			return err
		}
		if info, err := m.GetInfo(args[0]); err == nil && info.IsDir {
			return m.DeleteDirectory(args[0], fsRmRecursive)
		}
		return m.DeleteFile(args[0])
	},
}

var fsCpCmd = &cobra.Command{
	Use:   "cp <src> <dst>",
	Short: "Copy a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := fileManager()
		if err != nil {
			return err
		}
		return m.CopyFile(args[0], args[1])
	},
}

var fsMvCmd = &cobra.Command{
	Use:   "mv <src> <dst>",
	Short: "Move a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := fileManager()
		if err != nil {
			return err
		}
		return m.MoveFile(args[0], args[1])
	},
}

func init() {
	fsWriteCmd.Flags().BoolVarP(&fsWriteAppend, "append", "a", false, "Append instead of overwrite")
	fsRmCmd.Flags().BoolVarP(&fsRmRecursive, "recursive", "r", false, "Delete directories recursively")

	fsCmd.AddCommand(fsCatCmd)
	fsCmd.AddCommand(fsWriteCmd)
	fsCmd.AddCommand(fsLsCmd)
	fsCmd.AddCommand(fsRmCmd)
	fsCmd.AddCommand(fsCpCmd)
	fsCmd.AddCommand(fsMvCmd)
}
