package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/conflict"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List unresolved conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeVault, err := openVault()
		if err != nil {
			return err
		}
		defer closeVault()

		pending := eng.PendingConflicts()
		if len(pending) == 0 {
			fmt.Println("No pending conflicts")
			return nil
		}
		for _, id := range pending {
			task, err := resolveTask(eng, id)
			if err != nil {
				fmt.Printf("%s\n", shortID(id))
				continue
			}
			fmt.Printf("%s  %s\n", shortID(id), task.Title)
		}
		return nil
	},
}

var resolveKeep string

var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a conflict by keeping one version",
	Long: `Settle a pending conflict. Neither choice destroys data: the
losing version stays on disk next to the document under a conflict
suffix.

Examples:
  taskvault conflicts resolve 4f1c --keep local
  taskvault conflicts resolve 4f1c --keep external`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var choice conflict.Choice
		switch resolveKeep {
		case "local":
			choice = conflict.KeepLocal
		case "external":
			choice = conflict.TakeExternal
		default:
			return fmt.Errorf("--keep must be local or external, got %q", resolveKeep)
		}

		eng, closeVault, err := openVault()
		if err != nil {
			return err
		}
		defer closeVault()

		task, err := resolveTask(eng, args[0])
		if err != nil {
			return err
		}
		if err := eng.ResolveConflict(task.ID, choice); err != nil {
			return fmt.Errorf("failed to resolve conflict: %w", err)
		}
		fmt.Printf("Resolved %s keeping the %s version\n", shortID(task.ID), resolveKeep)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveKeep, "keep", "local", "Which version to keep (local, external)")
	conflictsCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}
