package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/types"
)

var completeCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeVault, err := openVault()
		if err != nil {
			return err
		}
		defer closeVault()

		task, err := resolveTask(eng, args[0])
		if err != nil {
			return err
		}
		task.Status = types.StatusCompleted
		if _, err := eng.Store().Upsert(task); err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		fmt.Printf("Completed %s: %s\n", shortID(task.ID), task.Title)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeVault, err := openVault()
		if err != nil {
			return err
		}
		defer closeVault()

		task, err := resolveTask(eng, args[0])
		if err != nil {
			return err
		}
		if err := eng.Store().Delete(task.ID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		fmt.Printf("Deleted %s: %s\n", shortID(task.ID), task.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(deleteCmd)
}
