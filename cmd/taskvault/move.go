package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/types"
)

var (
	moveStatus  string
	moveContext string
	moveProject string
	movePrio    string
)

var moveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "Edit a task's workflow metadata",
	Long: `Change a task's status, context, project, or priority. Boards
are filters, so moving a task onto a board is exactly this: editing the
metadata until it matches.

Examples:
  taskvault move 4f1c --status next-action
  taskvault move 4f1c --context office --priority high`,
	Args: cobra.ExactArgs(1),
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
		if moveStatus != "" {
			task.Status = types.Status(moveStatus)
		}
		if cmd.Flags().Changed("context") {
			task.Context = moveContext
		}
		if cmd.Flags().Changed("project") {
			task.Project = moveProject
		}
		if cmd.Flags().Changed("priority") {
			task.Priority = types.Priority(movePrio)
		}
		if _, err := eng.Store().Upsert(task); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		fmt.Printf("Updated %s: %s\n", shortID(task.ID), task.Title)
		return nil
	},
}

func init() {
	moveCmd.Flags().StringVar(&moveStatus, "status", "", "New status")
	moveCmd.Flags().StringVar(&moveContext, "context", "", "New context (empty clears it)")
	moveCmd.Flags().StringVar(&moveProject, "project", "", "New project (empty clears it)")
	moveCmd.Flags().StringVar(&movePrio, "priority", "", "New priority (empty clears it)")

	rootCmd.AddCommand(moveCmd)
}
