package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/types"
)

var (
	addProject string
	addContext string
	addPrio    string
	addDue     string
	addDefer   string
	addFlagged bool
	addEffort  int
	addNotes   string
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Capture a new task into the inbox",
	Long: `Add a new task. New tasks land in the inbox unless metadata
says otherwise; assigning a context or project also materializes the
matching board the first time the name is seen.

Examples:
  taskvault add "Call the dentist"
  taskvault add "Buy stamps" --context errands --due 2026-09-15
  taskvault add "Draft report" --project reporting --priority high --effort 90`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := types.Task{
			Title:   args[0],
			Status:  types.StatusInbox,
			Project: addProject,
			Context: addContext,
			Flagged: addFlagged,
			Effort:  addEffort,
			Notes:   addNotes,
		}
		if addPrio != "" {
			task.Priority = types.Priority(addPrio)
		}
		var err error
		if task.Due, err = parseDateFlag(addDue); err != nil {
			return fmt.Errorf("invalid --due: %w", err)
		}
		if task.Defer, err = parseDateFlag(addDefer); err != nil {
			return fmt.Errorf("invalid --defer: %w", err)
		}

		eng, closeVault, err := openVault()
		if err != nil {
			return err
		}
		defer closeVault()

		stored, err := eng.Store().Upsert(task)
		if err != nil {
			return fmt.Errorf("failed to add task: %w", err)
		}
		fmt.Printf("Added %s: %s\n", shortID(stored.ID), stored.Title)
		return nil
	},
}

func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("use YYYY-MM-DD: %w", err)
	}
	return t.UTC(), nil
}

func init() {
	addCmd.Flags().StringVar(&addProject, "project", "", "Project name")
	addCmd.Flags().StringVar(&addContext, "context", "", "Context name")
	addCmd.Flags().StringVar(&addPrio, "priority", "", "Priority (low, medium, high)")
	addCmd.Flags().StringVar(&addDue, "due", "", "Due date (YYYY-MM-DD)")
	addCmd.Flags().StringVar(&addDefer, "defer", "", "Defer date (YYYY-MM-DD)")
	addCmd.Flags().BoolVar(&addFlagged, "flagged", false, "Flag the task")
	addCmd.Flags().IntVar(&addEffort, "effort", 0, "Effort estimate in minutes")
	addCmd.Flags().StringVar(&addNotes, "notes", "", "Free-text notes")

	rootCmd.AddCommand(addCmd)
}
