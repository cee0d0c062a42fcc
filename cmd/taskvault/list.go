package main

import (
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/types"
)

var (
	listStatus   string
	listContext  string
	listProject  string
	listFlagged  bool
	listArchived bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks matching the given filters. Completed and archived
tasks are hidden unless asked for.

Examples:
  taskvault list
  taskvault list --status next-action --context errands
  taskvault list --archived`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeVault, err := openVault()
		if err != nil {
			return err
		}
		defer closeVault()

		var clauses []types.FilterClause
		if listStatus != "" {
			clauses = append(clauses, types.FilterClause{Field: types.FieldStatus, Values: []string{listStatus}})
		}
		if listContext != "" {
			clauses = append(clauses, types.FilterClause{Field: types.FieldContext, Values: []string{listContext}})
		}
		if listProject != "" {
			clauses = append(clauses, types.FilterClause{Field: types.FieldProject, Values: []string{listProject}})
		}
		if listFlagged {
			clauses = append(clauses, types.FilterClause{Field: types.FieldFlagged, Values: []string{"true"}})
		}

		var tasks []types.Task
		for _, t := range eng.Store().Query(types.Filter{Clauses: clauses}) {
			if listArchived != (t.Lifecycle == types.LifecycleArchived) {
				continue
			}
			if !listArchived && listStatus == "" && t.Completed() {
				continue
			}
			tasks = append(tasks, t)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		printTasks(w, tasks)
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&listContext, "context", "", "Filter by context")
	listCmd.Flags().StringVar(&listProject, "project", "", "Filter by project")
	listCmd.Flags().BoolVar(&listFlagged, "flagged", false, "Only flagged tasks")
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "Show archived tasks instead")

	rootCmd.AddCommand(listCmd)
}
