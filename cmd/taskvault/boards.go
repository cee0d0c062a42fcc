package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var boardsCmd = &cobra.Command{
	Use:   "boards [name]",
	Short: "List boards, or show the tasks on one",
	Long: `Without arguments, list every board. With a board name or ID
prefix, show the tasks currently matching that board's filter.
Membership is computed live from each task's metadata.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeVault, err := openVault()
		if err != nil {
			return err
		}
		defer closeVault()

		boards := eng.Store().Boards()
		sort.Slice(boards, func(i, j int) bool { return boards[i].Name < boards[j].Name })

		if len(args) == 0 {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tLAYOUT\tTASKS")
			for _, b := range boards {
				tasks, err := eng.Store().QueryBoard(b.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", shortID(b.ID), b.Name, b.Type, b.Layout, len(tasks))
			}
			return w.Flush()
		}

		ref := args[0]
		for _, b := range boards {
			if strings.EqualFold(b.Name, ref) || strings.HasPrefix(b.ID, ref) {
				tasks, err := eng.Store().QueryBoard(b.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%s (%s, %s layout)\n\n", b.Name, b.Type, b.Layout)
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				printTasks(w, tasks)
				return w.Flush()
			}
		}
		return fmt.Errorf("no board matches %q", ref)
	},
}

func init() {
	rootCmd.AddCommand(boardsCmd)
}
