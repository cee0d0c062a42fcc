package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/engine"
)

var rotateRetention time.Duration

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Move old completed tasks into the archive set",
	Long: `Relocate completed tasks whose last modification is older than
the retention threshold from the active tree into the archive tree.
Archived tasks stay loaded and queryable; only their documents move.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeVault, err := openVault(engine.WithRetention(rotateRetention))
		if err != nil {
			return err
		}
		defer closeVault()

		report, err := eng.Rotate(time.Now())
		if err != nil {
			return fmt.Errorf("rotation failed: %w", err)
		}
		fmt.Printf("Archived %d of %d eligible documents\n", report.Moved, report.Eligible)
		return nil
	},
}

func init() {
	rotateCmd.Flags().DurationVar(&rotateRetention, "retention", engine.DefaultRetention,
		"How long completed tasks stay active (e.g. 720h)")

	rootCmd.AddCommand(rotateCmd)
}
