package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskvault/taskvault/engine"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the engine and report external changes as they happen",
	Long: `Keep the vault open with the filesystem watcher running.
External edits are reloaded and reported; concurrent edits raise
conflicts that can be settled interactively later. Stop with Ctrl-C;
pending mutations are flushed before exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("vault")
		eng, err := engine.Open(dir)
		if err != nil {
			return fmt.Errorf("failed to open vault at %s: %w", dir, err)
		}
		report, err := eng.LoadAll()
		if err != nil {
			_ = eng.Close(context.Background())
			return fmt.Errorf("failed to load vault: %w", err)
		}
		fmt.Printf("Watching %s (%d tasks, %d boards)\n", dir, report.Tasks, report.Boards)
		for _, skipped := range report.Skipped {
			fmt.Printf("  skipped %s: %v\n", skipped.Path, skipped.Err)
		}

		events := eng.Store().Subscribe()
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				fmt.Printf("%s %s %s\n", time.Now().Format("15:04:05"), ev.Kind, shortID(ev.EntityID))
			case conflictEv := <-eng.Conflicts():
				fmt.Printf("CONFLICT %s %q: external version preserved at %s\n",
					shortID(conflictEv.EntityID), conflictEv.Local.Title, conflictEv.BackupPath)
			case notice := <-eng.Notices():
				fmt.Printf("NOTICE %s %s %s: %v\n",
					notice.Kind, shortID(notice.EntityID), notice.Path, notice.Err)
			case <-stop:
				fmt.Println("\nFlushing and closing")
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return eng.Close(ctx)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
