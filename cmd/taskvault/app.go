package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"

	"github.com/taskvault/taskvault/engine"
	"github.com/taskvault/taskvault/types"
)

// openVault opens the engine for a one-shot command: no watcher, load
// everything, and hand back a close function that flushes.
func openVault(opts ...engine.Option) (*engine.Engine, func() error, error) {
	dir := viper.GetString("vault")
	eng, err := engine.Open(dir, append([]engine.Option{engine.WithoutWatcher()}, opts...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vault at %s: %w", dir, err)
	}
	if _, err := eng.LoadAll(); err != nil {
		_ = eng.Close(context.Background())
		return nil, nil, fmt.Errorf("failed to load vault: %w", err)
	}
	closeFn := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return eng.Close(ctx)
	}
	return eng, closeFn, nil
}

// resolveTask finds a task by ID prefix, falling back to an exact title
// match. A bare prefix is enough as long as it is unambiguous.
func resolveTask(eng *engine.Engine, ref string) (types.Task, error) {
	var matches []types.Task
	for _, t := range eng.Store().Tasks() {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	if len(matches) == 0 {
		for _, t := range eng.Store().Tasks() {
			if strings.EqualFold(t.Title, ref) {
				matches = append(matches, t)
			}
		}
	}
	switch len(matches) {
	case 0:
		return types.Task{}, fmt.Errorf("no task matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = shortID(m.ID)
		}
		return types.Task{}, fmt.Errorf("%q is ambiguous: %s", ref, strings.Join(ids, ", "))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printTasks renders tasks as an aligned table, newest first.
func printTasks(w *tabwriter.Writer, tasks []types.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
	})
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tPROJECT\tCONTEXT\tDUE")
	for _, t := range tasks {
		due := ""
		if !t.Due.IsZero() {
			due = t.Due.Format("2006-01-02")
		}
		title := t.Title
		if t.Flagged {
			title = "* " + title
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(t.ID), t.Status, title, t.Project, t.Context, due)
	}
}
