package engine

import (
	"fmt"

	"github.com/taskvault/taskvault/codec"
	"github.com/taskvault/taskvault/types"
)

// SkippedDocument records one document that failed to decode during
// bulk load. The file is left untouched for manual inspection.
type SkippedDocument struct {
	Path string
	Err  error
}

// LoadReport summarizes a bulk load.
type LoadReport struct {
	Tasks   int
	Boards  int
	Skipped []SkippedDocument
}

// LoadAll scans the active, archive, and boards trees, decodes every
// recognized document, and populates the store. Individual decode
// failures are collected into the report, never fatal to the load.
func (e *Engine) LoadAll() (LoadReport, error) {
	var report LoadReport

	entries, err := e.layoutMgr.Scan()
	if err != nil {
		return report, fmt.Errorf("failed to scan vault: %w", err)
	}

	for _, entry := range entries {
		content, err := e.layoutMgr.Read(entry.RelPath)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedDocument{Path: entry.RelPath, Err: err})
			continue
		}

		switch entry.Kind {
		case types.KindTask:
			t, err := codec.DecodeTask(content)
			if err != nil {
				report.Skipped = append(report.Skipped, SkippedDocument{Path: entry.RelPath, Err: err})
				e.logger.Warn("skipping undecodable document", "path", entry.RelPath, "error", err)
				continue
			}
			t.Lifecycle = entry.Lifecycle
			if err := e.taskStore.Load(t); err != nil {
				report.Skipped = append(report.Skipped, SkippedDocument{Path: entry.RelPath, Err: err})
				continue
			}
			e.trackPath(t.ID, entry.RelPath)
			report.Tasks++

		case types.KindBoard:
			b, err := codec.DecodeBoard(content)
			if err != nil {
				report.Skipped = append(report.Skipped, SkippedDocument{Path: entry.RelPath, Err: err})
				e.logger.Warn("skipping undecodable document", "path", entry.RelPath, "error", err)
				continue
			}
			if err := e.taskStore.LoadBoard(b); err != nil {
				report.Skipped = append(report.Skipped, SkippedDocument{Path: entry.RelPath, Err: err})
				continue
			}
			e.trackPath(b.ID, entry.RelPath)
			report.Boards++
		}
	}

	e.logger.Info("vault loaded",
		"tasks", report.Tasks,
		"boards", report.Boards,
		"skipped", len(report.Skipped))
	return report, nil
}

func (e *Engine) trackPath(id, rel string) {
	e.pathMu.Lock()
	e.paths[id] = rel
	e.pathMu.Unlock()
}
