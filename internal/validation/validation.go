// Package validation holds the entity-level consistency checks applied
// before a mutation is accepted into the store.
package validation

import (
	"fmt"
	"strings"

	"github.com/taskvault/taskvault/types"
)

// ValidateTask checks a task for internal consistency. It is applied on
// every upsert, before the store touches its cache.
func ValidateTask(t types.Task) error {
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title cannot be empty")
	}
	if err := singleLine("title", t.Title); err != nil {
		return err
	}
	if err := singleLine("project", t.Project); err != nil {
		return err
	}
	if err := singleLine("context", t.Context); err != nil {
		return err
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.Effort < 0 {
		return fmt.Errorf("effort cannot be negative: %d", t.Effort)
	}
	return validateExtra(t.Extra)
}

// singleLine rejects values that cannot be carried on one header line.
// A line break inside a header value would turn the remainder into
// separate header fields on the next decode, changing the entity.
func singleLine(name, value string) error {
	if strings.ContainsAny(value, "\n\r") {
		return fmt.Errorf("%s cannot contain line breaks", name)
	}
	return nil
}

func validateExtra(extra []types.ExtraField) error {
	for _, f := range extra {
		if strings.TrimSpace(f.Key) == "" {
			return fmt.Errorf("extra field name cannot be empty")
		}
		if strings.ContainsAny(f.Key, "\n\r:") {
			return fmt.Errorf("invalid extra field name %q", f.Key)
		}
		if err := singleLine(fmt.Sprintf("extra field %q", f.Key), f.Value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBoard checks a board for internal consistency.
func ValidateBoard(b types.Board) error {
	if b.ID == "" {
		return fmt.Errorf("board ID cannot be empty")
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("board name cannot be empty")
	}
	if err := singleLine("name", b.Name); err != nil {
		return err
	}
	if !b.Type.Valid() {
		return fmt.Errorf("invalid board type %q", b.Type)
	}
	if !b.Layout.Valid() {
		return fmt.Errorf("invalid layout mode %q", b.Layout)
	}
	for _, c := range b.Filter.Clauses {
		if err := validateClause(c); err != nil {
			return err
		}
	}
	return validateExtra(b.Extra)
}

func validateClause(c types.FilterClause) error {
	switch c.Field {
	case types.FieldStatus, types.FieldProject, types.FieldContext,
		types.FieldPriority, types.FieldFlagged:
	default:
		return fmt.Errorf("unknown filter field %q", c.Field)
	}
	if len(c.Values) == 0 {
		return fmt.Errorf("filter clause for %q has no values", c.Field)
	}
	return nil
}
