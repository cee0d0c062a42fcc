package validation

import (
	"strings"
	"testing"

	"github.com/taskvault/taskvault/types"
)

func validTask() types.Task {
	return types.Task{
		ID:     "11111111-1111-4111-8111-111111111111",
		Title:  "A task",
		Status: types.StatusInbox,
	}
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Task)
		wantErr string
	}{
		{"valid minimal task", func(*types.Task) {}, ""},
		{"valid with optionals", func(x *types.Task) {
			x.Priority = types.PriorityMedium
			x.Effort = 30
		}, ""},
		{"missing ID", func(x *types.Task) { x.ID = "" }, "ID"},
		{"blank title", func(x *types.Task) { x.Title = "   " }, "title"},
		{"unknown status", func(x *types.Task) { x.Status = "paused" }, "status"},
		{"unknown priority", func(x *types.Task) { x.Priority = "urgent" }, "priority"},
		{"negative effort", func(x *types.Task) { x.Effort = -1 }, "effort"},
		{"newline in title", func(x *types.Task) {
			x.Title = "call mom\nstatus: completed"
		}, "line break"},
		{"carriage return in project", func(x *types.Task) { x.Project = "a\rb" }, "line break"},
		{"newline in context", func(x *types.Task) { x.Context = "a\nb" }, "line break"},
		{"newline in extra value", func(x *types.Task) {
			x.Extra = []types.ExtraField{{Key: "x-note", Value: "a\nb"}}
		}, "line break"},
		{"colon in extra key", func(x *types.Task) {
			x.Extra = []types.ExtraField{{Key: "x:note", Value: "a"}}
		}, "extra field name"},
		{"empty extra key", func(x *types.Task) {
			x.Extra = []types.ExtraField{{Key: " ", Value: "a"}}
		}, "extra field name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(&task)
			err := ValidateTask(task)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBoard(t *testing.T) {
	valid := types.Board{
		ID:     "77777777-7777-4777-8777-777777777777",
		Name:   "Errands",
		Type:   types.BoardCustom,
		Layout: types.LayoutFreeform,
		Filter: types.ByContext("errands"),
	}

	if err := ValidateBoard(valid); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	t.Run("bad filter field", func(t *testing.T) {
		b := valid
		b.Filter = types.Filter{Clauses: []types.FilterClause{{Field: "energy", Values: []string{"low"}}}}
		if err := ValidateBoard(b); err == nil {
			t.Error("expected an error for an unknown filter field")
		}
	})

	t.Run("empty clause values", func(t *testing.T) {
		b := valid
		b.Filter = types.Filter{Clauses: []types.FilterClause{{Field: types.FieldContext}}}
		if err := ValidateBoard(b); err == nil {
			t.Error("expected an error for a clause without values")
		}
	})

	t.Run("bad layout", func(t *testing.T) {
		b := valid
		b.Layout = "circular"
		if err := ValidateBoard(b); err == nil {
			t.Error("expected an error for an unknown layout")
		}
	})

	t.Run("newline in name", func(t *testing.T) {
		b := valid
		b.Name = "two\nlines"
		if err := ValidateBoard(b); err == nil {
			t.Error("expected an error for a multi-line name")
		}
	})
}
