package codec

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/taskvault/taskvault/types"
)

// EncodeTask serializes a task to its document form. Encoding is a pure
// function of the task's field values.
func EncodeTask(t types.Task) ([]byte, error) {
	var w fieldWriter

	w.field(FieldID, t.ID)
	w.field(FieldTitle, t.Title)
	w.field(FieldStatus, string(t.Status))
	if t.Project != "" {
		w.field(FieldProject, t.Project)
	}
	if t.Context != "" {
		w.field(FieldContext, t.Context)
	}
	if t.Priority != "" {
		w.field(FieldPriority, string(t.Priority))
	}
	if !t.Due.IsZero() {
		w.field(FieldDue, t.Due.UTC().Format(dateFormat))
	}
	if !t.Defer.IsZero() {
		w.field(FieldDefer, t.Defer.UTC().Format(dateFormat))
	}
	if t.Flagged {
		w.field(FieldFlagged, "true")
	}
	if t.Effort > 0 {
		w.field(FieldEffort, strconv.Itoa(t.Effort))
	}
	w.field(FieldCreated, t.CreatedAt.UTC().Format(timestampFormat))
	w.field(FieldModified, t.UpdatedAt.UTC().Format(timestampFormat))
	if len(t.Positions) > 0 {
		value, err := flowYAML(t.Positions)
		if err != nil {
			return nil, fmt.Errorf("encoding positions: %w", err)
		}
		w.field(FieldPositions, value)
	}
	for _, f := range t.Extra {
		w.field(f.Key, f.Value)
	}
	if w.err != nil {
		return nil, w.err
	}

	w.b.WriteString("\n")
	w.b.WriteString(t.Notes)
	return []byte(w.b.String()), nil
}

// DecodeTask parses a task document. Malformed input returns a typed
// *types.DecodeError; it never panics.
func DecodeTask(content []byte) (types.Task, error) {
	lines, body := splitDocument(content)
	h, err := parseHeader(lines)
	if err != nil {
		return types.Task{}, err
	}

	var t types.Task
	t.Notes = body

	id, ok := h.take(FieldID)
	if !ok || id == "" {
		return types.Task{}, missingField(FieldID)
	}
	t.ID = id

	title, ok := h.take(FieldTitle)
	if !ok || title == "" {
		return types.Task{}, missingField(FieldTitle)
	}
	t.Title = title

	status, ok := h.take(FieldStatus)
	if !ok {
		return types.Task{}, missingField(FieldStatus)
	}
	t.Status = types.Status(status)
	if !t.Status.Valid() {
		return types.Task{}, badValue(FieldStatus, fmt.Errorf("unknown status %q", status))
	}

	if v, ok := h.take(FieldProject); ok {
		t.Project = v
	}
	if v, ok := h.take(FieldContext); ok {
		t.Context = v
	}
	if v, ok := h.take(FieldPriority); ok {
		t.Priority = types.Priority(v)
		if !t.Priority.Valid() {
			return types.Task{}, badValue(FieldPriority, fmt.Errorf("unknown priority %q", v))
		}
	}
	if v, ok := h.take(FieldDue); ok {
		if t.Due, err = parseDate(FieldDue, v); err != nil {
			return types.Task{}, err
		}
	}
	if v, ok := h.take(FieldDefer); ok {
		if t.Defer, err = parseDate(FieldDefer, v); err != nil {
			return types.Task{}, err
		}
	}
	if v, ok := h.take(FieldFlagged); ok {
		switch v {
		case "true":
			t.Flagged = true
		case "false":
			t.Flagged = false
		default:
			return types.Task{}, badValue(FieldFlagged, fmt.Errorf("expected true or false, got %q", v))
		}
	}
	if v, ok := h.take(FieldEffort); ok {
		effort, convErr := strconv.Atoi(v)
		if convErr != nil || effort < 0 {
			return types.Task{}, badValue(FieldEffort, fmt.Errorf("expected non-negative minutes, got %q", v))
		}
		t.Effort = effort
	}

	created, ok := h.take(FieldCreated)
	if !ok {
		return types.Task{}, missingField(FieldCreated)
	}
	if t.CreatedAt, err = parseTimestamp(FieldCreated, created); err != nil {
		return types.Task{}, err
	}

	modified, ok := h.take(FieldModified)
	if !ok {
		return types.Task{}, missingField(FieldModified)
	}
	if t.UpdatedAt, err = parseTimestamp(FieldModified, modified); err != nil {
		return types.Task{}, err
	}

	if v, ok := h.take(FieldPositions); ok {
		positions := make(map[string]types.Position)
		if err := yaml.Unmarshal([]byte(v), &positions); err != nil {
			return types.Task{}, badValue(FieldPositions, err)
		}
		t.Positions = positions
	}

	// Whatever remains is from a version of the program we don't know
	// about. Keep it, in order, for the next encode.
	if len(h.fields) > 0 {
		t.Extra = h.fields
	}

	return t, nil
}
