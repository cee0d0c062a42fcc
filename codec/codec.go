// Package codec maps entities to and from their on-disk document form.
//
// A document is a header block of "key: value" lines, a blank line, and a
// free-text body. Optional fields that are unset are omitted from the
// header rather than written as null markers, keeping documents minimal
// and diff-friendly. Unknown header fields survive a decode/encode round
// trip unchanged, so documents written by other versions of the program
// are never stripped.
package codec

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskvault/taskvault/types"
)

// Header field names shared by task and board documents.
const (
	FieldID       = "id"
	FieldTitle    = "title"
	FieldCreated  = "created"
	FieldModified = "modified"
)

// Task-specific header field names.
const (
	FieldStatus    = "status"
	FieldProject   = "project"
	FieldContext   = "context"
	FieldPriority  = "priority"
	FieldDue       = "due"
	FieldDefer     = "defer"
	FieldFlagged   = "flagged"
	FieldEffort    = "effort"
	FieldPositions = "positions"
)

// Board-specific header field names.
const (
	FieldBoard    = "board"
	FieldName     = "name"
	FieldLayout   = "layout"
	FieldColumns  = "columns"
	FieldSections = "sections"
	FieldFilter   = "filter"
)

// Canonical date formats. Timestamps are RFC3339 in UTC; due/defer dates
// are date-only. Anything else is rejected, never guessed at.
const (
	timestampFormat = time.RFC3339
	dateFormat      = "2006-01-02"
)

// header is an ordered list of parsed key/value pairs.
type header struct {
	fields []types.ExtraField
}

func (h *header) add(key, value string) {
	h.fields = append(h.fields, types.ExtraField{Key: key, Value: value})
}

// take removes and returns the first field with the given key.
func (h *header) take(key string) (string, bool) {
	for i, f := range h.fields {
		if f.Key == key {
			h.fields = append(h.fields[:i], h.fields[i+1:]...)
			return f.Value, true
		}
	}
	return "", false
}

// splitDocument separates the header block from the body at the first
// blank line. A document with no blank line is all header.
func splitDocument(content []byte) (headerLines []string, body string) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		headerLines = strings.Split(text[:idx], "\n")
		body = text[idx+2:]
	} else {
		headerLines = strings.Split(text, "\n")
	}
	// A trailing newline on the header block leaves one empty line.
	for len(headerLines) > 0 && headerLines[len(headerLines)-1] == "" {
		headerLines = headerLines[:len(headerLines)-1]
	}
	return headerLines, body
}

// parseHeader parses key/value lines into an ordered header.
func parseHeader(lines []string) (*header, error) {
	h := &header{}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			return nil, &types.DecodeError{Kind: types.MalformedHeader, Line: i + 1,
				Err: fmt.Errorf("expected key: value, got %q", line)}
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			return nil, &types.DecodeError{Kind: types.MalformedHeader, Line: i + 1,
				Err: fmt.Errorf("empty field name in %q", line)}
		}
		// Only the single separator space after the colon is syntax;
		// any further whitespace belongs to the value.
		value := strings.TrimPrefix(line[idx+1:], " ")
		h.add(key, value)
	}
	return h, nil
}

// fieldWriter accumulates header lines, holding the first error. A line
// break inside a value would shift everything after it into separate
// header fields on the next decode, so values that cannot be carried on
// one line are rejected here even though validation catches them first.
type fieldWriter struct {
	b   strings.Builder
	err error
}

func (w *fieldWriter) field(key, value string) {
	if w.err != nil {
		return
	}
	if strings.ContainsAny(key, "\n\r:") {
		w.err = badValue(key, fmt.Errorf("field name contains a reserved character"))
		return
	}
	if strings.ContainsAny(value, "\n\r") {
		w.err = badValue(key, fmt.Errorf("value contains a line break"))
		return
	}
	w.b.WriteString(key)
	w.b.WriteString(": ")
	w.b.WriteString(value)
	w.b.WriteString("\n")
}

// flowYAML renders v as a single-line YAML flow value, suitable for a
// header field. Field order inside the value is not significant.
func flowYAML(v interface{}) (string, error) {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return "", err
	}
	setFlowStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func setFlowStyle(n *yaml.Node) {
	n.Style = yaml.FlowStyle
	for _, c := range n.Content {
		setFlowStyle(c)
	}
}

func parseTimestamp(field, value string) (time.Time, error) {
	t, err := time.Parse(timestampFormat, value)
	if err != nil {
		return time.Time{}, &types.DecodeError{Kind: types.AmbiguousDate, Field: field, Err: err}
	}
	return t.UTC(), nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateFormat, value)
	if err != nil {
		return time.Time{}, &types.DecodeError{Kind: types.AmbiguousDate, Field: field, Err: err}
	}
	return t.UTC(), nil
}

func missingField(name string) error {
	return &types.DecodeError{Kind: types.MissingRequiredField, Field: name}
}

func badValue(field string, err error) error {
	return &types.DecodeError{Kind: types.BadFieldValue, Field: field, Err: err}
}
