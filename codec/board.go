package codec

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/taskvault/taskvault/types"
)

// EncodeBoard serializes a board to its document form. Boards have no
// free-text body; the document is all header.
func EncodeBoard(b types.Board) ([]byte, error) {
	var w fieldWriter

	w.field(FieldID, b.ID)
	w.field(FieldBoard, string(b.Type))
	w.field(FieldName, b.Name)
	w.field(FieldLayout, string(b.Layout))
	if len(b.Columns) > 0 {
		value, err := flowYAML(b.Columns)
		if err != nil {
			return nil, fmt.Errorf("encoding columns: %w", err)
		}
		w.field(FieldColumns, value)
	}
	if len(b.Sections) > 0 {
		value, err := flowYAML(b.Sections)
		if err != nil {
			return nil, fmt.Errorf("encoding sections: %w", err)
		}
		w.field(FieldSections, value)
	}
	if !b.Filter.Empty() {
		value, err := flowYAML(b.Filter)
		if err != nil {
			return nil, fmt.Errorf("encoding filter: %w", err)
		}
		w.field(FieldFilter, value)
	}
	w.field(FieldCreated, b.CreatedAt.UTC().Format(timestampFormat))
	w.field(FieldModified, b.UpdatedAt.UTC().Format(timestampFormat))
	for _, f := range b.Extra {
		w.field(f.Key, f.Value)
	}
	if w.err != nil {
		return nil, w.err
	}

	w.b.WriteString("\n")
	return []byte(w.b.String()), nil
}

// DecodeBoard parses a board document.
func DecodeBoard(content []byte) (types.Board, error) {
	lines, _ := splitDocument(content)
	h, err := parseHeader(lines)
	if err != nil {
		return types.Board{}, err
	}

	var b types.Board

	id, ok := h.take(FieldID)
	if !ok || id == "" {
		return types.Board{}, missingField(FieldID)
	}
	b.ID = id

	boardType, ok := h.take(FieldBoard)
	if !ok {
		return types.Board{}, missingField(FieldBoard)
	}
	b.Type = types.BoardType(boardType)
	if !b.Type.Valid() {
		return types.Board{}, badValue(FieldBoard, fmt.Errorf("unknown board type %q", boardType))
	}

	name, ok := h.take(FieldName)
	if !ok || name == "" {
		return types.Board{}, missingField(FieldName)
	}
	b.Name = name

	layout, ok := h.take(FieldLayout)
	if !ok {
		return types.Board{}, missingField(FieldLayout)
	}
	b.Layout = types.LayoutMode(layout)
	if !b.Layout.Valid() {
		return types.Board{}, badValue(FieldLayout, fmt.Errorf("unknown layout %q", layout))
	}

	if v, ok := h.take(FieldColumns); ok {
		if err := yaml.Unmarshal([]byte(v), &b.Columns); err != nil {
			return types.Board{}, badValue(FieldColumns, err)
		}
	}
	if v, ok := h.take(FieldSections); ok {
		if err := yaml.Unmarshal([]byte(v), &b.Sections); err != nil {
			return types.Board{}, badValue(FieldSections, err)
		}
	}
	if v, ok := h.take(FieldFilter); ok {
		if err := yaml.Unmarshal([]byte(v), &b.Filter); err != nil {
			return types.Board{}, badValue(FieldFilter, err)
		}
	}

	created, ok := h.take(FieldCreated)
	if !ok {
		return types.Board{}, missingField(FieldCreated)
	}
	if b.CreatedAt, err = parseTimestamp(FieldCreated, created); err != nil {
		return types.Board{}, err
	}

	modified, ok := h.take(FieldModified)
	if !ok {
		return types.Board{}, missingField(FieldModified)
	}
	if b.UpdatedAt, err = parseTimestamp(FieldModified, modified); err != nil {
		return types.Board{}, err
	}

	if len(h.fields) > 0 {
		b.Extra = h.fields
	}

	return b, nil
}
