package types

import "strconv"

// Filter field names. These are the task attributes a filter clause may
// match against.
const (
	FieldStatus   = "status"
	FieldProject  = "project"
	FieldContext  = "context"
	FieldPriority = "priority"
	FieldFlagged  = "flagged"
)

// FilterClause matches one task field against a set of acceptable values.
// A clause with multiple values has IN semantics: any one value matching
// satisfies the clause.
type FilterClause struct {
	Field  string   `yaml:"field"`
	Values []string `yaml:"values"`
}

// Filter is a conjunction of clauses evaluated against a task's current
// attribute values. Evaluation is a pure function; there is no cached
// membership, so it must stay cheap enough to re-run per query.
type Filter struct {
	Clauses []FilterClause `yaml:"clauses"`
}

// Match reports whether the task satisfies every clause.
func (f Filter) Match(t Task) bool {
	for _, c := range f.Clauses {
		if !c.match(t) {
			return false
		}
	}
	return true
}

func (c FilterClause) match(t Task) bool {
	var got string
	switch c.Field {
	case FieldStatus:
		got = string(t.Status)
	case FieldProject:
		got = t.Project
	case FieldContext:
		got = t.Context
	case FieldPriority:
		got = string(t.Priority)
	case FieldFlagged:
		got = strconv.FormatBool(t.Flagged)
	default:
		// Unknown field never matches; a filter written by a newer
		// version should not silently match everything.
		return false
	}
	for _, v := range c.Values {
		if got == v {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the filter.
func (f Filter) Clone() Filter {
	if f.Clauses == nil {
		return f
	}
	out := Filter{Clauses: make([]FilterClause, len(f.Clauses))}
	for i, c := range f.Clauses {
		out.Clauses[i] = FilterClause{Field: c.Field, Values: append([]string(nil), c.Values...)}
	}
	return out
}

// Empty reports whether the filter has no clauses (matches everything).
func (f Filter) Empty() bool {
	return len(f.Clauses) == 0
}

// ByStatus builds a filter matching any of the given statuses.
func ByStatus(statuses ...Status) Filter {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return Filter{Clauses: []FilterClause{{Field: FieldStatus, Values: values}}}
}

// ByContext builds a filter matching a single context name.
func ByContext(name string) Filter {
	return Filter{Clauses: []FilterClause{{Field: FieldContext, Values: []string{name}}}}
}

// ByProject builds a filter matching a single project name.
func ByProject(name string) Filter {
	return Filter{Clauses: []FilterClause{{Field: FieldProject, Values: []string{name}}}}
}
