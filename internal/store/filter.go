package store

import (
	"slices"
	"sort"
	"strings"

	"records-rag/internal/models"
)

// Filter is a metadata predicate: either "Field's value is in Values" or,
// when Or is set, the disjunction of its members.
type Filter struct {
	Field  string
	Values []string
	Or     []*Filter
}

// In builds a single-field membership filter.
func In(field string, values ...string) *Filter {
	return &Filter{Field: field, Values: values}
}

// Match reports whether md satisfies f. A nil filter matches everything.
func (f *Filter) Match(md models.Metadata) bool {
	if f == nil {
		return true
	}
	if len(f.Or) > 0 {
		for _, sub := range f.Or {
			if sub.Match(md) {
				return true
			}
		}
		return false
	}
	v, ok := md[f.Field]
	return ok && slices.Contains(f.Values, v)
}

// Clauses flattens f into (field, values) membership clauses whose union
// is f.
func (f *Filter) Clauses() []*Filter {
	if f == nil {
		return nil
	}
	if len(f.Or) == 0 {
		return []*Filter{f}
	}
	var out []*Filter
	for _, sub := range f.Or {
		out = append(out, sub.Clauses()...)
	}
	return out
}

// BuildFilter turns named field -> value lists into a filter. No populated
// field gives nil, one gives a single membership filter, several give
// their disjunction. Fields are visited in sorted order.
func BuildFilter(fields map[string][]string) *Filter {
	names := make([]string, 0, len(fields))
	for name, values := range fields {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		return nil
	case 1:
		return In(names[0], fields[names[0]]...)
	}
	or := make([]*Filter, len(names))
	for i, name := range names {
		or[i] = In(name, fields[name]...)
	}
	return &Filter{Or: or}
}

// SplitValues splits a comma separated parameter into trimmed values.
func SplitValues(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
