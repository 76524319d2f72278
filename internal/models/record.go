package models

import (
	"fmt"
	"maps"
	"strings"
)

// Metadata is the projection of a record's fields, keyed by field name.
type Metadata map[string]string

// ID returns the record identifier.
func (m Metadata) ID() string {
	return m[FieldID]
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

// Document is a piece of text together with the metadata of the record it
// came from.
type Document struct {
	Text     string
	Metadata Metadata
}

// Query describes which records to list from the record store.
type Query struct {
	Entity  string `yaml:"entity"`
	Where   string `yaml:"where"`
	OrderBy string `yaml:"order_by"`
	Limit   int    `yaml:"limit"`
}

// String renders the query as SOQL selecting only the Id column.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT Id")
	if q.Entity != "" {
		b.WriteString(" FROM " + q.Entity)
	}
	if q.Where != "" {
		b.WriteString(" WHERE " + q.Where)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY " + q.OrderBy)
	}
	if q.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	return b.String()
}

// PromptResponse is a chatbot answer. Source lists the download links of
// the files used as context, one per line.
type PromptResponse struct {
	Query   string `json:"query"`
	Source  string `json:"source"`
	Content string `json:"content"`
}
