// Package catalog reads table and routine metadata from a Postgres catalog
// and renders it as a DDL document.
package catalog

import (
	"context"
	"sort"
)

// Catalog is a snapshot of user tables and routines.
type Catalog struct {
	Tables   []Table   `yaml:"tables"`
	Routines []Routine `yaml:"routines"`
}

// Table describes one base table.
type Table struct {
	Schema      string       `yaml:"schema"`
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  []string     `yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
}

// QualifiedName returns schema.name.
func (t Table) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// Column is a table column. Columns are kept in ordinal position order.
type Column struct {
	Name     string  `yaml:"name"`
	DataType string  `yaml:"data_type"`
	Nullable bool    `yaml:"nullable"`
	Default  *string `yaml:"default,omitempty"`
}

// ForeignKey is one referencing column and the column it references.
type ForeignKey struct {
	Column    string `yaml:"column"`
	RefSchema string `yaml:"ref_schema"`
	RefTable  string `yaml:"ref_table"`
	RefColumn string `yaml:"ref_column"`
}

// RoutineKind is the pg_proc.prokind code.
type RoutineKind string

const (
	KindFunction  RoutineKind = "f"
	KindProcedure RoutineKind = "p"
	KindAggregate RoutineKind = "a"
	KindWindow    RoutineKind = "w"
)

// Label returns the display name of the kind, or UNKNOWN for unrecognized codes.
func (k RoutineKind) Label() string {
	switch k {
	case KindFunction:
		return "FUNCTION"
	case KindProcedure:
		return "PROCEDURE"
	case KindAggregate:
		return "AGGREGATE"
	case KindWindow:
		return "WINDOW"
	default:
		return "UNKNOWN"
	}
}

// Routine is a stored function, procedure, aggregate or window function.
// ReturnType is nil for procedures; Definition is nil when the engine cannot
// reconstruct the source, as for aggregates.
type Routine struct {
	Schema     string      `yaml:"schema"`
	Name       string      `yaml:"name"`
	Arguments  string      `yaml:"arguments"`
	ReturnType *string     `yaml:"return_type,omitempty"`
	Language   string      `yaml:"language"`
	Kind       RoutineKind `yaml:"kind"`
	Definition *string     `yaml:"definition,omitempty"`
}

// Introspector produces a catalog snapshot.
type Introspector interface {
	Introspect(ctx context.Context) (*Catalog, error)
}

// Sorted returns a copy ordered by schema then name. Overloaded routines are
// further ordered by argument signature. Column and key order is preserved.
func (c *Catalog) Sorted() *Catalog {
	out := &Catalog{
		Tables:   append([]Table(nil), c.Tables...),
		Routines: append([]Routine(nil), c.Routines...),
	}
	sort.SliceStable(out.Tables, func(i, j int) bool {
		a, b := out.Tables[i], out.Tables[j]
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		return a.Name < b.Name
	})
	sort.SliceStable(out.Routines, func(i, j int) bool {
		a, b := out.Routines[i], out.Routines[j]
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Arguments < b.Arguments
	})
	return out
}
