package catalog

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const banner = "-- =======================================\n"

// RenderSQL renders the table section followed by the routine section.
func RenderSQL(c *Catalog) []byte {
	sorted := c.Sorted()

	var buf bytes.Buffer
	for _, t := range sorted.Tables {
		writeTable(&buf, t)
	}

	buf.WriteString(banner)
	buf.WriteString("-- STORED PROCEDURES AND FUNCTIONS\n")
	buf.WriteString(banner)
	buf.WriteString("\n")

	for _, r := range sorted.Routines {
		writeRoutine(&buf, r)
	}
	return buf.Bytes()
}

func writeTable(buf *bytes.Buffer, t Table) {
	name := t.QualifiedName()

	buf.WriteString(banner)
	fmt.Fprintf(buf, "-- CREATE TABLE %s\n", name)
	buf.WriteString(banner)
	fmt.Fprintf(buf, "CREATE TABLE %s (\n", name)

	lines := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		lines = append(lines, columnLine(col))
	}
	buf.WriteString(strings.Join(lines, ",\n"))

	if len(t.PrimaryKey) > 0 {
		fmt.Fprintf(buf, ",\n    PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", "))
	}
	for _, fk := range t.ForeignKeys {
		fmt.Fprintf(buf, ",\n    FOREIGN KEY (%s) REFERENCES %s.%s(%s)", fk.Column, fk.RefSchema, fk.RefTable, fk.RefColumn)
	}

	buf.WriteString("\n);\n\n")
}

func columnLine(col Column) string {
	line := "    " + col.Name + " " + col.DataType
	if col.Default != nil && *col.Default != "" {
		line += " DEFAULT " + *col.Default
	}
	if !col.Nullable {
		line += " NOT NULL"
	}
	return line
}

func writeRoutine(buf *bytes.Buffer, r Routine) {
	returns := "none"
	if r.ReturnType != nil && *r.ReturnType != "" {
		returns = *r.ReturnType
	}

	fmt.Fprintf(buf, "-- %s.%s (%s)\n", r.Schema, r.Name, r.Kind.Label())
	fmt.Fprintf(buf, "-- Language: %s, Returns: %s\n", r.Language, returns)
	if r.Definition == nil {
		fmt.Fprintf(buf, "-- definition unavailable for %s(%s)\n\n", r.Name, r.Arguments)
		return
	}
	buf.WriteString(strings.TrimSpace(*r.Definition))
	buf.WriteString("\n\n")
}

// RenderYAML renders the sorted catalog as YAML.
func RenderYAML(c *Catalog) ([]byte, error) {
	data, err := yaml.Marshal(c.Sorted())
	if err != nil {
		return nil, fmt.Errorf("marshaling catalog: %w", err)
	}
	return data, nil
}
