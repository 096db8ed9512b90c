package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the read-only subset of *pgx.Conn used for introspection.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres introspects a Postgres catalog through information_schema and pg_proc.
type Postgres struct {
	db             Querier
	excludeSchemas []string
}

// NewPostgres creates an introspector that skips excludeSchemas.
func NewPostgres(db Querier, excludeSchemas []string) *Postgres {
	if excludeSchemas == nil {
		excludeSchemas = []string{}
	}
	return &Postgres{db: db, excludeSchemas: excludeSchemas}
}

// Introspect reads every base table and routine outside the excluded schemas.
func (p *Postgres) Introspect(ctx context.Context) (*Catalog, error) {
	tables, err := p.tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}

	tableMap := make(map[string]*Table, len(tables))
	for i := range tables {
		tableMap[tables[i].QualifiedName()] = &tables[i]
	}

	if err := p.columns(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	if err := p.primaryKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("querying primary keys: %w", err)
	}
	if err := p.foreignKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}

	routines, err := p.routines(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}

	return &Catalog{Tables: tables, Routines: routines}, nil
}

func (p *Postgres) tables(ctx context.Context) ([]Table, error) {
	query := `
		SELECT table_schema::text, table_name::text
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema <> ALL($1::text[])
		ORDER BY table_schema, table_name`

	rows, err := p.db.Query(ctx, query, p.excludeSchemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (p *Postgres) columns(ctx context.Context, tableMap map[string]*Table) error {
	query := `
		SELECT
			table_schema::text,
			table_name::text,
			column_name::text,
			data_type::text,
			is_nullable::text,
			column_default::text
		FROM information_schema.columns
		WHERE table_schema <> ALL($1::text[])
		ORDER BY table_schema, table_name, ordinal_position`

	rows, err := p.db.Query(ctx, query, p.excludeSchemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schemaName, tableName, colName, dataType, nullable string
			defaultVal                                         *string
		)
		if err := rows.Scan(&schemaName, &tableName, &colName, &dataType, &nullable, &defaultVal); err != nil {
			return err
		}

		// views also have columns
		t, ok := tableMap[schemaName+"."+tableName]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, Column{
			Name:     colName,
			DataType: dataType,
			Nullable: nullable == "YES",
			Default:  defaultVal,
		})
	}
	return rows.Err()
}

func (p *Postgres) primaryKeys(ctx context.Context, tableMap map[string]*Table) error {
	query := `
		SELECT tc.table_schema::text, tc.table_name::text, kcu.column_name::text
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		  AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema <> ALL($1::text[])
		ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position`

	rows, err := p.db.Query(ctx, query, p.excludeSchemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName, colName string
		if err := rows.Scan(&schemaName, &tableName, &colName); err != nil {
			return err
		}
		if t, ok := tableMap[schemaName+"."+tableName]; ok {
			t.PrimaryKey = append(t.PrimaryKey, colName)
		}
	}
	return rows.Err()
}

// foreignKeys pairs each referencing column with its referenced column by
// position, so composite keys yield one clause per column pair.
func (p *Postgres) foreignKeys(ctx context.Context, tableMap map[string]*Table) error {
	query := `
		SELECT
			kcu.table_schema::text,
			kcu.table_name::text,
			kcu.column_name::text,
			rkcu.table_schema::text AS ref_schema,
			rkcu.table_name::text AS ref_table,
			rkcu.column_name::text AS ref_column
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_schema = rc.constraint_schema
		  AND kcu.constraint_name = rc.constraint_name
		JOIN information_schema.key_column_usage rkcu
		  ON rkcu.constraint_schema = rc.unique_constraint_schema
		  AND rkcu.constraint_name = rc.unique_constraint_name
		  AND rkcu.ordinal_position = kcu.position_in_unique_constraint
		WHERE kcu.table_schema <> ALL($1::text[])
		ORDER BY kcu.table_schema, kcu.table_name, kcu.constraint_name, kcu.ordinal_position`

	rows, err := p.db.Query(ctx, query, p.excludeSchemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName string
		var fk ForeignKey
		if err := rows.Scan(&schemaName, &tableName, &fk.Column, &fk.RefSchema, &fk.RefTable, &fk.RefColumn); err != nil {
			return err
		}
		if t, ok := tableMap[schemaName+"."+tableName]; ok {
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
	}
	return rows.Err()
}

// routines skips pg_get_functiondef for aggregates, which it rejects.
func (p *Postgres) routines(ctx context.Context) ([]Routine, error) {
	query := `
		SELECT
			n.nspname::text,
			p.proname::text,
			pg_get_function_arguments(p.oid),
			pg_get_function_result(p.oid),
			l.lanname::text,
			p.prokind::text,
			CASE WHEN p.prokind = 'a' THEN NULL ELSE pg_get_functiondef(p.oid) END
		FROM pg_proc p
		JOIN pg_namespace n ON p.pronamespace = n.oid
		JOIN pg_language l ON p.prolang = l.oid
		WHERE n.nspname <> ALL($1::text[])
		ORDER BY n.nspname, p.proname, pg_get_function_arguments(p.oid)`

	rows, err := p.db.Query(ctx, query, p.excludeSchemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routines []Routine
	for rows.Next() {
		var r Routine
		var kind string
		if err := rows.Scan(&r.Schema, &r.Name, &r.Arguments, &r.ReturnType, &r.Language, &kind, &r.Definition); err != nil {
			return nil, err
		}
		r.Kind = RoutineKind(kind)
		routines = append(routines, r)
	}
	return routines, rows.Err()
}
