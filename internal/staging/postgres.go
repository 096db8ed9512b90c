package staging

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/climadw/climadw/internal/database"
	"github.com/climadw/climadw/internal/weather"
)

// PostgresOpener begins staging sessions on a pgx connection.
type PostgresOpener struct {
	conn  *pgx.Conn
	table pgx.Identifier
}

// NewPostgresOpener targets table, given as schema.table.
func NewPostgresOpener(conn *pgx.Conn, table string) *PostgresOpener {
	return &PostgresOpener{conn: conn, table: database.QualifiedName(table)}
}

// Begin opens a transaction.
func (o *PostgresOpener) Begin(ctx context.Context) (Session, error) {
	tx, err := o.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresSession{tx: tx, table: o.table}, nil
}

type postgresSession struct {
	tx    pgx.Tx
	table pgx.Identifier
}

func (s *postgresSession) Truncate(ctx context.Context) error {
	_, err := s.tx.Exec(ctx, "TRUNCATE "+s.table.Sanitize())
	return err
}

func (s *postgresSession) InsertRow(ctx context.Context, obs weather.Observation) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (city, country, date, temp, conditions, description) VALUES ($1, $2, $3, $4, $5, $6)",
		s.table.Sanitize(),
	)
	_, err := s.tx.Exec(ctx, query, rowValues(obs)...)
	return err
}

func (s *postgresSession) InsertRows(ctx context.Context, obs []weather.Observation) (int64, error) {
	return s.tx.CopyFrom(ctx, s.table, Columns, pgx.CopyFromSlice(len(obs), func(i int) ([]any, error) {
		return rowValues(obs[i]), nil
	}))
}

func (s *postgresSession) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *postgresSession) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}

func rowValues(o weather.Observation) []any {
	return []any{o.City, o.Country, o.Date, o.Temp, o.Conditions, o.Description}
}
