package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ConnExecutor runs statements directly on a connection, outside any
// explicit transaction, so each statement commits on its own.
type ConnExecutor struct {
	Conn *pgx.Conn
}

// Exec runs sql.
func (e *ConnExecutor) Exec(ctx context.Context, sql string) error {
	_, err := e.Conn.Exec(ctx, sql)
	return err
}
