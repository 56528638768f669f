package repositories

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"receivables/internal/common"
)

// DBTX is the subset of *pgxpool.Pool the repositories use. pgxmock pools
// satisfy it as well.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// notFound converts pgx.ErrNoRows into the service level not found error.
func notFound(err error, resource string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return common.NewNotFoundError(resource, id)
	}
	return err
}

// requireAffected turns an update that matched nothing into a not found error.
func requireAffected(tag pgconn.CommandTag, err error, resource string, id any) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError(resource, id)
	}
	return nil
}
