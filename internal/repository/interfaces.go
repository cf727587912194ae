// Package repository はログイン記録の永続化を提供する。
package repository

import (
	"context"
	"database/sql"
)

// querier は*sql.DBと*sql.Txの共通部分。
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
