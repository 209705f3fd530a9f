package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to a DBTX so the same service
// code runs against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
