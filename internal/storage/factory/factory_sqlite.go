package factory

import (
	"context"

	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/storage/sqlite"
)

func init() {
	RegisterBackend(BackendSQLite, func(ctx context.Context, path string, _ Options) (storage.Store, error) {
		return sqlite.New(ctx, path)
	})
}
