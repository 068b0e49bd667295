package factory

import (
	"context"
	"os"

	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/storage/mysql"
)

func init() {
	RegisterBackend(BackendMySQL, func(ctx context.Context, _ string, opts Options) (storage.Store, error) {
		password := opts.ServerPassword
		if password == "" {
			password = os.Getenv("TAMMA_MYSQL_PASSWORD")
		}
		return mysql.New(ctx, mysql.Config{
			Host:     opts.ServerHost,
			Port:     opts.ServerPort,
			User:     opts.ServerUser,
			Password: password,
			Database: opts.Database,
			TLS:      opts.ServerTLS,
		})
	})
}
