package repository

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Open connects to the configured backend and applies its schema.
// dsn is a file path for sqlite and a connection string for postgres; it is
// ignored for memory.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(driver) {
	case BackendSQLite, "":
		st, err = NewSQLite(dsn, opts...)
	case BackendPostgres:
		st, err = NewPostgres(ctx, dsn, opts...)
	case BackendMemory:
		st = NewMemory(opts...)
	default:
		return nil, eris.Wrapf(ErrUnknownDriver, "%q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
