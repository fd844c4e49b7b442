package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/oraculo/protocol/internal/config"
)

// Open builds the Store selected by cfg.Driver. The returned close function
// releases the database handle; it is a no-op for the memory store.
func Open(ctx context.Context, cfg config.DBConfig) (Store, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	case "postgres":
	default:
		return nil, nil, fmt.Errorf("repository.Open: unknown driver %q", cfg.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("repository.Open: connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := NewPostgresStore(db)
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return store, db.Close, nil
}
