// Package pg implements store.Repository on PostgreSQL via database/sql
// and the pgx/v5 stdlib driver, grounded on the teacher's
// internal/store/pg package (vanducng-goclaw) — same OpenDB/NewPG*Store
// factory shape, same upsert-by-natural-key idiom seen in sessions.go.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tinyagi/tinyagi/internal/store"
)

// Repository is the PostgreSQL-backed store.Repository implementation.
type Repository struct {
	db *sql.DB
}

// OpenDB opens a pgx/v5 stdlib connection pool, matching the teacher's
// store/pg.OpenDB (internal/store/pg/factory.go).
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// New builds a Repository over an already-open *sql.DB, mirroring the
// teacher's NewPGStores(cfg store.StoreConfig) aggregate-factory shape
// (internal/store/pg/factory.go) but collapsed to one struct since this
// spec's sub-stores share a handful of small tables rather than the
// teacher's dozen-plus session/agent/channel tables.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error { return r.db.Close() }

var _ store.Repository = (*Repository)(nil)
