// Package store implements the SQL-backed protocol and directory stores used
// during registration finalization: the recipient directory, the identity
// table, session records, sender keys and pre-key records. Only SQLite and
// Postgres are supported.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.mau.fi/signalreg/pkg/signalreg/types"
)

// Container wraps a SQL database holding the local client's protocol state.
type Container struct {
	db      *sql.DB
	dialect string

	selfLock sync.Mutex
	self     *Recipient
}

// New connects to the given SQL database and runs schema upgrades.
// When using SQLite, enable foreign keys by adding `?_foreign_keys=on`:
//
//	container, err := store.New("sqlite3", "file:signalreg.db?_foreign_keys=on")
func New(dialect, address string) (*Container, error) {
	db, err := sql.Open(dialect, address)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	container := NewWithDB(db, dialect)
	if err = container.Upgrade(); err != nil {
		return nil, fmt.Errorf("failed to upgrade database: %w", err)
	}
	return container, nil
}

// NewWithDB wraps an existing SQL connection. Unlike New, it does not call
// Upgrade automatically.
func NewWithDB(db *sql.DB, dialect string) *Container {
	return &Container{db: db, dialect: dialect}
}

func (c *Container) Close() error {
	return c.db.Close()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

// ACIStore returns the per-identity protocol store scoped to the ACI.
func (c *Container) ACIStore() *ScopedStore {
	return &ScopedStore{Container: c, Identity: types.ServiceIDKindACI}
}

// PNIStore returns the per-identity protocol store scoped to the PNI.
func (c *Container) PNIStore() *ScopedStore {
	return &ScopedStore{Container: c, Identity: types.ServiceIDKindPNI}
}

// ScopedStore is a Container bound to one of the two local identities. The
// session, sender-key and pre-key tables are partitioned by that identity.
type ScopedStore struct {
	*Container
	Identity types.ServiceIDKind
}

var _ PreKeyStore = (*ScopedStore)(nil)
var _ SessionStore = (*ScopedStore)(nil)

func (c *Container) execContext(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}
