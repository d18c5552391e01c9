// Package registry persists service references across CLI invocations in a
// local sqlite database. Only the reference (name, host, port) is stored;
// the service itself is the source of truth for all job state.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"cwlclient/pkg/apperrors"
	"cwlclient/pkg/client"
)

const schema = `
CREATE TABLE IF NOT EXISTS services (
	name TEXT PRIMARY KEY,
	host TEXT NOT NULL,
	port INTEGER NOT NULL
);`

// Registry stores service references.
type Registry struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the registry at path.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening registry %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Save stores or replaces the reference for a named service.
func (r *Registry) Save(ctx context.Context, name string, ref client.Ref) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO services (name, host, port) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET host = excluded.host, port = excluded.port`,
		name, ref.Host, ref.Port)
	if err != nil {
		return fmt.Errorf("saving service %s: %w", name, err)
	}
	return nil
}

// Get returns the stored reference for a named service.
func (r *Registry) Get(ctx context.Context, name string) (client.Ref, error) {
	var ref client.Ref
	err := r.db.QueryRowContext(ctx,
		`SELECT host, port FROM services WHERE name = ?`, name).Scan(&ref.Host, &ref.Port)
	if errors.Is(err, sql.ErrNoRows) {
		return client.Ref{}, apperrors.ServiceNotFound(name)
	}
	if err != nil {
		return client.Ref{}, fmt.Errorf("loading service %s: %w", name, err)
	}
	return ref, nil
}

// List returns all stored references by service name.
func (r *Registry) List(ctx context.Context) (map[string]client.Ref, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, host, port FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]client.Ref)
	for rows.Next() {
		var (
			name string
			ref  client.Ref
		)
		if err := rows.Scan(&name, &ref.Host, &ref.Port); err != nil {
			return nil, err
		}
		refs[name] = ref
	}
	return refs, rows.Err()
}

// Delete removes the reference for a named service. Deleting an unknown
// name is not an error.
func (r *Registry) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting service %s: %w", name, err)
	}
	return nil
}
