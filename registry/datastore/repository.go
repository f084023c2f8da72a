package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bkrepo/registry/registry/datastore/metrics"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
)

// repositoryStore reads and writes project repositories.
type repositoryStore struct {
	// db can be either a *sql.DB or *sql.Tx
	db Queryer
}

func scanRepository(row *sql.Row) (*storagedriver.Repository, error) {
	r := new(storagedriver.Repository)

	if err := row.Scan(&r.ProjectID, &r.Name, &r.CreatedAt); err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("scanning repository: %w", err)
		}
		return nil, storagedriver.ErrRepositoryNotFound
	}

	return r, nil
}

// FindByName finds a repository by project and name.
func (s *repositoryStore) FindByName(ctx context.Context, projectID, name string) (*storagedriver.Repository, error) {
	defer metrics.InstrumentQuery("repository_find_by_name")()
	q := `SELECT
			project_id,
			name,
			created_at
		FROM
			repositories
		WHERE
			project_id = $1
			AND name = $2`
	row := s.db.QueryRowContext(ctx, q, projectID, name)

	return scanRepository(row)
}

// SafeFindOrCreate provides a concurrency safe way to find or create a
// repository. Repositories are created rarely and read on every request, so
// this looks the record up first and only then falls back to createOrFind.
func (s *repositoryStore) SafeFindOrCreate(ctx context.Context, projectID, name string) (*storagedriver.Repository, error) {
	defer metrics.InstrumentQuery("repository_safe_find_or_create")()

	r, err := s.FindByName(ctx, projectID, name)
	if err == nil {
		return r, nil
	}
	if err != storagedriver.ErrRepositoryNotFound {
		return nil, err
	}
	return s.createOrFind(ctx, projectID, name)
}

// createOrFind attempts to create a repository. If it already exists the
// existing record is returned instead, without the race of a separate find
// and create.
func (s *repositoryStore) createOrFind(ctx context.Context, projectID, name string) (*storagedriver.Repository, error) {
	defer metrics.InstrumentQuery("repository_create_or_find")()
	q := `INSERT INTO repositories (project_id, name)
			VALUES ($1, $2)
		ON CONFLICT (project_id, name)
			DO NOTHING
		RETURNING
			project_id, name, created_at`

	r, err := scanRepository(s.db.QueryRowContext(ctx, q, projectID, name))
	if err == storagedriver.ErrRepositoryNotFound {
		// if the result set has no rows, then the repository already exists
		return s.FindByName(ctx, projectID, name)
	}
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}
	return r, nil
}

// ensure creates the repository row if missing.
func (s *repositoryStore) ensure(ctx context.Context, projectID, name string) error {
	defer metrics.InstrumentQuery("repository_ensure")()
	q := `INSERT INTO repositories (project_id, name)
			VALUES ($1, $2)
		ON CONFLICT (project_id, name)
			DO NOTHING`

	if _, err := s.db.ExecContext(ctx, q, projectID, name); err != nil {
		return fmt.Errorf("ensuring repository: %w", err)
	}
	return nil
}
