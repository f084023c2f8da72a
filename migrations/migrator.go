package migrations

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	migrate "github.com/rubenv/sql-migrate"
)

const (
	migrationTableName = "schema_migrations"
	dialect            = "postgres"
)

func init() {
	migrate.SetTable(migrationTableName)
}

// Migrator applies the registry schema migrations to a database.
type Migrator struct {
	db                 *sql.DB
	migrations         []*Migration
	skipPostDeployment bool
}

// MigratorOption provides functional options for NewMigrator.
type MigratorOption func(*Migrator)

// SkipPostDeployment leaves post deployment migrations out of upgrades.
func SkipPostDeployment(m *Migrator) {
	m.skipPostDeployment = true
}

// NewMigrator creates a migrator for db.
func NewMigrator(db *sql.DB, opts ...MigratorOption) *Migrator {
	m := &Migrator{db: db, migrations: allMigrations}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Migrator) source(dir migrate.MigrationDirection) *migrate.MemoryMigrationSource {
	src := &migrate.MemoryMigrationSource{}
	for _, mig := range m.migrations {
		if dir == migrate.Up && m.skipPostDeployment && mig.PostDeployment {
			continue
		}
		src.Migrations = append(src.Migrations, mig.Migration)
	}
	return src
}

// Version returns the id of the last applied migration, empty when none was.
func (m *Migrator) Version() (string, error) {
	records, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return "", fmt.Errorf("reading migration records: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[len(records)-1].Id, nil
}

// LatestVersion returns the id of the most recent known migration.
func (m *Migrator) LatestVersion() (string, error) {
	mm, err := m.source(migrate.Down).FindMigrations()
	if err != nil {
		return "", fmt.Errorf("finding migrations: %w", err)
	}
	if len(mm) == 0 {
		return "", nil
	}
	return mm[len(mm)-1].Id, nil
}

// Up applies all pending migrations and returns how many were applied.
func (m *Migrator) Up() (int, error) {
	return m.UpN(0)
}

// UpN applies up to n pending migrations. n = 0 applies all of them.
func (m *Migrator) UpN(n int) (int, error) {
	return migrate.ExecMax(m.db, dialect, m.source(migrate.Up), migrate.Up, n)
}

// UpNPlan returns the ids of the migrations UpN would apply.
func (m *Migrator) UpNPlan(n int) ([]string, error) {
	return m.plan(migrate.Up, n)
}

// Down rolls back all applied migrations.
func (m *Migrator) Down() (int, error) {
	return m.DownN(0)
}

// DownN rolls back up to n applied migrations. n = 0 rolls back all of them.
func (m *Migrator) DownN(n int) (int, error) {
	return migrate.ExecMax(m.db, dialect, m.source(migrate.Down), migrate.Down, n)
}

// DownNPlan returns the ids of the migrations DownN would roll back.
func (m *Migrator) DownNPlan(n int) ([]string, error) {
	return m.plan(migrate.Down, n)
}

func (m *Migrator) plan(dir migrate.MigrationDirection, n int) ([]string, error) {
	planned, _, err := migrate.PlanMigration(m.db, dialect, m.source(dir), dir, n)
	if err != nil {
		return nil, fmt.Errorf("planning migrations: %w", err)
	}

	ids := make([]string, 0, len(planned))
	for _, p := range planned {
		ids = append(ids, p.Id)
	}
	return ids, nil
}

// MigrationStatus reports the state of a migration.
type MigrationStatus struct {
	// Unknown is set for applied migrations this binary does not know.
	Unknown        bool
	PostDeployment bool
	AppliedAt      *time.Time
}

// Status returns the status of every known or applied migration, by id.
func (m *Migrator) Status() (map[string]*MigrationStatus, error) {
	records, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return nil, fmt.Errorf("reading migration records: %w", err)
	}

	statuses := make(map[string]*MigrationStatus, len(m.migrations))
	for _, mig := range m.migrations {
		statuses[mig.Id] = &MigrationStatus{PostDeployment: mig.PostDeployment}
	}
	for _, r := range records {
		appliedAt := r.AppliedAt
		if s, ok := statuses[r.Id]; ok {
			s.AppliedAt = &appliedAt
			continue
		}
		statuses[r.Id] = &MigrationStatus{Unknown: true, AppliedAt: &appliedAt}
	}

	return statuses, nil
}

// HasPending reports whether a known migration was not applied yet.
func (m *Migrator) HasPending() (bool, error) {
	statuses, err := m.Status()
	if err != nil {
		return false, err
	}
	for _, s := range statuses {
		if !s.Unknown && s.AppliedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

// SortedIDs returns the ids of statuses in migration order.
func SortedIDs(statuses map[string]*MigrationStatus) []string {
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
