package migrations

import (
	"testing"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/stretchr/testify/require"
)

func TestHashPartitions(t *testing.T) {
	p := hashPartitions{table: "foo_bar", count: 3}

	require.Equal(t, []string{
		"CREATE TABLE IF NOT EXISTS partitions.foo_bar_p_0 PARTITION OF public.foo_bar FOR VALUES WITH (MODULUS 3, REMAINDER 0)",
		"CREATE TABLE IF NOT EXISTS partitions.foo_bar_p_1 PARTITION OF public.foo_bar FOR VALUES WITH (MODULUS 3, REMAINDER 1)",
		"CREATE TABLE IF NOT EXISTS partitions.foo_bar_p_2 PARTITION OF public.foo_bar FOR VALUES WITH (MODULUS 3, REMAINDER 2)",
	}, p.create())

	require.Equal(t, []string{
		"DROP TABLE IF EXISTS partitions.foo_bar_p_2 CASCADE",
		"DROP TABLE IF EXISTS partitions.foo_bar_p_1 CASCADE",
		"DROP TABLE IF EXISTS partitions.foo_bar_p_0 CASCADE",
	}, p.drop())
}

func TestAllMigrations_UniqueIDs(t *testing.T) {
	require.NotEmpty(t, allMigrations)

	seen := make(map[string]struct{}, len(allMigrations))
	for _, m := range allMigrations {
		require.NotEmpty(t, m.Up, m.Id)
		require.NotEmpty(t, m.Down, m.Id)
		_, ok := seen[m.Id]
		require.False(t, ok, "duplicate migration %q", m.Id)
		seen[m.Id] = struct{}{}
	}
}

func TestMigrator_SkipPostDeployment(t *testing.T) {
	m := NewMigrator(nil, SkipPostDeployment)

	up, err := m.source(migrate.Up).FindMigrations()
	require.NoError(t, err)
	down, err := m.source(migrate.Down).FindMigrations()
	require.NoError(t, err)

	require.Len(t, down, len(allMigrations))
	require.Less(t, len(up), len(down))
	for _, mig := range up {
		require.NotContains(t, mig.Id, "indexes")
	}
}

func TestMigrator_LatestVersion(t *testing.T) {
	m := NewMigrator(nil)
	m.migrations = []*Migration{
		{Migration: &migrate.Migration{Id: "20211101100200_b"}},
		{Migration: &migrate.Migration{Id: "20211101100100_a"}},
	}

	v, err := m.LatestVersion()
	require.NoError(t, err)
	require.Equal(t, "20211101100200_b", v)
}

func TestSortedIDs(t *testing.T) {
	ids := SortedIDs(map[string]*MigrationStatus{
		"20211101100200_b": {},
		"20211101100000_a": {},
		"20211101100100_c": {Unknown: true},
	})
	require.Equal(t, []string{"20211101100000_a", "20211101100100_c", "20211101100200_b"}, ids)
}
