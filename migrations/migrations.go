package migrations

import (
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

var allMigrations []*Migration

// Migration is a schema migration. Post deployment migrations are not
// required by the running code and may be applied after a deploy.
type Migration struct {
	*migrate.Migration

	PostDeployment bool
}

func register(m *Migration) {
	allMigrations = append(allMigrations, m)
}

// nodesPartitions spreads file nodes over hash partitions of project_id.
var nodesPartitions = hashPartitions{table: "nodes", count: 64}

// hashPartitions are the partitions of a table kept in the partitions schema.
type hashPartitions struct {
	table string
	count int
}

func (p hashPartitions) name(i int) string {
	return fmt.Sprintf("partitions.%s_p_%d", p.table, i)
}

func (p hashPartitions) create() []string {
	stmts := make([]string, p.count)
	for i := range stmts {
		stmts[i] = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF public.%s FOR VALUES WITH (MODULUS %d, REMAINDER %d)",
			p.name(i), p.table, p.count, i)
	}
	return stmts
}

func (p hashPartitions) drop() []string {
	stmts := make([]string, p.count)
	for i := range stmts {
		// highest partition first
		stmts[i] = fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.name(p.count-1-i))
	}
	return stmts
}
