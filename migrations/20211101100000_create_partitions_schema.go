package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	register(&Migration{
		Migration: &migrate.Migration{
			Id: "20211101100000_create_partitions_schema",
			Up: []string{
				"CREATE SCHEMA IF NOT EXISTS partitions",
			},
			Down: []string{
				"DROP SCHEMA IF EXISTS partitions CASCADE",
			},
		},
	})
}
