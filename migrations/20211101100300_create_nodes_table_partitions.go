package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	register(&Migration{
		Migration: &migrate.Migration{
			Id:   "20211101100300_create_nodes_table_partitions",
			Up:   nodesPartitions.create(),
			Down: nodesPartitions.drop(),
		},
	})
}
