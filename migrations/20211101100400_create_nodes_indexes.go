package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	register(&Migration{
		Migration: &migrate.Migration{
			Id: "20211101100400_create_nodes_indexes",
			Up: []string{
				"CREATE INDEX IF NOT EXISTS index_nodes_on_sha256 ON nodes USING btree (sha256)",
				"CREATE INDEX IF NOT EXISTS index_nodes_on_name ON nodes USING btree (name)",
				"CREATE INDEX IF NOT EXISTS index_nodes_on_project_id_repo_name_full_path_pattern ON nodes USING btree (project_id, repo_name, full_path text_pattern_ops)",
			},
			Down: []string{
				"DROP INDEX IF EXISTS index_nodes_on_project_id_repo_name_full_path_pattern CASCADE",
				"DROP INDEX IF EXISTS index_nodes_on_name CASCADE",
				"DROP INDEX IF EXISTS index_nodes_on_sha256 CASCADE",
			},
		},
		PostDeployment: true,
	})
}
