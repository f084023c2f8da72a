package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	register(&Migration{
		Migration: &migrate.Migration{
			Id: "20211101100500_add_comments_on_nodes_columns",
			Up: []string{
				"COMMENT ON COLUMN nodes.full_path IS 'Absolute slash separated path of the file inside its repository'",
				"COMMENT ON COLUMN nodes.sha256 IS 'Hex encoded sha256 of the blob bytes the node points at'",
				"COMMENT ON COLUMN nodes.metadata IS 'String key-value metadata, such as manifest digest and labels'",
			},
			Down: []string{
				"COMMENT ON COLUMN nodes.full_path IS NULL",
				"COMMENT ON COLUMN nodes.sha256 IS NULL",
				"COMMENT ON COLUMN nodes.metadata IS NULL",
			},
		},
		PostDeployment: true,
	})
}
