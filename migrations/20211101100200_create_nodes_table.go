package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	register(&Migration{
		Migration: &migrate.Migration{
			Id: "20211101100200_create_nodes_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS public.nodes (
					id bigint NOT NULL GENERATED BY DEFAULT AS IDENTITY,
					project_id text NOT NULL,
					repo_name text NOT NULL,
					full_path text NOT NULL,
					name text NOT NULL,
					size bigint NOT NULL DEFAULT 0,
					sha256 text,
					metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
					created_at timestamp WITH time zone NOT NULL DEFAULT now(),
					updated_at timestamp WITH time zone NOT NULL DEFAULT now(),
					CONSTRAINT pk_nodes PRIMARY KEY (project_id, id),
					CONSTRAINT unique_nodes_project_id_repo_name_full_path UNIQUE (project_id, repo_name, full_path),
					CONSTRAINT fk_nodes_project_id_repo_name_repositories FOREIGN KEY (project_id, repo_name)
						REFERENCES repositories (project_id, name) ON DELETE CASCADE,
					CONSTRAINT check_nodes_size_non_negative CHECK ((size >= 0))
				)
				PARTITION BY HASH (project_id)`,
			},
			Down: []string{
				"DROP TABLE IF EXISTS public.nodes CASCADE",
			},
		},
	})
}
