package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	register(&Migration{
		Migration: &migrate.Migration{
			Id: "20211101100100_create_repositories_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS public.repositories (
					project_id text NOT NULL,
					name text NOT NULL,
					created_at timestamp WITH time zone NOT NULL DEFAULT now(),
					CONSTRAINT pk_repositories PRIMARY KEY (project_id, name),
					CONSTRAINT check_repositories_project_id_length CHECK ((char_length(project_id) <= 255)),
					CONSTRAINT check_repositories_name_length CHECK ((char_length(name) <= 255))
				)`,
			},
			Down: []string{
				"DROP TABLE IF EXISTS public.repositories CASCADE",
			},
		},
	})
}
