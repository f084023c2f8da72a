package registry

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/bkrepo/registry/migrations"
	"github.com/bkrepo/registry/registry/datastore"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	maxNumMigrations   *int
	skipPostDeployment *bool
	dryRun             *bool
	migrationsDir      *string
	newPostDeployment  *bool
)

func init() {
	MigrateCmd.AddCommand(MigrateVersionCmd)
	MigrateCmd.AddCommand(MigrateStatusCmd)
	MigrateCmd.AddCommand(MigrateUpCmd)
	MigrateCmd.AddCommand(MigrateDownCmd)
	MigrateCmd.AddCommand(MigrateNewCmd)

	maxNumMigrations = MigrateUpCmd.Flags().IntP("limit", "n", 0, "limit the number of migrations (all by default)")
	skipPostDeployment = MigrateUpCmd.Flags().BoolP("skip-post-deployment", "s", false, "do not apply post deployment migrations")
	dryRun = MigrateUpCmd.Flags().BoolP("dry-run", "d", false, "do not commit changes to the database")
	MigrateDownCmd.Flags().AddFlag(MigrateUpCmd.Flags().Lookup("dry-run"))
	migrationsDir = MigrateNewCmd.Flags().String("dir", "migrations", "directory to create the migration in")
	newPostDeployment = MigrateNewCmd.Flags().BoolP("post-deployment", "p", false, "create a post deployment migration")
}

// MigrateCmd is the `migrate` sub-command of `registry` that manages database migrations.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage migrations",
	Long:  "Manage migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

// MigrateUpCmd is the `up` sub-command of `registry migrate` that applies pending migrations.
var MigrateUpCmd = &cobra.Command{
	Use:   "up <config>",
	Short: "Apply up migrations",
	Long:  "Apply up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if *maxNumMigrations < 0 {
			return errors.New("limit must be a positive number")
		}

		db, err := dbFromArgs(args)
		if err != nil {
			return err
		}
		defer db.Close()

		var opts []migrations.MigratorOption
		if *skipPostDeployment {
			opts = append(opts, migrations.SkipPostDeployment)
		}
		m := migrations.NewMigrator(db.DB, opts...)

		plan, err := m.UpNPlan(*maxNumMigrations)
		if err != nil {
			return fmt.Errorf("failed to prepare Up plan: %w", err)
		}
		printPlan(cmd, plan)

		if *dryRun {
			return nil
		}
		n, err := m.UpN(*maxNumMigrations)
		if err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		cmd.Printf("OK: applied %d migrations\n", n)
		return nil
	},
}

var MigrateDownCmd = &cobra.Command{
	Use:   "down <config> [n]",
	Short: "Apply down migrations",
	Long:  "Apply down migrations, all of them unless n is given",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var limit int
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid number of migrations %q", args[1])
			}
			limit = n
		}

		db, err := dbFromArgs(args[:1])
		if err != nil {
			return err
		}
		defer db.Close()

		m := migrations.NewMigrator(db.DB)
		plan, err := m.DownNPlan(limit)
		if err != nil {
			return fmt.Errorf("failed to prepare Down plan: %w", err)
		}
		printPlan(cmd, plan)

		if *dryRun {
			return nil
		}
		n, err := m.DownN(limit)
		if err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		cmd.Printf("OK: rolled back %d migrations\n", n)
		return nil
	},
}

// MigrateVersionCmd is the `version` sub-command of `registry migrate` that shows the current migration version.
var MigrateVersionCmd = &cobra.Command{
	Use:   "version <config>",
	Short: "Show current migration version",
	Long:  "Show current migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := dbFromArgs(args)
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := migrations.NewMigrator(db.DB).Version()
		if err != nil {
			return fmt.Errorf("failed to detect database version: %w", err)
		}
		if v == "" {
			v = "Unknown"
		}

		cmd.Printf("%s\n", v)
		return nil
	},
}

// MigrateStatusCmd is the `status` sub-command of `registry migrate` that shows the migrations status.
var MigrateStatusCmd = &cobra.Command{
	Use:   "status <config>",
	Short: "Show migration status",
	Long:  "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := dbFromArgs(args)
		if err != nil {
			return err
		}
		defer db.Close()

		statuses, err := migrations.NewMigrator(db.DB).Status()
		if err != nil {
			return fmt.Errorf("failed to detect database status: %w", err)
		}

		writeStatusTable(cmd, statuses)
		return nil
	},
}

// MigrateNewCmd is the `new` sub-command of `registry migrate` that creates a migration file from a template.
var MigrateNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new migration",
	Long:  "Create a new migration file in the migrations directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := migrations.NewFromTemplate(*migrationsDir, args[0], *newPostDeployment)
		if err != nil {
			return err
		}
		cmd.Printf("OK: %s\n", path)
		return nil
	},
}

func writeStatusTable(cmd *cobra.Command, statuses map[string]*migrations.MigrationStatus) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Migration", "Applied"})
	table.SetColWidth(80)

	for _, id := range migrations.SortedIDs(statuses) {
		s := statuses[id]
		name := id
		if s.Unknown {
			name += " (unknown)"
		}
		if s.PostDeployment {
			name += " (post deployment)"
		}

		var applied string
		if s.AppliedAt != nil {
			applied = s.AppliedAt.String()
		}

		table.Append([]string{name, applied})
	}

	table.Render()
}

func printPlan(cmd *cobra.Command, plan []string) {
	if len(plan) == 0 {
		cmd.Println("no pending migrations")
		return
	}
	for _, id := range plan {
		cmd.Println(id)
	}
}

func dbFromArgs(args []string) (*datastore.DB, error) {
	config, err := resolveConfiguration(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, err
	}

	return datastore.Open(&datastore.DSN{
		Host:           config.Database.Host,
		Port:           config.Database.Port,
		User:           config.Database.User,
		Password:       config.Database.Password,
		DBName:         config.Database.DBName,
		SSLMode:        config.Database.SSLMode,
		ConnectTimeout: config.Database.ConnectTimeout,
	})
}
