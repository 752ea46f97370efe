package cmd

import (
	"github.com/Kellerman81/go_media_organizer/api"
	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/Kellerman81/go_media_organizer/scheduler"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const backupDir = "./backup"

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, parseCmd)
	parseCmd.Flags().StringVar(&parseArgs.config, "movies", "", "movies section for the default quality")
	parseCmd.Flags().BoolVar(&parseArgs.year, "year", false, "keep the year in the title")
	migrateCmd.Flags().BoolVar(&migrateArgs.backup, "backup", false, "write a backup before the upgrade")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the scheduler and the status api",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		general := config.General()
		if general.EnableFileWatcher && cfgFile != nil {
			config.Watch(cfgFile)
		}
		if general.MaxDatabaseBackups > 0 {
			if name, err := database.Backup(backupDir, general.MaxDatabaseBackups); err != nil {
				logger.Log.Warn("database backup: ", err)
			} else {
				logger.Log.Info("Database backup: ", name)
			}
		}
		logger.Log.Info("Starting Scheduler")
		scheduler.InitScheduler()
		defer scheduler.StopScheduler()
		return api.Serve(cmd.Context(), general.WebPort)
	},
}

var migrateArgs = struct {
	backup bool
}{}

// migrateCmd relies on the upgrade that runs before every command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if migrateArgs.backup {
			name, err := database.Backup(backupDir, max(config.General().MaxDatabaseBackups, 1))
			if err != nil {
				return errors.Wrap(err, "backup")
			}
			logger.Log.Info("Database backup: ", name)
		}
		counts := make(map[string]int)
		for _, table := range []string{"movies", "directors", "movie_files", "albums", "job_histories"} {
			n, err := database.CountRows(table, database.Query{})
			if err != nil {
				return err
			}
			counts[table] = n
		}
		return printJSON(cmd, counts)
	},
}

var parseArgs = struct {
	config string
	year   bool
}{}

var parseCmd = &cobra.Command{
	Use:         "parse <name...>",
	Short:       "parse release or folder names",
	Args:        cobra.MinimumNArgs(1),
	Annotations: map[string]string{skipSetup: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var quality, resolution string
		if parseArgs.config != "" {
			cfg, err := config.GetMovie(parseArgs.config)
			if err != nil {
				return err
			}
			quality, resolution = cfg.DefaultQuality, cfg.DefaultResolution
		}
		results := make([]*parser.ParseInfo, 0, len(args))
		for _, name := range args {
			m, err := parser.NewFileParser(name, parseArgs.year)
			if err != nil {
				return errors.Wrapf(err, "parse %q", name)
			}
			m.GetPriority(quality, resolution)
			results = append(results, m)
		}
		return printJSON(cmd, results)
	},
}
