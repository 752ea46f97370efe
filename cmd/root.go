package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/utils"
	"github.com/goccy/go-json"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// skipSetup marks commands that only need the configuration.
const skipSetup = "nosetup"

var rootArgs = struct {
	config string
}{}

// cfgFile is the loaded config file, watched in serve mode.
var cfgFile *file.File

var rootCmd = &cobra.Command{
	Use:           "go_media_organizer",
	Short:         "sort, scrape and enrich a movie and music library",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		f, err := config.LoadCfg(rootArgs.config)
		if err != nil {
			return errors.Wrapf(err, "load config %s", rootArgs.config)
		}
		cfgFile = f
		general := config.General()
		logger.InitLogger(logger.LoggerConfig{
			LogLevel:      general.LogLevel,
			LogFile:       general.LogFile,
			LogFileSize:   general.LogFileSize,
			LogFileCount:  general.LogFileCount,
			LogCompress:   general.LogCompress,
			LogToFileOnly: general.LogToFileOnly,
			LogJSON:       general.LogJSON,
		})
		if cmd.Annotations[skipSetup] != "" {
			return nil
		}
		if err := database.InitDB(general.DatabaseFile); err != nil {
			return err
		}
		if err := database.UpgradeDB(); err != nil {
			return errors.Wrap(err, "upgrade database")
		}
		return utils.Init()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootArgs.config, "config", "c", config.Configfile, "config file")
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// teardown closes what PersistentPreRunE opened, also after a failed run.
func teardown() {
	utils.Close()
	if err := database.Close(); err != nil {
		logger.Log.Error(err)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runJob(cmd *cobra.Command, job string, args []string) error {
	result, err := utils.RunJob(cmd.Context(), job, args)
	if result != nil {
		if perr := printJSON(cmd, result); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// jobCommand builds a command that runs one registered job. Boolean flags
// are handed to the job as --name arguments.
func jobCommand(use string, job string, short string, args cobra.PositionalArgs, flags ...string) *cobra.Command {
	values := make([]bool, len(flags))
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			for idx := range flags {
				if values[idx] {
					args = append(args, "--"+flags[idx])
				}
			}
			return runJob(cmd, job, args)
		},
	}
	for idx := range flags {
		c.Flags().BoolVar(&values[idx], flags[idx], false, flagUsage[flags[idx]])
	}
	return c
}

var flagUsage = map[string]string{
	"dryrun": "only log the planned changes",
	"apply":  "move the inferior copies to trash",
	"all":    "ignore the scraper history",
	"save":   "store the merged records in the database",
}
