package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		jobCommand("sortmovies [movies section...]", "sortmovies",
			"sort downloaded movie folders into the library", cobra.ArbitraryArgs),
		jobCommand("sortdirectors [movies section...]", "sortdirectors",
			"move library movie folders below their director", cobra.ArbitraryArgs, "dryrun"),
		jobCommand("dedupe [movies section]", "dedupe",
			"report duplicate movie files", cobra.MaximumNArgs(1), "apply"),
		jobCommand("sortmusic [music section...]", "sortmusic",
			"sort album folders into the music library", cobra.ArbitraryArgs),
		jobCommand("normalize <path>", "normalizefolders",
			"rename album folders to artist - year - album [quality]", cobra.ExactArgs(1), "dryrun"),
		jobCommand("clean <path>", "cleanfolders",
			"collapse redundant nested folders and remove empty ones", cobra.ExactArgs(1)),
		jobCommand("enrich <in.json> <out.json>", "enrich",
			"look up release names or hints from a json file", cobra.ExactArgs(2), "save"),
		scrapeCmd(),
	)
}

func scrapeCmd() *cobra.Command {
	var all bool
	c := &cobra.Command{
		Use:   "scrape <forum>",
		Short: "scrape the new threads of a configured forum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobargs []string
			if all {
				jobargs = append(jobargs, "--all")
			}
			return runJob(cmd, "scrape_"+args[0], jobargs)
		},
	}
	c.Flags().BoolVar(&all, "all", false, flagUsage["all"])
	return c
}
