package utils

import (
	"context"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/metadata"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/Kellerman81/go_media_organizer/scanner"
	"github.com/Kellerman81/go_media_organizer/scraper"
	"github.com/Kellerman81/go_media_organizer/structure"
	"github.com/goccy/go-json"
	"github.com/maruel/natural"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const scrapePrefix = "scrape_"

type jobFunc func(ctx context.Context, args []string) (interface{}, error)

type jobDef struct {
	category string
	run      jobFunc
}

var jobs = map[string]jobDef{
	"sortmovies":       {"movies", jobSortMovies},
	"sortdirectors":    {"movies", jobSortDirectors},
	"dedupe":           {"movies", jobDedupe},
	"sortmusic":        {"music", jobSortMusic},
	"normalizefolders": {"music", jobNormalizeFolders},
	"cleanfolders":     {"files", jobCleanFolders},
	"enrich":           {"movies", jobEnrich},
}

// Jobs lists the job names RunJob accepts, one scrape job per forum.
func Jobs() []string {
	names := make([]string, 0, len(jobs)+len(config.Get().Scraper))
	for name := range jobs {
		names = append(names, name)
	}
	for name := range config.Get().Scraper {
		names = append(names, scrapePrefix+name)
	}
	sort.Sort(natural.StringSlice(names))
	return names
}

func findJob(name string) (jobDef, []string, error) {
	if job, ok := jobs[name]; ok {
		return job, nil, nil
	}
	if forum, ok := strings.CutPrefix(name, scrapePrefix); ok && forum != "" {
		if _, err := config.GetScraper(forum); err != nil {
			return jobDef{}, nil, err
		}
		return jobDef{category: "scraper", run: jobScrape}, []string{forum}, nil
	}
	return jobDef{}, nil, errors.Wrapf(logger.ErrNotFound, "job %s", name)
}

// ValidateJob fails with ErrNotFound or ErrConfigMissing when RunJob would
// not accept the name.
func ValidateJob(name string) error {
	_, _, err := findJob(strings.ToLower(name))
	return err
}

// RunJob runs a registered job and records it in the job history. The
// result is the job specific report.
func RunJob(ctx context.Context, name string, args []string) (interface{}, error) {
	name = strings.ToLower(name)
	job, prefix, err := findJob(name)
	if err != nil {
		return nil, err
	}
	args = append(prefix, args...)
	jobType, group := name, ""
	if len(prefix) >= 1 {
		jobType = "scrape"
	}
	if len(args) >= 1 {
		group = args[0]
	}

	historyID, dberr := database.InsertJobHistory(jobType, job.category, group)
	if dberr != nil {
		logger.Log.Debug("job history: ", dberr)
	}
	logger.Log.WithFields(logrus.Fields{"args": args}).Info("Started Job: ", name)
	result, err := job.run(ctx, args)
	status := "ok"
	if err != nil {
		status = err.Error()
	}
	if dberr == nil {
		if err := database.EndJobHistory(historyID, status); err != nil {
			logger.Log.Debug("job history: ", err)
		}
	}
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"args": args}).Error("Ended Job: ", name, " - ", err)
	} else {
		logger.Log.Info("Ended Job: ", name)
	}
	debug.FreeOSMemory()
	return result, err
}

// splitArgs separates --flags from positional arguments.
func splitArgs(args []string) ([]string, map[string]bool) {
	flags := make(map[string]bool)
	names := make([]string, 0, len(args))
	for _, arg := range args {
		if flag, ok := strings.CutPrefix(arg, "--"); ok {
			flags[strings.ToLower(flag)] = true
			continue
		}
		names = append(names, arg)
	}
	return names, flags
}

// sectionNames returns the given names or every configured section.
func sectionNames[T any](names []string, sections map[string]T) []string {
	if len(names) >= 1 {
		return names
	}
	all := make([]string, 0, len(sections))
	for name := range sections {
		all = append(all, name)
	}
	sort.Strings(all)
	return all
}

// resolvePath accepts the name of a [[paths]] section or a directory.
func resolvePath(arg string) config.PathsConfig {
	if p, err := config.GetPath(arg); err == nil {
		return p
	}
	return config.PathsConfig{Path: arg}
}

func jobSortMovies(ctx context.Context, args []string) (interface{}, error) {
	names, _ := splitArgs(args)
	results := make(map[string][]structure.MovieResult)
	for _, name := range sectionNames(names, config.Get().Movie) {
		cfg, err := config.GetMovie(name)
		if err != nil {
			return results, err
		}
		sorter, err := structure.NewMovieSorter(name, Enricher(), notifierFor(cfg.Notification))
		if err != nil {
			return results, err
		}
		res, err := sorter.SortFolders(ctx)
		results[name] = res
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func jobSortDirectors(ctx context.Context, args []string) (interface{}, error) {
	names, flags := splitArgs(args)
	results := make(map[string]structure.DirectorResult)
	for _, name := range sectionNames(names, config.Get().Movie) {
		sorter, err := structure.NewDirectorSorter(name, Enricher())
		if err != nil {
			return results, err
		}
		if flags["dryrun"] {
			sorter.DryRun = true
		}
		res, err := sorter.SortLibrary(ctx)
		results[name] = res
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func jobDedupe(ctx context.Context, args []string) (interface{}, error) {
	names, flags := splitArgs(args)
	opts, err := dedupeOptions(names, flags["apply"])
	if err != nil {
		return nil, err
	}
	return structure.FindDuplicates(ctx, opts)
}

// dedupeOptions reads tolerances, trash and sidecars from the named movies
// section, or from the first one when none is named.
func dedupeOptions(names []string, apply bool) (structure.DedupeOptions, error) {
	opts := structure.DedupeOptions{Options: structure.DefaultOptions(), Apply: apply}
	sections := sectionNames(names, config.Get().Movie)
	if len(sections) == 0 {
		return opts, nil
	}
	cfg, err := config.GetMovie(sections[0])
	if err != nil {
		return opts, err
	}
	opts.BitrateTolerance, opts.SizeTolerance = cfg.Tolerances()
	opts.Trash = cfg.Trash
	if target, err := config.GetPath(cfg.Target); err == nil {
		opts.SidecarExts = target.AllowedOtherExtensions
	}
	return opts, nil
}

func jobSortMusic(ctx context.Context, args []string) (interface{}, error) {
	names, _ := splitArgs(args)
	results := make(map[string][]structure.AlbumResult)
	for _, name := range sectionNames(names, config.Get().Music) {
		sorter, err := structure.NewMusicSorter(name)
		if err != nil {
			return results, err
		}
		res, err := sorter.SortAlbums(ctx)
		results[name] = res
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func jobNormalizeFolders(_ context.Context, args []string) (interface{}, error) {
	names, flags := splitArgs(args)
	if len(names) == 0 {
		return nil, errors.Wrap(logger.ErrInvalidInput, "normalizefolders needs a path")
	}
	return structure.NormalizeFolders(resolvePath(names[0]).Path, flags["dryrun"])
}

type cleanResult struct {
	Collapsed int `json:"collapsed"`
	Removed   int `json:"removed"`
}

func jobCleanFolders(_ context.Context, args []string) (interface{}, error) {
	names, _ := splitArgs(args)
	if len(names) == 0 {
		return nil, errors.Wrap(logger.ErrInvalidInput, "cleanfolders needs a path")
	}
	p := resolvePath(names[0])
	collapsed, removed, err := structure.CleanFolders(p.Path, p.JunkFiles)
	return cleanResult{Collapsed: collapsed, Removed: removed}, err
}

func jobScrape(ctx context.Context, args []string) (interface{}, error) {
	cfg, err := config.GetScraper(args[0])
	if err != nil {
		return nil, err
	}
	_, flags := splitArgs(args[1:])
	h := History()
	if flags["all"] {
		h = nil
	}
	s, err := scraper.NewScraper(cfg, h)
	if err != nil {
		return nil, err
	}
	releases, err := s.Scrape(ctx)
	if err != nil {
		return nil, err
	}
	var regex config.RegexConfig
	if cfg.TemplateRegex != "" {
		r, ok := config.GetRegex(cfg.TemplateRegex)
		if !ok {
			return nil, errors.Wrapf(logger.ErrConfigMissing, "regex %s", cfg.TemplateRegex)
		}
		regex = r
	}
	releases = scraper.Filter(releases, regex, cfg.MinPriority)
	if cfg.Output != "" && len(releases) >= 1 {
		if err := scraper.ExportJSON(cfg.Output, releases); err != nil {
			return releases, err
		}
	}
	return releases, nil
}

// enrichInput reads a json array whose entries are release names or hints.
func enrichInput(path string) ([]metadata.Hints, error) {
	var raw []json.RawMessage
	if err := scanner.ReadJSON(path, &raw); err != nil {
		return nil, err
	}
	hints := make([]metadata.Hints, 0, len(raw))
	for idx := range raw {
		var name string
		if err := json.Unmarshal(raw[idx], &name); err == nil {
			m, err := parser.NewFileParser(name, false)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d", idx)
			}
			hints = append(hints, metadata.HintsFromParse(m))
			continue
		}
		var h metadata.Hints
		if err := json.Unmarshal(raw[idx], &h); err != nil {
			return nil, errors.Wrapf(logger.ErrInvalidInput, "entry %d: %v", idx, err)
		}
		hints = append(hints, h)
	}
	return hints, nil
}

type enrichEntry struct {
	Hints metadata.Hints      `json:"hints"`
	Movie *metadata.MovieInfo `json:"movie,omitempty"`
}

// jobEnrich looks up every entry of the input file and writes the merged
// records. With --save the records are stored in the database as well.
func jobEnrich(ctx context.Context, args []string) (interface{}, error) {
	names, flags := splitArgs(args)
	if len(names) < 2 {
		return nil, errors.Wrap(logger.ErrInvalidInput, "enrich needs an input and an output file")
	}
	hints, err := enrichInput(names[0])
	if err != nil {
		return nil, err
	}
	movies := Enricher().LookupAll(ctx, hints)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]enrichEntry, len(hints))
	for idx := range hints {
		out[idx] = enrichEntry{Hints: hints[idx], Movie: movies[idx]}
		if flags["save"] && movies[idx] != nil {
			if _, err := database.SaveMovie(movies[idx]); err != nil {
				logger.Log.WithFields(logrus.Fields{"title": movies[idx].Title}).Error(err)
			}
		}
	}
	return out, scanner.WriteJSON(names[1], out)
}
