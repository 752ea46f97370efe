package structure

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/metadata"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/Kellerman81/go_media_organizer/scanner"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"
)

// DirectorSorter moves the movie folders of a library root below a folder
// of their main director.
type DirectorSorter struct {
	Root    config.PathsConfig
	Layout  string
	Lookup  MovieLookup
	DryRun  bool
	Workers int
}

type DirectorMove struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Director string `json:"director"`
}

type DirectorResult struct {
	Moves  []DirectorMove      `json:"moves"`
	Merged map[string][]string `json:"merged,omitempty"`
	Failed []string            `json:"failed,omitempty"`
}

func NewDirectorSorter(name string, lookup MovieLookup) (*DirectorSorter, error) {
	cfg, err := config.GetMovie(name)
	if err != nil {
		return nil, err
	}
	root, err := config.GetPath(cfg.Target)
	if err != nil {
		return nil, err
	}
	return &DirectorSorter{Root: root, Layout: cfg.DirectorLayout, Lookup: lookup, DryRun: cfg.DryRun, Workers: config.General().WorkerMetadata}, nil
}

// directorFolder is an existing first-level folder holding movie folders.
type directorFolder struct {
	name string
	info metadata.DirectorInfo
}

// directorFromFolder splits "Wong Kar-wai 王家卫" into its latin and cjk part.
func directorFromFolder(name string) metadata.DirectorInfo {
	chinese, latin := parser.SplitMixed(name)
	return metadata.DirectorInfo{Name: latin, ChineseName: chinese}
}

// hasVideo reports whether dir directly contains a video file.
func hasVideo(dir string, exts []string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && scanner.IsVideoFile(filepath.Join(dir, entry.Name()), exts) {
			return true
		}
	}
	return false
}

// resolveMovie finds the movie of a library folder in the database, then by
// parsing and looking up the folder name.
func (s *DirectorSorter) resolveMovie(ctx context.Context, folder string) (*metadata.MovieInfo, error) {
	files, err := database.GetMovieFilesInFolder(folder + string(os.PathSeparator))
	if err == nil && len(files) >= 1 {
		if info, err := database.GetMovieInfo(files[0].MovieID); err == nil {
			return info, nil
		}
	}
	if s.Lookup == nil {
		return nil, errors.Wrap(logger.ErrNoMetadata, folder)
	}
	m, err := parser.NewFileParser(filepath.Base(folder), false)
	if err != nil {
		return nil, err
	}
	return s.Lookup.Lookup(ctx, metadata.HintsFromParse(m))
}

// SortLibrary moves every first-level movie folder below its director and
// merges director folders that name the same person.
func (s *DirectorSorter) SortLibrary(ctx context.Context) (DirectorResult, error) {
	result := DirectorResult{Merged: make(map[string][]string)}
	entries, err := os.ReadDir(s.Root.Path)
	if err != nil {
		return result, errors.Wrapf(err, "read %s", s.Root.Path)
	}

	var (
		movies  []string
		folders []directorFolder
	)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(s.Root.Path, entry.Name())
		if hasVideo(path, s.Root.AllowedVideoExtensions) {
			movies = append(movies, path)
			continue
		}
		if entry.Name() != unknownDirector {
			folders = append(folders, directorFolder{name: entry.Name(), info: directorFromFolder(entry.Name())})
		}
	}

	infos := make([]*metadata.MovieInfo, len(movies))
	swg := sizedwaitgroup.New(max(s.Workers, 1))
	var mu sync.Mutex
	for idx := range movies {
		if ctx.Err() != nil {
			break
		}
		swg.Add()
		go func(idx int) {
			defer swg.Done()
			info, err := s.resolveMovie(ctx, movies[idx])
			if err != nil {
				logger.Log.WithFields(logrus.Fields{"path": movies[idx]}).Warn("director lookup: ", err)
				if !errors.Is(err, logger.ErrNoMetadata) {
					mu.Lock()
					result.Failed = append(result.Failed, movies[idx])
					mu.Unlock()
					return
				}
			}
			infos[idx] = info
		}(idx)
	}
	swg.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}

	// group the wanted directors with the existing folders of the same person
	groups := make([]*directorGroup, 0, len(folders))
	for idx := range folders {
		addToGroup(&groups, folders[idx].info, folders[idx].name, true)
	}
	targets := make([]*directorGroup, len(movies))
	for idx := range movies {
		if infos[idx] == nil && result.isFailed(movies[idx]) {
			continue
		}
		var director *metadata.DirectorInfo
		if infos[idx] != nil {
			director = infos[idx].MainDirector()
		}
		if director == nil {
			targets[idx] = &directorGroup{common: unknownDirector}
			continue
		}
		addToGroup(&groups, *director, director.FolderName(s.Layout), false)
		targets[idx] = &directorGroup{names: []string{director.FolderName(s.Layout)}}
	}

	for _, group := range groups {
		group.common = logger.Path(metadata.ResolveCommonName(group.names), false)
		if group.common == "" {
			group.common = unknownDirector
		}
		if len(group.existing) >= 2 || (len(group.existing) == 1 && group.existing[0] != group.common) {
			result.Merged[group.common] = group.existing
			if s.DryRun {
				logger.Log.Info("Dry run: would merge ", group.existing, " into ", group.common)
				continue
			}
			if err := s.mergeFolders(group.existing, group.common); err != nil {
				return result, err
			}
		}
	}

	for idx := range movies {
		if targets[idx] == nil {
			continue
		}
		if targets[idx].common == "" {
			// groups may have been folded after the movie was added
			targets[idx] = findGroup(groups, targets[idx].names[0])
		}
		move := DirectorMove{
			Source:   movies[idx],
			Target:   filepath.Join(s.Root.Path, targets[idx].common, filepath.Base(movies[idx])),
			Director: targets[idx].common,
		}
		if !s.DryRun {
			move.Target = scanner.UniquePath(move.Target)
			if err := moveLibraryFolder(move.Source, move.Target); err != nil {
				logger.Log.WithFields(logrus.Fields{"path": move.Source}).Error("move: ", err)
				result.Failed = append(result.Failed, move.Source)
				continue
			}
			logger.Log.WithFields(logrus.Fields{"director": move.Director}).Info("Movie folder moved: ", move.Source, " -> ", move.Target)
		} else {
			logger.Log.Info("Dry run: would move ", move.Source, " to ", move.Target)
		}
		result.Moves = append(result.Moves, move)
	}
	sort.Slice(result.Moves, func(i, j int) bool { return result.Moves[i].Source < result.Moves[j].Source })
	return result, nil
}

func (r *DirectorResult) isFailed(path string) bool {
	for idx := range r.Failed {
		if r.Failed[idx] == path {
			return true
		}
	}
	return false
}

type directorGroup struct {
	info     metadata.DirectorInfo
	names    []string
	existing []string
	common   string
}

// addToGroup adds a director to the group of the same person or opens a new
// group. Groups that turn out to be the same person once the new name links
// them are folded together. Ids learned from a lookup are kept for later
// comparisons.
func addToGroup(groups *[]*directorGroup, info metadata.DirectorInfo, name string, existing bool) *directorGroup {
	var target *directorGroup
	kept := (*groups)[:0]
	for _, group := range *groups {
		if !metadata.SameDirector(&group.info, &info) {
			kept = append(kept, group)
			continue
		}
		if target == nil {
			target = group
			kept = append(kept, group)
			continue
		}
		mergeDirectorInfo(&target.info, &group.info)
		target.names = append(target.names, group.names...)
		target.existing = append(target.existing, group.existing...)
	}
	*groups = kept
	if target == nil {
		target = &directorGroup{info: info}
		*groups = append(*groups, target)
	} else {
		mergeDirectorInfo(&target.info, &info)
	}
	target.names = append(target.names, name)
	if existing {
		target.existing = append(target.existing, name)
	}
	return target
}

func findGroup(groups []*directorGroup, name string) *directorGroup {
	for _, group := range groups {
		for idx := range group.names {
			if group.names[idx] == name {
				return group
			}
		}
	}
	return &directorGroup{common: unknownDirector}
}

func mergeDirectorInfo(dst, src *metadata.DirectorInfo) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.ChineseName == "" {
		dst.ChineseName = src.ChineseName
	}
	if dst.Imdb == "" {
		dst.Imdb = src.Imdb
	}
	if dst.Tmdb == 0 {
		dst.Tmdb = src.Tmdb
	}
	if dst.Douban == "" {
		dst.Douban = src.Douban
	}
}

// mergeFolders renames the director folders to common and updates the
// stored file locations.
func (s *DirectorSorter) mergeFolders(existing []string, common string) error {
	for _, name := range existing {
		if name == common {
			continue
		}
		files, err := database.GetMovieFilesInFolder(filepath.Join(s.Root.Path, name) + string(os.PathSeparator))
		if err != nil {
			return err
		}
		if err := scanner.RenameFolderToCommon(s.Root.Path, []string{name}, common); err != nil {
			return err
		}
		relocateFiles(files, filepath.Join(s.Root.Path, name), filepath.Join(s.Root.Path, common))
	}
	return nil
}

// moveLibraryFolder moves a movie folder and updates the file rows below it.
func moveLibraryFolder(src, dst string) error {
	files, err := database.GetMovieFilesInFolder(src + string(os.PathSeparator))
	if err != nil {
		return err
	}
	if err := scanner.MoveFolder(src, dst); err != nil {
		return err
	}
	relocateFiles(files, src, dst)
	return nil
}

func relocateFiles(files []database.MovieFile, from string, to string) {
	for idx := range files {
		rel, err := filepath.Rel(from, files[idx].Location)
		if err != nil {
			continue
		}
		newpath := filepath.Join(to, rel)
		if _, err := os.Stat(newpath); err != nil {
			// renamed during a merge conflict
			continue
		}
		if err := database.MoveMovieFile(files[idx].Location, newpath); err != nil {
			logger.Log.Error("Update file location: ", files[idx].Location, " Error: ", err)
		}
	}
}
