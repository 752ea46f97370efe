package structure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Kellerman81/go_media_organizer/apiexternal"
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

const unknownDirector = "_unknown"

// MovieLookup resolves parsed hints to a merged record.
type MovieLookup interface {
	Lookup(ctx context.Context, hints metadata.Hints) (*metadata.MovieInfo, error)
}

type MovieSorter struct {
	Config      config.MovieConfig
	Source      config.PathsConfig
	Target      config.PathsConfig
	Lookup      MovieLookup
	Notifier    apiexternal.Notifier
	FfprobePath string
	Workers     int

	// apply runs one at a time so two sources of the same movie see each other
	applyMu sync.Mutex
}

// MovieResult describes what happened to one source entry.
type MovieResult struct {
	Source   string              `json:"source"`
	Target   string              `json:"target,omitempty"`
	Decision string              `json:"decision,omitempty"`
	Removed  []string            `json:"removed,omitempty"`
	Movie    *metadata.MovieInfo `json:"movie,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// NewMovieSorter builds a sorter from a [[movies]] section.
func NewMovieSorter(name string, lookup MovieLookup, notifier apiexternal.Notifier) (*MovieSorter, error) {
	cfg, err := config.GetMovie(name)
	if err != nil {
		return nil, err
	}
	source, err := config.GetPath(cfg.Source)
	if err != nil {
		return nil, err
	}
	target, err := config.GetPath(cfg.Target)
	if err != nil {
		return nil, err
	}
	general := config.General()
	if notifier == nil {
		notifier = apiexternal.NoopNotifier{}
	}
	return &MovieSorter{
		Config:      cfg,
		Source:      source,
		Target:      target,
		Lookup:      lookup,
		Notifier:    notifier,
		FfprobePath: parser.FFProbeFilename(general.FfprobePath),
		Workers:     general.WorkerFiles,
	}, nil
}

func (s *MovieSorter) options() Options {
	bitrate, size := s.Config.Tolerances()
	return Options{BitrateTolerance: bitrate, SizeTolerance: size, Upgrade: s.Target.Upgrade}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// firstLevel lists the folders and loose files directly below root.
func firstLevel(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", root)
	}
	list := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		list = append(list, filepath.Join(root, entry.Name()))
	}
	return list, nil
}

// SortFolders processes every entry of the source path.
func (s *MovieSorter) SortFolders(ctx context.Context) ([]MovieResult, error) {
	entries, err := firstLevel(s.Source.Path)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Check Source: ", s.Source.Path, " entries: ", len(entries))

	results := make([]MovieResult, len(entries))
	swg := sizedwaitgroup.New(max(s.Workers, 1))
	for idx := range entries {
		if ctx.Err() != nil {
			break
		}
		swg.Add()
		go func(idx int) {
			defer swg.Done()
			result, err := s.SortFolder(ctx, entries[idx])
			if err != nil {
				result.Error = err.Error()
				switch {
				case errors.Is(err, logger.ErrLowerQuality), errors.Is(err, logger.ErrNoVideoFiles):
					logger.Log.WithFields(logrus.Fields{"path": entries[idx]}).Info(err)
				default:
					logger.Log.WithFields(logrus.Fields{"path": entries[idx]}).Error(err)
				}
			}
			results[idx] = result
		}(idx)
	}
	swg.Wait()
	return results, ctx.Err()
}

func (s *MovieSorter) videoFiles(entry string) ([]string, error) {
	info, err := os.Stat(entry)
	if err != nil {
		return nil, err
	}
	var files []string
	if info.IsDir() {
		files = scanner.GetFilesDir(entry, s.Source.AllowedVideoExtensions, s.Source.AllowedVideoExtensionsNoRename, s.Source.Blocked)
	} else if scanner.IsVideoFile(entry, s.Source.AllowedVideoExtensions) {
		files = []string{entry}
	}
	minsize := int64(s.Source.MinVideoSize) * 1024 * 1024
	videos := files[:0]
	for idx := range files {
		if minsize > 0 && fileSize(files[idx]) < minsize {
			logger.Log.Debug("Skipped small file: ", files[idx])
			continue
		}
		videos = append(videos, files[idx])
	}
	if len(videos) == 0 {
		return nil, errors.Wrap(logger.ErrNoVideoFiles, entry)
	}
	sort.Slice(videos, func(i, j int) bool { return fileSize(videos[i]) > fileSize(videos[j]) })
	return videos, nil
}

// parseEntry parses the folder name and falls back to the video file name
// for values the folder did not carry.
func (s *MovieSorter) parseEntry(ctx context.Context, entry string, videofile string) (*parser.ParseInfo, error) {
	m, err := parser.NewFileParser(filepath.Base(entry), false)
	if err != nil {
		return nil, err
	}
	if entry != videofile {
		if fm, err := parser.NewFileParser(filepath.Base(videofile), false); err == nil {
			fillParse(m, fm)
		}
	}
	m.File = videofile
	m.Size = fileSize(videofile)
	if s.Config.UseFFProbe {
		video, err := parser.ProbeFile(ctx, s.FfprobePath, videofile)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"path": videofile}).Warn("ffprobe: ", err)
		} else {
			m.ApplyVideo(video)
		}
	}
	m.GetPriority(s.Config.DefaultQuality, s.Config.DefaultResolution)
	return m, nil
}

func fillParse(m *parser.ParseInfo, other *parser.ParseInfo) {
	if m.Title == "" {
		m.Title = other.Title
	}
	if m.Year == 0 {
		m.Year = other.Year
	}
	if m.Imdb == "" {
		m.Imdb = other.Imdb
	}
	if m.Tmdb == 0 {
		m.Tmdb = other.Tmdb
	}
	if m.Douban == "" {
		m.Douban = other.Douban
	}
	if m.Resolution == "" {
		m.Resolution = other.Resolution
	}
	if m.Quality == "" {
		m.Quality = other.Quality
	}
	if m.Codec == "" {
		m.Codec = other.Codec
	}
	if m.Audio == "" {
		m.Audio = other.Audio
	}
	if m.Edition == "" {
		m.Edition = other.Edition
	}
	m.Proper = m.Proper || other.Proper
	m.Repack = m.Repack || other.Repack
	m.Extended = m.Extended || other.Extended
}

// existingFiles returns the library files of the movie that still exist.
// Rows of vanished files are removed unless dryRun is set.
func existingFiles(movieID int64, dryRun bool) []Candidate {
	if movieID == 0 {
		return nil
	}
	files, err := database.GetMovieFiles(movieID)
	if err != nil {
		logger.Log.Error("Query movie files: ", err)
		return nil
	}
	cands := make([]Candidate, 0, len(files))
	for idx := range files {
		if _, err := os.Stat(files[idx].Location); os.IsNotExist(err) {
			if !dryRun {
				logger.Log.Debug("Removed stale file row: ", files[idx].Location)
				database.DeleteMovieFile(files[idx].Location)
			}
			continue
		}
		cands = append(cands, CandidateFromFile(&files[idx]))
	}
	return cands
}

// SortFolder sorts one source entry into the library.
func (s *MovieSorter) SortFolder(ctx context.Context, entry string) (MovieResult, error) {
	result := MovieResult{Source: entry}
	if scanner.CheckDisallowed(entry, s.Source.Disallowed, s.Source.DeleteDisallowed && !s.Config.DryRun) {
		return result, errors.Wrap(logger.ErrDisallowed, entry)
	}
	videos, err := s.videoFiles(entry)
	if err != nil {
		return result, err
	}
	if len(videos) > 1 {
		logger.Log.WithFields(logrus.Fields{"path": entry}).Warn("Multiple video files, using the largest: ", filepath.Base(videos[0]))
	}
	videofile := videos[0]

	m, err := s.parseEntry(ctx, entry, videofile)
	if err != nil {
		return result, err
	}
	if s.Lookup == nil {
		return result, errors.Wrap(logger.ErrNoMetadata, "no metadata source")
	}
	info, err := s.Lookup.Lookup(ctx, metadata.HintsFromParse(m))
	if err != nil {
		return result, err
	}
	result.Movie = info

	foldername, filename, err := GenerateNamingTemplate(s.Config.Naming, newNamingData(info, m, s.Config.TitleLanguage, s.Config.DirectorLayout))
	if err != nil {
		return result, err
	}
	targetdir := filepath.Join(s.Target.Path, foldername)
	target := filepath.Join(targetdir, filename+strings.ToLower(filepath.Ext(videofile)))
	result.Target = target

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	movieID, err := database.FindMovieID(info)
	if err != nil {
		return result, err
	}
	decision, removals := DecideAgainst(CandidateFromParse(m, videofile), existingFiles(movieID, s.Config.DryRun), s.options())
	result.Decision = decision.String()
	fields := logrus.Fields{"path": entry, "imdb": info.Imdb, "decision": result.Decision}
	if decision == Skip {
		return result, errors.Wrapf(logger.ErrLowerQuality, "%s (%d)", info.Title, info.Year)
	}
	for idx := range removals {
		result.Removed = append(result.Removed, removals[idx].Location)
	}
	if s.Config.DryRun {
		logger.Log.WithFields(fields).Info("Dry run: would move ", videofile, " to ", target, " removing ", result.Removed)
		return result, nil
	}

	// replaced files go first so an upgrade can take over their name
	s.removeFiles(removals, videofile)
	moved, err := scanner.MoveFile(videofile, target)
	if err != nil {
		return result, errors.Wrapf(err, "move %s", videofile)
	}
	result.Target = moved
	s.moveAdditionalFiles(entry, videofile, targetdir, strings.TrimSuffix(filepath.Base(moved), filepath.Ext(moved)))

	movieID, err = database.SaveMovie(info)
	if err != nil {
		return result, err
	}
	_, err = database.UpsertMovieFile(database.MovieFile{
		MovieID:    movieID,
		Location:   moved,
		Filename:   filepath.Base(moved),
		Size:       m.Size,
		Resolution: m.Resolution,
		Quality:    m.Quality,
		Codec:      m.Codec,
		Audio:      m.Audio,
		Priority:   m.Priority,
		Bitrate:    m.EstimateBitrate(),
		Runtime:    m.Runtime,
		Edition:    m.Edition,
		Proper:     m.Proper,
		Repack:     m.Repack,
	})
	if err != nil {
		return result, err
	}
	if s.Config.CleanupSource && entry != videofile {
		scanner.CleanUpFolder(entry, max(s.Source.MinVideoSize, 1))
	}
	logger.Log.WithFields(fields).Info("Movie sorted: ", moved)
	s.notify(ctx, info, &result)
	return result, nil
}

func (s *MovieSorter) moveAdditionalFiles(entry string, videofile string, targetdir string, basename string) {
	if entry == videofile {
		return
	}
	additional := scanner.GetFilesDir(entry, s.Source.AllowedOtherExtensions, nil, s.Source.Blocked)
	if len(additional) == 0 {
		return
	}
	// sidecar files follow the video name, others keep theirs
	videobase := strings.TrimSuffix(filepath.Base(videofile), filepath.Ext(videofile))
	for idx := range additional {
		name := filepath.Base(additional[idx])
		if strings.HasPrefix(name, videobase) {
			name = basename + strings.TrimPrefix(name, videobase)
		}
		if _, err := scanner.MoveFile(additional[idx], filepath.Join(targetdir, name)); err != nil {
			logger.Log.Error("Additional file could not be moved: ", additional[idx], " Error: ", err)
		}
	}
}

// removeFiles moves replaced files to the trash path or deletes them,
// together with their sidecar files.
func (s *MovieSorter) removeFiles(removals []Candidate, keep string) {
	for idx := range removals {
		removeReplaced(removals[idx].Location, keep, s.Config.Trash, s.Source.AllowedOtherExtensions)
	}
}

func removeReplaced(location string, keep string, trash string, sidecarExts []string) {
	if samePath(location, keep) {
		return
	}
	files := []string{location}
	base := strings.TrimSuffix(location, filepath.Ext(location))
	for idx := range sidecarExts {
		if sidecar := base + sidecarExts[idx]; sidecar != location && sidecar != keep && fileSize(sidecar) > 0 {
			files = append(files, sidecar)
		}
	}
	for idx := range files {
		var err error
		if trash != "" {
			_, err = scanner.MoveFile(files[idx], filepath.Join(trash, filepath.Base(filepath.Dir(files[idx])), filepath.Base(files[idx])))
		} else {
			err = os.Remove(files[idx])
		}
		if err != nil {
			logger.Log.Error("Old file could not be removed: ", files[idx], " Error: ", err)
			continue
		}
		logger.Log.Info("Old file removed: ", files[idx])
	}
	if err := database.DeleteMovieFile(location); err != nil {
		logger.Log.Error("Delete file row: ", location, " Error: ", err)
	}
	dir := filepath.Dir(location)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

func (s *MovieSorter) notify(ctx context.Context, info *metadata.MovieInfo, result *MovieResult) {
	if s.Notifier == nil {
		return
	}
	title := "Movie added"
	if len(result.Removed) >= 1 {
		title = "Movie upgraded"
	}
	message := fmt.Sprintf("%s (%d)\n%s", info.DisplayTitle(s.Config.TitleLanguage), info.Year, result.Target)
	if len(result.Removed) >= 1 {
		message += "\nreplaced: " + strings.Join(result.Removed, ", ")
	}
	if err := s.Notifier.SendMessage(ctx, title, message); err != nil {
		logger.Log.Error("Error sending notification: ", err)
	}
}
