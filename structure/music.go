package structure

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Kellerman81/go_media_organizer/apiexternal"
	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/metadata"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/Kellerman81/go_media_organizer/scanner"
	"github.com/dhowden/tag"
	"github.com/maruel/natural"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"
)

const albumFile = "album.json"

type ReleaseSource interface {
	SearchRelease(ctx context.Context, artist string, album string, year int) (apiexternal.DiscogsSearch, error)
	GetRelease(ctx context.Context, id int) (apiexternal.DiscogsRelease, error)
}

type MusicSorter struct {
	Config  config.MusicConfig
	Source  config.PathsConfig
	Target  config.PathsConfig
	Discogs ReleaseSource
	Workers int
}

type Track struct {
	File   string `json:"file"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Track  int    `json:"track,omitempty"`
	Disc   int    `json:"disc,omitempty"`
}

type AlbumJSON struct {
	parser.AlbumInfo
	DiscogsID int     `json:"discogs_id,omitempty"`
	Tracks    []Track `json:"tracks"`
}

type AlbumResult struct {
	Source string           `json:"source"`
	Target string           `json:"target,omitempty"`
	Album  parser.AlbumInfo `json:"album"`
	Error  string           `json:"error,omitempty"`
}

func NewMusicSorter(name string) (*MusicSorter, error) {
	cfg, err := config.GetMusic(name)
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
	sorter := &MusicSorter{Config: cfg, Source: source, Target: target, Workers: config.General().WorkerFiles}
	if cfg.UseDiscogs && apiexternal.DiscogsApi != nil {
		sorter.Discogs = apiexternal.DiscogsApi
	}
	return sorter, nil
}

// SortAlbums processes every album folder of the source path.
func (s *MusicSorter) SortAlbums(ctx context.Context) ([]AlbumResult, error) {
	entries, err := firstLevel(s.Source.Path)
	if err != nil {
		return nil, err
	}
	results := make([]AlbumResult, 0, len(entries))
	resultCh := make(chan AlbumResult, len(entries))
	swg := sizedwaitgroup.New(max(s.Workers, 1))
	for idx := range entries {
		if info, err := os.Stat(entries[idx]); err != nil || !info.IsDir() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		swg.Add()
		go func(folder string) {
			defer swg.Done()
			result, err := s.SortAlbum(ctx, folder)
			if err != nil {
				result.Error = err.Error()
				logger.Log.WithFields(logrus.Fields{"path": folder}).Error(err)
			}
			resultCh <- result
		}(entries[idx])
	}
	swg.Wait()
	close(resultCh)
	for result := range resultCh {
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool { return natural.Less(results[i].Source, results[j].Source) })
	return results, ctx.Err()
}

// tagVote counts values and returns the most frequent one. Ties go to the
// value seen first.
type tagVote struct {
	order  []string
	counts map[string]int
}

func (v *tagVote) add(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if v.counts == nil {
		v.counts = make(map[string]int)
	}
	if _, ok := v.counts[value]; !ok {
		v.order = append(v.order, value)
	}
	v.counts[value]++
}

func (v *tagVote) winner() string {
	best := ""
	for _, value := range v.order {
		if best == "" || v.counts[value] > v.counts[best] {
			best = value
		}
	}
	return best
}

func readTrack(file string) (Track, tag.Metadata, error) {
	track := Track{File: filepath.Base(file)}
	f, err := os.Open(file)
	if err != nil {
		return track, nil, err
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return track, nil, err
	}
	track.Title = m.Title()
	track.Artist = m.Artist()
	track.Track, _ = m.Track()
	track.Disc, _ = m.Disc()
	return track, m, nil
}

// readTags reads the tags of all files and votes on artist, album and year.
func readTags(files []string) (parser.AlbumInfo, []Track) {
	var artist, album, year tagVote
	tracks := make([]Track, 0, len(files))
	for idx := range files {
		track, m, err := readTrack(files[idx])
		tracks = append(tracks, track)
		if err != nil {
			logger.Log.Debug("no tags: ", files[idx], " ", err)
			continue
		}
		if m.AlbumArtist() != "" {
			artist.add(m.AlbumArtist())
		} else {
			artist.add(m.Artist())
		}
		album.add(m.Album())
		if m.Year() > 0 {
			year.add(strconv.Itoa(m.Year()))
		}
	}
	info := parser.AlbumInfo{Artist: artist.winner(), Album: album.winner()}
	info.Year, _ = strconv.Atoi(year.winner())
	return info, tracks
}

// sortTracks orders by disc and track number, untagged files naturally by name.
func sortTracks(tracks []Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		if a.Disc != b.Disc {
			return a.Disc < b.Disc
		}
		if a.Track != 0 && b.Track != 0 && a.Track != b.Track {
			return a.Track < b.Track
		}
		return natural.Less(a.File, b.File)
	})
}

func formatFromFiles(files []string) string {
	var vote tagVote
	for idx := range files {
		vote.add(strings.ToUpper(strings.TrimPrefix(filepath.Ext(files[idx]), ".")))
	}
	return vote.winner()
}

// lookupRelease fills the album from the best discogs search result.
func (s *MusicSorter) lookupRelease(ctx context.Context, info *parser.AlbumInfo) int {
	if s.Discogs == nil || info.Album == "" {
		return 0
	}
	search, err := s.Discogs.SearchRelease(ctx, info.Artist, info.Album, info.Year)
	if err != nil {
		logger.Log.Warn("discogs search ", info.Album, ": ", err)
		return 0
	}
	for _, hit := range search.Results {
		release, err := s.Discogs.GetRelease(ctx, hit.ID)
		if err != nil {
			logger.Log.Warn("discogs release ", hit.ID, ": ", err)
			return 0
		}
		if metadata.Similarity(release.Title, info.Album) < metadata.MinSimilarity {
			continue
		}
		if name := release.ArtistName(); name != "" && (info.Artist == "" || metadata.Similarity(name, info.Artist) >= metadata.MinSimilarity) {
			info.Artist = name
		}
		info.Album = release.Title
		if release.Year > 0 {
			info.Year = release.Year
		}
		if info.Catalog == "" && len(release.Labels) >= 1 {
			info.Catalog = release.Labels[0].Catno
		}
		return release.ID
	}
	return 0
}

func (s *MusicSorter) albumTarget(info parser.AlbumInfo) string {
	artist := logger.Path(info.Artist, false)
	if artist == "" {
		artist = unknownDirector
	}
	return filepath.Join(s.Target.Path, artist, info.FolderName())
}

// SortAlbum renames one album folder to "Artist/Artist - Year - Album [FORMAT]"
// below the target path.
func (s *MusicSorter) SortAlbum(ctx context.Context, folder string) (AlbumResult, error) {
	result := AlbumResult{Source: folder}
	files := scanner.GetFilesDir(folder, s.Source.AllowedAudioExtensions, nil, s.Source.Blocked)
	if len(files) == 0 {
		return result, errors.Wrap(logger.ErrNotFound, "no audio files in "+folder)
	}
	sort.Slice(files, func(i, j int) bool { return natural.Less(files[i], files[j]) })

	info := parser.ParseAlbumFolder(filepath.Base(folder))
	tracks := make([]Track, 0, len(files))
	if s.Config.UseTags {
		var tagged parser.AlbumInfo
		tagged, tracks = readTags(files)
		info.Fill(tagged)
	} else {
		for idx := range files {
			tracks = append(tracks, Track{File: filepath.Base(files[idx])})
		}
	}
	if info.Format == "" {
		info.Format = formatFromFiles(files)
	}
	discogsID := s.lookupRelease(ctx, &info)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	sortTracks(tracks)
	result.Album = info
	if info.Artist == "" && info.Album == "" {
		return result, errors.Wrap(logger.ErrNoMetadata, folder)
	}

	target := s.albumTarget(info)
	result.Target = target
	if s.Config.DryRun {
		logger.Log.Info("Dry run: would move ", folder, " to ", target)
		return result, nil
	}

	if s.Config.ConvertCue {
		for _, cue := range scanner.GetFilesDir(folder, []string{".cue"}, nil, nil) {
			if _, err := scanner.ConvertToUTF8(cue); err != nil {
				logger.Log.Warn("cue conversion ", cue, ": ", err)
			}
		}
	}
	if filepath.Clean(folder) != filepath.Clean(target) {
		if err := scanner.MoveFolder(folder, target); err != nil {
			return result, err
		}
	}
	if s.Config.WriteAlbumJSON {
		if err := scanner.WriteJSON(filepath.Join(target, albumFile), AlbumJSON{AlbumInfo: info, DiscogsID: discogsID, Tracks: tracks}); err != nil {
			return result, err
		}
	}
	_, err := database.UpsertAlbum(database.Album{
		Artist:     info.Artist,
		Album:      info.Album,
		Year:       info.Year,
		Format:     info.Format,
		BitDepth:   info.BitDepth,
		SampleRate: info.SampleRate,
		Catalog:    info.Catalog,
		DiscogsID:  discogsID,
		Tracks:     len(tracks),
		Location:   target,
	})
	if err != nil {
		return result, err
	}
	logger.Log.WithFields(logrus.Fields{"artist": info.Artist, "album": info.Album}).Info("Album sorted: ", target)
	return result, nil
}

// NormalizeFolders renames the album folders below root in place to their
// normalized names. It returns the old and new names of renamed folders.
func NormalizeFolders(root string, dryRun bool) (map[string]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", root)
	}
	renamed := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info := parser.ParseAlbumFolder(entry.Name())
		if info.Artist == "" || info.Album == "" {
			continue
		}
		name := info.FolderName()
		if name == "" || name == entry.Name() {
			continue
		}
		renamed[entry.Name()] = name
		if dryRun {
			logger.Log.Info("Dry run: would rename ", entry.Name(), " to ", name)
			continue
		}
		if err := scanner.MoveFolder(filepath.Join(root, entry.Name()), filepath.Join(root, name)); err != nil {
			return renamed, err
		}
		logger.Log.Info("Folder renamed: ", entry.Name(), " -> ", name)
	}
	return renamed, nil
}

// CleanFolders collapses redundant single-child folders and removes empty
// ones below root.
func CleanFolders(root string, junk []string) (collapsed int, removed int, err error) {
	collapsed, err = scanner.RemoveRedundantDirs(root, junk)
	if err != nil {
		return collapsed, 0, err
	}
	removed, err = scanner.RemoveEmptyDirs(root)
	return collapsed, removed, err
}
