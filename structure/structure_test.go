package structure

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Kellerman81/go_media_organizer/apiexternal"
	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/metadata"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/Kellerman81/go_media_organizer/scanner"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Silence()
}

func setupDB(t *testing.T) {
	t.Helper()
	require.NoError(t, database.InitDB(filepath.Join(t.TempDir(), "data.db")))
	require.NoError(t, database.UpgradeDB())
	t.Cleanup(func() { database.Close() })
}

func touch(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type fakeLookup struct {
	movies map[string]metadata.MovieInfo
	calls  int
	mu     sync.Mutex
}

func (f *fakeLookup) Lookup(_ context.Context, hints metadata.Hints) (*metadata.MovieInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	movie, ok := f.movies[hints.Title]
	if !ok {
		return nil, errors.Wrap(logger.ErrNoMetadata, hints.Title)
	}
	movie.Directors = append([]metadata.DirectorInfo(nil), movie.Directors...)
	return &movie, nil
}

type fakeNotifier struct {
	titles []string
}

func (f *fakeNotifier) SendMessage(_ context.Context, title string, _ string) error {
	f.titles = append(f.titles, title)
	return nil
}

func moodForLove() metadata.MovieInfo {
	return metadata.MovieInfo{
		Imdb:      "tt0118694",
		Title:     "In the Mood for Love",
		Year:      2000,
		Directors: []metadata.DirectorInfo{{Name: "Wong Kar-wai", ChineseName: "王家卫", Imdb: "nm0939182"}},
	}
}

func newTestSorter(root string) (*MovieSorter, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return &MovieSorter{
		Config: config.MovieConfig{
			Naming:           "{{.Director}}/{{.Title}} ({{.Year}})/{{.Title}} ({{.Year}}) [{{.Source.Resolution}}]",
			TitleLanguage:    "english",
			DirectorLayout:   "both",
			Trash:            filepath.Join(root, "trash"),
			BitrateTolerance: config.Float(10),
			SizeTolerance:    config.Float(5),
			CleanupSource:    true,
		},
		Source: config.PathsConfig{
			Path:                   filepath.Join(root, "src"),
			AllowedVideoExtensions: []string{".mkv"},
			AllowedOtherExtensions: []string{".srt"},
		},
		Target:   config.PathsConfig{Path: filepath.Join(root, "lib"), Upgrade: true},
		Lookup:   &fakeLookup{movies: map[string]metadata.MovieInfo{"In the Mood for Love": moodForLove()}},
		Notifier: notifier,
		Workers:  2,
	}, notifier
}

func TestGenerateNamingTemplate(t *testing.T) {
	info := moodForLove()
	info.ChineseTitle = "花样年华"
	m := &parser.ParseInfo{Resolution: "1080p", Quality: "bluray", Codec: ""}
	tests := []struct {
		naming   string
		lang     string
		folder   string
		filename string
	}{
		{
			naming:   "{{.Director}}/{{.Title}} ({{.Year}})/{{.Title}} ({{.Year}}) [{{.Source.Resolution}} {{.Source.Quality}} {{.Source.Codec}}]",
			lang:     "english",
			folder:   filepath.Join("Wong Kar-wai 王家卫", "In the Mood for Love (2000)"),
			filename: "In the Mood for Love (2000) [1080p bluray]",
		},
		{
			naming:   "{{.Title}} ({{.Year}}) {{.Imdb}}/{{.Title}} {{.Edition}}",
			lang:     "both",
			folder:   "花样年华 In the Mood for Love (2000) tt0118694",
			filename: "花样年华 In the Mood for Love",
		},
	}
	for _, tt := range tests {
		folder, filename, err := GenerateNamingTemplate(tt.naming, newNamingData(&info, m, tt.lang, "both"))
		require.NoError(t, err)
		if folder != tt.folder || filename != tt.filename {
			t.Errorf("GenerateNamingTemplate(%q) = %q, %q, expected %q, %q", tt.naming, folder, filename, tt.folder, tt.filename)
		}
	}

	_, _, err := GenerateNamingTemplate("{{.Missing", newNamingData(&info, m, "english", "both"))
	assert.Error(t, err)
}

func TestSortFolderAddSkipReplace(t *testing.T) {
	setupDB(t)
	root := t.TempDir()
	sorter, notifier := newTestSorter(root)
	ctx := context.Background()

	src1080 := filepath.Join(root, "src", "In.the.Mood.for.Love.2000.1080p.BluRay.x264-GRP")
	touch(t, filepath.Join(src1080, "movie.mkv"), 1000)
	touch(t, filepath.Join(src1080, "movie.srt"), 10)

	result, err := sorter.SortFolder(ctx, src1080)
	require.NoError(t, err)
	assert.Equal(t, "add", result.Decision)
	movieDir := filepath.Join(root, "lib", "Wong Kar-wai 王家卫", "In the Mood for Love (2000)")
	first := filepath.Join(movieDir, "In the Mood for Love (2000) [1080p].mkv")
	assert.Equal(t, first, result.Target)
	assert.True(t, exists(first))
	assert.True(t, exists(filepath.Join(movieDir, "In the Mood for Love (2000) [1080p].srt")))
	assert.False(t, exists(src1080))

	movieID, err := database.FindMovieID(result.Movie)
	require.NoError(t, err)
	require.NotZero(t, movieID)

	src720 := filepath.Join(root, "src", "In.the.Mood.for.Love.2000.720p.BluRay.x264-GRP")
	touch(t, filepath.Join(src720, "movie.mkv"), 5000)
	results, err := sorter.SortFolders(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "skip", results[0].Decision)
	assert.Contains(t, results[0].Error, logger.ErrLowerQuality.Error())
	assert.True(t, exists(filepath.Join(src720, "movie.mkv")))
	require.NoError(t, os.RemoveAll(src720))

	src2160 := filepath.Join(root, "src", "In.the.Mood.for.Love.2000.2160p.BluRay.x265-GRP")
	touch(t, filepath.Join(src2160, "movie.mkv"), 2000)
	result, err = sorter.SortFolder(ctx, src2160)
	require.NoError(t, err)
	assert.Equal(t, "replace", result.Decision)
	assert.Equal(t, []string{first}, result.Removed)
	assert.True(t, exists(filepath.Join(movieDir, "In the Mood for Love (2000) [2160p].mkv")))
	assert.False(t, exists(first))
	assert.True(t, exists(filepath.Join(root, "trash", "In the Mood for Love (2000)", "In the Mood for Love (2000) [1080p].mkv")))
	assert.True(t, exists(filepath.Join(root, "trash", "In the Mood for Love (2000)", "In the Mood for Love (2000) [1080p].srt")))

	files, err := database.GetMovieFiles(movieID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "2160p", files[0].Resolution)
	assert.Equal(t, []string{"Movie added", "Movie upgraded"}, notifier.titles)

	directors, err := database.ListDirectors(database.Query{})
	require.NoError(t, err)
	require.Len(t, directors, 1)
	assert.Equal(t, "王家卫", directors[0].ChineseName)
}

func TestSortFolderUpgradeSameName(t *testing.T) {
	setupDB(t)
	root := t.TempDir()
	sorter, _ := newTestSorter(root)
	ctx := context.Background()

	srcA := filepath.Join(root, "src", "In.the.Mood.for.Love.2000.1080p.BluRay.x264-A")
	touch(t, filepath.Join(srcA, "movie.mkv"), 1000)
	result, err := sorter.SortFolder(ctx, srcA)
	require.NoError(t, err)
	assert.Equal(t, "add", result.Decision)
	target := result.Target

	srcB := filepath.Join(root, "src", "In.the.Mood.for.Love.2000.1080p.BluRay.x264-B")
	touch(t, filepath.Join(srcB, "movie.mkv"), 5000)
	result, err = sorter.SortFolder(ctx, srcB)
	require.NoError(t, err)
	assert.Equal(t, "replace", result.Decision)
	assert.Equal(t, target, result.Target)
	assert.Equal(t, []string{target}, result.Removed)
	assert.Equal(t, int64(5000), scanner.GetFileSize(target))
	assert.True(t, exists(filepath.Join(root, "trash", "In the Mood for Love (2000)", filepath.Base(target))))

	files, err := database.GetMovieFilesInFolder(filepath.Dir(target))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(5000), files[0].Size)

	srcC := filepath.Join(root, "src", "In.the.Mood.for.Love.2000.1080p.BluRay.x264-C")
	touch(t, filepath.Join(srcC, "movie.mkv"), 5100)
	result, err = sorter.SortFolder(ctx, srcC)
	assert.True(t, errors.Is(err, logger.ErrLowerQuality))
	assert.Equal(t, "skip", result.Decision)
	assert.True(t, exists(filepath.Join(srcC, "movie.mkv")))
}

func TestSortFolderDryRunAndErrors(t *testing.T) {
	setupDB(t)
	root := t.TempDir()
	sorter, notifier := newTestSorter(root)
	sorter.Config.DryRun = true
	ctx := context.Background()

	src := filepath.Join(root, "src", "In.the.Mood.for.Love.2000.1080p.BluRay.x264-GRP")
	touch(t, filepath.Join(src, "movie.mkv"), 1000)
	result, err := sorter.SortFolder(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "add", result.Decision)
	assert.True(t, exists(filepath.Join(src, "movie.mkv")))
	assert.False(t, exists(filepath.Join(root, "lib")))
	assert.Empty(t, notifier.titles)
	count, err := database.CountRows("movies", database.Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// a vanished library file keeps its row during a dry run
	sorter.Config.DryRun = false
	result, err = sorter.SortFolder(ctx, src)
	require.NoError(t, err)
	require.NoError(t, os.Remove(result.Target))
	sorter.Config.DryRun = true
	again := filepath.Join(root, "src", "In.the.Mood.for.Love.2000.1080p.BluRay.x264-NEW")
	touch(t, filepath.Join(again, "movie.mkv"), 1000)
	result, err = sorter.SortFolder(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, "add", result.Decision)
	assert.True(t, exists(filepath.Join(again, "movie.mkv")))
	count, err = database.CountRows("movie_files", database.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unknown := filepath.Join(root, "src", "Some.Unknown.Film.1999.720p.WEB-DL")
	touch(t, filepath.Join(unknown, "film.mkv"), 1000)
	_, err = sorter.SortFolder(ctx, unknown)
	assert.True(t, errors.Is(err, logger.ErrNoMetadata))

	empty := filepath.Join(root, "src", "Empty.2001")
	touch(t, filepath.Join(empty, "readme.txt"), 10)
	_, err = sorter.SortFolder(ctx, empty)
	assert.True(t, errors.Is(err, logger.ErrNoVideoFiles))

	sorter.Source.Disallowed = []string{"sample"}
	sorter.Source.DeleteDisallowed = true
	blocked := filepath.Join(root, "src", "Blocked.2002")
	touch(t, filepath.Join(blocked, "sample", "x.mkv"), 10)
	_, err = sorter.SortFolder(ctx, blocked)
	assert.True(t, errors.Is(err, logger.ErrDisallowed))
	assert.True(t, exists(filepath.Join(blocked, "sample", "x.mkv")))
}

func TestSortLibraryByDirector(t *testing.T) {
	setupDB(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "Wong Kar-wai", "Chungking Express (1994)", "a.mkv"), 10)
	touch(t, filepath.Join(root, "王家卫", "Fallen Angels (1995)", "b.mkv"), 10)
	touch(t, filepath.Join(root, "In the Mood for Love (2000)", "c.mkv"), 10)
	touch(t, filepath.Join(root, "Unknown Film (1999)", "d.mkv"), 10)

	sorter := &DirectorSorter{
		Root:    config.PathsConfig{Path: root, AllowedVideoExtensions: []string{".mkv"}},
		Layout:  "both",
		Lookup:  &fakeLookup{movies: map[string]metadata.MovieInfo{"In the Mood for Love": moodForLove()}},
		Workers: 2,
	}
	result, err := sorter.SortLibrary(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Moves, 2)
	assert.ElementsMatch(t, []string{"Wong Kar-wai", "王家卫"}, result.Merged["Wong Kar-wai 王家卫"])

	common := filepath.Join(root, "Wong Kar-wai 王家卫")
	assert.True(t, exists(filepath.Join(common, "Chungking Express (1994)", "a.mkv")))
	assert.True(t, exists(filepath.Join(common, "Fallen Angels (1995)", "b.mkv")))
	assert.True(t, exists(filepath.Join(common, "In the Mood for Love (2000)", "c.mkv")))
	assert.True(t, exists(filepath.Join(root, unknownDirector, "Unknown Film (1999)", "d.mkv")))
	assert.False(t, exists(filepath.Join(root, "Wong Kar-wai")))
	assert.False(t, exists(filepath.Join(root, "王家卫")))

	// everything is in place now
	result, err = sorter.SortLibrary(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Moves)
	assert.Empty(t, result.Merged)
}

func TestSortLibraryUpdatesFileRows(t *testing.T) {
	setupDB(t)
	root := t.TempDir()
	location := filepath.Join(root, "In the Mood for Love (2000)", "c.mkv")
	touch(t, location, 10)
	info := moodForLove()
	movieID, err := database.SaveMovie(&info)
	require.NoError(t, err)
	_, err = database.UpsertMovieFile(database.MovieFile{MovieID: movieID, Location: location, Size: 10})
	require.NoError(t, err)

	lookup := &fakeLookup{}
	sorter := &DirectorSorter{Root: config.PathsConfig{Path: root, AllowedVideoExtensions: []string{".mkv"}}, Layout: "name", Lookup: lookup}
	_, err = sorter.SortLibrary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, lookup.calls)

	moved := filepath.Join(root, "Wong Kar-wai", "In the Mood for Love (2000)", "c.mkv")
	assert.True(t, exists(moved))
	file, err := database.GetMovieFileByLocation(moved)
	require.NoError(t, err)
	assert.Equal(t, movieID, file.MovieID)
}

func TestFindDuplicates(t *testing.T) {
	setupDB(t)
	root := t.TempDir()
	info := moodForLove()
	movieID, err := database.SaveMovie(&info)
	require.NoError(t, err)
	keep := filepath.Join(root, "lib", "a", "movie.mkv")
	drop := filepath.Join(root, "lib", "b", "movie.mkv")
	touch(t, keep, 100)
	touch(t, drop, 100)
	touch(t, filepath.Join(root, "lib", "b", "movie.srt"), 1)
	_, err = database.UpsertMovieFile(database.MovieFile{MovieID: movieID, Location: keep, Size: 100, Priority: 69600})
	require.NoError(t, err)
	_, err = database.UpsertMovieFile(database.MovieFile{MovieID: movieID, Location: drop, Size: 100, Priority: 59600})
	require.NoError(t, err)

	opts := DedupeOptions{Options: DefaultOptions(), Trash: filepath.Join(root, "trash"), SidecarExts: []string{".srt"}}
	reports, err := FindDuplicates(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, keep, reports[0].Keep[0].Location)
	assert.Equal(t, drop, reports[0].Remove[0].Location)
	assert.True(t, exists(drop))

	opts.Apply = true
	_, err = FindDuplicates(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, exists(drop))
	assert.True(t, exists(filepath.Join(root, "trash", "b", "movie.mkv")))
	assert.True(t, exists(filepath.Join(root, "trash", "b", "movie.srt")))
	files, err := database.GetMovieFiles(movieID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

type fakeDiscogs struct{}

func (fakeDiscogs) SearchRelease(_ context.Context, artist string, album string, _ int) (apiexternal.DiscogsSearch, error) {
	var search apiexternal.DiscogsSearch
	if album == "Kind of Blue" {
		search.Results = []apiexternal.DiscogsSearchResult{{ID: 1, Title: artist + " - " + album}}
	}
	return search, nil
}

func (fakeDiscogs) GetRelease(_ context.Context, id int) (apiexternal.DiscogsRelease, error) {
	return apiexternal.DiscogsRelease{ID: id, Title: "Kind Of Blue", Year: 1959, Artists: []apiexternal.DiscogsArtist{{Name: "Miles Davis"}}}, nil
}

func TestSortAlbums(t *testing.T) {
	setupDB(t)
	root := t.TempDir()
	src := filepath.Join(root, "src")
	album := filepath.Join(src, "Miles Davis - Kind of Blue")
	for _, name := range []string{"10 Flamenco Sketches.flac", "1 So What.flac", "02 Freddie Freeloader.flac"} {
		touch(t, filepath.Join(album, name), 10)
	}
	touch(t, filepath.Join(src, "【2008】周杰伦 - 魔杰座 [FLAC]", "01 龙战骑士.flac"), 10)

	sorter := &MusicSorter{
		Config:  config.MusicConfig{UseTags: true, WriteAlbumJSON: true, ConvertCue: true},
		Source:  config.PathsConfig{Path: src, AllowedAudioExtensions: []string{".flac"}},
		Target:  config.PathsConfig{Path: filepath.Join(root, "music")},
		Discogs: fakeDiscogs{},
		Workers: 2,
	}
	results, err := sorter.SortAlbums(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	target := filepath.Join(root, "music", "Miles Davis", "Miles Davis - 1959 - Kind Of Blue [FLAC]")
	assert.True(t, exists(filepath.Join(target, "1 So What.flac")))
	var written AlbumJSON
	require.NoError(t, scanner.ReadJSON(filepath.Join(target, albumFile), &written))
	assert.Equal(t, 1, written.DiscogsID)
	assert.Equal(t, 1959, written.Year)
	require.Len(t, written.Tracks, 3)
	assert.Equal(t, "1 So What.flac", written.Tracks[0].File)
	assert.Equal(t, "02 Freddie Freeloader.flac", written.Tracks[1].File)
	assert.Equal(t, "10 Flamenco Sketches.flac", written.Tracks[2].File)

	assert.True(t, exists(filepath.Join(root, "music", "周杰伦", "周杰伦 - 2008 - 魔杰座 [FLAC]", "01 龙战骑士.flac")))

	albums, err := database.ListAlbums(database.Query{OrderBy: "artist"})
	require.NoError(t, err)
	assert.Len(t, albums, 2)
}

func TestNormalizeAndCleanFolders(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "周杰伦-《魔杰座》2008-WAV", "a.wav"), 1)
	touch(t, filepath.Join(root, "Miles Davis - Kind of Blue", "a.flac"), 1)
	renamed, err := NormalizeFolders(root, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"周杰伦-《魔杰座》2008-WAV": "周杰伦 - 2008 - 魔杰座 [WAV]"}, renamed)
	assert.True(t, exists(filepath.Join(root, "周杰伦 - 2008 - 魔杰座 [WAV]", "a.wav")))

	touch(t, filepath.Join(root, "nested", "inner", "deep", "x.flac"), 1)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	collapsed, removed, err := CleanFolders(root, []string{"Thumbs.db"})
	require.NoError(t, err)
	assert.Equal(t, 2, collapsed)
	assert.GreaterOrEqual(t, removed, 1)
	assert.True(t, exists(filepath.Join(root, "nested", "x.flac")))
	assert.False(t, exists(filepath.Join(root, "empty")))
}
