package metadata

import (
	"context"
	"sync"
	"testing"

	"github.com/Kellerman81/go_media_organizer/apiexternal"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Silence()
}

func moodTmdb() *apiexternal.TheMovieDBMovie {
	m := &apiexternal.TheMovieDBMovie{
		ID:            843,
		ImdbID:        "tt0118694",
		Title:         "In the Mood for Love",
		OriginalTitle: "花樣年華",
		ReleaseDate:   "2000-09-29",
		Runtime:       98,
		VoteAverage:   8.1,
	}
	m.Genres = append(m.Genres, struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}{18, "drama"}, struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}{10749, "Romance"})
	m.Credits.Crew = []apiexternal.TheMovieDBCrew{
		{ID: 12453, Name: "Wong Kar-wai", Job: "Director"},
		{ID: 1, Name: "Christopher Doyle", Job: "Director of Photography"},
	}
	return m
}

func moodImdb() *apiexternal.ImdbTitle {
	return &apiexternal.ImdbTitle{
		ID:        "tt0118694",
		Title:     "In the Mood for Love",
		Year:      2000,
		Runtime:   98,
		Genres:    []string{"Drama", "Romance"},
		Countries: []string{"Hong Kong", "France"},
		Directors: []apiexternal.ImdbPerson{{ID: "nm0939182", Name: "Wong Kar-wai"}},
		Rating:    8.1,
	}
}

func moodDouban() *apiexternal.DoubanSubject {
	return &apiexternal.DoubanSubject{
		ID:            "1291557",
		Title:         "花样年华 花樣年華",
		ChineseTitle:  "花样年华",
		OriginalTitle: "花樣年華",
		Year:          2000,
		Runtime:       98,
		Directors:     []apiexternal.DoubanPerson{{ID: "1023182", Name: "王家卫"}},
		Genres:        []string{"剧情", "爱情"},
		Countries:     []string{"中国香港", "hong kong"},
		Aka:           []string{"In the Mood for Love", "春光乍泄"},
		Imdb:          "tt0118694",
		Rating:        8.8,
	}
}

func TestMergeAllSources(t *testing.T) {
	m := Merge(nil, moodTmdb(), moodImdb(), moodDouban())

	assert.Equal(t, "tt0118694", m.Imdb)
	assert.Equal(t, 843, m.Tmdb)
	assert.Equal(t, "1291557", m.Douban)
	assert.Equal(t, "In the Mood for Love", m.Title)
	assert.Equal(t, "花樣年華", m.OriginalTitle)
	assert.Equal(t, "花样年华", m.ChineseTitle)
	assert.Equal(t, 2000, m.Year)
	assert.Equal(t, 98, m.Runtime)
	assert.Equal(t, []string{"Drama", "Romance", "剧情", "爱情"}, m.Genres)
	assert.Equal(t, []string{"Hong Kong", "France", "中国香港"}, m.Countries)
	assert.Equal(t, []string{"花樣年華", "春光乍泄"}, m.Aliases)
	assert.Equal(t, []string{SourceImdb, SourceTmdb, SourceDouban}, m.Sources)
	assert.Empty(t, m.Conflicts)
	assert.InDelta(t, 8.8, m.RatingDouban, 0.001)
	require.Len(t, m.Directors, 1)
	assert.Equal(t, DirectorInfo{Name: "Wong Kar-wai", ChineseName: "王家卫", Imdb: "nm0939182", Tmdb: 12453, Douban: "1023182"}, m.Directors[0])
}

func TestMergeIsOrderIndependentForIds(t *testing.T) {
	a := Merge([]string{"douban", "tmdb", "imdb"}, moodTmdb(), moodImdb(), moodDouban())
	b := Merge([]string{"imdb", "tmdb", "douban"}, moodTmdb(), moodImdb(), moodDouban())
	assert.Equal(t, a.Imdb, b.Imdb)
	assert.Equal(t, a.Directors[0].Imdb, b.Directors[0].Imdb)
	assert.Equal(t, a.Directors[0].Douban, b.Directors[0].Douban)
	assert.Equal(t, []string{SourceDouban, SourceTmdb, SourceImdb}, a.Sources)
}

func TestMergeConflicts(t *testing.T) {
	tmdb := moodTmdb()
	tmdb.ImdbID = "tt9999999"
	tmdb.ReleaseDate = "2003-01-01"
	m := Merge(nil, tmdb, moodImdb(), nil)

	assert.Equal(t, "tt0118694", m.Imdb)
	assert.Equal(t, 2000, m.Year)
	assert.Equal(t, []string{
		"imdb id: imdb tt0118694 vs tmdb tt9999999",
		"year: imdb 2000, tmdb 2003",
	}, m.Conflicts)
}

func TestMergeTmdbWinsImdbIDOverDouban(t *testing.T) {
	douban := moodDouban()
	douban.Imdb = "tt0000001"
	m := Merge(nil, moodTmdb(), nil, douban)
	assert.Equal(t, "tt0118694", m.Imdb)
	require.Len(t, m.Conflicts, 1)
}

func TestMergePriority(t *testing.T) {
	douban := moodDouban()
	douban.Year = 2001
	douban.Runtime = 99
	m := Merge([]string{"douban", "tmdb"}, moodTmdb(), nil, douban)
	assert.Equal(t, 2001, m.Year)
	assert.Equal(t, 99, m.Runtime)
	assert.Empty(t, m.Conflicts)
}

func TestMergeDoubanOnly(t *testing.T) {
	douban := moodDouban()
	douban.Directors = []apiexternal.DoubanPerson{{ID: "1023182", Name: "王家卫 Kar Wai Wong"}}
	m := Merge(nil, nil, nil, douban)
	assert.Equal(t, "花樣年華", m.Title)
	assert.Equal(t, "tt0118694", m.Imdb)
	assert.Equal(t, []DirectorInfo{{Name: "Kar Wai Wong", ChineseName: "王家卫", Douban: "1023182"}}, m.Directors)
}

func TestMergeDirectorsByNormalizedName(t *testing.T) {
	douban := moodDouban()
	douban.Directors = []apiexternal.DoubanPerson{{ID: "1023182", Name: "王家卫 Kar Wai Wong"}}
	m := Merge(nil, nil, moodImdb(), douban)
	require.Len(t, m.Directors, 1)
	assert.Equal(t, "Wong Kar-wai", m.Directors[0].Name)
	assert.Equal(t, "王家卫", m.Directors[0].ChineseName)
	assert.Equal(t, "nm0939182", m.Directors[0].Imdb)
}

func TestMergeCoDirectors(t *testing.T) {
	imdb := moodImdb()
	imdb.Directors = []apiexternal.ImdbPerson{{ID: "nm1", Name: "Joel Coen"}, {ID: "nm2", Name: "Ethan Coen"}}
	douban := moodDouban()
	douban.Directors = []apiexternal.DoubanPerson{{ID: "1", Name: "乔尔·科恩"}, {ID: "2", Name: "伊桑·科恩"}}
	m := Merge(nil, nil, imdb, douban)
	require.Len(t, m.Directors, 2)
	assert.Equal(t, "乔尔·科恩", m.Directors[0].ChineseName)
	assert.Equal(t, "伊桑·科恩", m.Directors[1].ChineseName)
	assert.Equal(t, "Joel Coen", m.MainDirector().Name)

	douban.Directors = douban.Directors[:1]
	m = Merge(nil, nil, imdb, douban)
	assert.Len(t, m.Directors, 3)
}

func TestNormalizePriority(t *testing.T) {
	assert.Equal(t, []string{"douban", "imdb", "tmdb"}, NormalizePriority([]string{"Douban", "omdb", "douban"}))
	assert.Equal(t, DefaultPriority, NormalizePriority(nil))
}

func TestDisplayTitle(t *testing.T) {
	m := MovieInfo{Title: "In the Mood for Love", OriginalTitle: "花樣年華", ChineseTitle: "花样年华"}
	tests := []struct {
		lang     string
		movie    MovieInfo
		expected string
	}{
		{lang: "english", movie: m, expected: "In the Mood for Love"},
		{lang: "original", movie: m, expected: "花樣年華"},
		{lang: "chinese", movie: m, expected: "花样年华"},
		{lang: "both", movie: m, expected: "花样年华 In the Mood for Love"},
		{lang: "both", movie: MovieInfo{Title: "Heat"}, expected: "Heat"},
		{lang: "chinese", movie: MovieInfo{Title: "Heat"}, expected: "Heat"},
		{lang: "", movie: MovieInfo{ChineseTitle: "霸王别姬"}, expected: "霸王别姬"},
	}
	for _, tt := range tests {
		if result := tt.movie.DisplayTitle(tt.lang); result != tt.expected {
			t.Errorf("DisplayTitle(%q) = %q, expected %q", tt.lang, result, tt.expected)
		}
	}
}

func TestDirectorFolderName(t *testing.T) {
	m := MovieInfo{Directors: []DirectorInfo{{Name: "Wong Kar-wai", ChineseName: "王家卫"}}}
	tests := []struct {
		layout   string
		expected string
	}{
		{layout: "name", expected: "Wong Kar-wai"},
		{layout: "chinese", expected: "王家卫"},
		{layout: "both", expected: "Wong Kar-wai 王家卫"},
	}
	for _, tt := range tests {
		if result := m.DirectorFolderName(tt.layout); result != tt.expected {
			t.Errorf("DirectorFolderName(%q) = %q, expected %q", tt.layout, result, tt.expected)
		}
	}
	assert.Equal(t, "", (&MovieInfo{}).DirectorFolderName("both"))
	assert.Equal(t, "王家卫", (&DirectorInfo{ChineseName: "王家卫"}).FolderName("both"))
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Wong Kar-wai", expected: "kar wai wong"},
		{input: "Kar Wai Wong", expected: "kar wai wong"},
		{input: "Pedro Almodóvar", expected: "almodovar pedro"},
		{input: "王家卫", expected: "王家卫"},
	}
	for _, tt := range tests {
		if result := NormalizeName(tt.input); result != tt.expected {
			t.Errorf("NormalizeName(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("The Matrix", "the matrix"), 0.0001)
	assert.InDelta(t, 1.0, Similarity("In the Mood for Love", "In the Mood For Love!"), 0.0001)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 0.0001)
	assert.InDelta(t, 0.0, Similarity("", ""), 0.0001)
	assert.Greater(t, Similarity("Blade Runner 2049", "Blade Runner"), 0.6)
}

func TestResolveCommonName(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected string
	}{
		{name: "Mixed wins", input: []string{"Wong Kar-wai", "王家卫", "王家卫 Wong Kar-wai"}, expected: "王家卫 Wong Kar-wai"},
		{name: "Most frequent", input: []string{"Kar Wai Wong", "Wong Kar-wai", "王家卫"}, expected: "Kar Wai Wong"},
		{name: "Longest", input: []string{"Zhang Yimou", "Yimou Zhang Jr"}, expected: "Yimou Zhang Jr"},
		{name: "Blank ignored", input: []string{" ", "Ang Lee"}, expected: "Ang Lee"},
		{name: "Empty", input: nil, expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := ResolveCommonName(tt.input); result != tt.expected {
				t.Errorf("ResolveCommonName(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBestCandidate(t *testing.T) {
	cands := []candidate{
		{title: "In the Mood for Love", year: 2005},
		{title: "In the Mood", year: 2000},
		{title: "In the Mood for Love", year: 2000},
	}
	assert.Equal(t, 2, bestCandidate("In the Mood for Love", "", 2000, cands))
	assert.Equal(t, -1, bestCandidate("Chungking Express", "", 1994, cands))
	assert.Equal(t, 0, bestCandidate("In the Mood for Love", "", 0, cands))
}

type fakeTmdb struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTmdb) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTmdb) hit() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeTmdb) SearchMovie(_ context.Context, title string, year int) (apiexternal.TheMovieDBSearch, error) {
	f.hit()
	var s apiexternal.TheMovieDBSearch
	if title == "In the Mood for Love" {
		s.Results = []apiexternal.TheMovieDBFindResult{
			{ID: 1, Title: "In the Mood for Love", ReleaseDate: "2016-01-01"},
			{ID: 843, Title: "In the Mood for Love", OriginalTitle: "花樣年華", ReleaseDate: "2000-09-29"},
		}
	}
	return s, nil
}

func (f *fakeTmdb) FindByImdb(_ context.Context, imdbid string) (apiexternal.TheMovieDBFind, error) {
	f.hit()
	var r apiexternal.TheMovieDBFind
	if imdbid == "tt0118694" {
		r.MovieResults = []apiexternal.TheMovieDBFindResult{{ID: 843}}
	}
	return r, nil
}

func (f *fakeTmdb) GetMovie(_ context.Context, id int) (apiexternal.TheMovieDBMovie, error) {
	f.hit()
	if id != 843 {
		return apiexternal.TheMovieDBMovie{}, logger.ErrNotFound
	}
	return *moodTmdb(), nil
}

type fakeImdb struct{}

func (fakeImdb) GetTitle(_ context.Context, imdbid string) (apiexternal.ImdbTitle, error) {
	if imdbid != "tt0118694" {
		return apiexternal.ImdbTitle{}, logger.ErrNotFound
	}
	return *moodImdb(), nil
}

type limitedImdb struct{}

func (limitedImdb) GetTitle(_ context.Context, imdbid string) (apiexternal.ImdbTitle, error) {
	return apiexternal.ImdbTitle{}, errors.Wrap(logger.ErrRateLimited, imdbid)
}

type fakeDouban struct{}

func (fakeDouban) SearchSuggest(_ context.Context, query string) ([]apiexternal.DoubanSuggest, error) {
	if query == "花样年华" || query == "tt0118694" {
		return []apiexternal.DoubanSuggest{{ID: "1291557", Title: "花样年华", SubTitle: "花樣年華", Year: "2000"}}, nil
	}
	return nil, nil
}

func (fakeDouban) GetSubject(_ context.Context, id string) (apiexternal.DoubanSubject, error) {
	if id != "1291557" {
		return apiexternal.DoubanSubject{}, logger.ErrNotFound
	}
	return *moodDouban(), nil
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]MovieInfo
}

func (c *memoryCache) Fetch(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.data[key]
	if !ok {
		return logger.ErrNotFound
	}
	*value.(*MovieInfo) = m
	return nil
}

func (c *memoryCache) Put(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value.(MovieInfo)
	return nil
}

func TestEnricherLookupByTitle(t *testing.T) {
	tmdb := &fakeTmdb{}
	cache := &memoryCache{data: map[string]MovieInfo{}}
	e := &Enricher{Tmdb: tmdb, Imdb: fakeImdb{}, Douban: fakeDouban{}, Cache: cache, Workers: 3}

	info, err := parser.NewFileParser("花样年华.In.the.Mood.for.Love.2000.1080p.BluRay.x264", false)
	require.NoError(t, err)
	hints := HintsFromParse(info)
	assert.Equal(t, Hints{Title: "In the Mood for Love", ChineseTitle: "花样年华", Year: 2000}, hints)

	movie, err := e.Lookup(context.Background(), hints)
	require.NoError(t, err)
	assert.Equal(t, 843, movie.Tmdb)
	assert.Equal(t, "1291557", movie.Douban)
	assert.Equal(t, []string{SourceImdb, SourceTmdb, SourceDouban}, movie.Sources)
	assert.Equal(t, "Wong Kar-wai 王家卫", movie.DirectorFolderName("both"))

	calls := tmdb.count()
	cached, err := e.Lookup(context.Background(), Hints{Imdb: "tt0118694"})
	require.NoError(t, err)
	assert.Equal(t, movie.Title, cached.Title)
	assert.Equal(t, calls, tmdb.count())
}

func TestEnricherLookupByImdb(t *testing.T) {
	e := &Enricher{Tmdb: &fakeTmdb{}, Imdb: fakeImdb{}, Douban: fakeDouban{}, Workers: 1}
	movie, err := e.Lookup(context.Background(), Hints{Imdb: "tt0118694"})
	require.NoError(t, err)
	assert.Equal(t, "花样年华", movie.ChineseTitle)
	assert.Equal(t, 843, movie.Tmdb)
}

func TestEnricherOmdbFallback(t *testing.T) {
	tests := []struct {
		name string
		e    *Enricher
	}{
		{"imdb rate limited", &Enricher{Imdb: limitedImdb{}, Omdb: fakeImdb{}, Workers: 1}},
		{"omdb only", &Enricher{Omdb: fakeImdb{}, Workers: 1}},
	}
	for _, tt := range tests {
		movie, err := tt.e.Lookup(context.Background(), Hints{Imdb: "tt0118694"})
		require.NoError(t, err, tt.name)
		assert.Equal(t, "In the Mood for Love", movie.Title, tt.name)
		assert.True(t, movie.HasSource(SourceImdb), tt.name)
	}

	e := &Enricher{Imdb: limitedImdb{}, Workers: 1}
	_, err := e.Lookup(context.Background(), Hints{Imdb: "tt0118694"})
	assert.True(t, errors.Is(err, logger.ErrNoMetadata))
}

func TestEnricherNoMetadata(t *testing.T) {
	e := &Enricher{Tmdb: &fakeTmdb{}, Imdb: fakeImdb{}, Douban: fakeDouban{}, Workers: 2}
	_, err := e.Lookup(context.Background(), Hints{Title: "Some Unknown Home Video", Year: 2011})
	assert.True(t, errors.Is(err, logger.ErrNoMetadata))

	out := e.LookupAll(context.Background(), []Hints{{Title: "Some Unknown Home Video"}, {Imdb: "tt0118694"}})
	require.Len(t, out, 2)
	assert.Nil(t, out[0])
	require.NotNil(t, out[1])
	assert.Equal(t, "In the Mood for Love", out[1].Title)
}
