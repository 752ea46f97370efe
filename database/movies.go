// movies
package database

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/metadata"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// StringList is stored as a json array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	return string(data), err
}

func (l *StringList) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.Errorf("unsupported type %T for StringList", src)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		out = nil
	}
	*l = out
	return nil
}

type Movie struct {
	ID            int64      `db:"id" json:"id"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	ImdbID        string     `db:"imdb_id" json:"imdb_id"`
	TmdbID        int        `db:"tmdb_id" json:"tmdb_id"`
	DoubanID      string     `db:"douban_id" json:"douban_id"`
	Title         string     `db:"title" json:"title"`
	OriginalTitle string     `db:"original_title" json:"original_title"`
	ChineseTitle  string     `db:"chinese_title" json:"chinese_title"`
	Slug          string     `db:"slug" json:"slug"`
	Year          int        `db:"year" json:"year"`
	Runtime       int        `db:"runtime" json:"runtime"`
	Genres        StringList `db:"genres" json:"genres"`
	Countries     StringList `db:"countries" json:"countries"`
	Languages     StringList `db:"languages" json:"languages"`
	Aliases       StringList `db:"aliases" json:"aliases"`
	RatingImdb    float32    `db:"rating_imdb" json:"rating_imdb"`
	RatingTmdb    float32    `db:"rating_tmdb" json:"rating_tmdb"`
	RatingDouban  float32    `db:"rating_douban" json:"rating_douban"`
	Sources       StringList `db:"sources" json:"sources"`
}

// Info converts the row back into a merged record without directors.
func (m *Movie) Info() metadata.MovieInfo {
	return metadata.MovieInfo{
		Imdb:          m.ImdbID,
		Tmdb:          m.TmdbID,
		Douban:        m.DoubanID,
		Title:         m.Title,
		OriginalTitle: m.OriginalTitle,
		ChineseTitle:  m.ChineseTitle,
		Aliases:       m.Aliases,
		Year:          m.Year,
		Runtime:       m.Runtime,
		Genres:        m.Genres,
		Countries:     m.Countries,
		Languages:     m.Languages,
		RatingImdb:    m.RatingImdb,
		RatingTmdb:    m.RatingTmdb,
		RatingDouban:  m.RatingDouban,
		Sources:       m.Sources,
	}
}

type Director struct {
	ID          int64     `db:"id" json:"id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	Name        string    `db:"name" json:"name"`
	ChineseName string    `db:"chinese_name" json:"chinese_name"`
	ImdbID      string    `db:"imdb_id" json:"imdb_id"`
	TmdbID      int       `db:"tmdb_id" json:"tmdb_id"`
	DoubanID    string    `db:"douban_id" json:"douban_id"`
}

func (d *Director) Info() metadata.DirectorInfo {
	return metadata.DirectorInfo{Name: d.Name, ChineseName: d.ChineseName, Imdb: d.ImdbID, Tmdb: d.TmdbID, Douban: d.DoubanID}
}

type MovieFile struct {
	ID         int64     `db:"id" json:"id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	MovieID    int64     `db:"movie_id" json:"movie_id"`
	Location   string    `db:"location" json:"location"`
	Filename   string    `db:"filename" json:"filename"`
	Size       int64     `db:"size" json:"size"`
	Resolution string    `db:"resolution" json:"resolution"`
	Quality    string    `db:"quality" json:"quality"`
	Codec      string    `db:"codec" json:"codec"`
	Audio      string    `db:"audio" json:"audio"`
	Priority   int       `db:"priority" json:"priority"`
	Bitrate    int64     `db:"bitrate" json:"bitrate"`
	Runtime    int       `db:"runtime" json:"runtime"`
	Edition    string    `db:"edition" json:"edition"`
	Proper     bool      `db:"proper" json:"proper"`
	Repack     bool      `db:"repack" json:"repack"`
}

type Album struct {
	ID         int64     `db:"id" json:"id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	Artist     string    `db:"artist" json:"artist"`
	Album      string    `db:"album" json:"album"`
	Year       int       `db:"year" json:"year"`
	Format     string    `db:"format" json:"format"`
	BitDepth   int       `db:"bit_depth" json:"bit_depth"`
	SampleRate string    `db:"sample_rate" json:"sample_rate"`
	Catalog    string    `db:"catalog" json:"catalog"`
	DiscogsID  int       `db:"discogs_id" json:"discogs_id"`
	Tracks     int       `db:"tracks" json:"tracks"`
	Location   string    `db:"location" json:"location"`
}

// DuplicateGroup is a movie with more than one file in the library.
type DuplicateGroup struct {
	Movie Movie       `json:"movie"`
	Files []MovieFile `json:"files"`
}

// fields collects the non-empty columns of an upsert.
type fields struct {
	columns []string
	values  []interface{}
}

func (f *fields) str(column string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		f.columns = append(f.columns, column)
		f.values = append(f.values, value)
	}
}

func (f *fields) num(column string, value int64) {
	if value != 0 {
		f.columns = append(f.columns, column)
		f.values = append(f.values, value)
	}
}

func (f *fields) float(column string, value float32) {
	if value != 0 {
		f.columns = append(f.columns, column)
		f.values = append(f.values, value)
	}
}

func (f *fields) list(column string, value []string) {
	if len(value) != 0 {
		f.columns = append(f.columns, column)
		f.values = append(f.values, StringList(value))
	}
}

func (f *fields) flag(column string, value bool) {
	f.columns = append(f.columns, column)
	f.values = append(f.values, value)
}

func movieLookups(m *metadata.MovieInfo) []Query {
	var lookups []Query
	if m.Imdb != "" {
		lookups = append(lookups, Query{Where: "imdb_id = ?", WhereArgs: []interface{}{m.Imdb}})
	}
	if m.Tmdb != 0 {
		lookups = append(lookups, Query{Where: "tmdb_id = ?", WhereArgs: []interface{}{m.Tmdb}})
	}
	if m.Douban != "" {
		lookups = append(lookups, Query{Where: "douban_id = ?", WhereArgs: []interface{}{m.Douban}})
	}
	if m.Title != "" {
		lookups = append(lookups, Query{Where: "title = ? COLLATE NOCASE and year = ?", WhereArgs: []interface{}{m.Title, m.Year}})
	}
	return lookups
}

// FindMovieID returns the id UpsertMovie would update or 0 for a new movie.
func FindMovieID(m *metadata.MovieInfo) (int64, error) {
	lookups := movieLookups(m)
	ReadWriteMu.RLock()
	defer ReadWriteMu.RUnlock()
	for idx := range lookups {
		id, err := queryID("movies", lookups[idx])
		if err != nil || id != 0 {
			return id, err
		}
	}
	return 0, nil
}

// UpsertMovie stores a merged record. The row is found by imdb, tmdb and
// douban id and then by title and year. Existing values are only replaced by
// non-empty ones so ids are never cleared.
func UpsertMovie(m *metadata.MovieInfo) (int64, error) {
	if m == nil || (m.Title == "" && m.Imdb == "" && m.Tmdb == 0 && m.Douban == "") {
		return 0, errors.Wrap(logger.ErrInvalidInput, "movie without title and ids")
	}
	lookups := movieLookups(m)

	var f fields
	f.str("imdb_id", m.Imdb)
	f.num("tmdb_id", int64(m.Tmdb))
	f.str("douban_id", m.Douban)
	f.str("title", m.Title)
	f.str("original_title", m.OriginalTitle)
	f.str("chinese_title", m.ChineseTitle)
	f.str("slug", logger.StringToSlug(m.DisplayTitle("english")))
	f.num("year", int64(m.Year))
	f.num("runtime", int64(m.Runtime))
	f.list("genres", m.Genres)
	f.list("countries", m.Countries)
	f.list("languages", m.Languages)
	f.list("aliases", m.Aliases)
	f.float("rating_imdb", m.RatingImdb)
	f.float("rating_tmdb", m.RatingTmdb)
	f.float("rating_douban", m.RatingDouban)
	f.list("sources", m.Sources)
	return upsertRow("movies", lookups, f.columns, f.values)
}

// UpsertDirector finds a director by imdb, tmdb and douban id, then by name.
func UpsertDirector(d metadata.DirectorInfo) (int64, error) {
	if d.Name == "" && d.ChineseName == "" {
		return 0, errors.Wrap(logger.ErrInvalidInput, "director without name")
	}
	var lookups []Query
	if d.Imdb != "" {
		lookups = append(lookups, Query{Where: "imdb_id = ?", WhereArgs: []interface{}{d.Imdb}})
	}
	if d.Tmdb != 0 {
		lookups = append(lookups, Query{Where: "tmdb_id = ?", WhereArgs: []interface{}{d.Tmdb}})
	}
	if d.Douban != "" {
		lookups = append(lookups, Query{Where: "douban_id = ?", WhereArgs: []interface{}{d.Douban}})
	}
	if d.Name != "" {
		lookups = append(lookups, Query{Where: "name = ? COLLATE NOCASE", WhereArgs: []interface{}{d.Name}})
	}
	if d.ChineseName != "" {
		lookups = append(lookups, Query{Where: "chinese_name = ?", WhereArgs: []interface{}{d.ChineseName}})
	}
	var f fields
	f.str("name", d.Name)
	f.str("chinese_name", d.ChineseName)
	f.str("imdb_id", d.Imdb)
	f.num("tmdb_id", int64(d.Tmdb))
	f.str("douban_id", d.Douban)
	return upsertRow("directors", lookups, f.columns, f.values)
}

func LinkMovieDirector(movieID int64, directorID int64, position int) error {
	_, err := dbexec("INSERT OR IGNORE INTO movie_directors (movie_id, director_id, position) VALUES (?, ?, ?)",
		[]interface{}{movieID, directorID, position})
	return err
}

// SaveMovie upserts the movie, its directors and the links between them.
func SaveMovie(m *metadata.MovieInfo) (int64, error) {
	movieID, err := UpsertMovie(m)
	if err != nil {
		return 0, err
	}
	for idx := range m.Directors {
		directorID, err := UpsertDirector(m.Directors[idx])
		if err != nil {
			logger.Log.Warn("director ", m.Directors[idx].Name, ": ", err)
			continue
		}
		if err := LinkMovieDirector(movieID, directorID, idx); err != nil {
			return movieID, err
		}
	}
	return movieID, nil
}

// UpsertMovieFile stores a file row, unique by location.
func UpsertMovieFile(file MovieFile) (int64, error) {
	if file.Location == "" || file.MovieID == 0 {
		return 0, errors.Wrap(logger.ErrInvalidInput, "movie file needs location and movie")
	}
	var f fields
	f.num("movie_id", file.MovieID)
	f.str("location", file.Location)
	f.str("filename", file.Filename)
	f.num("size", file.Size)
	f.str("resolution", file.Resolution)
	f.str("quality", file.Quality)
	f.str("codec", file.Codec)
	f.str("audio", file.Audio)
	f.num("priority", int64(file.Priority))
	f.num("bitrate", file.Bitrate)
	f.num("runtime", int64(file.Runtime))
	f.str("edition", file.Edition)
	f.flag("proper", file.Proper)
	f.flag("repack", file.Repack)
	return upsertRow("movie_files", []Query{{Where: "location = ?", WhereArgs: []interface{}{file.Location}}}, f.columns, f.values)
}

func GetMovie(id int64) (Movie, error) {
	return getStruct[Movie]("movies", Query{Where: "id = ?", WhereArgs: []interface{}{id}})
}

func ListMovies(qu Query) ([]Movie, error) {
	if qu.OrderBy == "" {
		qu.OrderBy = "title COLLATE NOCASE, year"
	}
	return queryStructs[Movie]("movies", qu)
}

func ListDirectors(qu Query) ([]Director, error) {
	if qu.OrderBy == "" {
		qu.OrderBy = "name COLLATE NOCASE"
	}
	return queryStructs[Director]("directors", qu)
}

// GetMovieDirectors returns the directors in credit order.
func GetMovieDirectors(movieID int64) ([]Director, error) {
	return queryStructs[Director]("directors", Query{
		InnerJoin: "movie_directors on movie_directors.director_id = directors.id",
		Where:     "movie_directors.movie_id = ?",
		WhereArgs: []interface{}{movieID},
		OrderBy:   "movie_directors.position",
	})
}

func GetDirectorMovies(directorID int64) ([]Movie, error) {
	return queryStructs[Movie]("movies", Query{
		InnerJoin: "movie_directors on movie_directors.movie_id = movies.id",
		Where:     "movie_directors.director_id = ?",
		WhereArgs: []interface{}{directorID},
		OrderBy:   "movies.year",
	})
}

// GetMovieInfo loads a movie including its directors.
func GetMovieInfo(id int64) (*metadata.MovieInfo, error) {
	movie, err := GetMovie(id)
	if err != nil {
		return nil, err
	}
	info := movie.Info()
	directors, err := GetMovieDirectors(id)
	if err != nil {
		return nil, err
	}
	for idx := range directors {
		info.Directors = append(info.Directors, directors[idx].Info())
	}
	return &info, nil
}

func GetMovieFiles(movieID int64) ([]MovieFile, error) {
	return queryStructs[MovieFile]("movie_files", Query{Where: "movie_id = ?", WhereArgs: []interface{}{movieID}, OrderBy: "priority desc, size desc"})
}

func GetMovieFileByLocation(location string) (MovieFile, error) {
	return getStruct[MovieFile]("movie_files", Query{Where: "location = ?", WhereArgs: []interface{}{location}})
}

// GetMovieFilesInFolder returns the files stored below folder.
func GetMovieFilesInFolder(folder string) ([]MovieFile, error) {
	folder = strings.TrimRight(folder, "/\\")
	return queryStructs[MovieFile]("movie_files", Query{
		Where:     "location like ? escape '\\'",
		WhereArgs: []interface{}{escapeLike(folder) + "%"},
	})
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func DeleteMovieFile(location string) error {
	_, err := DeleteRow("movie_files", Query{Where: "location = ?", WhereArgs: []interface{}{location}})
	return err
}

// MoveMovieFile updates the location after a file was moved.
func MoveMovieFile(oldLocation string, newLocation string) error {
	_, err := UpdateColumn("movie_files", "location", newLocation, Query{Where: "location = ?", WhereArgs: []interface{}{oldLocation}})
	return err
}

// FindDuplicateMovies returns all movies that have more than one file.
func FindDuplicateMovies() ([]DuplicateGroup, error) {
	movies, err := queryStructs[Movie]("movies", Query{
		Where:   "id in (select movie_id from movie_files group by movie_id having count(*) > 1)",
		OrderBy: "title COLLATE NOCASE, year",
	})
	if err != nil {
		return nil, err
	}
	groups := make([]DuplicateGroup, 0, len(movies))
	for idx := range movies {
		files, err := GetMovieFiles(movies[idx].ID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, DuplicateGroup{Movie: movies[idx], Files: files})
	}
	return groups, nil
}

// UpsertAlbum finds an album by discogs id, then by artist, album and year.
func UpsertAlbum(a Album) (int64, error) {
	if a.Artist == "" && a.Album == "" {
		return 0, errors.Wrap(logger.ErrInvalidInput, "album without artist and title")
	}
	var lookups []Query
	if a.DiscogsID != 0 {
		lookups = append(lookups, Query{Where: "discogs_id = ?", WhereArgs: []interface{}{a.DiscogsID}})
	}
	lookups = append(lookups, Query{
		Where:     "artist = ? COLLATE NOCASE and album = ? COLLATE NOCASE and (year = ? or year = 0 or ? = 0)",
		WhereArgs: []interface{}{a.Artist, a.Album, a.Year, a.Year},
	})
	var f fields
	f.str("artist", a.Artist)
	f.str("album", a.Album)
	f.num("year", int64(a.Year))
	f.str("format", a.Format)
	f.num("bit_depth", int64(a.BitDepth))
	f.str("sample_rate", a.SampleRate)
	f.str("catalog", a.Catalog)
	f.num("discogs_id", int64(a.DiscogsID))
	f.num("tracks", int64(a.Tracks))
	f.str("location", a.Location)
	return upsertRow("albums", lookups, f.columns, f.values)
}

func ListAlbums(qu Query) ([]Album, error) {
	if qu.OrderBy == "" {
		qu.OrderBy = "artist COLLATE NOCASE, year"
	}
	return queryStructs[Album]("albums", qu)
}
