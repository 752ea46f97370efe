package apiexternal

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

type TheMovieDBSearch struct {
	TotalPages   int                    `json:"total_pages"`
	TotalResults int                    `json:"total_results"`
	Page         int                    `json:"page"`
	Results      []TheMovieDBFindResult `json:"results"`
}

type TheMovieDBFind struct {
	MovieResults []TheMovieDBFindResult `json:"movie_results"`
}

type TheMovieDBFindResult struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	OriginalLanguage string  `json:"original_language"`
	ReleaseDate      string  `json:"release_date"`
	Overview         string  `json:"overview"`
	VoteAverage      float32 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float32 `json:"popularity"`
}

func (r TheMovieDBFindResult) Year() int {
	return yearFromDate(r.ReleaseDate)
}

type TheMovieDBCrew struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Job          string `json:"job"`
	Department   string `json:"department"`
}

type TheMovieDBMovie struct {
	ID               int    `json:"id"`
	ImdbID           string `json:"imdb_id"`
	Title            string `json:"title"`
	OriginalTitle    string `json:"original_title"`
	OriginalLanguage string `json:"original_language"`
	ReleaseDate      string `json:"release_date"`
	Runtime          int    `json:"runtime"`
	Overview         string `json:"overview"`
	Genres           []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
	ProductionCountries []struct {
		Iso3166_1 string `json:"iso_3166_1"`
		Name      string `json:"name"`
	} `json:"production_countries"`
	SpokenLanguages []struct {
		Iso639_1    string `json:"iso_639_1"`
		EnglishName string `json:"english_name"`
		Name        string `json:"name"`
	} `json:"spoken_languages"`
	VoteAverage float32 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Credits     struct {
		Crew []TheMovieDBCrew `json:"crew"`
	} `json:"credits"`
	AlternativeTitles struct {
		Titles []struct {
			Iso3166_1 string `json:"iso_3166_1"`
			Title     string `json:"title"`
		} `json:"titles"`
	} `json:"alternative_titles"`
	ExternalIDs struct {
		ImdbID string `json:"imdb_id"`
	} `json:"external_ids"`
}

func (m TheMovieDBMovie) Year() int {
	return yearFromDate(m.ReleaseDate)
}

// Directors returns the crew members with the job Director in credit order.
func (m TheMovieDBMovie) Directors() []TheMovieDBCrew {
	out := make([]TheMovieDBCrew, 0, 1)
	for idx := range m.Credits.Crew {
		if m.Credits.Crew[idx].Job == "Director" {
			out = append(out, m.Credits.Crew[idx])
		}
	}
	return out
}

type TheMovieDBPerson struct {
	ID           int      `json:"id"`
	ImdbID       string   `json:"imdb_id"`
	Name         string   `json:"name"`
	AlsoKnownAs  []string `json:"also_known_as"`
	Birthday     string   `json:"birthday"`
	PlaceOfBirth string   `json:"place_of_birth"`
}

type TheMovieDBPersonCredits struct {
	ID   int `json:"id"`
	Crew []struct {
		ID            int    `json:"id"`
		Title         string `json:"title"`
		OriginalTitle string `json:"original_title"`
		ReleaseDate   string `json:"release_date"`
		Job           string `json:"job"`
	} `json:"crew"`
}

type TmdbClient struct {
	ApiKey   string
	Language string
	BaseURL  string
	Client   *RLHTTPClient
}

var TmdbApi *TmdbClient

func NewTmdbClient(apikey string, language string, seconds int, calls int, timeout time.Duration, useragent string) *TmdbClient {
	if seconds == 0 {
		seconds = 1
	}
	if calls == 0 {
		calls = 3
	}
	return &TmdbClient{
		ApiKey:   apikey,
		Language: language,
		BaseURL:  "https://api.themoviedb.org/3",
		Client:   NewClient(timeout, useragent, seconds, calls),
	}
}

func (t *TmdbClient) query(extra url.Values) string {
	values := url.Values{}
	values.Set("api_key", t.ApiKey)
	if t.Language != "" {
		values.Set("language", t.Language)
	}
	for key := range extra {
		values.Set(key, extra.Get(key))
	}
	return values.Encode()
}

func (t *TmdbClient) SearchMovie(ctx context.Context, title string, year int) (TheMovieDBSearch, error) {
	values := url.Values{"query": []string{title}}
	if year != 0 {
		values.Set("year", strconv.Itoa(year))
	}
	var result TheMovieDBSearch
	err := t.Client.DoJSON(ctx, t.BaseURL+"/search/movie?"+t.query(values), &result)
	return result, err
}

func (t *TmdbClient) FindByImdb(ctx context.Context, imdbid string) (TheMovieDBFind, error) {
	values := url.Values{"external_source": []string{"imdb_id"}}
	var result TheMovieDBFind
	err := t.Client.DoJSON(ctx, t.BaseURL+"/find/"+url.PathEscape(imdbid)+"?"+t.query(values), &result)
	return result, err
}

// GetMovie loads a movie including credits, alternative titles and external ids.
func (t *TmdbClient) GetMovie(ctx context.Context, id int) (TheMovieDBMovie, error) {
	values := url.Values{"append_to_response": []string{"credits,alternative_titles,external_ids"}}
	var result TheMovieDBMovie
	err := t.Client.DoJSON(ctx, t.BaseURL+"/movie/"+strconv.Itoa(id)+"?"+t.query(values), &result)
	if result.ImdbID == "" {
		result.ImdbID = result.ExternalIDs.ImdbID
	}
	return result, err
}

func (t *TmdbClient) GetPerson(ctx context.Context, id int) (TheMovieDBPerson, error) {
	var result TheMovieDBPerson
	err := t.Client.DoJSON(ctx, t.BaseURL+"/person/"+strconv.Itoa(id)+"?"+t.query(nil), &result)
	return result, err
}

func (t *TmdbClient) GetPersonMovieCredits(ctx context.Context, id int) (TheMovieDBPersonCredits, error) {
	var result TheMovieDBPersonCredits
	err := t.Client.DoJSON(ctx, t.BaseURL+"/person/"+strconv.Itoa(id)+"/movie_credits?"+t.query(nil), &result)
	return result, err
}

func yearFromDate(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, _ := strconv.Atoi(date[:4])
	return year
}
