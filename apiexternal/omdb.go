package apiexternal

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/pkg/errors"
)

type OmdbMovie struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Rated      string `json:"Rated"`
	Released   string `json:"Released"`
	Runtime    string `json:"Runtime"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Language   string `json:"Language"`
	Country    string `json:"Country"`
	ImdbRating string `json:"imdbRating"`
	ImdbVotes  string `json:"imdbVotes"`
	ImdbID     string `json:"imdbID"`
	Type       string `json:"Type"`
	Response   string `json:"Response"`
	Error      string `json:"Error"`
}

type OmdbClient struct {
	ApiKey  string
	BaseURL string
	Client  *RLHTTPClient
}

var OmdbApi *OmdbClient

func NewOmdbClient(apikey string, seconds int, calls int, timeout time.Duration, useragent string) *OmdbClient {
	if seconds == 0 {
		seconds = 1
	}
	if calls == 0 {
		calls = 1
	}
	return &OmdbClient{
		ApiKey:  apikey,
		BaseURL: "https://www.omdbapi.com/",
		Client:  NewClient(timeout, useragent, seconds, calls),
	}
}

// GetMovie loads a title by imdb id. Unknown ids answer with status 200 and
// Response False, they are returned as ErrNotFound.
func (o *OmdbClient) GetMovie(ctx context.Context, imdbid string) (OmdbMovie, error) {
	if !ImdbValidTitleID.MatchString(imdbid) {
		return OmdbMovie{}, errors.Wrap(logger.ErrInvalidInput, imdbid)
	}
	values := url.Values{"i": []string{imdbid}, "apikey": []string{o.ApiKey}}
	var result OmdbMovie
	if err := o.Client.DoJSON(ctx, o.BaseURL+"?"+values.Encode(), &result); err != nil {
		return OmdbMovie{}, err
	}
	if !strings.EqualFold(result.Response, "true") {
		return OmdbMovie{}, errors.Wrapf(logger.ErrNotFound, "omdb %s: %s", imdbid, result.Error)
	}
	return result, nil
}

// GetTitle returns the omdb record in the shape of an imdb page, directors
// carry no person id.
func (o *OmdbClient) GetTitle(ctx context.Context, imdbid string) (ImdbTitle, error) {
	movie, err := o.GetMovie(ctx, imdbid)
	if err != nil {
		return ImdbTitle{}, err
	}
	return movie.ImdbTitle(), nil
}

func (m OmdbMovie) ImdbTitle() ImdbTitle {
	title := ImdbTitle{
		ID:        m.ImdbID,
		Title:     m.Title,
		Year:      yearFromDate(m.Year),
		Genres:    omdbList(m.Genre),
		Countries: omdbList(m.Country),
		Languages: omdbList(m.Language),
	}
	if runtime, _, ok := strings.Cut(m.Runtime, " "); ok {
		title.Runtime, _ = strconv.Atoi(runtime)
	}
	if rating, err := strconv.ParseFloat(m.ImdbRating, 32); err == nil {
		title.Rating = float32(rating)
	}
	title.Votes, _ = strconv.Atoi(strings.ReplaceAll(m.ImdbVotes, ",", ""))
	for _, name := range omdbList(m.Director) {
		title.Directors = append(title.Directors, ImdbPerson{Name: name})
	}
	return title
}

// omdbList splits a comma separated field, "N/A" is empty.
func omdbList(value string) []string {
	if value == "" || value == "N/A" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for idx := range parts {
		if part := strings.TrimSpace(parts[idx]); part != "" {
			out = append(out, part)
		}
	}
	return out
}
