package apiexternal

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

type DiscogsSearch struct {
	Pagination struct {
		Items int `json:"items"`
		Pages int `json:"pages"`
	} `json:"pagination"`
	Results []DiscogsSearchResult `json:"results"`
}

type DiscogsSearchResult struct {
	ID       int      `json:"id"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Year     string   `json:"year"`
	Country  string   `json:"country"`
	Format   []string `json:"format"`
	Label    []string `json:"label"`
	Catno    string   `json:"catno"`
	MasterID int      `json:"master_id"`
}

type DiscogsArtist struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Anv  string `json:"anv"`
}

type DiscogsTrack struct {
	Position string `json:"position"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
}

type DiscogsRelease struct {
	ID        int             `json:"id"`
	Title     string          `json:"title"`
	Year      int             `json:"year"`
	Country   string          `json:"country"`
	MasterID  int             `json:"master_id"`
	Artists   []DiscogsArtist `json:"artists"`
	Genres    []string        `json:"genres"`
	Styles    []string        `json:"styles"`
	Tracklist []DiscogsTrack  `json:"tracklist"`
	Labels    []struct {
		Name  string `json:"name"`
		Catno string `json:"catno"`
	} `json:"labels"`
}

// ArtistName joins the credited artists.
func (r DiscogsRelease) ArtistName() string {
	name := ""
	for idx := range r.Artists {
		if idx > 0 {
			name += " & "
		}
		name += r.Artists[idx].Name
	}
	return name
}

type DiscogsMaster struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Year        int             `json:"year"`
	MainRelease int             `json:"main_release"`
	Artists     []DiscogsArtist `json:"artists"`
	Genres      []string        `json:"genres"`
}

type DiscogsClient struct {
	BaseURL string
	Client  *RLHTTPClient
}

var DiscogsApi *DiscogsClient

// NewDiscogsClient uses the personal access token when set. Anonymous access
// is limited to 25 requests per minute.
func NewDiscogsClient(token string, seconds int, calls int, timeout time.Duration, useragent string) *DiscogsClient {
	if seconds == 0 {
		seconds = 60
	}
	if calls == 0 {
		calls = 25
	}
	client := NewClient(timeout, useragent, seconds, calls)
	if token != "" {
		client.Header.Set("Authorization", "Discogs token="+token)
	}
	return &DiscogsClient{BaseURL: "https://api.discogs.com", Client: client}
}

func (d *DiscogsClient) SearchRelease(ctx context.Context, artist string, album string, year int) (DiscogsSearch, error) {
	values := url.Values{"type": []string{"release"}}
	if artist != "" {
		values.Set("artist", artist)
	}
	if album != "" {
		values.Set("release_title", album)
	}
	if year != 0 {
		values.Set("year", strconv.Itoa(year))
	}
	var result DiscogsSearch
	err := d.Client.DoJSON(ctx, d.BaseURL+"/database/search?"+values.Encode(), &result)
	return result, err
}

func (d *DiscogsClient) GetRelease(ctx context.Context, id int) (DiscogsRelease, error) {
	var result DiscogsRelease
	err := d.Client.DoJSON(ctx, d.BaseURL+"/releases/"+strconv.Itoa(id), &result)
	return result, err
}

func (d *DiscogsClient) GetMaster(ctx context.Context, id int) (DiscogsMaster, error) {
	var result DiscogsMaster
	err := d.Client.DoJSON(ctx, d.BaseURL+"/masters/"+strconv.Itoa(id), &result)
	return result, err
}
