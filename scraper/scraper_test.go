package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/Kellerman81/go_media_organizer/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Silence()
}

const listPage1 = `<html><body><table id="threads">
<tr class="thread"><td><a class="title" href="/thread-101-1.html">In.the.Mood.for.Love.2000.1080p.BluRay.x264-GRP</a></td><td class="date">2024-05-02</td></tr>
<tr class="thread"><td><a class="title" href="/thread-102-1.html">花样年华 In the Mood for Love 2000 720p WEB-DL</a></td><td class="date">2024-05-01</td></tr>
<tr class="thread"><td><a class="title" href="/thread-101-1.html">In.the.Mood.for.Love.2000.1080p.BluRay.x264-GRP</a></td><td class="date">2024-05-02</td></tr>
</table></body></html>`

const listPage2 = `<html><body><table id="threads">
<tr class="thread"><td><a class="title" href="/thread-103-1.html">Chungking.Express.1994.2160p.UHD.BluRay.x265-GRP</a></td><td class="date">2024-04-30</td></tr>
<tr class="thread"><td><span>no link</span></td></tr>
</table></body></html>`

const detailPage = `<html><body><div class="post">Size: 8.5 GB
<a href="https://www.imdb.com/title/tt0118694/">IMDb</a>
<a href="https://movie.douban.com/subject/1291557/">douban</a>
<a class="magnet" href="magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&amp;dn=mood">magnet</a>
<a class="torrent" href="/attach/101.torrent">torrent</a>
</div></body></html>`

func newForumServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	requests := &atomic.Int32{}
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}
	mux.HandleFunc("/forum", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Cookie") != "auth=1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		write(w, listPage1)
	})
	mux.HandleFunc("/forum/page/2", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		write(w, listPage2)
	})
	mux.HandleFunc("/thread-101-1.html", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		write(w, detailPage)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		write(w, `<html><body><div class="post">nothing here</div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, requests
}

func cssConfig(base string) config.ScraperConfig {
	return config.ScraperConfig{
		Name:            "testforum",
		Type:            "css",
		StartURL:        base + "/forum",
		PageURLPattern:  base + "/forum/page/{page}",
		PageStart:       1,
		Pages:           2,
		ItemSelector:    "tr.thread",
		TitleSelector:   "a.title",
		LinkSelector:    "a.title",
		LinkAttribute:   "href",
		DateSelector:    "td.date",
		ThreadIDRegex:   `thread-(\d+)`,
		FetchDetails:    true,
		BodySelector:    "div.post",
		MagnetSelector:  "a.magnet",
		TorrentSelector: "a.torrent",
		Cookie:          "auth=1",
		Parallelism:     2,
	}
}

func xpathConfig(base string) config.ScraperConfig {
	cfg := cssConfig(base)
	cfg.Type = "xpath"
	cfg.ItemSelector = "//tr[@class='thread']"
	cfg.TitleSelector = ".//a[@class='title']"
	cfg.LinkSelector = ".//a[@class='title']"
	cfg.DateSelector = ".//td[@class='date']"
	cfg.BodySelector = "//div[@class='post']"
	cfg.MagnetSelector = "//a[@class='magnet']"
	cfg.TorrentSelector = "//a[@class='torrent']"
	cfg.Parallelism = 5
	return cfg
}

func checkReleases(t *testing.T, base string, releases []Release) {
	t.Helper()
	require.Len(t, releases, 3)
	ids := []string{releases[0].ThreadID, releases[1].ThreadID, releases[2].ThreadID}
	assert.Equal(t, []string{"101", "102", "103"}, ids)

	first := releases[0]
	assert.Equal(t, "testforum", first.Forum)
	assert.Equal(t, base+"/thread-101-1.html", first.URL)
	assert.Equal(t, "tt0118694", first.Imdb)
	assert.Equal(t, "1291557", first.Douban)
	assert.True(t, strings.HasPrefix(first.Magnet, "magnet:?xt=urn:btih:0123456789abcdef"), first.Magnet)
	assert.Equal(t, base+"/attach/101.torrent", first.TorrentURL)
	assert.Equal(t, "8.5 GB", first.Size)
	assert.Equal(t, logger.ParseSize("8.5 GB"), first.SizeBytes)
	assert.Equal(t, 2024, first.Posted.Year())
	require.NotNil(t, first.Parsed)
	assert.Equal(t, "1080p", first.Parsed.Resolution)
	assert.Equal(t, "tt0118694", first.Parsed.Imdb)

	assert.Empty(t, releases[1].Magnet)
	assert.Equal(t, "2160p", releases[2].Parsed.Resolution)
}

func TestCSSScraper(t *testing.T) {
	srv, _ := newForumServer(t)
	s, err := NewScraper(cssConfig(srv.URL), nil)
	require.NoError(t, err)
	releases, err := s.Scrape(context.Background())
	require.NoError(t, err)
	checkReleases(t, srv.URL, releases)
}

func TestXpathScraper(t *testing.T) {
	srv, _ := newForumServer(t)
	s, err := NewScraper(xpathConfig(srv.URL), nil)
	require.NoError(t, err)
	releases, err := s.Scrape(context.Background())
	require.NoError(t, err)
	checkReleases(t, srv.URL, releases)
}

func TestScraperHistory(t *testing.T) {
	srv, requests := newForumServer(t)
	history, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	s, err := NewScraper(cssConfig(srv.URL), history)
	require.NoError(t, err)
	releases, err := s.Scrape(context.Background())
	require.NoError(t, err)
	assert.Len(t, releases, 3)
	assert.True(t, history.Seen("testforum", "101"))
	_, ok := history.FirstSeen("testforum", "103")
	assert.True(t, ok)

	before := requests.Load()
	releases, err = s.Scrape(context.Background())
	require.NoError(t, err)
	assert.Empty(t, releases)
	// only the two list pages, no detail pages
	assert.Equal(t, before+2, requests.Load())

	assert.Equal(t, 3, history.Forget("testforum"))
	assert.False(t, history.Seen("testforum", "101"))
}

func TestScraperErrors(t *testing.T) {
	_, err := NewScraper(config.ScraperConfig{Name: "x", Type: "rss"}, nil)
	assert.ErrorIs(t, err, logger.ErrInvalidInput)

	_, err = NewScraper(config.ScraperConfig{Name: "x", ThreadIDRegex: "("}, nil)
	assert.Error(t, err)

	srv, _ := newForumServer(t)
	cfg := cssConfig(srv.URL)
	cfg.Cookie = ""
	cfg.Pages = 1
	s, err := NewScraper(cfg, nil)
	require.NoError(t, err)
	_, err = s.Scrape(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err = NewScraper(xpathConfig(srv.URL), nil)
	require.NoError(t, err)
	_, err = s.Scrape(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPageURLs(t *testing.T) {
	tests := []struct {
		cfg      config.ScraperConfig
		expected []string
	}{
		{config.ScraperConfig{StartURL: "http://f/list", Pages: 1}, []string{"http://f/list"}},
		{config.ScraperConfig{StartURL: "http://f/list", PageURLPattern: "http://f/list?page={page}", PageStart: 1, Pages: 3}, []string{"http://f/list", "http://f/list?page=2", "http://f/list?page=3"}},
		{config.ScraperConfig{PageURLPattern: "http://f/{page}.html", PageStart: 0, Pages: 2}, []string{"http://f/0.html", "http://f/1.html"}},
		{config.ScraperConfig{StartURL: "http://f/list", Pages: 5}, []string{"http://f/list"}},
	}
	for _, tt := range tests {
		f := forum{cfg: tt.cfg}
		assert.Equal(t, tt.expected, f.pageURLs())
	}
}

func TestExtractThreadID(t *testing.T) {
	f := forum{}
	tests := []struct {
		input    string
		expected string
	}{
		{"http://f/viewthread.php?tid=12345", "12345"},
		{"http://f/thread/987/", "987"},
		{"http://f/read.php?tid=55&page=1", "1"},
		{"http://f/about", "http://f/about"},
	}
	for _, tt := range tests {
		if result := f.extractThreadID(tt.input); result != tt.expected {
			t.Errorf("extractThreadID(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}

	f.threadID = regexp.MustCompile(`tid=(\d+)`)
	if result := f.extractThreadID("http://f/read.php?tid=55&page=1"); result != "55" {
		t.Errorf("extractThreadID with regex = %q, expected %q", result, "55")
	}
}

func parsedRelease(id string, title string) Release {
	m, _ := parser.NewFileParser(title, false)
	m.GetPriority("", "")
	return Release{Forum: "f", ThreadID: id, Title: title, Parsed: m}
}

func TestFilter(t *testing.T) {
	regex, err := config.CompileRegex(config.RegexConfig{
		Name:     "hd",
		Required: []string{`(?i)1080p|2160p`},
		Rejected: []string{`(?i)web-?dl`},
	})
	require.NoError(t, err)
	releases := []Release{
		parsedRelease("1", "In.the.Mood.for.Love.2000.1080p.BluRay.x264-GRP"),
		parsedRelease("2", "In.the.Mood.for.Love.2000.1080p.WEB-DL.x264-GRP"),
		parsedRelease("3", "Some.Movie.2001.720p.BluRay.x264-GRP"),
		parsedRelease("4", "Chungking.Express.1994.2160p.BluRay.x265-GRP"),
	}

	filtered := Filter(releases, regex, 0)
	require.Len(t, filtered, 2)
	assert.Equal(t, "1", filtered[0].ThreadID)
	assert.Equal(t, "4", filtered[1].ThreadID)

	filtered = Filter(releases, config.RegexConfig{}, releases[3].Parsed.Priority)
	require.Len(t, filtered, 1)
	assert.Equal(t, "4", filtered[0].ThreadID)

	assert.Len(t, Filter(releases, config.RegexConfig{}, 0), 4)
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releases.json")
	require.NoError(t, ExportJSON(path, []Release{{Forum: "f", ThreadID: "1", Title: "a"}, {Forum: "f", ThreadID: "2", Title: "b"}}))
	require.NoError(t, ExportJSON(path, []Release{{Forum: "f", ThreadID: "2", Title: "b2"}, {Forum: "g", ThreadID: "2", Title: "c"}}))

	var stored []Release
	require.NoError(t, scanner.ReadJSON(path, &stored))
	require.Len(t, stored, 3)
	assert.Equal(t, "b2", stored[1].Title)
	assert.Equal(t, "g", stored[2].Forum)
}
