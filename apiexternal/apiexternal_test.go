package apiexternal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Silence()
}

func testClient() *RLHTTPClient {
	client := NewClient(5*time.Second, "test-agent", 1, 100)
	client.RetryDelay = time.Millisecond
	return client
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, testClient().DoJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, 7, out.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient().GetBytes(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, logger.ErrNotFound))
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientDecodesCharset(t *testing.T) {
	// "电影" in GBK
	gbk := []byte{0xb5, 0xe7, 0xd3, 0xb0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=gbk")
		w.Write(gbk)
	}))
	defer srv.Close()

	data, err := testClient().GetBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "电影", string(data))
}

func TestClientCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient().GetBytes(ctx, srv.URL)
	assert.Error(t, err)
}

func TestTmdbClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		switch r.URL.Path {
		case "/search/movie":
			assert.Equal(t, "In the Mood for Love", r.URL.Query().Get("query"))
			assert.Equal(t, "2000", r.URL.Query().Get("year"))
			w.Write([]byte(`{"page":1,"total_results":1,"results":[{"id":843,"title":"In the Mood for Love","original_title":"花樣年華","release_date":"2000-09-29"}]}`))
		case "/find/tt0118694":
			w.Write([]byte(`{"movie_results":[{"id":843,"title":"In the Mood for Love","release_date":"2000-09-29"}]}`))
		case "/movie/843":
			assert.Equal(t, "credits,alternative_titles,external_ids", r.URL.Query().Get("append_to_response"))
			w.Write([]byte(`{"id":843,"title":"In the Mood for Love","original_title":"花樣年華","release_date":"2000-09-29","runtime":98,
				"genres":[{"id":18,"name":"Drama"},{"id":10749,"name":"Romance"}],
				"credits":{"crew":[{"id":12453,"name":"Wong Kar-wai","job":"Director"},{"id":1,"name":"Christopher Doyle","job":"Director of Photography"}]},
				"external_ids":{"imdb_id":"tt0118694"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewTmdbClient("key", "en-US", 1, 100, 5*time.Second, "")
	client.BaseURL = srv.URL
	ctx := context.Background()

	search, err := client.SearchMovie(ctx, "In the Mood for Love", 2000)
	require.NoError(t, err)
	require.Len(t, search.Results, 1)
	assert.Equal(t, 2000, search.Results[0].Year())

	find, err := client.FindByImdb(ctx, "tt0118694")
	require.NoError(t, err)
	require.Len(t, find.MovieResults, 1)
	assert.Equal(t, 843, find.MovieResults[0].ID)

	movie, err := client.GetMovie(ctx, 843)
	require.NoError(t, err)
	assert.Equal(t, "tt0118694", movie.ImdbID)
	assert.Equal(t, 2000, movie.Year())
	directors := movie.Directors()
	require.Len(t, directors, 1)
	assert.Equal(t, "Wong Kar-wai", directors[0].Name)

	_, err = client.GetPerson(ctx, 99)
	assert.True(t, errors.Is(err, logger.ErrNotFound))
}

const imdbTitlePage = `<html><head>
<script type="application/ld+json">{"@type":"Movie","name":"In the Mood for Love","datePublished":"2001-03-09","duration":"PT1H38M",
"genre":["Drama","Romance"],"aggregateRating":{"ratingValue":8.1,"ratingCount":170000},
"director":[{"@type":"Person","url":"https://www.imdb.com/name/nm0939182/","name":"Wong Kar-wai"}]}</script>
</head><body>
<h1 data-testid="hero__pageTitle"><span>In the Mood for Love</span></h1>
<ul>
<li data-testid="title-details-origin"><a href="/x">Hong Kong</a><a href="/y">France</a></li>
<li data-testid="title-details-languages"><a href="/z">Cantonese</a><a href="/w">Shanghainese</a></li>
</ul></body></html>`

const imdbFallbackPage = `<html><body>
<h1 data-testid="hero__pageTitle"><span>Chungking Express</span></h1>
<a href="/title/tt0109424/releaseinfo">1994</a>
<ul><li data-testid="title-pc-principal-credit"><a href="/name/nm0939182/">Wong Kar-wai</a></li></ul>
</body></html>`

func TestParseImdbTitle(t *testing.T) {
	doc, err := htmlquery.Parse(strings.NewReader(imdbTitlePage))
	require.NoError(t, err)
	title, err := ParseImdbTitle(doc, "tt0118694")
	require.NoError(t, err)
	assert.Equal(t, "In the Mood for Love", title.Title)
	assert.Equal(t, 2001, title.Year)
	assert.Equal(t, 98, title.Runtime)
	assert.Equal(t, []string{"Drama", "Romance"}, title.Genres)
	assert.Equal(t, []string{"Hong Kong", "France"}, title.Countries)
	assert.Equal(t, []string{"Cantonese", "Shanghainese"}, title.Languages)
	assert.Equal(t, []ImdbPerson{{ID: "nm0939182", Name: "Wong Kar-wai"}}, title.Directors)
	assert.InDelta(t, 8.1, title.Rating, 0.001)

	doc, err = htmlquery.Parse(strings.NewReader(imdbFallbackPage))
	require.NoError(t, err)
	title, err = ParseImdbTitle(doc, "tt0109424")
	require.NoError(t, err)
	assert.Equal(t, "Chungking Express", title.Title)
	assert.Equal(t, 1994, title.Year)
	assert.Equal(t, []ImdbPerson{{ID: "nm0939182", Name: "Wong Kar-wai"}}, title.Directors)

	doc, _ = htmlquery.Parse(strings.NewReader(`<html><body></body></html>`))
	_, err = ParseImdbTitle(doc, "tt1")
	assert.True(t, errors.Is(err, logger.ErrNoMetadata))
}

func TestImdbGetTitleInvalidID(t *testing.T) {
	client := NewImdbClient(testClient())
	_, err := client.GetTitle(context.Background(), "12345")
	assert.True(t, errors.Is(err, logger.ErrInvalidInput))
}

func TestParseIsoDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "PT2H16M", expected: 136},
		{input: "PT45M", expected: 45},
		{input: "PT3H", expected: 180},
		{input: "", expected: 0},
	}
	for _, tt := range tests {
		if result := ParseIsoDuration(tt.input); result != tt.expected {
			t.Errorf("ParseIsoDuration(%q) = %d, expected %d", tt.input, result, tt.expected)
		}
	}
}

const doubanSubjectPage = `<html><body>
<h1><span property="v:itemreviewed">花样年华 花樣年華</span><span class="year">(2000)</span></h1>
<div id="info">
<span><span class="pl">导演</span>: <span class="attrs"><a href="/celebrity/1023182/" rel="v:directedBy">王家卫</a></span></span><br/>
<span class="pl">类型:</span> <span property="v:genre">剧情</span> / <span property="v:genre">爱情</span><br/>
<span class="pl">制片国家/地区:</span> 中国香港 / 法国<br/>
<span class="pl">语言:</span> 粤语 / 上海话<br/>
<span class="pl">片长:</span> <span property="v:runtime" content="98">98分钟</span><br/>
<span class="pl">又名:</span> In the Mood for Love / 春光乍泄<br/>
<span class="pl">IMDb:</span> tt0118694<br/>
</div>
<strong class="ll rating_num" property="v:average">8.8</strong>
<span property="v:votes">680000</span>
</body></html>`

func TestParseDoubanSubject(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(doubanSubjectPage))
	require.NoError(t, err)
	subject, err := ParseDoubanSubject(doc, "1291557")
	require.NoError(t, err)
	assert.Equal(t, "花样年华", subject.ChineseTitle)
	assert.Equal(t, "花樣年華", subject.OriginalTitle)
	assert.Equal(t, 2000, subject.Year)
	assert.Equal(t, []DoubanPerson{{ID: "1023182", Name: "王家卫"}}, subject.Directors)
	assert.Equal(t, []string{"剧情", "爱情"}, subject.Genres)
	assert.Equal(t, []string{"中国香港", "法国"}, subject.Countries)
	assert.Equal(t, []string{"粤语", "上海话"}, subject.Languages)
	assert.Equal(t, []string{"In the Mood for Love", "春光乍泄"}, subject.Aka)
	assert.Equal(t, 98, subject.Runtime)
	assert.Equal(t, 680000, subject.Votes)
	assert.Equal(t, "tt0118694", subject.Imdb)
}

func TestSplitDoubanTitle(t *testing.T) {
	tests := []struct {
		input    string
		chinese  string
		original string
	}{
		{input: "肖申克的救赎 The Shawshank Redemption", chinese: "肖申克的救赎", original: "The Shawshank Redemption"},
		{input: "霸王别姬", chinese: "霸王别姬", original: "霸王别姬"},
		{input: "Amélie", chinese: "", original: "Amélie"},
		{input: "", chinese: "", original: ""},
	}
	for _, tt := range tests {
		chinese, original := SplitDoubanTitle(tt.input)
		if chinese != tt.chinese || original != tt.original {
			t.Errorf("SplitDoubanTitle(%q) = %q, %q, expected %q, %q", tt.input, chinese, original, tt.chinese, tt.original)
		}
	}
}

func TestSplitPersonName(t *testing.T) {
	cjk, latin := SplitPersonName("王家卫 Kar Wai Wong")
	assert.Equal(t, "王家卫", cjk)
	assert.Equal(t, "Kar Wai Wong", latin)
}

func TestDoubanClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bid=abc", r.Header.Get("Cookie"))
		switch r.URL.Path {
		case "/j/subject_suggest":
			assert.Equal(t, "花样年华", r.URL.Query().Get("q"))
			w.Write([]byte(`[{"id":"1291557","title":"花样年华","sub_title":"花樣年華","year":"2000","type":"movie"}]`))
		case "/celebrity/1023182/":
			w.Write([]byte(`<html><body><div id="content"><h1>王家卫 Kar Wai Wong</h1></div></body></html>`))
		case "/subject/1291557/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(doubanSubjectPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewDoubanClient("bid=abc", testClient())
	client.BaseURL = srv.URL
	ctx := context.Background()

	suggest, err := client.SearchSuggest(ctx, "花样年华")
	require.NoError(t, err)
	require.Len(t, suggest, 1)
	assert.Equal(t, "1291557", suggest[0].ID)

	celebrity, err := client.GetCelebrity(ctx, "1023182")
	require.NoError(t, err)
	assert.Equal(t, DoubanCelebrity{ID: "1023182", Name: "王家卫", ForeignName: "Kar Wai Wong"}, celebrity)

	subject, err := client.GetSubject(ctx, "1291557")
	require.NoError(t, err)
	assert.Equal(t, "花样年华", subject.ChineseTitle)

	_, err = client.GetSubject(ctx, "")
	assert.True(t, errors.Is(err, logger.ErrInvalidInput))
}

func TestOmdbClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		if r.URL.Query().Get("i") != "tt0118694" {
			w.Write([]byte(`{"Response":"False","Error":"Incorrect IMDb ID."}`))
			return
		}
		w.Write([]byte(`{"Title":"In the Mood for Love","Year":"2000","Runtime":"98 min","Genre":"Drama, Romance",
			"Director":"Kar-Wai Wong","Language":"Cantonese, Shanghainese, French","Country":"Hong Kong, France",
			"imdbRating":"8.1","imdbVotes":"162,345","imdbID":"tt0118694","Type":"movie","Response":"True"}`))
	}))
	defer srv.Close()

	client := NewOmdbClient("key", 1, 100, 5*time.Second, "")
	client.BaseURL = srv.URL + "/"
	ctx := context.Background()

	title, err := client.GetTitle(ctx, "tt0118694")
	require.NoError(t, err)
	expected := ImdbTitle{
		ID:        "tt0118694",
		Title:     "In the Mood for Love",
		Year:      2000,
		Runtime:   98,
		Genres:    []string{"Drama", "Romance"},
		Countries: []string{"Hong Kong", "France"},
		Languages: []string{"Cantonese", "Shanghainese", "French"},
		Directors: []ImdbPerson{{Name: "Kar-Wai Wong"}},
		Rating:    8.1,
		Votes:     162345,
	}
	assert.Equal(t, expected, title)

	_, err = client.GetMovie(ctx, "tt0000001")
	assert.True(t, errors.Is(err, logger.ErrNotFound))

	_, err = client.GetMovie(ctx, "0118694")
	assert.True(t, errors.Is(err, logger.ErrInvalidInput))
}

func TestOmdbList(t *testing.T) {
	tests := []struct {
		in       string
		expected []string
	}{
		{"Drama, Romance", []string{"Drama", "Romance"}},
		{"N/A", nil},
		{"", nil},
		{"France", []string{"France"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, omdbList(tt.in), "omdbList(%q)", tt.in)
	}
}

func TestDiscogsClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Discogs token=tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/database/search":
			assert.Equal(t, "周杰伦", r.URL.Query().Get("artist"))
			assert.Equal(t, "魔杰座", r.URL.Query().Get("release_title"))
			w.Write([]byte(`{"pagination":{"items":1,"pages":1},"results":[{"id":1585,"type":"release","title":"周杰伦 - 魔杰座","year":"2008","master_id":77}]}`))
		case "/releases/1585":
			w.Write([]byte(`{"id":1585,"title":"魔杰座","year":2008,"artists":[{"id":1,"name":"周杰伦"}],"tracklist":[{"position":"1","title":"龙战骑士"}]}`))
		case "/masters/77":
			w.Write([]byte(`{"id":77,"title":"魔杰座","year":2008,"main_release":1585}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewDiscogsClient("tok", 1, 100, 5*time.Second, "")
	client.BaseURL = srv.URL
	ctx := context.Background()

	search, err := client.SearchRelease(ctx, "周杰伦", "魔杰座", 0)
	require.NoError(t, err)
	require.Len(t, search.Results, 1)
	assert.Equal(t, 77, search.Results[0].MasterID)

	release, err := client.GetRelease(ctx, 1585)
	require.NoError(t, err)
	assert.Equal(t, "周杰伦", release.ArtistName())
	assert.Len(t, release.Tracklist, 1)

	master, err := client.GetMaster(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, 1585, master.MainRelease)
}
