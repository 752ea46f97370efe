package metadata

import (
	"context"
	"strconv"
	"sync"

	"github.com/Kellerman81/go_media_organizer/apiexternal"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"
)

// MinSimilarity is the lowest title similarity accepted for search results.
const MinSimilarity = 0.6

type TmdbSource interface {
	SearchMovie(ctx context.Context, title string, year int) (apiexternal.TheMovieDBSearch, error)
	FindByImdb(ctx context.Context, imdbid string) (apiexternal.TheMovieDBFind, error)
	GetMovie(ctx context.Context, id int) (apiexternal.TheMovieDBMovie, error)
}

type ImdbSource interface {
	GetTitle(ctx context.Context, imdbid string) (apiexternal.ImdbTitle, error)
}

type DoubanSource interface {
	SearchSuggest(ctx context.Context, query string) ([]apiexternal.DoubanSuggest, error)
	GetSubject(ctx context.Context, id string) (apiexternal.DoubanSubject, error)
}

// Cache keeps merged records between runs.
type Cache interface {
	Fetch(key string, value interface{}) error
	Put(key string, value interface{}) error
}

// Hints are the known facts about a movie before the lookup.
type Hints struct {
	Title        string `json:"title"`
	ChineseTitle string `json:"chinese_title,omitempty"`
	Year         int    `json:"year,omitempty"`
	Imdb         string `json:"imdb,omitempty"`
	Tmdb         int    `json:"tmdb,omitempty"`
	Douban       string `json:"douban,omitempty"`
}

// HintsFromParse splits a mixed chinese/latin title of a parsed release.
func HintsFromParse(m *parser.ParseInfo) Hints {
	chinese, latin := m.TitleParts()
	hints := Hints{Title: latin, ChineseTitle: chinese, Year: m.Year, Imdb: m.Imdb, Tmdb: m.Tmdb, Douban: m.Douban}
	if hints.Title == "" {
		hints.Title = chinese
	}
	return hints
}

func (h Hints) cacheKey() string {
	switch {
	case h.Imdb != "":
		return "movie:imdb:" + h.Imdb
	case h.Tmdb != 0:
		return "movie:tmdb:" + strconv.Itoa(h.Tmdb)
	case h.Douban != "":
		return "movie:douban:" + h.Douban
	}
	return ""
}

// Enricher looks movies up in the configured sources. Omdb answers imdb
// lookups when the imdb page fails or no imdb client is configured.
type Enricher struct {
	Tmdb     TmdbSource
	Imdb     ImdbSource
	Douban   DoubanSource
	Omdb     ImdbSource
	Cache    Cache
	Priority []string
	Workers  int
}

// NewEnricher uses the initialized clients of apiexternal.
func NewEnricher(priority []string, workers int, cache Cache) *Enricher {
	e := &Enricher{Priority: priority, Workers: workers, Cache: cache}
	if apiexternal.TmdbApi != nil {
		e.Tmdb = apiexternal.TmdbApi
	}
	if apiexternal.ImdbApi != nil {
		e.Imdb = apiexternal.ImdbApi
	}
	if apiexternal.DoubanApi != nil {
		e.Douban = apiexternal.DoubanApi
	}
	if apiexternal.OmdbApi != nil {
		e.Omdb = apiexternal.OmdbApi
	}
	return e
}

// candidate is a search result reduced to what the matching needs.
type candidate struct {
	title string
	alt   string
	year  int
}

// bestCandidate returns the index of the closest result or -1. Results more
// than one year off or below MinSimilarity are ignored.
func bestCandidate(title string, alt string, year int, cands []candidate) int {
	best, bestScore := -1, 0.0
	for idx := range cands {
		distance := 0
		if year != 0 && cands[idx].year != 0 {
			distance = year - cands[idx].year
			if distance < 0 {
				distance = -distance
			}
			if distance > 1 {
				continue
			}
		}
		sim := 0.0
		for _, want := range []string{title, alt} {
			if want == "" {
				continue
			}
			sim = max(sim, Similarity(want, cands[idx].title), Similarity(want, cands[idx].alt))
		}
		if sim < MinSimilarity {
			continue
		}
		score := sim - 0.1*float64(distance)
		if best == -1 || score > bestScore {
			best, bestScore = idx, score
		}
	}
	return best
}

func (e *Enricher) tmdbLookup(ctx context.Context, hints *Hints) (*apiexternal.TheMovieDBMovie, error) {
	id := hints.Tmdb
	if id == 0 && hints.Imdb != "" {
		find, err := e.Tmdb.FindByImdb(ctx, hints.Imdb)
		if err != nil {
			return nil, err
		}
		if len(find.MovieResults) >= 1 {
			id = find.MovieResults[0].ID
		}
	}
	if id == 0 && hints.Imdb == "" && hints.Title != "" {
		search, err := e.Tmdb.SearchMovie(ctx, hints.Title, hints.Year)
		if err != nil {
			return nil, err
		}
		cands := make([]candidate, len(search.Results))
		for idx := range search.Results {
			cands[idx] = candidate{title: search.Results[idx].Title, alt: search.Results[idx].OriginalTitle, year: search.Results[idx].Year()}
		}
		if best := bestCandidate(hints.Title, hints.ChineseTitle, hints.Year, cands); best != -1 {
			id = search.Results[best].ID
		}
	}
	if id == 0 {
		return nil, logger.ErrNotFound
	}
	movie, err := e.Tmdb.GetMovie(ctx, id)
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

func (e *Enricher) doubanLookup(ctx context.Context, hints *Hints) (*apiexternal.DoubanSubject, error) {
	id := hints.Douban
	if id == "" {
		query := hints.Imdb
		if query == "" {
			query = hints.ChineseTitle
		}
		if query == "" {
			query = hints.Title
		}
		if query == "" {
			return nil, logger.ErrNotFound
		}
		suggest, err := e.Douban.SearchSuggest(ctx, query)
		if err != nil {
			return nil, err
		}
		if hints.Imdb != "" {
			if len(suggest) >= 1 {
				id = suggest[0].ID
			}
		} else {
			cands := make([]candidate, len(suggest))
			for idx := range suggest {
				year, _ := strconv.Atoi(suggest[idx].Year)
				cands[idx] = candidate{title: suggest[idx].Title, alt: suggest[idx].SubTitle, year: year}
			}
			if best := bestCandidate(hints.Title, hints.ChineseTitle, hints.Year, cands); best != -1 {
				id = suggest[best].ID
			}
		}
	}
	if id == "" {
		return nil, logger.ErrNotFound
	}
	subject, err := e.Douban.GetSubject(ctx, id)
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

func (e *Enricher) hasImdb() bool {
	return e.Imdb != nil || e.Omdb != nil
}

func (e *Enricher) imdbLookup(ctx context.Context, imdbid string) (*apiexternal.ImdbTitle, error) {
	var err error
	if e.Imdb != nil {
		var title apiexternal.ImdbTitle
		if title, err = e.Imdb.GetTitle(ctx, imdbid); err == nil {
			return &title, nil
		}
		if e.Omdb == nil || ctx.Err() != nil || errors.Is(err, logger.ErrInvalidInput) {
			return nil, err
		}
		logger.Log.WithFields(logrus.Fields{"imdb": imdbid}).Debug("imdb page failed, trying omdb: ", err)
	}
	title, err := e.Omdb.GetTitle(ctx, imdbid)
	if err != nil {
		return nil, err
	}
	return &title, nil
}

func logSourceError(source string, hints *Hints, err error) {
	if err == nil || errors.Is(err, logger.ErrNotFound) {
		return
	}
	logger.Log.WithFields(logrus.Fields{"source": source, "title": hints.Title, "imdb": hints.Imdb}).Warn("metadata lookup failed: ", err)
}

// Lookup queries all configured sources and merges the results. Sources are
// queried in parallel, imdb is fetched afterwards when only tmdb or douban
// knew the imdb id. ErrNoMetadata is returned when no source had a match.
func (e *Enricher) Lookup(ctx context.Context, hints Hints) (*MovieInfo, error) {
	key := hints.cacheKey()
	if e.Cache != nil && key != "" {
		var cached MovieInfo
		if err := e.Cache.Fetch(key, &cached); err == nil && cached.Title != "" {
			return &cached, nil
		}
	}

	var (
		tmdb   *apiexternal.TheMovieDBMovie
		imdb   *apiexternal.ImdbTitle
		douban *apiexternal.DoubanSubject
		mu     sync.Mutex
	)
	swg := sizedwaitgroup.New(max(e.Workers, 1))
	if e.Tmdb != nil {
		swg.Add()
		go func() {
			defer swg.Done()
			result, err := e.tmdbLookup(ctx, &hints)
			logSourceError(SourceTmdb, &hints, err)
			mu.Lock()
			tmdb = result
			mu.Unlock()
		}()
	}
	if e.Douban != nil {
		swg.Add()
		go func() {
			defer swg.Done()
			result, err := e.doubanLookup(ctx, &hints)
			logSourceError(SourceDouban, &hints, err)
			mu.Lock()
			douban = result
			mu.Unlock()
		}()
	}
	if e.hasImdb() && hints.Imdb != "" {
		swg.Add()
		go func() {
			defer swg.Done()
			result, err := e.imdbLookup(ctx, hints.Imdb)
			logSourceError(SourceImdb, &hints, err)
			mu.Lock()
			imdb = result
			mu.Unlock()
		}()
	}
	swg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if e.hasImdb() && imdb == nil && hints.Imdb == "" {
		imdbid := ""
		if tmdb != nil && tmdb.ImdbID != "" {
			imdbid = tmdb.ImdbID
		} else if douban != nil && douban.Imdb != "" {
			imdbid = douban.Imdb
		}
		if imdbid != "" {
			var err error
			imdb, err = e.imdbLookup(ctx, imdbid)
			logSourceError(SourceImdb, &hints, err)
		}
	}

	if tmdb == nil && imdb == nil && douban == nil {
		return nil, errors.Wrapf(logger.ErrNoMetadata, "%s (%d)", hints.Title, hints.Year)
	}
	merged := Merge(e.Priority, tmdb, imdb, douban)
	if len(merged.Conflicts) >= 1 {
		logger.Log.WithFields(logrus.Fields{"title": merged.Title, "imdb": merged.Imdb}).Warn("metadata conflicts: ", merged.Conflicts)
	}
	if e.Cache != nil {
		if key == "" {
			key = Hints{Imdb: merged.Imdb, Tmdb: merged.Tmdb, Douban: merged.Douban}.cacheKey()
		}
		if key != "" {
			if err := e.Cache.Put(key, merged); err != nil {
				logger.Log.Debug("metadata cache: ", err)
			}
		}
	}
	return &merged, nil
}

// LookupAll enriches a batch. Entries without a match stay nil.
func (e *Enricher) LookupAll(ctx context.Context, hints []Hints) []*MovieInfo {
	out := make([]*MovieInfo, len(hints))
	swg := sizedwaitgroup.New(max(e.Workers, 1))
	for idx := range hints {
		if ctx.Err() != nil {
			break
		}
		swg.Add()
		go func(idx int) {
			defer swg.Done()
			movie, err := e.Lookup(ctx, hints[idx])
			if err != nil {
				logger.Log.WithFields(logrus.Fields{"title": hints[idx].Title, "year": hints[idx].Year}).Info(err)
				return
			}
			out[idx] = movie
		}(idx)
	}
	swg.Wait()
	return out
}
