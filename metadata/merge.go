package metadata

import (
	"strconv"
	"strings"

	"github.com/Kellerman81/go_media_organizer/apiexternal"
	"github.com/Kellerman81/go_media_organizer/logger"
	mapset "github.com/deckarep/golang-set/v2"
)

// stringSet is a case insensitive set keeping the first spelling and the
// insertion order.
type stringSet struct {
	seen mapset.Set[string]
	list []string
}

func newStringSet() *stringSet {
	return &stringSet{seen: mapset.NewThreadUnsafeSet[string]()}
}

func (s *stringSet) Add(values ...string) {
	for idx := range values {
		value := strings.TrimSpace(values[idx])
		if value == "" {
			continue
		}
		if s.seen.Add(strings.ToLower(value)) {
			s.list = append(s.list, value)
		}
	}
}

func (s *stringSet) Values() []string {
	if len(s.list) == 0 {
		return nil
	}
	return s.list
}

// NormalizePriority returns the configured order with unknown entries
// dropped and missing sources appended in default order.
func NormalizePriority(priority []string) []string {
	out := make([]string, 0, len(DefaultPriority))
	added := mapset.NewThreadUnsafeSet[string]()
	for _, name := range append(append([]string{}, priority...), DefaultPriority...) {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case SourceImdb, SourceTmdb, SourceDouban:
			if added.Add(name) {
				out = append(out, name)
			}
		}
	}
	return out
}

// Merge reconciles the records of the three sources. Each input may be nil.
func Merge(priority []string, tmdb *apiexternal.TheMovieDBMovie, imdb *apiexternal.ImdbTitle, douban *apiexternal.DoubanSubject) MovieInfo {
	var m MovieInfo
	priority = NormalizePriority(priority)
	present := map[string]bool{SourceTmdb: tmdb != nil, SourceImdb: imdb != nil, SourceDouban: douban != nil}
	for _, name := range priority {
		if present[name] {
			m.Sources = append(m.Sources, name)
		}
	}

	mergeIDs(&m, tmdb, imdb, douban)

	years := map[string]int{}
	runtimes := map[string]int{}
	originals := map[string]string{}
	if tmdb != nil {
		years[SourceTmdb] = tmdb.Year()
		runtimes[SourceTmdb] = tmdb.Runtime
		originals[SourceTmdb] = tmdb.OriginalTitle
		m.RatingTmdb = tmdb.VoteAverage
	}
	if imdb != nil {
		years[SourceImdb] = imdb.Year
		runtimes[SourceImdb] = imdb.Runtime
		m.RatingImdb = imdb.Rating
	}
	if douban != nil {
		years[SourceDouban] = douban.Year
		runtimes[SourceDouban] = douban.Runtime
		originals[SourceDouban] = douban.OriginalTitle
		m.RatingDouban = douban.Rating
	}
	for _, name := range priority {
		if m.Year == 0 {
			m.Year = years[name]
		}
		if m.Runtime == 0 {
			m.Runtime = runtimes[name]
		}
		if m.OriginalTitle == "" {
			m.OriginalTitle = originals[name]
		}
	}
	minYear, maxYear := 0, 0
	for _, year := range years {
		if year == 0 {
			continue
		}
		if minYear == 0 || year < minYear {
			minYear = year
		}
		if year > maxYear {
			maxYear = year
		}
	}
	if maxYear-minYear > 1 {
		m.Conflicts = append(m.Conflicts, "year: "+yearList(priority, years))
	}

	if tmdb != nil {
		m.Title = tmdb.Title
	}
	if m.Title == "" && imdb != nil {
		m.Title = imdb.Title
	}
	if m.Title == "" && douban != nil {
		m.Title = douban.OriginalTitle
	}
	if douban != nil {
		m.ChineseTitle = douban.ChineseTitle
	}

	genres, countries, languages, aliases := newStringSet(), newStringSet(), newStringSet(), newStringSet()
	for _, name := range priority {
		switch {
		case name == SourceTmdb && tmdb != nil:
			for idx := range tmdb.Genres {
				genres.Add(tmdb.Genres[idx].Name)
			}
			for idx := range tmdb.ProductionCountries {
				countries.Add(tmdb.ProductionCountries[idx].Name)
			}
			for idx := range tmdb.SpokenLanguages {
				languages.Add(tmdb.SpokenLanguages[idx].EnglishName)
			}
			for idx := range tmdb.AlternativeTitles.Titles {
				aliases.Add(tmdb.AlternativeTitles.Titles[idx].Title)
			}
			aliases.Add(tmdb.Title, tmdb.OriginalTitle)
		case name == SourceImdb && imdb != nil:
			genres.Add(imdb.Genres...)
			countries.Add(imdb.Countries...)
			languages.Add(imdb.Languages...)
			aliases.Add(imdb.Title)
		case name == SourceDouban && douban != nil:
			genres.Add(douban.Genres...)
			countries.Add(douban.Countries...)
			languages.Add(douban.Languages...)
			aliases.Add(douban.Aka...)
			aliases.Add(douban.ChineseTitle, douban.OriginalTitle)
		}
	}
	m.Genres = genres.Values()
	m.Countries = countries.Values()
	m.Languages = languages.Values()
	m.Aliases = withoutTitles(aliases.Values(), m.Title, m.ChineseTitle)

	m.Directors = mergeDirectors(priority, tmdb, imdb, douban)
	return m
}

func yearList(priority []string, years map[string]int) string {
	parts := make([]string, 0, len(priority))
	for _, name := range priority {
		if years[name] != 0 {
			parts = append(parts, name+" "+strconv.Itoa(years[name]))
		}
	}
	return strings.Join(parts, ", ")
}

func withoutTitles(aliases []string, titles ...string) []string {
	out := aliases[:0]
	for idx := range aliases {
		if !logger.CheckStringArray(titles, aliases[idx]) {
			out = append(out, aliases[idx])
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// mergeIDs collects the ids. The imdb id of the imdb record wins over tmdb
// which wins over douban.
func mergeIDs(m *MovieInfo, tmdb *apiexternal.TheMovieDBMovie, imdb *apiexternal.ImdbTitle, douban *apiexternal.DoubanSubject) {
	type claim struct{ source, id string }
	claims := make([]claim, 0, 3)
	if imdb != nil && imdb.ID != "" {
		claims = append(claims, claim{SourceImdb, imdb.ID})
	}
	if tmdb != nil {
		m.Tmdb = tmdb.ID
		if tmdb.ImdbID != "" {
			claims = append(claims, claim{SourceTmdb, tmdb.ImdbID})
		}
	}
	if douban != nil {
		m.Douban = douban.ID
		if douban.Imdb != "" {
			claims = append(claims, claim{SourceDouban, douban.Imdb})
		}
	}
	for idx := range claims {
		if m.Imdb == "" {
			m.Imdb = claims[idx].id
			continue
		}
		if claims[idx].id != m.Imdb {
			m.Conflicts = append(m.Conflicts, "imdb id: "+claims[0].source+" "+m.Imdb+" vs "+claims[idx].source+" "+claims[idx].id)
		}
	}
}

// mergeDirectors joins the director credits of all sources into one list of
// persons. Douban names like "王家卫 Kar Wai Wong" are split, chinese only
// douban credits are matched by position when the counts are equal.
func mergeDirectors(priority []string, tmdb *apiexternal.TheMovieDBMovie, imdb *apiexternal.ImdbTitle, douban *apiexternal.DoubanSubject) []DirectorInfo {
	var out []DirectorInfo
	find := func(d *DirectorInfo) int {
		for idx := range out {
			if SameDirector(&out[idx], d) {
				return idx
			}
		}
		return -1
	}
	add := func(d DirectorInfo) {
		idx := find(&d)
		if idx == -1 {
			out = append(out, d)
			return
		}
		fillDirector(&out[idx], &d)
	}
	doubanDirectors := func() {
		if douban == nil {
			return
		}
		positional := len(douban.Directors) == len(out)
		for idx := range douban.Directors {
			chinese, latin := apiexternal.SplitPersonName(douban.Directors[idx].Name)
			d := DirectorInfo{Name: latin, ChineseName: chinese, Douban: douban.Directors[idx].ID}
			if latin == "" && positional {
				if match := find(&d); match != -1 {
					fillDirector(&out[match], &d)
				} else {
					fillDirector(&out[idx], &d)
				}
				continue
			}
			add(d)
		}
	}
	// sources with latin names first so douban credits can attach to them
	for _, name := range priority {
		switch {
		case name == SourceImdb && imdb != nil:
			for idx := range imdb.Directors {
				add(DirectorInfo{Name: imdb.Directors[idx].Name, Imdb: imdb.Directors[idx].ID})
			}
		case name == SourceTmdb && tmdb != nil:
			crew := tmdb.Directors()
			for idx := range crew {
				add(DirectorInfo{Name: crew[idx].Name, Tmdb: crew[idx].ID})
			}
		}
	}
	doubanDirectors()
	return out
}

// fillDirector copies the empty fields of dst from src.
func fillDirector(dst, src *DirectorInfo) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.ChineseName == "" {
		dst.ChineseName = src.ChineseName
	}
	if dst.Imdb == "" {
		dst.Imdb = src.Imdb
	}
	if dst.Tmdb == 0 {
		dst.Tmdb = src.Tmdb
	}
	if dst.Douban == "" {
		dst.Douban = src.Douban
	}
}
