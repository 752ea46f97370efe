package metadata

import (
	"strings"
)

const (
	SourceImdb   = "imdb"
	SourceTmdb   = "tmdb"
	SourceDouban = "douban"
)

// DefaultPriority is used for every source missing in the configured priority.
var DefaultPriority = []string{SourceImdb, SourceTmdb, SourceDouban}

type DirectorInfo struct {
	Name        string `json:"name" db:"name"`
	ChineseName string `json:"chinese_name,omitempty" db:"chinese_name"`
	Imdb        string `json:"imdb,omitempty" db:"imdb_id"`
	Tmdb        int    `json:"tmdb,omitempty" db:"tmdb_id"`
	Douban      string `json:"douban,omitempty" db:"douban_id"`
}

// MovieInfo is the reconciled record of all metadata sources.
type MovieInfo struct {
	Imdb          string         `json:"imdb,omitempty"`
	Tmdb          int            `json:"tmdb,omitempty"`
	Douban        string         `json:"douban,omitempty"`
	Title         string         `json:"title"`
	OriginalTitle string         `json:"original_title,omitempty"`
	ChineseTitle  string         `json:"chinese_title,omitempty"`
	Aliases       []string       `json:"aliases,omitempty"`
	Year          int            `json:"year,omitempty"`
	Runtime       int            `json:"runtime,omitempty"`
	Genres        []string       `json:"genres,omitempty"`
	Countries     []string       `json:"countries,omitempty"`
	Languages     []string       `json:"languages,omitempty"`
	Directors     []DirectorInfo `json:"directors,omitempty"`
	RatingImdb    float32        `json:"rating_imdb,omitempty"`
	RatingTmdb    float32        `json:"rating_tmdb,omitempty"`
	RatingDouban  float32        `json:"rating_douban,omitempty"`
	Sources       []string       `json:"sources,omitempty"`
	Conflicts     []string       `json:"conflicts,omitempty"`
}

func firstNonEmpty(values ...string) string {
	for idx := range values {
		if values[idx] != "" {
			return values[idx]
		}
	}
	return ""
}

// DisplayTitle returns the title in the wanted language: original, english,
// chinese or both ("中文 English"). Missing titles fall back to the others.
func (m *MovieInfo) DisplayTitle(lang string) string {
	switch strings.ToLower(lang) {
	case "original":
		return firstNonEmpty(m.OriginalTitle, m.Title, m.ChineseTitle)
	case "chinese":
		return firstNonEmpty(m.ChineseTitle, m.Title, m.OriginalTitle)
	case "both":
		english := firstNonEmpty(m.Title, m.OriginalTitle)
		if m.ChineseTitle == "" || english == "" || m.ChineseTitle == english {
			return firstNonEmpty(english, m.ChineseTitle)
		}
		return m.ChineseTitle + " " + english
	default:
		return firstNonEmpty(m.Title, m.OriginalTitle, m.ChineseTitle)
	}
}

// MainDirector returns the first credited director. Co-directed movies are
// filed under that person.
func (m *MovieInfo) MainDirector() *DirectorInfo {
	if len(m.Directors) == 0 {
		return nil
	}
	return &m.Directors[0]
}

// HasSource reports whether name contributed to the record.
func (m *MovieInfo) HasSource(name string) bool {
	for idx := range m.Sources {
		if m.Sources[idx] == name {
			return true
		}
	}
	return false
}

// FolderName renders the director folder in the given layout: name, chinese
// or both ("Name 中文名").
func (d *DirectorInfo) FolderName(layout string) string {
	switch strings.ToLower(layout) {
	case "chinese":
		return firstNonEmpty(d.ChineseName, d.Name)
	case "both":
		if d.Name == "" || d.ChineseName == "" {
			return firstNonEmpty(d.Name, d.ChineseName)
		}
		return d.Name + " " + d.ChineseName
	default:
		return firstNonEmpty(d.Name, d.ChineseName)
	}
}

// DirectorFolderName is the folder name of the main director or "" when the
// movie has none.
func (m *MovieInfo) DirectorFolderName(layout string) string {
	if d := m.MainDirector(); d != nil {
		return d.FolderName(layout)
	}
	return ""
}

// SameDirector reports whether both records describe the same person by id
// or normalized name.
func SameDirector(a, b *DirectorInfo) bool {
	if a.Imdb != "" && b.Imdb != "" {
		return a.Imdb == b.Imdb
	}
	if a.Tmdb != 0 && b.Tmdb != 0 {
		return a.Tmdb == b.Tmdb
	}
	if a.Douban != "" && b.Douban != "" {
		return a.Douban == b.Douban
	}
	if a.Name != "" && NormalizeName(a.Name) == NormalizeName(b.Name) {
		return true
	}
	return a.ChineseName != "" && NormalizeName(a.ChineseName) == NormalizeName(b.ChineseName)
}
