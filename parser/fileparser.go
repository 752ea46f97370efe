// parser
package parser

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/pkg/errors"
)

type regexpattern struct {
	name string
	// Use the last matching pattern. E.g. Year.
	last bool
	re   *regexp.Regexp
	// group holding the clean value
	getgroup int
}

var patterns = []regexpattern{
	{"year", true, regexp.MustCompile(`(?:\b|_)((19\d|20\d)\d)(?:\b|_)`), 1},
	{"imdb", false, regexp.MustCompile(`(?i)(?:\b|_)(tt[0-9]{7,9})(?:\b|_)`), 1},
	{"tmdb", false, regexp.MustCompile(`(?i)(?:\b|_)tmdb(?:id)?[-_= ]?([0-9]{1,9})(?:\b|_)`), 1},
	{"douban", false, regexp.MustCompile(`(?i)(?:\b|_)douban(?:id)?[-_= ]?([0-9]{5,10})(?:\b|_)`), 1},
	{"extended", false, regexp.MustCompile(`(?i)(?:\b|_)(extended(?:[ .\-_]?cut)?)(?:\b|_)`), 1},
	{"proper", false, regexp.MustCompile(`(?i)(?:\b|_)(proper)(?:\b|_)`), 1},
	{"repack", false, regexp.MustCompile(`(?i)(?:\b|_)(repack|rerip)(?:\b|_)`), 1},
	{"3d", false, regexp.MustCompile(`(?i)(?:\b|_)(3d|h[ .\-]?sbs|h[ .\-]?ou)(?:\b|_)`), 1},
	{"edition", false, regexp.MustCompile(`(?i)(?:\b|_)((?:director'?s|final|theatrical|ultimate|special|collector'?s|anniversary|criterion)[ .\-_](?:cut|edition)|unrated|uncut|remastered|imax)(?:\b|_)`), 1},
}

var (
	regexGroup        = regexp.MustCompile(`-([A-Za-z0-9@]+)$`)
	regexBracketStart = regexp.MustCompile(`^\s*(\[[^\]]*\]|【[^】]*】)[\s.\-_]*`)
	mediaExtensions   = []string{".mkv", ".mp4", ".avi", ".m2ts", ".ts", ".wmv", ".mov", ".iso", ".rmvb", ".rm", ".mpg", ".mpeg", ".m4v", ".webm", ".flv", ".vob", ".torrent", ".nfo"}
)

type ParseInfo struct {
	File           string   `json:"file"`
	Title          string   `json:"title"`
	Year           int      `json:"year,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
	ResolutionID   uint     `json:"resolutionid,omitempty"`
	Quality        string   `json:"quality,omitempty"`
	QualityID      uint     `json:"qualityid,omitempty"`
	Codec          string   `json:"codec,omitempty"`
	CodecID        uint     `json:"codecid,omitempty"`
	Audio          string   `json:"audio,omitempty"`
	AudioID        uint     `json:"audioid,omitempty"`
	Imdb           string   `json:"imdb,omitempty"`
	Tmdb           int      `json:"tmdb,omitempty"`
	Douban         string   `json:"douban,omitempty"`
	Extended       bool     `json:"extended,omitempty"`
	Proper         bool     `json:"proper,omitempty"`
	Repack         bool     `json:"repack,omitempty"`
	ThreeD         bool     `json:"3d,omitempty"`
	Edition        string   `json:"edition,omitempty"`
	Group          string   `json:"group,omitempty"`
	Priority       int      `json:"priority,omitempty"`
	PrioResolution int      `json:"prio_resolution,omitempty"`
	PrioQuality    int      `json:"prio_quality,omitempty"`
	PrioCodec      int      `json:"prio_codec,omitempty"`
	PrioAudio      int      `json:"prio_audio,omitempty"`
	Size           int64    `json:"size,omitempty"`
	Runtime        int      `json:"runtime,omitempty"`
	Bitrate        int64    `json:"bitrate,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	Languages      []string `json:"languages,omitempty"`
}

// NewFileParser parses a release, folder or file name.
func NewFileParser(filename string, includeYearInTitle bool) (*ParseInfo, error) {
	m := &ParseInfo{File: filename}
	if err := m.ParseFile(includeYearInTitle); err != nil {
		return nil, err
	}
	return m, nil
}

// StripExtension removes known media extensions.
func StripExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	for idx := range mediaExtensions {
		if mediaExtensions[idx] == ext {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// stripBracketPrefix removes leading release group or site tags such as
// "[字幕组]" or "【高清】" as long as something remains.
func stripBracketPrefix(name string) string {
	for {
		loc := regexBracketStart.FindStringIndex(name)
		if loc == nil || strings.TrimSpace(name[loc[1]:]) == "" {
			break
		}
		name = name[loc[1]:]
	}
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		name = strings.TrimSuffix(strings.TrimPrefix(name, "["), "]")
	}
	return name
}

func (m *ParseInfo) ParseFile(includeYearInTitle bool) error {
	name := strings.TrimSpace(filepath.Base(m.File))
	if name == "" || name == "." {
		return errors.Wrap(logger.ErrInvalidInput, "empty name")
	}
	cleanName := logger.NormalizeWidth(StripExtension(name))
	cleanName = stripBracketPrefix(cleanName)
	cleanName = strings.ReplaceAll(cleanName, "_", " ")

	endIndex := len(cleanName)
	tokenIndex := endIndex
	yearIndex := -1
	settoken := func(index int) {
		if index >= 0 && index < tokenIndex {
			tokenIndex = index
		}
	}

	if q, idx := findQuality(cleanName, TypeResolution); idx != -1 {
		m.Resolution = q.Name
		settoken(idx)
	}
	if q, idx := findQuality(cleanName, TypeQuality); idx != -1 {
		m.Quality = q.Name
		settoken(idx)
	}
	if q, idx := findQuality(cleanName, TypeCodec); idx != -1 {
		m.Codec = q.Name
		settoken(idx)
	}
	if q, idx := findQuality(cleanName, TypeAudio); idx != -1 {
		m.Audio = q.Name
		settoken(idx)
	}

	for idxpattern := range patterns {
		matches := patterns[idxpattern].re.FindAllStringSubmatchIndex(cleanName, -1)
		if len(matches) == 0 {
			continue
		}
		match := matches[0]
		if patterns[idxpattern].last {
			match = matches[len(matches)-1]
		}
		group := patterns[idxpattern].getgroup
		value := cleanName[match[2*group]:match[2*group+1]]
		index := match[2*group]

		switch patterns[idxpattern].name {
		case "year":
			// a leading number is part of the title, e.g. "1917"
			if index == 0 && len(matches) == 1 {
				continue
			}
			m.Year, _ = strconv.Atoi(value)
			yearIndex = index
			continue
		case "imdb":
			m.Imdb = strings.ToLower(value)
		case "tmdb":
			m.Tmdb, _ = strconv.Atoi(value)
		case "douban":
			m.Douban = value
		case "extended":
			m.Extended = true
		case "proper":
			m.Proper = true
		case "repack":
			m.Repack = true
		case "3d":
			m.ThreeD = true
		case "edition":
			m.Edition = logger.TitleCase(strings.ToLower(strings.NewReplacer(".", " ", "-", " ", "_", " ").Replace(value)))
		}
		settoken(index)
	}
	if m.Edition == "" && m.Extended {
		m.Edition = "Extended"
	}

	if group := regexGroup.FindStringSubmatch(cleanName); len(group) == 2 && len(group[1]) >= 3 && !strings.ContainsRune(cleanName, ' ') {
		if _, isquality := gettypepriority(group[1], TypeQuality); !isquality && !strings.EqualFold(group[1], "rip") {
			m.Group = group[1]
		}
	}

	switch {
	case yearIndex > 0 && !includeYearInTitle:
		endIndex = yearIndex
	case yearIndex > 0 && includeYearInTitle:
		endIndex = tokenIndex
		if endIndex <= yearIndex {
			endIndex = yearIndex + 4
		}
	default:
		endIndex = tokenIndex
	}
	raw := cleanName[:endIndex]
	if idx := strings.Index(raw, "("); idx > 0 && !includeYearInTitle {
		raw = raw[:idx]
	}
	m.Title = cleanTitle(raw)
	if m.Title == "" {
		m.Title = cleanTitle(cleanName)
	}
	return nil
}

func cleanTitle(raw string) string {
	raw = strings.TrimPrefix(raw, "- ")
	if strings.ContainsRune(raw, '.') && !strings.ContainsRune(raw, ' ') {
		raw = strings.ReplaceAll(raw, ".", " ")
	}
	raw = strings.TrimFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("-.[]【】", r)
	})
	raw = strings.TrimRight(raw, " (")
	for strings.Contains(raw, "  ") {
		raw = strings.ReplaceAll(raw, "  ", " ")
	}
	return raw
}

// TitleParts splits a mixed title like "肖申克的救赎 The Shawshank Redemption"
// into the CJK and the latin part.
func (m *ParseInfo) TitleParts() (string, string) {
	return SplitMixed(m.Title)
}

// SplitMixed splits s at the boundary between CJK and latin words.
func SplitMixed(s string) (string, string) {
	var cjk, latin []string
	for _, word := range strings.Fields(s) {
		if logger.HasCJK(word) {
			cjk = append(cjk, word)
		} else {
			latin = append(latin, word)
		}
	}
	return strings.Join(cjk, " "), strings.Join(latin, " ")
}

// GetPriority normalizes the quality names, fills missing resolution or
// quality with the defaults and computes the combined priority.
func (m *ParseInfo) GetPriority(defaultQuality string, defaultResolution string) {
	if q, ok := gettypepriority(m.Resolution, TypeResolution); ok {
		m.Resolution, m.ResolutionID, m.PrioResolution = q.Name, q.ID, q.Priority
	} else if q, ok := gettypepriority(defaultResolution, TypeResolution); ok {
		m.Resolution, m.ResolutionID, m.PrioResolution = q.Name, q.ID, q.Priority
	} else {
		m.Resolution, m.ResolutionID, m.PrioResolution = "", 0, 0
	}

	if q, ok := gettypepriority(m.Quality, TypeQuality); ok {
		m.Quality, m.QualityID, m.PrioQuality = q.Name, q.ID, q.Priority
	} else if q, ok := gettypepriority(defaultQuality, TypeQuality); ok {
		m.Quality, m.QualityID, m.PrioQuality = q.Name, q.ID, q.Priority
	} else {
		m.Quality, m.QualityID, m.PrioQuality = "", 0, 0
	}

	if q, ok := gettypepriority(m.Codec, TypeCodec); ok {
		m.Codec, m.CodecID, m.PrioCodec = q.Name, q.ID, q.Priority
	} else {
		m.Codec, m.CodecID, m.PrioCodec = "", 0, 0
	}

	if q, ok := gettypepriority(m.Audio, TypeAudio); ok {
		m.Audio, m.AudioID, m.PrioAudio = q.Name, q.ID, q.Priority
	} else {
		m.Audio, m.AudioID, m.PrioAudio = "", 0, 0
	}

	m.Priority = m.PrioResolution + m.PrioQuality + m.PrioCodec + m.PrioAudio
}

// EstimateBitrate returns the bitrate in kbit/s. Probed values win, otherwise
// it is derived from size and runtime.
func (m *ParseInfo) EstimateBitrate() int64 {
	if m.Bitrate > 0 {
		return m.Bitrate
	}
	if m.Size <= 0 || m.Runtime <= 0 {
		return 0
	}
	return m.Size * 8 / int64(m.Runtime*60) / 1000
}
