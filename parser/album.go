package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Kellerman81/go_media_organizer/logger"
)

type AlbumInfo struct {
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Year       int    `json:"year,omitempty"`
	Format     string `json:"format,omitempty"`
	BitDepth   int    `json:"bitdepth,omitempty"`
	SampleRate string `json:"samplerate,omitempty"`
	Catalog    string `json:"catalog,omitempty"`
}

var (
	bracketReplacer = strings.NewReplacer("【", "[", "】", "]", "〖", "[", "〗", "]", "「", "《", "」", "》", "『", "《", "』", "》", "〈", "《", "〉", "》")

	regexAlbumFormat  = regexp.MustCompile(`(?i)(?:^|[\s.\-\[(_])(flac|ape|wav|dsf|dff|dsd(?:64|128|256)?|sacd|mp3|aac|alac|wv|tak|m4a)(?:$|[\s.\-\])_])`)
	regexAlbumBits    = regexp.MustCompile(`(?i)(\d{2})\s?bits?(?:[\s\-/_]*(\d{2,3}(?:\.\d)?)\s?khz)?`)
	regexAlbumKhz     = regexp.MustCompile(`(?i)(\d{2,3}(?:\.\d)?)\s?khz`)
	regexAlbumCatalog = regexp.MustCompile(`\[([A-Z]{2,6}-?\d{2,6})\]`)
	regexAlbumYear    = regexp.MustCompile(`(?:^|[^\d])((?:19|20)\d{2})(?:[^\d]|$)`)
	regexAlbumTitle   = regexp.MustCompile(`《([^》]+)》`)
	regexEmptyBracket = regexp.MustCompile(`\[\s*\]|\(\s*\)`)
)

func cutRange(s string, start, end int) string {
	return s[:start] + " " + s[end:]
}

// ParseAlbumFolder splits an album folder name into artist, album, year and
// format. Handles the common layouts of Chinese releases:
//
//	【2008】周杰伦 - 魔杰座 [FLAC]
//	周杰伦-《魔杰座》2008-WAV
//	Jay Chou 周杰伦 - 魔杰座 (2008) [24bit-96kHz]
//	周杰伦.2008.魔杰座.APE
func ParseAlbumFolder(name string) AlbumInfo {
	var info AlbumInfo
	s := bracketReplacer.Replace(logger.NormalizeWidth(strings.TrimSpace(name)))

	if loc := regexAlbumFormat.FindStringSubmatchIndex(s); loc != nil {
		info.Format = strings.ToUpper(s[loc[2]:loc[3]])
		s = cutRange(s, loc[2], loc[3])
	}
	if loc := regexAlbumBits.FindStringSubmatchIndex(s); loc != nil {
		info.BitDepth, _ = strconv.Atoi(s[loc[2]:loc[3]])
		if loc[4] != -1 {
			info.SampleRate = s[loc[4]:loc[5]]
		}
		s = cutRange(s, loc[0], loc[1])
	}
	if loc := regexAlbumKhz.FindStringSubmatchIndex(s); loc != nil && info.SampleRate == "" {
		info.SampleRate = s[loc[2]:loc[3]]
		s = cutRange(s, loc[0], loc[1])
	}
	if loc := regexAlbumCatalog.FindStringSubmatchIndex(s); loc != nil {
		info.Catalog = s[loc[2]:loc[3]]
		s = cutRange(s, loc[0], loc[1])
	}
	if loc := regexAlbumYear.FindStringSubmatchIndex(s); loc != nil {
		info.Year, _ = strconv.Atoi(s[loc[2]:loc[3]])
		s = cutRange(s, loc[2], loc[3])
	}
	if loc := regexAlbumTitle.FindStringSubmatchIndex(s); loc != nil {
		info.Album = strings.TrimSpace(s[loc[2]:loc[3]])
		s = cutRange(s, loc[0], loc[1])
	}
	for regexEmptyBracket.MatchString(s) {
		s = regexEmptyBracket.ReplaceAllString(s, " ")
	}
	s = trimSeparators(s)

	switch {
	case info.Album != "":
		info.Artist = s
	case strings.Contains(s, " - "):
		parts := strings.SplitN(s, " - ", 2)
		info.Artist, info.Album = trimSeparators(parts[0]), trimSeparators(parts[1])
	case strings.Contains(s, "-"):
		parts := strings.SplitN(s, "-", 2)
		info.Artist, info.Album = trimSeparators(parts[0]), trimSeparators(parts[1])
	case strings.Contains(s, "."):
		parts := make([]string, 0, 4)
		for _, part := range strings.Split(s, ".") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) >= 2 {
			info.Artist, info.Album = parts[0], strings.Join(parts[1:], " ")
		} else {
			info.Album = s
		}
	default:
		info.Album = s
	}
	return info
}

func trimSeparators(s string) string {
	s = strings.Trim(s, " -._[]()")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

// Quality renders format and hi-res tags, e.g. "FLAC 24bit-96kHz".
func (a AlbumInfo) Quality() string {
	tags := make([]string, 0, 2)
	if a.Format != "" {
		tags = append(tags, a.Format)
	}
	switch {
	case a.BitDepth > 0 && a.SampleRate != "":
		tags = append(tags, strconv.Itoa(a.BitDepth)+"bit-"+a.SampleRate+"kHz")
	case a.BitDepth > 0:
		tags = append(tags, strconv.Itoa(a.BitDepth)+"bit")
	}
	return strings.Join(tags, " ")
}

// FolderName renders "Artist - Year - Album [FORMAT]". Empty parts are left out.
func (a AlbumInfo) FolderName() string {
	parts := make([]string, 0, 3)
	if a.Artist != "" {
		parts = append(parts, a.Artist)
	}
	if a.Year > 0 {
		parts = append(parts, strconv.Itoa(a.Year))
	}
	if a.Album != "" {
		parts = append(parts, a.Album)
	}
	name := strings.Join(parts, " - ")
	if quality := a.Quality(); quality != "" {
		name += " [" + quality + "]"
	}
	return logger.Path(name, false)
}

// Fill copies the fields of other into the empty fields of a.
func (a *AlbumInfo) Fill(other AlbumInfo) {
	if a.Artist == "" {
		a.Artist = other.Artist
	}
	if a.Album == "" {
		a.Album = other.Album
	}
	if a.Year == 0 {
		a.Year = other.Year
	}
	if a.Format == "" {
		a.Format = other.Format
	}
	if a.BitDepth == 0 {
		a.BitDepth = other.BitDepth
	}
	if a.SampleRate == "" {
		a.SampleRate = other.SampleRate
	}
	if a.Catalog == "" {
		a.Catalog = other.Catalog
	}
}
