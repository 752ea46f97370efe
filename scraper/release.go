package scraper

import (
	"context"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/Kellerman81/go_media_organizer/scanner"
	"github.com/maruel/natural"
	"github.com/pkg/errors"
)

// Release is one forum thread.
type Release struct {
	Forum      string            `json:"forum"`
	ThreadID   string            `json:"thread_id"`
	Title      string            `json:"title"`
	URL        string            `json:"url"`
	Magnet     string            `json:"magnet,omitempty"`
	TorrentURL string            `json:"torrent_url,omitempty"`
	Size       string            `json:"size,omitempty"`
	SizeBytes  int64             `json:"size_bytes,omitempty"`
	Imdb       string            `json:"imdb,omitempty"`
	Douban     string            `json:"douban,omitempty"`
	Posted     time.Time         `json:"posted,omitempty"`
	Parsed     *parser.ParseInfo `json:"parsed,omitempty"`
}

type Scraper interface {
	Scrape(ctx context.Context) ([]Release, error)
}

var (
	regexMagnet   = regexp.MustCompile(`magnet:\?xt=urn:btih:[0-9A-Za-z]{32,40}[^\s"'<]*`)
	regexSize     = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?\s?[KMGT]i?B)\b`)
	regexImdbLink = regexp.MustCompile(`imdb\.com/title/(tt\d{7,9})`)
	regexDouban   = regexp.MustCompile(`douban\.com/subject/(\d+)`)
	regexLastNum  = regexp.MustCompile(`(\d+)\D*$`)
	regexDate     = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`)
)

// NewScraper returns the scraper for the configured forum type. History may
// be nil, then every thread is returned.
func NewScraper(cfg config.ScraperConfig, history *History) (Scraper, error) {
	base := forum{cfg: cfg, history: history}
	if cfg.ThreadIDRegex != "" {
		re, err := regexp.Compile(cfg.ThreadIDRegex)
		if err != nil {
			return nil, errors.Wrapf(err, "scraper %s threadidregex", cfg.Name)
		}
		base.threadID = re
	}
	switch strings.ToLower(cfg.Type) {
	case "", "css":
		return &cssScraper{forum: base}, nil
	case "xpath":
		return newXpathScraper(base), nil
	}
	return nil, errors.Wrapf(logger.ErrInvalidInput, "scraper %s type %s", cfg.Name, cfg.Type)
}

// forum holds what both scraper types share.
type forum struct {
	cfg      config.ScraperConfig
	history  *History
	threadID *regexp.Regexp
}

// pageURLs lists the list pages to visit. The first page is StartURL, the
// others follow PageURLPattern with {page} counting up from PageStart.
func (f *forum) pageURLs() []string {
	pages := max(f.cfg.Pages, 1)
	urls := make([]string, 0, pages)
	for idx := 0; idx < pages; idx++ {
		if idx == 0 && f.cfg.StartURL != "" {
			urls = append(urls, f.cfg.StartURL)
			continue
		}
		if f.cfg.PageURLPattern == "" {
			break
		}
		urls = append(urls, strings.ReplaceAll(f.cfg.PageURLPattern, "{page}", strconv.Itoa(f.cfg.PageStart+idx)))
	}
	return urls
}

func (f *forum) extractThreadID(link string) string {
	if f.threadID != nil {
		if m := f.threadID.FindStringSubmatch(link); len(m) >= 2 {
			return m[1]
		} else if len(m) == 1 {
			return m[0]
		}
		return ""
	}
	if m := regexLastNum.FindStringSubmatch(link); len(m) >= 2 {
		return m[1]
	}
	return link
}

func (f *forum) parseDate(text string) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}
	if f.cfg.DateFormat != "" {
		if t, err := time.ParseInLocation(f.cfg.DateFormat, text, time.Local); err == nil {
			return t
		}
	}
	if found := regexDate.FindString(text); found != "" {
		if t, err := time.ParseInLocation("2006-1-2", found, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// newRelease builds a release from a list entry. It returns false when the
// entry is incomplete or the thread was seen before.
func (f *forum) newRelease(title string, link string, posted string) (Release, bool) {
	title = strings.TrimSpace(title)
	if title == "" || link == "" {
		return Release{}, false
	}
	r := Release{
		Forum:    f.cfg.Name,
		ThreadID: f.extractThreadID(link),
		Title:    title,
		URL:      link,
		Posted:   f.parseDate(posted),
	}
	if r.ThreadID == "" {
		logger.Log.Debug("no thread id in ", link)
		return r, false
	}
	if f.history != nil && f.history.Seen(f.cfg.Name, r.ThreadID) {
		return r, false
	}
	return r, true
}

// applyBody fills magnet, size and ids from a detail page body.
func applyBody(r *Release, body string, links []string) {
	if r.Magnet == "" {
		r.Magnet = regexMagnet.FindString(body)
	}
	if r.Size == "" {
		r.Size = regexSize.FindString(body)
	}
	for _, link := range append(links, body) {
		if r.Imdb == "" {
			if m := regexImdbLink.FindStringSubmatch(link); len(m) == 2 {
				r.Imdb = m[1]
			}
		}
		if r.Douban == "" {
			if m := regexDouban.FindStringSubmatch(link); len(m) == 2 {
				r.Douban = m[1]
			}
		}
	}
}

// finish parses the titles and sizes, records the threads in the history and
// orders the result newest first.
func (f *forum) finish(releases []Release) []Release {
	for idx := range releases {
		if releases[idx].Size != "" {
			releases[idx].Size = strings.ReplaceAll(strings.TrimSpace(releases[idx].Size), ",", ".")
			releases[idx].SizeBytes = logger.ParseSize(releases[idx].Size)
		}
		m, err := parser.NewFileParser(releases[idx].Title, false)
		if err != nil {
			continue
		}
		if m.Imdb == "" {
			m.Imdb = releases[idx].Imdb
		}
		if m.Douban == "" {
			m.Douban = releases[idx].Douban
		}
		m.Size = releases[idx].SizeBytes
		m.GetPriority("", "")
		releases[idx].Parsed = m
	}
	sort.SliceStable(releases, func(i, j int) bool {
		if !releases[i].Posted.Equal(releases[j].Posted) {
			return releases[i].Posted.After(releases[j].Posted)
		}
		return natural.Less(releases[j].ThreadID, releases[i].ThreadID)
	})
	if f.history != nil {
		f.history.MarkAll(releases)
	}
	return releases
}

// Filter applies the required and rejected regexes of a regex config and a
// minimum quality priority. A zero RegexConfig accepts everything.
func Filter(releases []Release, regex config.RegexConfig, minPriority int) []Release {
	out := make([]Release, 0, len(releases))
	for idx := range releases {
		if reason, ok := accepted(&releases[idx], &regex, minPriority); !ok {
			logger.Log.Debug("Skipped - ", reason, ": ", releases[idx].Title)
			continue
		}
		out = append(out, releases[idx])
	}
	return out
}

func accepted(r *Release, regex *config.RegexConfig, minPriority int) (string, bool) {
	for idx := range regex.RejectedRegex {
		if regex.RejectedRegex[idx].MatchString(r.Title) {
			return "rejected by " + regex.RejectedRegex[idx].String(), false
		}
	}
	if len(regex.RequiredRegex) >= 1 {
		matched := false
		for idx := range regex.RequiredRegex {
			if regex.RequiredRegex[idx].MatchString(r.Title) {
				matched = true
				break
			}
		}
		if !matched {
			return "required not matched", false
		}
	}
	if minPriority > 0 && (r.Parsed == nil || r.Parsed.Priority < minPriority) {
		return "priority below " + strconv.Itoa(minPriority), false
	}
	return "", true
}

// ExportJSON appends releases to the json array stored at path. Threads
// already in the file are replaced.
func ExportJSON(path string, releases []Release) error {
	var existing []Release
	if err := scanner.ReadJSON(path, &existing); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return err
	}
	index := make(map[string]int, len(existing))
	for idx := range existing {
		index[existing[idx].Forum+"/"+existing[idx].ThreadID] = idx
	}
	for idx := range releases {
		key := releases[idx].Forum + "/" + releases[idx].ThreadID
		if pos, ok := index[key]; ok {
			existing[pos] = releases[idx]
			continue
		}
		index[key] = len(existing)
		existing = append(existing, releases[idx])
	}
	return scanner.WriteJSON(path, existing)
}
