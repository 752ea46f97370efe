package scraper

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/Kellerman81/go_media_organizer/apiexternal"
	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/antchfx/htmlquery"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// xpathScraper reads forums whose markup is easier to address with xpath.
// Requests go through the rate limited client.
type xpathScraper struct {
	forum
	client *apiexternal.RLHTTPClient
}

func newXpathScraper(base forum) *xpathScraper {
	general := config.General()
	useragent := base.cfg.UserAgent
	if useragent == "" {
		useragent = general.UserAgent
	}
	client := apiexternal.NewClient(time.Duration(max(general.HTTPTimeoutSeconds, 5))*time.Second, useragent, max(base.cfg.DelaySeconds, 1), max(base.cfg.Parallelism, 1))
	client.SetCookie(base.cfg.Cookie)
	return &xpathScraper{forum: base, client: client}
}

func nodeText(node *html.Node, expr string) string {
	if expr == "" {
		return strings.TrimSpace(htmlquery.InnerText(node))
	}
	found, err := htmlquery.Query(node, expr)
	if err != nil || found == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(found))
}

func nodeAttr(node *html.Node, expr string, attr string) string {
	if expr != "" {
		found, err := htmlquery.Query(node, expr)
		if err != nil || found == nil {
			return ""
		}
		node = found
	}
	return htmlquery.SelectAttr(node, attr)
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}

func (s *xpathScraper) Scrape(ctx context.Context) ([]Release, error) {
	var (
		releases []Release
		seen     = make(map[string]bool)
		lastErr  error
		visited  int
	)
	for _, page := range s.pageURLs() {
		doc, err := s.client.GetNode(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Log.WithFields(logrus.Fields{"forum": s.cfg.Name, "url": page}).Warn(err)
			lastErr = err
			continue
		}
		visited++
		base, _ := url.Parse(page)
		items, err := htmlquery.QueryAll(doc, s.cfg.ItemSelector)
		if err != nil {
			return nil, errors.Wrapf(err, "scraper %s itemselector", s.cfg.Name)
		}
		for _, item := range items {
			link := resolveURL(base, nodeAttr(item, s.cfg.LinkSelector, s.cfg.LinkAttribute))
			var posted string
			if s.cfg.DateSelector != "" {
				posted = nodeText(item, s.cfg.DateSelector)
			}
			r, ok := s.newRelease(nodeText(item, s.cfg.TitleSelector), link, posted)
			if !ok || seen[r.ThreadID] {
				continue
			}
			seen[r.ThreadID] = true
			releases = append(releases, r)
		}
	}
	if visited == 0 {
		if lastErr == nil {
			lastErr = errors.Wrapf(logger.ErrNotFound, "no pages for %s", s.cfg.Name)
		}
		return nil, lastErr
	}

	if s.cfg.FetchDetails {
		swg := sizedwaitgroup.New(max(s.cfg.Parallelism, 1))
		for idx := range releases {
			swg.Add()
			go func(r *Release) {
				defer swg.Done()
				if err := s.fetchDetails(ctx, r); err != nil {
					logger.Log.WithFields(logrus.Fields{"forum": s.cfg.Name, "url": r.URL}).Warn(err)
				}
			}(&releases[idx])
		}
		swg.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Log.WithFields(logrus.Fields{"forum": s.cfg.Name}).Info("Scraped threads: ", len(releases))
	return s.finish(releases), nil
}

func (s *xpathScraper) fetchDetails(ctx context.Context, r *Release) error {
	doc, err := s.client.GetNode(ctx, r.URL)
	if err != nil {
		return err
	}
	base, _ := url.Parse(r.URL)
	body := doc
	if s.cfg.BodySelector != "" {
		if found, err := htmlquery.Query(doc, s.cfg.BodySelector); err == nil && found != nil {
			body = found
		}
	}
	if s.cfg.MagnetSelector != "" {
		r.Magnet = nodeAttr(doc, s.cfg.MagnetSelector, "href")
	}
	if s.cfg.TorrentSelector != "" {
		r.TorrentURL = resolveURL(base, nodeAttr(doc, s.cfg.TorrentSelector, "href"))
	}
	if s.cfg.SizeSelector != "" {
		r.Size = regexSize.FindString(nodeText(doc, s.cfg.SizeSelector))
	}
	var links []string
	for _, a := range htmlquery.Find(body, ".//a[@href]") {
		links = append(links, htmlquery.SelectAttr(a, "href"))
	}
	applyBody(r, htmlquery.OutputHTML(body, true)+"\n"+htmlquery.InnerText(body), links)
	return nil
}
