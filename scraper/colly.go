package scraper

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// cssScraper walks forum list pages with colly and css selectors.
type cssScraper struct {
	forum
}

func childText(e *colly.HTMLElement, selector string) string {
	if selector == "" {
		return e.Text
	}
	return e.ChildText(selector)
}

func childAttr(e *colly.HTMLElement, selector string, attr string) string {
	if selector == "" {
		return e.Attr(attr)
	}
	return e.ChildAttr(selector, attr)
}

func (s *cssScraper) collector() *colly.Collector {
	general := config.General()
	useragent := s.cfg.UserAgent
	if useragent == "" {
		useragent = general.UserAgent
	}
	options := []colly.CollectorOption{colly.Async(true)}
	if useragent != "" {
		options = append(options, colly.UserAgent(useragent))
	}
	c := colly.NewCollector(options...)
	if len(s.cfg.AllowedDomains) >= 1 {
		c.AllowedDomains = s.cfg.AllowedDomains
	}
	c.SetRequestTimeout(time.Duration(max(general.HTTPTimeoutSeconds, 5)) * time.Second)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: max(s.cfg.Parallelism, 1),
		Delay:       time.Duration(s.cfg.DelaySeconds) * time.Second,
	}); err != nil {
		logger.Log.Error("scraper limit: ", err)
	}
	return c
}

func (s *cssScraper) onRequest(ctx context.Context) colly.RequestCallback {
	return func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if s.cfg.Cookie != "" {
			r.Headers.Set("Cookie", s.cfg.Cookie)
		}
		logger.Log.Debug("scrape ", r.URL.String())
	}
}

func (s *cssScraper) Scrape(ctx context.Context) ([]Release, error) {
	var (
		mu       sync.Mutex
		releases []Release
		index    = make(map[string]int)
		failed   []error
	)
	c := s.collector()
	detail := c.Clone()
	c.OnRequest(s.onRequest(ctx))
	detail.OnRequest(s.onRequest(ctx))
	onError := func(r *colly.Response, err error) {
		mu.Lock()
		failed = append(failed, errors.Wrapf(err, "get %s", r.Request.URL))
		mu.Unlock()
		logger.Log.WithFields(logrus.Fields{"forum": s.cfg.Name, "url": r.Request.URL.String()}).Warn(err)
	}
	c.OnError(onError)
	detail.OnError(onError)

	c.OnHTML(s.cfg.ItemSelector, func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(childAttr(e, s.cfg.LinkSelector, s.cfg.LinkAttribute))
		var posted string
		if s.cfg.DateSelector != "" {
			posted = e.ChildText(s.cfg.DateSelector)
		}
		r, ok := s.newRelease(childText(e, s.cfg.TitleSelector), link, posted)
		if !ok {
			return
		}
		mu.Lock()
		if _, dup := index[r.ThreadID]; dup {
			mu.Unlock()
			return
		}
		index[r.ThreadID] = len(releases)
		releases = append(releases, r)
		mu.Unlock()
		if s.cfg.FetchDetails {
			dctx := colly.NewContext()
			dctx.Put("thread", r.ThreadID)
			if err := detail.Request(http.MethodGet, link, nil, dctx, nil); err != nil {
				logger.Log.Debug("detail ", link, ": ", err)
			}
		}
	})

	detail.OnHTML("html", func(e *colly.HTMLElement) {
		var r Release
		body := e.DOM
		if s.cfg.BodySelector != "" {
			body = e.DOM.Find(s.cfg.BodySelector)
		}
		if s.cfg.MagnetSelector != "" {
			r.Magnet = e.ChildAttr(s.cfg.MagnetSelector, "href")
		}
		if s.cfg.TorrentSelector != "" {
			if href := e.ChildAttr(s.cfg.TorrentSelector, "href"); href != "" {
				r.TorrentURL = e.Request.AbsoluteURL(href)
			}
		}
		if s.cfg.SizeSelector != "" {
			r.Size = regexSize.FindString(e.ChildText(s.cfg.SizeSelector))
		}
		links := body.Find("a[href]").Map(func(_ int, a *goquery.Selection) string {
			return a.AttrOr("href", "")
		})
		html, _ := body.Html()
		applyBody(&r, html+"\n"+body.Text(), links)

		mu.Lock()
		defer mu.Unlock()
		idx, ok := index[e.Request.Ctx.Get("thread")]
		if !ok {
			return
		}
		mergeDetail(&releases[idx], &r)
	})

	visited := 0
	for _, page := range s.pageURLs() {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := c.Visit(page); err != nil {
			logger.Log.WithFields(logrus.Fields{"forum": s.cfg.Name, "url": page}).Warn(err)
			continue
		}
		visited++
	}
	c.Wait()
	detail.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(releases) == 0 && len(failed) >= 1 {
		return nil, failed[0]
	}
	if visited == 0 {
		return nil, errors.Wrapf(logger.ErrNotFound, "no pages for %s", s.cfg.Name)
	}
	logger.Log.WithFields(logrus.Fields{"forum": s.cfg.Name}).Info("Scraped threads: ", len(releases))
	return s.finish(releases), nil
}

func mergeDetail(dst *Release, src *Release) {
	if src.Magnet != "" {
		dst.Magnet = src.Magnet
	}
	if src.TorrentURL != "" {
		dst.TorrentURL = src.TorrentURL
	}
	if src.Size != "" {
		dst.Size = src.Size
	}
	if src.Imdb != "" {
		dst.Imdb = src.Imdb
	}
	if src.Douban != "" {
		dst.Douban = src.Douban
	}
}
