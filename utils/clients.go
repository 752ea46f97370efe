package utils

import (
	"strings"
	"sync"
	"time"

	"github.com/Kellerman81/go_media_organizer/apiexternal"
	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/metadata"
	"github.com/Kellerman81/go_media_organizer/scraper"
	"github.com/pkg/errors"
)

var (
	initMu   sync.Mutex
	cache    *config.Store
	history  *scraper.History
	enricher *metadata.Enricher
)

// InitClients creates the metadata clients of the enabled sources.
func InitClients() {
	general := config.General()
	timeout := time.Duration(general.HTTPTimeoutSeconds) * time.Second

	apiexternal.TmdbApi = nil
	if general.MovieMetaSourceTmdb && general.TheMovieDBApiKey != "" {
		apiexternal.TmdbApi = apiexternal.NewTmdbClient(general.TheMovieDBApiKey, general.TmdbLanguage,
			general.Tmdblimiterseconds, general.Tmdblimitercalls, timeout, general.UserAgent)
	}
	apiexternal.ImdbApi = nil
	if general.MovieMetaSourceImdb {
		apiexternal.ImdbApi = apiexternal.NewImdbClient(
			apiexternal.NewClient(timeout, general.UserAgent, general.Imdblimiterseconds, general.Imdblimitercalls))
	}
	apiexternal.OmdbApi = nil
	if general.MovieMetaSourceImdb && general.OmdbApiKey != "" {
		apiexternal.OmdbApi = apiexternal.NewOmdbClient(general.OmdbApiKey,
			general.Omdblimiterseconds, general.Omdblimitercalls, timeout, general.UserAgent)
	}
	apiexternal.DoubanApi = nil
	if general.MovieMetaSourceDouban {
		apiexternal.DoubanApi = apiexternal.NewDoubanClient(general.DoubanCookie,
			apiexternal.NewClient(timeout, general.UserAgent, general.Doubanlimiterseconds, general.Doubanlimitercalls))
	}
	apiexternal.DiscogsApi = nil
	if general.DiscogsToken != "" {
		apiexternal.DiscogsApi = apiexternal.NewDiscogsClient(general.DiscogsToken,
			general.Discogslimiterseconds, general.Discogslimitercalls, timeout, general.UserAgent)
	}
}

// Init creates the clients and opens the metadata cache and the scraper
// history of the general section.
func Init() error {
	InitClients()

	initMu.Lock()
	defer initMu.Unlock()
	general := config.General()
	if cache == nil && general.CacheFile != "" {
		store, err := config.OpenStore(general.CacheFile)
		if err != nil {
			return errors.Wrap(err, "open metadata cache")
		}
		cache = store
	}
	if history == nil && general.HistoryFile != "" {
		h, err := scraper.OpenHistory(general.HistoryFile)
		if err != nil {
			return errors.Wrap(err, "open scraper history")
		}
		history = h
	}
	enricher = nil
	return nil
}

// Close closes the stores opened by Init.
func Close() {
	initMu.Lock()
	defer initMu.Unlock()
	if history != nil {
		if err := history.Close(); err != nil {
			logger.Log.Warn("close scraper history: ", err)
		}
		history = nil
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			logger.Log.Warn("close metadata cache: ", err)
		}
		cache = nil
	}
	enricher = nil
}

// Enricher returns the shared metadata lookup built from the clients.
func Enricher() *metadata.Enricher {
	initMu.Lock()
	defer initMu.Unlock()
	if enricher == nil {
		general := config.General()
		var c metadata.Cache
		if cache != nil {
			c = cache
		}
		enricher = metadata.NewEnricher(metadata.NormalizePriority(general.MovieMetaSourcePriority), general.WorkerMetadata, c)
	}
	return enricher
}

// SetEnricher replaces the shared lookup.
func SetEnricher(e *metadata.Enricher) {
	initMu.Lock()
	enricher = e
	initMu.Unlock()
}

// History returns the scraper history opened by Init or nil.
func History() *scraper.History {
	initMu.Lock()
	defer initMu.Unlock()
	return history
}

// notifierFor returns the notifier of a [[notifications]] section.
func notifierFor(name string) apiexternal.Notifier {
	if name == "" {
		return apiexternal.NoopNotifier{}
	}
	cfg, err := config.GetNotification(name)
	if err != nil {
		logger.Log.Warn(err)
		return apiexternal.NoopNotifier{}
	}
	switch strings.ToLower(cfg.Type) {
	case "pushover":
		return apiexternal.NewPushOverClient(cfg.Apikey, cfg.Recipient)
	default:
		logger.Log.Warn("unknown notification type: ", cfg.Type)
		return apiexternal.NoopNotifier{}
	}
}
