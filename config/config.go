// koanf_api
package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

const Configfile string = "config.toml"

// EnvPrefix is the prefix of environment variables overriding config values.
// GMO_GENERAL__LOGLEVEL=debug sets general.loglevel.
const EnvPrefix = "GMO_"

type MainConfig struct {
	General      GeneralConfig        `koanf:"general"`
	Paths        []PathsConfig        `koanf:"paths"`
	Movies       []MovieConfig        `koanf:"movies"`
	Music        []MusicConfig        `koanf:"music"`
	Scrapers     []ScraperConfig      `koanf:"scrapers"`
	Regex        []RegexConfig        `koanf:"regex"`
	Scheduler    []SchedulerConfig    `koanf:"scheduler"`
	Notification []NotificationConfig `koanf:"notification"`
}

type GeneralConfig struct {
	LogLevel      string `koanf:"loglevel"`
	LogFile       string `koanf:"logfile"`
	LogFileSize   int    `koanf:"logfilesize"`
	LogFileCount  int    `koanf:"logfilecount"`
	LogCompress   bool   `koanf:"logcompress"`
	LogToFileOnly bool   `koanf:"logtofileonly"`
	LogJSON       bool   `koanf:"logjson"`

	DatabaseFile       string `koanf:"databasefile"`
	HistoryFile        string `koanf:"historyfile"`
	CacheFile          string `koanf:"cachefile"`
	MaxDatabaseBackups int    `koanf:"maxdatabasebackups"`

	WorkerMetadata int `koanf:"workermetadata"`
	WorkerFiles    int `koanf:"workerfiles"`
	WorkerScraper  int `koanf:"workerscraper"`

	TheMovieDBApiKey      string `koanf:"themoviedbapikey"`
	TmdbLanguage          string `koanf:"tmdblanguage"`
	Tmdblimiterseconds    int    `koanf:"tmdblimiterseconds"`
	Tmdblimitercalls      int    `koanf:"tmdblimitercalls"`
	Imdblimiterseconds    int    `koanf:"imdblimiterseconds"`
	Imdblimitercalls      int    `koanf:"imdblimitercalls"`
	OmdbApiKey            string `koanf:"omdbapikey"`
	Omdblimiterseconds    int    `koanf:"omdblimiterseconds"`
	Omdblimitercalls      int    `koanf:"omdblimitercalls"`
	DoubanCookie          string `koanf:"doubancookie"`
	Doubanlimiterseconds  int    `koanf:"doubanlimiterseconds"`
	Doubanlimitercalls    int    `koanf:"doubanlimitercalls"`
	DiscogsToken          string `koanf:"discogstoken"`
	Discogslimiterseconds int    `koanf:"discogslimiterseconds"`
	Discogslimitercalls   int    `koanf:"discogslimitercalls"`
	UserAgent             string `koanf:"useragent"`
	HTTPTimeoutSeconds    int    `koanf:"httptimeoutseconds"`

	MovieMetaSourceImdb     bool     `koanf:"moviemetasourceimdb"`
	MovieMetaSourceTmdb     bool     `koanf:"moviemetasourcetmdb"`
	MovieMetaSourceDouban   bool     `koanf:"moviemetasourcedouban"`
	MovieMetaSourcePriority []string `koanf:"moviemetasourcepriority"`

	FfprobePath string `koanf:"ffprobepath"`

	WebPort             string `koanf:"webport"`
	WebApiKey           string `koanf:"webapikey"`
	EnablePprof         bool   `koanf:"enablepprof"`
	EnableFileWatcher   bool   `koanf:"enablefilewatcher"`
	ConcurrentScheduler int    `koanf:"concurrentscheduler"`
}

type PathsConfig struct {
	Name                           string   `koanf:"name"`
	Path                           string   `koanf:"path"`
	AllowedVideoExtensions         []string `koanf:"allowedvideoextensions"`
	AllowedVideoExtensionsNoRename []string `koanf:"allowedvideoextensionsnorename"`
	AllowedOtherExtensions         []string `koanf:"allowedotherextensions"`
	AllowedAudioExtensions         []string `koanf:"allowedaudioextensions"`
	Blocked                        []string `koanf:"blocked"`
	Disallowed                     []string `koanf:"disallowed"`
	DeleteDisallowed               bool     `koanf:"deletedisallowed"`
	JunkFiles                      []string `koanf:"junkfiles"`
	Upgrade                        bool     `koanf:"upgrade"`
	MinVideoSize                   int      `koanf:"minvideosize"`
}

type MovieConfig struct {
	Name              string  `koanf:"name"`
	Source            string  `koanf:"source"`
	Target            string  `koanf:"target"`
	Trash             string  `koanf:"trash"`
	Naming            string  `koanf:"naming"`
	TitleLanguage     string  `koanf:"titlelanguage"`
	DirectorLayout    string  `koanf:"directorlayout"`
	DefaultQuality    string  `koanf:"defaultquality"`
	DefaultResolution string  `koanf:"defaultresolution"`
	BitrateTolerance  *float64 `koanf:"bitratetolerance"`
	SizeTolerance     *float64 `koanf:"sizetolerance"`
	UseFFProbe        bool    `koanf:"useffprobe"`
	CleanupSource     bool    `koanf:"cleanupsource"`
	DryRun            bool    `koanf:"dryrun"`
	Notification      string  `koanf:"notification"`
}

type MusicConfig struct {
	Name           string `koanf:"name"`
	Source         string `koanf:"source"`
	Target         string `koanf:"target"`
	UseTags        bool   `koanf:"usetags"`
	UseDiscogs     bool   `koanf:"usediscogs"`
	ConvertCue     bool   `koanf:"convertcue"`
	WriteAlbumJSON bool   `koanf:"writealbumjson"`
	DryRun         bool   `koanf:"dryrun"`
}

type ScraperConfig struct {
	Name           string   `koanf:"name"`
	Type           string   `koanf:"type"`
	StartURL       string   `koanf:"starturl"`
	PageURLPattern string   `koanf:"pageurlpattern"`
	PageStart      int      `koanf:"pagestart"`
	Pages          int      `koanf:"pages"`
	AllowedDomains []string `koanf:"alloweddomains"`

	ItemSelector    string `koanf:"itemselector"`
	TitleSelector   string `koanf:"titleselector"`
	LinkSelector    string `koanf:"linkselector"`
	LinkAttribute   string `koanf:"linkattribute"`
	DateSelector    string `koanf:"dateselector"`
	DateFormat      string `koanf:"dateformat"`
	ThreadIDRegex   string `koanf:"threadidregex"`
	FetchDetails    bool   `koanf:"fetchdetails"`
	BodySelector    string `koanf:"bodyselector"`
	MagnetSelector  string `koanf:"magnetselector"`
	TorrentSelector string `koanf:"torrentselector"`
	SizeSelector    string `koanf:"sizeselector"`

	Cookie        string `koanf:"cookie"`
	UserAgent     string `koanf:"useragent"`
	DelaySeconds  int    `koanf:"delayseconds"`
	Parallelism   int    `koanf:"parallelism"`
	TemplateRegex string `koanf:"template_regex"`
	MinPriority   int    `koanf:"minpriority"`
	Output        string `koanf:"output"`
}

type RegexConfig struct {
	Name          string   `koanf:"name"`
	Required      []string `koanf:"required"`
	Rejected      []string `koanf:"rejected"`
	RequiredRegex []*regexp.Regexp
	RejectedRegex []*regexp.Regexp
}

type SchedulerConfig struct {
	Name     string   `koanf:"name"`
	Job      string   `koanf:"job"`
	Args     []string `koanf:"args"`
	Cron     string   `koanf:"cron"`
	Interval string   `koanf:"interval"`
}

type NotificationConfig struct {
	Name      string   `koanf:"name"`
	Type      string   `koanf:"type"`
	Apikey    string   `koanf:"apikey"`
	Recipient string   `koanf:"recipient"`
	Events    []string `koanf:"events"`
}

// Cfg is the loaded configuration with the list sections keyed by name.
type Cfg struct {
	General      GeneralConfig
	Path         map[string]PathsConfig
	Movie        map[string]MovieConfig
	Music        map[string]MusicConfig
	Scraper      map[string]ScraperConfig
	Regex        map[string]RegexConfig
	Scheduler    map[string]SchedulerConfig
	Notification map[string]NotificationConfig
}

var (
	cfglock   = sync.RWMutex{}
	cfgloaded Cfg
)

// LoadCfg reads the toml file, applies GMO_ environment overrides and stores
// the result as the active configuration.
func LoadCfg(configfile string) (*file.File, error) {
	f := file.Provider(configfile)
	cfg, err := LoadCfgData(f)
	if err != nil {
		return nil, err
	}
	SetCfg(cfg)
	return f, nil
}

func LoadCfgData(f *file.File) (Cfg, error) {
	var k = koanf.New(".")
	if err := k.Load(f, toml.Parser()); err != nil {
		return Cfg{}, errors.Wrap(err, "error loading config")
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return Cfg{}, errors.Wrap(err, "error loading environment")
	}
	if k.Sprint() == "" {
		return Cfg{}, errors.New("error loading config. Config Empty")
	}

	var out MainConfig
	if err := k.Unmarshal("", &out); err != nil {
		return Cfg{}, errors.Wrap(err, "error parsing config")
	}
	return BuildCfg(out)
}

// BuildCfg turns the raw sections into name keyed maps, compiles regex
// filters and fills defaults.
func BuildCfg(out MainConfig) (Cfg, error) {
	cfg := Cfg{
		General:      out.General,
		Path:         make(map[string]PathsConfig, len(out.Paths)),
		Movie:        make(map[string]MovieConfig, len(out.Movies)),
		Music:        make(map[string]MusicConfig, len(out.Music)),
		Scraper:      make(map[string]ScraperConfig, len(out.Scrapers)),
		Regex:        make(map[string]RegexConfig, len(out.Regex)),
		Scheduler:    make(map[string]SchedulerConfig, len(out.Scheduler)),
		Notification: make(map[string]NotificationConfig, len(out.Notification)),
	}
	applyGeneralDefaults(&cfg.General)

	for idx := range out.Paths {
		cfg.Path[out.Paths[idx].Name] = applyPathDefaults(out.Paths[idx])
	}
	for idx := range out.Movies {
		cfg.Movie[out.Movies[idx].Name] = applyMovieDefaults(out.Movies[idx])
	}
	for idx := range out.Music {
		cfg.Music[out.Music[idx].Name] = out.Music[idx]
	}
	for idx := range out.Scrapers {
		cfg.Scraper[out.Scrapers[idx].Name] = applyScraperDefaults(out.Scrapers[idx])
	}
	for idx := range out.Regex {
		regex, err := CompileRegex(out.Regex[idx])
		if err != nil {
			return Cfg{}, err
		}
		cfg.Regex[regex.Name] = regex
	}
	for idx := range out.Scheduler {
		cfg.Scheduler[out.Scheduler[idx].Name] = out.Scheduler[idx]
	}
	for idx := range out.Notification {
		cfg.Notification[out.Notification[idx].Name] = out.Notification[idx]
	}
	return cfg, nil
}

func CompileRegex(regex RegexConfig) (RegexConfig, error) {
	regex.RequiredRegex = make([]*regexp.Regexp, 0, len(regex.Required))
	for _, entry := range regex.Required {
		re, err := regexp.Compile(entry)
		if err != nil {
			return regex, errors.Wrapf(err, "regex %s required entry %s", regex.Name, entry)
		}
		regex.RequiredRegex = append(regex.RequiredRegex, re)
	}
	regex.RejectedRegex = make([]*regexp.Regexp, 0, len(regex.Rejected))
	for _, entry := range regex.Rejected {
		re, err := regexp.Compile(entry)
		if err != nil {
			return regex, errors.Wrapf(err, "regex %s rejected entry %s", regex.Name, entry)
		}
		regex.RejectedRegex = append(regex.RejectedRegex, re)
	}
	return regex, nil
}

func applyGeneralDefaults(g *GeneralConfig) {
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.DatabaseFile == "" {
		g.DatabaseFile = "./databases/data.db"
	}
	if g.HistoryFile == "" {
		g.HistoryFile = "./databases/history.db"
	}
	if g.CacheFile == "" {
		g.CacheFile = "./databases/cache.db"
	}
	if g.WorkerMetadata == 0 {
		g.WorkerMetadata = 3
	}
	if g.WorkerFiles == 0 {
		g.WorkerFiles = 2
	}
	if g.WorkerScraper == 0 {
		g.WorkerScraper = 1
	}
	if g.TmdbLanguage == "" {
		g.TmdbLanguage = "en-US"
	}
	if len(g.MovieMetaSourcePriority) == 0 {
		g.MovieMetaSourcePriority = []string{"imdb", "tmdb", "douban"}
	}
	if !g.MovieMetaSourceImdb && !g.MovieMetaSourceTmdb && !g.MovieMetaSourceDouban {
		g.MovieMetaSourceImdb = true
		g.MovieMetaSourceTmdb = true
		g.MovieMetaSourceDouban = true
	}
	if g.UserAgent == "" {
		g.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if g.HTTPTimeoutSeconds == 0 {
		g.HTTPTimeoutSeconds = 15
	}
	if g.ConcurrentScheduler == 0 {
		g.ConcurrentScheduler = 1
	}
	if g.WebPort == "" {
		g.WebPort = "9090"
	}
}

func applyPathDefaults(p PathsConfig) PathsConfig {
	if len(p.AllowedVideoExtensions) == 0 {
		p.AllowedVideoExtensions = []string{".mkv", ".mp4", ".avi", ".m2ts", ".ts", ".wmv", ".mov", ".iso", ".rmvb"}
	}
	if len(p.AllowedAudioExtensions) == 0 {
		p.AllowedAudioExtensions = []string{".flac", ".ape", ".wav", ".mp3", ".m4a", ".dsf", ".dff", ".wv", ".tak", ".ogg"}
	}
	if len(p.AllowedOtherExtensions) == 0 {
		p.AllowedOtherExtensions = []string{".srt", ".ass", ".ssa", ".sub", ".idx", ".sup", ".nfo", ".jpg", ".png", ".cue", ".log"}
	}
	if len(p.JunkFiles) == 0 {
		p.JunkFiles = []string{"Thumbs.db", ".DS_Store", "desktop.ini", "*.url", "*.lnk", "*.!qb"}
	}
	for idx := range p.AllowedVideoExtensions {
		p.AllowedVideoExtensions[idx] = normalizeExt(p.AllowedVideoExtensions[idx])
	}
	for idx := range p.AllowedAudioExtensions {
		p.AllowedAudioExtensions[idx] = normalizeExt(p.AllowedAudioExtensions[idx])
	}
	for idx := range p.AllowedOtherExtensions {
		p.AllowedOtherExtensions[idx] = normalizeExt(p.AllowedOtherExtensions[idx])
	}
	for idx := range p.AllowedVideoExtensionsNoRename {
		p.AllowedVideoExtensionsNoRename[idx] = normalizeExt(p.AllowedVideoExtensionsNoRename[idx])
	}
	return p
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func applyMovieDefaults(m MovieConfig) MovieConfig {
	if m.Naming == "" {
		m.Naming = "{{.Title}} ({{.Year}})/{{.Title}} ({{.Year}}) [{{.Source.Resolution}} {{.Source.Quality}} {{.Source.Codec}}]"
	}
	if m.TitleLanguage == "" {
		m.TitleLanguage = "english"
	}
	if m.DirectorLayout == "" {
		m.DirectorLayout = "both"
	}
	if m.BitrateTolerance == nil {
		m.BitrateTolerance = Float(DefaultBitrateTolerance)
	}
	if m.SizeTolerance == nil {
		m.SizeTolerance = Float(DefaultSizeTolerance)
	}
	return m
}

// Default tolerances in percent. An explicit 0 in the config is kept.
const (
	DefaultBitrateTolerance = 10.0
	DefaultSizeTolerance    = 5.0
)

func Float(f float64) *float64 {
	return &f
}

// Tolerances returns the bitrate and size tolerance, falling back to the
// defaults for a section that was not loaded from a file.
func (m MovieConfig) Tolerances() (bitrate float64, size float64) {
	bitrate, size = DefaultBitrateTolerance, DefaultSizeTolerance
	if m.BitrateTolerance != nil {
		bitrate = *m.BitrateTolerance
	}
	if m.SizeTolerance != nil {
		size = *m.SizeTolerance
	}
	return bitrate, size
}

func applyScraperDefaults(s ScraperConfig) ScraperConfig {
	if s.Type == "" {
		s.Type = "css"
	}
	if s.Pages == 0 {
		s.Pages = 1
	}
	if s.PageStart == 0 {
		s.PageStart = 1
	}
	if s.LinkAttribute == "" {
		s.LinkAttribute = "href"
	}
	if s.DelaySeconds == 0 {
		s.DelaySeconds = 2
	}
	if s.Parallelism == 0 {
		s.Parallelism = 1
	}
	return s
}

// Watch reloads the configuration whenever the file changes.
func Watch(f *file.File) {
	f.Watch(func(event interface{}, err error) {
		if err != nil {
			logger.Log.Errorf("watch error: %v", err)
			return
		}
		time.Sleep(2 * time.Second)
		cfg, err := LoadCfgData(f)
		if err != nil {
			logger.Log.Errorln("config reload failed", err)
			return
		}
		SetCfg(cfg)
		logger.Log.Infoln("cfg reloaded")
	})
}

func SetCfg(cfg Cfg) {
	cfglock.Lock()
	defer cfglock.Unlock()
	cfgloaded = cfg
}

func Get() Cfg {
	cfglock.RLock()
	defer cfglock.RUnlock()
	return cfgloaded
}

func General() GeneralConfig {
	return Get().General
}

func GetPath(name string) (PathsConfig, error) {
	if p, ok := Get().Path[name]; ok {
		return p, nil
	}
	return PathsConfig{}, errors.Wrapf(logger.ErrConfigMissing, "path %s", name)
}

func GetMovie(name string) (MovieConfig, error) {
	if m, ok := Get().Movie[name]; ok {
		return m, nil
	}
	return MovieConfig{}, errors.Wrapf(logger.ErrConfigMissing, "movies %s", name)
}

func GetMusic(name string) (MusicConfig, error) {
	if m, ok := Get().Music[name]; ok {
		return m, nil
	}
	return MusicConfig{}, errors.Wrapf(logger.ErrConfigMissing, "music %s", name)
}

func GetScraper(name string) (ScraperConfig, error) {
	if s, ok := Get().Scraper[name]; ok {
		return s, nil
	}
	return ScraperConfig{}, errors.Wrapf(logger.ErrConfigMissing, "scraper %s", name)
}

func GetRegex(name string) (RegexConfig, bool) {
	r, ok := Get().Regex[name]
	return r, ok
}

func GetNotification(name string) (NotificationConfig, error) {
	if n, ok := Get().Notification[name]; ok {
		return n, nil
	}
	return NotificationConfig{}, errors.Wrapf(logger.ErrConfigMissing, "notification %s", name)
}

func (c Cfg) String() string {
	return fmt.Sprintf("paths=%d movies=%d music=%d scrapers=%d", len(c.Path), len(c.Movie), len(c.Music), len(c.Scraper))
}
