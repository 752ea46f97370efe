package apiexternal

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/antchfx/htmlquery"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

type ImdbPerson struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ImdbTitle struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Year      int          `json:"year"`
	Runtime   int          `json:"runtime"`
	Genres    []string     `json:"genres"`
	Countries []string     `json:"countries"`
	Languages []string     `json:"languages"`
	Directors []ImdbPerson `json:"directors"`
	Rating    float32      `json:"rating"`
	Votes     int          `json:"votes"`
}

type imdbLinkedData struct {
	Type            string          `json:"@type"`
	Name            string          `json:"name"`
	DatePublished   string          `json:"datePublished"`
	Duration        string          `json:"duration"`
	Genre           json.RawMessage `json:"genre"`
	Director        json.RawMessage `json:"director"`
	AggregateRating struct {
		RatingValue float32 `json:"ratingValue"`
		RatingCount int     `json:"ratingCount"`
	} `json:"aggregateRating"`
}

type imdbLinkedPerson struct {
	Type string `json:"@type"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

var (
	regexImdbName     = regexp.MustCompile(`nm\d{5,9}`)
	regexIsoDuration  = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?`)
	regexYear         = regexp.MustCompile(`(19|20)\d{2}`)
	ImdbValidTitleID  = regexp.MustCompile(`^tt\d{5,10}$`)
	ImdbValidPersonID = regexp.MustCompile(`^nm\d{5,10}$`)
)

type ImdbClient struct {
	BaseURL string
	Client  *RLHTTPClient
}

var ImdbApi *ImdbClient

func NewImdbClient(client *RLHTTPClient) *ImdbClient {
	client.Header.Set("Accept-Language", "en-US,en;q=0.9")
	return &ImdbClient{BaseURL: "https://www.imdb.com", Client: client}
}

// stringList decodes a json string or string array.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

func personList(raw json.RawMessage) []imdbLinkedPerson {
	if len(raw) == 0 {
		return nil
	}
	var list []imdbLinkedPerson
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single imdbLinkedPerson
	if err := json.Unmarshal(raw, &single); err == nil {
		return []imdbLinkedPerson{single}
	}
	return nil
}

// ParseIsoDuration converts "PT2H16M" to minutes.
func ParseIsoDuration(duration string) int {
	match := regexIsoDuration.FindStringSubmatch(duration)
	if match == nil {
		return 0
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	return hours*60 + minutes
}

func linkedData(doc *html.Node) (imdbLinkedData, bool) {
	var ld imdbLinkedData
	for _, node := range htmlquery.Find(doc, `//script[@type='application/ld+json']`) {
		if err := json.Unmarshal([]byte(htmlquery.InnerText(node)), &ld); err == nil && ld.Name != "" {
			return ld, true
		}
	}
	return ld, false
}

func nodeTexts(doc *html.Node, expr string) []string {
	out := make([]string, 0, 4)
	for _, node := range htmlquery.Find(doc, expr) {
		if text := strings.TrimSpace(htmlquery.InnerText(node)); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// GetTitle scrapes a title page.
func (i *ImdbClient) GetTitle(ctx context.Context, imdbid string) (ImdbTitle, error) {
	if !ImdbValidTitleID.MatchString(imdbid) {
		return ImdbTitle{}, errors.Wrapf(logger.ErrInvalidInput, "imdb id %q", imdbid)
	}
	doc, err := i.Client.GetNode(ctx, i.BaseURL+"/title/"+imdbid+"/")
	if err != nil {
		return ImdbTitle{}, err
	}
	return ParseImdbTitle(doc, imdbid)
}

// ParseImdbTitle reads the linked data block of a title page with xpath
// fallbacks for title and year.
func ParseImdbTitle(doc *html.Node, imdbid string) (ImdbTitle, error) {
	result := ImdbTitle{ID: imdbid}
	if ld, ok := linkedData(doc); ok {
		result.Title = html.UnescapeString(ld.Name)
		result.Year = yearFromDate(ld.DatePublished)
		result.Runtime = ParseIsoDuration(ld.Duration)
		result.Genres = stringList(ld.Genre)
		result.Rating = ld.AggregateRating.RatingValue
		result.Votes = ld.AggregateRating.RatingCount
		for _, person := range personList(ld.Director) {
			result.Directors = append(result.Directors, ImdbPerson{ID: regexImdbName.FindString(person.URL), Name: html.UnescapeString(person.Name)})
		}
	}
	if result.Title == "" {
		if node := htmlquery.FindOne(doc, `//h1[@data-testid='hero__pageTitle']//span | //h1`); node != nil {
			result.Title = strings.TrimSpace(htmlquery.InnerText(node))
		}
	}
	if result.Year == 0 {
		if node := htmlquery.FindOne(doc, `//a[contains(@href,'releaseinfo')]`); node != nil {
			result.Year, _ = strconv.Atoi(regexYear.FindString(htmlquery.InnerText(node)))
		}
	}
	if len(result.Directors) == 0 {
		for _, node := range htmlquery.Find(doc, `//li[@data-testid='title-pc-principal-credit'][1]//a[contains(@href,'/name/nm')]`) {
			result.Directors = append(result.Directors, ImdbPerson{
				ID:   regexImdbName.FindString(htmlquery.SelectAttr(node, "href")),
				Name: strings.TrimSpace(htmlquery.InnerText(node)),
			})
		}
	}
	result.Countries = nodeTexts(doc, `//li[@data-testid='title-details-origin']//a`)
	result.Languages = nodeTexts(doc, `//li[@data-testid='title-details-languages']//a`)
	if result.Title == "" {
		return result, errors.Wrapf(logger.ErrNoMetadata, "imdb %s", imdbid)
	}
	return result, nil
}

// GetPerson returns the name of a person page.
func (i *ImdbClient) GetPerson(ctx context.Context, nmid string) (ImdbPerson, error) {
	if !ImdbValidPersonID.MatchString(nmid) {
		return ImdbPerson{}, errors.Wrapf(logger.ErrInvalidInput, "imdb person %q", nmid)
	}
	doc, err := i.Client.GetNode(ctx, i.BaseURL+"/name/"+nmid+"/")
	if err != nil {
		return ImdbPerson{}, err
	}
	person := ImdbPerson{ID: nmid}
	if ld, ok := linkedData(doc); ok {
		person.Name = html.UnescapeString(ld.Name)
	}
	if person.Name == "" {
		if node := htmlquery.FindOne(doc, `//h1`); node != nil {
			person.Name = strings.TrimSpace(htmlquery.InnerText(node))
		}
	}
	if person.Name == "" {
		return person, errors.Wrapf(logger.ErrNoMetadata, "imdb %s", nmid)
	}
	return person, nil
}
