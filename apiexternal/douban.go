package apiexternal

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

type DoubanSuggest struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SubTitle string `json:"sub_title"`
	Year     string `json:"year"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

type DoubanPerson struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DoubanSubject struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	ChineseTitle  string         `json:"chinese_title"`
	OriginalTitle string         `json:"original_title"`
	Year          int            `json:"year"`
	Directors     []DoubanPerson `json:"directors"`
	Genres        []string       `json:"genres"`
	Countries     []string       `json:"countries"`
	Languages     []string       `json:"languages"`
	Aka           []string       `json:"aka"`
	Runtime       int            `json:"runtime"`
	Rating        float32        `json:"rating"`
	Votes         int            `json:"votes"`
	Imdb          string         `json:"imdb"`
}

type DoubanCelebrity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ForeignName string `json:"foreign_name"`
}

var (
	regexDoubanPerson = regexp.MustCompile(`/(?:celebrity|personage)/(\d+)`)
	regexDigits       = regexp.MustCompile(`\d+`)
	regexImdbID       = regexp.MustCompile(`tt\d{5,10}`)
)

type DoubanClient struct {
	BaseURL string
	Client  *RLHTTPClient
}

var DoubanApi *DoubanClient

func NewDoubanClient(cookie string, client *RLHTTPClient) *DoubanClient {
	client.SetCookie(cookie)
	client.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	return &DoubanClient{BaseURL: "https://movie.douban.com", Client: client}
}

// SearchSuggest queries the suggest endpoint used by the search box.
func (d *DoubanClient) SearchSuggest(ctx context.Context, query string) ([]DoubanSuggest, error) {
	var result []DoubanSuggest
	err := d.Client.DoJSON(ctx, d.BaseURL+"/j/subject_suggest?q="+url.QueryEscape(query), &result)
	return result, err
}

func (d *DoubanClient) GetSubject(ctx context.Context, id string) (DoubanSubject, error) {
	if id == "" {
		return DoubanSubject{}, errors.Wrap(logger.ErrInvalidInput, "empty douban id")
	}
	doc, err := d.Client.GetDocument(ctx, d.BaseURL+"/subject/"+url.PathEscape(id)+"/")
	if err != nil {
		return DoubanSubject{}, err
	}
	return ParseDoubanSubject(doc, id)
}

// splitInfoValues splits "a / b / c".
func splitInfoValues(value string) []string {
	out := make([]string, 0, 3)
	for _, part := range strings.Split(value, "/") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseDoubanSubject reads a subject page.
func ParseDoubanSubject(doc *goquery.Document, id string) (DoubanSubject, error) {
	subject := DoubanSubject{ID: id}
	subject.Title = strings.TrimSpace(doc.Find(`h1 span[property="v:itemreviewed"]`).First().Text())
	if subject.Title == "" {
		return subject, errors.Wrapf(logger.ErrNoMetadata, "douban %s", id)
	}
	subject.ChineseTitle, subject.OriginalTitle = SplitDoubanTitle(subject.Title)
	subject.Year, _ = strconv.Atoi(regexDigits.FindString(doc.Find("h1 span.year").First().Text()))

	info := doc.Find("#info")
	info.Find(`a[rel="v:directedBy"]`).Each(func(_ int, s *goquery.Selection) {
		person := DoubanPerson{Name: strings.TrimSpace(s.Text())}
		if href, ok := s.Attr("href"); ok {
			if match := regexDoubanPerson.FindStringSubmatch(href); len(match) == 2 {
				person.ID = match[1]
			}
		}
		subject.Directors = append(subject.Directors, person)
	})
	info.Find(`span[property="v:genre"]`).Each(func(_ int, s *goquery.Selection) {
		subject.Genres = append(subject.Genres, strings.TrimSpace(s.Text()))
	})
	if runtime, ok := info.Find(`span[property="v:runtime"]`).First().Attr("content"); ok {
		subject.Runtime, _ = strconv.Atoi(runtime)
	}
	if rating, err := strconv.ParseFloat(strings.TrimSpace(doc.Find(`strong[property="v:average"]`).First().Text()), 32); err == nil {
		subject.Rating = float32(rating)
	}
	subject.Votes, _ = strconv.Atoi(strings.TrimSpace(doc.Find(`span[property="v:votes"]`).First().Text()))

	for _, line := range strings.Split(info.Text(), "\n") {
		label, value, found := strings.Cut(strings.Replace(line, "：", ":", 1), ":")
		if !found {
			continue
		}
		switch strings.TrimSpace(label) {
		case "制片国家/地区":
			subject.Countries = splitInfoValues(value)
		case "语言":
			subject.Languages = splitInfoValues(value)
		case "又名":
			subject.Aka = splitInfoValues(value)
		case "IMDb", "IMDb链接":
			subject.Imdb = regexImdbID.FindString(value)
		}
	}
	return subject, nil
}

// SplitDoubanTitle splits "肖申克的救赎 The Shawshank Redemption" into the
// chinese and the original title. A pure chinese title is both.
func SplitDoubanTitle(title string) (string, string) {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return "", ""
	}
	if !logger.HasCJK(fields[0]) {
		return "", title
	}
	chinese := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(title, chinese))
	if rest == "" {
		return chinese, chinese
	}
	return chinese, rest
}

func (d *DoubanClient) GetCelebrity(ctx context.Context, id string) (DoubanCelebrity, error) {
	doc, err := d.Client.GetDocument(ctx, d.BaseURL+"/celebrity/"+url.PathEscape(id)+"/")
	if err != nil {
		return DoubanCelebrity{}, err
	}
	name := strings.TrimSpace(doc.Find("#content h1").First().Text())
	if name == "" {
		return DoubanCelebrity{}, errors.Wrapf(logger.ErrNoMetadata, "douban celebrity %s", id)
	}
	celebrity := DoubanCelebrity{ID: id}
	celebrity.Name, celebrity.ForeignName = SplitPersonName(name)
	return celebrity, nil
}

// SplitPersonName splits a douban person name like "王家卫 Kar Wai Wong" into
// the CJK and the latin part.
func SplitPersonName(name string) (string, string) {
	var cjk, latin []string
	for _, word := range strings.Fields(name) {
		if logger.HasCJK(word) {
			cjk = append(cjk, word)
		} else {
			latin = append(latin, word)
		}
	}
	return strings.Join(cjk, " "), strings.Join(latin, " ")
}
