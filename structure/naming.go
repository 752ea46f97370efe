package structure

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/metadata"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/pkg/errors"
)

// namingData is passed to the naming template, e.g.
//
//	{{.Director}}/{{.Title}} ({{.Year}})/{{.Title}} ({{.Year}}) [{{.Source.Resolution}} {{.Source.Quality}}]
type namingData struct {
	Title         string
	OriginalTitle string
	ChineseTitle  string
	Year          string
	Director      string
	Imdb          string
	Tmdb          string
	Douban        string
	Edition       string
	Movie         *metadata.MovieInfo
	Source        *parser.ParseInfo
}

func newNamingData(info *metadata.MovieInfo, m *parser.ParseInfo, titleLanguage string, directorLayout string) namingData {
	data := namingData{
		Title:         info.DisplayTitle(titleLanguage),
		OriginalTitle: info.OriginalTitle,
		ChineseTitle:  info.ChineseTitle,
		Director:      info.DirectorFolderName(directorLayout),
		Imdb:          info.Imdb,
		Douban:        info.Douban,
		Edition:       m.Edition,
		Movie:         info,
		Source:        m,
	}
	if info.Year != 0 {
		data.Year = strconv.Itoa(info.Year)
	}
	if info.Tmdb != 0 {
		data.Tmdb = strconv.Itoa(info.Tmdb)
	}
	if data.Director == "" {
		data.Director = unknownDirector
	}
	return data
}

var nameCleaner = strings.NewReplacer("[ ]", "", "( )", "", "[]", "", "()", "", " ]", "]", "[ ", "[", "  ", " ")

func cleanName(name string) string {
	for i := 0; i < 3; i++ {
		name = nameCleaner.Replace(name)
	}
	return strings.Trim(strings.TrimSpace(name), ".-")
}

func executeTemplate(name string, text string, data interface{}) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parse %s template", name)
	}
	var doc bytes.Buffer
	if err := tmpl.Execute(&doc, data); err != nil {
		return "", errors.Wrapf(err, "execute %s template", name)
	}
	return doc.String(), nil
}

// GenerateNamingTemplate renders the naming template. The part after the last
// slash is the file name, everything before it the folder below the target.
func GenerateNamingTemplate(naming string, data namingData) (foldername string, filename string, err error) {
	folderpart, filepart := naming, naming
	if idx := strings.LastIndex(naming, "/"); idx != -1 {
		folderpart, filepart = naming[:idx], naming[idx+1:]
	}

	foldername, err = executeTemplate("folder", folderpart, data)
	if err != nil {
		return "", "", err
	}
	segments := strings.Split(foldername, "/")
	for idx := range segments {
		segments[idx] = logger.Path(cleanName(segments[idx]), false)
	}
	foldername = filepath.Join(segments...)
	logger.Log.Debug("Folder parsed: ", foldername)

	filename, err = executeTemplate("file", filepart, data)
	if err != nil {
		return "", "", err
	}
	filename = logger.Path(cleanName(filename), false)
	logger.Log.Debug("File parsed: ", filename)
	if foldername == "" || filename == "" {
		return "", "", errors.Wrap(logger.ErrInvalidInput, "naming template rendered an empty name")
	}
	return foldername, filename, nil
}
