package scanner

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WriteJSON writes v indented. The file is replaced atomically.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadLines returns the non empty lines of a text file.
func ReadLines(path string) ([]string, error) {
	text, err := ReadText(path)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, 50)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func WriteLines(path string, lines []string) error {
	var buf bytes.Buffer
	for idx := range lines {
		buf.WriteString(lines[idx])
		buf.WriteByte('\n')
	}
	return writeAtomic(path, buf.Bytes())
}

func AppendLine(path string, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// ReadText reads a text file and returns it as UTF-8. Files which are not
// valid UTF-8 are decoded with the detected charset, GB18030 when detection
// gives nothing usable.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc := DetectEncoding(data)
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", errors.Wrapf(err, "decode %s", path)
	}
	return string(out), nil
}

// DetectEncoding guesses the charset of non UTF-8 text.
func DetectEncoding(data []byte) encoding.Encoding {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return simplifiedchinese.GB18030
	}
	switch result.Charset {
	case "GB-18030", "GBK", "GB2312":
		return simplifiedchinese.GB18030
	case "Big5":
		return traditionalchinese.Big5
	case "Shift_JIS":
		return japanese.ShiftJIS
	case "EUC-JP":
		return japanese.EUCJP
	case "UTF-8":
		return simplifiedchinese.GB18030
	}
	if result.Confidence < 50 {
		return simplifiedchinese.GB18030
	}
	if enc, err := htmlindex.Get(result.Charset); err == nil {
		return enc
	}
	logger.Log.Debug("unknown charset ", result.Charset, " using GB18030")
	return simplifiedchinese.GB18030
}

// ConvertToUTF8 rewrites a text file as UTF-8. Returns false when the file
// already was UTF-8.
func ConvertToUTF8(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if utf8.Valid(raw) {
		return false, nil
	}
	text, err := ReadText(path)
	if err != nil {
		return false, err
	}
	if err := writeAtomic(path, []byte(text)); err != nil {
		return false, err
	}
	logger.Log.Info("Converted to UTF-8: ", path)
	return true, nil
}
