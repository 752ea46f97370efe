package logger

import (
	"html"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/rainycape/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var diacriticsReplacer = strings.NewReplacer(
	"ß", "ss", "ä", "ae", "ö", "oe", "ü", "ue", "Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
)

var slugReplacer = strings.NewReplacer(
	"&", "and", "@", "at", "½", ",5", "'", "",
	" ", "-", "§", "-", "$", "-", "%", "-", "/", "-", "(", "-", ")", "-", "=", "-",
	"!", "-", "?", "-", "`", "-", "\\", "-", "}", "-", "]", "-", "[", "-", "{", "-",
	"|", "-", ",", "-", ".", "-", ";", "-", ":", "-", "_", "-", "+", "-", "#", "-",
	"<", "-", ">", "-", "*", "-",
)

var romanNumerals = []struct{ roman, arabic string }{
	{"-i-", "-1-"}, {"-ii-", "-2-"}, {"-iii-", "-3-"}, {"-iv-", "-4-"}, {"-v-", "-5-"},
	{"-vi-", "-6-"}, {"-vii-", "-7-"}, {"-viii-", "-8-"}, {"-ix-", "-9-"}, {"-x-", "-10-"},
}

func StringReplaceArray(instr string, what []string, with string) string {
	for _, line := range what {
		instr = strings.ReplaceAll(instr, line, with)
	}
	return instr
}

func removeMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// StringReplaceDiacritics removes accents but leaves CJK text untouched.
func StringReplaceDiacritics(instr string) string {
	instr = diacriticsReplacer.Replace(instr)
	result, _, _ := transform.String(removeMarks(), instr)
	return result
}

// StringToSlug builds an ascii slug. CJK is transliterated.
func StringToSlug(instr string) string {
	instr = diacriticsReplacer.Replace(instr)
	instr = unidecode.Unidecode(instr)
	instr = strings.ToLower(instr)
	instr = slugReplacer.Replace(instr)
	for strings.Contains(instr, "--") {
		instr = strings.ReplaceAll(instr, "--", "-")
	}
	instr = "-" + instr + "-"
	for _, r := range romanNumerals {
		instr = strings.ReplaceAll(instr, r.roman, r.arabic)
	}
	result, _, _ := transform.String(removeMarks(), instr)
	return strings.Trim(result, "-")
}

// Path removes characters that are not allowed in file or folder names.
func Path(s string, allowslash bool) string {
	filePath := s
	if strings.Contains(s, "&") || strings.Contains(s, "%") {
		filePath = html.UnescapeString(s)
	}
	if strings.Contains(filePath, "\\u") {
		if unquoted, err := strconv.Unquote("\"" + filePath + "\""); err == nil {
			filePath = unquoted
		}
	}

	filePath = strings.ReplaceAll(filePath, "..", "")
	if allowslash {
		filePath = path.Clean(filePath)
		filePath = StringReplaceArray(filePath, []string{":", "*", "?", "\"", "<", ">", "|"}, "")
	} else {
		filePath = StringReplaceArray(filePath, []string{"\\", "/", ":", "*", "?", "\"", "<", ">", "|"}, "")
	}
	for strings.Contains(filePath, "  ") {
		filePath = strings.ReplaceAll(filePath, "  ", " ")
	}
	// NB this may be of length 0, caller must check
	return strings.Trim(filePath, " .")
}

func TrimStringInclAfterString(s string, search string) string {
	if search == "" {
		return s
	}
	if idx := strings.Index(s, search); idx != -1 {
		return s[:idx]
	}
	return s
}

func TrimStringInclAfterStringInsensitive(s string, search string) string {
	if search == "" {
		return s
	}
	if idx := strings.Index(strings.ToLower(s), strings.ToLower(search)); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimRight(s, "-. ")
}

func TrimStringPrefixInsensitive(s string, search string) string {
	if strings.HasPrefix(strings.ToLower(s), strings.ToLower(search)) {
		return strings.TrimLeft(s[len(search):], "-. ")
	}
	return s
}

// NormalizeWidth converts full-width punctuation, digits and letters to their
// half-width forms.
func NormalizeWidth(s string) string {
	return width.Fold.String(s)
}

func TitleCase(s string) string {
	return cases.Title(language.English, cases.NoLower).String(s)
}

func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}

// ParseSize understands forum style sizes such as "4.37 GB" or "700MiB".
func ParseSize(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0
	}
	size, err := humanize.ParseBytes(s)
	if err != nil {
		return 0
	}
	return int64(size)
}

// HasCJK reports whether s contains Han, Hiragana, Katakana or Hangul runes.
func HasCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}

// HasLatin reports whether s contains latin letters.
func HasLatin(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Latin) {
			return true
		}
	}
	return false
}

func CheckStringArray(array []string, find string) bool {
	for idx := range array {
		if strings.EqualFold(array[idx], find) {
			return true
		}
	}
	return false
}
