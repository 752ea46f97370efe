package parser

import (
	"regexp"
	"strings"
)

// Quality type ids.
const (
	TypeResolution = 1
	TypeQuality    = 2
	TypeCodec      = 3
	TypeAudio      = 4
)

type Qualities struct {
	ID       uint
	Type     int
	Name     string
	Regex    string
	Strings  string
	Priority int
	re       *regexp.Regexp
}

var ListResolutions = []Qualities{
	{ID: 1, Type: 1, Name: "360p", Priority: 10000, Regex: "(\\b|_)360[pi](\\b|_)", Strings: "360p,360i"},
	{ID: 2, Type: 1, Name: "368p", Priority: 20000, Regex: "(\\b|_)368[pi](\\b|_)", Strings: "368p,368i"},
	{ID: 3, Type: 1, Name: "480p", Priority: 30000, Regex: "(\\b|_)480[pi](\\b|_)", Strings: "480p,480i"},
	{ID: 4, Type: 1, Name: "576p", Priority: 40000, Regex: "(\\b|_)576[pi](\\b|_)", Strings: "576p,576i"},
	{ID: 5, Type: 1, Name: "720p", Priority: 50000, Regex: "(\\b|_)(1280x)?720(i|p)(\\b|_)", Strings: "720p,720i"},
	{ID: 6, Type: 1, Name: "1080p", Priority: 60000, Regex: "(\\b|_)(1920x)?1080(i|p)(\\b|_)", Strings: "1080p,1080i"},
	{ID: 7, Type: 1, Name: "2160p", Priority: 70000, Regex: "(\\b|_)((3840x)?2160p|4k|uhd)(\\b|_)", Strings: "2160p,2160i,4k,uhd"}}

var ListQualities = []Qualities{
	{ID: 1, Type: 2, Name: "workprint", Priority: 1000, Regex: "(\\b|_)workprint(\\b|_)", Strings: "workprint"},
	{ID: 2, Type: 2, Name: "cam", Priority: 1300, Regex: "(\\b|_)(?:web|hd)?cam(?:rip)?(\\b|_)", Strings: "webcam,cam,hdcam"},
	{ID: 3, Type: 2, Name: "ts", Priority: 2000, Regex: "(\\b|_)((?:hd)?ts|telesync)(\\b|_)", Strings: "hdts,ts,telesync"},
	{ID: 4, Type: 2, Name: "tc", Priority: 2300, Regex: "(\\b|_)(tc|telecine)(\\b|_)", Strings: "tc,telecine"},
	{ID: 5, Type: 2, Name: "r5", Priority: 3000, Regex: "(\\b|_)r[2-8c](\\b|_)", Strings: "r5,r6"},
	{ID: 6, Type: 2, Name: "hdrip", Priority: 3300, Regex: "(\\b|_)hd[^a-zA-Z0-9]?rip(\\b|_)", Strings: "hdrip,hd.rip,hd rip,hd-rip"},
	{ID: 7, Type: 2, Name: "ppvrip", Priority: 4000, Regex: "(\\b|_)ppv[^a-zA-Z0-9]?rip(\\b|_)", Strings: "ppvrip"},
	{ID: 8, Type: 2, Name: "tvrip", Priority: 5000, Regex: "(\\b|_)tv[^a-zA-Z0-9]?rip(\\b|_)", Strings: "tvrip,tv.rip,tv rip,tv-rip"},
	{ID: 9, Type: 2, Name: "sdtv", Priority: 6000, Regex: "(\\b|_)(?:[sp]dtv|dvb)(?:[^a-zA-Z0-9]?rip)?(\\b|_)", Strings: "sdtv,pdtv,dvb"},
	{ID: 10, Type: 2, Name: "dvdscr", Priority: 6300, Regex: "(\\b|_)(?:(?:dvd|web)[^a-zA-Z0-9]?)?scr(?:eener)?(\\b|_)", Strings: "dvdscr,webscr,screener"},
	{ID: 11, Type: 2, Name: "bdscr", Priority: 7000, Regex: "(\\b|_)bdscr(?:eener)?(\\b|_)", Strings: "bdscr,bdscreener"},
	{ID: 12, Type: 2, Name: "webrip", Priority: 7300, Regex: "(\\b|_)web[^a-zA-Z0-9]?rip(\\b|_)", Strings: "webrip,web.rip,web rip,web-rip"},
	{ID: 13, Type: 2, Name: "hdtv", Priority: 8000, Regex: "(\\b|_)a?hdtv(?:[^a-zA-Z0-9]?rip)?(\\b|_)", Strings: "hdtv,hdtvrip"},
	{ID: 14, Type: 2, Name: "webdl", Priority: 8300, Regex: "(\\b|_)web(?:[^a-zA-Z0-9]?(dl|hd))?(\\b|_)", Strings: "webdl,web-dl,web.dl,webhd,web"},
	{ID: 15, Type: 2, Name: "dvdrip", Priority: 9000, Regex: "(\\b|_)(dvd[^a-zA-Z0-9]?rip|hddvd|dvd[59]?)(\\b|_)", Strings: "dvdrip,dvd.rip,dvd-rip,hddvd,dvd"},
	{ID: 16, Type: 2, Name: "remux", Priority: 9100, Regex: "(\\b|_)remux(\\b|_)", Strings: "remux"},
	{ID: 17, Type: 2, Name: "bluray", Priority: 9300, Regex: "(\\b|_)(?:b[dr][^a-zA-Z0-9]?rip|blu[^a-zA-Z0-9]?ray(?:[^a-zA-Z0-9]?rip)?|bd|bd25|bd50)(\\b|_)", Strings: "bdrip,brrip,bluray,blu-ray,bd"}}

var ListCodecs = []Qualities{
	{ID: 1, Type: 3, Name: "divx", Priority: 100, Regex: "(\\b|_)divx(\\b|_)", Strings: "divx"},
	{ID: 2, Type: 3, Name: "xvid", Priority: 200, Regex: "(\\b|_)xvid(\\b|_)", Strings: "xvid"},
	{ID: 3, Type: 3, Name: "h264", Priority: 300, Regex: "(\\b|_)((h|x)\\.?264|avc)(\\b|_)", Strings: "h264,x264,avc"},
	{ID: 4, Type: 3, Name: "vp9", Priority: 400, Regex: "(\\b|_)vp9(\\b|_)", Strings: "vp9"},
	{ID: 5, Type: 3, Name: "h265", Priority: 500, Regex: "(\\b|_)((h|x)\\.?265|hevc)(\\b|_)", Strings: "h265,x265,hevc"},
	{ID: 6, Type: 3, Name: "10bit", Priority: 600, Regex: "(\\b|_)(10bit|hi10p)(\\b|_)", Strings: "10bit,hi10p"}}

var ListAudio = []Qualities{
	{ID: 1, Type: 4, Name: "mp3", Priority: 10, Regex: "(\\b|_)mp3(\\b|_)", Strings: "mp3"},
	{ID: 2, Type: 4, Name: "aac", Priority: 20, Regex: "(\\b|_)aac(s)?(\\d\\.\\d)?(\\b|_)", Strings: "aac,aacs"},
	{ID: 3, Type: 4, Name: "dd5.1", Priority: 30, Regex: "(\\b|_)dd[0-9\\.]+(\\b|_)", Strings: "dd5.1"},
	{ID: 4, Type: 4, Name: "ac3", Priority: 40, Regex: "(\\b|_)ac3(s)?(\\b|_)", Strings: "ac3,ac3s"},
	{ID: 5, Type: 4, Name: "dd+5.1", Priority: 50, Regex: "(\\b|_)(dd[p+][0-9\\.]+|eac3)(\\b|_)", Strings: "dd+5.1,eac3"},
	{ID: 6, Type: 4, Name: "flac", Priority: 60, Regex: "(\\b|_)flac(s)?(\\b|_)", Strings: "flac,flacs"},
	{ID: 7, Type: 4, Name: "dtshd", Priority: 70, Regex: "(\\b|_)dts[^a-zA-Z0-9]?hd(?:[^a-zA-Z0-9]?ma)?(s)?(\\b|_)", Strings: "dtshd,dts-hd"},
	{ID: 8, Type: 4, Name: "dts", Priority: 80, Regex: "(\\b|_)dts(s)?(\\b|_)", Strings: "dts,dtss"},
	{ID: 9, Type: 4, Name: "truehd", Priority: 90, Regex: "(\\b|_)truehd(s)?(\\b|_)", Strings: "truehd"}}

func init() {
	for _, list := range [][]Qualities{ListResolutions, ListQualities, ListCodecs, ListAudio} {
		for idx := range list {
			list[idx].re = regexp.MustCompile("(?i)" + list[idx].Regex)
		}
	}
}

func qualityList(typ int) []Qualities {
	switch typ {
	case TypeResolution:
		return ListResolutions
	case TypeQuality:
		return ListQualities
	case TypeCodec:
		return ListCodecs
	case TypeAudio:
		return ListAudio
	}
	return nil
}

// findQuality returns the entry with the longest match in name. Ties go to
// the higher priority. index is the position of the match or -1.
func findQuality(name string, typ int) (Qualities, int) {
	var found Qualities
	index, length := -1, 0
	list := qualityList(typ)
	for idx := range list {
		loc := list[idx].re.FindStringIndex(name)
		if loc == nil {
			continue
		}
		l := loc[1] - loc[0]
		if l > length || (l == length && list[idx].Priority > found.Priority) {
			found = list[idx]
			index, length = loc[0], l
		}
	}
	return found, index
}

// gettypepriority resolves a name or alias of a quality type.
func gettypepriority(name string, typ int) (Qualities, bool) {
	if name == "" {
		return Qualities{}, false
	}
	lower := strings.ToLower(name)
	list := qualityList(typ)
	for idx := range list {
		if list[idx].Name == lower {
			return list[idx], true
		}
		for _, alias := range strings.Split(list[idx].Strings, ",") {
			if alias == lower {
				return list[idx], true
			}
		}
	}
	if q, index := findQuality(lower, typ); index != -1 {
		return q, true
	}
	return Qualities{}, false
}

// ResolutionFromSize maps probed dimensions to a resolution name.
func ResolutionFromSize(width, height int) string {
	reso := ""
	if height == 360 {
		reso = "360p"
	}
	if height > 360 {
		reso = "368p"
	}
	if height > 368 || width == 720 {
		reso = "480p"
	}
	if height > 480 {
		reso = "576p"
	}
	if height > 576 || width == 1280 {
		reso = "720p"
	}
	if height > 720 || width == 1920 {
		reso = "1080p"
	}
	if height > 1080 || width == 3840 {
		reso = "2160p"
	}
	return reso
}
