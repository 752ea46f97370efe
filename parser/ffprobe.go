package parser

import (
	"context"
	"math"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

type FFProbeJSON struct {
	Format struct {
		BitRate  string `json:"bit_rate"`
		Duration string `json:"duration"`
		Size     string `json:"size"`
		Tags     struct {
			Title string `json:"title"`
		} `json:"tags"`
	} `json:"format"`
	Streams []FFProbeStream `json:"streams"`
	Error   struct {
		Code   int    `json:"code"`
		String string `json:"string"`
	} `json:"error"`
}

type FFProbeStream struct {
	BitRate        string `json:"bit_rate"`
	CodecName      string `json:"codec_name"`
	CodecTagString string `json:"codec_tag_string"`
	CodecType      string `json:"codec_type"`
	Height         int    `json:"height,omitempty"`
	Width          int    `json:"width,omitempty"`
	Tags           struct {
		Language string `json:"language"`
		Rotate   string `json:"rotate"`
	} `json:"tags"`
}

type VideoFile struct {
	Path           string
	Title          string
	Duration       float64
	Bitrate        int64
	VideoCodec     string
	Width          int
	Height         int
	AudioCodec     string
	AudioLanguages []string
}

// FFProbeFilename returns the ffprobe binary inside dir. An empty dir uses
// the binary from PATH.
func FFProbeFilename(dir string) string {
	name := "ffprobe"
	if runtime.GOOS == "windows" {
		name = "ffprobe.exe"
	}
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// ProbeFile runs ffprobe on videoPath.
func ProbeFile(ctx context.Context, ffprobePath string, videoPath string) (VideoFile, error) {
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", "-show_error", videoPath}
	out, err := exec.CommandContext(ctx, ffprobePath, args...).Output()
	if err != nil {
		return VideoFile{}, errors.Wrapf(err, "ffprobe failed for <%s>", videoPath)
	}
	video, err := DecodeProbe(out)
	if err != nil {
		return VideoFile{}, errors.Wrapf(err, "ffprobe <%s>", videoPath)
	}
	video.Path = videoPath
	if video.Title == "" {
		video.Title = strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	}
	return video, nil
}

// DecodeProbe converts ffprobe json output.
func DecodeProbe(data []byte) (VideoFile, error) {
	var probe FFProbeJSON
	if err := json.Unmarshal(data, &probe); err != nil {
		return VideoFile{}, err
	}
	if probe.Error.Code != 0 {
		return VideoFile{}, errors.Errorf("ffprobe error code %d: %s", probe.Error.Code, probe.Error.String)
	}
	if len(probe.Streams) == 0 {
		return VideoFile{}, errors.New("no streams found")
	}
	result := VideoFile{Title: probe.Format.Tags.Title}
	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	result.Duration = math.Round(duration*100) / 100
	result.Bitrate, _ = strconv.ParseInt(probe.Format.BitRate, 10, 64)

	videoFound, audioFound := false, false
	for idx := range probe.Streams {
		stream := probe.Streams[idx]
		switch stream.CodecType {
		case "video":
			if videoFound {
				continue
			}
			videoFound = true
			result.VideoCodec = stream.CodecName
			if strings.EqualFold(stream.CodecName, "mpeg4") && strings.EqualFold(stream.CodecTagString, "XVID") {
				result.VideoCodec = "xvid"
			}
			if rotate, err := strconv.ParseInt(stream.Tags.Rotate, 10, 64); err == nil && (rotate == 90 || rotate == 270 || rotate == -90) {
				result.Width, result.Height = stream.Height, stream.Width
			} else {
				result.Width, result.Height = stream.Width, stream.Height
			}
		case "audio":
			if !audioFound {
				audioFound = true
				result.AudioCodec = stream.CodecName
			}
			if stream.Tags.Language != "" {
				result.AudioLanguages = append(result.AudioLanguages, stream.Tags.Language)
			}
		}
	}
	return result, nil
}

// ApplyVideo fills the parsed values with the probed ones. Probed codec and
// resolution replace parsed guesses.
func (m *ParseInfo) ApplyVideo(video VideoFile) {
	if video.Duration > 0 {
		m.Runtime = int(math.Round(video.Duration / 60))
	}
	if video.Bitrate > 0 {
		m.Bitrate = video.Bitrate / 1000
	}
	m.Width, m.Height = video.Width, video.Height
	if q, ok := gettypepriority(video.AudioCodec, TypeAudio); ok && !strings.EqualFold(q.Name, m.Audio) {
		logger.Log.Debug("Changed Audio from ", m.Audio, " to ", q.Name)
		m.Audio = q.Name
	}
	if q, ok := gettypepriority(video.VideoCodec, TypeCodec); ok && !strings.EqualFold(q.Name, m.Codec) {
		logger.Log.Debug("Changed Codec from ", m.Codec, " to ", q.Name)
		m.Codec = q.Name
	}
	if reso := ResolutionFromSize(video.Width, video.Height); reso != "" && reso != m.Resolution {
		logger.Log.Debug("Changed Resolution from ", m.Resolution, " to ", reso)
		m.Resolution = reso
	}
	if len(video.AudioLanguages) > 0 {
		m.Languages = video.AudioLanguages
	}
}
