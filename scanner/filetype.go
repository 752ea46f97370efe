package scanner

import (
	"github.com/h2non/filetype"
)

// IsVideoFile checks the extension list first and sniffs the header of files
// with unknown extensions.
func IsVideoFile(path string, exts []string) bool {
	if extMatches(path, exts) {
		return true
	}
	return matchKind(path, "video")
}

func IsAudioFile(path string, exts []string) bool {
	if extMatches(path, exts) {
		return true
	}
	return matchKind(path, "audio")
}

func matchKind(path string, mime string) bool {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return false
	}
	return kind.MIME.Type == mime
}
