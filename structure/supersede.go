package structure

import (
	"path/filepath"
	"strings"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/parser"
)

type Decision int

const (
	Add Decision = iota
	Replace
	Skip
	KeepBoth
)

func (d Decision) String() string {
	switch d {
	case Add:
		return "add"
	case Replace:
		return "replace"
	case Skip:
		return "skip"
	case KeepBoth:
		return "keepboth"
	}
	return "unknown"
}

// Candidate is a movie file reduced to the values the supersede decision
// compares. Bitrate is in kbit/s.
type Candidate struct {
	Priority int    `json:"priority"`
	Bitrate  int64  `json:"bitrate"`
	Size     int64  `json:"size"`
	Edition  string `json:"edition,omitempty"`
	Proper   bool   `json:"proper,omitempty"`
	Repack   bool   `json:"repack,omitempty"`
	Location string `json:"location"`
}

type Options struct {
	// percent
	BitrateTolerance float64
	SizeTolerance    float64
	Upgrade          bool
}

func DefaultOptions() Options {
	return Options{BitrateTolerance: config.DefaultBitrateTolerance, SizeTolerance: config.DefaultSizeTolerance, Upgrade: true}
}

func CandidateFromParse(m *parser.ParseInfo, location string) Candidate {
	return Candidate{
		Priority: m.Priority,
		Bitrate:  m.EstimateBitrate(),
		Size:     m.Size,
		Edition:  m.Edition,
		Proper:   m.Proper,
		Repack:   m.Repack,
		Location: location,
	}
}

func CandidateFromFile(f *database.MovieFile) Candidate {
	bitrate := f.Bitrate
	if bitrate == 0 && f.Size > 0 && f.Runtime > 0 {
		bitrate = f.Size * 8 / int64(f.Runtime*60) / 1000
	}
	return Candidate{
		Priority: f.Priority,
		Bitrate:  bitrate,
		Size:     f.Size,
		Edition:  f.Edition,
		Proper:   f.Proper,
		Repack:   f.Repack,
		Location: f.Location,
	}
}

func samePath(a, b string) bool {
	return a != "" && filepath.Clean(a) == filepath.Clean(b)
}

// exceeds reports whether a is larger than b by more than tolerance percent.
func exceeds(a, b int64, tolerance float64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	return float64(a) > float64(b)*(1+tolerance/100)
}

// compare returns 1 when n beats e, -1 when e beats n and 0 for a tie.
func compare(n, e *Candidate, opts *Options) int {
	switch {
	case n.Priority > e.Priority:
		return 1
	case n.Priority < e.Priority:
		return -1
	}
	nfix, efix := n.Proper || n.Repack, e.Proper || e.Repack
	switch {
	case nfix && !efix:
		return 1
	case efix && !nfix:
		return -1
	}
	switch {
	case exceeds(n.Bitrate, e.Bitrate, opts.BitrateTolerance):
		return 1
	case exceeds(e.Bitrate, n.Bitrate, opts.BitrateTolerance):
		return -1
	case exceeds(n.Size, e.Size, opts.SizeTolerance):
		return 1
	case exceeds(e.Size, n.Size, opts.SizeTolerance):
		return -1
	}
	return 0
}

// Decide compares a new file with one existing library file. An existing
// candidate without location means the movie has no file yet.
func Decide(n, e Candidate, opts Options) Decision {
	if e.Location == "" {
		return Add
	}
	if samePath(n.Location, e.Location) {
		return Skip
	}
	if n.Edition != "" && e.Edition != "" && !strings.EqualFold(n.Edition, e.Edition) {
		return KeepBoth
	}
	if compare(&n, &e, &opts) <= 0 {
		return Skip
	}
	if !opts.Upgrade {
		return Skip
	}
	return Replace
}

// DecideAgainst compares a new file with all library files of the movie.
// The new file is skipped when any file of the same edition is at least as
// good. Otherwise it replaces every file it beats; when all files are other
// editions both are kept.
func DecideAgainst(n Candidate, existing []Candidate, opts Options) (Decision, []Candidate) {
	if len(existing) == 0 {
		return Add, nil
	}
	var removals []Candidate
	for idx := range existing {
		switch Decide(n, existing[idx], opts) {
		case Skip:
			return Skip, nil
		case Replace:
			removals = append(removals, existing[idx])
		case Add:
			// empty location, nothing to compare
		}
	}
	if len(removals) >= 1 {
		return Replace, removals
	}
	return KeepBoth, nil
}

// Best splits the files of one movie into the best file per edition and the
// inferior copies.
func Best(cands []Candidate, opts Options) (keep []Candidate, remove []Candidate) {
	opts.Upgrade = true
	for idx := range cands {
		placed := false
		for k := range keep {
			switch Decide(cands[idx], keep[k], opts) {
			case Replace:
				remove = append(remove, keep[k])
				keep[k] = cands[idx]
				placed = true
			case Skip:
				remove = append(remove, cands[idx])
				placed = true
			case KeepBoth, Add:
				continue
			}
			break
		}
		if !placed {
			keep = append(keep, cands[idx])
		}
	}
	return keep, remove
}
