package structure

import (
	"context"

	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/sirupsen/logrus"
)

type DuplicateReport struct {
	MovieID int64       `json:"movie_id"`
	Title   string      `json:"title"`
	Year    int         `json:"year"`
	Keep    []Candidate `json:"keep"`
	Remove  []Candidate `json:"remove"`
}

// DedupeOptions control FindDuplicates. Without Apply nothing is touched.
type DedupeOptions struct {
	Options
	Apply       bool
	Trash       string
	SidecarExts []string
}

// FindDuplicates groups the library files by movie and reports the inferior
// copies of every edition. With Apply they are moved to Trash, or deleted
// when no trash path is set.
func FindDuplicates(ctx context.Context, opts DedupeOptions) ([]DuplicateReport, error) {
	groups, err := database.FindDuplicateMovies()
	if err != nil {
		return nil, err
	}
	reports := make([]DuplicateReport, 0, len(groups))
	for idx := range groups {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		cands := make([]Candidate, 0, len(groups[idx].Files))
		for f := range groups[idx].Files {
			cands = append(cands, CandidateFromFile(&groups[idx].Files[f]))
		}
		keep, remove := Best(cands, opts.Options)
		if len(remove) == 0 {
			continue
		}
		report := DuplicateReport{
			MovieID: groups[idx].Movie.ID,
			Title:   groups[idx].Movie.Title,
			Year:    groups[idx].Movie.Year,
			Keep:    keep,
			Remove:  remove,
		}
		reports = append(reports, report)
		fields := logrus.Fields{"movie": report.MovieID, "title": report.Title}
		for r := range remove {
			if !opts.Apply {
				logger.Log.WithFields(fields).Info("Duplicate: ", remove[r].Location, " (keeping ", keep[0].Location, ")")
				continue
			}
			removeReplaced(remove[r].Location, "", opts.Trash, opts.SidecarExts)
		}
	}
	return reports, nil
}
