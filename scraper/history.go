package scraper

import (
	"strings"
	"time"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/logger"
)

// History remembers the thread ids already returned per forum. Keys are
// "forum:threadid", the value is the time the thread was first seen.
type History struct {
	store *config.Store
}

func NewHistory(store *config.Store) *History {
	return &History{store: store}
}

// OpenHistory opens the history database file.
func OpenHistory(file string) (*History, error) {
	store, err := config.OpenStore(file)
	if err != nil {
		return nil, err
	}
	return &History{store: store}, nil
}

func historyKey(forum string, threadID string) string {
	return forum + ":" + threadID
}

func (h *History) Seen(forum string, threadID string) bool {
	return h.store.Has(historyKey(forum, threadID))
}

func (h *History) Mark(forum string, threadID string) error {
	return h.store.Put(historyKey(forum, threadID), time.Now().Unix())
}

func (h *History) MarkAll(releases []Release) {
	for idx := range releases {
		if err := h.Mark(releases[idx].Forum, releases[idx].ThreadID); err != nil {
			logger.Log.Error("Error saving history ", releases[idx].ThreadID, ": ", err)
		}
	}
}

// FirstSeen returns when the thread was recorded.
func (h *History) FirstSeen(forum string, threadID string) (time.Time, bool) {
	var unix int64
	if err := h.store.Fetch(historyKey(forum, threadID), &unix); err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

// Forget removes all threads of a forum so the next run returns everything.
func (h *History) Forget(forum string) int {
	removed := 0
	for _, key := range h.store.Keys(forum+":", 0) {
		if !strings.HasPrefix(key, forum+":") {
			continue
		}
		if err := h.store.Delete(key); err == nil {
			removed++
		}
	}
	return removed
}

func (h *History) Count() int {
	return h.store.Count()
}

func (h *History) Close() error {
	return h.store.Close()
}
