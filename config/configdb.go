package config

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/recoilme/pudge"
)

// Store is a small persistent key value store. It keeps scraper history and
// the last run state of jobs between restarts.
type Store struct {
	db   *pudge.Db
	file string
	mu   sync.Mutex
}

func OpenStore(file string) (*Store, error) {
	cfg := &pudge.Config{
		SyncInterval: 1} // every second fsync
	db, err := pudge.Open(file, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, file: file}, nil
}

func (s *Store) Has(key string) bool {
	ok, err := s.db.Has(key)
	return err == nil && ok
}

// Put stores value encoded as json.
func (s *Store) Put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Set(key, data)
}

// Fetch decodes the stored json into value. Missing keys return pudge.ErrKeyNotFound.
func (s *Store) Fetch(key string, value interface{}) error {
	var data []byte
	if err := s.db.Get(key, &data); err != nil {
		return err
	}
	return json.Unmarshal(data, value)
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(key)
}

func (s *Store) Count() int {
	n, err := s.db.Count()
	if err != nil {
		return 0
	}
	return n
}

// Keys returns up to limit keys with the given prefix. A limit of 0 returns all.
func (s *Store) Keys(prefix string, limit int) []string {
	raw, err := s.db.Keys([]byte(prefix+"*"), limit, 0, true)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for idx := range raw {
		out = append(out, string(raw[idx]))
	}
	return out
}

func (s *Store) Close() error {
	return s.db.Close()
}
