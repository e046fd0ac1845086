package kvstore

import (
	"io"
	"log"

	"github.com/akrylysov/pogreb"
)

// PogrebStore persists to disk via akrylysov/pogreb, the
// blacklist/blockchain-cache store of choice in store/Pogreb.go.
type PogrebStore struct {
	db *pogreb.DB
}

// NewPogrebStore opens (creating if absent) a pogreb database at path.
func NewPogrebStore(path string) (*PogrebStore, error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))
	db, err := pogreb.Open(path, nil)
	if err != nil {
		return nil, err
	}
	return &PogrebStore{db: db}, nil
}

func (s *PogrebStore) Set(key, value []byte) error { return s.db.Put(key, value) }

func (s *PogrebStore) Get(key []byte) ([]byte, bool) {
	v, err := s.db.Get(key)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func (s *PogrebStore) Delete(key []byte) error { return s.db.Delete(key) }

func (s *PogrebStore) Iterate(fn func(key, value []byte)) {
	it := s.db.Items()
	for {
		key, val, err := it.Next()
		if err != nil {
			return
		}
		fn(key, val)
	}
}

func (s *PogrebStore) Close() error { return s.db.Close() }
