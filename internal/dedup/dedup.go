// Package dedup remembers, across runs, the last date a remote calendar
// event was created for each collection category.
package dedup

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"info-collecte/internal/logger"
	"info-collecte/internal/model"
	"info-collecte/internal/store"
)

// ErrUnavailable marks a record that could not be read from its store.
var ErrUnavailable = errors.New("notification record unavailable")

// DefaultKey is the store key of the record.
const DefaultKey = "collecte_dedup"

// Record maps a category name to the ISO date last notified for it.
type Record map[string]string

// ShouldNotify reports whether candidate (YYYY-MM-DD) differs from the date
// last notified for cat. An empty candidate never notifies. A true result
// records candidate, so asking again for the same date returns false.
func (r Record) ShouldNotify(cat model.Category, candidate string) bool {
	if candidate == "" {
		return false
	}
	if prev, ok := r[string(cat)]; ok && prev == candidate {
		return false
	}
	r[string(cat)] = candidate
	return true
}

// Restore puts back the value a category had before a ShouldNotify call;
// prev == "" removes the key.
func (r Record) Restore(cat model.Category, prev string) {
	if prev == "" {
		delete(r, string(cat))
		return
	}
	r[string(cat)] = prev
}

// State loads and commits the record through a Store.
type State struct {
	store store.Store
	key   string
	log   *zap.SugaredLogger
}

// New creates a State persisting under key ("" uses DefaultKey).
func New(s store.Store, key string, log *zap.SugaredLogger) *State {
	if key == "" {
		key = DefaultKey
	}
	return &State{store: s, key: key, log: logger.OrNop(log)}
}

// Load returns the persisted record. A missing or corrupt record yields an
// empty one; corruption is logged. An error, marked ErrUnavailable, means
// the store could not be read at all and the returned record must not be
// committed back.
func (s *State) Load() (Record, error) {
	data, err := s.store.Get(s.key)
	if errors.Is(err, store.ErrNotFound) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, errors.Mark(errors.Wrapf(err, "reading notification record %q", s.key), ErrUnavailable)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warnw("notification record is corrupt, starting empty", "key", s.key, logger.FieldError, err)
		return Record{}, nil
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// Commit persists rec in full.
func (s *State) Commit(rec Record) error {
	if rec == nil {
		rec = Record{}
	}
	if err := s.store.SetJSON(s.key, rec); err != nil {
		return errors.Wrapf(err, "writing notification record %q", s.key)
	}
	return nil
}
