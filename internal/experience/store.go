// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package experience is the worker face's durable selector ledger.
//
// Every selector the engine dispatches is scored by context (url + action):
// successes and failures accumulate per key, so a retry can skip a selector
// the ledger knows to be bad and substitute the best-scoring alternative
// before the network round-trip.
package experience

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
)

// selectorKeyPrefix namespaces ledger entries inside the shared DB.
const selectorKeyPrefix = "selector:"

// knownBadRatio: a selector is known-bad once failures outnumber successes
// by this factor with at least minObservations data points.
const (
	knownBadRatio   = 3
	minObservations = 3
)

// Entry is one selector's running score for a context.
type Entry struct {
	Selector    string    `json:"selector"`
	Action      string    `json:"action"`
	URL         string    `json:"url"`
	Successes   int64     `json:"successes"`
	Failures    int64     `json:"failures"`
	LastSuccess time.Time `json:"lastSuccess,omitzero"`
	LastFailure time.Time `json:"lastFailure,omitzero"`
}

// Score ranks entries for FindBestSelector: net successes, recency breaking
// ties implicitly via the caller keeping the first best.
func (e *Entry) Score() int64 {
	return e.Successes - 2*e.Failures
}

// KnownBad reports whether this entry has failed often enough to skip.
func (e *Entry) KnownBad() bool {
	total := e.Successes + e.Failures
	return total >= minObservations && e.Failures >= knownBadRatio*maxInt64(e.Successes, 1)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Store is the badger-backed ledger.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Suppress BadgerDB internal logs
	// Ledger entries are tiny; keep the value log small.
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open experience store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral ledger, used by tests and by worker faces
// running without a data directory.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory experience store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// storageKey is selector:<url>|<action>|<selector>; the url+action prefix
// makes per-context scans cheap.
func storageKey(selector, action, url string) []byte {
	return []byte(selectorKeyPrefix + url + "|" + action + "|" + selector)
}

func contextPrefix(action, url string) []byte {
	return []byte(selectorKeyPrefix + url + "|" + action + "|")
}

// RecordSelectorSuccess bumps the success count for (selector, action, url).
func (s *Store) RecordSelectorSuccess(selector, action, url string) error {
	metrics.SelectorRecords.WithLabelValues("success").Inc()
	return s.update(selector, action, url, func(e *Entry) {
		e.Successes++
		e.LastSuccess = time.Now().UTC()
	})
}

// RecordSelectorFailure bumps the failure count for (selector, action, url).
func (s *Store) RecordSelectorFailure(selector, action, url string) error {
	metrics.SelectorRecords.WithLabelValues("failure").Inc()
	return s.update(selector, action, url, func(e *Entry) {
		e.Failures++
		e.LastFailure = time.Now().UTC()
	})
}

func (s *Store) update(selector, action, url string, mutate func(*Entry)) error {
	key := storageKey(selector, action, url)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := Entry{Selector: selector, Action: action, URL: url}

		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			// First observation for this context.
		case err != nil:
			return fmt.Errorf("get ledger entry: %w", err)
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode ledger entry: %w", err)
			}
		}

		mutate(&entry)
		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("encode ledger entry: %w", err)
		}
		return txn.Set(key, data)
	})
}

// IsKnownBadSelector reports whether the selector has a dominating failure
// record for the url across any action.
func (s *Store) IsKnownBadSelector(selector, url string) bool {
	bad := false
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(selectorKeyPrefix + url + "|")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if !strings.HasSuffix(string(it.Item().Key()), "|"+selector) {
				continue
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if entry.KnownBad() {
				bad = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		logging.Error().Err(err).Str("selector", selector).Msg("ledger scan failed")
		return false
	}

	if bad {
		metrics.SelectorLookups.WithLabelValues("known_bad").Inc()
	}
	return bad
}

// FindBestSelector returns the best-scoring selector for (action, url), or
// empty when the ledger has nothing positive for the context.
func (s *Store) FindBestSelector(action, url string) string {
	var best Entry
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := contextPrefix(action, url)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if entry.Score() <= 0 || entry.KnownBad() {
				continue
			}
			if !found || entry.Score() > best.Score() {
				best = entry
				found = true
			}
		}
		return nil
	})
	if err != nil {
		logging.Error().Err(err).Str("action", action).Msg("ledger scan failed")
		return ""
	}

	if !found {
		metrics.SelectorLookups.WithLabelValues("miss").Inc()
		return ""
	}
	metrics.SelectorLookups.WithLabelValues("hit").Inc()
	return best.Selector
}

// Entries returns every ledger entry, for the worker face's debug surface.
func (s *Store) Entries() ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(selectorKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

// RunGC reclaims value-log space. Call periodically; ErrNoRewrite means
// there was nothing to collect.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
