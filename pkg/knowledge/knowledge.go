// Package knowledge implements KnowledgeStore (spec.md §4.9): failure
// patterns and fix-history records, keyed by signature, seeded with
// built-in patterns on first open. Adapted directly from the teacher's
// pkg/task/storage.go, which is the only storage code retrieved from the
// pack: same embedded key-value engine (syndtr/goleveldb), same
// lexicographically-sortable xid identifiers, same prefixed-key-range
// idiom -- repurposed here from a three-phase task queue to a
// signature-indexed pattern store plus an append-only fix log.
package knowledge

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/argusci/argus/pkg/apierr"
)

const (
	prefixPattern = "pattern"
	prefixBySig   = "pattern_by_sig"
	prefixFix     = "fix"
)

// Source identifies how a FailurePattern originated.
type Source string

const (
	SourceBuiltIn Source = "built-in"
	SourceLearned Source = "learned"
)

// FailurePattern is a known failure signature and its remediation history
// (spec.md §3).
type FailurePattern struct {
	ID              string
	Category        string
	Signature       string
	SignaturePattern string
	Description     string
	SuggestedFix    string
	Confidence      float64
	Occurrences     int
	Resolutions     int
	Source          Source
	FirstSeen       time.Time
	LastSeen        time.Time
	Created         time.Time
	Updated         time.Time
}

// FixRecord logs one attempted remediation of a FailurePattern.
type FixRecord struct {
	ID          string
	PatternID   string
	RunID       string
	CaseName    string
	Description string
	Success     bool
	CreatedAt   time.Time
}

// builtInCategories are the categories whose built-in patterns are seeded
// on first open, per spec.md §4.9.
var builtInCategories = []string{
	"CONNECTION_REFUSED", "TIMEOUT", "CONTAINER_OOM", "CONTAINER_CRASH", "MOCK_MISMATCH", "NETWORK_ERROR",
}

// Store is the goleveldb-backed KnowledgeStore.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the knowledge store at path and seeds the
// built-in patterns if they are not already present.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "opening knowledge store", err)
	}
	s := &Store{db: db}
	if err := s.seedBuiltIns(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens an ephemeral knowledge store backed by an in-memory
// leveldb instance, for tests and history-disabled sessions.
func OpenInMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "opening in-memory knowledge store", err)
	}
	s := &Store{db: db}
	if err := s.seedBuiltIns(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func BuiltInSignature(category string) string {
	return "builtin::" + category
}

func (s *Store) seedBuiltIns() error {
	for _, cat := range builtInCategories {
		sig := BuiltInSignature(cat)
		if _, err := s.FindBySignature(sig); err == nil {
			continue
		}

		now := time.Now()
		p := FailurePattern{
			ID:          xid.New().String(),
			Category:    cat,
			Signature:   sig,
			Source:      SourceBuiltIn,
			Confidence:  0.5,
			Occurrences: 0,
			FirstSeen:   now,
			LastSeen:    now,
			Created:     now,
			Updated:     now,
		}
		if err := s.putPattern(p); err != nil {
			return err
		}
	}
	return nil
}

func patternKey(id string) []byte    { return []byte(prefixPattern + ":" + id) }
func sigIndexKey(sig string) []byte  { return []byte(prefixBySig + ":" + sig) }
func fixKey(patternID, id string) []byte {
	return []byte(strings.Join([]string{prefixFix, patternID, id}, ":"))
}

func (s *Store) putPattern(p FailurePattern) error {
	val, err := json.Marshal(p)
	if err != nil {
		return apierr.Wrap(apierr.ConfigError, "encoding failure pattern", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(patternKey(p.ID), val)
	batch.Put(sigIndexKey(p.Signature), []byte(p.ID))
	return s.db.Write(batch, nil)
}

// FindBySignature returns the pattern with the given signature, or
// ServiceNotFound if none exists.
func (s *Store) FindBySignature(sig string) (*FailurePattern, error) {
	id, err := s.db.Get(sigIndexKey(sig), nil)
	if err == leveldb.ErrNotFound {
		return nil, apierr.New(apierr.ServiceNotFound, "no pattern for signature: "+sig)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "looking up signature index", err)
	}
	return s.Get(string(id))
}

// Get returns a pattern by id.
func (s *Store) Get(id string) (*FailurePattern, error) {
	val, err := s.db.Get(patternKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, apierr.New(apierr.ServiceNotFound, "pattern not found: "+id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "reading pattern", err)
	}
	var p FailurePattern
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "decoding pattern", err)
	}
	return &p, nil
}

// Put creates or updates a pattern.
func (s *Store) Put(p FailurePattern) error {
	if p.ID == "" {
		p.ID = xid.New().String()
	}
	p.Updated = time.Now()
	return s.putPattern(p)
}

// SaveFix records a FixRecord under its pattern.
func (s *Store) SaveFix(f FixRecord) error {
	if f.ID == "" {
		f.ID = xid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	val, err := json.Marshal(f)
	if err != nil {
		return apierr.Wrap(apierr.ConfigError, "encoding fix record", err)
	}
	if err := s.db.Put(fixKey(f.PatternID, f.ID), val, nil); err != nil {
		return apierr.Wrap(apierr.ConfigError, "writing fix record", err)
	}
	return nil
}

// FixHistory returns every FixRecord logged against patternID, oldest
// first.
func (s *Store) FixHistory(patternID string) ([]FixRecord, error) {
	rng := util.BytesPrefix([]byte(prefixFix + ":" + patternID + ":"))
	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()

	var out []FixRecord
	for iter.Next() {
		var f FixRecord
		if err := json.Unmarshal(iter.Value(), &f); err != nil {
			return nil, apierr.Wrap(apierr.ConfigError, "decoding fix record", err)
		}
		out = append(out, f)
	}
	return out, iter.Error()
}

// Close releases the backing resource.
func (s *Store) Close() error {
	return s.db.Close()
}
