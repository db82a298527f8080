// Package storage persists findings across scans. bbolt holds the
// durable copy; a btree over open findings answers the reconciler's
// reads without touching disk.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/skimworks/skim/findings"
	"github.com/skimworks/skim/types"
)

// Bucket names in bbolt
var (
	bucketFindings = []byte("findings")
	bucketClosed   = []byte("closed")
)

// FindingStore is the durable record of every finding the engine has
// ever raised, open or closed
type FindingStore struct {
	mu sync.RWMutex

	// In-memory index over open findings
	index *btree.BTreeG[indexEntry]

	db *bbolt.DB
}

type indexEntry struct {
	key     string
	finding types.Finding
}

// NewFindingStore opens or creates the store under dir
func NewFindingStore(dir string) (*FindingStore, error) {
	dbPath := filepath.Join(dir, "skim.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketFindings, bucketClosed} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &FindingStore{
		index: btree.NewG[indexEntry](32, func(a, b indexEntry) bool {
			return a.key < b.key
		}),
		db: db,
	}

	if err := store.rebuildIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database
func (s *FindingStore) Close() error {
	return s.db.Close()
}

// rebuildIndex loads every open finding from disk into the btree
func (s *FindingStore) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFindings).ForEach(func(k, v []byte) error {
			var f types.Finding
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("corrupt finding %s: %w", k, err)
			}
			s.index.ReplaceOrInsert(indexEntry{key: f.Key(), finding: f})
			return nil
		})
	})
}

// ApplyReconciliation commits one scan's delta in a single
// transaction. Either the whole delta lands or none of it does.
func (s *FindingStore) ApplyReconciliation(recon findings.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		open := tx.Bucket(bucketFindings)
		closed := tx.Bucket(bucketClosed)

		for _, f := range append(recon.ToCreate, recon.ToUpdate...) {
			value, err := json.Marshal(f)
			if err != nil {
				return err
			}
			if err := open.Put([]byte(f.Key()), value); err != nil {
				return err
			}
		}

		for _, f := range recon.ToClose {
			value, err := json.Marshal(f)
			if err != nil {
				return err
			}
			if err := open.Delete([]byte(f.Key())); err != nil {
				return err
			}
			if err := closed.Put(closedKey(f), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply reconciliation: %w", err)
	}

	for _, f := range append(recon.ToCreate, recon.ToUpdate...) {
		s.index.ReplaceOrInsert(indexEntry{key: f.Key(), finding: f})
	}
	for _, f := range recon.ToClose {
		s.index.Delete(indexEntry{key: f.Key()})
	}
	return nil
}

// closedKey keeps every closure of the same finding distinct
func closedKey(f types.Finding) []byte {
	ts := ""
	if f.ClosedAt != nil {
		ts = f.ClosedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return []byte(f.Key() + "|" + ts)
}

// Get returns the open finding for a (resource, rule) pair
func (s *FindingStore) Get(resourceID, ruleID string) (types.Finding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.index.Get(indexEntry{key: types.FindingKey(resourceID, ruleID)})
	if !ok {
		return types.Finding{}, false
	}
	return entry.finding, true
}

// OpenFindings returns every open finding, sorted by key
func (s *FindingStore) OpenFindings() []types.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]types.Finding, 0, s.index.Len())
	s.index.Ascend(func(entry indexEntry) bool {
		result = append(result, entry.finding)
		return true
	})
	return result
}

// OpenFindingsFor returns open findings scoped to one family in one
// account and region
func (s *FindingStore) OpenFindingsFor(account, region string, family types.Family) []types.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []types.Finding
	s.index.Ascend(func(entry indexEntry) bool {
		f := entry.finding
		if f.Account == account && f.Region == region && f.Family == family {
			result = append(result, f)
		}
		return true
	})
	return result
}

// ClosedFindings returns the closure history, most useful for audits
func (s *FindingStore) ClosedFindings() ([]types.Finding, error) {
	var result []types.Finding
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketClosed).ForEach(func(k, v []byte) error {
			var f types.Finding
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("corrupt closed finding %s: %w", k, err)
			}
			result = append(result, f)
			return nil
		})
	})
	return result, err
}
