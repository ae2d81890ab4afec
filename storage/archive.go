// Package storage persists completed turns and session identities in
// BadgerDB so a conversation can be inspected after a restart.
package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/soullab/oracle-choreography/core"
)

// ArchiveConfig tunes the BadgerDB-backed archive.
type ArchiveConfig struct {
	DataDir        string
	DisableLogging bool
	InMemory       bool
	SyncWrites     bool
	GCInterval     int64 // in seconds, 0 to disable
}

// DefaultArchiveConfig returns the standard archive configuration.
func DefaultArchiveConfig(dataDir string) ArchiveConfig {
	return ArchiveConfig{
		DataDir:        dataDir,
		DisableLogging: true,
		InMemory:       false,
		SyncWrites:     true,
		GCInterval:     3600, // 1 hour
	}
}

// ArchiveMetrics counts archive operations.
type ArchiveMetrics struct {
	PutCount int64
	GetCount int64
	Errors   int64
}

// BadgerArchive stores turn records keyed by session and sequence number.
type BadgerArchive struct {
	db      *badger.DB
	config  ArchiveConfig
	metrics ArchiveMetrics
	done    chan struct{}
}

// OpenArchive opens (or creates) the archive under config.DataDir.
func OpenArchive(config ArchiveConfig) (*BadgerArchive, error) {
	opts := badger.DefaultOptions(filepath.Join(config.DataDir, "turns"))
	if config.DisableLogging {
		opts.Logger = nil
	}
	opts.InMemory = config.InMemory
	opts.SyncWrites = config.SyncWrites
	if config.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %v", err)
	}

	a := &BadgerArchive{db: db, config: config, done: make(chan struct{})}
	if config.GCInterval > 0 {
		go a.gcLoop(time.Duration(config.GCInterval) * time.Second)
	}
	return a, nil
}

func (a *BadgerArchive) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			if err := a.RunGC(); err != nil && err != badger.ErrNoRewrite {
				log.Printf("Archive GC failed: %v", err)
			}
		}
	}
}

func turnKey(sessionKey string, seq int) []byte {
	// Zero-padded sequence keeps lexicographic iteration chronological.
	return []byte(fmt.Sprintf("session/%s/turn/%010d", sessionKey, seq))
}

func sessionIndexKey(sessionKey string) []byte {
	return []byte("session-index/" + sessionKey)
}

// SaveTurn persists one completed turn record.
func (a *BadgerArchive) SaveTurn(sessionKey string, seq int, record core.ResponseRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		atomic.AddInt64(&a.metrics.Errors, 1)
		return fmt.Errorf("marshal turn record: %v", err)
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(turnKey(sessionKey, seq), data)
	})
	if err != nil {
		atomic.AddInt64(&a.metrics.Errors, 1)
		return err
	}
	atomic.AddInt64(&a.metrics.PutCount, 1)
	return nil
}

// SessionTurns returns every archived record of one session in sequence
// order.
func (a *BadgerArchive) SessionTurns(sessionKey string) ([]core.ResponseRecord, error) {
	prefix := []byte(fmt.Sprintf("session/%s/turn/", sessionKey))

	type keyed struct {
		key    string
		record core.ResponseRecord
	}
	var rows []keyed

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				var rec core.ResponseRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				rows = append(rows, keyed{key: key, record: rec})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		atomic.AddInt64(&a.metrics.Errors, 1)
		return nil, fmt.Errorf("read session turns: %v", err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	records := make([]core.ResponseRecord, len(rows))
	for i, row := range rows {
		records[i] = row.record
	}
	atomic.AddInt64(&a.metrics.GetCount, 1)
	return records, nil
}

// SaveSession records a session key with its owning user.
func (a *BadgerArchive) SaveSession(sessionKey, userID string) error {
	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionIndexKey(sessionKey), []byte(userID))
	})
	if err != nil {
		atomic.AddInt64(&a.metrics.Errors, 1)
		return err
	}
	atomic.AddInt64(&a.metrics.PutCount, 1)
	return nil
}

// Sessions returns every known session key mapped to its user id.
func (a *BadgerArchive) Sessions() (map[string]string, error) {
	prefix := []byte("session-index/")
	result := make(map[string]string)

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				result[key] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		atomic.AddInt64(&a.metrics.Errors, 1)
		return nil, fmt.Errorf("read sessions: %v", err)
	}
	atomic.AddInt64(&a.metrics.GetCount, 1)
	return result, nil
}

// Metrics returns a snapshot of the operation counters.
func (a *BadgerArchive) Metrics() ArchiveMetrics {
	return ArchiveMetrics{
		PutCount: atomic.LoadInt64(&a.metrics.PutCount),
		GetCount: atomic.LoadInt64(&a.metrics.GetCount),
		Errors:   atomic.LoadInt64(&a.metrics.Errors),
	}
}

// RunGC triggers one value-log garbage collection pass.
func (a *BadgerArchive) RunGC() error {
	return a.db.RunValueLogGC(0.5)
}

// Close stops the GC loop and closes the database.
func (a *BadgerArchive) Close() error {
	close(a.done)
	return a.db.Close()
}
