package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	pebblestore "github.com/AbdalrahmanWael/StreamWeaver/internal/storage/pebble"
)

const sessionKeyPrefix = "session/"

// Pebble persists session records in a local Pebble database. TTLs are
// embedded in the stored value and enforced on read: an expired record is
// deleted and reported as ErrNotFound.
type Pebble struct {
	db  *pebblestore.DB
	now func() time.Time
}

type pebbleEntry struct {
	Record      Record `json:"record"`
	ExpiresAtMs int64  `json:"expiresAtMs,omitempty"`
}

// NewPebble opens (or creates) a Pebble-backed store at dataDir.
func NewPebble(dataDir string) (*Pebble, error) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dataDir})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db, now: time.Now}, nil
}

func sessionKey(sessionID string) []byte {
	return []byte(sessionKeyPrefix + sessionID)
}

func (p *Pebble) Get(_ context.Context, sessionID string) (Record, error) {
	raw, err := p.db.Get(sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var entry pebbleEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Record{}, err
	}
	if p.expired(entry) {
		_ = p.db.Delete(sessionKey(sessionID))
		return Record{}, ErrNotFound
	}
	return entry.Record, nil
}

func (p *Pebble) Put(_ context.Context, sessionID string, rec Record, ttl time.Duration) error {
	entry := pebbleEntry{Record: rec}
	if ttl > 0 {
		entry.ExpiresAtMs = p.now().Add(ttl).UnixMilli()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return p.db.Set(sessionKey(sessionID), raw)
}

func (p *Pebble) Delete(_ context.Context, sessionID string) error {
	return p.db.Delete(sessionKey(sessionID))
}

func (p *Pebble) ListActive(_ context.Context) ([]string, error) {
	var ids []string
	err := p.db.ScanPrefix([]byte(sessionKeyPrefix), func(key, value []byte) bool {
		var entry pebbleEntry
		if json.Unmarshal(value, &entry) != nil {
			return true
		}
		if p.expired(entry) || entry.Record.Status != StatusActive {
			return true
		}
		ids = append(ids, strings.TrimPrefix(string(key), sessionKeyPrefix))
		return true
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (p *Pebble) expired(entry pebbleEntry) bool {
	return entry.ExpiresAtMs > 0 && p.now().UnixMilli() >= entry.ExpiresAtMs
}

func (p *Pebble) Close() error { return p.db.Close() }
