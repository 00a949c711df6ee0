package outbox

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var (
	bucketPending = []byte("pending")

	// ErrNotInitialised is returned when the outbox has no database handle.
	ErrNotInitialised = errors.New("outbox: store not initialised")
)

// Entry is one undelivered event. Entries survive restarts; the dispatcher
// removes them only after every destination acknowledged delivery.
type Entry struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Attempts   int               `json:"attempts"`
	EnqueuedAt int64             `json:"enqueuedAt"`
}

// Outbox is a durable queue of committed ledger events awaiting webhook
// delivery.
type Outbox struct {
	db *bbolt.DB
}

// Open creates or opens the outbox database.
func Open(path string) (*Outbox, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPending)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Outbox{db: db}, nil
}

// Close releases the underlying database handle.
func (o *Outbox) Close() error {
	if o == nil || o.db == nil {
		return nil
	}
	return o.db.Close()
}

// Enqueue appends one event and returns its sequence number.
func (o *Outbox) Enqueue(eventType string, attributes map[string]string) (uint64, error) {
	if o == nil || o.db == nil {
		return 0, ErrNotInitialised
	}
	var sequence uint64
	err := o.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPending)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		sequence = seq
		entry := Entry{
			Sequence:   seq,
			Type:       eventType,
			Attributes: attributes,
			EnqueuedAt: time.Now().Unix(),
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(seq), raw)
	})
	return sequence, err
}

// Pending returns up to limit undelivered entries in enqueue order.
func (o *Outbox) Pending(limit int) ([]Entry, error) {
	if o == nil || o.db == nil {
		return nil, ErrNotInitialised
	}
	if limit <= 0 {
		limit = 64
	}
	var entries []Entry
	err := o.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketPending).Cursor()
		for k, v := cursor.First(); k != nil && len(entries) < limit; k, v = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// MarkDelivered removes a delivered entry.
func (o *Outbox) MarkDelivered(sequence uint64) error {
	if o == nil || o.db == nil {
		return ErrNotInitialised
	}
	return o.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Delete(sequenceKey(sequence))
	})
}

// RecordAttempt increments the attempt counter, dropping the entry once the
// cap is exceeded. It reports whether the entry was dropped.
func (o *Outbox) RecordAttempt(sequence uint64, maxAttempts int) (bool, error) {
	if o == nil || o.db == nil {
		return false, ErrNotInitialised
	}
	dropped := false
	err := o.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPending)
		key := sequenceKey(sequence)
		raw := bucket.Get(key)
		if raw == nil {
			return nil
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		entry.Attempts++
		if maxAttempts > 0 && entry.Attempts >= maxAttempts {
			dropped = true
			return bucket.Delete(key)
		}
		updated, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put(key, updated)
	})
	return dropped, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
