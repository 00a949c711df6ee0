package state

import (
	"errors"
	"sync"

	"meritledger/storage"
)

var (
	// ErrNilDatabase is returned when a manager is constructed without a
	// storage backend.
	ErrNilDatabase = errors.New("state: database not configured")
	// ErrTargetExists is returned when registering a target id that is
	// already taken.
	ErrTargetExists = errors.New("state: target already registered")
)

// Manager serializes atomic units over the key-value store. Every inbound
// operation runs inside exactly one Update or View call; units are mutually
// exclusive, so engines composed inside a unit observe and produce a
// consistent snapshot. Writes buffer in the unit and reach the database only
// when the unit function returns nil, which is what makes multi-row
// operations all-or-nothing.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

// NewManager wraps a storage backend.
func NewManager(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	return &Manager{db: db}, nil
}

// Update runs fn inside an exclusive read-write unit. If fn returns an error
// the pending writes are discarded and nothing reaches the database.
func (m *Manager) Update(fn func(*Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := newTx(m.db)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View runs fn inside an exclusive read-only unit. Writes performed by fn are
// discarded regardless of its result.
func (m *Manager) View(fn func(*Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(newTx(m.db))
}

// Close releases the underlying database.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		m.db.Close()
	}
}
