package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"meritledger/core/types"
	"meritledger/native/funding"
	"meritledger/native/ledger"
	"meritledger/native/quota"
	"meritledger/native/wallet"
	"meritledger/storage"
)

var (
	_ wallet.State  = (*Tx)(nil)
	_ quota.State   = (*Tx)(nil)
	_ ledger.State  = (*Tx)(nil)
	_ funding.State = (*Tx)(nil)
)

// Tx is one atomic state unit. It satisfies the State interfaces of every
// native engine, reading through a pending-write overlay so an engine sees
// its own uncommitted writes, and flushing the overlay to the database only
// on commit.
type Tx struct {
	db      storage.Database
	pending map[string][]byte
}

func newTx(db storage.Database) *Tx {
	return &Tx{db: db, pending: make(map[string][]byte)}
}

func (tx *Tx) getJSON(key []byte, out any) (bool, error) {
	raw, ok := tx.pending[string(key)]
	if !ok {
		var err error
		raw, err = tx.db.Get(key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) putJSON(key []byte, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	tx.pending[string(key)] = raw
	return nil
}

func (tx *Tx) commit() error {
	for key, value := range tx.pending {
		if err := tx.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	tx.pending = nil
	return nil
}

// --- wallet.State ---

func (tx *Tx) WalletGet(key types.WalletKey) (*types.Wallet, bool, error) {
	var w types.Wallet
	ok, err := tx.getJSON(walletKey(key), &w)
	if err != nil || !ok {
		return nil, false, err
	}
	return &w, true, nil
}

func (tx *Tx) WalletPut(w *types.Wallet) error {
	return tx.putJSON(walletKey(w.Key), w)
}

// --- quota.State ---

func (tx *Tx) QuotaGet(community, actor string) (*quota.Quota, bool, error) {
	var q quota.Quota
	ok, err := tx.getJSON(quotaKey(community, actor), &q)
	if err != nil || !ok {
		return nil, false, err
	}
	return &q, true, nil
}

func (tx *Tx) QuotaPut(q *quota.Quota) error {
	return tx.putJSON(quotaKey(q.Community, q.Actor), q)
}

// --- target registry (shared by ledger.State and funding.State) ---

func (tx *Tx) TargetGet(id string) (*types.Target, bool, error) {
	var t types.Target
	ok, err := tx.getJSON(targetKey(id), &t)
	if err != nil || !ok {
		return nil, false, err
	}
	return &t, true, nil
}

func (tx *Tx) TargetPut(t *types.Target) error {
	return tx.putJSON(targetKey(t.ID), t)
}

// RegisterTarget stores new target metadata, rejecting duplicate ids.
func (tx *Tx) RegisterTarget(t *types.Target) error {
	if _, ok, err := tx.TargetGet(t.ID); err != nil {
		return err
	} else if ok {
		return ErrTargetExists
	}
	return tx.TargetPut(t)
}

// --- ledger.State ---

func (tx *Tx) TransactionPut(record *ledger.Transaction) error {
	if err := tx.putJSON(txKey(record.ID), record); err != nil {
		return err
	}
	if err := tx.indexAppend(txIndexKey("target", record.TargetID), record.ID); err != nil {
		return err
	}
	if err := tx.indexAppend(txIndexKey("actor", record.From), record.ID); err != nil {
		return err
	}
	if record.ParentID != "" {
		if err := tx.indexAppend(txIndexKey("parent", record.ParentID), record.ID); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) TransactionGet(id string) (*ledger.Transaction, bool, error) {
	var record ledger.Transaction
	ok, err := tx.getJSON(txKey(id), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	return &record, true, nil
}

func (tx *Tx) TransactionsByTarget(targetID string, p ledger.Pagination) ([]*ledger.Transaction, error) {
	return tx.pageTransactions(txIndexKey("target", targetID), p)
}

func (tx *Tx) TransactionsByActor(actor string, p ledger.Pagination) ([]*ledger.Transaction, error) {
	return tx.pageTransactions(txIndexKey("actor", actor), p)
}

func (tx *Tx) TransactionsByParent(parentID string, p ledger.Pagination) ([]*ledger.Transaction, error) {
	return tx.pageTransactions(txIndexKey("parent", parentID), p)
}

func (tx *Tx) indexAppend(key []byte, id string) error {
	var ids []string
	if _, err := tx.getJSON(key, &ids); err != nil {
		return err
	}
	return tx.putJSON(key, append(ids, id))
}

// pageTransactions walks an append-ordered id index backwards so pages come
// out newest-first.
func (tx *Tx) pageTransactions(key []byte, p ledger.Pagination) ([]*ledger.Transaction, error) {
	var ids []string
	if _, err := tx.getJSON(key, &ids); err != nil {
		return nil, err
	}
	p = p.Normalize()
	out := make([]*ledger.Transaction, 0, p.Limit)
	for i := len(ids) - 1 - p.Offset; i >= 0 && len(out) < p.Limit; i-- {
		record, ok, err := tx.TransactionGet(ids[i])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: dangling transaction index entry %q", ids[i])
		}
		out = append(out, record)
	}
	return out, nil
}

func (tx *Tx) ScoreGet(targetID string) (*ledger.ContentScore, bool, error) {
	var score ledger.ContentScore
	ok, err := tx.getJSON(scoreKey(targetID), &score)
	if err != nil || !ok {
		return nil, false, err
	}
	return &score, true, nil
}

func (tx *Tx) ScorePut(targetID string, score *ledger.ContentScore) error {
	return tx.putJSON(scoreKey(targetID), score)
}

// --- funding.State ---

func (tx *Tx) ContributionAppend(c *funding.Contribution) error {
	var pool []*funding.Contribution
	if _, err := tx.getJSON(poolKey(c.PublicationID), &pool); err != nil {
		return err
	}
	return tx.putJSON(poolKey(c.PublicationID), append(pool, c))
}

func (tx *Tx) ContributionsByPublication(publicationID string) ([]*funding.Contribution, error) {
	var pool []*funding.Contribution
	if _, err := tx.getJSON(poolKey(publicationID), &pool); err != nil {
		return nil, err
	}
	return pool, nil
}

func (tx *Tx) ClosingGet(publicationID string) (*funding.ClosingSummary, bool, error) {
	var summary funding.ClosingSummary
	ok, err := tx.getJSON(closingKey(publicationID), &summary)
	if err != nil || !ok {
		return nil, false, err
	}
	return &summary, true, nil
}

func (tx *Tx) ClosingPut(summary *funding.ClosingSummary) error {
	return tx.putJSON(closingKey(summary.PublicationID), summary)
}

func (tx *Tx) ScoreNet(targetID string) (*big.Int, error) {
	score, ok, err := tx.ScoreGet(targetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return score.Net(), nil
}
