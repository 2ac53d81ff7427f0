package store

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// LevelStore is a Store over an embedded goleveldb database. Cursor
// exclusivity maps onto leveldb's single write transaction.
type LevelStore struct {
	db *leveldb.DB
}

// NewLevelStore wraps an open goleveldb handle.
func NewLevelStore(db *leveldb.DB) *LevelStore {
	return &LevelStore{db: db}
}

func (s *LevelStore) Begin() (Cursor, error) {
	return newCursor(s), nil
}

func (s *LevelStore) Snapshot() (Reader, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("utxo snapshot: %w", err)
	}
	return &levelReader{snap: snap}, nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

func (s *LevelStore) begin() (kvTx, error) {
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &levelTx{tr: tr}, nil
}

type levelTx struct {
	tr *leveldb.Transaction
}

func (t *levelTx) get(key []byte) ([]byte, bool, error) {
	value, err := t.tr.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *levelTx) put(key, value []byte) error {
	return t.tr.Put(key, value, nil)
}

func (t *levelTx) delete(key []byte) error {
	return t.tr.Delete(key, nil)
}

func (t *levelTx) commit() error {
	return t.tr.Commit()
}

func (t *levelTx) discard() {
	t.tr.Discard()
}

type levelReader struct {
	snap *leveldb.Snapshot
}

func (r *levelReader) TryGetUnspentTx(txHash chainhash.Hash) (*model.UnspentTx, bool, error) {
	value, err := r.snap.Get(unspentTxKey(txHash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot get unspent tx %s: %w", txHash, err)
	}
	record, err := decodeUnspentTx(txHash, value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "snapshot unspent tx", Detail: err.Error()}
	}
	return record, true, nil
}

func (r *levelReader) TryGetUnspentOutput(outpoint wire.OutPoint) (*wire.TxOut, bool, error) {
	value, err := r.snap.Get(outputKey(outpoint), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot get unspent output %s: %w", outpoint, err)
	}
	out, err := decodeTxOut(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "snapshot unspent output", Detail: err.Error()}
	}
	return out, true, nil
}

func (r *levelReader) TryGetBlockUnmintedTxs(height int32) ([]model.UnmintedTx, bool, error) {
	value, err := r.snap.Get(heightKey(unmintedKeyPrefix, height), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot get unminted txs at %d: %w", height, err)
	}
	txs, err := decodeUnmintedTxs(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "snapshot unminted txs", Detail: err.Error()}
	}
	return txs, true, nil
}

func (r *levelReader) Release() {
	r.snap.Release()
}
