package storage

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// LevelBlockStorage is a BlockStorage over an embedded goleveldb database.
type LevelBlockStorage struct {
	db *leveldb.DB
}

// NewLevelBlockStorage wraps an open goleveldb handle.
func NewLevelBlockStorage(db *leveldb.DB) *LevelBlockStorage {
	return &LevelBlockStorage{db: db}
}

func (s *LevelBlockStorage) TryAddChainedHeader(header *model.ChainedHeader) (bool, error) {
	key := headerKey(header.Hash())
	if ok, err := s.db.Has(key, nil); err != nil {
		return false, fmt.Errorf("check header %s: %w", header.Hash(), err)
	} else if ok {
		return false, nil
	}
	value, err := encodeChainedHeader(header)
	if err != nil {
		return false, err
	}
	if err := s.db.Put(key, value, nil); err != nil {
		return false, fmt.Errorf("put header %s: %w", header.Hash(), err)
	}
	return true, nil
}

func (s *LevelBlockStorage) TryGetChainedHeader(hash chainhash.Hash) (*model.ChainedHeader, bool, error) {
	value, err := s.db.Get(headerKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get header %s: %w", hash, err)
	}
	header, err := decodeChainedHeader(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "get header", Detail: err.Error()}
	}
	return header, true, nil
}

func (s *LevelBlockStorage) ReadChainedHeaders() ([]*model.ChainedHeader, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{headerKeyPrefix}), nil)
	defer iter.Release()

	var headers []*model.ChainedHeader
	for iter.Next() {
		header, err := decodeChainedHeader(iter.Value())
		if err != nil {
			return nil, &model.CorruptionError{Op: "read headers", Detail: err.Error()}
		}
		headers = append(headers, header)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate headers: %w", err)
	}
	return headers, nil
}

func (s *LevelBlockStorage) FindMaxTotalWork() (*model.ChainedHeader, bool, error) {
	headers, err := s.ReadChainedHeaders()
	if err != nil {
		return nil, false, err
	}
	var best *model.ChainedHeader
	for _, h := range headers {
		bad, err := s.IsBlockInvalid(h.Hash())
		if err != nil {
			return nil, false, err
		}
		if bad {
			continue
		}
		if better(h, best) {
			best = h
		}
	}
	return best, best != nil, nil
}

func (s *LevelBlockStorage) MarkBlockInvalid(hash chainhash.Hash) error {
	if err := s.db.Put(invalidKey(hash), []byte{1}, nil); err != nil {
		return fmt.Errorf("mark invalid %s: %w", hash, err)
	}
	return nil
}

func (s *LevelBlockStorage) IsBlockInvalid(hash chainhash.Hash) (bool, error) {
	ok, err := s.db.Has(invalidKey(hash), nil)
	if err != nil {
		return false, fmt.Errorf("check invalid %s: %w", hash, err)
	}
	return ok, nil
}

// LevelBlockTxesStorage is a BlockTxesStorage over an embedded goleveldb
// database.
type LevelBlockTxesStorage struct {
	db *leveldb.DB
}

// NewLevelBlockTxesStorage wraps an open goleveldb handle.
func NewLevelBlockTxesStorage(db *leveldb.DB) *LevelBlockTxesStorage {
	return &LevelBlockTxesStorage{db: db}
}

func (s *LevelBlockTxesStorage) TryAddBlockTransactions(block chainhash.Hash, txs []*wire.MsgTx) (bool, error) {
	countKey := txCountKey(block)
	if ok, err := s.db.Has(countKey, nil); err != nil {
		return false, fmt.Errorf("check block %s: %w", block, err)
	} else if ok {
		return false, nil
	}

	batch := new(leveldb.Batch)
	for i, tx := range txs {
		value, err := encodeBlockTx(model.BlockTx{Tx: tx})
		if err != nil {
			return false, err
		}
		batch.Put(blockTxKey(block, uint32(i)), value)
	}
	batch.Put(countKey, encodeUint32(uint32(len(txs))))
	if err := s.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("write block %s: %w", block, err)
	}
	return true, nil
}

func (s *LevelBlockTxesStorage) TryReadBlockTransactions(block chainhash.Hash) ([]model.BlockTx, bool, error) {
	count, ok, err := s.readTxCount(block)
	if err != nil || !ok {
		return nil, false, err
	}
	entries := make([]model.BlockTx, 0, count)
	for i := uint32(0); i < count; i++ {
		value, err := s.db.Get(blockTxKey(block, i), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, &model.CorruptionError{Op: "read block txs", Detail: fmt.Sprintf("tx %d of block %s missing", i, block)}
		}
		if err != nil {
			return nil, false, fmt.Errorf("get tx %d of block %s: %w", i, block, err)
		}
		entry, err := decodeBlockTx(value)
		if err != nil {
			return nil, false, &model.CorruptionError{Op: "read block txs", Detail: err.Error()}
		}
		entries = append(entries, entry)
	}
	return entries, true, nil
}

func (s *LevelBlockTxesStorage) ContainsBlock(block chainhash.Hash) (bool, error) {
	ok, err := s.db.Has(txCountKey(block), nil)
	if err != nil {
		return false, fmt.Errorf("check block %s: %w", block, err)
	}
	return ok, nil
}

func (s *LevelBlockTxesStorage) TryGetTransaction(block chainhash.Hash, index uint32) (*wire.MsgTx, bool, error) {
	value, err := s.db.Get(blockTxKey(block, index), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get tx %d of block %s: %w", index, block, err)
	}
	entry, err := decodeBlockTx(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "get tx", Detail: err.Error()}
	}
	if entry.Pruned {
		return nil, false, &model.MissingDataError{Hash: block}
	}
	return entry.Tx, true, nil
}

func (s *LevelBlockTxesStorage) BlockCount() (uint64, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{txCountKeyPrefix}), nil)
	defer iter.Release()
	var count uint64
	for iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iterate blocks: %w", err)
	}
	return count, nil
}

func (s *LevelBlockTxesStorage) PruneBlockTransactions(block chainhash.Hash, txIndexes []uint32) error {
	pruned, err := encodeBlockTx(model.BlockTx{Pruned: true})
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, idx := range txIndexes {
		batch.Put(blockTxKey(block, idx), pruned)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("prune block %s: %w", block, err)
	}
	return nil
}

func (s *LevelBlockTxesStorage) RemoveBlockTransactions(block chainhash.Hash) error {
	count, ok, err := s.readTxCount(block)
	if err != nil || !ok {
		return err
	}
	batch := new(leveldb.Batch)
	for i := uint32(0); i < count; i++ {
		batch.Delete(blockTxKey(block, i))
	}
	batch.Delete(txCountKey(block))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("remove block %s: %w", block, err)
	}
	return nil
}

func (s *LevelBlockTxesStorage) readTxCount(block chainhash.Hash) (uint32, bool, error) {
	value, err := s.db.Get(txCountKey(block), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get tx count of block %s: %w", block, err)
	}
	count, err := decodeUint32(value)
	if err != nil {
		return 0, false, &model.CorruptionError{Op: "read tx count", Detail: err.Error()}
	}
	return count, true, nil
}
