package storage

import (
	"bytes"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// MemoryBlockStorage is an in-memory BlockStorage, used in tests and as the
// reference semantics for the embedded backend.
type MemoryBlockStorage struct {
	mu      sync.RWMutex
	headers map[chainhash.Hash]*model.ChainedHeader
	invalid map[chainhash.Hash]struct{}
}

// NewMemoryBlockStorage builds an empty MemoryBlockStorage.
func NewMemoryBlockStorage() *MemoryBlockStorage {
	return &MemoryBlockStorage{
		headers: make(map[chainhash.Hash]*model.ChainedHeader),
		invalid: make(map[chainhash.Hash]struct{}),
	}
}

func (s *MemoryBlockStorage) TryAddChainedHeader(header *model.ChainedHeader) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.headers[header.Hash()]; ok {
		return false, nil
	}
	s.headers[header.Hash()] = header
	return true, nil
}

func (s *MemoryBlockStorage) TryGetChainedHeader(hash chainhash.Hash) (*model.ChainedHeader, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	header, ok := s.headers[hash]
	return header, ok, nil
}

func (s *MemoryBlockStorage) ReadChainedHeaders() ([]*model.ChainedHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	headers := make([]*model.ChainedHeader, 0, len(s.headers))
	for _, h := range s.headers {
		headers = append(headers, h)
	}
	return headers, nil
}

func (s *MemoryBlockStorage) FindMaxTotalWork() (*model.ChainedHeader, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *model.ChainedHeader
	for hash, h := range s.headers {
		if _, bad := s.invalid[hash]; bad {
			continue
		}
		if better(h, best) {
			best = h
		}
	}
	return best, best != nil, nil
}

func (s *MemoryBlockStorage) MarkBlockInvalid(hash chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid[hash] = struct{}{}
	return nil
}

func (s *MemoryBlockStorage) IsBlockInvalid(hash chainhash.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.invalid[hash]
	return ok, nil
}

// better reports whether a beats b on total work, ties broken by lowest hash
// in canonical string form.
func better(a, b *model.ChainedHeader) bool {
	if b == nil {
		return true
	}
	switch a.TotalWork.Cmp(b.TotalWork) {
	case 1:
		return true
	case -1:
		return false
	}
	ah, bh := a.Hash(), b.Hash()
	return bytes.Compare(reverseBytes(ah[:]), reverseBytes(bh[:])) < 0
}

// reverseBytes returns the canonical big-endian form of a little-endian hash.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

// MemoryBlockTxesStorage is an in-memory BlockTxesStorage.
type MemoryBlockTxesStorage struct {
	mu     sync.RWMutex
	blocks map[chainhash.Hash][]model.BlockTx
}

// NewMemoryBlockTxesStorage builds an empty MemoryBlockTxesStorage.
func NewMemoryBlockTxesStorage() *MemoryBlockTxesStorage {
	return &MemoryBlockTxesStorage{blocks: make(map[chainhash.Hash][]model.BlockTx)}
}

func (s *MemoryBlockTxesStorage) TryAddBlockTransactions(block chainhash.Hash, txs []*wire.MsgTx) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[block]; ok {
		return false, nil
	}
	entries := make([]model.BlockTx, len(txs))
	for i, tx := range txs {
		entries[i] = model.BlockTx{Tx: tx}
	}
	s.blocks[block] = entries
	return true, nil
}

func (s *MemoryBlockTxesStorage) TryReadBlockTransactions(block chainhash.Hash) ([]model.BlockTx, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.blocks[block]
	if !ok {
		return nil, false, nil
	}
	return append([]model.BlockTx(nil), entries...), true, nil
}

func (s *MemoryBlockTxesStorage) ContainsBlock(block chainhash.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[block]
	return ok, nil
}

func (s *MemoryBlockTxesStorage) TryGetTransaction(block chainhash.Hash, index uint32) (*wire.MsgTx, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.blocks[block]
	if !ok || int(index) >= len(entries) {
		return nil, false, nil
	}
	entry := entries[index]
	if entry.Pruned {
		return nil, false, &model.MissingDataError{Hash: block}
	}
	return entry.Tx, true, nil
}

func (s *MemoryBlockTxesStorage) BlockCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.blocks)), nil
}

func (s *MemoryBlockTxesStorage) PruneBlockTransactions(block chainhash.Hash, txIndexes []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.blocks[block]
	if !ok {
		return nil
	}
	for _, idx := range txIndexes {
		if int(idx) < len(entries) {
			entries[idx] = model.BlockTx{Pruned: true}
		}
	}
	return nil
}

func (s *MemoryBlockTxesStorage) RemoveBlockTransactions(block chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, block)
	return nil
}
