package store

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// MemoryStore is an in-memory Store. It carries the reference semantics the
// embedded backend must match and backs most of the test suite.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// txMu serializes transactions: at most one cursor holds an in-flight
	// transaction at a time.
	txMu sync.Mutex
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Begin() (Cursor, error) {
	return newCursor(s), nil
}

func (s *MemoryStore) Snapshot() (Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	return &memoryReader{data: data}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) begin() (kvTx, error) {
	s.txMu.Lock()
	return &memoryTx{
		store: s,
		puts:  make(map[string][]byte),
		dels:  make(map[string]struct{}),
	}, nil
}

type memoryTx struct {
	store *MemoryStore
	puts  map[string][]byte
	dels  map[string]struct{}
	done  bool
}

func (t *memoryTx) get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if value, ok := t.puts[k]; ok {
		return value, true, nil
	}
	if _, ok := t.dels[k]; ok {
		return nil, false, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	value, ok := t.store.data[k]
	return value, ok, nil
}

func (t *memoryTx) put(key, value []byte) error {
	k := string(key)
	delete(t.dels, k)
	t.puts[k] = append([]byte(nil), value...)
	return nil
}

func (t *memoryTx) delete(key []byte) error {
	k := string(key)
	delete(t.puts, k)
	t.dels[k] = struct{}{}
	return nil
}

func (t *memoryTx) commit() error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	for k, v := range t.puts {
		t.store.data[k] = v
	}
	for k := range t.dels {
		delete(t.store.data, k)
	}
	t.store.mu.Unlock()
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *memoryTx) discard() {
	if t.done {
		return
	}
	t.done = true
	t.store.txMu.Unlock()
}

type memoryReader struct {
	data map[string][]byte
}

func (r *memoryReader) TryGetUnspentTx(txHash chainhash.Hash) (*model.UnspentTx, bool, error) {
	value, ok := r.data[string(unspentTxKey(txHash))]
	if !ok {
		return nil, false, nil
	}
	record, err := decodeUnspentTx(txHash, value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "snapshot unspent tx", Detail: err.Error()}
	}
	return record, true, nil
}

func (r *memoryReader) TryGetUnspentOutput(outpoint wire.OutPoint) (*wire.TxOut, bool, error) {
	value, ok := r.data[string(outputKey(outpoint))]
	if !ok {
		return nil, false, nil
	}
	out, err := decodeTxOut(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "snapshot unspent output", Detail: err.Error()}
	}
	return out, true, nil
}

func (r *memoryReader) TryGetBlockUnmintedTxs(height int32) ([]model.UnmintedTx, bool, error) {
	value, ok := r.data[string(heightKey(unmintedKeyPrefix, height))]
	if !ok {
		return nil, false, nil
	}
	txs, err := decodeUnmintedTxs(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "snapshot unminted txs", Detail: err.Error()}
	}
	return txs, true, nil
}

func (r *memoryReader) Release() {}
