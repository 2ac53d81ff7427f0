// Package chain maintains the append-only graph of chained block headers,
// selects the best-work tip and plans reorganization paths between chains.
package chain

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/storage"
)

const negativeCacheShards = 64

// HeaderGraph holds every known chained header keyed by hash. Writers
// serialize on a single mutation lock; readers run concurrently. Repeated
// lookups of unknown hashes are absorbed by a sharded negative cache so they
// do not keep hitting storage.
type HeaderGraph struct {
	logger  *zap.Logger
	storage storage.BlockStorage

	mu      sync.RWMutex
	byHash  map[chainhash.Hash]*model.ChainedHeader
	invalid map[chainhash.Hash]struct{}
	genesis *model.ChainedHeader

	negShards [negativeCacheShards]negativeShard

	handlerMu     sync.RWMutex
	onAdded       []func(*model.ChainedHeader)
	onInvalidated []func(chainhash.Hash)
}

type negativeShard struct {
	mu     sync.Mutex
	misses map[chainhash.Hash]struct{}
}

// NewHeaderGraph builds a graph backed by the given storage, loading every
// persisted header and invalid mark.
func NewHeaderGraph(blockStorage storage.BlockStorage, logger *zap.Logger) (*HeaderGraph, error) {
	g := &HeaderGraph{
		logger:  logger,
		storage: blockStorage,
		byHash:  make(map[chainhash.Hash]*model.ChainedHeader),
		invalid: make(map[chainhash.Hash]struct{}),
	}
	for i := range g.negShards {
		g.negShards[i].misses = make(map[chainhash.Hash]struct{})
	}

	headers, err := blockStorage.ReadChainedHeaders()
	if err != nil {
		return nil, fmt.Errorf("load chained headers: %w", err)
	}
	for _, h := range headers {
		g.byHash[h.Hash()] = h
		if h.Height == 0 {
			g.genesis = h
		}
		bad, err := blockStorage.IsBlockInvalid(h.Hash())
		if err != nil {
			return nil, fmt.Errorf("load invalid mark for %s: %w", h.Hash(), err)
		}
		if bad {
			g.invalid[h.Hash()] = struct{}{}
		}
	}
	return g, nil
}

// OnChainedHeaderAdded registers a handler fired after a new header commits.
// Handlers must not re-enter the graph.
func (g *HeaderGraph) OnChainedHeaderAdded(handler func(*model.ChainedHeader)) {
	g.handlerMu.Lock()
	defer g.handlerMu.Unlock()
	g.onAdded = append(g.onAdded, handler)
}

// OnInvalidated registers a handler fired after a header is marked invalid.
func (g *HeaderGraph) OnInvalidated(handler func(chainhash.Hash)) {
	g.handlerMu.Lock()
	defer g.handlerMu.Unlock()
	g.onInvalidated = append(g.onInvalidated, handler)
}

// AddGenesis inserts the height-0 header. Re-adding the same genesis is
// idempotent; a distinct genesis is rejected.
func (g *HeaderGraph) AddGenesis(header wire.BlockHeader) (*model.ChainedHeader, error) {
	hash := header.BlockHash()

	g.mu.Lock()
	if g.genesis != nil {
		existing := g.genesis
		g.mu.Unlock()
		if existing.Hash() == hash {
			return existing, nil
		}
		return nil, fmt.Errorf("distinct genesis already present: have %s, got %s", existing.Hash(), hash)
	}
	chained := model.NewChainedHeader(header, 0, blockchain.CalcWork(header.Bits))
	g.byHash[hash] = chained
	g.genesis = chained
	g.mu.Unlock()

	if _, err := g.storage.TryAddChainedHeader(chained); err != nil {
		return nil, fmt.Errorf("persist genesis %s: %w", hash, err)
	}
	g.clearNegative(hash)
	g.fireAdded(chained)
	return chained, nil
}

// TryChain attaches a header whose parent is already known, computing its
// height and total work from the parent. Re-submitting a present header
// returns the existing entry without duplicate events; an invalid mark on it
// persists.
func (g *HeaderGraph) TryChain(header wire.BlockHeader) (*model.ChainedHeader, bool, error) {
	hash := header.BlockHash()

	g.mu.Lock()
	if existing, ok := g.byHash[hash]; ok {
		g.mu.Unlock()
		return existing, true, nil
	}
	parent, ok := g.byHash[header.PrevBlock]
	if !ok {
		g.mu.Unlock()
		return nil, false, nil
	}
	work := blockchain.CalcWork(header.Bits)
	if work.Sign() < 0 {
		g.mu.Unlock()
		return nil, false, nil
	}
	chained := model.NewChainedHeader(header, parent.Height+1, new(big.Int).Add(parent.TotalWork, work))
	g.byHash[hash] = chained
	g.mu.Unlock()

	if _, err := g.storage.TryAddChainedHeader(chained); err != nil {
		return nil, false, fmt.Errorf("persist header %s: %w", hash, err)
	}
	g.clearNegative(hash)
	g.fireAdded(chained)
	return chained, true, nil
}

// Get returns the chained header for a hash.
func (g *HeaderGraph) Get(hash chainhash.Hash) (*model.ChainedHeader, bool) {
	g.mu.RLock()
	header, ok := g.byHash[hash]
	g.mu.RUnlock()
	return header, ok
}

// Contains reports whether the hash names a known chained header, consulting
// the negative cache before storage.
func (g *HeaderGraph) Contains(hash chainhash.Hash) (bool, error) {
	g.mu.RLock()
	_, ok := g.byHash[hash]
	g.mu.RUnlock()
	if ok {
		return true, nil
	}

	shard := &g.negShards[hash[0]%negativeCacheShards]
	shard.mu.Lock()
	_, missed := shard.misses[hash]
	shard.mu.Unlock()
	if missed {
		return false, nil
	}

	_, found, err := g.storage.TryGetChainedHeader(hash)
	if err != nil {
		return false, err
	}
	if !found {
		shard.mu.Lock()
		shard.misses[hash] = struct{}{}
		shard.mu.Unlock()
	}
	return found, nil
}

// MaxTotalWorkTip returns the valid header with the greatest total work,
// breaking ties by lowest hash. Headers on invalid ancestry are excluded.
func (g *HeaderGraph) MaxTotalWorkTip() (*model.ChainedHeader, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	validity := make(map[chainhash.Hash]bool, len(g.byHash))
	var best *model.ChainedHeader
	for _, h := range g.byHash {
		if !g.validLocked(h, validity) {
			continue
		}
		if betterTip(h, best) {
			best = h
		}
	}
	return best, best != nil
}

// validLocked walks ancestry checking invalid marks, memoizing per scan.
// Callers hold at least a read lock.
func (g *HeaderGraph) validLocked(h *model.ChainedHeader, memo map[chainhash.Hash]bool) bool {
	hash := h.Hash()
	if v, ok := memo[hash]; ok {
		return v
	}
	if _, bad := g.invalid[hash]; bad {
		memo[hash] = false
		return false
	}
	if h.Height == 0 {
		memo[hash] = true
		return true
	}
	parent, ok := g.byHash[h.PrevHash()]
	if !ok {
		memo[hash] = false
		return false
	}
	v := g.validLocked(parent, memo)
	memo[hash] = v
	return v
}

// MarkInvalid flags a header as consensus-invalid. Descendants are excluded
// from tip selection by ancestry.
func (g *HeaderGraph) MarkInvalid(hash chainhash.Hash) error {
	g.mu.Lock()
	g.invalid[hash] = struct{}{}
	g.mu.Unlock()

	if err := g.storage.MarkBlockInvalid(hash); err != nil {
		return fmt.Errorf("persist invalid mark %s: %w", hash, err)
	}
	g.fireInvalidated(hash)
	return nil
}

// IsInvalid reports whether the header itself carries the invalid mark.
func (g *HeaderGraph) IsInvalid(hash chainhash.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, bad := g.invalid[hash]
	return bad
}

// ChainFrom materializes the full chain from genesis to the given tip.
func (g *HeaderGraph) ChainFrom(tip *model.ChainedHeader) (*model.Chain, error) {
	headers := make([]*model.ChainedHeader, tip.Height+1)
	g.mu.RLock()
	cursor := tip
	for {
		headers[cursor.Height] = cursor
		if cursor.Height == 0 {
			break
		}
		parent, ok := g.byHash[cursor.PrevHash()]
		if !ok {
			g.mu.RUnlock()
			return nil, fmt.Errorf("broken ancestry: parent of %s at height %d unknown", cursor.Hash(), cursor.Height)
		}
		cursor = parent
	}
	g.mu.RUnlock()
	return model.NewChain(headers)
}

func (g *HeaderGraph) clearNegative(hash chainhash.Hash) {
	shard := &g.negShards[hash[0]%negativeCacheShards]
	shard.mu.Lock()
	delete(shard.misses, hash)
	shard.mu.Unlock()
}

func (g *HeaderGraph) fireAdded(header *model.ChainedHeader) {
	g.handlerMu.RLock()
	handlers := g.onAdded
	g.handlerMu.RUnlock()
	for _, handler := range handlers {
		g.safeFire(func() { handler(header) })
	}
}

func (g *HeaderGraph) fireInvalidated(hash chainhash.Hash) {
	g.handlerMu.RLock()
	handlers := g.onInvalidated
	g.handlerMu.RUnlock()
	for _, handler := range handlers {
		g.safeFire(func() { handler(hash) })
	}
}

// safeFire isolates handler failures from graph state.
func (g *HeaderGraph) safeFire(fire func()) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("header graph event handler panicked", zap.Any("panic", r))
		}
	}()
	fire()
}

// betterTip reports whether a beats b on total work, ties broken by lowest
// hash in canonical form.
func betterTip(a, b *model.ChainedHeader) bool {
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
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		if ah[i] != bh[i] {
			return ah[i] < bh[i]
		}
	}
	return false
}
