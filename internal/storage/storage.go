// Package storage defines the injected persistence services for chained
// headers and block transactions, together with the embedded and in-memory
// implementations used by the engine.
package storage

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// BlockStorage persists chained headers and consensus-invalid marks.
type BlockStorage interface {
	// TryAddChainedHeader stores the header, returning false if a header
	// with the same hash is already present.
	TryAddChainedHeader(header *model.ChainedHeader) (bool, error)
	// TryGetChainedHeader fetches a header by hash.
	TryGetChainedHeader(hash chainhash.Hash) (*model.ChainedHeader, bool, error)
	// ReadChainedHeaders returns every stored header, in no particular order.
	ReadChainedHeaders() ([]*model.ChainedHeader, error)
	// FindMaxTotalWork returns the non-invalid header with the greatest
	// total work, ties broken by lowest hash.
	FindMaxTotalWork() (*model.ChainedHeader, bool, error)
	// MarkBlockInvalid flags a header as consensus-invalid.
	MarkBlockInvalid(hash chainhash.Hash) error
	// IsBlockInvalid reports whether a header carries the invalid mark.
	IsBlockInvalid(hash chainhash.Hash) (bool, error)
}

// BlockTxesStorage persists the transactions of each block. Entries may be
// pruned down to positional placeholders; readers that need full data on a
// pruned entry get a MissingDataError.
type BlockTxesStorage interface {
	// TryAddBlockTransactions stores a block's transactions, returning
	// false if the block is already present.
	TryAddBlockTransactions(block chainhash.Hash, txs []*wire.MsgTx) (bool, error)
	// TryReadBlockTransactions returns the stored transactions in block
	// order, pruned entries included as placeholders.
	TryReadBlockTransactions(block chainhash.Hash) ([]model.BlockTx, bool, error)
	// ContainsBlock reports whether transactions for the block are stored.
	ContainsBlock(block chainhash.Hash) (bool, error)
	// TryGetTransaction fetches a single transaction by position.
	TryGetTransaction(block chainhash.Hash, index uint32) (*wire.MsgTx, bool, error)
	// BlockCount returns the number of stored blocks.
	BlockCount() (uint64, error)
	// PruneBlockTransactions replaces the listed transactions with pruned
	// placeholders, keeping the rest readable.
	PruneBlockTransactions(block chainhash.Hash, txIndexes []uint32) error
	// RemoveBlockTransactions drops the whole block entry.
	RemoveBlockTransactions(block chainhash.Hash) error
}
