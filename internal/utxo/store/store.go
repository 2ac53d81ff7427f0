// Package store provides the transactional key-value abstraction over the
// UTXO set: unspent transactions, unspent outputs, aggregate counters and the
// per-height spent/unminted journals that make reorgs possible.
package store

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// Store owns the UTXO state. All mutation goes through exclusive cursors;
// mutations become visible to readers atomically at commit and not at all
// after rollback.
type Store interface {
	// Begin returns a fresh cursor. The cursor claims store exclusivity
	// lazily, on its first operation.
	Begin() (Cursor, error)
	// Snapshot returns a consistent read-only view, unaffected by cursor
	// mutations until they commit.
	Snapshot() (Reader, error)
	Close() error
}

// Reader is a consistent read-only view of the store. Forward replay
// resolves previous outputs from it; reverse replay reads the committed
// rollback journal from it.
type Reader interface {
	TryGetUnspentTx(txHash chainhash.Hash) (*model.UnspentTx, bool, error)
	TryGetUnspentOutput(outpoint wire.OutPoint) (*wire.TxOut, bool, error)
	TryGetBlockUnmintedTxs(height int32) ([]model.UnmintedTx, bool, error)
	Release()
}

// Cursor is an owned exclusive transaction on the store. Commit and Rollback
// are terminal for the in-flight transaction; Reset discards any in-flight
// mutations and rearms the cursor for reuse, which is what the item pool's
// prepare hook calls.
type Cursor interface {
	TryGetUnspentTx(txHash chainhash.Hash) (*model.UnspentTx, bool, error)
	TryAddUnspentTx(tx *model.UnspentTx) (bool, error)
	TryUpdateUnspentTx(tx *model.UnspentTx) (bool, error)
	TryRemoveUnspentTx(txHash chainhash.Hash) (bool, error)

	TryGetUnspentOutput(outpoint wire.OutPoint) (*wire.TxOut, bool, error)
	TryAddUnspentOutput(outpoint wire.OutPoint, output *wire.TxOut) (bool, error)
	TryUpdateUnspentOutput(outpoint wire.OutPoint, output *wire.TxOut) (bool, error)
	TryRemoveUnspentOutput(outpoint wire.OutPoint) (bool, error)

	Counters() (model.Counters, error)
	SetCounters(counters model.Counters) error

	TryAddBlockSpentTxs(height int32, txs []model.SpentTx) (bool, error)
	TryGetBlockSpentTxs(height int32) ([]model.SpentTx, bool, error)
	TryRemoveBlockSpentTxs(height int32) (bool, error)

	TryAddBlockUnmintedTxs(height int32, txs []model.UnmintedTx) (bool, error)
	TryGetBlockUnmintedTxs(height int32) ([]model.UnmintedTx, bool, error)
	TryRemoveBlockUnmintedTxs(height int32) (bool, error)

	// Tip is the validated chain tip the UTXO set corresponds to.
	Tip() (chainhash.Hash, int32, bool, error)
	SetTip(hash chainhash.Hash, height int32) error

	// PrunedHeight is the highest height the pruner has finished with.
	PrunedHeight() (int32, bool, error)
	SetPrunedHeight(height int32) error

	Commit() error
	Rollback() error
	Reset() error
}
