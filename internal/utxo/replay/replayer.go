// Package replay streams a block's transactions through the UTXO engine and
// fans the results out to ordered consumers, forward while connecting and in
// reverse while disconnecting.
package replay

import (
	"context"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/storage"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
)

// Replayer produces the ordered transaction stream for one block and
// direction. Forward replay resolves previous outputs from a store snapshot
// taken at stream start, seeding outputs created earlier in the same block;
// reverse replay reads them back from the rollback journal.
type Replayer struct {
	blockTxes storage.BlockTxesStorage
	utxo      store.Store
	logger    *zap.Logger
}

// NewReplayer builds a Replayer.
func NewReplayer(blockTxes storage.BlockTxesStorage, utxo store.Store, logger *zap.Logger) *Replayer {
	return &Replayer{blockTxes: blockTxes, utxo: utxo, logger: logger}
}

// Stream writes the block's transactions to out in replay order and returns
// once the block is exhausted or the context is canceled. The channel is not
// closed; the caller owns it.
func (r *Replayer) Stream(ctx context.Context, header *model.ChainedHeader, direction model.Direction, out chan<- *model.LoadedTx) error {
	r.logger.Debug("replaying block",
		zap.Stringer("block", header.Hash()),
		zap.Int32("height", header.Height),
		zap.Stringer("direction", direction))
	if direction == model.DirectionDisconnect {
		return r.streamReverse(ctx, header, out)
	}
	return r.streamForward(ctx, header, out)
}

func (r *Replayer) streamForward(ctx context.Context, header *model.ChainedHeader, out chan<- *model.LoadedTx) error {
	blockHash := header.Hash()
	entries, ok, err := r.blockTxes.TryReadBlockTransactions(blockHash)
	if err != nil {
		return err
	}
	if !ok {
		return &model.MissingDataError{Hash: blockHash}
	}

	snapshot, err := r.utxo.Snapshot()
	if err != nil {
		return err
	}
	defer snapshot.Release()

	resolver := newOutputResolver(snapshot, header)

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.Pruned {
			return &model.MissingDataError{Hash: blockHash}
		}

		tx := btcutil.NewTx(entry.Tx)
		tx.SetIndex(i)
		isCoinbase := i == 0 && blockchain.IsCoinBaseTx(entry.Tx)

		loaded := &model.LoadedTx{
			Tx:         tx,
			TxIndex:    uint32(i),
			IsCoinbase: isCoinbase,
			Block:      header,
		}
		if !isCoinbase {
			loaded.PrevOutputs = resolver.resolve(entry.Tx)
		}
		resolver.seed(*tx.Hash(), uint32(i), entry.Tx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- loaded:
		}
	}
	return nil
}

func (r *Replayer) streamReverse(ctx context.Context, header *model.ChainedHeader, out chan<- *model.LoadedTx) error {
	blockHash := header.Hash()
	entries, ok, err := r.blockTxes.TryReadBlockTransactions(blockHash)
	if err != nil {
		return err
	}
	if !ok {
		return &model.MissingDataError{Hash: blockHash}
	}

	journal, err := r.readJournal(header)
	if err != nil {
		return err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := entries[i]
		if entry.Pruned {
			return &model.MissingDataError{Hash: blockHash}
		}

		tx := btcutil.NewTx(entry.Tx)
		tx.SetIndex(i)
		isCoinbase := i == 0 && blockchain.IsCoinBaseTx(entry.Tx)

		loaded := &model.LoadedTx{
			Tx:         tx,
			TxIndex:    uint32(i),
			IsCoinbase: isCoinbase,
			Block:      header,
		}
		if !isCoinbase {
			row, ok := journal[uint32(i)]
			if !ok {
				return &model.CannotRollbackError{Block: blockHash, TxHash: *tx.Hash()}
			}
			loaded.PrevOutputs = row.PrevOutputs
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- loaded:
		}
	}
	return nil
}

// readJournal loads the committed per-height unminted rows from a snapshot,
// keyed by transaction index. It must not open a cursor: the step's own
// cursor already holds the store's write transaction.
func (r *Replayer) readJournal(header *model.ChainedHeader) (map[uint32]model.UnmintedTx, error) {
	snapshot, err := r.utxo.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snapshot.Release()

	rows, ok, err := snapshot.TryGetBlockUnmintedTxs(header.Height)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.CannotRollbackError{Block: header.Hash()}
	}
	journal := make(map[uint32]model.UnmintedTx, len(rows))
	for _, row := range rows {
		journal[row.TxIndex] = row
	}
	return journal, nil
}

// outputResolver resolves previous outputs against a snapshot, with a local
// overlay for outputs created earlier in the block being replayed.
type outputResolver struct {
	snapshot store.Reader
	header   *model.ChainedHeader
	local    map[chainhash.Hash]seededTx
}

type seededTx struct {
	txIndex uint32
	msg     *wire.MsgTx
}

func newOutputResolver(snapshot store.Reader, header *model.ChainedHeader) *outputResolver {
	return &outputResolver{
		snapshot: snapshot,
		header:   header,
		local:    make(map[chainhash.Hash]seededTx),
	}
}

func (r *outputResolver) seed(txHash chainhash.Hash, txIndex uint32, msg *wire.MsgTx) {
	r.local[txHash] = seededTx{txIndex: txIndex, msg: msg}
}

// resolve returns one entry per input. Entries the resolver cannot see stay
// nil; the engine's cursor is authoritative and rejects truly unknown spends.
func (r *outputResolver) resolve(msg *wire.MsgTx) []*model.PrevTxOutput {
	prevs := make([]*model.PrevTxOutput, len(msg.TxIn))
	for i, in := range msg.TxIn {
		op := in.PreviousOutPoint
		if seeded, ok := r.local[op.Hash]; ok {
			if int(op.Index) < len(seeded.msg.TxOut) {
				prevs[i] = &model.PrevTxOutput{
					Output: seeded.msg.TxOut[op.Index],
					UnspentTx: model.UnspentTx{
						TxHash:       op.Hash,
						BlockHeight:  r.header.Height,
						TxIndex:      seeded.txIndex,
						Version:      seeded.msg.Version,
						IsCoinbase:   seeded.txIndex == 0,
						OutputStates: model.NewOutputStates(len(seeded.msg.TxOut)),
					},
				}
			}
			continue
		}

		output, ok, err := r.snapshot.TryGetUnspentOutput(op)
		if err != nil || !ok {
			continue
		}
		owner, ok, err := r.snapshot.TryGetUnspentTx(op.Hash)
		if err != nil || !ok {
			continue
		}
		prevs[i] = &model.PrevTxOutput{Output: output, UnspentTx: *owner}
	}
	return prevs
}
