// Package engine implements the UTXO state transition: minting and spending
// outputs while a block connects, unminting and unspending while it
// disconnects. One session applies exactly one block through one cursor; any
// failure aborts the step with no partial effects escaping the cursor.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
	"github.com/goodnatureofminers/chainstate7000/pkg/safe"
)

// Metrics observes engine operations. A nil Metrics disables instrumentation.
type Metrics interface {
	ObserveApplyTx(err error, direction model.Direction, started time.Time)
	ObserveSpend(err error)
	ObserveMint(err error, outputs int)
}

// Engine drives UTXO state transitions on store cursors.
type Engine struct {
	logger  *zap.Logger
	metrics Metrics
}

// New builds an Engine. metrics may be nil.
func New(logger *zap.Logger, metrics Metrics) *Engine {
	return &Engine{logger: logger, metrics: metrics}
}

func (e *Engine) observeApplyTx(err error, direction model.Direction, started time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveApplyTx(err, direction, started)
}

func (e *Engine) observeSpend(err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveSpend(err)
}

func (e *Engine) observeMint(err error, outputs int) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveMint(err, outputs)
}

// ConnectSession applies one block's transactions forward onto a cursor.
type ConnectSession struct {
	engine   *Engine
	cursor   store.Cursor
	header   *model.ChainedHeader
	counters model.Counters
	spent    []model.SpentTx
	unminted []model.UnmintedTx
}

// BeginConnect opens a forward session for the given block.
func (e *Engine) BeginConnect(cursor store.Cursor, header *model.ChainedHeader) (*ConnectSession, error) {
	counters, err := cursor.Counters()
	if err != nil {
		return nil, err
	}
	return &ConnectSession{engine: e, cursor: cursor, header: header, counters: counters}, nil
}

// ApplyTx spends the transaction's inputs and mints its outputs, in block
// order. Genesis transactions and the frozen duplicate coinbases skip the
// mint step.
func (s *ConnectSession) ApplyTx(ctx context.Context, loaded *model.LoadedTx) (vtx *model.ValidatableTx, err error) {
	started := time.Now()
	defer func() {
		s.engine.observeApplyTx(err, model.DirectionConnect, started)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := loaded.Tx.MsgTx()
	txHash := *loaded.Tx.Hash()
	height := s.header.Height

	var prevOutputs []*model.PrevTxOutput
	if !loaded.IsCoinbase {
		prevOutputs = make([]*model.PrevTxOutput, 0, len(tx.TxIn))
		for _, in := range tx.TxIn {
			prev, err := s.spend(in.PreviousOutPoint)
			if err != nil {
				return nil, err
			}
			prevOutputs = append(prevOutputs, prev)
		}
		s.unminted = append(s.unminted, model.UnmintedTx{
			TxHash:      txHash,
			TxIndex:     loaded.TxIndex,
			PrevOutputs: prevOutputs,
		})
	}

	if height > 0 {
		if loaded.IsCoinbase && isDuplicateCoinbase(height, txHash) {
			s.engine.logger.Info("skipping mint of duplicate coinbase",
				zap.Stringer("tx", &txHash), zap.Int32("height", height))
		} else if err := s.mint(txHash, loaded, tx); err != nil {
			return nil, err
		}
		s.counters.TotalTxCount++
		if !loaded.IsCoinbase {
			s.counters.TotalInputCount += int64(len(tx.TxIn))
		}
	}

	return &model.ValidatableTx{LoadedTx: loaded, FinalPrevOutputs: prevOutputs}, nil
}

// Finalize writes the per-height journals, counters and the advanced tip.
// The caller still commits the cursor.
func (s *ConnectSession) Finalize() error {
	height := s.header.Height
	if added, err := s.cursor.TryAddBlockSpentTxs(height, s.spent); err != nil {
		return err
	} else if !added {
		return &model.CorruptionError{Op: "connect finalize", Detail: fmt.Sprintf("spent txs for height %d already present", height)}
	}
	if added, err := s.cursor.TryAddBlockUnmintedTxs(height, s.unminted); err != nil {
		return err
	} else if !added {
		return &model.CorruptionError{Op: "connect finalize", Detail: fmt.Sprintf("unminted txs for height %d already present", height)}
	}
	if err := s.cursor.SetCounters(s.counters); err != nil {
		return err
	}
	return s.cursor.SetTip(s.header.Hash(), height)
}

// Counters returns the running counters of the session.
func (s *ConnectSession) Counters() model.Counters {
	return s.counters
}

func (s *ConnectSession) spend(outpoint wire.OutPoint) (prev *model.PrevTxOutput, err error) {
	defer func() {
		s.engine.observeSpend(err)
	}()

	blockHash := s.header.Hash()

	unspent, ok, err := s.cursor.TryGetUnspentTx(outpoint.Hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.ValidationError{Block: blockHash, Reason: fmt.Sprintf("spend of unknown or fully spent tx %s", outpoint.Hash)}
	}

	idx32, err := safe.Int32(outpoint.Index)
	if err != nil {
		return nil, &model.CorruptionError{Op: "spend", Detail: fmt.Sprintf("outpoint index %d overflows", outpoint.Index)}
	}
	idx := int(idx32)
	if idx >= unspent.OutputStates.Len() {
		return nil, &model.ValidationError{Block: blockHash, Reason: fmt.Sprintf("outpoint %s out of range (%d outputs)", outpoint, unspent.OutputStates.Len())}
	}
	if !unspent.OutputStates.Unspent(idx) {
		return nil, &model.ValidationError{Block: blockHash, Reason: fmt.Sprintf("double spend of %s", outpoint)}
	}

	snapshot := *unspent.Clone()

	unspent.OutputStates.MarkSpent(idx)
	s.counters.UnspentOutputCount--

	if unspent.OutputStates.AllSpent() {
		s.spent = append(s.spent, model.SpentTx{
			TxHash:      unspent.TxHash,
			BlockHeight: unspent.BlockHeight,
			TxIndex:     unspent.TxIndex,
			OutputCount: uint32(unspent.OutputStates.Len()),
			IsCoinbase:  unspent.IsCoinbase,
		})
		s.counters.UnspentTxCount--
		if removed, err := s.cursor.TryRemoveUnspentTx(outpoint.Hash); err != nil {
			return nil, err
		} else if !removed {
			return nil, &model.CorruptionError{Op: "spend", Detail: fmt.Sprintf("unspent tx %s vanished mid-spend", outpoint.Hash)}
		}
	} else if updated, err := s.cursor.TryUpdateUnspentTx(unspent); err != nil {
		return nil, err
	} else if !updated {
		return nil, &model.CorruptionError{Op: "spend", Detail: fmt.Sprintf("unspent tx %s vanished mid-spend", outpoint.Hash)}
	}

	output, ok, err := s.cursor.TryGetUnspentOutput(outpoint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.CorruptionError{Op: "spend", Detail: fmt.Sprintf("output record %s missing for unspent tx", outpoint)}
	}
	if unspent.OutputStates.AllSpent() {
		// The tx is gone; its output records go with it. The journal row
		// keeps everything reverse replay needs.
		for i := 0; i < unspent.OutputStates.Len(); i++ {
			op := wire.OutPoint{Hash: outpoint.Hash, Index: uint32(i)}
			if _, err := s.cursor.TryRemoveUnspentOutput(op); err != nil {
				return nil, err
			}
		}
	}

	return &model.PrevTxOutput{Output: output, UnspentTx: snapshot}, nil
}

func (s *ConnectSession) mint(txHash chainhash.Hash, loaded *model.LoadedTx, tx *wire.MsgTx) (err error) {
	defer func() {
		s.engine.observeMint(err, len(tx.TxOut))
	}()

	blockHash := s.header.Hash()

	unspent := &model.UnspentTx{
		TxHash:       txHash,
		BlockHeight:  s.header.Height,
		TxIndex:      loaded.TxIndex,
		Version:      tx.Version,
		IsCoinbase:   loaded.IsCoinbase,
		OutputStates: model.NewOutputStates(len(tx.TxOut)),
	}
	if added, err := s.cursor.TryAddUnspentTx(unspent); err != nil {
		return err
	} else if !added {
		s.engine.logger.Error("duplicate transaction mint rejected",
			zap.Stringer("tx", &txHash), zap.Int32("height", s.header.Height))
		return &model.ValidationError{Block: blockHash, Reason: fmt.Sprintf("duplicate mint of tx %s", txHash)}
	}

	for i, out := range tx.TxOut {
		op := wire.OutPoint{Hash: txHash, Index: uint32(i)}
		if added, err := s.cursor.TryAddUnspentOutput(op, out); err != nil {
			return err
		} else if !added {
			s.engine.logger.Error("duplicate output mint rejected", zap.Stringer("outpoint", &op))
			return &model.ValidationError{Block: blockHash, Reason: fmt.Sprintf("duplicate mint of output %s", op)}
		}
	}

	n := int64(len(tx.TxOut))
	s.counters.UnspentTxCount++
	s.counters.UnspentOutputCount += n
	s.counters.TotalOutputCount += n
	return nil
}

// RollbackSession unwinds one block's transactions off a cursor. Transactions
// arrive in reverse block order; inputs are unspent in reverse input order.
type RollbackSession struct {
	engine   *Engine
	cursor   store.Cursor
	header   *model.ChainedHeader
	counters model.Counters
}

// BeginRollback opens a reverse session for the given block.
func (e *Engine) BeginRollback(cursor store.Cursor, header *model.ChainedHeader) (*RollbackSession, error) {
	counters, err := cursor.Counters()
	if err != nil {
		return nil, err
	}
	return &RollbackSession{engine: e, cursor: cursor, header: header, counters: counters}, nil
}

// ApplyTx unmints the transaction and unspends its inputs. The returned
// ValidatableTx carries the restored previous outputs in input order for
// wallet rewinding.
func (s *RollbackSession) ApplyTx(ctx context.Context, loaded *model.LoadedTx) (vtx *model.ValidatableTx, err error) {
	started := time.Now()
	defer func() {
		s.engine.observeApplyTx(err, model.DirectionDisconnect, started)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := loaded.Tx.MsgTx()
	txHash := *loaded.Tx.Hash()
	height := s.header.Height

	if height > 0 {
		if loaded.IsCoinbase && isDuplicateCoinbase(height, txHash) {
			s.engine.logger.Info("skipping unmint of duplicate coinbase",
				zap.Stringer("tx", &txHash), zap.Int32("height", height))
		} else if err := s.unmint(txHash, tx); err != nil {
			return nil, err
		}
		s.counters.TotalTxCount--
		if !loaded.IsCoinbase {
			s.counters.TotalInputCount -= int64(len(tx.TxIn))
		}
	}

	if !loaded.IsCoinbase {
		if len(loaded.PrevOutputs) != len(tx.TxIn) {
			return nil, &model.CannotRollbackError{Block: s.header.Hash(), TxHash: txHash}
		}
		for i := len(tx.TxIn) - 1; i >= 0; i-- {
			if err := s.unspend(tx.TxIn[i].PreviousOutPoint, loaded.PrevOutputs[i]); err != nil {
				return nil, err
			}
		}
	}

	return &model.ValidatableTx{LoadedTx: loaded, FinalPrevOutputs: loaded.PrevOutputs}, nil
}

// Finalize drops the block's journals, writes counters and moves the tip to
// the parent. The caller still commits the cursor.
func (s *RollbackSession) Finalize() error {
	height := s.header.Height
	if removed, err := s.cursor.TryRemoveBlockSpentTxs(height); err != nil {
		return err
	} else if !removed {
		return &model.CorruptionError{Op: "rollback finalize", Detail: fmt.Sprintf("spent txs for height %d missing", height)}
	}
	if removed, err := s.cursor.TryRemoveBlockUnmintedTxs(height); err != nil {
		return err
	} else if !removed {
		return &model.CorruptionError{Op: "rollback finalize", Detail: fmt.Sprintf("unminted txs for height %d missing", height)}
	}
	if err := s.cursor.SetCounters(s.counters); err != nil {
		return err
	}
	return s.cursor.SetTip(s.header.PrevHash(), height-1)
}

// Counters returns the running counters of the session.
func (s *RollbackSession) Counters() model.Counters {
	return s.counters
}

func (s *RollbackSession) unmint(txHash chainhash.Hash, tx *wire.MsgTx) error {
	unspent, ok, err := s.cursor.TryGetUnspentTx(txHash)
	if err != nil {
		return err
	}
	if !ok {
		// The record is gone and its rollback bookkeeping with it.
		return &model.CannotRollbackError{Block: s.header.Hash(), TxHash: txHash}
	}
	if !unspent.OutputStates.AllUnspent() {
		return &model.CorruptionError{Op: "unmint", Detail: fmt.Sprintf("tx %s still has spent outputs", txHash)}
	}

	if removed, err := s.cursor.TryRemoveUnspentTx(txHash); err != nil {
		return err
	} else if !removed {
		return &model.CorruptionError{Op: "unmint", Detail: fmt.Sprintf("unspent tx %s vanished mid-unmint", txHash)}
	}
	for i := range tx.TxOut {
		op := wire.OutPoint{Hash: txHash, Index: uint32(i)}
		if removed, err := s.cursor.TryRemoveUnspentOutput(op); err != nil {
			return err
		} else if !removed {
			return &model.CorruptionError{Op: "unmint", Detail: fmt.Sprintf("output record %s missing", op)}
		}
	}

	n := int64(len(tx.TxOut))
	s.counters.UnspentTxCount--
	s.counters.UnspentOutputCount -= n
	s.counters.TotalOutputCount -= n
	return nil
}

func (s *RollbackSession) unspend(outpoint wire.OutPoint, prev *model.PrevTxOutput) error {
	if prev == nil {
		return &model.CannotRollbackError{Block: s.header.Hash(), TxHash: outpoint.Hash}
	}

	unspent, ok, err := s.cursor.TryGetUnspentTx(outpoint.Hash)
	if err != nil {
		return err
	}
	recreated := false
	if !ok {
		// Fully spent earlier: rebuild the record from the journal snapshot
		// with every output spent, then restore the target below.
		base := prev.UnspentTx
		states := model.NewOutputStates(base.OutputStates.Len())
		for i := 0; i < states.Len(); i++ {
			states.MarkSpent(i)
		}
		unspent = &model.UnspentTx{
			TxHash:       outpoint.Hash,
			BlockHeight:  base.BlockHeight,
			TxIndex:      base.TxIndex,
			Version:      base.Version,
			IsCoinbase:   base.IsCoinbase,
			OutputStates: states,
		}
		recreated = true
	}

	idx32, err := safe.Int32(outpoint.Index)
	if err != nil {
		return &model.CorruptionError{Op: "unspend", Detail: fmt.Sprintf("outpoint index %d overflows", outpoint.Index)}
	}
	idx := int(idx32)
	if idx >= unspent.OutputStates.Len() {
		return &model.CorruptionError{Op: "unspend", Detail: fmt.Sprintf("outpoint %s out of range (%d outputs)", outpoint, unspent.OutputStates.Len())}
	}
	if unspent.OutputStates.Unspent(idx) {
		return &model.CorruptionError{Op: "unspend", Detail: fmt.Sprintf("output %s is not spent", outpoint)}
	}

	unspent.OutputStates.MarkUnspent(idx)
	s.counters.UnspentOutputCount++

	if recreated {
		// Fully-spent back to partially-spent.
		s.counters.UnspentTxCount++
		if added, err := s.cursor.TryAddUnspentTx(unspent); err != nil {
			return err
		} else if !added {
			return &model.CorruptionError{Op: "unspend", Detail: fmt.Sprintf("unspent tx %s reappeared mid-unspend", outpoint.Hash)}
		}
	} else if updated, err := s.cursor.TryUpdateUnspentTx(unspent); err != nil {
		return err
	} else if !updated {
		return &model.CorruptionError{Op: "unspend", Detail: fmt.Sprintf("unspent tx %s vanished mid-unspend", outpoint.Hash)}
	}

	if _, ok, err := s.cursor.TryGetUnspentOutput(outpoint); err != nil {
		return err
	} else if !ok {
		if added, err := s.cursor.TryAddUnspentOutput(outpoint, prev.Output); err != nil {
			return err
		} else if !added {
			return &model.CorruptionError{Op: "unspend", Detail: fmt.Sprintf("output record %s reappeared mid-unspend", outpoint)}
		}
	}
	return nil
}
