// Package wallet implements the wallet-monitor consumer of the replay
// stream: it watches a set of script pubkeys and records credits and debits
// as blocks connect and disconnect.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/pkg/batcher"
)

const (
	entryFlushThreshold = 500
	entryFlushInterval  = 2 * time.Second
	entryFlushRPS       = 10
)

// Entry is one detected wallet movement. Credit reports whether the wallet
// balance grows: a watched output on connect, or a watched previous output
// restored on disconnect.
type Entry struct {
	TxHash    chainhash.Hash
	Block     chainhash.Hash
	Height    int32
	Direction model.Direction
	OutPoint  wire.OutPoint
	Value     int64
	Credit    bool
}

// FlushFunc persists a batch of detected entries.
type FlushFunc func(ctx context.Context, entries []Entry) error

// Monitor is a pipeline sink that matches transactions against watched
// scripts and batches the resulting entries.
type Monitor struct {
	logger  *zap.Logger
	watched map[string]struct{}
	batch   *batcher.Batcher[Entry]
}

// NewMonitor builds a Monitor for the given watched script pubkeys.
func NewMonitor(logger *zap.Logger, watchedScripts [][]byte, flush FlushFunc) (*Monitor, error) {
	if flush == nil {
		return nil, errors.New("wallet monitor flush func is required")
	}
	watched := make(map[string]struct{}, len(watchedScripts))
	for _, script := range watchedScripts {
		watched[string(script)] = struct{}{}
	}
	m := &Monitor{logger: logger, watched: watched}
	m.batch = batcher.New[Entry](
		logger.Named("entryBatcher"),
		func(ctx context.Context, entries []Entry) error { return flush(ctx, entries) },
		entryFlushThreshold,
		entryFlushInterval,
		entryFlushRPS,
	)
	return m, nil
}

// Start begins background flushing.
func (m *Monitor) Start(ctx context.Context) {
	m.batch.Start(ctx)
}

// Stop flushes and stops background flushing.
func (m *Monitor) Stop() {
	m.batch.Stop()
}

func (m *Monitor) Name() string {
	return "wallet-monitor"
}

// ProcessTx scans one replayed transaction. On connect, watched outputs are
// credits and watched previous outputs debits; a disconnect inverts both.
func (m *Monitor) ProcessTx(ctx context.Context, direction model.Direction, tx *model.ValidatableTx) error {
	if len(m.watched) == 0 {
		return nil
	}

	txHash := *tx.Tx.Hash()
	blockHash := tx.Block.Hash()
	connect := direction == model.DirectionConnect

	for i, out := range tx.Tx.MsgTx().TxOut {
		if _, ok := m.watched[string(out.PkScript)]; !ok {
			continue
		}
		entry := Entry{
			TxHash:    txHash,
			Block:     blockHash,
			Height:    tx.Block.Height,
			Direction: direction,
			OutPoint:  wire.OutPoint{Hash: txHash, Index: uint32(i)},
			Value:     out.Value,
			Credit:    connect,
		}
		if err := m.batch.Add(ctx, entry); err != nil {
			return err
		}
	}

	for i, prev := range tx.FinalPrevOutputs {
		if prev == nil || prev.Output == nil {
			continue
		}
		if _, ok := m.watched[string(prev.Output.PkScript)]; !ok {
			continue
		}
		entry := Entry{
			TxHash:    txHash,
			Block:     blockHash,
			Height:    tx.Block.Height,
			Direction: direction,
			OutPoint:  tx.Tx.MsgTx().TxIn[i].PreviousOutPoint,
			Value:     prev.Output.Value,
			Credit:    !connect,
		}
		if err := m.batch.Add(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
