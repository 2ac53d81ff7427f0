package wallet

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

var watchedScript = []byte{0x76, 0xa9, 0x14, 0x01}

type captureFlush struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *captureFlush) flush(_ context.Context, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entries...)
	return nil
}

func (c *captureFlush) snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

func watchedTx(t *testing.T) (*model.ValidatableTx, chainhash.Hash) {
	t.Helper()

	msg := wire.NewMsgTx(1)
	msg.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0x05}, Index: 1}, Sequence: 0xffffffff})
	msg.AddTxOut(&wire.TxOut{Value: 70, PkScript: watchedScript})
	msg.AddTxOut(&wire.TxOut{Value: 30, PkScript: []byte{0x99}})

	header := model.NewChainedHeader(wire.BlockHeader{Nonce: 7, Bits: 0x207fffff}, 9, big.NewInt(1))
	tx := btcutil.NewTx(msg)
	tx.SetIndex(1)

	prev := &model.PrevTxOutput{
		Output: &wire.TxOut{Value: 120, PkScript: watchedScript},
		UnspentTx: model.UnspentTx{
			TxHash:       chainhash.Hash{0x05},
			BlockHeight:  2,
			OutputStates: model.NewOutputStates(2),
		},
	}
	vtx := &model.ValidatableTx{
		LoadedTx:         &model.LoadedTx{Tx: tx, TxIndex: 1, Block: header},
		FinalPrevOutputs: []*model.PrevTxOutput{prev},
	}
	return vtx, msg.TxHash()
}

func TestMonitor_DetectsCreditsAndDebitsOnConnect(t *testing.T) {
	t.Parallel()

	capture := &captureFlush{}
	monitor, err := NewMonitor(zap.NewNop(), [][]byte{watchedScript}, capture.flush)
	require.NoError(t, err)

	ctx := context.Background()
	monitor.Start(ctx)

	vtx, txHash := watchedTx(t)
	require.NoError(t, monitor.ProcessTx(ctx, model.DirectionConnect, vtx))
	monitor.Stop()

	entries := capture.snapshot()
	require.Len(t, entries, 2)

	// The watched output is a credit, the watched previous output a debit.
	credit, debit := entries[0], entries[1]
	require.True(t, credit.Credit)
	require.Equal(t, int64(70), credit.Value)
	require.Equal(t, wire.OutPoint{Hash: txHash, Index: 0}, credit.OutPoint)

	require.False(t, debit.Credit)
	require.Equal(t, int64(120), debit.Value)
	require.Equal(t, wire.OutPoint{Hash: chainhash.Hash{0x05}, Index: 1}, debit.OutPoint)
}

func TestMonitor_DisconnectInvertsEntries(t *testing.T) {
	t.Parallel()

	capture := &captureFlush{}
	monitor, err := NewMonitor(zap.NewNop(), [][]byte{watchedScript}, capture.flush)
	require.NoError(t, err)

	ctx := context.Background()
	monitor.Start(ctx)

	vtx, _ := watchedTx(t)
	require.NoError(t, monitor.ProcessTx(ctx, model.DirectionDisconnect, vtx))
	monitor.Stop()

	entries := capture.snapshot()
	require.Len(t, entries, 2)
	require.False(t, entries[0].Credit) // output rewound
	require.True(t, entries[1].Credit)  // previous output restored
}

func TestMonitor_IgnoresUnwatchedTx(t *testing.T) {
	t.Parallel()

	capture := &captureFlush{}
	monitor, err := NewMonitor(zap.NewNop(), [][]byte{{0xab}}, capture.flush)
	require.NoError(t, err)

	ctx := context.Background()
	monitor.Start(ctx)

	vtx, _ := watchedTx(t)
	require.NoError(t, monitor.ProcessTx(ctx, model.DirectionConnect, vtx))
	monitor.Stop()

	require.Empty(t, capture.snapshot())
}

func TestMonitor_RequiresFlushFunc(t *testing.T) {
	t.Parallel()

	_, err := NewMonitor(zap.NewNop(), nil, nil)
	require.Error(t, err)
}
