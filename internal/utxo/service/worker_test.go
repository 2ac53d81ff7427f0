package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/replay"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
)

var errPow = errors.New("hash above target")

type stubRules struct{ err error }

func (s stubRules) CheckProofOfWork(*wire.BlockHeader) error { return s.err }

// testChain builds a linked chain of the given length.
func testChain(t *testing.T, length int) *model.Chain {
	t.Helper()
	headers := make([]*model.ChainedHeader, 0, length)
	prev := chainhash.Hash{}
	for i := 0; i < length; i++ {
		header := wire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Timestamp: time.Unix(1231006505, 0),
			Bits:      0x207fffff,
			Nonce:     uint32(i),
		}
		chained := model.NewChainedHeader(header, int32(i), big.NewInt(int64(i)+1))
		headers = append(headers, chained)
		prev = chained.Hash()
	}
	chain, err := model.NewChain(headers)
	require.NoError(t, err)
	return chain
}

func newTestWorker(t *testing.T, ctrl *gomock.Controller, utxo store.Store) (*ChainWorker, *MockHeaderIndex, *MockStepRunner, *MockBlockPruner, *MockChainWorkerMetrics) {
	t.Helper()

	graph := NewMockHeaderIndex(ctrl)
	steps := NewMockStepRunner(ctrl)
	pruner := NewMockBlockPruner(ctrl)
	metrics := NewMockChainWorkerMetrics(ctrl)

	worker, err := NewChainWorker(graph, steps, nil, pruner, utxo, metrics, zap.NewNop(), nil)
	require.NoError(t, err)
	worker.sleep = func(context.Context, time.Duration) error { return nil }
	worker.sleepDuration = time.Millisecond
	worker.longSleepDuration = time.Millisecond
	return worker, graph, steps, pruner, metrics
}

func TestChainWorker_run(t *testing.T) {
	t.Parallel()

	t.Run("connects toward the best tip from scratch", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		chain := testChain(t, 2)
		utxo := store.NewMemoryStore()
		worker, graph, steps, _, metrics := newTestWorker(t, ctrl, utxo)
		ctx := context.Background()

		graph.EXPECT().MaxTotalWorkTip().Return(chain.Tip(), true)
		graph.EXPECT().ChainFrom(chain.Tip()).Return(chain, nil)

		genesis, _ := chain.AtHeight(0)
		tip := chain.Tip()
		steps.EXPECT().RunStep(gomock.Any(), gomock.Any(), model.DirectionConnect, genesis).
			Return(replay.StepResult{TxCount: 1}, nil)
		steps.EXPECT().RunStep(gomock.Any(), gomock.Any(), model.DirectionConnect, tip).
			Return(replay.StepResult{TxCount: 2}, nil)

		metrics.EXPECT().ObserveStep(nil, model.DirectionConnect, 1, gomock.Any())
		metrics.EXPECT().ObserveStep(nil, model.DirectionConnect, 2, gomock.Any())
		metrics.EXPECT().ObserveTip(int32(0))
		metrics.EXPECT().ObserveTip(int32(1))
		metrics.EXPECT().ObserveCounters(gomock.Any()).Times(2)

		require.NoError(t, worker.run(ctx))
	})

	t.Run("idles when the tip is already validated", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		chain := testChain(t, 3)
		utxo := store.NewMemoryStore()

		cursor, err := utxo.Begin()
		require.NoError(t, err)
		require.NoError(t, cursor.SetTip(chain.Tip().Hash(), chain.Height()))
		require.NoError(t, cursor.Commit())

		worker, graph, _, _, _ := newTestWorker(t, ctrl, utxo)
		ctx := context.Background()

		graph.EXPECT().Get(chain.Tip().Hash()).Return(chain.Tip(), true)
		graph.EXPECT().ChainFrom(chain.Tip()).Return(chain, nil)
		graph.EXPECT().MaxTotalWorkTip().Return(chain.Tip(), true)

		require.NoError(t, worker.run(ctx))
	})

	t.Run("marks block invalid on validation failure", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		chain := testChain(t, 1)
		utxo := store.NewMemoryStore()
		worker, graph, steps, _, metrics := newTestWorker(t, ctrl, utxo)
		ctx := context.Background()

		genesis := chain.Tip()
		vErr := &model.ValidationError{Block: genesis.Hash(), Reason: "double spend"}

		graph.EXPECT().MaxTotalWorkTip().Return(genesis, true)
		graph.EXPECT().ChainFrom(genesis).Return(chain, nil)
		steps.EXPECT().RunStep(gomock.Any(), gomock.Any(), model.DirectionConnect, genesis).
			Return(replay.StepResult{}, vErr)
		metrics.EXPECT().ObserveStep(vErr, model.DirectionConnect, 0, gomock.Any())
		graph.EXPECT().MarkInvalid(genesis.Hash()).Return(nil)

		err := worker.run(ctx)
		require.Error(t, err)
		require.True(t, model.IsValidation(err))
	})

	t.Run("rejects a block failing proof of work", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		chain := testChain(t, 1)
		utxo := store.NewMemoryStore()
		worker, graph, _, _, metrics := newTestWorker(t, ctrl, utxo)
		worker.rules = stubRules{err: errPow}
		ctx := context.Background()

		genesis := chain.Tip()
		graph.EXPECT().MaxTotalWorkTip().Return(genesis, true)
		graph.EXPECT().ChainFrom(genesis).Return(chain, nil)
		metrics.EXPECT().ObserveStep(gomock.Any(), model.DirectionConnect, 0, gomock.Any())
		graph.EXPECT().MarkInvalid(genesis.Hash()).Return(nil)

		err := worker.run(ctx)
		require.True(t, model.IsValidation(err))
	})

	t.Run("prunes after advancing when a tip exists", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		chain := testChain(t, 2)
		utxo := store.NewMemoryStore()
		worker, graph, steps, pruner, metrics := newTestWorker(t, ctrl, utxo)
		ctx := context.Background()

		// Validated tip is genesis; one connect step remains.
		genesis, _ := chain.AtHeight(0)
		cursor, err := utxo.Begin()
		require.NoError(t, err)
		require.NoError(t, cursor.SetTip(genesis.Hash(), 0))
		require.NoError(t, cursor.Commit())

		genesisChain, err := model.NewChain([]*model.ChainedHeader{genesis})
		require.NoError(t, err)

		tip := chain.Tip()
		graph.EXPECT().Get(genesis.Hash()).Return(genesis, true).Times(2)
		graph.EXPECT().ChainFrom(genesis).Return(genesisChain, nil).Times(2)
		graph.EXPECT().MaxTotalWorkTip().Return(tip, true)
		graph.EXPECT().ChainFrom(tip).Return(chain, nil)

		steps.EXPECT().RunStep(gomock.Any(), gomock.Any(), model.DirectionConnect, tip).
			Return(replay.StepResult{TxCount: 1}, nil)
		metrics.EXPECT().ObserveStep(nil, model.DirectionConnect, 1, gomock.Any())
		metrics.EXPECT().ObserveTip(tip.Height)
		metrics.EXPECT().ObserveCounters(gomock.Any())

		pruner.EXPECT().Prune(gomock.Any(), gomock.Any(), genesisChain).Return(0, nil)

		require.NoError(t, worker.run(ctx))
	})
}
