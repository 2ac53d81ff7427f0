package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
)

func coinbaseTx(tag byte, values ...int64) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
		SignatureScript:  []byte{0x01, tag},
		Sequence:         0xffffffff,
	})
	for _, v := range values {
		tx.AddTxOut(&wire.TxOut{Value: v, PkScript: []byte{0x51}})
	}
	return tx
}

func spendingTx(prevs []wire.OutPoint, values ...int64) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	for _, prev := range prevs {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: prev, Sequence: 0xffffffff})
	}
	for _, v := range values {
		tx.AddTxOut(&wire.TxOut{Value: v, PkScript: []byte{0x52}})
	}
	return tx
}

func blockAt(t *testing.T, prev chainhash.Hash, height int32, txs ...*wire.MsgTx) (*model.ChainedHeader, []*model.LoadedTx) {
	t.Helper()

	header := wire.BlockHeader{
		Version:   1,
		PrevBlock: prev,
		Timestamp: time.Unix(1231006505, 0).Add(time.Duration(height) * 10 * time.Minute),
		Bits:      0x207fffff,
		Nonce:     uint32(height),
	}
	chained := model.NewChainedHeader(header, height, big.NewInt(int64(height)+1))

	loaded := make([]*model.LoadedTx, 0, len(txs))
	for i, tx := range txs {
		wrapped := btcutil.NewTx(tx)
		wrapped.SetIndex(i)
		loaded = append(loaded, &model.LoadedTx{
			Tx:         wrapped,
			TxIndex:    uint32(i),
			IsCoinbase: i == 0 && blockchain.IsCoinBaseTx(tx),
			Block:      chained,
		})
	}
	return chained, loaded
}

// connectBlock applies a block through a fresh session and commits.
func connectBlock(t *testing.T, eng *Engine, cursor store.Cursor, header *model.ChainedHeader, txs []*model.LoadedTx) {
	t.Helper()
	ctx := context.Background()

	session, err := eng.BeginConnect(cursor, header)
	require.NoError(t, err)
	for _, tx := range txs {
		_, err := session.ApplyTx(ctx, tx)
		require.NoError(t, err)
	}
	require.NoError(t, session.Finalize())
	require.NoError(t, cursor.Commit())
	require.NoError(t, cursor.Reset())
}

// rollbackBlock reads the journal like the reverse replayer would, unwinds
// the block through a session and commits.
func rollbackBlock(t *testing.T, eng *Engine, cursor store.Cursor, header *model.ChainedHeader, txs []*model.LoadedTx) {
	t.Helper()
	ctx := context.Background()

	journal, ok, err := cursor.TryGetBlockUnmintedTxs(header.Height)
	require.NoError(t, err)
	require.True(t, ok)
	byIndex := make(map[uint32][]*model.PrevTxOutput, len(journal))
	for _, row := range journal {
		byIndex[row.TxIndex] = row.PrevOutputs
	}

	session, err := eng.BeginRollback(cursor, header)
	require.NoError(t, err)
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		tx.PrevOutputs = byIndex[tx.TxIndex]
		_, err := session.ApplyTx(ctx, tx)
		require.NoError(t, err)
	}
	require.NoError(t, session.Finalize())
	require.NoError(t, cursor.Commit())
	require.NoError(t, cursor.Reset())
}

func counters(t *testing.T, cursor store.Cursor) model.Counters {
	t.Helper()
	c, err := cursor.Counters()
	require.NoError(t, err)
	require.NoError(t, cursor.Reset())
	return c
}

func TestConnect_GenesisOnly(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	header, txs := blockAt(t, chainhash.Hash{}, 0, coinbaseTx(0, 50e8))
	connectBlock(t, eng, cursor, header, txs)

	require.Equal(t, model.Counters{}, counters(t, cursor))

	hash, height, ok, err := cursor.Tip()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, header.Hash(), hash)
	require.Equal(t, int32(0), height)
}

func TestConnect_SinglePostGenesisBlock(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	genesis, genesisTxs := blockAt(t, chainhash.Hash{}, 0, coinbaseTx(0, 50e8))
	connectBlock(t, eng, cursor, genesis, genesisTxs)

	header, txs := blockAt(t, genesis.Hash(), 1, coinbaseTx(1, 10, 5))
	connectBlock(t, eng, cursor, header, txs)

	c := counters(t, cursor)
	require.Equal(t, int64(1), c.UnspentTxCount)
	require.Equal(t, int64(2), c.UnspentOutputCount)
	require.Equal(t, int64(1), c.TotalTxCount)
	require.Equal(t, int64(2), c.TotalOutputCount)

	coinbaseHash := txs[0].Tx.MsgTx().TxHash()
	record, ok, err := cursor.TryGetUnspentTx(coinbaseHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, record.IsCoinbase)
	require.True(t, record.OutputStates.AllUnspent())
	require.NoError(t, cursor.Reset())
}

func TestSpendThenRollback(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	genesis, genesisTxs := blockAt(t, chainhash.Hash{}, 0, coinbaseTx(0, 50e8))
	connectBlock(t, eng, cursor, genesis, genesisTxs)

	mint := coinbaseTx(1, 10, 5)
	block1, block1Txs := blockAt(t, genesis.Hash(), 1, mint)
	connectBlock(t, eng, cursor, block1, block1Txs)

	mintHash := mint.TxHash()
	spender := spendingTx([]wire.OutPoint{{Hash: mintHash, Index: 0}}, 10)
	block2, block2Txs := blockAt(t, block1.Hash(), 2, coinbaseTx(2, 50e8), spender)
	connectBlock(t, eng, cursor, block2, block2Txs)

	c := counters(t, cursor)
	require.Equal(t, int64(3), c.UnspentOutputCount) // [5] + coinbase2 + spender out
	record, ok, err := cursor.TryGetUnspentTx(mintHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, record.OutputStates.Unspent(0))
	require.True(t, record.OutputStates.Unspent(1))
	require.NoError(t, cursor.Reset())

	rollbackBlock(t, eng, cursor, block2, block2Txs)

	c = counters(t, cursor)
	require.Equal(t, int64(1), c.UnspentTxCount)
	require.Equal(t, int64(2), c.UnspentOutputCount)

	record, ok, err = cursor.TryGetUnspentTx(mintHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, record.OutputStates.Unspent(0))
	require.True(t, record.OutputStates.Unspent(1))
	require.NoError(t, cursor.Reset())
}

func TestConnect_DoubleSpendRejected(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	genesis, genesisTxs := blockAt(t, chainhash.Hash{}, 0, coinbaseTx(0, 50e8))
	connectBlock(t, eng, cursor, genesis, genesisTxs)

	mint := coinbaseTx(1, 10)
	block1, block1Txs := blockAt(t, genesis.Hash(), 1, mint)
	connectBlock(t, eng, cursor, block1, block1Txs)

	outpoint := wire.OutPoint{Hash: mint.TxHash(), Index: 0}
	doubleSpend := spendingTx([]wire.OutPoint{outpoint, outpoint}, 9)
	block2, block2Txs := blockAt(t, block1.Hash(), 2, coinbaseTx(2, 50e8), doubleSpend)

	session, err := eng.BeginConnect(cursor, block2)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = session.ApplyTx(ctx, block2Txs[0])
	require.NoError(t, err)
	_, err = session.ApplyTx(ctx, block2Txs[1])
	require.Error(t, err)
	require.True(t, model.IsValidation(err))

	require.NoError(t, cursor.Rollback())
	require.NoError(t, cursor.Reset())

	// Nothing escaped the aborted step.
	c := counters(t, cursor)
	require.Equal(t, int64(1), c.UnspentTxCount)
	require.Equal(t, int64(1), c.UnspentOutputCount)
}

func TestConnect_SpendOfUnknownTxRejected(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	genesis, genesisTxs := blockAt(t, chainhash.Hash{}, 0, coinbaseTx(0, 50e8))
	connectBlock(t, eng, cursor, genesis, genesisTxs)

	ghost := spendingTx([]wire.OutPoint{{Hash: chainhash.Hash{0xde, 0xad}, Index: 0}}, 1)
	block1, block1Txs := blockAt(t, genesis.Hash(), 1, coinbaseTx(1, 50e8), ghost)

	session, err := eng.BeginConnect(cursor, block1)
	require.NoError(t, err)
	_, err = session.ApplyTx(context.Background(), block1Txs[0])
	require.NoError(t, err)
	_, err = session.ApplyTx(context.Background(), block1Txs[1])
	require.True(t, model.IsValidation(err))
	require.NoError(t, cursor.Rollback())
}

func TestConnect_DuplicateCoinbaseCarveOut(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	frozen := duplicateCoinbases[91722]

	// Pre-seed the earlier instance the way its own block would have.
	earlier := &model.UnspentTx{
		TxHash:       frozen,
		BlockHeight:  91000,
		TxIndex:      0,
		Version:      1,
		IsCoinbase:   true,
		OutputStates: model.NewOutputStates(1),
	}
	added, err := cursor.TryAddUnspentTx(earlier)
	require.NoError(t, err)
	require.True(t, added)
	require.NoError(t, cursor.SetCounters(model.Counters{UnspentTxCount: 1, UnspentOutputCount: 1}))

	header, _ := blockAt(t, chainhash.Hash{0x01}, 91722, coinbaseTx(3, 50e8))

	session, err := eng.BeginConnect(cursor, header)
	require.NoError(t, err)

	// The carve-out keys on (height, tx hash); drive the session with a
	// crafted coinbase at the frozen height.
	dup := btcutil.NewTx(coinbaseTx(3, 50e8))
	dup.SetIndex(0)
	loaded := &model.LoadedTx{Tx: dup, TxIndex: 0, IsCoinbase: true, Block: header}

	if *dup.Hash() != frozen {
		// The crafted tx cannot reproduce the historical hash, so check the
		// predicate directly against the real constant; the session then
		// mints the crafted coinbase as an ordinary transaction.
		require.True(t, isDuplicateCoinbase(91722, frozen))
		require.False(t, isDuplicateCoinbase(91723, frozen))
		require.False(t, isDuplicateCoinbase(91722, chainhash.Hash{0x01}))

		_, err = session.ApplyTx(context.Background(), loaded)
		require.NoError(t, err)
		require.NoError(t, cursor.Rollback())
		return
	}

	_, err = session.ApplyTx(context.Background(), loaded)
	require.NoError(t, err)

	// The earlier instance is untouched.
	record, ok, err := cursor.TryGetUnspentTx(frozen)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(91000), record.BlockHeight)
	require.NoError(t, cursor.Rollback())
}

func TestConservation_FullRollbackToGenesis(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	genesis, genesisTxs := blockAt(t, chainhash.Hash{}, 0, coinbaseTx(0, 50e8))
	connectBlock(t, eng, cursor, genesis, genesisTxs)
	baseline := counters(t, cursor)

	// Build three blocks with mints, partial spends and a full spend.
	mintA := coinbaseTx(1, 10, 20)
	block1, block1Txs := blockAt(t, genesis.Hash(), 1, mintA)
	connectBlock(t, eng, cursor, block1, block1Txs)

	hashA := mintA.TxHash()
	spendBoth := spendingTx([]wire.OutPoint{{Hash: hashA, Index: 0}, {Hash: hashA, Index: 1}}, 25, 5)
	block2, block2Txs := blockAt(t, block1.Hash(), 2, coinbaseTx(2, 50e8), spendBoth)
	connectBlock(t, eng, cursor, block2, block2Txs)

	hashB := spendBoth.TxHash()
	spendChain := spendingTx([]wire.OutPoint{{Hash: hashB, Index: 1}}, 5)
	block3, block3Txs := blockAt(t, block2.Hash(), 3, coinbaseTx(3, 50e8), spendChain)
	connectBlock(t, eng, cursor, block3, block3Txs)

	// Unwind everything back to genesis.
	rollbackBlock(t, eng, cursor, block3, block3Txs)
	rollbackBlock(t, eng, cursor, block2, block2Txs)
	rollbackBlock(t, eng, cursor, block1, block1Txs)

	require.Equal(t, baseline, counters(t, cursor))

	// The minted records are gone again.
	_, ok, err := cursor.TryGetUnspentTx(hashA)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cursor.TryGetUnspentTx(hashB)
	require.NoError(t, err)
	require.False(t, ok)

	hash, height, ok, err := cursor.Tip()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genesis.Hash(), hash)
	require.Equal(t, int32(0), height)
	require.NoError(t, cursor.Reset())
}

func TestUnspend_RecreatesFullySpentTx(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	genesis, genesisTxs := blockAt(t, chainhash.Hash{}, 0, coinbaseTx(0, 50e8))
	connectBlock(t, eng, cursor, genesis, genesisTxs)

	mint := coinbaseTx(1, 7)
	block1, block1Txs := blockAt(t, genesis.Hash(), 1, mint)
	connectBlock(t, eng, cursor, block1, block1Txs)

	// Fully spend the minted tx; its record disappears.
	mintHash := mint.TxHash()
	spender := spendingTx([]wire.OutPoint{{Hash: mintHash, Index: 0}}, 7)
	block2, block2Txs := blockAt(t, block1.Hash(), 2, coinbaseTx(2, 50e8), spender)
	connectBlock(t, eng, cursor, block2, block2Txs)

	_, ok, err := cursor.TryGetUnspentTx(mintHash)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cursor.Reset())

	// Disconnecting the spender recreates it, fully unspent again.
	rollbackBlock(t, eng, cursor, block2, block2Txs)

	record, ok, err := cursor.TryGetUnspentTx(mintHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, record.OutputStates.AllUnspent())
	require.True(t, record.IsCoinbase)

	out, ok, err := cursor.TryGetUnspentOutput(wire.OutPoint{Hash: mintHash, Index: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), out.Value)
	require.NoError(t, cursor.Reset())
}

func TestRollback_MissingJournalFailsRollback(t *testing.T) {
	t.Parallel()

	eng := New(zap.NewNop(), nil)
	st := store.NewMemoryStore()
	cursor, err := st.Begin()
	require.NoError(t, err)

	genesis, genesisTxs := blockAt(t, chainhash.Hash{}, 0, coinbaseTx(0, 50e8))
	connectBlock(t, eng, cursor, genesis, genesisTxs)

	mint := coinbaseTx(1, 3)
	block1, block1Txs := blockAt(t, genesis.Hash(), 1, mint)
	connectBlock(t, eng, cursor, block1, block1Txs)

	spender := spendingTx([]wire.OutPoint{{Hash: mint.TxHash(), Index: 0}}, 3)
	block2, block2Txs := blockAt(t, block1.Hash(), 2, coinbaseTx(2, 50e8), spender)
	connectBlock(t, eng, cursor, block2, block2Txs)

	// Simulate pruned rollback data: the spender arrives with no journal
	// rows attached.
	session, err := eng.BeginRollback(cursor, block2)
	require.NoError(t, err)
	block2Txs[1].PrevOutputs = nil
	_, err = session.ApplyTx(context.Background(), block2Txs[1])
	require.True(t, model.IsCannotRollback(err))
	require.NoError(t, cursor.Rollback())
}
