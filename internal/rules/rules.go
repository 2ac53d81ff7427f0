// Package rules is the consensus oracle boundary: header hashing,
// proof-of-work and structural transaction checks. The chain-state engine
// calls these but never inspects script semantics itself.
package rules

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/pkg/workerpool"
)

// Rules validates headers and transactions for the engine.
type Rules interface {
	// HeaderHash returns the consensus hash of a header.
	HeaderHash(header *wire.BlockHeader) chainhash.Hash
	// CheckProofOfWork verifies the header hash meets its claimed target.
	CheckProofOfWork(header *wire.BlockHeader) error
	// ValidateTx runs structural checks on a transaction with its resolved
	// previous outputs.
	ValidateTx(ctx context.Context, tx *model.ValidatableTx) error
}

// BTCRules implements Rules with btcd's consensus primitives.
type BTCRules struct {
	params      *chaincfg.Params
	workerCount int
}

// NewBTCRules builds rules for the given network parameters. workerCount
// bounds the parallel per-input checks.
func NewBTCRules(params *chaincfg.Params, workerCount int) *BTCRules {
	if workerCount <= 0 {
		workerCount = 4
	}
	return &BTCRules{params: params, workerCount: workerCount}
}

func (r *BTCRules) HeaderHash(header *wire.BlockHeader) chainhash.Hash {
	return header.BlockHash()
}

func (r *BTCRules) CheckProofOfWork(header *wire.BlockHeader) error {
	target := blockchain.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("target difficulty %064x is not positive", target)
	}
	if target.Cmp(r.params.PowLimit) > 0 {
		return fmt.Errorf("target difficulty %064x is above the limit", target)
	}
	hash := header.BlockHash()
	if blockchain.HashToBig(&hash).Cmp(target) > 0 {
		return fmt.Errorf("header hash %s is above target %064x", hash, target)
	}
	return nil
}

func (r *BTCRules) ValidateTx(ctx context.Context, tx *model.ValidatableTx) error {
	msg := tx.Tx.MsgTx()
	if len(msg.TxOut) == 0 {
		return fmt.Errorf("tx %s has no outputs", tx.Tx.Hash())
	}

	var totalOut int64
	for i, out := range msg.TxOut {
		if out.Value < 0 || out.Value > btcutil.MaxSatoshi {
			return fmt.Errorf("tx %s output %d value %d out of range", tx.Tx.Hash(), i, out.Value)
		}
		totalOut += out.Value
		if totalOut > btcutil.MaxSatoshi {
			return fmt.Errorf("tx %s total output value overflows", tx.Tx.Hash())
		}
	}

	if tx.IsCoinbase {
		return nil
	}

	if len(tx.FinalPrevOutputs) != len(msg.TxIn) {
		return fmt.Errorf("tx %s resolved %d of %d previous outputs", tx.Tx.Hash(), len(tx.FinalPrevOutputs), len(msg.TxIn))
	}

	spendHeight := tx.Block.Height
	inputs := make([]int, len(msg.TxIn))
	for i := range inputs {
		inputs[i] = i
	}
	if err := workerpool.Process(ctx, r.workerCount, inputs, func(_ context.Context, i int) error {
		return r.checkInput(tx, i, spendHeight)
	}); err != nil {
		return err
	}

	var totalIn int64
	for _, prev := range tx.FinalPrevOutputs {
		totalIn += prev.Output.Value
		if totalIn > btcutil.MaxSatoshi {
			return fmt.Errorf("tx %s total input value overflows", tx.Tx.Hash())
		}
	}
	if totalIn < totalOut {
		return fmt.Errorf("tx %s spends %d but only consumes %d", tx.Tx.Hash(), totalOut, totalIn)
	}
	return nil
}

func (r *BTCRules) checkInput(tx *model.ValidatableTx, i int, spendHeight int32) error {
	prev := tx.FinalPrevOutputs[i]
	if prev == nil || prev.Output == nil {
		return fmt.Errorf("tx %s input %d has no previous output", tx.Tx.Hash(), i)
	}
	if prev.Output.Value < 0 || prev.Output.Value > btcutil.MaxSatoshi {
		return fmt.Errorf("tx %s input %d previous value %d out of range", tx.Tx.Hash(), i, prev.Output.Value)
	}
	if prev.UnspentTx.IsCoinbase {
		maturity := int32(r.params.CoinbaseMaturity)
		if spendHeight-prev.UnspentTx.BlockHeight < maturity {
			return fmt.Errorf("tx %s input %d spends immature coinbase from height %d at height %d",
				tx.Tx.Hash(), i, prev.UnspentTx.BlockHeight, spendHeight)
		}
	}
	return nil
}
