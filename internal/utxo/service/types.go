// Package service hosts the chain-state worker that drives header selection,
// reorganization replay and pruning, in that order, against the UTXO store.
package service

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/replay"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// HeaderIndex is the header graph surface the worker needs.
	HeaderIndex interface {
		MaxTotalWorkTip() (*model.ChainedHeader, bool)
		Get(hash chainhash.Hash) (*model.ChainedHeader, bool)
		ChainFrom(tip *model.ChainedHeader) (*model.Chain, error)
		MarkInvalid(hash chainhash.Hash) error
	}

	// StepRunner executes one replay step on a cursor.
	StepRunner interface {
		RunStep(ctx context.Context, cursor store.Cursor, direction model.Direction, header *model.ChainedHeader) (replay.StepResult, error)
	}

	// HeaderRules is the slice of the rules oracle consulted before a block
	// connects.
	HeaderRules interface {
		CheckProofOfWork(header *wire.BlockHeader) error
	}

	// BlockPruner drops data outside the safety window.
	BlockPruner interface {
		Prune(ctx context.Context, cursor store.Cursor, tip *model.Chain) (int, error)
	}

	// ChainWorkerMetrics observes worker progress.
	ChainWorkerMetrics interface {
		ObserveStep(err error, direction model.Direction, txs int, started time.Time)
		ObserveTip(height int32)
		ObserveCounters(counters model.Counters)
	}

	// PrunerMetrics observes pruning passes.
	PrunerMetrics interface {
		ObservePrune(err error, heights int, started time.Time)
	}
)
