package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/storage"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
)

// PruneMode selects how aggressively old block data is dropped.
type PruneMode string

const (
	// PruneModePreserveUnspent drops only transactions fully spent by later
	// blocks; unspent transaction data stays queryable.
	PruneModePreserveUnspent PruneMode = "preserve_unspent"
	// PruneModeFull drops every transaction of eligible heights. Reorgs past
	// the safety buffer become impossible by policy.
	PruneModeFull PruneMode = "full"
)

// PruningService lags the validated tip by the safety buffer and removes
// block transactions and rollback indices that can no longer be needed. Runs
// are idempotent and never touch heights inside the buffer.
type PruningService struct {
	logger       *zap.Logger
	mode         PruneMode
	safetyBuffer int32
	blockTxes    storage.BlockTxesStorage
	metrics      PrunerMetrics
}

// NewPruningService builds a PruningService.
func NewPruningService(mode PruneMode, blockTxes storage.BlockTxesStorage, metrics PrunerMetrics, logger *zap.Logger) (*PruningService, error) {
	if mode != PruneModePreserveUnspent && mode != PruneModeFull {
		return nil, fmt.Errorf("unknown prune mode %q", mode)
	}
	if metrics == nil {
		return nil, errors.New("pruner metrics is required")
	}
	return &PruningService{
		logger:       logger.Named("pruner"),
		mode:         mode,
		safetyBuffer: safetyBufferBlocks,
		blockTxes:    blockTxes,
		metrics:      metrics,
	}, nil
}

// Prune processes every eligible height above the last pruned one. The
// caller commits the cursor.
func (p *PruningService) Prune(ctx context.Context, cursor store.Cursor, tip *model.Chain) (pruned int, err error) {
	started := time.Now()
	defer func() {
		p.metrics.ObservePrune(err, pruned, started)
	}()

	eligible := tip.Height() - p.safetyBuffer
	if eligible < 0 {
		return 0, nil
	}

	from := int32(0)
	if last, ok, err := cursor.PrunedHeight(); err != nil {
		return 0, err
	} else if ok {
		from = last + 1
	}

	for height := from; height <= eligible; height++ {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if err := p.pruneHeight(cursor, tip, height); err != nil {
			return pruned, err
		}
		pruned++
	}

	if pruned > 0 {
		if err := cursor.SetPrunedHeight(eligible); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

func (p *PruningService) pruneHeight(cursor store.Cursor, tip *model.Chain, height int32) error {
	header, ok := tip.AtHeight(height)
	if !ok {
		return &model.CorruptionError{Op: "prune", Detail: fmt.Sprintf("height %d not covered by tip chain", height)}
	}

	// Transaction-level drops first, then the per-height indices.
	switch p.mode {
	case PruneModePreserveUnspent:
		spent, ok, err := cursor.TryGetBlockSpentTxs(height)
		if err != nil {
			return err
		}
		if ok {
			if err := p.pruneSpent(tip, spent); err != nil {
				return err
			}
		}
	case PruneModeFull:
		if err := p.blockTxes.RemoveBlockTransactions(header.Hash()); err != nil {
			return err
		}
	}

	if _, err := cursor.TryRemoveBlockSpentTxs(height); err != nil {
		return err
	}
	if _, err := cursor.TryRemoveBlockUnmintedTxs(height); err != nil {
		return err
	}
	return nil
}

// pruneSpent drops the listed fully-spent transactions from their owning
// blocks, grouping by height to batch storage writes.
func (p *PruningService) pruneSpent(tip *model.Chain, spent []model.SpentTx) error {
	byHeight := make(map[int32][]uint32)
	for _, tx := range spent {
		byHeight[tx.BlockHeight] = append(byHeight[tx.BlockHeight], tx.TxIndex)
	}
	for height, indexes := range byHeight {
		header, ok := tip.AtHeight(height)
		if !ok {
			return &model.CorruptionError{Op: "prune", Detail: fmt.Sprintf("spent tx references height %d outside tip chain", height)}
		}
		if err := p.blockTxes.PruneBlockTransactions(header.Hash(), indexes); err != nil {
			return err
		}
	}
	return nil
}
