package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/chain"
	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/replay"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
	"github.com/goodnatureofminers/chainstate7000/pkg/itempool"
)

// ChainWorker advances the UTXO set toward the best-work tip: it plans the
// reorganization path, replays it step by step through the pipeline and
// prunes behind the safety window.
type ChainWorker struct {
	logger  *zap.Logger
	graph   HeaderIndex
	steps   StepRunner
	rules   HeaderRules
	pruner  BlockPruner
	cursors *itempool.Pool[store.Cursor]
	metrics ChainWorkerMetrics

	// sleep overrides the timer wait in tests.
	sleep             func(context.Context, time.Duration) error
	sleepDuration     time.Duration
	longSleepDuration time.Duration
	stepBudget        time.Duration
	tipSignal         <-chan struct{}
}

// NewChainWorker builds a ChainWorker with dependencies. tipSignal may be nil;
// when set, a signal wakes the worker out of its idle sleep.
func NewChainWorker(
	graph HeaderIndex,
	steps StepRunner,
	rules HeaderRules,
	pruner BlockPruner,
	utxo store.Store,
	metrics ChainWorkerMetrics,
	logger *zap.Logger,
	tipSignal <-chan struct{},
) (*ChainWorker, error) {
	if metrics == nil {
		return nil, errors.New("chain worker metrics is required")
	}
	cursors, err := itempool.New[store.Cursor](
		defaultCursorPoolCapacity,
		func() (store.Cursor, error) { return utxo.Begin() },
		func(cursor store.Cursor) error { return cursor.Reset() },
		func(cursor store.Cursor) {
			if err := cursor.Rollback(); err != nil && !errors.Is(err, store.ErrCursorClosed) {
				logger.Warn("disposing cursor rollback failed", zap.Error(err))
			}
		},
	)
	if err != nil {
		return nil, err
	}

	return &ChainWorker{
		logger:            logger.Named("chainWorker"),
		graph:             graph,
		steps:             steps,
		rules:             rules,
		pruner:            pruner,
		cursors:           cursors,
		metrics:           metrics,
		sleepDuration:     sleepDuration,
		longSleepDuration: longSleepDuration,
		stepBudget:        defaultStepBudget,
		tipSignal:         tipSignal,
	}, nil
}

// Run drives the replay loop until the context is canceled or a fatal
// chain-state error surfaces.
func (w *ChainWorker) Run(ctx context.Context) error {
	defer w.cursors.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.run(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if model.IsCannotRollback(err) || model.IsCorruption(err) {
				w.logger.Error("fatal chain-state error, stopping worker", zap.Error(err))
				return err
			}
			w.logger.Warn("run iteration failed, backing off", zap.Error(err), zap.Duration("sleep", w.sleepDuration))
			if sleepErr := w.wait(ctx, w.sleepDuration); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

func (w *ChainWorker) run(ctx context.Context) error {
	handle, err := w.cursors.Take(ctx, cursorTakeTimeout)
	if err != nil {
		return err
	}
	defer handle.Release()
	cursor := handle.Item()

	current, err := w.currentChain(cursor)
	if err != nil {
		return err
	}

	targetTip, ok := w.graph.MaxTotalWorkTip()
	if !ok {
		w.logger.Debug("no headers chained yet; sleeping", zap.Duration("sleep", w.longSleepDuration))
		return w.idle(ctx, cursor, w.longSleepDuration)
	}
	if current != nil && current.Tip().Hash() == targetTip.Hash() {
		return w.idle(ctx, cursor, w.longSleepDuration)
	}

	target, err := w.graph.ChainFrom(targetTip)
	if err != nil {
		return err
	}
	steps, err := chain.Navigate(current, target)
	if err != nil {
		return err
	}

	w.logger.Info("advancing chain state",
		zap.Int("steps", len(steps)),
		zap.Stringer("target", targetTip.Hash()),
		zap.Int32("targetHeight", targetTip.Height))

	deadline := time.Now().Add(w.stepBudget)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.runStep(ctx, cursor, step); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			w.logger.Debug("step budget elapsed, re-selecting tip")
			break
		}
	}

	if err := w.prune(ctx, cursor); err != nil {
		return err
	}
	return w.wait(ctx, w.sleepDuration)
}

func (w *ChainWorker) runStep(ctx context.Context, cursor store.Cursor, step chain.Step) error {
	started := time.Now()
	result, err := w.applyStep(ctx, cursor, step)
	w.metrics.ObserveStep(err, step.Direction, result.TxCount, started)
	if err != nil {
		if rbErr := cursor.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrCursorClosed) {
			w.logger.Error("cursor rollback failed", zap.Error(rbErr))
		}
		if model.IsValidation(err) && step.Direction == model.DirectionConnect {
			w.logger.Warn("marking block invalid",
				zap.Stringer("block", step.Header.Hash()), zap.Error(err))
			if markErr := w.graph.MarkInvalid(step.Header.Hash()); markErr != nil {
				w.logger.Error("mark invalid failed", zap.Error(markErr))
			}
		}
		if model.IsMissingData(err) {
			w.logger.Warn("block txes missed", zap.Stringer("block", step.Header.Hash()))
		}
		return fmt.Errorf("%s %s: %w", step.Direction, step.Header.Hash(), err)
	}

	if err := cursor.Commit(); err != nil {
		return fmt.Errorf("commit %s of %s: %w", step.Direction, step.Header.Hash(), err)
	}
	w.metrics.ObserveTip(tipHeightAfter(step))
	w.metrics.ObserveCounters(result.Counters)
	return cursor.Reset()
}

// applyStep consults the rules oracle before a connect, then runs the replay
// step.
func (w *ChainWorker) applyStep(ctx context.Context, cursor store.Cursor, step chain.Step) (replay.StepResult, error) {
	if w.rules != nil && step.Direction == model.DirectionConnect {
		if err := w.rules.CheckProofOfWork(&step.Header.Header); err != nil {
			return replay.StepResult{}, &model.ValidationError{Block: step.Header.Hash(), Reason: err.Error()}
		}
	}
	return w.steps.RunStep(ctx, cursor, step.Direction, step.Header)
}

func (w *ChainWorker) prune(ctx context.Context, cursor store.Cursor) error {
	tip, err := w.currentChain(cursor)
	if err != nil {
		return err
	}
	if tip == nil {
		return nil
	}
	pruned, err := w.pruner.Prune(ctx, cursor, tip)
	if err != nil {
		if rbErr := cursor.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrCursorClosed) {
			w.logger.Error("cursor rollback failed after prune", zap.Error(rbErr))
		}
		return fmt.Errorf("prune: %w", err)
	}
	if err := cursor.Commit(); err != nil {
		return fmt.Errorf("commit prune: %w", err)
	}
	if pruned > 0 {
		w.logger.Info("pruned heights", zap.Int("count", pruned))
	}
	return cursor.Reset()
}

// currentChain materializes the validated chain from the cursor's tip record.
func (w *ChainWorker) currentChain(cursor store.Cursor) (*model.Chain, error) {
	hash, height, ok, err := cursor.Tip()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	header, found := w.graph.Get(hash)
	if !found {
		return nil, &model.CorruptionError{Op: "current chain", Detail: fmt.Sprintf("validated tip %s unknown to header graph", hash)}
	}
	if header.Height != height {
		return nil, &model.CorruptionError{Op: "current chain", Detail: fmt.Sprintf("tip height mismatch: cursor %d, graph %d", height, header.Height)}
	}
	return w.graph.ChainFrom(header)
}

// idle releases the cursor's transaction before sleeping so readers are not
// starved while the worker has nothing to do.
func (w *ChainWorker) idle(ctx context.Context, cursor store.Cursor, d time.Duration) error {
	if err := cursor.Reset(); err != nil {
		return err
	}
	return w.wait(ctx, d)
}

// wait pauses until the duration elapses, the context is canceled or, when
// wired, the tip signal fires.
func (w *ChainWorker) wait(ctx context.Context, d time.Duration) error {
	if w.sleep != nil {
		return w.sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	if w.tipSignal != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.tipSignal:
			return nil
		case <-timer.C:
			return nil
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func tipHeightAfter(step chain.Step) int32 {
	if step.Direction == model.DirectionConnect {
		return step.Header.Height
	}
	return step.Header.Height - 1
}
