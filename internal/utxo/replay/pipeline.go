package replay

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/engine"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
)

// Sink consumes validated transactions in strict block order. A sink error
// aborts the whole step.
type Sink interface {
	Name() string
	ProcessTx(ctx context.Context, direction model.Direction, tx *model.ValidatableTx) error
}

// StepResult summarizes a completed replay step.
type StepResult struct {
	TxCount  int
	Counters model.Counters
}

// Pipeline composes replayer, engine and sinks into a bounded, ordered,
// back-pressured dataflow. Completion propagates downstream; cancellation
// propagates upstream; any stage failure cancels the rest.
type Pipeline struct {
	replayer *Replayer
	engine   *engine.Engine
	sinks    []Sink
	logger   *zap.Logger
	bound    int
}

// NewPipeline builds a Pipeline. bound is the per-channel capacity between
// stages.
func NewPipeline(replayer *Replayer, eng *engine.Engine, sinks []Sink, bound int, logger *zap.Logger) *Pipeline {
	return &Pipeline{replayer: replayer, engine: eng, sinks: sinks, logger: logger, bound: bound}
}

// RunStep replays one block in the given direction through the engine on the
// provided cursor and fans the results out to every sink. On success the
// block's journals, counters and tip are written through the cursor; the
// caller commits. On any error the caller must roll the cursor back.
func (p *Pipeline) RunStep(ctx context.Context, cursor store.Cursor, direction model.Direction, header *model.ChainedHeader) (StepResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var errMu sync.Mutex
	var firstErr error
	recordErr := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if firstErr == nil && err != nil {
			firstErr = err
			cancel()
		}
	}

	// Source stage.
	source := make(chan *model.LoadedTx, p.bound)
	var sourceWG sync.WaitGroup
	sourceWG.Add(1)
	go func() {
		defer sourceWG.Done()
		defer close(source)
		if err := p.replayer.Stream(ctx, header, direction, source); err != nil {
			recordErr(err)
		}
	}()

	// Sink stages, one ordered channel each.
	sinkChans := make([]chan *model.ValidatableTx, len(p.sinks))
	var sinkWG sync.WaitGroup
	for i, sink := range p.sinks {
		ch := make(chan *model.ValidatableTx, p.bound)
		sinkChans[i] = ch
		sinkWG.Add(1)
		go func(sink Sink, ch <-chan *model.ValidatableTx) {
			defer sinkWG.Done()
			for tx := range ch {
				if err := sink.ProcessTx(ctx, direction, tx); err != nil {
					recordErr(fmt.Errorf("sink %s: %w", sink.Name(), err))
					return
				}
			}
		}(sink, ch)
	}

	// Transform stage: the engine session, on the caller's goroutine.
	result, err := p.transform(ctx, cursor, direction, header, source, sinkChans)
	recordErr(err)

	for _, ch := range sinkChans {
		close(ch)
	}
	sinkWG.Wait()
	sourceWG.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	if firstErr != nil {
		return StepResult{}, firstErr
	}
	return result, nil
}

func (p *Pipeline) transform(
	ctx context.Context,
	cursor store.Cursor,
	direction model.Direction,
	header *model.ChainedHeader,
	source <-chan *model.LoadedTx,
	sinkChans []chan *model.ValidatableTx,
) (StepResult, error) {
	apply, finalize, counters, err := p.beginSession(cursor, direction, header)
	if err != nil {
		return StepResult{}, err
	}

	txCount := 0
	for loaded := range source {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}
		validatable, err := apply(ctx, loaded)
		if err != nil {
			return StepResult{}, err
		}
		txCount++
		for _, ch := range sinkChans {
			select {
			case <-ctx.Done():
				return StepResult{}, ctx.Err()
			case ch <- validatable:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	if err := finalize(); err != nil {
		return StepResult{}, err
	}
	return StepResult{TxCount: txCount, Counters: counters()}, nil
}

func (p *Pipeline) beginSession(cursor store.Cursor, direction model.Direction, header *model.ChainedHeader) (
	func(context.Context, *model.LoadedTx) (*model.ValidatableTx, error),
	func() error,
	func() model.Counters,
	error,
) {
	if direction == model.DirectionDisconnect {
		session, err := p.engine.BeginRollback(cursor, header)
		if err != nil {
			return nil, nil, nil, err
		}
		return session.ApplyTx, session.Finalize, session.Counters, nil
	}
	session, err := p.engine.BeginConnect(cursor, header)
	if err != nil {
		return nil, nil, nil, err
	}
	return session.ApplyTx, session.Finalize, session.Counters, nil
}
