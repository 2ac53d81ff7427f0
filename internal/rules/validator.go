package rules

import (
	"context"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// ValidatorSink runs rule validation as a pipeline sink. Disconnect steps
// unwind already-validated transactions, so only connects are checked.
type ValidatorSink struct {
	rules  Rules
	logger *zap.Logger
}

// NewValidatorSink builds a ValidatorSink.
func NewValidatorSink(rules Rules, logger *zap.Logger) *ValidatorSink {
	return &ValidatorSink{rules: rules, logger: logger}
}

func (v *ValidatorSink) Name() string {
	return "validator"
}

func (v *ValidatorSink) ProcessTx(ctx context.Context, direction model.Direction, tx *model.ValidatableTx) error {
	if direction != model.DirectionConnect {
		return nil
	}
	if err := v.rules.ValidateTx(ctx, tx); err != nil {
		v.logger.Warn("transaction failed validation",
			zap.Stringer("tx", tx.Tx.Hash()),
			zap.Int32("height", tx.Block.Height),
			zap.Error(err))
		return &model.ValidationError{Block: tx.Block.Hash(), Reason: err.Error()}
	}
	return nil
}
