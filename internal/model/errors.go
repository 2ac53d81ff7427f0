package model

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ValidationError reports a consensus failure while applying a block. The
// offending header is marked invalid and the step is rolled back.
type ValidationError struct {
	Block  chainhash.Hash
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("block %s failed validation: %s", e.Block, e.Reason)
}

// MissingDataError reports that storage does not hold data required for the
// current step, either never stored or already pruned.
type MissingDataError struct {
	Hash chainhash.Hash
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing data for %s", e.Hash)
}

// CannotRollbackError reports a reverse replay that reaches past pruned
// rollback data. Fatal to the walker that encounters it.
type CannotRollbackError struct {
	Block  chainhash.Hash
	TxHash chainhash.Hash
}

func (e *CannotRollbackError) Error() string {
	return fmt.Sprintf("cannot roll back block %s: rollback data for tx %s is gone", e.Block, e.TxHash)
}

// CorruptionError reports an invariant violation inside trusted storage.
// Fatal; the operator must intervene.
type CorruptionError struct {
	Op     string
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("storage corruption in %s: %s", e.Op, e.Detail)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsMissingData reports whether err carries a MissingDataError.
func IsMissingData(err error) bool {
	var me *MissingDataError
	return errors.As(err, &me)
}

// IsCannotRollback reports whether err carries a CannotRollbackError.
func IsCannotRollback(err error) bool {
	var ce *CannotRollbackError
	return errors.As(err, &ce)
}

// IsCorruption reports whether err carries a CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}
