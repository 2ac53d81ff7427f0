package model

import "github.com/btcsuite/btcd/btcutil"

// LoadedTx is one decoded transaction emitted by the block replayer, with the
// previous outputs its inputs consume resolved as far as the replayer can see
// them (UTXO snapshot for forward replay, rollback journal for reverse).
type LoadedTx struct {
	Tx          *btcutil.Tx
	TxIndex     uint32
	IsCoinbase  bool
	Block       *ChainedHeader
	PrevOutputs []*PrevTxOutput
}

// ValidatableTx is a loaded transaction after the UTXO engine has applied it.
// FinalPrevOutputs are authoritative: resolved through the live cursor, so
// intra-block spends are visible.
type ValidatableTx struct {
	*LoadedTx
	FinalPrevOutputs []*PrevTxOutput
}
