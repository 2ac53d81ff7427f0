package model

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// OutputStates is a fixed-size bitset tracking which outputs of a transaction
// are still unspent. A set bit means unspent.
type OutputStates struct {
	n    int
	bits []byte
}

// NewOutputStates returns a bitset of n outputs, all unspent.
func NewOutputStates(n int) OutputStates {
	s := OutputStates{n: n, bits: make([]byte, (n+7)/8)}
	for i := 0; i < n; i++ {
		s.bits[i/8] |= 1 << uint(i%8)
	}
	return s
}

// DecodeOutputStates rebuilds a bitset from its encoded form.
func DecodeOutputStates(n int, bits []byte) (OutputStates, error) {
	if n < 0 || len(bits) != (n+7)/8 {
		return OutputStates{}, fmt.Errorf("output states length mismatch: %d outputs, %d bytes", n, len(bits))
	}
	return OutputStates{n: n, bits: append([]byte(nil), bits...)}, nil
}

// Len returns the original output count.
func (s OutputStates) Len() int {
	return s.n
}

// Bits returns the raw bitset bytes for serialization.
func (s OutputStates) Bits() []byte {
	return s.bits
}

// Unspent reports whether output i is unspent. Out-of-range indices report
// false; callers bounds-check against Len first.
func (s OutputStates) Unspent(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.bits[i/8]&(1<<uint(i%8)) != 0
}

// MarkSpent clears the unspent bit for output i.
func (s *OutputStates) MarkSpent(i int) {
	if i >= 0 && i < s.n {
		s.bits[i/8] &^= 1 << uint(i%8)
	}
}

// MarkUnspent sets the unspent bit for output i.
func (s *OutputStates) MarkUnspent(i int) {
	if i >= 0 && i < s.n {
		s.bits[i/8] |= 1 << uint(i%8)
	}
}

// UnspentCount returns the number of unspent outputs.
func (s OutputStates) UnspentCount() int {
	count := 0
	for i := 0; i < s.n; i++ {
		if s.Unspent(i) {
			count++
		}
	}
	return count
}

// AllSpent reports whether every output has been spent.
func (s OutputStates) AllSpent() bool {
	return s.UnspentCount() == 0
}

// AllUnspent reports whether no output has been spent.
func (s OutputStates) AllUnspent() bool {
	return s.UnspentCount() == s.n
}

// Clone returns an independent copy of the bitset.
func (s OutputStates) Clone() OutputStates {
	return OutputStates{n: s.n, bits: append([]byte(nil), s.bits...)}
}

// UnspentTx records a transaction that still has at least one unspent output.
type UnspentTx struct {
	TxHash       chainhash.Hash
	BlockHeight  int32
	TxIndex      uint32
	Version      int32
	IsCoinbase   bool
	OutputStates OutputStates
}

// Clone returns a deep copy, detaching the output-states bitset.
func (u *UnspentTx) Clone() *UnspentTx {
	cp := *u
	cp.OutputStates = u.OutputStates.Clone()
	return &cp
}

// SpentTx summarizes a fully-spent transaction, recorded per block height so
// the block can be disconnected later.
type SpentTx struct {
	TxHash      chainhash.Hash
	BlockHeight int32
	TxIndex     uint32
	OutputCount uint32
	IsCoinbase  bool
}

// PrevTxOutput pairs a spent output with a snapshot of its owning transaction
// taken at spend time. It feeds validators and wallet scanners.
type PrevTxOutput struct {
	Output    *wire.TxOut
	UnspentTx UnspentTx
}

// UnmintedTx is the per-transaction rollback journal row written when a block
// connects: the previous outputs consumed by that transaction's inputs, in
// input order. Reverse replay reads these back.
type UnmintedTx struct {
	TxHash      chainhash.Hash
	TxIndex     uint32
	PrevOutputs []*PrevTxOutput
}

// Counters are the aggregate UTXO statistics maintained through cursors.
type Counters struct {
	UnspentTxCount     int64
	UnspentOutputCount int64
	TotalTxCount       int64
	TotalInputCount    int64
	TotalOutputCount   int64
}

// BlockTx is a tagged variant for a stored block transaction: either the full
// transaction or a pruned placeholder that only retains its position.
type BlockTx struct {
	Tx     *wire.MsgTx
	Pruned bool
}
