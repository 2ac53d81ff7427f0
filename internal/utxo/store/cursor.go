package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// ErrCursorClosed is returned by cursor operations after Commit or Rollback,
// until the cursor is rearmed with Reset.
var ErrCursorClosed = errors.New("utxo cursor is closed")

// kvTx is one exclusive write transaction on a backend.
type kvTx interface {
	get(key []byte) ([]byte, bool, error)
	put(key, value []byte) error
	delete(key []byte) error
	commit() error
	discard()
}

// kvBackend opens exclusive transactions. begin blocks while another
// transaction is in flight.
type kvBackend interface {
	begin() (kvTx, error)
}

type cursorState uint8

const (
	cursorIdle cursorState = iota
	cursorActive
	cursorDone
)

// cursor implements Cursor over any kvBackend. The transaction opens lazily
// on the first operation, so pooled cursors hold no exclusivity while cached.
type cursor struct {
	backend kvBackend
	tx      kvTx
	state   cursorState
}

func newCursor(backend kvBackend) *cursor {
	return &cursor{backend: backend}
}

func (c *cursor) ensure() (kvTx, error) {
	switch c.state {
	case cursorActive:
		return c.tx, nil
	case cursorDone:
		return nil, ErrCursorClosed
	}
	tx, err := c.backend.begin()
	if err != nil {
		return nil, fmt.Errorf("begin utxo transaction: %w", err)
	}
	c.tx = tx
	c.state = cursorActive
	return tx, nil
}

func (c *cursor) Commit() error {
	switch c.state {
	case cursorDone:
		return ErrCursorClosed
	case cursorIdle:
		c.state = cursorDone
		return nil
	}
	err := c.tx.commit()
	c.tx = nil
	c.state = cursorDone
	if err != nil {
		return fmt.Errorf("commit utxo transaction: %w", err)
	}
	return nil
}

func (c *cursor) Rollback() error {
	switch c.state {
	case cursorDone:
		return ErrCursorClosed
	case cursorIdle:
		c.state = cursorDone
		return nil
	}
	c.tx.discard()
	c.tx = nil
	c.state = cursorDone
	return nil
}

func (c *cursor) Reset() error {
	if c.state == cursorActive {
		c.tx.discard()
		c.tx = nil
	}
	c.state = cursorIdle
	return nil
}

func (c *cursor) TryGetUnspentTx(txHash chainhash.Hash) (*model.UnspentTx, bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return nil, false, err
	}
	value, ok, err := tx.get(unspentTxKey(txHash))
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := decodeUnspentTx(txHash, value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "get unspent tx", Detail: err.Error()}
	}
	return record, true, nil
}

func (c *cursor) TryAddUnspentTx(record *model.UnspentTx) (bool, error) {
	return c.add(unspentTxKey(record.TxHash), encodeUnspentTx(record))
}

func (c *cursor) TryUpdateUnspentTx(record *model.UnspentTx) (bool, error) {
	return c.update(unspentTxKey(record.TxHash), encodeUnspentTx(record))
}

func (c *cursor) TryRemoveUnspentTx(txHash chainhash.Hash) (bool, error) {
	return c.remove(unspentTxKey(txHash))
}

func (c *cursor) TryGetUnspentOutput(outpoint wire.OutPoint) (*wire.TxOut, bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return nil, false, err
	}
	value, ok, err := tx.get(outputKey(outpoint))
	if err != nil || !ok {
		return nil, false, err
	}
	out, err := decodeTxOut(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "get unspent output", Detail: err.Error()}
	}
	return out, true, nil
}

func (c *cursor) TryAddUnspentOutput(outpoint wire.OutPoint, output *wire.TxOut) (bool, error) {
	return c.add(outputKey(outpoint), encodeTxOut(output))
}

func (c *cursor) TryUpdateUnspentOutput(outpoint wire.OutPoint, output *wire.TxOut) (bool, error) {
	return c.update(outputKey(outpoint), encodeTxOut(output))
}

func (c *cursor) TryRemoveUnspentOutput(outpoint wire.OutPoint) (bool, error) {
	return c.remove(outputKey(outpoint))
}

func (c *cursor) Counters() (model.Counters, error) {
	tx, err := c.ensure()
	if err != nil {
		return model.Counters{}, err
	}
	value, ok, err := tx.get(countersKey)
	if err != nil {
		return model.Counters{}, err
	}
	if !ok {
		return model.Counters{}, nil
	}
	counters, err := decodeCounters(value)
	if err != nil {
		return model.Counters{}, &model.CorruptionError{Op: "get counters", Detail: err.Error()}
	}
	return counters, nil
}

func (c *cursor) SetCounters(counters model.Counters) error {
	tx, err := c.ensure()
	if err != nil {
		return err
	}
	return tx.put(countersKey, encodeCounters(counters))
}

func (c *cursor) TryAddBlockSpentTxs(height int32, txs []model.SpentTx) (bool, error) {
	return c.add(heightKey(spentKeyPrefix, height), encodeSpentTxs(txs))
}

func (c *cursor) TryGetBlockSpentTxs(height int32) ([]model.SpentTx, bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return nil, false, err
	}
	value, ok, err := tx.get(heightKey(spentKeyPrefix, height))
	if err != nil || !ok {
		return nil, false, err
	}
	txs, err := decodeSpentTxs(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "get block spent txs", Detail: err.Error()}
	}
	return txs, true, nil
}

func (c *cursor) TryRemoveBlockSpentTxs(height int32) (bool, error) {
	return c.remove(heightKey(spentKeyPrefix, height))
}

func (c *cursor) TryAddBlockUnmintedTxs(height int32, txs []model.UnmintedTx) (bool, error) {
	return c.add(heightKey(unmintedKeyPrefix, height), encodeUnmintedTxs(txs))
}

func (c *cursor) TryGetBlockUnmintedTxs(height int32) ([]model.UnmintedTx, bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return nil, false, err
	}
	value, ok, err := tx.get(heightKey(unmintedKeyPrefix, height))
	if err != nil || !ok {
		return nil, false, err
	}
	txs, err := decodeUnmintedTxs(value)
	if err != nil {
		return nil, false, &model.CorruptionError{Op: "get block unminted txs", Detail: err.Error()}
	}
	return txs, true, nil
}

func (c *cursor) TryRemoveBlockUnmintedTxs(height int32) (bool, error) {
	return c.remove(heightKey(unmintedKeyPrefix, height))
}

func (c *cursor) Tip() (chainhash.Hash, int32, bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return chainhash.Hash{}, 0, false, err
	}
	value, ok, err := tx.get(tipKey)
	if err != nil || !ok {
		return chainhash.Hash{}, 0, false, err
	}
	hash, height, err := decodeTip(value)
	if err != nil {
		return chainhash.Hash{}, 0, false, &model.CorruptionError{Op: "get tip", Detail: err.Error()}
	}
	return hash, height, true, nil
}

func (c *cursor) SetTip(hash chainhash.Hash, height int32) error {
	tx, err := c.ensure()
	if err != nil {
		return err
	}
	return tx.put(tipKey, encodeTip(hash, height))
}

func (c *cursor) PrunedHeight() (int32, bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return 0, false, err
	}
	value, ok, err := tx.get(prunedHeightKey)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(value) != 4 {
		return 0, false, &model.CorruptionError{Op: "get pruned height", Detail: "bad record size"}
	}
	return int32(binary.LittleEndian.Uint32(value)), true, nil
}

func (c *cursor) SetPrunedHeight(height int32) error {
	tx, err := c.ensure()
	if err != nil {
		return err
	}
	return tx.put(prunedHeightKey, binary.LittleEndian.AppendUint32(nil, uint32(height)))
}

func (c *cursor) add(key, value []byte) (bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return false, err
	}
	if _, ok, err := tx.get(key); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := tx.put(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (c *cursor) update(key, value []byte) (bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return false, err
	}
	if _, ok, err := tx.get(key); err != nil {
		return false, err
	} else if !ok {
		return false, nil
	}
	if err := tx.put(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (c *cursor) remove(key []byte) (bool, error) {
	tx, err := c.ensure()
	if err != nil {
		return false, err
	}
	if _, ok, err := tx.get(key); err != nil {
		return false, err
	} else if !ok {
		return false, nil
	}
	if err := tx.delete(key); err != nil {
		return false, err
	}
	return true, nil
}
