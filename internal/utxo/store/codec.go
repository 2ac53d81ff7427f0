package store

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// Key prefixes inside the embedded UTXO database.
const (
	unspentTxKeyPrefix = 'u'
	outputKeyPrefix    = 'o'
	spentKeyPrefix     = 's'
	unmintedKeyPrefix  = 'm'
)

var (
	countersKey     = []byte("meta:counters")
	tipKey          = []byte("meta:tip")
	prunedHeightKey = []byte("meta:pruned")
)

func unspentTxKey(txHash chainhash.Hash) []byte {
	return append([]byte{unspentTxKeyPrefix}, txHash[:]...)
}

func outputKey(outpoint wire.OutPoint) []byte {
	key := make([]byte, 0, 1+chainhash.HashSize+4)
	key = append(key, outputKeyPrefix)
	key = append(key, outpoint.Hash[:]...)
	return binary.BigEndian.AppendUint32(key, outpoint.Index)
}

func heightKey(prefix byte, height int32) []byte {
	key := []byte{prefix}
	return binary.BigEndian.AppendUint32(key, uint32(height))
}

func encodeUnspentTx(tx *model.UnspentTx) []byte {
	buf := make([]byte, 0, 17+len(tx.OutputStates.Bits()))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(tx.BlockHeight))
	buf = binary.LittleEndian.AppendUint32(buf, tx.TxIndex)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(tx.Version))
	if tx.IsCoinbase {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(tx.OutputStates.Len()))
	return append(buf, tx.OutputStates.Bits()...)
}

func decodeUnspentTx(txHash chainhash.Hash, value []byte) (*model.UnspentTx, error) {
	if len(value) < 17 {
		return nil, fmt.Errorf("unspent tx record too short: %d bytes", len(value))
	}
	outputCount := int(binary.LittleEndian.Uint32(value[13:17]))
	states, err := model.DecodeOutputStates(outputCount, value[17:])
	if err != nil {
		return nil, err
	}
	return &model.UnspentTx{
		TxHash:       txHash,
		BlockHeight:  int32(binary.LittleEndian.Uint32(value[0:4])),
		TxIndex:      binary.LittleEndian.Uint32(value[4:8]),
		Version:      int32(binary.LittleEndian.Uint32(value[8:12])),
		IsCoinbase:   value[12] == 1,
		OutputStates: states,
	}, nil
}

func encodeTxOut(out *wire.TxOut) []byte {
	buf := make([]byte, 0, 12+len(out.PkScript))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(out.Value))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.PkScript)))
	return append(buf, out.PkScript...)
}

func decodeTxOut(value []byte) (*wire.TxOut, error) {
	if len(value) < 12 {
		return nil, fmt.Errorf("tx output record too short: %d bytes", len(value))
	}
	scriptLen := int(binary.LittleEndian.Uint32(value[8:12]))
	if len(value) != 12+scriptLen {
		return nil, fmt.Errorf("tx output script length mismatch")
	}
	return &wire.TxOut{
		Value:    int64(binary.LittleEndian.Uint64(value[0:8])),
		PkScript: append([]byte(nil), value[12:]...),
	}, nil
}

func encodeSpentTxs(txs []model.SpentTx) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(txs)))
	for _, tx := range txs {
		buf = append(buf, tx.TxHash[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(tx.BlockHeight))
		buf = binary.LittleEndian.AppendUint32(buf, tx.TxIndex)
		buf = binary.LittleEndian.AppendUint32(buf, tx.OutputCount)
		if tx.IsCoinbase {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func decodeSpentTxs(value []byte) ([]model.SpentTx, error) {
	if len(value) < 4 {
		return nil, fmt.Errorf("spent txs record too short")
	}
	count := int(binary.LittleEndian.Uint32(value[:4]))
	const rowSize = chainhash.HashSize + 13
	if len(value) != 4+count*rowSize {
		return nil, fmt.Errorf("spent txs record length mismatch")
	}
	txs := make([]model.SpentTx, 0, count)
	off := 4
	for i := 0; i < count; i++ {
		var tx model.SpentTx
		copy(tx.TxHash[:], value[off:off+chainhash.HashSize])
		off += chainhash.HashSize
		tx.BlockHeight = int32(binary.LittleEndian.Uint32(value[off:]))
		tx.TxIndex = binary.LittleEndian.Uint32(value[off+4:])
		tx.OutputCount = binary.LittleEndian.Uint32(value[off+8:])
		tx.IsCoinbase = value[off+12] == 1
		off += 13
		txs = append(txs, tx)
	}
	return txs, nil
}

func encodePrevTxOutput(prev *model.PrevTxOutput) []byte {
	out := encodeTxOut(prev.Output)
	owner := encodeUnspentTx(&prev.UnspentTx)
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(out)))
	buf = append(buf, out...)
	buf = append(buf, prev.UnspentTx.TxHash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(owner)))
	return append(buf, owner...)
}

func decodePrevTxOutput(value []byte) (*model.PrevTxOutput, int, error) {
	if len(value) < 4 {
		return nil, 0, fmt.Errorf("prev output record too short")
	}
	outLen := int(binary.LittleEndian.Uint32(value[:4]))
	off := 4
	if len(value) < off+outLen+chainhash.HashSize+4 {
		return nil, 0, fmt.Errorf("prev output record truncated")
	}
	out, err := decodeTxOut(value[off : off+outLen])
	if err != nil {
		return nil, 0, err
	}
	off += outLen
	var ownerHash chainhash.Hash
	copy(ownerHash[:], value[off:off+chainhash.HashSize])
	off += chainhash.HashSize
	ownerLen := int(binary.LittleEndian.Uint32(value[off:]))
	off += 4
	if len(value) < off+ownerLen {
		return nil, 0, fmt.Errorf("prev output owner truncated")
	}
	owner, err := decodeUnspentTx(ownerHash, value[off:off+ownerLen])
	if err != nil {
		return nil, 0, err
	}
	off += ownerLen
	return &model.PrevTxOutput{Output: out, UnspentTx: *owner}, off, nil
}

func encodeUnmintedTxs(txs []model.UnmintedTx) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(txs)))
	for _, tx := range txs {
		buf = append(buf, tx.TxHash[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, tx.TxIndex)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.PrevOutputs)))
		for _, prev := range tx.PrevOutputs {
			buf = append(buf, encodePrevTxOutput(prev)...)
		}
	}
	return buf
}

func decodeUnmintedTxs(value []byte) ([]model.UnmintedTx, error) {
	if len(value) < 4 {
		return nil, fmt.Errorf("unminted txs record too short")
	}
	count := int(binary.LittleEndian.Uint32(value[:4]))
	txs := make([]model.UnmintedTx, 0, count)
	off := 4
	for i := 0; i < count; i++ {
		if len(value) < off+chainhash.HashSize+8 {
			return nil, fmt.Errorf("unminted tx record truncated")
		}
		var tx model.UnmintedTx
		copy(tx.TxHash[:], value[off:off+chainhash.HashSize])
		off += chainhash.HashSize
		tx.TxIndex = binary.LittleEndian.Uint32(value[off:])
		prevCount := int(binary.LittleEndian.Uint32(value[off+4:]))
		off += 8
		tx.PrevOutputs = make([]*model.PrevTxOutput, 0, prevCount)
		for j := 0; j < prevCount; j++ {
			prev, n, err := decodePrevTxOutput(value[off:])
			if err != nil {
				return nil, err
			}
			tx.PrevOutputs = append(tx.PrevOutputs, prev)
			off += n
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func encodeCounters(c model.Counters) []byte {
	buf := make([]byte, 0, 40)
	for _, v := range []int64{c.UnspentTxCount, c.UnspentOutputCount, c.TotalTxCount, c.TotalInputCount, c.TotalOutputCount} {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
	}
	return buf
}

func decodeCounters(value []byte) (model.Counters, error) {
	if len(value) != 40 {
		return model.Counters{}, fmt.Errorf("counters record has %d bytes", len(value))
	}
	return model.Counters{
		UnspentTxCount:     int64(binary.LittleEndian.Uint64(value[0:8])),
		UnspentOutputCount: int64(binary.LittleEndian.Uint64(value[8:16])),
		TotalTxCount:       int64(binary.LittleEndian.Uint64(value[16:24])),
		TotalInputCount:    int64(binary.LittleEndian.Uint64(value[24:32])),
		TotalOutputCount:   int64(binary.LittleEndian.Uint64(value[32:40])),
	}, nil
}

func encodeTip(hash chainhash.Hash, height int32) []byte {
	buf := make([]byte, 0, chainhash.HashSize+4)
	buf = append(buf, hash[:]...)
	return binary.LittleEndian.AppendUint32(buf, uint32(height))
}

func decodeTip(value []byte) (chainhash.Hash, int32, error) {
	if len(value) != chainhash.HashSize+4 {
		return chainhash.Hash{}, 0, fmt.Errorf("tip record has %d bytes", len(value))
	}
	var hash chainhash.Hash
	copy(hash[:], value[:chainhash.HashSize])
	return hash, int32(binary.LittleEndian.Uint32(value[chainhash.HashSize:])), nil
}
