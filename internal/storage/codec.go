package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

// Key prefixes inside the embedded header and block-tx databases.
const (
	headerKeyPrefix  = 'h'
	invalidKeyPrefix = 'i'
	txCountKeyPrefix = 'n'
	blockTxKeyPrefix = 't'
)

const (
	blockTxFlagFull   = 0
	blockTxFlagPruned = 1
)

func headerKey(hash chainhash.Hash) []byte {
	return append([]byte{headerKeyPrefix}, hash[:]...)
}

func invalidKey(hash chainhash.Hash) []byte {
	return append([]byte{invalidKeyPrefix}, hash[:]...)
}

func txCountKey(block chainhash.Hash) []byte {
	return append([]byte{txCountKeyPrefix}, block[:]...)
}

func blockTxKey(block chainhash.Hash, index uint32) []byte {
	key := make([]byte, 0, 1+chainhash.HashSize+4)
	key = append(key, blockTxKeyPrefix)
	key = append(key, block[:]...)
	return binary.BigEndian.AppendUint32(key, index)
}

func encodeUint32(v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return buf[:]
}

func decodeUint32(value []byte) (uint32, error) {
	if len(value) != 4 {
		return 0, fmt.Errorf("uint32 record has %d bytes", len(value))
	}
	return binary.LittleEndian.Uint32(value), nil
}

func encodeChainedHeader(header *model.ChainedHeader) ([]byte, error) {
	work := header.TotalWork.Bytes()
	if len(work) > 0xff {
		return nil, fmt.Errorf("total work too wide: %d bytes", len(work))
	}
	var buf bytes.Buffer
	var height [4]byte
	binary.LittleEndian.PutUint32(height[:], uint32(header.Height))
	buf.Write(height[:])
	buf.WriteByte(byte(len(work)))
	buf.Write(work)
	if err := header.Header.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize header: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeChainedHeader(value []byte) (*model.ChainedHeader, error) {
	if len(value) < 5 {
		return nil, fmt.Errorf("header record too short: %d bytes", len(value))
	}
	height := int32(binary.LittleEndian.Uint32(value[:4]))
	workLen := int(value[4])
	if len(value) < 5+workLen {
		return nil, fmt.Errorf("header record truncated at total work")
	}
	work := new(big.Int).SetBytes(value[5 : 5+workLen])
	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(value[5+workLen:])); err != nil {
		return nil, fmt.Errorf("deserialize header: %w", err)
	}
	return model.NewChainedHeader(header, height, work), nil
}

func encodeBlockTx(entry model.BlockTx) ([]byte, error) {
	if entry.Pruned {
		return []byte{blockTxFlagPruned}, nil
	}
	var buf bytes.Buffer
	buf.WriteByte(blockTxFlagFull)
	if err := entry.Tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize tx: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBlockTx(value []byte) (model.BlockTx, error) {
	if len(value) == 0 {
		return model.BlockTx{}, fmt.Errorf("empty block tx record")
	}
	if value[0] == blockTxFlagPruned {
		return model.BlockTx{Pruned: true}, nil
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(value[1:])); err != nil {
		return model.BlockTx{}, fmt.Errorf("deserialize tx: %w", err)
	}
	return model.BlockTx{Tx: tx}, nil
}
