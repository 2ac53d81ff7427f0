// Package model defines domain models for the chain-state engine.
package model

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ChainedHeader is a block header placed in the header graph, carrying its
// height and the cumulative proof-of-work up to and including itself.
// Values are immutable after construction.
type ChainedHeader struct {
	Header    wire.BlockHeader
	Height    int32
	TotalWork *big.Int

	hash chainhash.Hash
}

// NewChainedHeader builds a ChainedHeader and caches the header hash.
func NewChainedHeader(header wire.BlockHeader, height int32, totalWork *big.Int) *ChainedHeader {
	return &ChainedHeader{
		Header:    header,
		Height:    height,
		TotalWork: totalWork,
		hash:      header.BlockHash(),
	}
}

// Hash returns the cached double-SHA256 hash of the header.
func (h *ChainedHeader) Hash() chainhash.Hash {
	return h.hash
}

// PrevHash returns the hash of the parent header.
func (h *ChainedHeader) PrevHash() chainhash.Hash {
	return h.Header.PrevBlock
}

// Chain is an ordered sequence of chained headers from genesis to tip.
type Chain struct {
	headers []*ChainedHeader
}

// NewChain validates contiguity and linkage of headers and wraps them.
// Heights must start at 0 and each header's previous hash must match its
// predecessor.
func NewChain(headers []*ChainedHeader) (*Chain, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("chain requires at least a genesis header")
	}
	if headers[0].Height != 0 {
		return nil, fmt.Errorf("chain must start at height 0, got %d", headers[0].Height)
	}
	for i := 1; i < len(headers); i++ {
		if headers[i].Height != headers[i-1].Height+1 {
			return nil, fmt.Errorf("non-contiguous heights %d -> %d", headers[i-1].Height, headers[i].Height)
		}
		if headers[i].PrevHash() != headers[i-1].Hash() {
			return nil, fmt.Errorf("broken link at height %d", headers[i].Height)
		}
	}
	return &Chain{headers: headers}, nil
}

// Tip returns the highest header of the chain.
func (c *Chain) Tip() *ChainedHeader {
	return c.headers[len(c.headers)-1]
}

// Genesis returns the height-0 header.
func (c *Chain) Genesis() *ChainedHeader {
	return c.headers[0]
}

// Height returns the tip height.
func (c *Chain) Height() int32 {
	return c.Tip().Height
}

// AtHeight returns the header at the given height, if covered by the chain.
func (c *Chain) AtHeight(height int32) (*ChainedHeader, bool) {
	if height < 0 || int(height) >= len(c.headers) {
		return nil, false
	}
	return c.headers[height], true
}

// Len returns the number of headers in the chain.
func (c *Chain) Len() int {
	return len(c.headers)
}

// Direction indicates whether a replay step connects or disconnects a block.
type Direction int8

const (
	// DirectionDisconnect rolls a block's effects back off the UTXO set.
	DirectionDisconnect Direction = -1
	// DirectionConnect applies a block's effects onto the UTXO set.
	DirectionConnect Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionConnect:
		return "connect"
	case DirectionDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("direction(%d)", int8(d))
	}
}
