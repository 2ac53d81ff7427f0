package engine

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Two historical blocks re-use an earlier coinbase transaction hash. Their
// mint step is skipped so the earlier instance's outputs stay addressable.
// These identities are consensus-frozen; no other duplicate is permitted.
var duplicateCoinbases = map[int32]chainhash.Hash{
	91722: mustHash("e3bf3d07d4b0375638d5f1db5255fe07ba2c4cb067cd81b84ee974b6585fb468"),
	91812: mustHash("d5d27987d2a3dfc724e359870c6644b40e497bdc0589a033220fe15429d88599"),
}

// isDuplicateCoinbase reports whether the (height, coinbase tx hash) pair is
// one of the frozen duplicate-coinbase exceptions.
func isDuplicateCoinbase(height int32, txHash chainhash.Hash) bool {
	expected, ok := duplicateCoinbases[height]
	return ok && expected == txHash
}

func mustHash(s string) chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic("invalid frozen hash constant: " + s)
	}
	return *hash
}
