// Package hash implements the personalized blake2b digest used across CKB
// for script, transaction and signing-message hashes.
package hash

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/minio/blake2b-simd"
)

var personalization = []byte("ckb-default-hash")

// Blake256 returns the 32-byte ckb-default-hash digest of the concatenated input.
func Blake256(data ...[]byte) common.Hash {
	h, err := blake2b.New(&blake2b.Config{Size: 32, Person: personalization})
	if err != nil {
		// only reachable with an invalid static config
		panic(err)
	}
	for _, d := range data {
		_, _ = h.Write(d)
	}
	return common.BytesToHash(h.Sum(nil))
}

// Blake160 returns the first 20 bytes of Blake256, the form used as lock args.
func Blake160(data []byte) []byte {
	sum := Blake256(data)
	return sum[:20]
}
