package hasher

import (
	"hash"

	blake2b "github.com/minio/blake2b-simd"
	sha256 "github.com/minio/sha256-simd"
	"golang.org/x/crypto/blake2s"
)

const (
	SHA256Name  = "sha256"
	Blake2sName = "blake2s"
	Blake2bName = "blake2b"
)

func newSHA256() hash.Hash {
	return sha256.New()
}

func newBlake2s() hash.Hash {
	// a nil key never fails
	h, err := blake2s.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}

func newBlake2b() hash.Hash {
	return blake2b.New256()
}
