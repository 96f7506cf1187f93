package porep

import (
	"encoding/binary"

	sha256 "github.com/minio/sha256-simd"

	"github.com/filecoin-project/go-porep/pkg/types"
)

const (
	challengeTag = "stacked-drg/challenge/v1"
	seedTag      = "stacked-drg/seed/v1"
)

// DeriveChallenges returns count node indices drawn from seed:
//
//	challenge k = le64(sha256(tag ‖ seed ‖ le64(k))[0:8]) mod n
//
// Indices may repeat.
func DeriveChallenges(seed types.Seed, count int, n uint64) []types.NodeIndex {
	if count <= 0 || n == 0 {
		return nil
	}
	buf := make([]byte, len(challengeTag)+len(seed)+8)
	off := copy(buf, challengeTag)
	off += copy(buf[off:], seed[:])

	out := make([]types.NodeIndex, count)
	for k := range out {
		binary.LittleEndian.PutUint64(buf[off:], uint64(k))
		sum := sha256.Sum256(buf)
		out[k] = binary.LittleEndian.Uint64(sum[:8]) % n
	}
	return out
}

// ChallengeSeed binds public randomness, such as a beacon value, to a
// replica commitment. Neither party can pick the resulting seed alone.
func ChallengeSeed(randomness []byte, commR types.Domain) types.Seed {
	h := sha256.New()
	_, _ = h.Write([]byte(seedTag))
	_, _ = h.Write(randomness)
	_, _ = h.Write(commR[:])

	var s types.Seed
	copy(s[:], h.Sum(nil))
	return s
}
