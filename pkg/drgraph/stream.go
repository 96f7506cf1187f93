package drgraph

import (
	"encoding/binary"

	sha256 "github.com/minio/sha256-simd"

	"github.com/filecoin-project/go-porep/pkg/types"
)

// Stream is a reproducible source of uint64 words. Block k of the stream is
//
//	sha256(tag ‖ seed ‖ le64(layer) ‖ le64(node) ‖ le64(k))
//
// and each block yields four little-endian words. No global or process
// state is involved, so every party derives the same words.
type Stream struct {
	buf     []byte
	counter uint64
	block   [32]byte
	word    int
}

// NewStream returns the stream for one (tag, seed, layer, node) tuple.
func NewStream(tag string, seed types.Seed, layer, node uint64) *Stream {
	buf := make([]byte, len(tag)+len(seed)+24)
	n := copy(buf, tag)
	n += copy(buf[n:], seed[:])
	binary.LittleEndian.PutUint64(buf[n:], layer)
	binary.LittleEndian.PutUint64(buf[n+8:], node)
	return &Stream{buf: buf, word: 4}
}

// Uint64 returns the next word.
func (s *Stream) Uint64() uint64 {
	if s.word == 4 {
		binary.LittleEndian.PutUint64(s.buf[len(s.buf)-8:], s.counter)
		s.block = sha256.Sum256(s.buf)
		s.counter++
		s.word = 0
	}
	v := binary.LittleEndian.Uint64(s.block[s.word*8:])
	s.word++
	return v
}
