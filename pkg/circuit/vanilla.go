package circuit

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	sha256 "github.com/minio/sha256-simd"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/encoding"
	"github.com/filecoin-project/go-porep/pkg/porep"
	"github.com/filecoin-project/go-porep/pkg/types"
)

var log = logging.Logger("circuit")

// ErrWrongKey is returned when a key was made for other parameters.
var ErrWrongKey = xerrors.New("key does not match parameters")

// VanillaBackend is an in-process backend. Its proof is the encoded vanilla
// proof and verification re-runs porep.Verify. It is not succinct.
type VanillaBackend struct {
	pp *porep.PublicParams
}

var _ Backend = (*VanillaBackend)(nil)

// NewVanillaBackend returns a backend for pp.
func NewVanillaBackend(pp *porep.PublicParams) *VanillaBackend {
	return &VanillaBackend{pp: pp}
}

// Keys derives the key pair of the parameter set.
func (b *VanillaBackend) Keys() (ProvingKey, VerifyingKey, error) {
	raw, err := encoding.Encode(b.pp.Header())
	if err != nil {
		return nil, nil, err
	}
	sum := sha256.Sum256(raw)
	return ProvingKey(sum[:]), VerifyingKey(sum[:]), nil
}

type vanillaCircuit struct {
	proof  *porep.Proof
	inputs []types.Domain
}

func (c *vanillaCircuit) PublicInputs() []types.Domain {
	return c.inputs
}

func (b *VanillaBackend) BuildCircuit(proof *porep.Proof, in Inputs) (Circuit, error) {
	if proof == nil {
		return nil, types.NewInvalidParameters("missing proof")
	}
	inputs, err := GeneratePublicInputs(b.pp, in)
	if err != nil {
		return nil, err
	}
	return &vanillaCircuit{proof: proof, inputs: inputs}, nil
}

func (b *VanillaBackend) checkKey(key []byte) error {
	pk, _, err := b.Keys()
	if err != nil {
		return err
	}
	if string(pk) != string(key) {
		return ErrWrongKey
	}
	return nil
}

func (b *VanillaBackend) Prove(ctx context.Context, c Circuit, pk ProvingKey) (SnarkProof, error) {
	if err := b.checkKey(pk); err != nil {
		return nil, err
	}
	vc, ok := c.(*vanillaCircuit)
	if !ok {
		return nil, xerrors.Errorf("circuit %T was not built by this backend", c)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := vc.proof.Encode()
	if err != nil {
		return nil, err
	}
	return SnarkProof(raw), nil
}

func (b *VanillaBackend) Verify(ctx context.Context, p SnarkProof, in Inputs, vk VerifyingKey) (bool, error) {
	if err := b.checkKey(vk); err != nil {
		return false, err
	}
	proof, err := porep.DecodeProof(p)
	if err != nil {
		log.Debugf("undecodable proof: %s", err)
		return false, nil
	}
	return porep.Verify(ctx, b.pp, in.Public, proof)
}
