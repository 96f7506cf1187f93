package porep

import (
	"context"
)

// ProofScheme is the interface a proof-of-replication construction offers to
// its callers.
type ProofScheme interface {
	Setup(sp SetupParams) (*PublicParams, error)
	Prove(ctx context.Context, pp *PublicParams, pub PublicInputs, aux *Aux) (*Proof, error)
	Verify(ctx context.Context, pp *PublicParams, pub PublicInputs, proof *Proof) (bool, error)
}

// StackedDrg is the stacked DRG construction.
type StackedDrg struct{}

var _ ProofScheme = StackedDrg{}

func (StackedDrg) Setup(sp SetupParams) (*PublicParams, error) {
	return Setup(sp)
}

func (StackedDrg) Prove(ctx context.Context, pp *PublicParams, pub PublicInputs, aux *Aux) (*Proof, error) {
	return Prove(ctx, pp, pub, aux)
}

func (StackedDrg) Verify(ctx context.Context, pp *PublicParams, pub PublicInputs, proof *Proof) (bool, error) {
	return Verify(ctx, pp, pub, proof)
}
