package porep

import (
	"github.com/filecoin-project/go-porep/pkg/encoding"
	"github.com/filecoin-project/go-porep/pkg/merkle"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// PublicInputs are the values both parties know before a proof is made.
type PublicInputs struct {
	ReplicaID     types.ReplicaID
	Tau           *Tau
	ChallengeSeed types.Seed
}

// LabeledNode is one leaf of a committed tree with its opening.
type LabeledNode struct {
	Index types.NodeIndex
	Value types.Domain
	Proof merkle.InclusionProof
}

// LayerProof opens a challenged node in one layer together with every
// parent its label was hashed from.
type LayerProof struct {
	Layer            int
	Node             LabeledNode
	BaseParents      []LabeledNode
	ExpansionParents []LabeledNode
}

// EncodingProof opens the data block under comm_d and the replica block
// under comm_r_last. Column is the digest of the node's labels across all
// layers.
type EncodingProof struct {
	Data    LabeledNode
	Replica LabeledNode
	Column  types.Domain
}

// ChallengeProof is the evidence for one challenged node.
type ChallengeProof struct {
	Node     types.NodeIndex
	Layers   []LayerProof
	Encoding EncodingProof
}

// Proof answers every challenge derived from ChallengeSeed. It holds no
// reference to the replica.
type Proof struct {
	Header        ParamsHeader
	ReplicaID     types.ReplicaID
	ChallengeSeed types.Seed
	Challenges    []ChallengeProof
}

// Encode returns the canonical CBOR encoding of the proof.
func (p *Proof) Encode() ([]byte, error) {
	return encoding.Encode(p)
}

// DecodeProof parses a proof produced by Encode.
func DecodeProof(raw []byte) (*Proof, error) {
	p := new(Proof)
	if err := encoding.Decode(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}
