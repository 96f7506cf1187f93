package porep

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/hasher"
	"github.com/filecoin-project/go-porep/pkg/merkle"
	"github.com/filecoin-project/go-porep/pkg/stacked"
	"github.com/filecoin-project/go-porep/pkg/store"
	tf "github.com/filecoin-project/go-porep/pkg/testhelpers/testflags"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// Pinned outputs for N=16, d=4, e=2, L=2, seed 42, sha256, xor.
const (
	goldenLayer0    = "6bfac365943d3a71c50e740ff0ec42098d1ec702fe1ff3b843f1a374b033ca35"
	goldenLayer1    = "b6a6dbcfe0297f43a94033210fb7d33978314dcad2ae4e0d8e610f5a5371a627"
	goldenCommD     = "36158fc635630f5eb1bfb5046784c9790e70390df375bb79b8b64fc1e9b45f12"
	goldenCommRLast = "d87d620e1d151673d732eecb5ecedc07957ba703945474969291867d3e729020"
	goldenCommR     = "a07ebf718e455d48279b6db4072c36c3f3a597ef38b65b9aca47b89f999a3d15"
)

func smallParams(t *testing.T) *PublicParams {
	pp, err := Setup(SetupParams{
		Nodes:           16,
		BaseDegree:      4,
		ExpansionDegree: 2,
		Layers:          2,
		Seed:            types.SeedFromUint64(42),
		ChallengeCount:  4,
		Workers:         2,
	})
	require.NoError(t, err)
	return pp
}

func fillerData(n uint64) []byte {
	data := make([]byte, n*types.NodeSize)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func fillerID() types.ReplicaID {
	var id types.ReplicaID
	for i := range id {
		id[i] = byte(i)
	}
	return id
}

type sealed struct {
	pp  *PublicParams
	st  store.Store
	tau *Tau
	aux *Aux
}

func seal(t *testing.T, pp *PublicParams, data []byte) *sealed {
	st := store.NewMemStore()
	tau, aux, err := Replicate(context.Background(), pp, fillerID(), data, st)
	require.NoError(t, err)
	return &sealed{pp: pp, st: st, tau: tau, aux: aux}
}

func (s *sealed) check(t *testing.T, tau *Tau, seed types.Seed) bool {
	ctx := context.Background()
	pub := PublicInputs{ReplicaID: fillerID(), Tau: tau, ChallengeSeed: seed}
	proof, err := Prove(ctx, s.pp, pub, s.aux)
	require.NoError(t, err)
	ok, err := Verify(ctx, s.pp, pub, proof)
	require.NoError(t, err)
	return ok
}

// recommit rebuilds the tree of layer l after its labels were changed, as a
// prover that cheats consistently would.
func (s *sealed) recommit(t *testing.T, l int, mutate func(labels []byte)) *Tau {
	tree := s.aux.Layers[l]
	labels := make([]byte, s.pp.SealedSize())
	require.NoError(t, tree.Region().ReadRange(0, labels))
	mutate(labels)
	rebuilt, err := merkle.Commit(context.Background(), s.pp.Hasher, labels, tree.Region(), 1)
	require.NoError(t, err)
	s.aux.Layers[l] = rebuilt
	return TauFromAux(s.pp, s.aux)
}

func touches(t *testing.T, pp *PublicParams, c types.NodeIndex, layer int, nodes map[types.NodeIndex]bool) bool {
	if nodes[c] {
		return true
	}
	ps, err := pp.Graph.Parents(layer, c)
	require.NoError(t, err)
	for _, p := range ps.Base {
		if nodes[p] {
			return true
		}
	}
	return false
}

func TestGoldenEndToEnd(t *testing.T) {
	tf.UnitTest(t)

	pp := smallParams(t)
	s := seal(t, pp, fillerData(16))

	require.Len(t, s.tau.LayerRoots, 2)
	assert.Equal(t, goldenLayer0, s.tau.LayerRoots[0].String())
	assert.Equal(t, goldenLayer1, s.tau.LayerRoots[1].String())
	assert.Equal(t, goldenCommD, s.tau.CommD.String())
	assert.Equal(t, goldenCommRLast, s.tau.CommRLast.String())
	assert.Equal(t, goldenCommR, s.tau.CommR.String())

	seed := types.SeedFromUint64(7)
	assert.Equal(t, []types.NodeIndex{6, 9, 14, 3}, DeriveChallenges(seed, 4, 16))
	assert.True(t, s.check(t, s.tau, seed))
}

func TestSealIdempotent(t *testing.T) {
	tf.UnitTest(t)

	pp := smallParams(t)
	a := seal(t, pp, fillerData(16))
	b := seal(t, pp, fillerData(16))
	assert.Equal(t, a.tau, b.tau)
}

func TestTamperedStoredLabel(t *testing.T) {
	tf.UnitTest(t)

	pp := smallParams(t)
	s := seal(t, pp, fillerData(16))

	region := s.aux.Layers[1].Region()
	v, err := store.ReadRecord(region, 5)
	require.NoError(t, err)
	v[3] ^= 0x01
	require.NoError(t, store.WriteRecord(region, 5, v))

	// node 6 has node 5 as a base parent in layer 1
	assert.False(t, s.check(t, s.tau, types.SeedFromUint64(7)))

	// leaf 4 shares its first sibling with leaf 5
	hit := map[types.NodeIndex]bool{4: true, 5: true}
	for k := uint64(0); k < 50; k++ {
		seed := types.SeedFromUint64(k)
		want := true
		for _, c := range DeriveChallenges(seed, pp.ChallengeCount, pp.Nodes()) {
			if touches(t, pp, c, 1, hit) {
				want = false
			}
		}
		assert.Equal(t, want, s.check(t, s.tau, seed), "seed %d", k)
	}
}

func TestTamperedCommittedLabel(t *testing.T) {
	tf.UnitTest(t)

	pp := smallParams(t)
	s := seal(t, pp, fillerData(16))
	tau := s.recommit(t, 1, func(labels []byte) {
		types.NodeAt(labels, 5)[0] ^= 0x80
	})
	require.NotEqual(t, s.tau.CommR, tau.CommR)

	assert.False(t, s.check(t, tau, types.SeedFromUint64(7)))

	hit := map[types.NodeIndex]bool{5: true}
	for k := uint64(0); k < 50; k++ {
		seed := types.SeedFromUint64(k)
		want := true
		for _, c := range DeriveChallenges(seed, pp.ChallengeCount, pp.Nodes()) {
			if touches(t, pp, c, 1, hit) {
				want = false
			}
		}
		assert.Equal(t, want, s.check(t, tau, seed), "seed %d", k)
	}
}

func TestTamperDetectionGrowsWithFanOut(t *testing.T) {
	tf.UnitTest(t)

	pp, err := Setup(SetupParams{
		Nodes:           256,
		BaseDegree:      5,
		ExpansionDegree: 4,
		Layers:          3,
		Seed:            types.SeedFromUint64(42),
		ChallengeCount:  50,
	})
	require.NoError(t, err)
	s := seal(t, pp, fillerData(256))

	order := DeriveChallenges(types.SeedFromUint64(1000), 4096, 256)
	corrupted := map[types.NodeIndex]bool{}
	last := -1.0
	for _, target := range []int{1, 4, 32, 128} {
		tau := s.recommit(t, 0, func(labels []byte) {
			for _, i := range order {
				if len(corrupted) >= target {
					break
				}
				if !corrupted[i] {
					corrupted[i] = true
					types.NodeAt(labels, i)[1] ^= 0x04
				}
			}
		})
		require.Len(t, corrupted, target)

		failures := 0
		const rounds = 10
		for k := uint64(0); k < rounds; k++ {
			if !s.check(t, tau, types.SeedFromUint64(k)) {
				failures++
			}
		}
		rate := float64(failures) / rounds
		assert.GreaterOrEqual(t, rate, last, "%d corrupted nodes", target)
		last = rate
	}
	assert.Equal(t, 1.0, last)
}

func TestVerifyParameterMismatch(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	pp := smallParams(t)
	s := seal(t, pp, fillerData(16))

	seed := types.SeedFromUint64(7)
	pub := PublicInputs{ReplicaID: fillerID(), Tau: s.tau, ChallengeSeed: seed}
	proof, err := Prove(ctx, pp, pub, s.aux)
	require.NoError(t, err)

	mismatch := func(pp *PublicParams, pub PublicInputs, proof *Proof) {
		ok, err := Verify(ctx, pp, pub, proof)
		assert.False(t, ok)
		assert.True(t, xerrors.Is(err, types.ErrParameterMismatch), "%v", err)
	}

	other, err := Setup(SetupParams{
		Nodes: 16, BaseDegree: 4, ExpansionDegree: 2, Layers: 2,
		Seed: types.SeedFromUint64(42), ChallengeCount: 5,
	})
	require.NoError(t, err)
	mismatch(other, pub, proof)

	otherSeed, err := Setup(SetupParams{
		Nodes: 16, BaseDegree: 4, ExpansionDegree: 2, Layers: 2,
		Seed: types.SeedFromUint64(43), ChallengeCount: 4,
	})
	require.NoError(t, err)
	mismatch(otherSeed, pub, proof)

	wrongID := pub
	wrongID.ReplicaID[0] ^= 1
	mismatch(pp, wrongID, proof)

	wrongSeed := pub
	wrongSeed.ChallengeSeed = types.SeedFromUint64(8)
	mismatch(pp, wrongSeed, proof)

	badCommR := *s.tau
	badCommR.CommR[0] ^= 1
	mismatch(pp, PublicInputs{ReplicaID: fillerID(), Tau: &badCommR, ChallengeSeed: seed}, proof)

	fewRoots := *s.tau
	fewRoots.LayerRoots = fewRoots.LayerRoots[:1]
	mismatch(pp, PublicInputs{ReplicaID: fillerID(), Tau: &fewRoots, ChallengeSeed: seed}, proof)

	short := *proof
	short.Challenges = proof.Challenges[:3]
	mismatch(pp, pub, &short)
}

func TestVerifyRejectsMalformedEvidence(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	pp := smallParams(t)
	s := seal(t, pp, fillerData(16))
	pub := PublicInputs{ReplicaID: fillerID(), Tau: s.tau, ChallengeSeed: types.SeedFromUint64(7)}

	fresh := func() *Proof {
		proof, err := Prove(ctx, pp, pub, s.aux)
		require.NoError(t, err)
		return proof
	}
	rejected := func(proof *Proof) {
		ok, err := Verify(ctx, pp, pub, proof)
		assert.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := Verify(ctx, pp, pub, fresh())
	require.NoError(t, err)
	require.True(t, ok)

	p := fresh()
	p.Challenges[0].Node = (p.Challenges[0].Node + 1) % 16
	rejected(p)

	p = fresh()
	p.Challenges[1].Layers[1].BaseParents = p.Challenges[1].Layers[1].BaseParents[1:]
	rejected(p)

	p = fresh()
	p.Challenges[2].Layers[0].Layer = 1
	rejected(p)

	p = fresh()
	p.Challenges[3].Layers = p.Challenges[3].Layers[:1]
	rejected(p)

	p = fresh()
	p.Challenges[0].Encoding.Data.Value[4] ^= 1
	rejected(p)

	p = fresh()
	p.Challenges[0].Encoding.Column[0] ^= 1
	rejected(p)

	p = fresh()
	ep := p.Challenges[1].Layers[1].ExpansionParents
	ep[0], ep[1] = ep[1], ep[0]
	rejected(p)
}

func TestProofEncodingRoundTrip(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	pp := smallParams(t)
	s := seal(t, pp, fillerData(16))
	pub := PublicInputs{ReplicaID: fillerID(), Tau: s.tau, ChallengeSeed: types.SeedFromUint64(7)}

	proof, err := Prove(ctx, pp, pub, s.aux)
	require.NoError(t, err)
	raw, err := proof.Encode()
	require.NoError(t, err)

	decoded, err := DecodeProof(raw)
	require.NoError(t, err)
	again, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, raw, again)

	ok, err := Verify(ctx, pp, pub, decoded)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = DecodeProof(raw[:len(raw)/2])
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	pp := smallParams(t)
	data := fillerData(16)
	s := seal(t, pp, data)

	replica, err := s.aux.Replica()
	require.NoError(t, err)
	all, err := ExtractAll(ctx, pp, fillerID(), replica)
	require.NoError(t, err)
	assert.Equal(t, data, all)

	for i := uint64(0); i < 16; i++ {
		v, err := Extract(ctx, pp, s.aux, i)
		require.NoError(t, err)
		assert.Equal(t, types.NodeAt(data, i), v[:])
	}
	_, err = Extract(ctx, pp, s.aux, 16)
	assert.True(t, xerrors.Is(err, types.ErrOutOfBounds))

	stored, err := s.aux.Data()
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestDiskStoreReopen(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	pp := smallParams(t)
	dir := t.TempDir()

	st, err := store.NewDiskStore(dir)
	require.NoError(t, err)
	tau, aux, err := Replicate(ctx, pp, fillerID(), fillerData(16), st)
	require.NoError(t, err)
	require.NoError(t, aux.Close())

	st, err = store.NewDiskStore(dir)
	require.NoError(t, err)
	reopened, err := OpenAux(pp, st)
	require.NoError(t, err)
	defer reopened.Close() // nolint: errcheck

	assert.Equal(t, tau, TauFromAux(pp, reopened))

	pub := PublicInputs{ReplicaID: fillerID(), Tau: tau, ChallengeSeed: types.SeedFromUint64(7)}
	proof, err := Prove(ctx, pp, pub, reopened)
	require.NoError(t, err)
	ok, err := Verify(ctx, pp, pub, proof)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = OpenAux(pp, store.NewMemStore())
	assert.True(t, xerrors.Is(err, types.ErrStorageIO))
}

func TestFieldCombineWithBlake2b(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	pp, err := Setup(SetupParams{
		Nodes: 33, BaseDegree: 3, ExpansionDegree: 3, Layers: 3,
		Seed: types.SeedFromUint64(9), Hasher: hasher.Blake2bName,
		Combine: stacked.FieldName, ChallengeCount: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, hasher.Blake2bName, pp.Header().Hasher)
	assert.Equal(t, stacked.FieldName, pp.Header().Combine)

	data := fillerData(33)
	for i := uint64(0); i < 33; i++ {
		types.NodeAt(data, i)[31] &= 0x3f
	}
	s := seal(t, pp, data)
	assert.True(t, s.check(t, s.tau, types.SeedFromUint64(3)))

	replica, err := s.aux.Replica()
	require.NoError(t, err)
	back, err := ExtractAll(ctx, pp, fillerID(), replica)
	require.NoError(t, err)
	assert.Equal(t, data, back)

	bad := fillerData(33)
	_, _, err = Replicate(ctx, pp, fillerID(), bad, store.NewMemStore())
	assert.True(t, xerrors.Is(err, types.ErrInvalidParameters))
}

func TestSetupRejectsInvalid(t *testing.T) {
	tf.UnitTest(t)

	good := SetupParams{Nodes: 16, BaseDegree: 4, ExpansionDegree: 2, Layers: 2, ChallengeCount: 1}
	_, err := Setup(good)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*SetupParams){
		"no challenges": func(sp *SetupParams) { sp.ChallengeCount = 0 },
		"no nodes":      func(sp *SetupParams) { sp.Nodes = 0 },
		"degree":        func(sp *SetupParams) { sp.BaseDegree = 16 },
		"no layers":     func(sp *SetupParams) { sp.Layers = 0 },
		"expansion":     func(sp *SetupParams) { sp.ExpansionDegree = 17 },
		"hasher":        func(sp *SetupParams) { sp.Hasher = "md5" },
		"combiner":      func(sp *SetupParams) { sp.Combine = "mul" },
	} {
		sp := good
		mutate(&sp)
		_, err := Setup(sp)
		assert.True(t, xerrors.Is(err, types.ErrInvalidParameters), name)
	}

	pp := smallParams(t)
	_, _, err = Replicate(context.Background(), pp, fillerID(), make([]byte, 10), store.NewMemStore())
	assert.True(t, xerrors.Is(err, types.ErrInvalidParameters))
}

func TestGraphCacheSharesGraphs(t *testing.T) {
	tf.UnitTest(t)

	a := smallParams(t)
	b := smallParams(t)
	assert.Same(t, a.Graph, b.Graph)

	assert.Error(t, SetGraphCacheSize(0))
	require.NoError(t, SetGraphCacheSize(DefaultGraphCacheSize))
}

func TestDeriveChallenges(t *testing.T) {
	tf.UnitTest(t)

	seed := types.SeedFromUint64(11)
	a := DeriveChallenges(seed, 100, 1000)
	b := DeriveChallenges(seed, 100, 1000)
	require.Len(t, a, 100)
	assert.Equal(t, a, b)
	for _, c := range a {
		assert.Less(t, c, uint64(1000))
	}
	assert.Equal(t, a[:10], DeriveChallenges(seed, 10, 1000))
	assert.NotEqual(t, a, DeriveChallenges(types.SeedFromUint64(12), 100, 1000))
	assert.Nil(t, DeriveChallenges(seed, 0, 1000))
}

func TestChallengeSeedBindsCommitment(t *testing.T) {
	tf.UnitTest(t)

	var commR types.Domain
	commR[0] = 1
	a := ChallengeSeed([]byte("beacon"), commR)
	assert.Equal(t, a, ChallengeSeed([]byte("beacon"), commR))
	commR[0] = 2
	assert.NotEqual(t, a, ChallengeSeed([]byte("beacon"), commR))
	assert.NotEqual(t, a, ChallengeSeed([]byte("other"), commR))
}

func TestTauCIDs(t *testing.T) {
	tf.UnitTest(t)

	s := seal(t, smallParams(t), fillerData(16))
	r, err := s.tau.CommRCID()
	require.NoError(t, err)
	d, err := s.tau.CommDCID()
	require.NoError(t, err)
	assert.True(t, r.Defined())
	assert.True(t, d.Defined())
	assert.NotEqual(t, r, d)
}

func TestProofScheme(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	var scheme ProofScheme = StackedDrg{}
	pp, err := scheme.Setup(SetupParams{
		Nodes: 16, BaseDegree: 4, ExpansionDegree: 2, Layers: 2,
		Seed: types.SeedFromUint64(42), ChallengeCount: 4,
	})
	require.NoError(t, err)

	s := seal(t, pp, fillerData(16))
	pub := PublicInputs{ReplicaID: fillerID(), Tau: s.tau, ChallengeSeed: types.SeedFromUint64(7)}
	proof, err := scheme.Prove(ctx, pp, pub, s.aux)
	require.NoError(t, err)
	ok, err := scheme.Verify(ctx, pp, pub, proof)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProveHonorsCancel(t *testing.T) {
	tf.UnitTest(t)

	pp := smallParams(t)
	s := seal(t, pp, fillerData(16))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Prove(ctx, pp, PublicInputs{ReplicaID: fillerID(), Tau: s.tau}, s.aux)
	assert.True(t, xerrors.Is(err, context.Canceled))

	_, _, err = Replicate(ctx, pp, fillerID(), fillerData(16), store.NewMemStore())
	assert.True(t, xerrors.Is(err, context.Canceled))
}

func TestProveRejectsMissingAux(t *testing.T) {
	tf.UnitTest(t)

	pp := smallParams(t)
	_, err := Prove(context.Background(), pp, PublicInputs{ReplicaID: fillerID()}, nil)
	assert.True(t, xerrors.Is(err, types.ErrInvalidParameters))

	_, err = Prove(context.Background(), pp, PublicInputs{ReplicaID: fillerID()}, &Aux{})
	assert.True(t, xerrors.Is(err, types.ErrInvalidParameters))
}

func TestVerifyOutcome(t *testing.T) {
	tf.UnitTest(t)

	ok, err := outcome(nil)
	assert.NoError(t, err)
	assert.True(t, ok)

	rejected := multierror.Append(nil,
		xerrors.Errorf("challenge 0: %w", types.NewVerificationFailed("bad label")),
		xerrors.New("undecodable opening"),
	)
	ok, err = outcome(rejected.ErrorOrNil())
	assert.NoError(t, err)
	assert.False(t, ok)

	// an index the verifier cannot evaluate is an error, even next to
	// rejected evidence
	broken := multierror.Append(nil,
		xerrors.Errorf("challenge 0: %w", types.NewVerificationFailed("bad label")),
		xerrors.Errorf("challenge 1: %w", types.NewOutOfBounds("node", 20, 16)),
	)
	ok, err = outcome(broken.ErrorOrNil())
	assert.False(t, ok)
	assert.True(t, xerrors.Is(err, types.ErrOutOfBounds))
}

// failingStore refuses to create one region.
type failingStore struct {
	store.Store
	refuse string
}

func (s *failingStore) Create(name string, records uint64) (store.Region, error) {
	if name == s.refuse {
		return nil, types.WrapStorage("create "+name, xerrors.New("disk full"))
	}
	return s.Store.Create(name, records)
}

func TestFailedSealRemovesRegions(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	pp := smallParams(t)

	for _, refuse := range []string{TreeDName, LayerTreeName(1), TreeRLastName} {
		t.Run(refuse, func(t *testing.T) {
			dir := t.TempDir()
			disk, err := store.NewDiskStore(dir)
			require.NoError(t, err)

			_, _, err = Replicate(ctx, pp, fillerID(), fillerData(16), &failingStore{Store: disk, refuse: refuse})
			assert.True(t, xerrors.Is(err, types.ErrStorageIO))

			left, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, left)
		})
	}
}

func TestSealLargeGraph(t *testing.T) {
	tf.SlowTest(t)

	ctx := context.Background()
	pp, err := Setup(SetupParams{
		Nodes:           1 << 15,
		BaseDegree:      6,
		ExpansionDegree: 8,
		Layers:          4,
		Seed:            types.SeedFromUint64(42),
		ChallengeCount:  20,
	})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "replica")
	st, err := store.NewDiskStore(dir)
	require.NoError(t, err)
	data := fillerData(pp.Nodes())
	tau, aux, err := Replicate(ctx, pp, fillerID(), data, st)
	require.NoError(t, err)
	defer aux.Close() // nolint: errcheck

	pub := PublicInputs{ReplicaID: fillerID(), Tau: tau, ChallengeSeed: ChallengeSeed([]byte("slow"), tau.CommR)}
	proof, err := Prove(ctx, pp, pub, aux)
	require.NoError(t, err)
	ok, err := Verify(ctx, pp, pub, proof)
	require.NoError(t, err)
	assert.True(t, ok)

	replica, err := aux.Replica()
	require.NoError(t, err)
	back, err := ExtractAll(ctx, pp, fillerID(), replica)
	require.NoError(t, err)
	assert.Equal(t, data, back)
}
