package drgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	tf "github.com/filecoin-project/go-porep/pkg/testhelpers/testflags"
	"github.com/filecoin-project/go-porep/pkg/types"
)

func TestNewRejectsInvalidParameters(t *testing.T) {
	tf.UnitTest(t)

	seed := types.SeedFromUint64(42)
	cases := []struct {
		name   string
		nodes  uint64
		degree int
	}{
		{"no nodes", 0, 1},
		{"no degree", 16, 0},
		{"negative degree", 16, -3},
		{"degree equals nodes", 16, 16},
		{"degree above nodes", 8, 9},
	}
	for _, c := range cases {
		_, err := New(c.nodes, c.degree, seed)
		require.Error(t, err, c.name)
		assert.True(t, xerrors.Is(err, types.ErrInvalidParameters), c.name)
	}
}

func TestParentsInvariants(t *testing.T) {
	tf.UnitTest(t)

	for _, nodes := range []uint64{2, 5, 16, 64, 1000} {
		for _, degree := range []int{1, 2, 4, 6} {
			if uint64(degree) >= nodes {
				continue
			}
			g, err := New(nodes, degree, types.SeedFromUint64(42))
			require.NoError(t, err)

			for i := uint64(0); i < nodes; i++ {
				parents, err := g.Parents(i)
				require.NoError(t, err)

				if i < uint64(degree) {
					require.Len(t, parents, int(i))
					for k, p := range parents {
						assert.Equal(t, uint64(k), p)
					}
					continue
				}

				require.Len(t, parents, degree, "node %d", i)
				seen := map[uint64]bool{}
				for k, p := range parents {
					assert.Less(t, p, i, "node %d parent %d", i, p)
					assert.False(t, seen[p], "node %d has duplicate parent %d", i, p)
					seen[p] = true
					if k > 0 {
						assert.Less(t, parents[k-1], p)
					}
				}
				assert.True(t, seen[i-1], "node %d lacks its predecessor", i)
			}
		}
	}
}

func TestParentsDeterministic(t *testing.T) {
	tf.UnitTest(t)

	seed := types.SeedFromUint64(42)
	a, err := New(256, 6, seed, WithWorkers(1))
	require.NoError(t, err)
	b, err := New(256, 6, seed, WithWorkers(7))
	require.NoError(t, err)
	c, err := New(256, 6, seed, WithoutCache())
	require.NoError(t, err)

	for i := uint64(0); i < 256; i++ {
		pa, err := a.Parents(i)
		require.NoError(t, err)
		pb, err := b.Parents(i)
		require.NoError(t, err)
		pc, err := c.Parents(i)
		require.NoError(t, err)
		assert.Equal(t, pa, pb)
		assert.Equal(t, pa, pc)
	}
	assert.Equal(t, a.ID(), c.ID())
}

func TestSeedChangesGraph(t *testing.T) {
	tf.UnitTest(t)

	a, err := New(512, 6, types.SeedFromUint64(1))
	require.NoError(t, err)
	b, err := New(512, 6, types.SeedFromUint64(2))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	differ := 0
	for i := uint64(6); i < 512; i++ {
		pa, _ := a.Parents(i)
		pb, _ := b.Parents(i)
		if !assert.ObjectsAreEqual(pa, pb) {
			differ++
		}
	}
	assert.Greater(t, differ, 100)
}

func TestParentsOutOfBounds(t *testing.T) {
	tf.UnitTest(t)

	g, err := New(16, 4, types.SeedFromUint64(42))
	require.NoError(t, err)
	_, err = g.Parents(16)
	assert.True(t, xerrors.Is(err, types.ErrOutOfBounds))
}

func TestParentsIntoAppends(t *testing.T) {
	tf.UnitTest(t)

	g, err := New(16, 4, types.SeedFromUint64(42))
	require.NoError(t, err)

	dst := []uint64{99}
	dst, err = g.ParentsInto(10, dst)
	require.NoError(t, err)
	require.Len(t, dst, 5)
	assert.Equal(t, uint64(99), dst[0])

	want, err := g.Parents(10)
	require.NoError(t, err)
	assert.Equal(t, want, dst[1:])
}

func TestStreamReproducible(t *testing.T) {
	tf.UnitTest(t)

	seed := types.SeedFromUint64(7)
	a := NewStream("tag", seed, 1, 2)
	b := NewStream("tag", seed, 1, 2)
	other := NewStream("tag", seed, 1, 3)

	same := true
	for k := 0; k < 10; k++ {
		va, vb, vo := a.Uint64(), b.Uint64(), other.Uint64()
		assert.Equal(t, va, vb)
		if va != vo {
			same = false
		}
	}
	assert.False(t, same)
}

func TestParentsPinned(t *testing.T) {
	tf.UnitTest(t)

	g, err := New(16, 4, types.SeedFromUint64(42))
	require.NoError(t, err)

	want := map[uint64][]uint64{
		1:  {0},
		3:  {0, 1, 2},
		4:  {0, 1, 2, 3},
		5:  {1, 2, 3, 4},
		7:  {1, 4, 5, 6},
		10: {1, 5, 6, 9},
		12: {0, 4, 10, 11},
		15: {5, 7, 13, 14},
	}
	for i, ps := range want {
		got, err := g.Parents(i)
		require.NoError(t, err)
		assert.Equal(t, ps, got, "node %d", i)
	}

	got, err := g.Parents(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
