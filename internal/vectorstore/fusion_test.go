package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseRRFBothArms(t *testing.T) {
	dense := []armHit{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.7}}
	sparse := []armHit{{ID: "b", Score: 12}, {ID: "a", Score: 10}}

	out := fuseRRF(dense, sparse, 0.6, 0.4)
	require.Len(t, out, 3)

	// Hand-computed RRF(k=60):
	// a: 0.6/61 + 0.4/62 ; b: 0.6/62 + 0.4/61 ; c: 0.6/63
	scoreA := 0.6/61 + 0.4/62
	scoreB := 0.6/62 + 0.4/61
	assert.InDelta(t, scoreA, out[0].Score, 1e-12)
	assert.Equal(t, "a", out[0].ID)
	assert.InDelta(t, scoreB, out[1].Score, 1e-12)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "c", out[2].ID)
	assert.Zero(t, out[2].SparseRank)
}

func TestFuseRRFTieBreaksByDenseScoreThenID(t *testing.T) {
	// Equal weights and mirrored ranks produce identical fused scores.
	dense := []armHit{{ID: "x", Score: 0.5}, {ID: "y", Score: 0.9}}
	sparse := []armHit{{ID: "y", Score: 1}, {ID: "x", Score: 2}}

	out := fuseRRF(dense, sparse, 0.5, 0.5)
	require.Len(t, out, 2)
	assert.Equal(t, "y", out[0].ID, "higher dense score wins the tie")

	// Identical dense scores fall through to lexicographic id.
	dense = []armHit{{ID: "n", Score: 0.5}, {ID: "m", Score: 0.5}}
	sparse = []armHit{{ID: "m", Score: 1}, {ID: "n", Score: 1}}
	out = fuseRRF(dense, sparse, 0.5, 0.5)
	assert.Equal(t, "m", out[0].ID)
}

func TestFuseRRFDefaultWeights(t *testing.T) {
	dense := []armHit{{ID: "a", Score: 1}}
	out := fuseRRF(dense, nil, 0, 0)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.6/61, out[0].Score, 1e-12)
}

func TestDenseOnlyPreservesScores(t *testing.T) {
	out := denseOnly([]armHit{{ID: "a", Score: 0.93}, {ID: "b", Score: 0.21}})
	require.Len(t, out, 2)
	assert.Equal(t, 0.93, out[0].Score)
	assert.Equal(t, 1, out[0].DenseRank)
	assert.Equal(t, 2, out[1].DenseRank)
}

func TestTruncate(t *testing.T) {
	in := []Result{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assert.Len(t, truncate(in, 2), 2)
	assert.Len(t, truncate(in, 0), 3)
	assert.Len(t, truncate(in, 9), 3)
}

func TestQueryArmLimit(t *testing.T) {
	assert.Equal(t, 30, Query{TopK: 10}.armLimit())
	assert.Equal(t, 20, Query{TopK: 10, OverFetch: 2}.armLimit())
	assert.Equal(t, 30, Query{}.armLimit())
}
