package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zykairotis/contextd/internal/embed"
)

func TestSparseLiteral(t *testing.T) {
	s := &pgvectorStore{vocabSize: 30522}

	lit := s.sparseLiteral(&embed.SparseVector{Indices: []uint32{0, 7}, Values: []float32{0.5, 1.25}})
	require.NotNil(t, lit)
	// sparsevec indices are 1-based.
	assert.Equal(t, "{1:0.5,8:1.25}/30522", *lit)

	assert.Nil(t, s.sparseLiteral(nil))
	assert.Nil(t, s.sparseLiteral(&embed.SparseVector{}))
}

func TestFilterSQL(t *testing.T) {
	where, args := filterSQL(Filter{ProjectID: "p", DatasetIDs: []string{"d1", "d2"}, DocumentID: "doc"})
	assert.Equal(t, "project_id = $1 AND dataset_id = ANY($2) AND document_id = $3", where)
	require.Len(t, args, 3)
	assert.Equal(t, "p", args[0])

	where, args = filterSQL(Filter{DatasetIDs: []string{"d"}})
	assert.Equal(t, "dataset_id = ANY($1)", where)
	assert.Len(t, args, 1)
}

func TestRequireFilterRefusesUnscoped(t *testing.T) {
	assert.Error(t, requireFilter(Filter{}))
	assert.NoError(t, requireFilter(Filter{DatasetIDs: []string{"d"}}))
}

func TestIdentQuotes(t *testing.T) {
	assert.Equal(t, `"ctx_proj_my-data"`, ident("ctx_proj_my-data"))
}
