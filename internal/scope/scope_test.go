package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionNameDeterministic(t *testing.T) {
	m := NewManager()
	a, err := m.CollectionName("MyProject", "API.Docs")
	require.NoError(t, err)
	b, err := m.CollectionName("MyProject", "API.Docs")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "ctx_myproject_api-docs", a)
}

func TestCollectionNameCollisionFailsLoudly(t *testing.T) {
	m := NewManager()
	_, err := m.CollectionName("proj", "a.b")
	require.NoError(t, err)
	_, err = m.CollectionName("proj", "a/b")
	require.Error(t, err, "a.b and a/b normalize to the same collection")
}

func TestCollectionNameEmptyParts(t *testing.T) {
	m := NewManager()
	_, err := m.CollectionName("", "ds")
	require.Error(t, err)
	_, err = m.CollectionName("p", "  ")
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "docs-example-com", Normalize("docs.example.com"))
	assert.Equal(t, "my_data-set", Normalize("My_Data-Set"))
	assert.Equal(t, "a-b", Normalize("a/b"))
	assert.Equal(t, "trailing", Normalize("..trailing.."))
}

func TestDatasetNameFromURL(t *testing.T) {
	name, err := DatasetNameFromURL("https://docs.example.com/guide")
	require.NoError(t, err)
	assert.Equal(t, "docs-example-com", name)

	_, err = DatasetNameFromURL("not a url")
	require.Error(t, err)
}
