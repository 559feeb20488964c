package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingletonKey(t *testing.T) {
	a := SingletonKey("proj", "org/repo", "main")
	b := SingletonKey("proj", "org/repo", "main")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, SingletonKey("proj", "org/repo", "dev"))
	assert.NotEqual(t, a, SingletonKey("other", "org/repo", "main"))
}

func TestGitHubParamsCloneURL(t *testing.T) {
	assert.Equal(t, "https://github.com/org/repo.git", GitHubParams{Repo: "org/repo"}.CloneURL())
	assert.Equal(t, "https://github.com/org/repo.git", GitHubParams{Repo: "org/repo.git"}.CloneURL())
	assert.Equal(t, "https://example.com/r.git", GitHubParams{Repo: "https://example.com/r.git"}.CloneURL())
}

func TestGitHubParamsDatasetName(t *testing.T) {
	assert.Equal(t, "repo", GitHubParams{Repo: "org/repo"}.DatasetName())
	assert.Equal(t, "my-repo", GitHubParams{Repo: "org/My.Repo"}.DatasetName())
	assert.Equal(t, "explicit", GitHubParams{Repo: "org/repo", Dataset: "explicit"}.DatasetName())
}
