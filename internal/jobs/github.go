package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/ingest"
	"github.com/Zykairotis/contextd/internal/scope"
)

// GitHubParams are the submit-time parameters of a github job.
type GitHubParams struct {
	Repo    string   `json:"repo"` // "org/repo" or a full clone URL
	Branch  string   `json:"branch,omitempty"`
	Project string   `json:"project"`
	Dataset string   `json:"dataset,omitempty"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	Force   bool     `json:"force_reindex,omitempty"`
}

// CloneURL normalizes "org/repo" into a https clone URL.
func (p GitHubParams) CloneURL() string {
	if strings.Contains(p.Repo, "://") {
		return p.Repo
	}
	return "https://github.com/" + strings.TrimSuffix(p.Repo, ".git") + ".git"
}

// DatasetName falls back to the repo name when no dataset was given.
func (p GitHubParams) DatasetName() string {
	if p.Dataset != "" {
		return p.Dataset
	}
	name := p.Repo
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return scope.Normalize(strings.TrimSuffix(name, ".git"))
}

// GitHubWorker clones a repository and drives the ingestion pipeline over
// the checkout.
type GitHubWorker struct {
	Pipeline *ingest.Pipeline
	Store    *catalog.Store
	Token    string
}

// Handle processes one github job: shallow single-branch clone without tags
// into a scratch directory, SHA resolution, pipeline run, guaranteed scratch
// cleanup.
func (w *GitHubWorker) Handle(ctx context.Context, job catalog.Job) error {
	var params GitHubParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return cxerr.Newf(cxerr.KindPermanentRPC, "jobs.github", "bad params: %v", err)
	}

	scratch, err := os.MkdirTemp("", "contextd-clone-*")
	if err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", scratch).Msg("scratch cleanup failed")
		}
	}()

	sha, err := w.clone(ctx, params, scratch)
	if err != nil {
		return err
	}
	if err := w.Store.SetJobSHA(ctx, job.ID, sha); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("recording sha failed")
	}

	_, err = w.Pipeline.Execute(ctx, ingest.Run{
		JobID:        job.ID,
		Project:      params.Project,
		Dataset:      params.DatasetName(),
		ForceReindex: params.Force,
		Source: &ingest.DirSource{
			Root:    scratch,
			Include: params.Include,
			Exclude: params.Exclude,
		},
	})
	return err
}

// clone performs the shallow fetch. Credentials come from the configured
// token, never from the URL, so they cannot leak into logs; interactive
// credential prompts are structurally impossible with go-git.
func (w *GitHubWorker) clone(ctx context.Context, params GitHubParams, dir string) (string, error) {
	opts := &git.CloneOptions{
		URL:          params.CloneURL(),
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if params.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(params.Branch)
	}
	if w.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: w.Token}
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		if ctx.Err() != nil {
			return "", cxerr.New(cxerr.KindCancelled, "jobs.github", err)
		}
		return "", cxerr.Newf(cxerr.KindTransientRPC, "jobs.github", "clone %s: %v", params.Repo, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
