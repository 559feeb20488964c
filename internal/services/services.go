package services

import (
	"context"
	"fmt"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/config"
	"github.com/Zykairotis/contextd/internal/embed"
	"github.com/Zykairotis/contextd/internal/ingest"
	"github.com/Zykairotis/contextd/internal/jobs"
	"github.com/Zykairotis/contextd/internal/realtime"
	"github.com/Zykairotis/contextd/internal/rerank"
	"github.com/Zykairotis/contextd/internal/retrieve"
	"github.com/Zykairotis/contextd/internal/scope"
	"github.com/Zykairotis/contextd/internal/vectorstore"
)

// Core owns every process-scoped dependency and hands references into the
// two pipelines; the ingestion and retrieval sides share the embedding and
// vector clients through it rather than importing each other.
type Core struct {
	Cfg      config.Config
	Catalog  *catalog.Store
	Vector   vectorstore.Store
	Dense    embed.Router
	Sparse   *embed.SparseClient
	Reranker *rerank.Client
	Scopes   *scope.Manager
	Bus      *realtime.Bus
	Queue    *jobs.Queue

	Ingest   *ingest.Pipeline
	Retrieve *retrieve.Pipeline
}

// Build wires the process singletons. Fatal errors here abort startup.
func Build(ctx context.Context, cfg config.Config) (*Core, error) {
	cat, err := catalog.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	vec, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	dense := embed.Router{
		Text: embed.NewDenseClient(cfg.Dense.URL, cfg.Dense.APIKey, cfg.Dense.Model,
			cfg.Dense.Concurrency, cfg.Dense.BatchSize),
	}
	if cfg.Code.URL != "" {
		dense.Code = embed.NewDenseClient(cfg.Code.URL, cfg.Code.APIKey, cfg.Code.Model,
			cfg.Code.Concurrency, cfg.Code.BatchSize)
	}
	var sparse *embed.SparseClient
	if cfg.Sparse.Enabled {
		sparse = embed.NewSparseClient(cfg.Sparse.URL, cfg.Sparse.Concurrency, cfg.Sparse.BatchSize)
	}
	var reranker *rerank.Client
	if cfg.Reranker.Enabled {
		reranker = rerank.New(cfg.Reranker.URL, cfg.Reranker.TextMaxChars,
			cfg.Reranker.MaxBatch, cfg.Reranker.Timeout)
	}

	core := &Core{
		Cfg:      cfg,
		Catalog:  cat,
		Vector:   vec,
		Dense:    dense,
		Sparse:   sparse,
		Reranker: reranker,
		Scopes:   scope.NewManager(),
		Bus:      realtime.NewBus(),
	}
	core.Ingest = &ingest.Pipeline{
		Catalog: cat,
		Vector:  vec,
		Dense:   dense,
		Sparse:  sparse,
		Scopes:  core.Scopes,
		Bus:     core.Bus,
		Cfg:     cfg,
	}
	core.Retrieve = &retrieve.Pipeline{
		Catalog:  cat,
		Vector:   vec,
		Dense:    dense,
		Sparse:   sparse,
		Reranker: reranker,
		Cfg:      cfg,
	}
	core.Queue = jobs.NewQueue(cat, core.Bus, cfg.Jobs)
	core.Queue.Register("github", (&jobs.GitHubWorker{
		Pipeline: core.Ingest,
		Store:    cat,
		Token:    cfg.GitHub.Token,
	}).Handle)
	core.Queue.Register("web", (&jobs.WebWorker{
		Pipeline: core.Ingest,
		Store:    cat,
	}).Handle)
	core.Queue.Register("text", (&jobs.TextWorker{Pipeline: core.Ingest}).Handle)
	return core, nil
}

// Close tears the singletons down in reverse dependency order.
func (c *Core) Close() {
	if c.Vector != nil {
		_ = c.Vector.Close()
	}
	if c.Catalog != nil {
		c.Catalog.Close()
	}
}
