package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/config"
	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/embed"
	"github.com/Zykairotis/contextd/internal/observability"
	"github.com/Zykairotis/contextd/internal/rerank"
	"github.com/Zykairotis/contextd/internal/scope"
	"github.com/Zykairotis/contextd/internal/vectorstore"
)

// ProjectAll disables the project filter on a query.
const ProjectAll = "all"

// ScopeSource is the slice of the catalog the retrieval pipeline needs;
// *catalog.Store satisfies it.
type ScopeSource interface {
	ListRetrievalScopes(ctx context.Context, projectName string) ([]catalog.RetrievalScope, error)
	LookupProject(ctx context.Context, name string) (catalog.Project, bool, error)
	VisibleScopes(ctx context.Context, toProjectID string) ([]catalog.ScopeRef, error)
	ScopesByDatasetIDs(ctx context.Context, datasetIDs []string) ([]catalog.RetrievalScope, error)
}

// Pipeline answers queries: scope resolution, query embedding, per-collection
// hybrid fan-out, merge, optional rerank, enrich.
type Pipeline struct {
	Catalog  ScopeSource
	Vector   vectorstore.Store
	Dense    embed.Router
	Sparse   *embed.SparseClient
	Reranker *rerank.Client
	Cfg      config.Config
}

// Request is one query.
type Request struct {
	Project string
	// Dataset is a ScopeManager pattern: alias, glob, or literal. Empty
	// matches every dataset in scope.
	Dataset string
	Query   string
	TopK    int
	// IncludeGlobal extends scope with datasets shared to this project.
	IncludeGlobal bool
	// Hybrid / Rerank override the configured defaults when non-nil.
	Hybrid *bool
	Rerank *bool
}

// Hit is one enriched result.
type Hit struct {
	Text        string         `json:"text"`
	FileOrURL   string         `json:"file_or_url"`
	Title       string         `json:"chunk_title,omitempty"`
	Project     string         `json:"project"`
	Dataset     string         `json:"dataset"`
	Collection  string         `json:"collection"`
	Score       float64        `json:"score"`
	FusedScore  float64        `json:"fused_score"`
	DenseScore  float64        `json:"dense_score"`
	SparseScore float64        `json:"sparse_score"`
	DenseRank   int            `json:"dense_rank,omitempty"`
	SparseRank  int            `json:"sparse_rank,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Response carries results plus the feature flags actually used and a
// timing breakdown.
type Response struct {
	Results         []Hit            `json:"results"`
	RerankerSkipped bool             `json:"reranker_skipped,omitempty"`
	// ScoreMode is "reranker" when reranking replaced the fused scores,
	// otherwise "fusion" (or "dense" for single-arm searches).
	ScoreMode    string           `json:"score_mode"`
	FeaturesUsed map[string]bool  `json:"features_used"`
	TimingsMS    map[string]int64 `json:"timings_ms"`
	Collections  []string         `json:"collections_searched"`
}

// Execute runs one query. Cancellation of ctx aborts outstanding RPCs and
// returns a KindCancelled error promptly.
func (p *Pipeline) Execute(ctx context.Context, req Request) (Response, error) {
	resp := Response{FeaturesUsed: map[string]bool{}, TimingsMS: map[string]int64{}}
	if strings.TrimSpace(req.Query) == "" {
		return resp, cxerr.Newf(cxerr.KindPermanentRPC, "retrieve", "empty query")
	}

	// 1. Scope resolution.
	start := time.Now()
	scopes, err := p.resolveScopes(ctx, req)
	if err != nil {
		return resp, err
	}
	resp.TimingsMS["scope"] = time.Since(start).Milliseconds()
	if len(scopes) == 0 {
		resp.ScoreMode = "fusion"
		return resp, nil
	}
	for _, sc := range scopes {
		resp.Collections = append(resp.Collections, sc.Collection)
	}

	useHybrid := p.Cfg.Search.HybridEnabled && p.Sparse != nil
	if req.Hybrid != nil {
		useHybrid = *req.Hybrid && p.Sparse != nil
	}
	if useHybrid {
		useHybrid = anyHybrid(scopes)
	}
	useRerank := p.Cfg.Reranker.Enabled && p.Reranker != nil
	if req.Rerank != nil {
		useRerank = *req.Rerank && p.Reranker != nil
	}
	resp.FeaturesUsed["hybrid"] = useHybrid
	resp.FeaturesUsed["rerank"] = useRerank

	topK := req.TopK
	if topK <= 0 {
		topK = p.Cfg.Search.TopK
	}
	fetchK := topK
	if useRerank {
		fetchK = p.Cfg.Reranker.InitialK
	}

	// 2. Query embedding, computed once and shared across collections.
	start = time.Now()
	denseVecs, err := p.Dense.Text.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return resp, p.wrapCancelled(ctx, err)
	}
	denseVec := denseVecs[0]
	var sparseVec *embed.SparseVector
	if useHybrid {
		svs, err := p.Sparse.EmbedBatch(ctx, []string{req.Query})
		if err != nil {
			return resp, p.wrapCancelled(ctx, err)
		}
		if !svs[0].IsEmpty() {
			sparseVec = &svs[0]
		}
	}
	resp.TimingsMS["embed"] = time.Since(start).Milliseconds()

	// 3. Fan-out, one hybrid search per collection, bounded.
	start = time.Now()
	hits, err := p.fanOut(ctx, scopes, denseVec, sparseVec, fetchK)
	if err != nil {
		return resp, p.wrapCancelled(ctx, err)
	}
	resp.TimingsMS["search"] = time.Since(start).Milliseconds()

	// 4. Merge: stable sort by fused score desc, cap at fetchK.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DenseScore != hits[j].DenseScore {
			return hits[i].DenseScore > hits[j].DenseScore
		}
		return chunkIDOf(hits[i]) < chunkIDOf(hits[j])
	})
	if len(hits) > fetchK {
		hits = hits[:fetchK]
	}
	for i := range hits {
		hits[i].FusedScore = hits[i].Score
	}

	resp.ScoreMode = "fusion"
	if sparseVec == nil {
		resp.ScoreMode = "dense"
	}

	// 5. Rerank: scores replace the fused ordering entirely; fused values
	// stay on the hit so clients can tell what happened.
	if useRerank && len(hits) > 0 {
		start = time.Now()
		if err := p.applyRerank(ctx, req.Query, hits); err != nil {
			if cxerr.IsCancelled(err) {
				return resp, err
			}
			log.Warn().Err(err).Msg("reranker failed, keeping fusion order")
			observability.RerankFallbacks.Inc()
			resp.RerankerSkipped = true
		} else {
			resp.ScoreMode = "reranker"
			sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		}
		resp.TimingsMS["rerank"] = time.Since(start).Milliseconds()
	}

	// 6. Truncate to topK.
	if len(hits) > topK {
		hits = hits[:topK]
	}
	resp.Results = hits
	return resp, nil
}

// resolveScopes maps (project, dataset pattern, include_global) to concrete
// collection bindings.
func (p *Pipeline) resolveScopes(ctx context.Context, req Request) ([]catalog.RetrievalScope, error) {
	projectName := req.Project
	if projectName == ProjectAll {
		projectName = ""
	}
	scopes, err := p.Catalog.ListRetrievalScopes(ctx, projectName)
	if err != nil {
		return nil, err
	}

	if req.IncludeGlobal && projectName != "" {
		proj, ok, err := p.Catalog.LookupProject(ctx, projectName)
		if err != nil {
			return nil, err
		}
		if ok {
			refs, err := p.Catalog.VisibleScopes(ctx, proj.ID)
			if err != nil {
				return nil, err
			}
			ids := make([]string, len(refs))
			for i, r := range refs {
				ids[i] = r.DatasetID
			}
			shared, err := p.Catalog.ScopesByDatasetIDs(ctx, ids)
			if err != nil {
				return nil, err
			}
			scopes = append(scopes, shared...)
		}
	}

	// Dataset pattern expansion per project, then de-dup.
	names := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		names = append(names, sc.DatasetName)
	}
	matched := make(map[string]struct{})
	for _, name := range scope.ExpandPattern(req.Dataset, names) {
		matched[name] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []catalog.RetrievalScope
	for _, sc := range scopes {
		if _, ok := matched[sc.DatasetName]; !ok {
			continue
		}
		if _, dup := seen[sc.DatasetID]; dup {
			continue
		}
		seen[sc.DatasetID] = struct{}{}
		out = append(out, sc)
	}
	return out, nil
}

func (p *Pipeline) fanOut(ctx context.Context, scopes []catalog.RetrievalScope, dense []float32, sparse *embed.SparseVector, fetchK int) ([]Hit, error) {
	limit := p.Cfg.Search.FanoutLimit
	if limit <= 0 {
		limit = 8
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	var all []Hit
	for _, sc := range scopes {
		sc := sc
		g.Go(func() error {
			q := vectorstore.Query{
				Dense:        dense,
				Filter:       vectorstore.Filter{ProjectID: sc.ProjectID, DatasetIDs: []string{sc.DatasetID}},
				TopK:         fetchK,
				OverFetch:    p.Cfg.Search.OverFetch,
				DenseWeight:  p.Cfg.Search.DenseWeight,
				SparseWeight: p.Cfg.Search.SparseWeight,
			}
			if sc.IsHybrid {
				q.Sparse = sparse
			}
			results, err := p.Vector.Search(gctx, sc.Collection, q)
			if err != nil {
				return fmt.Errorf("search %s: %w", sc.Collection, err)
			}
			hits := make([]Hit, 0, len(results))
			for _, r := range results {
				hits = append(hits, toHit(r, sc))
			}
			mu.Lock()
			all = append(all, hits...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// applyRerank scores (query, path + "\n" + text) pairs and writes the
// reranker's scores over Score.
func (p *Pipeline) applyRerank(ctx context.Context, query string, hits []Hit) error {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.FileOrURL + "\n" + h.Text
	}
	scores, err := p.Reranker.Rerank(ctx, query, texts)
	if err != nil {
		return err
	}
	for i := range hits {
		hits[i].Score = scores[i]
	}
	return nil
}

func (p *Pipeline) wrapCancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil && !cxerr.IsCancelled(err) {
		return cxerr.New(cxerr.KindCancelled, "retrieve", err)
	}
	return err
}

func toHit(r vectorstore.Result, sc catalog.RetrievalScope) Hit {
	h := Hit{
		Project:     sc.ProjectName,
		Dataset:     sc.DatasetName,
		Collection:  sc.Collection,
		Score:       r.Score,
		DenseScore:  r.DenseScore,
		SparseScore: r.SparseScore,
		DenseRank:   r.DenseRank,
		SparseRank:  r.SparseRank,
		Metadata:    r.Payload,
	}
	if text, ok := r.Payload["text"].(string); ok {
		h.Text = text
	}
	if ref, ok := r.Payload["file_or_url"].(string); ok {
		h.FileOrURL = ref
	}
	if title, ok := r.Payload["chunk_title"].(string); ok {
		h.Title = title
	}
	return h
}

func chunkIDOf(h Hit) string {
	if id, ok := h.Metadata[vectorstore.FieldChunkID].(string); ok {
		return id
	}
	return ""
}

func anyHybrid(scopes []catalog.RetrievalScope) bool {
	for _, sc := range scopes {
		if sc.IsHybrid {
			return true
		}
	}
	return false
}
