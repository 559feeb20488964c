package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/chunker"
	"github.com/Zykairotis/contextd/internal/config"
	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/embed"
	"github.com/Zykairotis/contextd/internal/observability"
	"github.com/Zykairotis/contextd/internal/realtime"
	"github.com/Zykairotis/contextd/internal/scope"
	"github.com/Zykairotis/contextd/internal/vectorstore"
)

// Pipeline orchestrates one ingest run: acquire, enumerate, chunk, embed,
// upsert, finalize. It is process-scoped; every Run is independent.
type Pipeline struct {
	Catalog *catalog.Store
	Vector  vectorstore.Store
	Dense   embed.Router
	Sparse  *embed.SparseClient
	Scopes  *scope.Manager
	Bus     *realtime.Bus
	Cfg     config.Config
}

// Run describes one ingest request.
type Run struct {
	JobID        string
	Project      string
	Dataset      string
	Source       Source
	ForceReindex bool
}

// Result summarizes a completed run.
type Result struct {
	Documents    int `json:"documents"`
	NewDocs      int `json:"new_documents"`
	UpdatedDocs  int `json:"updated_documents"`
	SkippedDocs  int `json:"skipped_documents"`
	FailedItems  int `json:"failed_items"`
	TotalChunks  int `json:"total_chunks"`
	PointCount   uint64
	Collection   string `json:"collection"`
}

// document is the per-item working state flowing through the stages.
type document struct {
	item     Item
	data     []byte
	hash     string
	action   catalog.ReconcileAction
	chunks   []chunker.Chunk
	chunkIDs []string
	dense    [][]float32
	sparse   []embed.SparseVector
}

// Execute runs the full pipeline. A stage's fatal error fails the run;
// per-item failures are logged and counted, never fatal. Retries belong to
// the job queue, not here.
func (p *Pipeline) Execute(ctx context.Context, run Run) (Result, error) {
	tracker := newProgressTracker(run.JobID, run.Project, p.Catalog, p.Bus)
	res := Result{}

	// Acquire.
	if err := run.Source.Acquire(ctx, func(f float64, detail string) {
		tracker.emit(ctx, PhaseAcquire, f, detail)
	}); err != nil {
		return res, p.fail(run, err, PhaseAcquire.Name)
	}
	tracker.emit(ctx, PhaseAcquire, 1, "")

	// Resolve scope. The dense dimension is probed before the collection is
	// created so the catalog freezes it.
	collection, err := p.Scopes.CollectionName(run.Project, run.Dataset)
	if err != nil {
		return res, p.fail(run, err, PhaseAcquire.Name)
	}
	res.Collection = collection
	dim, err := p.Dense.Text.Dimension(ctx)
	if err != nil {
		return res, p.fail(run, err, PhaseAcquire.Name)
	}
	hybrid := p.Cfg.Search.HybridEnabled && p.Sparse != nil
	if err := p.Vector.EnsureCollection(ctx, collection, dim, hybrid); err != nil {
		return res, p.fail(run, err, PhaseAcquire.Name)
	}
	proj, ds, err := p.Catalog.EnsureScope(ctx, run.Project, run.Dataset, collection, dim, hybrid, p.Cfg.VectorDB.Kind)
	if err != nil {
		return res, p.fail(run, err, PhaseAcquire.Name)
	}

	// Enumerate.
	items, err := run.Source.Enumerate(ctx)
	if err != nil {
		return res, p.fail(run, err, PhaseEnumerate.Name)
	}
	tracker.emit(ctx, PhaseEnumerate, 1, fmt.Sprintf("%d items", len(items)))

	// Chunk. Per-item failures are skipped and counted in the run stats.
	docs := make([]*document, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return res, p.fail(run, cxerr.New(cxerr.KindCancelled, "ingest", err), PhaseChunk.Name)
		}
		doc, err := p.prepare(ctx, ds.ID, item, run.ForceReindex)
		if err != nil {
			res.FailedItems++
			log.Warn().Err(err).Str("item", item.Ref).Msg("skipping item")
			continue
		}
		if doc != nil {
			docs = append(docs, doc)
		} else {
			res.SkippedDocs++
		}
		tracker.emit(ctx, PhaseChunk, float64(i+1)/float64(len(items)), item.Ref)
	}
	res.Documents = len(docs) + res.SkippedDocs

	// Embed. Bounded concurrency across documents; both clients return one
	// vector per chunk in chunk order, so point assembly stays aligned.
	if err := p.embedAll(ctx, docs, tracker); err != nil {
		return res, p.fail(run, err, PhaseEmbed.Name)
	}

	// Upsert. Delete-then-insert per document so queries never observe two
	// content_hash versions of the same document at once.
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return res, p.fail(run, cxerr.New(cxerr.KindCancelled, "ingest", err), PhaseUpsert.Name)
		}
		if err := p.upsertDoc(ctx, collection, proj.ID, ds.ID, doc); err != nil {
			return res, p.fail(run, err, PhaseUpsert.Name)
		}
		switch doc.action {
		case catalog.ReconcileNew:
			res.NewDocs++
		case catalog.ReconcileUpdated:
			res.UpdatedDocs++
		}
		res.TotalChunks += len(doc.chunks)
		observability.ChunksIngested.WithLabelValues(run.Project, string(doc.item.Kind)).Add(float64(len(doc.chunks)))
		tracker.emit(ctx, PhaseUpsert, float64(i+1)/float64(len(docs)), doc.item.Ref)
	}
	tracker.emit(ctx, PhaseUpsert, 1, "")

	// Finalize.
	stats, err := p.Vector.CollectionStats(ctx, collection)
	if err == nil {
		res.PointCount = stats.PointCount
		_ = p.Catalog.UpdateCollectionStats(ctx, collection, int64(stats.PointCount))
		p.Bus.Publish(realtime.Message{
			Type:    realtime.TopicCollectionStats,
			Project: run.Project,
			Data:    realtime.CollectionStats{Collection: collection, PointCount: stats.PointCount},
		})
	}
	if run.JobID != "" {
		_ = p.Catalog.SetJobCounts(ctx, run.JobID, res.Documents, res.TotalChunks)
	}
	tracker.emit(ctx, PhaseFinalize, 1, "")
	return res, nil
}

// prepare hashes and reconciles one item, chunking it when work is needed.
// A nil document with nil error means the item is unchanged and skipped.
func (p *Pipeline) prepare(ctx context.Context, datasetID string, item Item, force bool) (*document, error) {
	data, err := item.Load(ctx)
	if err != nil {
		return nil, cxerr.New(cxerr.KindParse, "ingest", err).WithItem(item.Ref)
	}
	if len(data) == 0 {
		// Empty files and pages produce no chunks and no errors.
		return nil, nil
	}
	hash := ContentHash(data)
	rec, err := p.Catalog.ReconcileDocument(ctx, datasetID, item.Ref, hash)
	if err != nil {
		return nil, err
	}
	if rec.Action == catalog.ReconcileUnchanged && !force {
		observability.DocumentsSkipped.WithLabelValues(datasetID).Inc()
		return nil, nil
	}

	var chunks []chunker.Chunk
	ck := chunker.New(chunker.Options{
		ChunkSize:      p.Cfg.Chunking.ChunkSize,
		ChunkOverlap:   p.Cfg.Chunking.ChunkOverlap,
		SymbolsEnabled: p.Cfg.Chunking.SymbolsEnabled,
	})
	switch item.Kind {
	case SourceWeb:
		chunks = ck.ChunkWebPage(string(data))
	case SourceCode:
		chunks = ck.ChunkFile(item.Ref, data)
	default:
		chunks = ck.ChunkText(string(data))
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return &document{
		item:   item,
		data:   data,
		hash:   hash,
		action: rec.Action,
		chunks: chunks,
	}, nil
}

// embedAll runs the dense and sparse embedders over every document with a
// bounded number of concurrent document batches. Backpressure comes from the
// errgroup limit plus each client's own concurrency semaphore.
func (p *Pipeline) embedAll(ctx context.Context, docs []*document, tracker *progressTracker) error {
	if len(docs) == 0 {
		return nil
	}
	hybrid := p.Cfg.Search.HybridEnabled && p.Sparse != nil
	limit := p.Cfg.Chunking.MaxConcurrentBatches
	if limit <= 0 {
		limit = 3
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var done atomic.Int64
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			texts := make([]string, len(doc.chunks))
			for i, ch := range doc.chunks {
				texts[i] = ch.Text
			}
			client := p.Dense.Text
			if doc.item.Kind == SourceCode && chunker.IsCodePath(doc.item.Ref) {
				client = p.Dense.ForCode()
			}
			dense, err := client.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			doc.dense = dense
			if hybrid {
				sparse, err := p.Sparse.EmbedBatch(gctx, texts)
				if err != nil {
					return err
				}
				doc.sparse = sparse
			}
			tracker.emit(gctx, PhaseEmbed, float64(done.Add(1))/float64(len(docs)), doc.item.Ref)
			return nil
		})
	}
	return g.Wait()
}

// upsertDoc reconciles one document in the vector store: delete the old
// point set first, then insert the new one, then persist the catalog row.
func (p *Pipeline) upsertDoc(ctx context.Context, collection, projectID, datasetID string, doc *document) error {
	// The document id is a pure function of (dataset, source_ref); catalog
	// row, payloads, and the deletion filter all agree on it.
	docRef := DocumentID(datasetID, doc.item.Ref)

	// The collection dimension comes from the text model; a code model that
	// embeds into another dimension is a consistency failure.
	dim, dimErr := p.Dense.Text.Dimension(ctx)
	if dimErr != nil {
		return dimErr
	}
	for _, v := range doc.dense {
		if len(v) != dim {
			return cxerr.Newf(cxerr.KindConsistency, "ingest",
				"%s: vector dimension %d differs from collection dimension %d", doc.item.Ref, len(v), dim)
		}
	}

	doc.chunkIDs = make([]string, len(doc.chunks))
	for i, ch := range doc.chunks {
		doc.chunkIDs[i] = ChunkID(docRef, i, ch.Text)
	}

	if doc.action == catalog.ReconcileUpdated || doc.action == catalog.ReconcileUnchanged {
		// Delete-of-old precedes insert-of-new.
		if err := p.Vector.DeleteByFilter(ctx, collection, vectorstore.Filter{
			ProjectID:  projectID,
			DatasetIDs: []string{datasetID},
			DocumentID: docRef,
		}); err != nil {
			return err
		}
	}

	points := make([]vectorstore.Point, len(doc.chunks))
	for i, ch := range doc.chunks {
		pt := vectorstore.Point{
			ID:      doc.chunkIDs[i],
			Dense:   doc.dense[i],
			Payload: buildPayload(projectID, datasetID, docRef, doc.chunkIDs[i], doc.item, ch),
		}
		if doc.sparse != nil {
			sv := doc.sparse[i]
			pt.Sparse = &sv
		}
		points[i] = pt
	}
	batch := p.Cfg.Chunking.BatchSize
	if batch <= 0 {
		batch = 32
	}
	for start := 0; start < len(points); start += batch {
		end := start + batch
		if end > len(points) {
			end = len(points)
		}
		if err := p.Vector.Upsert(ctx, collection, points[start:end]); err != nil {
			return err
		}
	}

	_, err := p.Catalog.SaveDocument(ctx, catalog.Document{
		ID:          docRef,
		DatasetID:   datasetID,
		SourceKind:  string(doc.item.Kind),
		SourceRef:   doc.item.Ref,
		ContentHash: doc.hash,
		Size:        int64(len(doc.data)),
		ChunkIDs:    doc.chunkIDs,
	})
	return err
}

// fail tags the error with the failing phase and mirrors it to the bus once.
func (p *Pipeline) fail(run Run, err error, phase string) error {
	var ce *cxerr.Error
	if e, ok := err.(*cxerr.Error); ok {
		ce = e.WithPhase(phase)
	} else {
		ce = cxerr.New(cxerr.KindOf(err), "ingest", err).WithPhase(phase)
	}
	if p.Bus != nil {
		p.Bus.PublishError(run.Project, realtime.ErrorEvent{
			Component: "ingest",
			Message:   ce.Error(),
			JobID:     run.JobID,
		})
	}
	return ce
}
