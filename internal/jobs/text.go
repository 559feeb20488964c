package jobs

import (
	"context"
	"encoding/json"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/ingest"
)

// TextParams ingest caller-supplied documents directly.
type TextParams struct {
	Project   string         `json:"project"`
	Dataset   string         `json:"dataset"`
	Documents []TextDocument `json:"documents"`
	Force     bool           `json:"force_reindex,omitempty"`
}

type TextDocument struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

// TextWorker feeds inline documents through the ingestion pipeline.
type TextWorker struct {
	Pipeline *ingest.Pipeline
}

func (w *TextWorker) Handle(ctx context.Context, job catalog.Job) error {
	var params TextParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return cxerr.Newf(cxerr.KindPermanentRPC, "jobs.text", "bad params: %v", err)
	}
	if params.Dataset == "" || len(params.Documents) == 0 {
		return cxerr.Newf(cxerr.KindPermanentRPC, "jobs.text", "dataset and documents are required")
	}
	_, err := w.Pipeline.Execute(ctx, ingest.Run{
		JobID:        job.ID,
		Project:      params.Project,
		Dataset:      params.Dataset,
		ForceReindex: params.Force,
		Source:       textSource(params.Documents),
	})
	return err
}

type textSource []TextDocument

func (t textSource) Acquire(_ context.Context, emit func(float64, string)) error {
	emit(1, "")
	return nil
}

func (t textSource) Enumerate(context.Context) ([]ingest.Item, error) {
	items := make([]ingest.Item, len(t))
	for i, doc := range t {
		doc := doc
		items[i] = ingest.Item{
			Ref:  doc.Ref,
			Kind: ingest.SourceText,
			Load: func(context.Context) ([]byte, error) { return []byte(doc.Text), nil },
		}
	}
	return items, nil
}
