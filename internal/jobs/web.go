package jobs

import (
	"context"
	"encoding/json"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/ingest"
	"github.com/Zykairotis/contextd/internal/scope"
)

// WebParams are the submit-time parameters of a web ingest job.
type WebParams struct {
	URLs    []string `json:"urls"`
	Project string   `json:"project"`
	Dataset string   `json:"dataset,omitempty"`
	Force   bool     `json:"force_reindex,omitempty"`
}

// WebWorker fetches pages and drives the ingestion pipeline over them.
type WebWorker struct {
	Pipeline *ingest.Pipeline
	Store    *catalog.Store
}

func (w *WebWorker) Handle(ctx context.Context, job catalog.Job) error {
	var params WebParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return cxerr.Newf(cxerr.KindPermanentRPC, "jobs.web", "bad params: %v", err)
	}
	if len(params.URLs) == 0 {
		return cxerr.Newf(cxerr.KindPermanentRPC, "jobs.web", "no urls")
	}

	dataset := params.Dataset
	if dataset == "" {
		// Auto-name from the first URL's host: docs.example.com -> docs-example-com.
		derived, err := scope.DatasetNameFromURL(params.URLs[0])
		if err != nil {
			return cxerr.New(cxerr.KindPermanentRPC, "jobs.web", err)
		}
		dataset = derived
	}

	_, err := w.Pipeline.Execute(ctx, ingest.Run{
		JobID:        job.ID,
		Project:      params.Project,
		Dataset:      dataset,
		ForceReindex: params.Force,
		Source:       ingest.NewWebSource(params.URLs, w.Store),
	})
	return err
}
