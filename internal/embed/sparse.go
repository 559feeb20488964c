package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/observability"
)

// SparseClient talks to the sparse embedding service. The service is not
// OpenAI-shaped: it takes {text} or {texts:[...]} and answers with
// {sparse:{indices,values}} or {sparse:[...]} for a batch.
type SparseClient struct {
	url       string
	http      *http.Client
	batchSize int
	sem       *semaphore.Weighted
}

func NewSparseClient(url string, concurrency, batchSize int) *SparseClient {
	if concurrency <= 0 {
		// Memory-constrained service; one request in flight by default.
		concurrency = 1
	}
	if batchSize <= 0 {
		batchSize = 16
	}
	return &SparseClient{
		url:       url,
		http:      &http.Client{Timeout: 60 * time.Second},
		batchSize: batchSize,
		sem:       semaphore.NewWeighted(int64(concurrency)),
	}
}

type sparseRequest struct {
	Texts []string `json:"texts"`
}

type sparsePayload struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// sparseResponse accepts both the single and the batch response shape.
type sparseResponse struct {
	Sparse json.RawMessage `json:"sparse"`
}

// EmbedBatch returns one sparse vector per input text, order preserved.
func (c *SparseClient) EmbedBatch(ctx context.Context, texts []string) ([]SparseVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([]SparseVector, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *SparseClient) embedOnce(ctx context.Context, batch []string) ([]SparseVector, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, cxerr.New(cxerr.KindCancelled, "embed.sparse", err)
	}
	defer c.sem.Release(1)

	start := time.Now()
	defer func() {
		observability.EmbedLatency.WithLabelValues("sparse").Observe(time.Since(start).Seconds())
	}()

	return retryRPC(ctx, "embed.sparse", func() ([]SparseVector, error) {
		body, err := json.Marshal(sparseRequest{Texts: batch})
		if err != nil {
			return nil, cxerr.New(cxerr.KindPermanentRPC, "embed.sparse", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, cxerr.New(cxerr.KindPermanentRPC, "embed.sparse", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, cxerr.New(cxerr.KindTransientRPC, "embed.sparse", err)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<24))
		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus("embed.sparse", resp.StatusCode, string(raw))
		}

		vecs, err := decodeSparse(raw, len(batch))
		if err != nil {
			return nil, cxerr.New(cxerr.KindPermanentRPC, "embed.sparse", err)
		}
		for _, v := range vecs {
			if err := v.Validate(); err != nil {
				return nil, cxerr.New(cxerr.KindPermanentRPC, "embed.sparse", err)
			}
		}
		return vecs, nil
	})
}

// decodeSparse normalizes the two documented response shapes.
func decodeSparse(raw []byte, want int) ([]SparseVector, error) {
	var resp sparseResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	var many []sparsePayload
	if err := json.Unmarshal(resp.Sparse, &many); err == nil {
		return toSparseVectors(many, want)
	}
	var one sparsePayload
	if err := json.Unmarshal(resp.Sparse, &one); err != nil {
		return nil, err
	}
	return toSparseVectors([]sparsePayload{one}, want)
}

func toSparseVectors(payloads []sparsePayload, want int) ([]SparseVector, error) {
	if len(payloads) != want {
		return nil, cxerr.Newf(cxerr.KindConsistency, "embed.sparse",
			"got %d sparse vectors for %d inputs", len(payloads), want)
	}
	out := make([]SparseVector, len(payloads))
	for i, p := range payloads {
		out[i] = SparseVector{Indices: p.Indices, Values: p.Values}
	}
	return out, nil
}
