package embed

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/sync/semaphore"

	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/observability"
)

// DenseClient wraps one OpenAI-compatible /embeddings endpoint. The router
// (see Router) holds one client for the text model and one for the code
// model.
type DenseClient struct {
	api       openai.Client
	model     string
	batchSize int
	sem       *semaphore.Weighted

	dim int // frozen after the first probe
}

// NewDenseClient builds a client for one endpoint. concurrency bounds total
// in-flight requests; batchSize caps texts per request.
func NewDenseClient(baseURL, apiKey, model string, concurrency, batchSize int) *DenseClient {
	if concurrency <= 0 {
		concurrency = 4
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &DenseClient{
		api:       openai.NewClient(opts...),
		model:     model,
		batchSize: batchSize,
		sem:       semaphore.NewWeighted(int64(concurrency)),
	}
}

// EmbedBatch returns one vector per input text, order preserved. Batching is
// internal; the concurrency cap is shared across all callers of this client.
func (c *DenseClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
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

// Dimension probes the endpoint with a single text on first use and freezes
// the result; the collection dimension in the catalog comes from here.
func (c *DenseClient) Dimension(ctx context.Context) (int, error) {
	if c.dim > 0 {
		return c.dim, nil
	}
	vecs, err := c.embedOnce(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, cxerr.Newf(cxerr.KindConsistency, "embed.dense", "probe returned no vector")
	}
	c.dim = len(vecs[0])
	return c.dim, nil
}

func (c *DenseClient) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, cxerr.New(cxerr.KindCancelled, "embed.dense", err)
	}
	defer c.sem.Release(1)

	start := time.Now()
	defer func() {
		observability.EmbedLatency.WithLabelValues("dense").Observe(time.Since(start).Seconds())
	}()

	return retryRPC(ctx, "embed.dense", func() ([][]float32, error) {
		resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(c.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		})
		if err != nil {
			return nil, classifyOpenAIErr(err)
		}
		if len(resp.Data) != len(batch) {
			return nil, cxerr.Newf(cxerr.KindConsistency, "embed.dense",
				"got %d embeddings for %d inputs", len(resp.Data), len(batch))
		}
		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for i, v := range d.Embedding {
				vec[i] = float32(v)
			}
			idx := int(d.Index)
			if idx < 0 || idx >= len(vecs) {
				return nil, cxerr.Newf(cxerr.KindConsistency, "embed.dense", "embedding index %d out of range", idx)
			}
			vecs[idx] = vec
		}
		if c.dim > 0 {
			for _, v := range vecs {
				if len(v) != c.dim {
					return nil, cxerr.Newf(cxerr.KindConsistency, "embed.dense",
						"dimension drift: expected %d, got %d", c.dim, len(v))
				}
			}
		}
		return vecs, nil
	})
}

func classifyOpenAIErr(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return classifyStatus("embed.dense", apierr.StatusCode, apierr.Message)
	}
	// Transport-level failures (timeouts, refused connections) are transient.
	return cxerr.New(cxerr.KindTransientRPC, "embed.dense", err)
}

// Router picks the dense client per chunk language: code files go to the
// code model when one is configured, everything else to the text model.
type Router struct {
	Text *DenseClient
	Code *DenseClient
}

// ForCode returns the code client, falling back to the text client when no
// separate code endpoint is configured.
func (r Router) ForCode() *DenseClient {
	if r.Code != nil {
		return r.Code
	}
	return r.Text
}
