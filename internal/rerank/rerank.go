package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Zykairotis/contextd/internal/cxerr"
)

// Client calls the cross-encoder reranker. A single request is outstanding
// per client at a time; the service scores (query, text) pairs directly and
// parallel fan-out only thrashes its GPU.
type Client struct {
	url          string
	http         *http.Client
	textMaxChars int
	maxBatch     int

	mu sync.Mutex
}

func New(url string, textMaxChars, maxBatch int, timeout time.Duration) *Client {
	if textMaxChars <= 0 {
		textMaxChars = 1600
	}
	if maxBatch <= 0 {
		maxBatch = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:          url,
		http:         &http.Client{Timeout: timeout},
		textMaxChars: textMaxChars,
		maxBatch:     maxBatch,
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

// Rerank scores texts against query; scores[i] corresponds to texts[i] and
// higher is better. Texts are truncated to the per-item cap; batches over the
// payload limit are split. A 413 triggers one retry with the batch halved.
// On failure the caller keeps its pre-rerank ordering.
func (c *Client) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	truncated := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > c.textMaxChars {
			t = t[:c.textMaxChars]
		}
		truncated[i] = t
	}

	out := make([]float64, 0, len(texts))
	for start := 0; start < len(truncated); start += c.maxBatch {
		end := start + c.maxBatch
		if end > len(truncated) {
			end = len(truncated)
		}
		scores, err := c.rerankBatch(ctx, query, truncated[start:end], true)
		if err != nil {
			return nil, err
		}
		out = append(out, scores...)
	}
	return out, nil
}

func (c *Client) rerankBatch(ctx context.Context, query string, texts []string, allowSplit bool) ([]float64, error) {
	scores, err := c.call(ctx, query, texts)
	if err == nil {
		return scores, nil
	}
	if allowSplit && isPayloadTooLarge(err) && len(texts) > 1 {
		mid := len(texts) / 2
		left, lerr := c.rerankBatch(ctx, query, texts[:mid], false)
		if lerr != nil {
			return nil, lerr
		}
		right, rerr := c.rerankBatch(ctx, query, texts[mid:], false)
		if rerr != nil {
			return nil, rerr
		}
		return append(left, right...), nil
	}
	return nil, err
}

func isPayloadTooLarge(err error) bool {
	var e *cxerr.Error
	return errors.As(err, &e) && e.Item == "413"
}

func (c *Client) call(ctx context.Context, query string, texts []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, cxerr.New(cxerr.KindPermanentRPC, "rerank", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, cxerr.New(cxerr.KindPermanentRPC, "rerank", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, cxerr.New(cxerr.KindTransientRPC, "rerank", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<22))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		e := cxerr.Newf(cxerr.KindTransientRPC, "rerank", "payload too large")
		return nil, e.WithItem("413")
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, cxerr.Newf(cxerr.KindTransientRPC, "rerank", "status %d: %s", resp.StatusCode, raw)
	default:
		return nil, cxerr.Newf(cxerr.KindPermanentRPC, "rerank", "status %d: %s", resp.StatusCode, raw)
	}

	scores, err := decodeScores(raw)
	if err != nil {
		return nil, cxerr.New(cxerr.KindPermanentRPC, "rerank", err)
	}
	if len(scores) != len(texts) {
		return nil, cxerr.Newf(cxerr.KindConsistency, "rerank",
			"got %d scores for %d texts", len(scores), len(texts))
	}
	return scores, nil
}

// decodeScores accepts the three response shapes seen in the wild:
// a bare array, {"scores":[...]}, and {"results":[{index,relevance_score}]}.
func decodeScores(raw []byte) ([]float64, error) {
	var bare []float64
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}
	var wrapped struct {
		Scores  []float64 `json:"scores"`
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Scores != nil {
		return wrapped.Scores, nil
	}
	scores := make([]float64, len(wrapped.Results))
	for _, r := range wrapped.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.RelevanceScore
		}
	}
	return scores, nil
}
