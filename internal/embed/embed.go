package embed

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Zykairotis/contextd/internal/cxerr"
)

// SparseVector is the learned-lexical representation: parallel index/value
// slices with positive weights and unique indices.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// IsEmpty reports whether the vector carries no terms. A single stopword-only
// query legitimately produces an empty sparse vector; search then degrades to
// dense-only.
func (s SparseVector) IsEmpty() bool { return len(s.Indices) == 0 }

// Validate enforces the service contract on a returned vector.
func (s SparseVector) Validate() error {
	if len(s.Indices) != len(s.Values) {
		return errors.New("sparse vector: indices/values length mismatch")
	}
	seen := make(map[uint32]struct{}, len(s.Indices))
	for i, idx := range s.Indices {
		if s.Values[i] <= 0 {
			return errors.New("sparse vector: non-positive weight")
		}
		if _, dup := seen[idx]; dup {
			return errors.New("sparse vector: duplicate token id")
		}
		seen[idx] = struct{}{}
	}
	return nil
}

const maxRetries = 3

// retryRPC runs op with exponential backoff and jitter. Transient failures
// (wrapped KindTransientRPC) are retried up to maxRetries times after the
// first attempt; anything else is permanent. Cancellation aborts immediately.
func retryRPC[T any](ctx context.Context, component string, op func() (T, error)) (T, error) {
	wrapped := func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if cxerr.IsTransient(err) {
			return v, err
		}
		return v, backoff.Permanent(err)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 8 * time.Second
	v, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxRetries+1))
	if err != nil && ctx.Err() != nil {
		return v, cxerr.New(cxerr.KindCancelled, component, ctx.Err())
	}
	return v, err
}

func classifyStatus(component string, status int, body string) error {
	switch {
	case status >= 500, status == 429:
		return cxerr.Newf(cxerr.KindTransientRPC, component, "status %d: %s", status, body)
	default:
		return cxerr.Newf(cxerr.KindPermanentRPC, component, "status %d: %s", status, body)
	}
}
