package vectorstore

import "sort"

// rrfK is the standard Reciprocal Rank Fusion denominator constant.
const rrfK = 60

// armHit is one arm's scored candidate before fusion.
type armHit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// fuseRRF combines the dense and sparse arms:
//
//	score(d) = w_dense * 1/(k + rank_dense(d)) + w_sparse * 1/(k + rank_sparse(d))
//
// with 1-based ranks and zero contribution from an arm the candidate is
// absent from. Ties break by higher dense score, then lexicographic id.
func fuseRRF(dense, sparse []armHit, denseWeight, sparseWeight float64) []Result {
	if denseWeight <= 0 && sparseWeight <= 0 {
		denseWeight, sparseWeight = 0.6, 0.4
	}

	byID := make(map[string]*Result, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))
	get := func(id string) *Result {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &Result{ID: id}
		byID[id] = r
		order = append(order, id)
		return r
	}

	for i, h := range dense {
		r := get(h.ID)
		r.DenseRank = i + 1
		r.DenseScore = h.Score
		r.Payload = h.Payload
	}
	for i, h := range sparse {
		r := get(h.ID)
		r.SparseRank = i + 1
		r.SparseScore = h.Score
		if r.Payload == nil {
			r.Payload = h.Payload
		}
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		r := byID[id]
		if r.DenseRank > 0 {
			r.Score += denseWeight / float64(rrfK+r.DenseRank)
		}
		if r.SparseRank > 0 {
			r.Score += sparseWeight / float64(rrfK+r.SparseRank)
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DenseScore != out[j].DenseScore {
			return out[i].DenseScore > out[j].DenseScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// denseOnly adapts a single-arm result list; Score mirrors the raw dense
// similarity so degraded (sparse-less) searches stay meaningfully ordered.
func denseOnly(dense []armHit) []Result {
	out := make([]Result, len(dense))
	for i, h := range dense {
		out[i] = Result{
			ID:         h.ID,
			Score:      h.Score,
			DenseScore: h.Score,
			DenseRank:  i + 1,
			Payload:    h.Payload,
		}
	}
	return out
}

func truncate(results []Result, k int) []Result {
	if k > 0 && len(results) > k {
		return results[:k]
	}
	return results
}
