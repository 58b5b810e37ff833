// Package search implements UrdDB's point similarity engine.
//
// FindSimilar runs a brute-force cosine similarity scan over a series'
// stored points. While not as sophisticated as HNSW or other approximate
// methods, the scan is exact and well matched to the dataset sizes a series
// accumulates (tens to thousands of points).
//
// Key Features:
//   - Exact cosine similarity against every stored point
//   - Minimum-similarity threshold filtering
//   - Deterministic ordering: similarity descending, insertion index
//     ascending on ties
//
// Example Usage:
//
//	points, _ := engine.Query("similarity_returns")
//	matches := search.FindSimilar(points, []float64{1.2, -0.3}, 5, 0.5)
//	for _, m := range matches {
//		fmt.Printf("#%d similarity %.3f values %v\n",
//			m.Index, m.Similarity, m.Values)
//	}
//
// Algorithm Details:
//
// Cosine similarity measures the cosine of the angle between two vectors:
//
//	similarity = (A · B) / (||A|| × ||B||)
//
// The threshold is a literal minimum: a threshold of 0 returns the
// top-limit matches among points with non-negative similarity, which is how
// clients probe a series before they know what "similar" means for their
// data. Points pointing away from the query (negative similarity) are not
// returned at threshold 0.
//
// Performance Characteristics:
//   - O(n×d) per query where n is stored points, d the dimension
//   - No state, no locks: operates on the snapshot the caller provides
package search

import (
	"sort"

	"github.com/orneryd/urddb/pkg/math/vector"
	"github.com/orneryd/urddb/pkg/storage"
)

// Match is one similarity search result.
type Match struct {
	// Index is the matched point's insertion index in its series.
	Index int
	// Values is the matched point's vector.
	Values []float64
	// Similarity is the cosine similarity to the query vector, in [-1, 1].
	Similarity float64
}

// FindSimilar scans a snapshot of points and returns at most limit matches
// whose cosine similarity to query is at least threshold, sorted by
// similarity descending. Ties are broken by earlier insertion index, so
// repeated calls over the same snapshot return identical orderings.
//
// An empty snapshot or a limit < 1 yields an empty (non-nil) slice. The
// caller is responsible for checking that query has the series' dimension;
// see urddb.DB.FindSimilar.
func FindSimilar(points []storage.Point, query []float64, limit int, threshold float64) []Match {
	if limit < 1 {
		return []Match{}
	}
	matches := make([]Match, 0, limit)

	for _, p := range points {
		sim := vector.CosineSimilarity(query, p.Values)
		if sim >= threshold {
			matches = append(matches, Match{
				Index:      p.Index,
				Values:     p.Values,
				Similarity: sim,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Index < matches[j].Index
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
