// Package profile implements the self-join matrix profile for UrdDB's motif
// and anomaly discovery.
//
// The matrix profile of a series of n points under a window length w is a
// length n-w+1 array P where P[i] is the z-normalized Euclidean distance
// between subsequence i and its nearest non-trivial neighbor, together with
// the profile index I[i] identifying that neighbor. Small profile values mark
// repeated shapes (motifs); large values mark shapes unlike anything else in
// the series (discords, i.e. anomalies).
//
// Multivariate series are handled by z-normalizing each of the D columns of
// a w-by-D subsequence independently and taking the Euclidean distance
// between the flattened normalized matrices. This yields a single scalar
// profile per position regardless of dimension.
//
// The computation is a straightforward O(n²·w·D) scan. The series sizes this
// engine serves (tens to hundreds of points per analytic call) make the
// constant factors irrelevant; the brute-force scan is exact, allocation
// light, and has none of the FFT bookkeeping of STOMP-style acceleration.
//
// Example:
//
//	mp := profile.Compute(points, 5)
//	discords := mp.DiscoverDiscords(3)
//	for _, d := range discords {
//		fmt.Printf("anomaly at %d, score %.3f\n", d.Index, d.Score)
//	}
package profile

import (
	"math"

	"github.com/orneryd/urddb/pkg/math/vector"
)

// MatrixProfile holds a computed self-join matrix profile.
//
// P and I have length n-w+1 (zero when the series is shorter than the
// window). P[i] is +Inf and I[i] is -1 when subsequence i has no non-trivial
// neighbor, which happens when every other subsequence falls inside the
// exclusion zone.
type MatrixProfile struct {
	// N is the number of points in the profiled series.
	N int
	// W is the subsequence window length.
	W int
	// Dim is the dimensionality of each point.
	Dim int
	// ExclusionZone is the index radius within which neighbors are ignored.
	ExclusionZone int

	// P is the matrix profile: nearest non-trivial neighbor distances.
	P []float64
	// I is the profile index: I[i] is the argmin neighbor of subsequence i.
	I []int
}

// Match is one discovered motif or discord position.
type Match struct {
	// Index is the starting position of the subsequence.
	Index int
	// MatchIndex is the profile index at Index: the nearest-neighbor
	// subsequence that produced the score. -1 when there was none.
	MatchIndex int
	// Score is the profile value at Index.
	Score float64
	// Window is the subsequence length the profile was computed with.
	Window int
}

// Compute calculates the self-join matrix profile of a multivariate series.
//
// points is the series in insertion order, one []float64 per point, all of
// equal length. window is the subsequence length; the exclusion zone
// defaults to ceil(window/2).
//
// Degenerate inputs produce an empty profile rather than an error: a window
// shorter than 2 has no shape, and a series shorter than the window has no
// subsequences. Discovery on an empty profile returns no matches, which is
// exactly what the protocol reports for those cases.
func Compute(points [][]float64, window int) *MatrixProfile {
	n := len(points)
	dim := 0
	if n > 0 {
		dim = len(points[0])
	}

	mp := &MatrixProfile{
		N:             n,
		W:             window,
		Dim:           dim,
		ExclusionZone: (window + 1) / 2,
	}

	if window < 2 || n < window {
		return mp
	}

	m := n - window + 1 // number of subsequences

	// Z-normalize every subsequence once, column by column. norms[i] is the
	// flattened w×D normalized matrix for subsequence i.
	norms := normalizeSubsequences(points, window, dim)

	mp.P = make([]float64, m)
	mp.I = make([]int, m)

	for i := 0; i < m; i++ {
		best := math.Inf(1)
		bestIdx := -1
		for j := 0; j < m; j++ {
			if abs(i-j) < mp.ExclusionZone {
				continue
			}
			d := vector.EuclideanDistance(norms[i], norms[j])
			if d < best {
				best = d
				bestIdx = j
			}
		}
		mp.P[i] = best
		mp.I[i] = bestIdx
	}

	return mp
}

// normalizeSubsequences produces the flattened per-column z-normalized
// matrix of every subsequence. Sliding means and stddevs come from one
// cumulative-sum pass per column.
func normalizeSubsequences(points [][]float64, window, dim int) [][]float64 {
	n := len(points)
	m := n - window + 1

	// Column-major copy of the series so each dimension is one contiguous
	// scalar sequence.
	cols := make([][]float64, dim)
	for d := 0; d < dim; d++ {
		cols[d] = make([]float64, n)
		for t := 0; t < n; t++ {
			cols[d][t] = points[t][d]
		}
	}

	means := make([][]float64, dim)
	stds := make([][]float64, dim)
	for d := 0; d < dim; d++ {
		means[d], stds[d] = vector.MovMeanStd(cols[d], window)
	}

	norms := make([][]float64, m)
	for i := 0; i < m; i++ {
		flat := make([]float64, 0, window*dim)
		for d := 0; d < dim; d++ {
			mean, std := means[d][i], stds[d][i]
			for t := i; t < i+window; t++ {
				if std == 0 {
					// Constant column: zero shape.
					flat = append(flat, 0)
				} else {
					flat = append(flat, (cols[d][t]-mean)/std)
				}
			}
		}
		norms[i] = flat
	}
	return norms
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
