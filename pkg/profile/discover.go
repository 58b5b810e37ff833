package profile

import "math"

// DiscoverMotifs returns the k positions with the smallest profile values,
// the most repeated shapes, in ascending score order.
//
// After each pick an exclusion zone of radius W is applied around both the
// picked index and its matching index, so successive motifs never overlap a
// previous pick. Fewer than k matches are returned when the profile runs out
// of non-overlapping candidates.
func (mp *MatrixProfile) DiscoverMotifs(k int) []Match {
	return mp.discover(k, false)
}

// DiscoverDiscords returns the k positions with the largest profile values,
// the series' discords, in descending score order.
//
// An exclusion zone of radius W is applied around each pick before the next
// is selected. Positions with an infinite profile value (no non-trivial
// neighbor existed) are never reported: with nothing to compare against,
// "unlike its nearest neighbor" is meaningless. Zero-valued positions are
// also skipped: a zero distance means an identical subsequence exists
// elsewhere, so a constant series reports no anomalies.
func (mp *MatrixProfile) DiscoverDiscords(k int) []Match {
	return mp.discover(k, true)
}

// discover runs the shared greedy pick-and-exclude loop over a working copy
// of the profile. Excluded positions are overwritten with +Inf when looking
// for motifs (minima) and -Inf when looking for discords (maxima), the same
// trick go-style matrix profile code uses to remove trivial solutions.
func (mp *MatrixProfile) discover(k int, discords bool) []Match {
	if k < 1 || len(mp.P) == 0 {
		return []Match{}
	}

	work := make([]float64, len(mp.P))
	copy(work, mp.P)

	matches := make([]Match, 0, k)
	for len(matches) < k {
		idx := -1
		if discords {
			// A zero profile value means an identical subsequence exists
			// elsewhere, the opposite of a discord, so constant series
			// (all-zero profiles) report no anomalies at all.
			best := 0.0
			for i, v := range work {
				if !math.IsInf(v, 0) && v > best {
					best = v
					idx = i
				}
			}
		} else {
			best := math.Inf(1)
			for i, v := range work {
				if v < best {
					best = v
					idx = i
				}
			}
		}
		if idx == -1 {
			break
		}

		matches = append(matches, Match{
			Index:      idx,
			MatchIndex: mp.I[idx],
			Score:      mp.P[idx],
			Window:     mp.W,
		})

		mp.exclude(work, idx, discords)
		if !discords && mp.I[idx] >= 0 {
			mp.exclude(work, mp.I[idx], discords)
		}
	}

	return matches
}

// exclude overwrites a radius-W neighborhood around idx so later picks
// cannot overlap it.
func (mp *MatrixProfile) exclude(work []float64, idx int, discords bool) {
	fill := math.Inf(1)
	if discords {
		fill = math.Inf(-1)
	}

	start := idx - mp.W
	if start < 0 {
		start = 0
	}
	end := idx + mp.W
	if end > len(work)-1 {
		end = len(work) - 1
	}
	for i := start; i <= end; i++ {
		work[i] = fill
	}
}
