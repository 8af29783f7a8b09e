package knowledge

import "sort"

// rrfK is the reciprocal-rank-fusion constant. 60 is the standard value
// from the RRF literature; with candidate lists capped well below 60 it
// guarantees an entry in both rankings outscores any single-ranking entry.
const rrfK = 60.0

// fuse merges a semantic and a keyword ranking into one ordered list.
//
// Each entry's fused score is the sum of 1/(rrfK + rank) over the
// rankings that contain it, so dual-ranking entries always rise above
// single-ranking ones. Exact score ties break on keyword score, then on
// insertion order (lowest seq first) so results are stable.
func fuse(semantic, keyword []Result) []Result {
	if len(semantic) == 0 && len(keyword) == 0 {
		return nil
	}

	merged := make(map[int64]*Result, len(semantic)+len(keyword))
	order := make([]int64, 0, len(semantic)+len(keyword))

	for rank, r := range semantic {
		r.Score = 1.0 / (rrfK + float64(rank+1))
		rc := r
		merged[r.Entry.Seq] = &rc
		order = append(order, r.Entry.Seq)
	}
	for rank, r := range keyword {
		score := 1.0 / (rrfK + float64(rank+1))
		if existing, ok := merged[r.Entry.Seq]; ok {
			existing.Score += score
			existing.Keyword = true
			existing.KeywordScore = r.KeywordScore
			continue
		}
		r.Score = score
		rc := r
		merged[r.Entry.Seq] = &rc
		order = append(order, r.Entry.Seq)
	}

	fused := make([]Result, 0, len(order))
	for _, seq := range order {
		fused = append(fused, *merged[seq])
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].KeywordScore != fused[j].KeywordScore {
			return fused[i].KeywordScore > fused[j].KeywordScore
		}
		return fused[i].Entry.Seq < fused[j].Entry.Seq
	})

	return fused
}
