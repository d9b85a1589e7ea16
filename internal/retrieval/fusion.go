package retrieval

import (
	"math"
	"sort"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains.
const DefaultRRFConstant = 60

// absentRank sorts ids missing from a branch list after every present rank.
const absentRank = math.MaxInt

// FusedHit is one id after reciprocal rank fusion.
type FusedHit struct {
	ID string

	// Score is the summed RRF contribution of both branches.
	Score float64

	// VectorRank and LexicalRank are 1-indexed positions in the branch
	// lists, 0 when absent.
	VectorRank  int
	LexicalRank int
}

// Fuse combines two ranked id lists with reciprocal rank fusion:
//
//	score(id) = Σ 1/(k+rank_i)  over the lists containing id, ranks 1-indexed
//
// A non-positive k falls back to DefaultRRFConstant. The output is the union
// of both lists sorted by score descending; ties break by vector rank
// ascending, then lexical rank ascending, then id ascending. The function is
// pure and deterministic for identical inputs.
func Fuse(vectorIDs, lexicalIDs []string, k int) []FusedHit {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(vectorIDs) == 0 && len(lexicalIDs) == 0 {
		return []FusedHit{}
	}

	hits := make(map[string]*FusedHit, len(vectorIDs)+len(lexicalIDs))

	for i, id := range vectorIDs {
		h := getOrCreate(hits, id)
		if h.VectorRank != 0 {
			continue // duplicate id within a branch keeps its best rank
		}
		h.VectorRank = i + 1
		h.Score += 1.0 / float64(k+i+1)
	}
	for i, id := range lexicalIDs {
		h := getOrCreate(hits, id)
		if h.LexicalRank != 0 {
			continue
		}
		h.LexicalRank = i + 1
		h.Score += 1.0 / float64(k+i+1)
	}

	fused := make([]FusedHit, 0, len(hits))
	for _, h := range hits {
		fused = append(fused, *h)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		vi, vj := sortRank(fused[i].VectorRank), sortRank(fused[j].VectorRank)
		if vi != vj {
			return vi < vj
		}
		li, lj := sortRank(fused[i].LexicalRank), sortRank(fused[j].LexicalRank)
		if li != lj {
			return li < lj
		}
		return fused[i].ID < fused[j].ID
	})

	return fused
}

func getOrCreate(hits map[string]*FusedHit, id string) *FusedHit {
	h, ok := hits[id]
	if !ok {
		h = &FusedHit{ID: id}
		hits[id] = h
	}
	return h
}

func sortRank(rank int) int {
	if rank == 0 {
		return absentRank
	}
	return rank
}
