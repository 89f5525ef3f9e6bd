package retrieval

import (
	"context"
	"log/slog"
	"sort"
)

// rankedItem abstracts a hit so findings and chunks share one fusion path.
type rankedItem interface {
	ID() string
	Score() float64
}

// fused carries an item with its RRF score and the best original score seen
// in either ranking.
type fused[T rankedItem] struct {
	item      T
	rrfScore  float64
	bestScore float64
}

// FuseRRF merges a lexical and a vector ranking by Reciprocal Rank Fusion.
// An item missing from one ranking simply contributes nothing for it, so an
// empty ranking degenerates fusion to the other one. Ties break on the higher
// original score, then lexically by ID.
func FuseRRF[T rankedItem](lexical, vector []T, rrfK float64, topN int) []T {
	fusedMap := make(map[string]*fused[T], len(lexical)+len(vector))

	accumulate := func(ranking []T) {
		for rank, item := range ranking {
			f, ok := fusedMap[item.ID()]
			if !ok {
				f = &fused[T]{item: item, bestScore: item.Score()}
				fusedMap[item.ID()] = f
			} else if item.Score() > f.bestScore {
				f.bestScore = item.Score()
			}
			f.rrfScore += 1.0 / (rrfK + float64(rank+1))
		}
	}
	accumulate(lexical)
	accumulate(vector)

	results := make([]*fused[T], 0, len(fusedMap))
	for _, f := range fusedMap {
		results = append(results, f)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].rrfScore != results[j].rrfScore {
			return results[i].rrfScore > results[j].rrfScore
		}
		if results[i].bestScore != results[j].bestScore {
			return results[i].bestScore > results[j].bestScore
		}
		return results[i].item.ID() < results[j].item.ID()
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	out := make([]T, 0, len(results))
	for _, f := range results {
		out = append(out, f.item)
	}
	return out
}

// rrfScores recomputes the fused score per ID, for callers that need the
// numeric value (block scoring) and not just the order.
func rrfScores[T rankedItem](lexical, vector []T, rrfK float64) map[string]float64 {
	scores := make(map[string]float64, len(lexical)+len(vector))
	for rank, item := range lexical {
		scores[item.ID()] += 1.0 / (rrfK + float64(rank+1))
	}
	for rank, item := range vector {
		scores[item.ID()] += 1.0 / (rrfK + float64(rank+1))
	}
	return scores
}

// recoverRanking runs one sub-search and converts any failure into an empty
// ranking. Hybrid retrieval must survive a single backend outage.
func recoverRanking[T any](ctx context.Context, logger *slog.Logger, event string, search func(context.Context) ([]T, error)) []T {
	results, err := search(ctx)
	if err != nil {
		logger.Warn(event, slog.String("error", err.Error()))
		return nil
	}
	return results
}
