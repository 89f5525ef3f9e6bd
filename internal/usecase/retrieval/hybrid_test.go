package retrieval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audit-rag/internal/domain"
	"audit-rag/internal/usecase/retrieval"
)

func lexHit(id string, score float64) domain.FindingHit {
	return domain.FindingHit{Finding: domain.Finding{FindingID: id}, ScoreBM25: score}
}

func vecHit(id string, score float64) domain.FindingHit {
	return domain.FindingHit{Finding: domain.Finding{FindingID: id}, ScoreVector: score}
}

func TestFuseRRF_OverlapOutranksSingleRanking(t *testing.T) {
	lexical := []domain.FindingHit{lexHit("a", 10), lexHit("b", 9), lexHit("c", 8)}
	vector := []domain.FindingHit{vecHit("b", 0.9), vecHit("d", 0.8)}

	fused := retrieval.FuseRRF(lexical, vector, 60, 0)

	require.Len(t, fused, 4)
	// b appears in both rankings: 1/62 + 1/61 beats a's 1/61.
	assert.Equal(t, "b", fused[0].FindingID)
	assert.Equal(t, "a", fused[1].FindingID)
}

func TestFuseRRF_DegeneratesToRemainingRanking(t *testing.T) {
	lexical := []domain.FindingHit{lexHit("a", 10), lexHit("b", 9)}

	fused := retrieval.FuseRRF(lexical, nil, 60, 0)

	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].FindingID)
	assert.Equal(t, "b", fused[1].FindingID)
}

func TestFuseRRF_TieBreakByOriginalScoreThenID(t *testing.T) {
	// Same rank in disjoint rankings gives identical RRF scores.
	lexical := []domain.FindingHit{lexHit("z", 5)}
	vector := []domain.FindingHit{vecHit("a", 3)}

	fused := retrieval.FuseRRF(lexical, vector, 60, 0)

	require.Len(t, fused, 2)
	assert.Equal(t, "z", fused[0].FindingID, "higher original score wins the tie")

	// Equal original scores fall back to the lexical ID order.
	lexical = []domain.FindingHit{lexHit("z", 3)}
	fused = retrieval.FuseRRF(lexical, vector, 60, 0)
	assert.Equal(t, "a", fused[0].FindingID)
}

func TestFuseRRF_Monotone(t *testing.T) {
	lexical := []domain.FindingHit{lexHit("a", 10), lexHit("b", 9)}

	before := retrieval.FuseRRF(lexical, nil, 60, 0)
	after := retrieval.FuseRRF(lexical, []domain.FindingHit{vecHit("a", 0.9)}, 60, 0)

	// Adding a to the vector ranking can only improve its position.
	assert.Equal(t, "a", before[0].FindingID)
	assert.Equal(t, "a", after[0].FindingID)
}

func TestFuseRRF_TopNTruncates(t *testing.T) {
	lexical := []domain.FindingHit{lexHit("a", 3), lexHit("b", 2), lexHit("c", 1)}

	fused := retrieval.FuseRRF(lexical, nil, 60, 2)

	assert.Len(t, fused, 2)
}
