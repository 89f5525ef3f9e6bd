package retrieval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audit-rag/internal/domain"
	"audit-rag/internal/usecase/retrieval"
)

func promoteConfig() retrieval.PromoteConfig {
	return retrieval.PromoteConfig{
		TopKChunks:      3,
		IntersectionMin: 2,
		FinalTopN:       3,
		MaxBlocksPerDoc: 2,
		SectionWeights: map[string]float64{
			domain.SectionFindings:  0.5,
			domain.SectionTechnique: 0.5,
		},
	}
}

func sectionChunk(chunkID, findingID, docID, section, text string, score float64) domain.ChunkHit {
	return domain.ChunkHit{
		Chunk: domain.Chunk{
			ChunkID:   chunkID,
			FindingID: findingID,
			DocID:     docID,
			Section:   section,
			Text:      text,
		},
		ScoreCombined: score,
	}
}

func multiKeywordQC(groups map[string][]domain.ChunkHit) *domain.QueryContext {
	return &domain.QueryContext{
		QueryID: "q1",
		Expansion: &domain.Expansion{
			MustHave: []string{"제조업", "매출누락"},
		},
		SectionGroups: groups,
	}
}

func TestBlockPromoter_IntersectionCoversEverySection(t *testing.T) {
	groups := map[string][]domain.ChunkHit{
		domain.SectionFindings: {
			sectionChunk("c1", "f1", "doc-1", domain.SectionFindings, "제조업 매출누락 착안", 0.9),
			sectionChunk("c2", "f2", "doc-2", domain.SectionFindings, "제조업 매출누락 확인", 0.8),
		},
		domain.SectionTechnique: {
			sectionChunk("c3", "f1", "doc-1", domain.SectionTechnique, "매출누락 검증 기법", 0.7),
			sectionChunk("c4", "f2", "doc-2", domain.SectionTechnique, "매출누락 분석", 0.6),
		},
	}

	p := retrieval.NewBlockPromoter(promoteConfig(), testLogger())
	qc := multiKeywordQC(groups)
	p.Run(qc)

	require.Len(t, qc.BlockRanking, 2)
	for _, block := range qc.BlockRanking {
		assert.ElementsMatch(t, []string{domain.SectionFindings, domain.SectionTechnique}, block.SourceSections,
			"intersection blocks carry chunks from every section")
	}
	assert.Equal(t, "f1", qc.BlockRanking[0].FindingID, "higher mean score ranks first")
}

func TestBlockPromoter_BlendWhenIntersectionTooSmall(t *testing.T) {
	// Only f1 spans both sections; the intersection of size 1 is below the
	// minimum, so the union is blended.
	groups := map[string][]domain.ChunkHit{
		domain.SectionFindings: {
			sectionChunk("c1", "f1", "doc-1", domain.SectionFindings, "제조업 매출누락", 0.4),
			sectionChunk("c2", "f2", "doc-2", domain.SectionFindings, "제조업 매출누락", 1.0),
		},
		domain.SectionTechnique: {
			sectionChunk("c3", "f1", "doc-1", domain.SectionTechnique, "매출누락 기법", 0.4),
		},
	}

	p := retrieval.NewBlockPromoter(promoteConfig(), testLogger())
	qc := multiKeywordQC(groups)
	p.Run(qc)

	require.Len(t, qc.BlockRanking, 2)
	// f2: 0.5*1.0 + 0.5*0 = 0.5 > f1: 0.5*0.4 + 0.5*0.4 = 0.4.
	assert.Equal(t, "f2", qc.BlockRanking[0].FindingID, "missing section contributes zero")
	assert.Equal(t, "f1", qc.BlockRanking[1].FindingID)
}

func TestBlockPromoter_KeywordFilterClassification(t *testing.T) {
	groups := map[string][]domain.ChunkHit{
		domain.SectionFindings: {
			sectionChunk("c1", "f1", "doc-1", domain.SectionFindings, "매출누락 착안 내용", 0.9),
			sectionChunk("c2", "f2", "doc-2", domain.SectionFindings, "제조업 일반 현황", 0.8),
			sectionChunk("c3", "f3", "doc-3", domain.SectionFindings, "무관한 내용", 0.7),
		},
		domain.SectionTechnique: {
			sectionChunk("c4", "f1", "doc-1", domain.SectionTechnique, "검증 기법", 0.6),
			sectionChunk("c5", "f2", "doc-2", domain.SectionTechnique, "일반 기법", 0.5),
			sectionChunk("c6", "f3", "doc-3", domain.SectionTechnique, "기타", 0.4),
		},
	}

	p := retrieval.NewBlockPromoter(promoteConfig(), testLogger())
	qc := multiKeywordQC(groups)
	p.Run(qc)

	// f1 contains the block keyword, f2 only the document keyword, f3 neither.
	require.Len(t, qc.BlockRanking, 1)
	assert.Equal(t, "f1", qc.BlockRanking[0].FindingID)
	require.Len(t, qc.ExcludedBlocks, 1)
	assert.Equal(t, "f2", qc.ExcludedBlocks[0].FindingID)

	assert.Equal(t, 1, qc.KeywordBlockCounts["매출누락"])
	assert.Equal(t, 1, qc.KeywordBlockCounts["제조업"])
}

func TestBlockPromoter_SingleKeywordDisablesFilter(t *testing.T) {
	groups := map[string][]domain.ChunkHit{
		domain.SectionFindings: {
			sectionChunk("c1", "f1", "doc-1", domain.SectionFindings, "아무 내용", 0.9),
			sectionChunk("c2", "f2", "doc-2", domain.SectionFindings, "다른 내용", 0.8),
		},
		domain.SectionTechnique: {
			sectionChunk("c3", "f1", "doc-1", domain.SectionTechnique, "기법", 0.7),
			sectionChunk("c4", "f2", "doc-2", domain.SectionTechnique, "기법", 0.6),
		},
	}

	p := retrieval.NewBlockPromoter(promoteConfig(), testLogger())
	qc := multiKeywordQC(groups)
	qc.Expansion = &domain.Expansion{MustHave: []string{"부가가치세"}}
	p.Run(qc)

	assert.Len(t, qc.BlockRanking, 2, "single-keyword queries keep every block")
	assert.Empty(t, qc.ExcludedBlocks)
}

func TestBlockPromoter_MaxBlocksPerDoc(t *testing.T) {
	groups := map[string][]domain.ChunkHit{
		domain.SectionFindings: {
			sectionChunk("c1", "f1", "doc-1", domain.SectionFindings, "매출누락", 0.9),
			sectionChunk("c2", "f2", "doc-1", domain.SectionFindings, "매출누락", 0.8),
			sectionChunk("c3", "f3", "doc-1", domain.SectionFindings, "매출누락", 0.7),
		},
		domain.SectionTechnique: {
			sectionChunk("c4", "f1", "doc-1", domain.SectionTechnique, "기법", 0.6),
			sectionChunk("c5", "f2", "doc-1", domain.SectionTechnique, "기법", 0.5),
			sectionChunk("c6", "f3", "doc-1", domain.SectionTechnique, "기법", 0.4),
		},
	}

	p := retrieval.NewBlockPromoter(promoteConfig(), testLogger())
	qc := multiKeywordQC(groups)
	p.Run(qc)

	assert.Len(t, qc.BlockRanking, 2, "at most two blocks per document")
	docs := map[string]int{}
	for _, block := range qc.BlockRanking {
		docs[block.DocID]++
	}
	for _, count := range docs {
		assert.LessOrEqual(t, count, 2)
	}
	require.Len(t, qc.ExcludedBlocks, 1)
	assert.Equal(t, "f3", qc.ExcludedBlocks[0].FindingID, "overflow past the per-doc cap becomes supplementary")
}
