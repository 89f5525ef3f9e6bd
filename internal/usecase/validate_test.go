package usecase_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"audit-rag/internal/domain"
	"audit-rag/internal/usecase"
)

func validate(qc *domain.QueryContext) *domain.QueryContext {
	usecase.NewAnswerValidator(testLogger()).Run(qc)
	return qc
}

func TestAnswerValidator_Timeout(t *testing.T) {
	qc := validate(&domain.QueryContext{QueryID: "q1", TimedOut: true, Answer: "중간 결과"})
	assert.Contains(t, qc.Answer, "처리 시간이 초과")
	assert.NotContains(t, qc.Answer, "중간 결과")
}

func TestAnswerValidator_ClarifyAnswerPreserved(t *testing.T) {
	qc := validate(&domain.QueryContext{
		QueryID:  "q1",
		Decision: domain.RouteClarify,
		Answer:   "## 추가 정보가 필요합니다",
	})
	assert.Equal(t, "## 추가 정보가 필요합니다", qc.Answer)
}

func TestAnswerValidator_NoBlocksEchoesKeywords(t *testing.T) {
	qc := validate(&domain.QueryContext{
		QueryID:   "q1",
		Decision:  domain.RouteSearch,
		Expansion: &domain.Expansion{MustHave: []string{"제조업", "매출누락"}},
	})
	assert.Contains(t, qc.Answer, "사례를 찾을 수 없습니다")
	assert.Contains(t, qc.Answer, "검색한 키워드: '제조업', '매출누락'")
}

func TestAnswerValidator_FlagsMissingCitations(t *testing.T) {
	qc := validate(&domain.QueryContext{
		QueryID:      "q1",
		Decision:     domain.RouteSearch,
		BlockRanking: []domain.RankedBlock{{FindingID: "f1"}},
		Answer:       "인용 태그 없는 답변",
	})
	assert.Contains(t, qc.Answer, "출처 인용이 포함되지 않았습니다")
}

func TestAnswerValidator_AppendsDedupedWarnings(t *testing.T) {
	warning := "벡터 검색을 사용할 수 없어 키워드 검색 결과만 반영되었습니다."
	qc := validate(&domain.QueryContext{
		QueryID:      "q1",
		Decision:     domain.RouteSearch,
		BlockRanking: []domain.RankedBlock{{FindingID: "f1"}},
		Answer:       "정상 답변 [doc-1:1:1-5]",
		Warnings:     []string{warning, warning},
	})
	assert.Equal(t, 1, strings.Count(qc.Answer, "(알림: "+warning+")"))
}
