package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"audit-rag/internal/domain"
	"audit-rag/internal/usecase"
)

func TestQueryExpander_SkipsNonCaseLookup(t *testing.T) {
	llm := new(MockLLM)

	qc := &domain.QueryContext{QueryID: "q1", Intent: domain.IntentExplain, NormalizedQuery: "감가상각비 의미"}
	usecase.NewQueryExpander(llm, testLogger()).Run(context.Background(), qc)

	assert.Nil(t, qc.Expansion)
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryExpander_ClampsBoostsAndLiftsConfidence(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything, true).Return(
		`{"must_have": ["제조업", "매출누락"], "should_have": ["세금계산서"],
		  "related_terms": ["매출탈루", "수입금액누락", "현금매출누락"],
		  "boost_weights": {"제조업": 5.0, "매출누락": 0.2}}`, nil)

	qc := &domain.QueryContext{
		QueryID:         "q1",
		Intent:          domain.IntentCaseLookup,
		NormalizedQuery: "제조업 매출누락",
		Slots:           domain.Slots{Confidence: 0.3},
	}
	usecase.NewQueryExpander(llm, testLogger()).Run(context.Background(), qc)

	require.NotNil(t, qc.Expansion)
	assert.Equal(t, []string{"제조업", "매출누락"}, qc.Expansion.MustHave)
	assert.Equal(t, 3.0, qc.Expansion.BoostWeights["제조업"], "boost clamped to the upper bound")
	assert.Equal(t, 1.0, qc.Expansion.BoostWeights["매출누락"], "boost clamped to the lower bound")
	assert.Equal(t, 1.5, qc.Expansion.BoostWeights["세금계산서"], "should_have gets the default boost")

	// Two must-have keywords, a should-have and three related terms describe a
	// well-specified query regardless of how slot extraction went.
	assert.InDelta(t, 0.9, qc.Slots.Confidence, 1e-9)
}

func TestQueryExpander_LLMErrorFallsBackToDomainTags(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything, true).Return("", errors.New("timeout"))

	qc := &domain.QueryContext{
		QueryID:         "q1",
		Intent:          domain.IntentCaseLookup,
		NormalizedQuery: "매출누락 가공경비",
		Slots:           domain.Slots{DomainTags: []string{"매출누락", "가공경비"}, Confidence: 0.2},
	}
	usecase.NewQueryExpander(llm, testLogger()).Run(context.Background(), qc)

	require.NotNil(t, qc.Expansion)
	assert.Equal(t, []string{"매출누락"}, qc.Expansion.MustHave)
	assert.Equal(t, []string{"가공경비"}, qc.Expansion.ShouldHave)
	assert.Equal(t, 3.0, qc.Expansion.BoostWeights["매출누락"])
	assert.Equal(t, 1.5, qc.Expansion.BoostWeights["가공경비"])
	assert.InDelta(t, 0.6, qc.Slots.Confidence, 1e-9)
}

func TestQueryExpander_ConfidenceNeverDrops(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything, true).Return(
		`{"must_have": ["매출누락"], "should_have": [], "related_terms": [], "boost_weights": {}}`, nil)

	qc := &domain.QueryContext{
		QueryID:         "q1",
		Intent:          domain.IntentCaseLookup,
		NormalizedQuery: "매출누락",
		Slots:           domain.Slots{Confidence: 0.8},
	}
	usecase.NewQueryExpander(llm, testLogger()).Run(context.Background(), qc)

	assert.InDelta(t, 0.8, qc.Slots.Confidence, 1e-9, "a weaker expansion keeps the parser's confidence")
}
