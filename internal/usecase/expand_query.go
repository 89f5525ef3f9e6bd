package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"audit-rag/internal/domain"
)

const (
	boostMin         = 1.0
	boostMax         = 3.0
	boostDefault     = 1.5
	boostMustDefault = 3.0
)

// QueryExpander turns the parsed query into a keyword strategy for retrieval.
// Only case_lookup queries are expanded.
type QueryExpander struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

func NewQueryExpander(llm domain.LLMClient, logger *slog.Logger) *QueryExpander {
	return &QueryExpander{llm: llm, logger: logger}
}

// Run fills qc.Expansion and lifts qc.Slots.Confidence when the expansion
// itself signals a well-specified query. Never fails.
func (e *QueryExpander) Run(ctx context.Context, qc *domain.QueryContext) {
	if qc.Intent != domain.IntentCaseLookup {
		qc.Expansion = nil
		return
	}

	expansion, err := e.expandWithLLM(ctx, qc.Query())
	if err != nil {
		e.logger.Warn("query_expansion_llm_failed",
			slog.String("query_id", qc.QueryID),
			slog.String("error", err.Error()))
		expansion = fallbackExpansion(qc.Slots)
	}
	normalizeExpansion(expansion)
	qc.Expansion = expansion

	if lifted := expansionConfidence(expansion); lifted > qc.Slots.Confidence {
		e.logger.Info("confidence_lifted_by_expansion",
			slog.String("query_id", qc.QueryID),
			slog.Float64("from", qc.Slots.Confidence),
			slog.Float64("to", lifted))
		qc.Slots.Confidence = lifted
	}

	e.logger.Info("query_expanded",
		slog.String("query_id", qc.QueryID),
		slog.Any("must_have", expansion.MustHave),
		slog.Any("should_have", expansion.ShouldHave),
		slog.Any("related_terms", expansion.RelatedTerms))
}

type expansionResponse struct {
	MustHave     flexList           `json:"must_have"`
	ShouldHave   flexList           `json:"should_have"`
	RelatedTerms flexList           `json:"related_terms"`
	BoostWeights map[string]float64 `json:"boost_weights"`
}

func (e *QueryExpander) expandWithLLM(ctx context.Context, query string) (*domain.Expansion, error) {
	raw, err := e.llm.Generate(ctx, buildExpansionPrompt(query), true)
	if err != nil {
		return nil, fmt.Errorf("generate expansion: %w", err)
	}

	var resp expansionResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parse expansion json: %w", err)
	}

	return &domain.Expansion{
		MustHave:     dedupe(resp.MustHave),
		ShouldHave:   dedupe(resp.ShouldHave),
		RelatedTerms: dedupe(resp.RelatedTerms),
		BoostWeights: resp.BoostWeights,
	}, nil
}

func buildExpansionPrompt(query string) string {
	var b strings.Builder
	b.WriteString("세무조사 도메인 용어 사전:\n\n")
	b.WriteString("주제 분야:\n")
	for _, tag := range sortedKeys(domainTagVocab) {
		synonyms := domainTagVocab[tag]
		if len(synonyms) > 0 {
			b.WriteString("  - " + tag + ": " + strings.Join(synonyms, ", ") + "\n")
		} else {
			b.WriteString("  - " + tag + "\n")
		}
	}
	b.WriteString("\n사용자 질문: " + query + "\n\n")
	b.WriteString("위 도메인 사전을 참고하여 다음을 수행하세요:\n\n")
	b.WriteString("1. **핵심 키워드 (must_have)**: 사용자가 명시한 세무 관련 핵심 명사만\n")
	b.WriteString("   - 예: \"감가상각비 관련 적출사례\" → [\"감가상각비\"]\n")
	b.WriteString("   - 예: \"합병법인의 미환류소득\" → [\"합병법인\", \"미환류소득\"]\n")
	b.WriteString("2. **보조 키워드 (should_have)**: 직접 언급하지 않았지만 관련될 수 있는 키워드 (0-2개)\n")
	b.WriteString("3. **관련 용어 (related_terms)**: 도메인 사전의 동의어/유사어 (3-5개)\n")
	b.WriteString("4. **부스팅 가중치 (boost_weights)**: must_have=3.0, should_have=1.5, related_terms=1.0-1.3\n\n")
	b.WriteString("절대 추가 금지 (검색에 무의미한 일반 용어):\n")
	b.WriteString("- 세무조사, 조사, 소득세, 법인세\n")
	b.WriteString("- 사례, 적출사례, 사건, 적발, 적출, 예시, 케이스\n")
	b.WriteString("- 관련, 있어, 찾아줘, 알려줘, 검색\n\n")
	b.WriteString("JSON 형식으로만 응답하세요:\n")
	b.WriteString(`{"must_have": [...], "should_have": [...], "related_terms": [...], "boost_weights": {...}}`)
	return b.String()
}

func fallbackExpansion(slots domain.Slots) *domain.Expansion {
	exp := &domain.Expansion{BoostWeights: map[string]float64{}}
	if len(slots.DomainTags) > 0 {
		exp.MustHave = slots.DomainTags[:1]
		exp.ShouldHave = slots.DomainTags[1:]
	}
	return exp
}

// normalizeExpansion clamps boosts into [1.0, 3.0] and guarantees every
// must_have keyword carries a weight.
func normalizeExpansion(exp *domain.Expansion) {
	if exp.BoostWeights == nil {
		exp.BoostWeights = map[string]float64{}
	}
	for kw, w := range exp.BoostWeights {
		if w < boostMin {
			exp.BoostWeights[kw] = boostMin
		} else if w > boostMax {
			exp.BoostWeights[kw] = boostMax
		}
	}
	for _, kw := range exp.MustHave {
		if _, ok := exp.BoostWeights[kw]; !ok {
			exp.BoostWeights[kw] = boostMustDefault
		}
	}
	for _, kw := range exp.ShouldHave {
		if _, ok := exp.BoostWeights[kw]; !ok {
			exp.BoostWeights[kw] = boostDefault
		}
	}
}

// expansionConfidence rates the expansion on its own: two or more must-have
// keywords describe a well-specified query even when slot extraction found
// little.
func expansionConfidence(exp *domain.Expansion) float64 {
	if exp == nil {
		return 0
	}
	score := 0.0
	switch {
	case len(exp.MustHave) >= 2:
		score = 0.7
	case len(exp.MustHave) == 1:
		score = 0.5
	}
	if len(exp.ShouldHave) > 0 {
		score += 0.1
	}
	if len(exp.RelatedTerms) >= 3 {
		score += 0.1
	}
	if score > 1 {
		return 1
	}
	return score
}
