package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"audit-rag/internal/domain"
)

const answerPromptTemplate = `당신은 세무조사 전문가입니다. 아래 컨텍스트를 참고하여 사용자 질문에 답변하세요.

# 사용자 질문
%s

# 검색된 사례 컨텍스트
%s

# 답변 지침
1. **중요**: 컨텍스트에 제공된 **모든 사례**를 빠짐없이 답변에 포함하세요. 일부만 선택하지 마세요.
2. **중요**: 제공된 사례는 모두 질문과 관련된 적출 사례입니다. "관련 없음"이라고 하지 마세요.
3. 적출 블록별로 카드 형식으로 정리 (적출 사례 1, 적출 사례 2, ...)
4. 각 블록마다 코드, 항목명, 문서 ID, 조사착안, 조사기법, 질문과의 연관성을 포함하세요.
5. 근거는 반드시 컨텍스트에 표시된 인용 태그([문서ID:페이지:라인])로 인용하세요.
6. 컨텍스트에 없는 내용은 답변에 포함하지 마세요.

답변:`

const explainPromptTemplate = `당신은 세무 전문가입니다. 아래 질문의 용어나 개념을 간결하게 설명하세요.
확실하지 않은 내용은 추측하지 말고 모른다고 답하세요.

질문: %s

답변:`

const excludedDocLimit = 2
const excludedPerDocLimit = 3

// AnswerComposer produces the final markdown answer from the packed context.
type AnswerComposer struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

func NewAnswerComposer(llm domain.LLMClient, logger *slog.Logger) *AnswerComposer {
	return &AnswerComposer{llm: llm, logger: logger}
}

// Run fills qc.Answer, or qc.Err plus a deterministic fallback body when the
// LLM is unavailable.
func (c *AnswerComposer) Run(ctx context.Context, qc *domain.QueryContext) {
	if qc.Decision == domain.RouteExplain {
		c.explain(ctx, qc)
		return
	}

	if len(qc.BlockRanking) == 0 || qc.Context.Text == "" {
		// The validator owns the empty-result message.
		return
	}

	prompt := fmt.Sprintf(answerPromptTemplate, qc.RawQuery, qc.Context.Text)
	body, err := c.llm.Generate(ctx, prompt, false)
	if err != nil {
		c.logger.Warn("answer_generation_failed",
			slog.String("query_id", qc.QueryID),
			slog.String("error", err.Error()))
		qc.Err = err.Error()
		body = fallbackBody(qc.BlockRanking)
	}

	var parts []string
	if preamble := strategyPreamble(qc); preamble != "" {
		parts = append(parts, preamble)
	}
	parts = append(parts, body)
	if footer := referencesFooter(qc.Context.Citations); footer != "" {
		parts = append(parts, footer)
	}
	if supplement := excludedSupplement(qc); supplement != "" {
		parts = append(parts, supplement)
	}
	qc.Answer = strings.Join(parts, "")

	c.logger.Info("answer_composed",
		slog.String("query_id", qc.QueryID),
		slog.Int("answer_length", len(qc.Answer)),
		slog.Bool("fallback", qc.Err != ""))
}

func (c *AnswerComposer) explain(ctx context.Context, qc *domain.QueryContext) {
	body, err := c.llm.Generate(ctx, fmt.Sprintf(explainPromptTemplate, qc.RawQuery), false)
	if err != nil {
		c.logger.Warn("explain_generation_failed",
			slog.String("query_id", qc.QueryID),
			slog.String("error", err.Error()))
		qc.Err = err.Error()
		return
	}
	qc.Answer = body
}

// strategyPreamble summarizes the keyword strategy. Rendered only for
// multi-keyword queries, where the document/block split actually happened.
func strategyPreamble(qc *domain.QueryContext) string {
	exp := qc.Expansion
	if exp == nil || len(exp.MustHave) < 2 {
		return ""
	}

	docKw := exp.DocKeyword()
	blockKws := exp.BlockKeywords()

	var b strings.Builder
	b.WriteString("> 💡 **검색 전략**:\n")
	b.WriteString(fmt.Sprintf("> - 조사 대상/배경: '%s'\n", docKw))
	b.WriteString(fmt.Sprintf("> - 적출 항목: '%s'\n", strings.Join(blockKws, "' 또는 '")))
	b.WriteString(fmt.Sprintf("> - '%s' 문서 내에서 '%s' 포함 사례를 검색했습니다.\n",
		docKw, strings.Join(blockKws, "' 또는 '")))

	if len(qc.KeywordBlockCounts) > 0 {
		b.WriteString(">\n> **검색된 사례 건수**:\n")
		for _, kw := range exp.MustHave {
			kind := "적출항목"
			if kw == docKw {
				kind = "조사대상"
			}
			b.WriteString(fmt.Sprintf("> - [%s] '%s': **%d건**\n", kind, kw, qc.KeywordBlockCounts[kw]))
		}
		b.WriteString(">\n> 특정 키워드로 재질의하시면 해당 사례만 상세히 확인하실 수 있습니다.\n")
	}
	b.WriteString("\n")
	return b.String()
}

// referencesFooter lists each packed citation tag once.
func referencesFooter(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n## 참고 문헌\n")
	seen := map[string]struct{}{}
	for _, cite := range citations {
		tag := cite.Tag()
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		b.WriteString(fmt.Sprintf("- %s %s (%s)\n", tag, cite.FindingID, cite.Section))
	}
	return b.String()
}

// excludedSupplement lists the partially matching blocks, grouped by
// document, so the user can refine the query toward them.
func excludedSupplement(qc *domain.QueryContext) string {
	exp := qc.Expansion
	if len(qc.ExcludedBlocks) == 0 || exp == nil || len(exp.MustHave) < 2 {
		return ""
	}

	byDoc := map[string][]domain.RankedBlock{}
	var docOrder []string
	for _, block := range qc.ExcludedBlocks {
		if _, ok := byDoc[block.DocID]; !ok {
			docOrder = append(docOrder, block.DocID)
		}
		byDoc[block.DocID] = append(byDoc[block.DocID], block)
	}
	if len(docOrder) > excludedDocLimit {
		docOrder = docOrder[:excludedDocLimit]
	}

	var b strings.Builder
	b.WriteString("\n\n---\n\n### 추가 정보\n\n")
	b.WriteString(fmt.Sprintf("검색된 문서에는 위 사례 외에도 **%d건의 다른 적출 사례**가 포함되어 있습니다:\n\n", len(qc.ExcludedBlocks)))

	for _, docID := range docOrder {
		blocks := byDoc[docID]
		b.WriteString(fmt.Sprintf("**문서 %s**:\n", docID))
		for i, block := range blocks {
			if i >= excludedPerDocLimit {
				b.WriteString(fmt.Sprintf("... 외 %d건\n", len(blocks)-excludedPerDocLimit))
				break
			}
			b.WriteString(fmt.Sprintf("%d. %s (코드: %s)\n", i+1, block.Item, block.Code))
		}
		b.WriteString("\n")
	}
	b.WriteString("*더 자세한 정보가 필요하시면 구체적인 키워드로 재질의해주세요.*\n")
	return b.String()
}

// fallbackBody renders the ranked blocks without narrative, for when the LLM
// cannot be reached.
func fallbackBody(blocks []domain.RankedBlock) string {
	var b strings.Builder
	b.WriteString("LLM 응답을 생성할 수 없어 검색된 사례를 목록으로 제공합니다.\n\n")
	for i, block := range blocks {
		b.WriteString(fmt.Sprintf("## 적출 사례 %d\n", i+1))
		b.WriteString(fmt.Sprintf("- 문서: %s\n", block.DocID))
		b.WriteString(fmt.Sprintf("- 적출ID: %s\n", block.FindingID))
		b.WriteString(fmt.Sprintf("- 항목: %s\n", block.Item))
		b.WriteString(fmt.Sprintf("- 코드: %s\n", block.Code))
		b.WriteString(fmt.Sprintf("- 섹션: %s\n\n", strings.Join(block.SourceSections, ", ")))
	}
	return b.String()
}
