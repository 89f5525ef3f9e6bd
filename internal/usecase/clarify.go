package usecase

import (
	"log/slog"
	"strings"

	"audit-rag/internal/domain"
)

// Clarifier writes the one-turn clarification answer for underspecified
// queries. The pipeline stops here; no retrieval runs.
type Clarifier struct {
	logger *slog.Logger
}

func NewClarifier(logger *slog.Logger) *Clarifier {
	return &Clarifier{logger: logger}
}

// Run fills qc.Clarification and qc.Answer.
func (c *Clarifier) Run(qc *domain.QueryContext) {
	question := clarificationQuestion(qc.Slots)
	qc.Clarification = question
	qc.Answer = "## 추가 정보가 필요합니다\n\n" + question

	c.logger.Info("clarification_requested",
		slog.String("query_id", qc.QueryID),
		slog.String("question", question))
}

func clarificationQuestion(slots domain.Slots) string {
	var missing []string
	if len(slots.IndustrySub) == 0 {
		missing = append(missing, "업종(제조업, 도소매업 등)")
	}
	if len(slots.DomainTags) == 0 {
		missing = append(missing, "주제(매출누락, 가공경비, 인건비 등)")
	}
	if len(slots.Codes) == 0 {
		missing = append(missing, "항목코드(예: 10501, 11209)")
	}

	if len(missing) > 0 {
		return "질문을 더 구체적으로 해주세요. 다음 정보를 포함해주시면 더 정확한 답변이 가능합니다:\n- " +
			strings.Join(missing, "\n- ")
	}

	return "질문이 명확하지 않습니다. 다음 중 하나를 선택해주세요:\n" +
		"1. 특정 세무조사 사례를 찾고 싶으신가요?\n" +
		"2. 세법 규정 설명을 듣고 싶으신가요?\n" +
		"3. 조사 기법/절차를 알고 싶으신가요?"
}
