package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"audit-rag/internal/domain"
)

// AnswerValidator is the last stage: it decides what the caller actually
// sees, turning empty or degraded pipeline outcomes into fixed messages.
type AnswerValidator struct {
	logger *slog.Logger
}

func NewAnswerValidator(logger *slog.Logger) *AnswerValidator {
	return &AnswerValidator{logger: logger}
}

// Run rewrites qc.Answer when needed and appends degradation notices.
func (v *AnswerValidator) Run(qc *domain.QueryContext) {
	switch {
	case qc.TimedOut:
		qc.Answer = "요청 처리 시간이 초과되었습니다. 잠시 후 다시 시도해주세요."
		v.logger.Warn("answer_timed_out", slog.String("query_id", qc.QueryID))

	case qc.Decision == domain.RouteClarify, qc.Decision == domain.RouteExplain:
		if qc.Answer == "" {
			qc.Answer = "죄송합니다. 답변을 생성할 수 없습니다. 다시 시도해주세요."
		}

	case len(qc.BlockRanking) == 0:
		qc.Answer = noResultsMessage(qc.Expansion)
		v.logger.Info("no_blocks_found", slog.String("query_id", qc.QueryID))

	case qc.Answer == "":
		qc.Answer = "죄송합니다. 답변을 생성할 수 없습니다. 다시 시도해주세요."
		v.logger.Warn("empty_answer", slog.String("query_id", qc.QueryID))

	case !strings.Contains(qc.Answer, "["):
		// Blocks exist but the model cited nothing; flag it rather than
		// silently presenting unsourced text.
		qc.Answer += "\n\n(주의: 이 답변에는 출처 인용이 포함되지 않았습니다. 검색 결과가 부족할 수 있습니다.)"
		v.logger.Warn("answer_missing_citations", slog.String("query_id", qc.QueryID))
	}

	for _, warning := range dedupe(qc.Warnings) {
		qc.Answer += "\n\n(알림: " + warning + ")"
	}

	v.logger.Info("answer_validated",
		slog.String("query_id", qc.QueryID),
		slog.Int("block_count", len(qc.BlockRanking)),
		slog.Bool("has_error", qc.Err != ""))
}

func noResultsMessage(exp *domain.Expansion) string {
	msg := "관련된 세무조사 사례를 찾을 수 없습니다."
	if exp != nil && len(exp.MustHave) > 0 {
		msg += fmt.Sprintf("\n\n검색한 키워드: '%s'", strings.Join(exp.MustHave, "', '"))
	}
	msg += "\n\n다음을 확인해주세요:\n- 업종, 코드, 키워드를 더 구체적으로 입력\n- 유사한 용어로 재검색"
	return msg
}
