package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"audit-rag/internal/domain"
	"audit-rag/internal/usecase/retrieval"
)

// AnswerQueryUsecase drives the full pipeline for one query. It is
// re-entrant: all per-query state lives in the QueryContext.
type AnswerQueryUsecase struct {
	normalizer *Normalizer
	parser     *QueryParser
	expander   *QueryExpander
	router     *Router
	clarifier  *Clarifier
	findings   *retrieval.FindingRetriever
	chunks     *retrieval.ChunkRetriever
	promoter   *retrieval.BlockPromoter
	packer     *ContextPacker
	composer   *AnswerComposer
	validator  *AnswerValidator
	deadline   time.Duration
	logger     *slog.Logger
}

func NewAnswerQueryUsecase(
	normalizer *Normalizer,
	parser *QueryParser,
	expander *QueryExpander,
	router *Router,
	clarifier *Clarifier,
	findings *retrieval.FindingRetriever,
	chunks *retrieval.ChunkRetriever,
	promoter *retrieval.BlockPromoter,
	packer *ContextPacker,
	composer *AnswerComposer,
	validator *AnswerValidator,
	deadline time.Duration,
	logger *slog.Logger,
) *AnswerQueryUsecase {
	return &AnswerQueryUsecase{
		normalizer: normalizer,
		parser:     parser,
		expander:   expander,
		router:     router,
		clarifier:  clarifier,
		findings:   findings,
		chunks:     chunks,
		promoter:   promoter,
		packer:     packer,
		composer:   composer,
		validator:  validator,
		deadline:   deadline,
		logger:     logger,
	}
}

// Execute runs the pipeline under the per-query deadline and returns the
// final context. The answer is always set; errors along the way degrade it
// rather than failing the call.
func (u *AnswerQueryUsecase) Execute(ctx context.Context, text string) *domain.QueryContext {
	ctx, cancel := context.WithTimeout(ctx, u.deadline)
	defer cancel()

	start := time.Now()
	qc := &domain.QueryContext{
		QueryID:  uuid.NewString(),
		RawQuery: text,
	}

	u.logger.Info("query_started",
		slog.String("query_id", qc.QueryID),
		slog.String("query", text))

	u.run(ctx, qc)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		qc.TimedOut = true
	}
	u.validator.Run(qc)

	u.logger.Info("query_completed",
		slog.String("query_id", qc.QueryID),
		slog.String("decision", string(qc.Decision)),
		slog.Bool("timed_out", qc.TimedOut),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return qc
}

func (u *AnswerQueryUsecase) run(ctx context.Context, qc *domain.QueryContext) {
	u.normalizer.Run(qc)
	u.parser.Run(ctx, qc)
	u.expander.Run(ctx, qc)
	u.router.Run(qc)

	switch qc.Decision {
	case domain.RouteClarify:
		u.clarifier.Run(qc)
		return
	case domain.RouteExplain:
		u.composer.Run(ctx, qc)
		return
	}

	if err := u.findings.Run(ctx, qc); err != nil {
		qc.Err = err.Error()
		return
	}
	if ctx.Err() != nil {
		return
	}
	if err := u.chunks.Run(ctx, qc); err != nil {
		qc.Err = err.Error()
		return
	}
	if ctx.Err() != nil {
		return
	}
	u.promoter.Run(qc)
	u.packer.Run(qc)
	u.composer.Run(ctx, qc)
}

// RunQuery is the single-callable form used by the CLI and HTTP handler.
func (u *AnswerQueryUsecase) RunQuery(ctx context.Context, text string) string {
	return u.Execute(ctx, text).Answer
}
