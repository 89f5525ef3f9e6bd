package usecase

import (
	"log/slog"

	"audit-rag/internal/domain"
)

// Router picks the pipeline branch for a parsed and expanded query.
type Router struct {
	confidenceThreshold float64
	logger              *slog.Logger
}

func NewRouter(confidenceThreshold float64, logger *slog.Logger) *Router {
	return &Router{confidenceThreshold: confidenceThreshold, logger: logger}
}

// Run writes qc.Decision. Clarify wins whenever the query is underspecified:
// low confidence, no must-have keyword, or no meta slot at all.
func (r *Router) Run(qc *domain.QueryContext) {
	qc.Decision = r.decide(qc)

	r.logger.Info("query_routed",
		slog.String("query_id", qc.QueryID),
		slog.String("decision", string(qc.Decision)),
		slog.Float64("confidence", qc.Slots.Confidence))
}

func (r *Router) decide(qc *domain.QueryContext) domain.Route {
	if qc.Intent == domain.IntentExplain {
		// Definitional questions never need retrieval slots.
		return domain.RouteExplain
	}

	switch {
	case qc.Slots.Confidence < r.confidenceThreshold:
		return domain.RouteClarify
	case qc.Expansion == nil || len(qc.Expansion.MustHave) == 0:
		return domain.RouteClarify
	case !qc.Slots.HasAnyMetaSlot():
		return domain.RouteClarify
	}

	return domain.RouteSearch
}
