package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"audit-rag/internal/domain"
	"audit-rag/internal/usecase"
)

func route(qc *domain.QueryContext) domain.Route {
	usecase.NewRouter(0.4, testLogger()).Run(qc)
	return qc.Decision
}

func TestRouter_ExplainIntentShortCircuits(t *testing.T) {
	qc := &domain.QueryContext{
		QueryID: "q1",
		Intent:  domain.IntentExplain,
		Slots:   domain.Slots{Confidence: 0.0},
	}
	assert.Equal(t, domain.RouteExplain, route(qc))
}

func TestRouter_LowConfidenceClarifies(t *testing.T) {
	qc := &domain.QueryContext{
		QueryID:   "q1",
		Intent:    domain.IntentCaseLookup,
		Slots:     domain.Slots{DomainTags: []string{"매출누락"}, Confidence: 0.3},
		Expansion: &domain.Expansion{MustHave: []string{"매출누락"}},
	}
	assert.Equal(t, domain.RouteClarify, route(qc))
}

func TestRouter_NoMustHaveClarifies(t *testing.T) {
	qc := &domain.QueryContext{
		QueryID:   "q1",
		Intent:    domain.IntentCaseLookup,
		Slots:     domain.Slots{DomainTags: []string{"매출누락"}, Confidence: 0.9},
		Expansion: &domain.Expansion{},
	}
	assert.Equal(t, domain.RouteClarify, route(qc))
}

func TestRouter_NoMetaSlotClarifies(t *testing.T) {
	// Keywords alone are not enough when no industry, topic or code was named.
	qc := &domain.QueryContext{
		QueryID:   "q1",
		Intent:    domain.IntentCaseLookup,
		Slots:     domain.Slots{Entities: []string{"주식회사 한길"}, Confidence: 0.9},
		Expansion: &domain.Expansion{MustHave: []string{"합병법인", "미환류소득"}},
	}
	assert.Equal(t, domain.RouteClarify, route(qc))
}

func TestRouter_WellSpecifiedQuerySearches(t *testing.T) {
	qc := &domain.QueryContext{
		QueryID:   "q1",
		Intent:    domain.IntentCaseLookup,
		Slots:     domain.Slots{DomainTags: []string{"매출누락"}, Confidence: 0.7},
		Expansion: &domain.Expansion{MustHave: []string{"제조업", "매출누락"}},
	}
	assert.Equal(t, domain.RouteSearch, route(qc))
}
