package rag_http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"audit-rag/internal/usecase"
)

// Handler exposes the query pipeline over HTTP.
type Handler struct {
	answerQuery *usecase.AnswerQueryUsecase
	logger      *slog.Logger
}

func NewHandler(answerQuery *usecase.AnswerQueryUsecase, logger *slog.Logger) *Handler {
	return &Handler{answerQuery: answerQuery, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/query", h.Query)
	e.GET("/healthz", h.Health)
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer        string   `json:"answer"`
	Intent        string   `json:"intent"`
	Decision      string   `json:"decision"`
	Clarification string   `json:"clarification,omitempty"`
	BlockCount    int      `json:"block_count"`
	Citations     []string `json:"citations"`
	Warnings      []string `json:"warnings,omitempty"`
}

func (h *Handler) Query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	qc := h.answerQuery.Execute(c.Request().Context(), req.Query)

	citations := make([]string, 0, len(qc.Context.Citations))
	seen := map[string]struct{}{}
	for _, cite := range qc.Context.Citations {
		tag := cite.Tag()
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		citations = append(citations, tag)
	}

	return c.JSON(http.StatusOK, queryResponse{
		Answer:        qc.Answer,
		Intent:        string(qc.Intent),
		Decision:      string(qc.Decision),
		Clarification: qc.Clarification,
		BlockCount:    len(qc.BlockRanking),
		Citations:     citations,
		Warnings:      qc.Warnings,
	})
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
