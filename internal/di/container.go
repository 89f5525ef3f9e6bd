package di

import (
	"fmt"
	"log/slog"
	"time"

	"audit-rag/internal/adapter/lexical"
	"audit-rag/internal/adapter/rag_augur"
	"audit-rag/internal/adapter/rag_http"
	"audit-rag/internal/adapter/vector"
	"audit-rag/internal/domain"
	"audit-rag/internal/infra/config"
	"audit-rag/internal/infra/httpclient"
	"audit-rag/internal/usecase"
	"audit-rag/internal/usecase/retrieval"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	LexicalClient *lexical.Client
	VectorClient  *vector.Client
	Generator     domain.LLMClient
	Encoder       domain.VectorEncoder

	AnswerQuery *usecase.AnswerQueryUsecase
	Handler     *rag_http.Handler
}

// NewApplicationComponents wires all dependencies from config.
func NewApplicationComponents(cfg *config.Config, log *slog.Logger) (*ApplicationComponents, error) {
	llmHTTP := httpclient.NewPooledClient(time.Duration(cfg.LLMTimeoutSeconds) * time.Second)
	lexicalHTTP := httpclient.NewPooledClient(time.Duration(cfg.LexicalTimeoutSeconds) * time.Second)

	lexicalClient, err := lexical.NewClient(lexical.Config{
		URL:        cfg.LexicalURL,
		User:       cfg.LexicalUser,
		Password:   cfg.LexicalPass,
		MaxRetries: cfg.LexicalMaxRetries,
		Transport:  lexicalHTTP.Transport,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("wire lexical client: %w", err)
	}

	vectorClient, err := vector.NewClient(vector.Config{
		Host:               cfg.VectorHost,
		Port:               cfg.VectorPort,
		Timeout:            time.Duration(cfg.VectorTimeoutSeconds) * time.Second,
		HnswEf:             cfg.VectorEfSearch,
		FindingsCollection: cfg.FindingsCollection,
		ChunksCollection:   cfg.ChunksCollection,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("wire vector client: %w", err)
	}

	generator := rag_augur.NewOllamaGenerator(cfg.LLMBaseURL, cfg.LLMModel, llmHTTP, cfg.LLMRateLimitRPS, log)
	embedder := rag_augur.NewOllamaEmbedder(cfg.LLMBaseURL, cfg.EmbedModel, llmHTTP, log)
	encoder := rag_augur.NewCachedEncoder(embedder, cfg.EmbedCacheSize)

	findings := retrieval.NewFindingRetriever(lexicalClient, vectorClient, encoder, retrieval.FindingConfig{
		TopKLex:             cfg.FindingsTopKLex,
		TopKVec:             cfg.FindingsTopKVec,
		RRFK:                cfg.FindingsRRFK,
		FinalTopN:           cfg.FindingsFinalTopN,
		ScoreThreshold:      cfg.VectorScoreThreshold,
		ScoreThresholdMulti: cfg.VectorScoreThresholdMulti,
	}, cfg.KeywordFreqCacheSize, log)

	chunks := retrieval.NewChunkRetriever(lexicalClient, vectorClient, encoder, retrieval.ChunkConfig{
		TopKLex:        cfg.ChunksTopKLex,
		TopKVec:        cfg.ChunksTopKVec,
		RRFK:           cfg.FindingsRRFK,
		FinalTopN:      cfg.ChunksFinalTopN,
		ScoreThreshold: cfg.VectorScoreThreshold,
	}, log)

	promoter := retrieval.NewBlockPromoter(retrieval.PromoteConfig{
		TopKChunks:      cfg.BlockTopKChunks,
		IntersectionMin: cfg.BlockIntersectionMin,
		FinalTopN:       cfg.BlockFinalTopN,
		MaxBlocksPerDoc: cfg.MaxBlocksPerDoc,
		SectionWeights: map[string]float64{
			domain.SectionFindings:  cfg.SectionWeightFindings,
			domain.SectionTechnique: cfg.SectionWeightTechnique,
		},
	}, log)

	answerQuery := usecase.NewAnswerQueryUsecase(
		usecase.NewNormalizer(log),
		usecase.NewQueryParser(generator, log),
		usecase.NewQueryExpander(generator, log),
		usecase.NewRouter(cfg.ConfidenceThreshold, log),
		usecase.NewClarifier(log),
		findings,
		chunks,
		promoter,
		usecase.NewContextPacker(cfg.ContextTokenBudget, cfg.ContextMergeAdjacent, usecase.WhitespaceEstimator{}, log),
		usecase.NewAnswerComposer(generator, log),
		usecase.NewAnswerValidator(log),
		time.Duration(cfg.QueryDeadlineSeconds)*time.Second,
		log,
	)

	return &ApplicationComponents{
		LexicalClient: lexicalClient,
		VectorClient:  vectorClient,
		Generator:     generator,
		Encoder:       encoder,
		AnswerQuery:   answerQuery,
		Handler:       rag_http.NewHandler(answerQuery, log),
	}, nil
}

// Close releases the long-lived client connections.
func (c *ApplicationComponents) Close() error {
	return c.VectorClient.Close()
}
