package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env      string
	HTTPPort string
	LogOTel  bool

	LLMBaseURL        string
	LLMModel          string
	LLMTimeoutSeconds int
	LLMRateLimitRPS   float64

	EmbedModel     string
	EmbedCacheSize int

	LexicalURL            string
	LexicalUser           string
	LexicalPass           string
	LexicalTimeoutSeconds int
	LexicalMaxRetries     int

	VectorHost           string
	VectorPort           int
	VectorTimeoutSeconds int
	VectorEfSearch       int

	FindingsCollection string
	ChunksCollection   string

	FindingsTopKLex   int
	FindingsTopKVec   int
	FindingsRRFK      float64
	FindingsFinalTopN int

	ChunksTopKLex   int
	ChunksTopKVec   int
	ChunksFinalTopN int

	VectorScoreThreshold      float64
	VectorScoreThresholdMulti float64

	BlockTopKChunks      int
	BlockIntersectionMin int
	BlockFinalTopN       int
	MaxBlocksPerDoc      int

	SectionWeightFindings  float64
	SectionWeightTechnique float64

	ConfidenceThreshold float64

	ContextTokenBudget   int
	ContextMergeAdjacent bool

	KeywordFreqCacheSize int
	QueryDeadlineSeconds int
}

func Load() *Config {
	return &Config{
		Env:      getEnv("ENV", "development"),
		HTTPPort: getEnv("HTTP_PORT", "9010"),
		LogOTel:  getEnvBool("LOG_OTEL", false),

		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:          getEnv("LLM_MODEL", "gemma3:12b"),
		LLMTimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 60),
		LLMRateLimitRPS:   getEnvFloat("LLM_RATE_LIMIT_RPS", 2),

		EmbedModel:     getEnv("EMBED_MODEL", "bge-m3"),
		EmbedCacheSize: getEnvInt("EMBED_CACHE_SIZE", 100),

		LexicalURL:            getEnv("LEXICAL_URL", "http://localhost:9200"),
		LexicalUser:           getEnv("LEXICAL_USER", "elastic"),
		LexicalPass:           getSecret("LEXICAL_PASS", "LEXICAL_PASS_FILE", ""),
		LexicalTimeoutSeconds: getEnvInt("LEXICAL_TIMEOUT_SECONDS", 30),
		LexicalMaxRetries:     getEnvInt("LEXICAL_MAX_RETRIES", 3),

		VectorHost:           getEnv("VECTOR_HOST", "localhost"),
		VectorPort:           getEnvInt("VECTOR_PORT", 6334),
		VectorTimeoutSeconds: getEnvInt("VECTOR_TIMEOUT_SECONDS", 10),
		VectorEfSearch:       getEnvInt("VECTOR_EF_SEARCH", 96),

		FindingsCollection: getEnv("VECTOR_FINDINGS_COLLECTION", "findings_vectors"),
		ChunksCollection:   getEnv("VECTOR_CHUNKS_COLLECTION", "chunks_vectors"),

		FindingsTopKLex:   getEnvInt("FINDINGS_TOP_K_LEX", 150),
		FindingsTopKVec:   getEnvInt("FINDINGS_TOP_K_VEC", 150),
		FindingsRRFK:      getEnvFloat("FINDINGS_RRF_K", 60),
		FindingsFinalTopN: getEnvInt("FINDINGS_FINAL_TOP_N", 30),

		ChunksTopKLex:   getEnvInt("CHUNKS_TOP_K_LEX", 300),
		ChunksTopKVec:   getEnvInt("CHUNKS_TOP_K_VEC", 300),
		ChunksFinalTopN: getEnvInt("CHUNKS_FINAL_TOP_N", 300),

		VectorScoreThreshold:      getEnvFloat("VECTOR_SCORE_THRESHOLD", 0.35),
		VectorScoreThresholdMulti: getEnvFloat("VECTOR_SCORE_THRESHOLD_MULTI", 0.65),

		BlockTopKChunks:      getEnvInt("BLOCK_TOP_K_CHUNKS", 3),
		BlockIntersectionMin: getEnvInt("BLOCK_INTERSECTION_MIN", 2),
		BlockFinalTopN:       getEnvInt("BLOCK_FINAL_TOP_N", 3),
		MaxBlocksPerDoc:      getEnvInt("MAX_BLOCKS_PER_DOC", 2),

		SectionWeightFindings:  getEnvFloat("SECTION_WEIGHT_FINDINGS", 0.5),
		SectionWeightTechnique: getEnvFloat("SECTION_WEIGHT_TECHNIQUE", 0.5),

		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.4),

		ContextTokenBudget:   getEnvInt("CONTEXT_TOKEN_BUDGET", 4000),
		ContextMergeAdjacent: getEnvBool("CONTEXT_MERGE_ADJACENT", true),

		KeywordFreqCacheSize: getEnvInt("KEYWORD_FREQ_CACHE_SIZE", 1000),
		QueryDeadlineSeconds: getEnvInt("QUERY_DEADLINE_SECONDS", 90),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
