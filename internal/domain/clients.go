package domain

import "context"

// WeightedTerm is one search keyword with its boost.
type WeightedTerm struct {
	Term  string
	Boost float64
}

// DocScore is a document identifier with the best lexical score any of its
// findings reached for a keyword.
type DocScore struct {
	DocID string
	Score float64
}

// FindingQuery describes a stage-1 lexical search. When MustTerms is
// non-empty the backend scores by the weighted keyword clauses; otherwise it
// falls back to a plain multi-field match on FreeText.
type FindingQuery struct {
	FreeText    string
	MustTerms   []WeightedTerm
	ShouldTerms []WeightedTerm
	Codes       []string
	IndustrySub []string
	DomainTags  []string
	DocIDs      []string
	Size        int
}

// ChunkQuery describes a stage-2 lexical search within one section.
type ChunkQuery struct {
	Text       string
	Section    string
	FindingIDs []string
	DocIDs     []string
	Codes      []string
	Size       int
}

// FindingSearcher is the lexical backend's finding-level contract.
type FindingSearcher interface {
	SearchFindings(ctx context.Context, q FindingQuery) ([]FindingHit, error)
	// DocIDsByKeyword returns the documents whose findings match the
	// keyword, best score first.
	DocIDsByKeyword(ctx context.Context, keyword string, topN int) ([]DocScore, error)
	// KeywordFrequencies counts keyword matches over the given documents in
	// a single grouped aggregation request.
	KeywordFrequencies(ctx context.Context, docIDs, keywords []string) (map[string]int, error)
}

// ChunkSearcher is the lexical backend's chunk-level contract.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, q ChunkQuery) ([]ChunkHit, error)
	// ChunkText fetches text fields by chunk ID, for vector payloads that
	// store only metadata.
	ChunkText(ctx context.Context, chunkID string) (text, textNorm string, err error)
}

// VectorFilter restricts a dense search by payload fields. Empty slices mean
// no restriction.
type VectorFilter struct {
	Section    string
	FindingIDs []string
	DocIDs     []string
	Codes      []string
}

// VectorSearcher is the dense backend's contract over both collections.
type VectorSearcher interface {
	SearchFindingVectors(ctx context.Context, vector []float32, filter VectorFilter, limit int, scoreThreshold float64) ([]FindingHit, error)
	SearchChunkVectors(ctx context.Context, vector []float32, filter VectorFilter, limit int, scoreThreshold float64) ([]ChunkHit, error)
}

// VectorEncoder turns texts into dense vectors.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMClient generates a completion for a prompt. jsonFormat requests strict
// JSON output from backends that support constrained decoding.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, jsonFormat bool) (string, error)
}
