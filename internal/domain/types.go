package domain

import "fmt"

// Intent is the coarse purpose of a query.
type Intent string

const (
	IntentCaseLookup Intent = "case_lookup"
	IntentExplain    Intent = "explain"
)

// Route is the router's decision for a parsed query.
type Route string

const (
	RouteClarify Route = "clarify"
	RouteSearch  Route = "search"
	RouteExplain Route = "explain"
)

// Finding is one audit item of a case document. Read-only to the pipeline;
// the ingestion side owns these records.
type Finding struct {
	FindingID   string
	DocID       string
	Item        string
	ItemDetail  string
	Code        string
	IndustrySub []string
	DomainTags  []string
}

// FindingHit is a stage-1 search result.
type FindingHit struct {
	Finding
	ScoreBM25     float64
	ScoreVector   float64
	ScoreCombined float64
}

// ID keys the hit in rank fusion.
func (h FindingHit) ID() string { return h.FindingID }

// Score is the better of the two backend scores.
func (h FindingHit) Score() float64 {
	if h.ScoreBM25 > h.ScoreVector {
		return h.ScoreBM25
	}
	return h.ScoreVector
}

// Chunk is a passage within a finding, tagged by section and carrying
// page/line citation fields. Zero page/line values mean the source had none.
type Chunk struct {
	ChunkID      string
	FindingID    string
	DocID        string
	Section      string
	SectionOrder int
	ChunkOrder   int
	Code         string
	Item         string
	Page         int
	StartLine    int
	EndLine      int
	Text         string
	TextNorm     string
}

// ChunkHit is a stage-2 search result.
type ChunkHit struct {
	Chunk
	ScoreBM25     float64
	ScoreVector   float64
	ScoreCombined float64
}

// ID keys the hit in rank fusion.
func (h ChunkHit) ID() string { return h.ChunkID }

// Score is the better of the two backend scores.
func (h ChunkHit) Score() float64 {
	if h.ScoreBM25 > h.ScoreVector {
		return h.ScoreBM25
	}
	return h.ScoreVector
}

// RankedBlock is a finding together with its chosen top chunks, treated as
// one presentation unit.
type RankedBlock struct {
	FindingID      string
	DocID          string
	Item           string
	Code           string
	Score          float64
	Chunks         []ChunkHit
	SourceSections []string
}

// Citation points at the source span of one packed chunk.
type Citation struct {
	DocID     string
	FindingID string
	ChunkID   string
	Section   string
	Page      int
	StartLine int
	EndLine   int
}

// Tag renders the inline citation marker used in the packed context and the
// answer body.
func (c Citation) Tag() string {
	return fmt.Sprintf("[%s:%d:%d-%d]", c.DocID, c.Page, c.StartLine, c.EndLine)
}

// Slots holds the structured fields the parser extracts from a query.
type Slots struct {
	IndustrySub  []string
	DomainTags   []string
	Codes        []string
	Entities     []string
	SectionHints map[string][]string
	FreeText     string
	Confidence   float64
	// FromLLM marks slots extracted by the LLM rather than the rule
	// fallback; it feeds the confidence formula and caps.
	FromLLM bool
}

// HasAnyMetaSlot reports whether any of the retrieval meta slots is filled.
func (s Slots) HasAnyMetaSlot() bool {
	return len(s.IndustrySub) > 0 || len(s.DomainTags) > 0 || len(s.Codes) > 0
}

// Expansion is the keyword strategy for a case_lookup query. MustHave order
// matters: index 0 is the document-level context keyword, the rest are
// block-level filters.
type Expansion struct {
	MustHave     []string
	ShouldHave   []string
	RelatedTerms []string
	BoostWeights map[string]float64
}

// DocKeyword returns the document-level keyword, if any.
func (e *Expansion) DocKeyword() string {
	if e == nil || len(e.MustHave) == 0 {
		return ""
	}
	return e.MustHave[0]
}

// BlockKeywords returns the block-level filter keywords. With a single
// must-have keyword there is no document/block split and filtering stays off.
func (e *Expansion) BlockKeywords() []string {
	if e == nil || len(e.MustHave) < 2 {
		return nil
	}
	return e.MustHave[1:]
}

// Boost returns the clamped boost weight for a keyword, or def when unset.
func (e *Expansion) Boost(keyword string, def float64) float64 {
	if e == nil {
		return def
	}
	if w, ok := e.BoostWeights[keyword]; ok {
		return w
	}
	return def
}

// PackedContext is the prompt context handed to the composer.
type PackedContext struct {
	Text          string
	Citations     []Citation
	TokenEstimate int
}

// QueryContext is the single mutable value threaded through the pipeline.
// Each stage reads the fields of earlier stages and writes only its own.
type QueryContext struct {
	QueryID         string
	RawQuery        string
	NormalizedQuery string

	Intent        Intent
	Slots         Slots
	Expansion     *Expansion
	Decision      Route
	Clarification string

	TargetDocIDs       []string
	KeywordFreq        map[string]int
	KeywordBlockCounts map[string]int

	FindingCandidates []FindingHit
	SectionGroups     map[string][]ChunkHit
	BlockRanking      []RankedBlock
	ExcludedBlocks    []RankedBlock

	Context PackedContext
	Answer  string

	// Err records a recovered pipeline failure (LLM down, deadline, ...);
	// the validator decides what the caller sees. Warnings collect non-fatal
	// degradations such as a vector store outage.
	Err      string
	TimedOut bool
	Warnings []string
}

// Query returns the text the retrieval stages should work with.
func (qc *QueryContext) Query() string {
	if qc.NormalizedQuery != "" {
		return qc.NormalizedQuery
	}
	return qc.RawQuery
}
