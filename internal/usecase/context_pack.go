package usecase

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"audit-rag/internal/domain"
)

// TokenEstimator approximates the token cost of a text span for context
// budgeting. The default is a cheap whitespace heuristic; a real tokenizer
// can be plugged in without touching the packer.
type TokenEstimator interface {
	Estimate(text string) int
}

// WhitespaceEstimator counts whitespace-separated fields scaled by 1.3, a
// rough correction for subword splitting on Korean text.
type WhitespaceEstimator struct{}

func (WhitespaceEstimator) Estimate(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// ContextPacker renders the ranked blocks into a bounded prompt context with
// citation tags.
type ContextPacker struct {
	budget        int
	mergeAdjacent bool
	estimator     TokenEstimator
	logger        *slog.Logger
}

func NewContextPacker(budget int, mergeAdjacent bool, estimator TokenEstimator, logger *slog.Logger) *ContextPacker {
	if estimator == nil {
		estimator = WhitespaceEstimator{}
	}
	return &ContextPacker{budget: budget, mergeAdjacent: mergeAdjacent, estimator: estimator, logger: logger}
}

// Run fills qc.Context.
func (p *ContextPacker) Run(qc *domain.QueryContext) {
	if len(qc.BlockRanking) == 0 {
		qc.Context = domain.PackedContext{}
		return
	}

	var parts []string
	var citations []domain.Citation
	tokens := 0

	emit := func(text string) bool {
		cost := p.estimator.Estimate(text)
		if tokens+cost > p.budget {
			return false
		}
		parts = append(parts, text)
		tokens += cost
		return true
	}

	for i, block := range qc.BlockRanking {
		header := fmt.Sprintf("\n## 적출 블록 %d\n- 문서: %s\n- 적출ID: %s\n- 항목: %s\n- 코드: %s\n- 섹션: %s\n\n",
			i+1, block.DocID, block.FindingID, block.Item, block.Code,
			strings.Join(block.SourceSections, ", "))
		if !emit(header) {
			break
		}

		budgetHit := false
		for _, section := range orderedSections(block.Chunks) {
			chunks := sectionChunks(block.Chunks, section)
			if p.mergeAdjacent {
				chunks = mergeAdjacentChunks(chunks)
			}

			if !emit("### " + section + "\n") {
				budgetHit = true
				break
			}

			for _, chunk := range chunks {
				citation := chunkCitation(chunk)
				body := chunk.Text + "\n" + citation.Tag() + "\n\n"
				if !emit(body) {
					budgetHit = true
					break
				}
				citations = append(citations, citation)
			}
			if budgetHit {
				break
			}
		}
		if budgetHit {
			break
		}
	}

	qc.Context = domain.PackedContext{
		Text:          strings.Join(parts, ""),
		Citations:     citations,
		TokenEstimate: tokens,
	}

	p.logger.Info("context_packed",
		slog.String("query_id", qc.QueryID),
		slog.Int("token_estimate", tokens),
		slog.Int("citation_count", len(citations)))
}

// orderedSections lists the sections present in the chunks in the fixed
// presentation order.
func orderedSections(chunks []domain.ChunkHit) []string {
	seen := map[string]struct{}{}
	var sections []string
	for _, c := range chunks {
		if _, ok := seen[c.Section]; !ok {
			seen[c.Section] = struct{}{}
			sections = append(sections, c.Section)
		}
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return domain.SectionPackRank(sections[i]) < domain.SectionPackRank(sections[j])
	})
	return sections
}

func sectionChunks(chunks []domain.ChunkHit, section string) []domain.ChunkHit {
	var out []domain.ChunkHit
	for _, c := range chunks {
		if c.Section == section {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SectionOrder != out[j].SectionOrder {
			return out[i].SectionOrder < out[j].SectionOrder
		}
		return out[i].ChunkOrder < out[j].ChunkOrder
	})
	return out
}

// mergeAdjacentChunks concatenates chunks that are consecutive in the source
// document, extending the citation span.
func mergeAdjacentChunks(chunks []domain.ChunkHit) []domain.ChunkHit {
	if len(chunks) <= 1 {
		return chunks
	}
	merged := []domain.ChunkHit{chunks[0]}
	for _, next := range chunks[1:] {
		last := &merged[len(merged)-1]
		if last.FindingID == next.FindingID &&
			last.Section == next.Section &&
			last.SectionOrder == next.SectionOrder &&
			last.ChunkOrder+1 == next.ChunkOrder {
			last.Text += "\n" + next.Text
			last.EndLine = next.EndLine
			last.ChunkOrder = next.ChunkOrder
		} else {
			merged = append(merged, next)
		}
	}
	return merged
}

func chunkCitation(chunk domain.ChunkHit) domain.Citation {
	return domain.Citation{
		DocID:     chunk.DocID,
		FindingID: chunk.FindingID,
		ChunkID:   chunk.ChunkID,
		Section:   chunk.Section,
		Page:      chunk.Page,
		StartLine: chunk.StartLine,
		EndLine:   chunk.EndLine,
	}
}
