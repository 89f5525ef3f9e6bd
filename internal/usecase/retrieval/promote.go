package retrieval

import (
	"log/slog"
	"sort"
	"strings"

	"audit-rag/internal/domain"
)

// PromoteConfig bundles the block promotion knobs.
type PromoteConfig struct {
	TopKChunks      int
	IntersectionMin int
	FinalTopN       int
	MaxBlocksPerDoc int
	SectionWeights  map[string]float64
}

// BlockPromoter aggregates section chunks back into finding-level blocks,
// ranks them, and applies the positional keyword filter.
type BlockPromoter struct {
	cfg    PromoteConfig
	logger *slog.Logger
}

func NewBlockPromoter(cfg PromoteConfig, logger *slog.Logger) *BlockPromoter {
	return &BlockPromoter{cfg: cfg, logger: logger}
}

type candidateBlock struct {
	findingID string
	score     float64
	chunks    []domain.ChunkHit
	sections  []string
}

// Run fills qc.BlockRanking, qc.ExcludedBlocks and qc.KeywordBlockCounts.
func (p *BlockPromoter) Run(qc *domain.QueryContext) {
	if len(qc.SectionGroups) == 0 {
		qc.BlockRanking = nil
		return
	}

	bySection := groupByFinding(qc.SectionGroups, p.cfg.TopKChunks)
	candidates := p.rankCandidates(qc, bySection)

	var mustHave []string
	if qc.Expansion != nil {
		mustHave = qc.Expansion.MustHave
	}
	blockKeywords := qc.Expansion.BlockKeywords()
	docKeyword := qc.Expansion.DocKeyword()
	filtering := len(mustHave) >= 2

	counts := map[string]int{}
	for _, kw := range mustHave {
		counts[kw] = 0
	}

	docCounts := map[string]int{}
	var final, excluded []domain.RankedBlock

	for _, cand := range candidates {
		if len(cand.chunks) == 0 {
			continue
		}
		block := buildBlock(cand)

		text := blockText(cand.chunks)
		matched := map[string]bool{}
		for _, kw := range mustHave {
			if strings.Contains(text, kw) {
				matched[kw] = true
				counts[kw]++
			}
		}

		if !filtering {
			if docCounts[block.DocID] >= p.cfg.MaxBlocksPerDoc {
				continue
			}
			docCounts[block.DocID]++
			final = append(final, block)
			if len(final) >= p.cfg.FinalTopN {
				break
			}
			continue
		}

		fullMatch := len(blockKeywords) == 0
		for _, kw := range blockKeywords {
			if matched[kw] {
				fullMatch = true
				break
			}
		}

		switch {
		case fullMatch:
			if docCounts[block.DocID] >= p.cfg.MaxBlocksPerDoc {
				excluded = append(excluded, block)
				continue
			}
			docCounts[block.DocID]++
			final = append(final, block)
		case docKeyword != "" && matched[docKeyword]:
			// Document context only: kept as supplementary material.
			excluded = append(excluded, block)
		default:
			// No keyword at all: not worth surfacing.
		}
		if len(final) >= p.cfg.FinalTopN {
			break
		}
	}

	qc.BlockRanking = final
	qc.ExcludedBlocks = excluded
	qc.KeywordBlockCounts = counts

	p.logger.Info("blocks_promoted",
		slog.String("query_id", qc.QueryID),
		slog.Int("block_count", len(final)),
		slog.Int("excluded_count", len(excluded)),
		slog.Bool("keyword_filter", filtering))
}

// groupByFinding partitions each section's hits by finding and keeps the top
// chunks per (finding, section).
func groupByFinding(sectionGroups map[string][]domain.ChunkHit, topK int) map[string]map[string][]domain.ChunkHit {
	bySection := make(map[string]map[string][]domain.ChunkHit, len(sectionGroups))
	for section, hits := range sectionGroups {
		groups := map[string][]domain.ChunkHit{}
		for _, h := range hits {
			groups[h.FindingID] = append(groups[h.FindingID], h)
		}
		for fid, chunks := range groups {
			sort.SliceStable(chunks, func(i, j int) bool {
				return chunks[i].ScoreCombined > chunks[j].ScoreCombined
			})
			if len(chunks) > topK {
				chunks = chunks[:topK]
			}
			groups[fid] = chunks
		}
		bySection[section] = groups
	}
	return bySection
}

// rankCandidates builds the candidate list: the section intersection when it
// is large enough, otherwise the union with a weighted per-section blend.
func (p *BlockPromoter) rankCandidates(qc *domain.QueryContext, bySection map[string]map[string][]domain.ChunkHit) []candidateBlock {
	sections := make([]string, 0, len(bySection))
	for section := range bySection {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	intersection := findingIntersection(bySection, sections)

	var candidates []candidateBlock
	if len(intersection) >= p.cfg.IntersectionMin {
		p.logger.Info("block_intersection_used",
			slog.String("query_id", qc.QueryID),
			slog.Int("intersection_size", len(intersection)))
		for _, fid := range intersection {
			var chunks []domain.ChunkHit
			var present []string
			for _, section := range sections {
				if sc := bySection[section][fid]; len(sc) > 0 {
					chunks = append(chunks, sc...)
					present = append(present, section)
				}
			}
			candidates = append(candidates, candidateBlock{
				findingID: fid,
				score:     meanTopScore(chunks, p.cfg.TopKChunks),
				chunks:    chunks,
				sections:  present,
			})
		}
	} else {
		p.logger.Info("block_blend_used",
			slog.String("query_id", qc.QueryID),
			slog.Int("intersection_size", len(intersection)))
		for _, fid := range findingUnion(bySection, sections) {
			var chunks []domain.ChunkHit
			var present []string
			score := 0.0
			for _, section := range sections {
				sc := bySection[section][fid]
				score += p.sectionWeight(section) * meanTopScore(sc, p.cfg.TopKChunks)
				if len(sc) > 0 {
					chunks = append(chunks, sc...)
					present = append(present, section)
				}
			}
			candidates = append(candidates, candidateBlock{
				findingID: fid,
				score:     score,
				chunks:    chunks,
				sections:  present,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].findingID < candidates[j].findingID
	})
	return candidates
}

func (p *BlockPromoter) sectionWeight(section string) float64 {
	if w, ok := p.cfg.SectionWeights[section]; ok {
		return w
	}
	return 0.5
}

func findingIntersection(bySection map[string]map[string][]domain.ChunkHit, sections []string) []string {
	if len(sections) == 0 {
		return nil
	}
	var out []string
	for fid := range bySection[sections[0]] {
		inAll := true
		for _, section := range sections[1:] {
			if _, ok := bySection[section][fid]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, fid)
		}
	}
	sort.Strings(out)
	return out
}

func findingUnion(bySection map[string]map[string][]domain.ChunkHit, sections []string) []string {
	seen := map[string]struct{}{}
	for _, section := range sections {
		for fid := range bySection[section] {
			seen[fid] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for fid := range seen {
		out = append(out, fid)
	}
	sort.Strings(out)
	return out
}

func meanTopScore(chunks []domain.ChunkHit, topK int) float64 {
	if len(chunks) == 0 {
		return 0
	}
	sorted := append([]domain.ChunkHit(nil), chunks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ScoreCombined > sorted[j].ScoreCombined
	})
	if len(sorted) > topK {
		sorted = sorted[:topK]
	}
	sum := 0.0
	for _, c := range sorted {
		sum += c.ScoreCombined
	}
	return sum / float64(len(sorted))
}

func buildBlock(cand candidateBlock) domain.RankedBlock {
	chunks := append([]domain.ChunkHit(nil), cand.chunks...)
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].ScoreCombined > chunks[j].ScoreCombined
	})
	return domain.RankedBlock{
		FindingID:      cand.findingID,
		DocID:          chunks[0].DocID,
		Item:           chunks[0].Item,
		Code:           chunks[0].Code,
		Score:          cand.score,
		Chunks:         chunks,
		SourceSections: cand.sections,
	}
}

func blockText(chunks []domain.ChunkHit) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
		b.WriteByte(' ')
		b.WriteString(c.TextNorm)
		b.WriteByte(' ')
	}
	return b.String()
}
