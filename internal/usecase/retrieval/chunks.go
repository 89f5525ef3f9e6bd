package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"audit-rag/internal/domain"
)

const minPayloadTextLen = 10

// ChunkConfig bundles the stage-2 knobs.
type ChunkConfig struct {
	TopKLex        int
	TopKVec        int
	RRFK           float64
	FinalTopN      int
	ScoreThreshold float64
}

// ChunkRetriever runs the stage-2 hybrid search once per required section,
// restricted to the stage-1 finding candidates.
type ChunkRetriever struct {
	lexical domain.ChunkSearcher
	vector  domain.VectorSearcher
	encoder domain.VectorEncoder
	cfg     ChunkConfig
	logger  *slog.Logger
}

func NewChunkRetriever(
	lexical domain.ChunkSearcher,
	vector domain.VectorSearcher,
	encoder domain.VectorEncoder,
	cfg ChunkConfig,
	logger *slog.Logger,
) *ChunkRetriever {
	return &ChunkRetriever{lexical: lexical, vector: vector, encoder: encoder, cfg: cfg, logger: logger}
}

// Run fills qc.SectionGroups. Sections are searched concurrently; a failed
// section yields an empty group rather than failing the query.
func (r *ChunkRetriever) Run(ctx context.Context, qc *domain.QueryContext) error {
	findingIDs := make([]string, 0, len(qc.FindingCandidates))
	for _, f := range qc.FindingCandidates {
		findingIDs = append(findingIDs, f.FindingID)
	}
	if len(findingIDs) == 0 {
		qc.SectionGroups = map[string][]domain.ChunkHit{}
		return nil
	}

	// The query vector is shared across sections; encode once.
	var queryVector []float32
	if vectors, err := r.encoder.Encode(ctx, []string{qc.Query()}); err != nil {
		r.logger.Warn("chunk_vector_encode_failed",
			slog.String("query_id", qc.QueryID),
			slog.String("error", err.Error()))
	} else if len(vectors) > 0 {
		queryVector = vectors[0]
	}

	sections := domain.RequiredSections(qc.Slots.SectionHints)
	groups := make(map[string][]domain.ChunkHit, len(sections))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, section := range sections {
		section := section
		g.Go(func() error {
			hits := r.searchSection(gctx, qc, section, findingIDs, queryVector)
			mu.Lock()
			groups[section] = hits
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	qc.SectionGroups = groups
	for section, hits := range groups {
		r.logger.Info("section_chunks_retrieved",
			slog.String("query_id", qc.QueryID),
			slog.String("section", section),
			slog.Int("chunk_count", len(hits)))
	}
	return nil
}

func (r *ChunkRetriever) searchSection(ctx context.Context, qc *domain.QueryContext, section string, findingIDs []string, queryVector []float32) []domain.ChunkHit {
	text := sectionQueryText(qc, section)

	// Both backends are queried in parallel; fusion waits for both.
	var lexHits, vecHits []domain.ChunkHit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexHits = recoverRanking(gctx, r.logger, "chunk_lexical_search_failed", func(ctx context.Context) ([]domain.ChunkHit, error) {
			return r.lexical.SearchChunks(ctx, domain.ChunkQuery{
				Text:       text,
				Section:    section,
				FindingIDs: findingIDs,
				DocIDs:     qc.TargetDocIDs,
				Codes:      qc.Slots.Codes,
				Size:       r.cfg.TopKLex,
			})
		})
		return nil
	})
	if queryVector != nil {
		filter := domain.VectorFilter{
			Section:    section,
			FindingIDs: findingIDs,
			DocIDs:     qc.TargetDocIDs,
			Codes:      qc.Slots.Codes,
		}
		g.Go(func() error {
			vecHits = recoverRanking(gctx, r.logger, "chunk_vector_search_failed", func(ctx context.Context) ([]domain.ChunkHit, error) {
				return r.vector.SearchChunkVectors(ctx, queryVector, filter, r.cfg.TopKVec, r.cfg.ScoreThreshold)
			})
			return nil
		})
	}
	_ = g.Wait()

	fused := FuseRRF(lexHits, vecHits, r.cfg.RRFK, r.cfg.FinalTopN)
	combined := rrfScores(lexHits, vecHits, r.cfg.RRFK)

	// The vector filter treats finding and code membership as soft
	// conditions, so a code match can smuggle in a finding stage 1 never
	// produced. Drop those here.
	allowed := make(map[string]struct{}, len(findingIDs))
	for _, id := range findingIDs {
		allowed[id] = struct{}{}
	}

	hits := fused[:0]
	for _, h := range fused {
		if _, ok := allowed[h.FindingID]; !ok {
			continue
		}
		h.ScoreCombined = combined[h.ChunkID]
		if !r.backfillText(ctx, &h) {
			continue
		}
		hits = append(hits, h)
	}
	return hits
}

// sectionQueryText mixes the free text with the hints the parser attributed
// to this section.
func sectionQueryText(qc *domain.QueryContext, section string) string {
	parts := []string{qc.Query()}
	for _, hint := range qc.Slots.SectionHints[section] {
		if !strings.Contains(parts[0], hint) {
			parts = append(parts, hint)
		}
	}
	return strings.Join(parts, " ")
}

// backfillText fetches the chunk body from the lexical store when the vector
// payload carried only metadata. Chunks with no retrievable text are dropped.
func (r *ChunkRetriever) backfillText(ctx context.Context, hit *domain.ChunkHit) bool {
	if len(hit.Text) >= minPayloadTextLen {
		return true
	}
	text, textNorm, err := r.lexical.ChunkText(ctx, hit.ChunkID)
	if err != nil {
		r.logger.Warn("chunk_text_backfill_failed",
			slog.String("chunk_id", hit.ChunkID),
			slog.String("error", err.Error()))
		return false
	}
	if text == "" {
		return false
	}
	hit.Text = text
	hit.TextNorm = textNorm
	return true
}
