package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"audit-rag/internal/domain"
)

const (
	prefilterDocsPerKeyword = 50
	prefilterMaxKeywords    = 3
	prefilterUnionCap       = 30
	keywordFreqDocLimit     = 5
	docFilterScoreCut       = 0.5
)

// FindingConfig bundles the stage-1 knobs.
type FindingConfig struct {
	TopKLex             int
	TopKVec             int
	RRFK                float64
	FinalTopN           int
	ScoreThreshold      float64
	ScoreThresholdMulti float64
}

// FindingRetriever runs the stage-1 hybrid search over finding records, with
// a keyword-intersection document prefilter in front.
type FindingRetriever struct {
	lexical   domain.FindingSearcher
	vector    domain.VectorSearcher
	encoder   domain.VectorEncoder
	cfg       FindingConfig
	freqCache *lru.Cache[string, map[string]int]
	logger    *slog.Logger
}

func NewFindingRetriever(
	lexical domain.FindingSearcher,
	vector domain.VectorSearcher,
	encoder domain.VectorEncoder,
	cfg FindingConfig,
	freqCacheSize int,
	logger *slog.Logger,
) *FindingRetriever {
	cache, _ := lru.New[string, map[string]int](freqCacheSize)
	return &FindingRetriever{
		lexical:   lexical,
		vector:    vector,
		encoder:   encoder,
		cfg:       cfg,
		freqCache: cache,
		logger:    logger,
	}
}

// Run fills qc.TargetDocIDs, qc.KeywordFreq and qc.FindingCandidates.
func (r *FindingRetriever) Run(ctx context.Context, qc *domain.QueryContext) error {
	mustHave := mustKeywords(qc.Expansion)

	if len(mustHave) > 0 {
		r.prefilterDocs(ctx, qc, mustHave)
	}

	query := buildFindingQuery(qc, r.cfg.TopKLex)
	searchLexical := func(ctx context.Context) []domain.FindingHit {
		return recoverRanking(ctx, r.logger, "finding_lexical_search_failed", func(ctx context.Context) ([]domain.FindingHit, error) {
			return r.lexical.SearchFindings(ctx, query)
		})
	}

	useVector := len(mustHave) >= 2
	var hits []domain.FindingHit
	if useVector {
		// Both backends are queried in parallel; fusion waits for both.
		var lexHits, vecHits []domain.FindingHit
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			lexHits = searchLexical(gctx)
			return nil
		})
		g.Go(func() error {
			vecHits = r.searchVectors(gctx, qc)
			return nil
		})
		_ = g.Wait()

		hits = FuseRRF(lexHits, vecHits, r.cfg.RRFK, r.cfg.FinalTopN)
		combined := rrfScores(lexHits, vecHits, r.cfg.RRFK)
		for i := range hits {
			hits[i].ScoreCombined = combined[hits[i].FindingID]
		}
	} else {
		// A single keyword wants exact text matching; dense similarity only
		// blurs it.
		hits = searchLexical(ctx)
		if len(hits) > r.cfg.FinalTopN {
			hits = hits[:r.cfg.FinalTopN]
		}
		for i := range hits {
			hits[i].ScoreCombined = hits[i].ScoreBM25
		}
	}

	if len(qc.TargetDocIDs) > 0 && len(hits) > 0 {
		cut := hits[0].ScoreCombined * docFilterScoreCut
		kept := hits[:0]
		for _, h := range hits {
			if h.ScoreCombined >= cut {
				kept = append(kept, h)
			}
		}
		hits = kept
	}

	qc.FindingCandidates = hits
	r.logger.Info("findings_retrieved",
		slog.String("query_id", qc.QueryID),
		slog.Int("candidate_count", len(hits)),
		slog.Bool("hybrid", useVector),
		slog.Int("target_doc_count", len(qc.TargetDocIDs)))
	return nil
}

func mustKeywords(exp *domain.Expansion) []string {
	if exp == nil {
		return nil
	}
	kws := exp.MustHave
	if len(kws) > prefilterMaxKeywords {
		kws = kws[:prefilterMaxKeywords]
	}
	return kws
}

// prefilterDocs narrows the search to the documents where the must-have
// keywords co-occur. Intersection first; union when it comes up empty.
func (r *FindingRetriever) prefilterDocs(ctx context.Context, qc *domain.QueryContext, keywords []string) {
	docSets := make([]map[string]float64, len(keywords))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, kw := range keywords {
		i, kw := i, kw
		g.Go(func() error {
			docs, err := r.lexical.DocIDsByKeyword(gctx, kw, prefilterDocsPerKeyword)
			if err != nil {
				r.logger.Warn("doc_prefilter_keyword_failed",
					slog.String("query_id", qc.QueryID),
					slog.String("keyword", kw),
					slog.String("error", err.Error()))
				docs = nil
			}
			set := make(map[string]float64, len(docs))
			for _, d := range docs {
				set[d.DocID] = d.Score
			}
			mu.Lock()
			docSets[i] = set
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(keywords) == 1 {
		qc.TargetDocIDs = rankDocs(docSets)
		return
	}

	intersection := intersectDocs(docSets)
	if len(intersection) > 0 {
		qc.TargetDocIDs = intersection
		qc.KeywordFreq = r.keywordFrequencies(ctx, qc, intersection, qc.Expansion.MustHave)
		return
	}

	union := rankDocs(docSets)
	if len(union) > prefilterUnionCap {
		union = union[:prefilterUnionCap]
	}
	if len(union) == 0 {
		r.logger.Warn("doc_prefilter_empty_after_union",
			slog.String("query_id", qc.QueryID),
			slog.Any("keywords", keywords))
	}
	qc.TargetDocIDs = union
}

// intersectDocs returns the docs present in every keyword set, ranked by the
// primary keyword's score then ID.
func intersectDocs(docSets []map[string]float64) []string {
	if len(docSets) == 0 {
		return nil
	}
	totals := map[string]float64{}
	for doc, score := range docSets[0] {
		inAll := true
		for _, other := range docSets[1:] {
			if _, ok := other[doc]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			totals[doc] = score
		}
	}
	return sortDocsByScore(totals)
}

// rankDocs unions the sets, ranked by summed score then ID.
func rankDocs(docSets []map[string]float64) []string {
	totals := map[string]float64{}
	for _, set := range docSets {
		for doc, score := range set {
			totals[doc] += score
		}
	}
	return sortDocsByScore(totals)
}

func sortDocsByScore(totals map[string]float64) []string {
	docs := make([]string, 0, len(totals))
	for doc := range totals {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if totals[docs[i]] != totals[docs[j]] {
			return totals[docs[i]] > totals[docs[j]]
		}
		return docs[i] < docs[j]
	})
	return docs
}

// keywordFrequencies counts keyword matches over the top intersection docs,
// memoized because the same doc set recurs across related queries.
func (r *FindingRetriever) keywordFrequencies(ctx context.Context, qc *domain.QueryContext, docIDs, keywords []string) map[string]int {
	docs := docIDs
	if len(docs) > keywordFreqDocLimit {
		docs = docs[:keywordFreqDocLimit]
	}

	key := freqCacheKey(docs, keywords)
	if cached, ok := r.freqCache.Get(key); ok {
		return cached
	}

	freq, err := r.lexical.KeywordFrequencies(ctx, docs, keywords)
	if err != nil {
		r.logger.Warn("keyword_frequency_failed",
			slog.String("query_id", qc.QueryID),
			slog.String("error", err.Error()))
		return nil
	}
	r.freqCache.Add(key, freq)
	return freq
}

func freqCacheKey(docIDs, keywords []string) string {
	docs := append([]string(nil), docIDs...)
	kws := append([]string(nil), keywords...)
	sort.Strings(docs)
	sort.Strings(kws)
	return strings.Join(docs, ",") + "|" + strings.Join(kws, ",")
}

// buildFindingQuery translates the expansion into weighted term clauses. With
// no expansion the normalized text goes through as a plain multi-field match.
func buildFindingQuery(qc *domain.QueryContext, size int) domain.FindingQuery {
	q := domain.FindingQuery{
		Codes:       qc.Slots.Codes,
		IndustrySub: qc.Slots.IndustrySub,
		DomainTags:  qc.Slots.DomainTags,
		DocIDs:      qc.TargetDocIDs,
		Size:        size,
	}

	exp := qc.Expansion
	if exp == nil || len(exp.MustHave) == 0 {
		q.FreeText = qc.Query()
		return q
	}

	for _, kw := range exp.MustHave {
		q.MustTerms = append(q.MustTerms, domain.WeightedTerm{Term: kw, Boost: exp.Boost(kw, 3.0)})
	}
	for _, kw := range append(append([]string(nil), exp.ShouldHave...), exp.RelatedTerms...) {
		q.ShouldTerms = append(q.ShouldTerms, domain.WeightedTerm{Term: kw, Boost: exp.Boost(kw, 1.5)})
	}
	return q
}

func (r *FindingRetriever) searchVectors(ctx context.Context, qc *domain.QueryContext) []domain.FindingHit {
	vectors, err := r.encoder.Encode(ctx, []string{qc.Query()})
	if err != nil || len(vectors) == 0 {
		r.logger.Warn("finding_vector_encode_failed",
			slog.String("query_id", qc.QueryID),
			slog.String("error", errString(err)))
		qc.Warnings = append(qc.Warnings, "벡터 검색을 사용할 수 없어 키워드 검색 결과만 반영되었습니다.")
		return nil
	}

	filter := domain.VectorFilter{
		DocIDs: qc.TargetDocIDs,
		Codes:  qc.Slots.Codes,
	}
	hits, err := r.vector.SearchFindingVectors(ctx, vectors[0], filter, r.cfg.TopKVec, r.cfg.ScoreThresholdMulti)
	if err != nil {
		r.logger.Warn("finding_vector_search_failed",
			slog.String("query_id", qc.QueryID),
			slog.String("error", err.Error()))
		qc.Warnings = append(qc.Warnings, "벡터 검색을 사용할 수 없어 키워드 검색 결과만 반영되었습니다.")
		return nil
	}
	return hits
}

func errString(err error) string {
	if err == nil {
		return "empty embedding"
	}
	return err.Error()
}
