package lexical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"audit-rag/internal/domain"
)

const (
	findingsIndex = "findings"
	chunksIndex   = "chunks"
)

// Client implements the finding and chunk lexical contracts on
// Elasticsearch.
type Client struct {
	es     *elasticsearch.Client
	logger *slog.Logger
}

type Config struct {
	URL        string
	User       string
	Password   string
	MaxRetries int
	Transport  http.RoundTripper
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryOnStatus: []int{502, 503, 504, 429},
		Transport:     cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{es: es, logger: logger}, nil
}

type searchHit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets map[string]struct {
			DocCount int `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

type findingSource struct {
	FindingID   string   `json:"finding_id"`
	DocID       string   `json:"doc_id"`
	Item        string   `json:"item"`
	ItemDetail  string   `json:"item_detail"`
	Code        string   `json:"code"`
	IndustrySub []string `json:"industry_sub"`
	DomainTags  []string `json:"domain_tags"`
}

type chunkSource struct {
	ChunkID      string `json:"chunk_id"`
	FindingID    string `json:"finding_id"`
	DocID        string `json:"doc_id"`
	Section      string `json:"section"`
	SectionOrder int    `json:"section_order"`
	ChunkOrder   int    `json:"chunk_order"`
	Code         string `json:"code"`
	Item         string `json:"item"`
	Page         int    `json:"page"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Text         string `json:"text"`
	TextNorm     string `json:"text_norm"`
}

// SearchFindings runs the stage-1 bool query. Weighted keyword clauses go
// into should with minimum_should_match 1, unless a doc filter already
// constrains matching.
func (c *Client) SearchFindings(ctx context.Context, q domain.FindingQuery) ([]domain.FindingHit, error) {
	var must, should []map[string]any

	if len(q.MustTerms) == 0 {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  q.FreeText,
				"fields": []string{"item^2", "reason_kw_norm", "item_detail"},
			},
		})
	} else {
		for _, term := range q.MustTerms {
			should = append(should, weightedClause(term))
		}
		for _, term := range q.ShouldTerms {
			should = append(should, weightedClause(term))
		}
	}

	if len(q.DocIDs) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"doc_id": q.DocIDs}})
	}
	if len(q.Codes) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"code": q.Codes}})
	}
	if len(q.IndustrySub) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"industry_sub": q.IndustrySub}})
	}
	if len(q.DomainTags) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"domain_tags": q.DomainTags}})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(should) > 0 {
		boolQuery["should"] = should
		if len(q.DocIDs) == 0 {
			boolQuery["minimum_should_match"] = 1
		}
	}

	body := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"size":  q.Size,
	}

	resp, err := c.search(ctx, findingsIndex, body)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.FindingHit, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var src findingSource
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			c.logger.Warn("finding_source_decode_failed", slog.String("id", hit.ID))
			continue
		}
		if src.FindingID == "" {
			src.FindingID = hit.ID
		}
		hits = append(hits, domain.FindingHit{
			Finding: domain.Finding{
				FindingID:   src.FindingID,
				DocID:       src.DocID,
				Item:        src.Item,
				ItemDetail:  src.ItemDetail,
				Code:        src.Code,
				IndustrySub: src.IndustrySub,
				DomainTags:  src.DomainTags,
			},
			ScoreBM25: hit.Score,
		})
	}
	return hits, nil
}

func weightedClause(term domain.WeightedTerm) map[string]any {
	return map[string]any{
		"multi_match": map[string]any{
			"query": term.Term,
			"fields": []string{
				fmt.Sprintf("item^%.2f", term.Boost),
				fmt.Sprintf("reason_kw_norm^%.2f", term.Boost*0.8),
				fmt.Sprintf("item_detail^%.2f", term.Boost*0.5),
			},
		},
	}
}

// DocIDsByKeyword finds the documents whose findings match the keyword,
// keeping the best score per document.
func (c *Client) DocIDsByKeyword(ctx context.Context, keyword string, topN int) ([]domain.DocScore, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{"match": map[string]any{"item": map[string]any{"query": keyword, "boost": 2.0}}},
					{"match": map[string]any{"reason_kw_norm": map[string]any{"query": keyword, "boost": 1.5}}},
					{"match": map[string]any{"item_detail": map[string]any{"query": keyword, "boost": 1.0}}},
				},
			},
		},
		"size":    topN,
		"_source": []string{"doc_id"},
	}

	resp, err := c.search(ctx, findingsIndex, body)
	if err != nil {
		return nil, err
	}

	best := map[string]float64{}
	var order []string
	for _, hit := range resp.Hits.Hits {
		var src struct {
			DocID string `json:"doc_id"`
		}
		if err := json.Unmarshal(hit.Source, &src); err != nil || src.DocID == "" {
			continue
		}
		if score, ok := best[src.DocID]; !ok {
			best[src.DocID] = hit.Score
			order = append(order, src.DocID)
		} else if hit.Score > score {
			best[src.DocID] = hit.Score
		}
	}

	docs := make([]domain.DocScore, 0, len(order))
	for _, docID := range order {
		docs = append(docs, domain.DocScore{DocID: docID, Score: best[docID]})
	}
	return docs, nil
}

// KeywordFrequencies counts keyword matches over the documents with one
// filters aggregation, one bucket per keyword.
func (c *Client) KeywordFrequencies(ctx context.Context, docIDs, keywords []string) (map[string]int, error) {
	filters := map[string]any{}
	for _, kw := range keywords {
		filters[kw] = map[string]any{"match": map[string]any{"text": kw}}
	}

	body := map[string]any{
		"query": map[string]any{"terms": map[string]any{"doc_id": docIDs}},
		"size":  0,
		"aggs": map[string]any{
			"keyword_matches": map[string]any{
				"filters": map[string]any{"filters": filters},
			},
		},
	}

	resp, err := c.search(ctx, findingsIndex, body)
	if err != nil {
		return nil, err
	}

	freq := make(map[string]int, len(keywords))
	for _, kw := range keywords {
		freq[kw] = 0
	}
	if agg, ok := resp.Aggregations["keyword_matches"]; ok {
		for kw, bucket := range agg.Buckets {
			freq[kw] = bucket.DocCount
		}
	}
	return freq, nil
}

// SearchChunks runs the stage-2 bool query within one section.
func (c *Client) SearchChunks(ctx context.Context, q domain.ChunkQuery) ([]domain.ChunkHit, error) {
	must := []map[string]any{
		{"multi_match": map[string]any{
			"query":  q.Text,
			"fields": []string{"text^2", "text_norm", "item^0.5"},
		}},
		{"term": map[string]any{"section": q.Section}},
		{"terms": map[string]any{"finding_id": q.FindingIDs}},
	}
	if len(q.DocIDs) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"doc_id": q.DocIDs}})
	}
	if len(q.Codes) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"code": q.Codes}})
	}

	body := map[string]any{
		"query": map[string]any{"bool": map[string]any{"must": must}},
		"size":  q.Size,
	}

	resp, err := c.search(ctx, chunksIndex, body)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.ChunkHit, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var src chunkSource
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			c.logger.Warn("chunk_source_decode_failed", slog.String("id", hit.ID))
			continue
		}
		if src.ChunkID == "" {
			src.ChunkID = hit.ID
		}
		hits = append(hits, domain.ChunkHit{
			Chunk: domain.Chunk{
				ChunkID:      src.ChunkID,
				FindingID:    src.FindingID,
				DocID:        src.DocID,
				Section:      src.Section,
				SectionOrder: src.SectionOrder,
				ChunkOrder:   src.ChunkOrder,
				Code:         src.Code,
				Item:         src.Item,
				Page:         src.Page,
				StartLine:    src.StartLine,
				EndLine:      src.EndLine,
				Text:         src.Text,
				TextNorm:     src.TextNorm,
			},
			ScoreBM25: hit.Score,
		})
	}
	return hits, nil
}

// ChunkText fetches just the text fields of one chunk by ID.
func (c *Client) ChunkText(ctx context.Context, chunkID string) (string, string, error) {
	res, err := c.es.Get(chunksIndex, chunkID,
		c.es.Get.WithContext(ctx),
		c.es.Get.WithSourceIncludes("text", "text_norm"),
	)
	if err != nil {
		return "", "", fmt.Errorf("get chunk %s: %w", chunkID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", "", fmt.Errorf("get chunk %s: %s", chunkID, res.Status())
	}

	var doc struct {
		Source struct {
			Text     string `json:"text"`
			TextNorm string `json:"text_norm"`
		} `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return "", "", fmt.Errorf("decode chunk %s: %w", chunkID, err)
	}
	return doc.Source.Text, doc.Source.TextNorm, nil
}

func (c *Client) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search %s: %s: %s", index, res.Status(), msg)
	}

	var resp searchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &resp, nil
}

var _ domain.FindingSearcher = (*Client)(nil)
var _ domain.ChunkSearcher = (*Client)(nil)
