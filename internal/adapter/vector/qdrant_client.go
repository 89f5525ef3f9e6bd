package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"audit-rag/internal/domain"
)

// Client implements the dense search contract on Qdrant over gRPC.
type Client struct {
	conn     *grpc.ClientConn
	points   qdrant.PointsClient
	findings string
	chunks   string
	timeout  time.Duration
	hnswEf   uint64
	logger   *slog.Logger
}

type Config struct {
	Host               string
	Port               int
	Timeout            time.Duration
	HnswEf             int
	FindingsCollection string
	ChunksCollection   string
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	conn, err := grpc.NewClient(
		fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial qdrant: %w", err)
	}
	return &Client{
		conn:     conn,
		points:   qdrant.NewPointsClient(conn),
		findings: cfg.FindingsCollection,
		chunks:   cfg.ChunksCollection,
		timeout:  cfg.Timeout,
		hnswEf:   uint64(cfg.HnswEf),
		logger:   logger,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// SearchFindingVectors searches the finding collection. Doc and code
// restrictions go into the should list: a point must satisfy at least one of
// them when any are present, not all.
func (c *Client) SearchFindingVectors(ctx context.Context, vector []float32, filter domain.VectorFilter, limit int, scoreThreshold float64) ([]domain.FindingHit, error) {
	points, err := c.search(ctx, c.findings, vector, buildFilter(filter, false), limit, scoreThreshold)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.FindingHit, 0, len(points))
	for _, point := range points {
		payload := point.Payload
		hit := domain.FindingHit{
			Finding: domain.Finding{
				FindingID:   stringField(payload, "finding_id"),
				DocID:       stringField(payload, "doc_id"),
				Item:        stringField(payload, "item"),
				ItemDetail:  stringField(payload, "item_detail"),
				Code:        stringField(payload, "code"),
				IndustrySub: listField(payload, "industry_sub"),
				DomainTags:  listField(payload, "domain_tags"),
			},
			ScoreVector: float64(point.Score),
		}
		if hit.FindingID == "" {
			hit.FindingID = pointID(point)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// SearchChunkVectors searches the chunk collection. Section and doc filters
// are must conditions. Finding and code filters share the should list, so a
// code match alone satisfies the filter; the retriever re-checks finding
// membership after fusion.
func (c *Client) SearchChunkVectors(ctx context.Context, vector []float32, filter domain.VectorFilter, limit int, scoreThreshold float64) ([]domain.ChunkHit, error) {
	points, err := c.search(ctx, c.chunks, vector, buildFilter(filter, true), limit, scoreThreshold)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.ChunkHit, 0, len(points))
	for _, point := range points {
		payload := point.Payload
		hit := domain.ChunkHit{
			Chunk: domain.Chunk{
				ChunkID:      stringField(payload, "chunk_id"),
				FindingID:    stringField(payload, "finding_id"),
				DocID:        stringField(payload, "doc_id"),
				Section:      stringField(payload, "section"),
				SectionOrder: intField(payload, "section_order"),
				ChunkOrder:   intField(payload, "chunk_order"),
				Code:         stringField(payload, "code"),
				Item:         stringField(payload, "item"),
				Page:         intField(payload, "page"),
				StartLine:    intField(payload, "start_line"),
				EndLine:      intField(payload, "end_line"),
				Text:         stringField(payload, "text"),
				TextNorm:     stringField(payload, "text_norm"),
			},
			ScoreVector: float64(point.Score),
		}
		if hit.ChunkID == "" {
			hit.ChunkID = pointID(point)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (c *Client) search(ctx context.Context, collection string, vector []float32, filter *qdrant.Filter, limit int, scoreThreshold float64) ([]*qdrant.ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	threshold := float32(scoreThreshold)
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Filter:         filter,
		Limit:          uint64(limit),
		ScoreThreshold: &threshold,
		Params:         &qdrant.SearchParams{HnswEf: &c.hnswEf},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}

	resp, err := c.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search %s: %w", collection, err)
	}
	return resp.Result, nil
}

// buildFilter maps the domain filter onto Qdrant conditions. sectionHard
// marks the chunk collection, where section and doc membership must hold.
func buildFilter(filter domain.VectorFilter, sectionHard bool) *qdrant.Filter {
	var must, should []*qdrant.Condition

	if filter.Section != "" && sectionHard {
		must = append(must, keywordCondition("section", filter.Section))
	}
	if len(filter.DocIDs) > 0 {
		cond := keywordsCondition("doc_id", filter.DocIDs)
		if sectionHard {
			must = append(must, cond)
		} else {
			should = append(should, cond)
		}
	}
	if len(filter.FindingIDs) > 0 {
		should = append(should, keywordsCondition("finding_id", filter.FindingIDs))
	}
	if len(filter.Codes) > 0 {
		should = append(should, keywordsCondition("code", filter.Codes))
	}

	if len(must) == 0 && len(should) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, Should: should}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func keywordsCondition(key string, values []string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
					Keywords: &qdrant.RepeatedStrings{Strings: values},
				}},
			},
		},
	}
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func intField(payload map[string]*qdrant.Value, key string) int {
	if v, ok := payload[key]; ok {
		return int(v.GetIntegerValue())
	}
	return 0
}

func listField(payload map[string]*qdrant.Value, key string) []string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	var out []string
	for _, item := range list.Values {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func pointID(point *qdrant.ScoredPoint) string {
	if point.Id == nil {
		return ""
	}
	if uuid := point.Id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", point.Id.GetNum())
}

var _ domain.VectorSearcher = (*Client)(nil)
