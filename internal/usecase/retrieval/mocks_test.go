package retrieval_test

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"audit-rag/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockFindingSearcher is a test double for domain.FindingSearcher.
type MockFindingSearcher struct {
	mock.Mock
}

func (m *MockFindingSearcher) SearchFindings(ctx context.Context, q domain.FindingQuery) ([]domain.FindingHit, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FindingHit), args.Error(1)
}

func (m *MockFindingSearcher) DocIDsByKeyword(ctx context.Context, keyword string, topN int) ([]domain.DocScore, error) {
	args := m.Called(ctx, keyword, topN)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocScore), args.Error(1)
}

func (m *MockFindingSearcher) KeywordFrequencies(ctx context.Context, docIDs, keywords []string) (map[string]int, error) {
	args := m.Called(ctx, docIDs, keywords)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

// MockChunkSearcher is a test double for domain.ChunkSearcher.
type MockChunkSearcher struct {
	mock.Mock
}

func (m *MockChunkSearcher) SearchChunks(ctx context.Context, q domain.ChunkQuery) ([]domain.ChunkHit, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChunkHit), args.Error(1)
}

func (m *MockChunkSearcher) ChunkText(ctx context.Context, chunkID string) (string, string, error) {
	args := m.Called(ctx, chunkID)
	return args.String(0), args.String(1), args.Error(2)
}

// MockVectorSearcher is a test double for domain.VectorSearcher.
type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) SearchFindingVectors(ctx context.Context, vector []float32, filter domain.VectorFilter, limit int, scoreThreshold float64) ([]domain.FindingHit, error) {
	args := m.Called(ctx, vector, filter, limit, scoreThreshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FindingHit), args.Error(1)
}

func (m *MockVectorSearcher) SearchChunkVectors(ctx context.Context, vector []float32, filter domain.VectorFilter, limit int, scoreThreshold float64) ([]domain.ChunkHit, error) {
	args := m.Called(ctx, vector, filter, limit, scoreThreshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChunkHit), args.Error(1)
}

// MockVectorEncoder is a test double for domain.VectorEncoder.
type MockVectorEncoder struct {
	mock.Mock
}

func (m *MockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}
