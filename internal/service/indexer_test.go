package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skillcapital/coursebot/internal/domain"
)

type MockBatchEmbedder struct {
	mock.Mock
}

func (m *MockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockIndexRepository struct {
	mock.Mock
}

func (m *MockIndexRepository) Count(ctx context.Context, collection string) (int, error) {
	args := m.Called(ctx, collection)
	return args.Int(0), args.Error(1)
}

func (m *MockIndexRepository) ReplaceCollection(ctx context.Context, collection string, chunks []domain.CourseChunk) error {
	args := m.Called(ctx, collection, chunks)
	return args.Error(0)
}

func (m *MockIndexRepository) AcquireBuildLock(ctx context.Context, collection string) (func(), error) {
	args := m.Called(ctx, collection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

type staticSource struct {
	text string
	err  error
}

func (s staticSource) Read(ctx context.Context) (string, error) {
	return s.text, s.err
}

// countingEmbedder answers every batch with one vector per input text and
// records how the texts were batched.
type countingEmbedder struct {
	batches [][]string
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i + 1)}
	}
	return vectors, nil
}

// memoryIndexRepo holds collections in a map so tests can observe what a
// build leaves behind.
type memoryIndexRepo struct {
	collections map[string][]domain.CourseChunk
}

func newMemoryIndexRepo() *memoryIndexRepo {
	return &memoryIndexRepo{collections: make(map[string][]domain.CourseChunk)}
}

func (m *memoryIndexRepo) Count(ctx context.Context, collection string) (int, error) {
	return len(m.collections[collection]), nil
}

func (m *memoryIndexRepo) ReplaceCollection(ctx context.Context, collection string, chunks []domain.CourseChunk) error {
	m.collections[collection] = chunks
	return nil
}

func (m *memoryIndexRepo) AcquireBuildLock(ctx context.Context, collection string) (func(), error) {
	return func() {}, nil
}

const indexCorpus = "### Python\nPython course content for beginners.\n\n### AWS\nAWS course content for practitioners.\n"

func newTestIndexer(source SourceReader, embedder BatchEmbedder, repo IndexRepository, batchSize int) *Indexer {
	chunker := NewChunker(40, 0, RuneLength)
	return NewIndexer(source, chunker, embedder, repo, IndexerConfig{Collection: "courses", BatchSize: batchSize})
}

func TestIndexer_BuildOrLoad_BuildsWhenEmpty(t *testing.T) {
	embedder := &countingEmbedder{}
	repo := new(MockIndexRepository)

	repo.On("Count", mock.Anything, "courses").Return(0, nil)
	repo.On("AcquireBuildLock", mock.Anything, "courses").Return(func() {}, nil)

	var persisted []domain.CourseChunk
	repo.On("ReplaceCollection", mock.Anything, "courses", mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = args.Get(2).([]domain.CourseChunk)
		}).
		Return(nil)

	ix := newTestIndexer(staticSource{text: indexCorpus}, embedder, repo, 2)

	count, err := ix.BuildOrLoad(context.Background())
	require.NoError(t, err)
	assert.Greater(t, count, 0)
	assert.Len(t, persisted, count)
	for _, c := range persisted {
		assert.NotEmpty(t, c.Embedding)
		assert.Equal(t, "courses", c.Collection)
	}

	// Batches never exceed the configured size.
	require.NotEmpty(t, embedder.batches)
	for _, batch := range embedder.batches {
		assert.LessOrEqual(t, len(batch), 2)
	}
}

func TestIndexer_BuildOrLoad_LoadsWithoutEmbedding(t *testing.T) {
	embedder := new(MockBatchEmbedder)
	repo := new(MockIndexRepository)

	repo.On("Count", mock.Anything, "courses").Return(42, nil)

	ix := newTestIndexer(staticSource{text: indexCorpus}, embedder, repo, 2)

	count, err := ix.BuildOrLoad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	embedder.AssertNotCalled(t, "EmbedBatch")
	repo.AssertNotCalled(t, "ReplaceCollection")
}

func TestIndexer_BuildOrLoad_MissingSourceFailsFast(t *testing.T) {
	embedder := new(MockBatchEmbedder)
	repo := new(MockIndexRepository)

	srcErr := domain.NewDomainError(domain.ErrCodeConfiguration, "knowledge file not found")
	ix := newTestIndexer(staticSource{err: srcErr}, embedder, repo, 2)

	_, err := ix.BuildOrLoad(context.Background())
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeConfiguration, domainErr.Code)
	repo.AssertNotCalled(t, "Count")
}

func TestIndexer_Build_EmbedErrorPersistsNothing(t *testing.T) {
	embedder := new(MockBatchEmbedder)
	repo := new(MockIndexRepository)

	repo.On("Count", mock.Anything, "courses").Return(0, nil)
	repo.On("AcquireBuildLock", mock.Anything, "courses").Return(func() {}, nil)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, errors.New("api down"))

	ix := newTestIndexer(staticSource{text: indexCorpus}, embedder, repo, 2)

	_, err := ix.BuildOrLoad(context.Background())
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeIndexing, domainErr.Code)
	repo.AssertNotCalled(t, "ReplaceCollection")
}

func TestIndexer_Build_RecheckUnderLock(t *testing.T) {
	embedder := new(MockBatchEmbedder)
	repo := new(MockIndexRepository)

	// Empty on the first look, populated once the lock is held.
	repo.On("Count", mock.Anything, "courses").Return(0, nil).Once()
	repo.On("AcquireBuildLock", mock.Anything, "courses").Return(func() {}, nil)
	repo.On("Count", mock.Anything, "courses").Return(7, nil).Once()

	ix := newTestIndexer(staticSource{text: indexCorpus}, embedder, repo, 2)

	count, err := ix.BuildOrLoad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	embedder.AssertNotCalled(t, "EmbedBatch")
	repo.AssertNotCalled(t, "ReplaceCollection")
}

func TestIndexer_Rebuild_ReplacesExistingCollection(t *testing.T) {
	embedder := &countingEmbedder{}
	repo := newMemoryIndexRepo()
	repo.collections["courses"] = []domain.CourseChunk{{ID: "stale", Collection: "courses", Content: "outdated content"}}

	ix := newTestIndexer(staticSource{text: indexCorpus}, embedder, repo, 2)

	count, err := ix.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	// The populated collection does not short-circuit a forced rebuild.
	require.NotEmpty(t, embedder.batches)
	assert.Len(t, repo.collections["courses"], count)
	for _, c := range repo.collections["courses"] {
		assert.NotEqual(t, "stale", c.ID)
	}
}

func TestIndexer_Rebuild_EmbedFailureLeavesIndexIntact(t *testing.T) {
	embedder := new(MockBatchEmbedder)
	repo := newMemoryIndexRepo()
	live := []domain.CourseChunk{{ID: "keep", Collection: "courses", Content: "still serving queries"}}
	repo.collections["courses"] = live

	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, errors.New("api down"))

	ix := newTestIndexer(staticSource{text: indexCorpus}, embedder, repo, 2)

	_, err := ix.Rebuild(context.Background())
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeIndexing, domainErr.Code)

	// The previous index keeps serving until a replacement is ready.
	assert.Equal(t, live, repo.collections["courses"])
}

func TestIndexer_Build_EmptyCorpus(t *testing.T) {
	embedder := new(MockBatchEmbedder)
	repo := new(MockIndexRepository)

	repo.On("Count", mock.Anything, "courses").Return(0, nil)
	repo.On("AcquireBuildLock", mock.Anything, "courses").Return(func() {}, nil)

	ix := newTestIndexer(staticSource{text: "   "}, embedder, repo, 2)

	_, err := ix.BuildOrLoad(context.Background())
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeIndexing, domainErr.Code)
}

func TestIndexer_Build_LockErrorSurfaces(t *testing.T) {
	embedder := new(MockBatchEmbedder)
	repo := new(MockIndexRepository)

	repo.On("Count", mock.Anything, "courses").Return(0, nil)
	repo.On("AcquireBuildLock", mock.Anything, "courses").Return(nil, errors.New("lock held"))

	ix := newTestIndexer(staticSource{text: indexCorpus}, embedder, repo, 2)

	_, err := ix.BuildOrLoad(context.Background())
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeIndexing, domainErr.Code)
}
