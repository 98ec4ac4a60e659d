package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillcapital/coursebot/internal/domain"
)

type fakeAPI struct {
	embedResp    openai.EmbeddingResponse
	embedErr     error
	embedCalls   int
	embedFailsN  int // fail the first N embedding calls with embedErr
	chatResp     openai.ChatCompletionResponse
	chatErr      error
	chatCalls    int
	lastChatReq  openai.ChatCompletionRequest
	lastEmbedReq openai.EmbeddingRequest
}

func (f *fakeAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.embedCalls++
	if req, ok := conv.(openai.EmbeddingRequest); ok {
		f.lastEmbedReq = req
	}
	if f.embedFailsN >= f.embedCalls {
		return openai.EmbeddingResponse{}, f.embedErr
	}
	if f.embedErr != nil && f.embedFailsN == 0 {
		return openai.EmbeddingResponse{}, f.embedErr
	}
	return f.embedResp, nil
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatCalls++
	f.lastChatReq = req
	if f.chatErr != nil {
		return openai.ChatCompletionResponse{}, f.chatErr
	}
	return f.chatResp, nil
}

func newTestClient(a api) *Client {
	return &Client{
		api:            a,
		embeddingModel: DefaultEmbeddingModel,
		chatModel:      DefaultChatModel,
		dimensions:     3,
		timeout:        time.Second,
		maxRetries:     2,
	}
}

func TestNewClientWithConfig_RequiresAPIKey(t *testing.T) {
	_, err := NewClientWithConfig(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestEmbedBatch_PreservesOrderByIndex(t *testing.T) {
	fake := &fakeAPI{
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{
				{Index: 1, Embedding: []float32{4, 5, 6}},
				{Index: 0, Embedding: []float32{1, 2, 3}},
			},
		},
	}
	client := newTestClient(fake)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vectors[0])
	assert.Equal(t, []float32{4, 5, 6}, vectors[1])
}

func TestEmbedBatch_WrongDimensions(t *testing.T) {
	fake := &fakeAPI{
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: []float32{1, 2}}},
		},
	}
	client := newTestClient(fake)

	_, err := client.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingDimensions)
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	client := newTestClient(&fakeAPI{})
	_, err := client.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbedBatch_RetriesOnRateLimit(t *testing.T) {
	fake := &fakeAPI{
		embedErr:    &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"},
		embedFailsN: 1,
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: []float32{1, 2, 3}}},
		},
	}
	client := newTestClient(fake)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.embedCalls)
	assert.Equal(t, []float32{1, 2, 3}, vectors[0])
}

func TestEmbedBatch_NoRetryOnClientError(t *testing.T) {
	fake := &fakeAPI{
		embedErr: &openai.APIError{HTTPStatusCode: 400, Message: "bad request"},
	}
	client := newTestClient(fake)

	_, err := client.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 1, fake.embedCalls)
}

func TestComplete_MapsPromptAndSettings(t *testing.T) {
	fake := &fakeAPI{
		chatResp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "Answer text"}},
			},
		},
	}
	client := newTestClient(fake)

	res, err := client.Complete(context.Background(), []domain.PromptMessage{
		{Role: domain.RoleSystem, Content: "persona"},
		{Role: domain.RoleUser, Content: "question"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CompletionText, res.Kind)
	assert.Equal(t, "Answer text", res.Text)
	assert.Equal(t, DefaultChatModel, fake.lastChatReq.Model)
	assert.InDelta(t, 0.3, fake.lastChatReq.Temperature, 0.0001)
	assert.Equal(t, 250, fake.lastChatReq.MaxTokens)
	require.Len(t, fake.lastChatReq.Messages, 2)
	assert.Equal(t, "system", fake.lastChatReq.Messages[0].Role)
	assert.Equal(t, "user", fake.lastChatReq.Messages[1].Role)
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestClient(&fakeAPI{chatResp: openai.ChatCompletionResponse{}})

	_, err := client.Complete(context.Background(), []domain.PromptMessage{
		{Role: domain.RoleUser, Content: "q"},
	})
	assert.ErrorIs(t, err, domain.ErrNoCompletionChoices)
}

func TestComplete_Error(t *testing.T) {
	client := newTestClient(&fakeAPI{chatErr: errors.New("boom")})

	_, err := client.Complete(context.Background(), []domain.PromptMessage{
		{Role: domain.RoleUser, Content: "q"},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create chat completion")
}
