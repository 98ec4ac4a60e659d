//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillcapital/coursebot/internal/api/handlers"
	"github.com/skillcapital/coursebot/internal/domain"
	"github.com/skillcapital/coursebot/internal/repository"
	"github.com/skillcapital/coursebot/internal/server"
	"github.com/skillcapital/coursebot/internal/service"
	"github.com/skillcapital/coursebot/internal/session"
	"github.com/skillcapital/coursebot/internal/testutil"
)

const embeddingDims = 1536

// knowledgeCorpus is the fixture indexed in every E2E environment.
const knowledgeCorpus = `### Python
The Python course takes beginners from zero to job-ready.
Curriculum: syntax, data structures, OOP, testing.

### AWS
The AWS course covers the core services used in production.
Curriculum: EC2, S3, IAM, networking.

### DevOps
The DevOps course teaches CI/CD pipelines and infrastructure as code.
Curriculum: Docker, Kubernetes, Terraform.
`

// topicAxes maps a keyword to a dedicated embedding axis so similarity is
// exact: same topic scores 1, different topics score 0.
var topicAxes = map[string]int{
	"python": 0,
	"aws":    1,
	"devops": 2,
	"docker": 2,
}

// stubEmbedder produces deterministic unit vectors from keyword matches.
// Texts with no known keyword land on a reserved axis far from every course.
type stubEmbedder struct{}

func (stubEmbedder) embed(text string) []float32 {
	v := make([]float32, embeddingDims)
	lowered := strings.ToLower(text)
	for keyword, axis := range topicAxes {
		if strings.Contains(lowered, keyword) {
			v[axis] = 1
			return v
		}
	}
	v[embeddingDims-1] = 1
	return v
}

func (e stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

// stubCompletion answers with the first retrieved chunk's first line and
// records every prompt it saw.
type stubCompletion struct {
	mu      sync.Mutex
	prompts [][]domain.PromptMessage
}

func (c *stubCompletion) Complete(ctx context.Context, messages []domain.PromptMessage) (domain.CompletionResult, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, messages)
	c.mu.Unlock()

	for _, m := range messages {
		if m.Role == domain.RoleSystem && strings.HasPrefix(m.Content, "Retrieved knowledge:\n") {
			body := strings.TrimPrefix(m.Content, "Retrieved knowledge:\n")
			if line, _, ok := strings.Cut(body, "\n"); ok && line != "" {
				return domain.NewTextResult(line), nil
			}
			return domain.NewTextResult(strings.TrimSpace(body)), nil
		}
	}
	return domain.NewTextResult("no knowledge attached"), nil
}

func (c *stubCompletion) Prompts() [][]domain.PromptMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]domain.PromptMessage, len(c.prompts))
	copy(out, c.prompts)
	return out
}

// E2EEnv holds all resources needed for E2E tests
type E2EEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Completion   *stubCompletion
	HTTPClient   *http.Client
}

// SetupE2EEnv starts a pgvector container, indexes the fixture corpus, and
// serves the chat API on a free port.
func SetupE2EEnv(t *testing.T) *E2EEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	chunkRepo := repository.NewChunkRepository(pool)
	embedder := stubEmbedder{}

	indexer := service.NewIndexer(
		staticSource(knowledgeCorpus),
		service.NewChunker(200, 0, service.RuneLength),
		embedder,
		chunkRepo,
		service.IndexerConfig{Collection: "e2e_knowledge", BatchSize: 8},
	)
	if _, err := indexer.BuildOrLoad(ctx); err != nil {
		pool.Close()
		pgC.Terminate(ctx)
		t.Fatalf("failed to build index: %v", err)
	}

	retriever := service.NewRetriever(embedder, chunkRepo, service.RetrieverConfig{
		Collection:    "e2e_knowledge",
		TopK:          5,
		MinSimilarity: 0.2,
	})

	completion := &stubCompletion{}
	advisor := service.NewAdvisor(retriever, completion, session.NewStore(100))

	router := server.NewRouter(server.RouterConfig{
		ChatHandler: handlers.NewChatHandler(advisor),
	})

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server stopped: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, serverURL)

	return &E2EEnv{
		T:         t,
		Ctx:       ctx,
		PostgresC: pgC,
		Pool:      pool,
		ServerURL: serverURL,
		ServerCloser: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		},
		Completion: completion,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2EEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

type staticSource string

func (s staticSource) Read(ctx context.Context) (string, error) {
	return string(s), nil
}

// Chat posts one message and decodes the reply.
func (e *E2EEnv) Chat(message, sessionID string) (handlers.ChatResponse, int, error) {
	payload, err := json.Marshal(handlers.ChatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return handlers.ChatResponse{}, 0, err
	}

	resp, err := e.HTTPClient.Post(e.ServerURL+"/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		return handlers.ChatResponse{}, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return handlers.ChatResponse{}, resp.StatusCode, err
	}

	var chatResp handlers.ChatResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, &chatResp); err != nil {
			return handlers.ChatResponse{}, resp.StatusCode, fmt.Errorf("failed to decode response %q: %w", body, err)
		}
	}
	return chatResp, resp.StatusCode, nil
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func waitForServer(t *testing.T, url string) {
	client := &http.Client{Timeout: time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server at %s never became healthy", url)
}
