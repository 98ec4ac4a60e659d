package service

import (
	"context"
	"log"
	"strings"

	"github.com/skillcapital/coursebot/internal/domain"
	"github.com/skillcapital/coursebot/internal/telemetry"
)

// ChunkRetriever returns the most relevant chunks for a query.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.ScoredChunk, error)
}

// CompletionClient delegates the assembled prompt to the completion capability.
type CompletionClient interface {
	Complete(ctx context.Context, messages []domain.PromptMessage) (domain.CompletionResult, error)
}

// SessionStore owns per-session conversation state. Transcript mutation goes
// only through AppendExchange.
type SessionStore interface {
	GetOrCreate(sessionID string) string
	History(sessionID string) []domain.Turn
	CurrentCourse(sessionID string) string
	SetCurrentCourse(sessionID, course string)
	AppendExchange(sessionID, userText, assistantText string)
}

// Advisor runs the answer pipeline: resolve session, retrieve, assemble,
// complete, normalize, persist.
type Advisor struct {
	retriever  ChunkRetriever
	completion CompletionClient
	sessions   SessionStore
}

// NewAdvisor creates a new Advisor instance.
func NewAdvisor(retriever ChunkRetriever, completion CompletionClient, sessions SessionStore) *Advisor {
	return &Advisor{
		retriever:  retriever,
		completion: completion,
		sessions:   sessions,
	}
}

// Answer handles one chat request and returns the normalized answer text and
// the resolved session id. Internal failures never surface to the caller;
// they become the fixed fallback reply.
func (a *Advisor) Answer(ctx context.Context, query, sessionID string) (string, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "Advisor.Answer", telemetry.SpanAttributes{
		SessionID: sessionID,
		Operation: "answer",
	})
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return "", sessionID, domain.ErrEmptyQuery
	}

	sid := a.sessions.GetOrCreate(sessionID)

	results, err := a.retriever.Retrieve(ctx, query)
	if err != nil {
		log.Printf("advisor: retrieval failed for session %s: %v", sid, err)
		telemetry.CaptureError(ctx, err)
		span.SetError(err)
		a.sessions.AppendExchange(sid, query, domain.FallbackAnswer)
		return domain.FallbackAnswer, sid, nil
	}

	// No grounding means no completion call: the fallback is the answer.
	if len(results) == 0 {
		a.sessions.AppendExchange(sid, query, domain.FallbackAnswer)
		return domain.FallbackAnswer, sid, nil
	}

	a.trackCurrentCourse(sid, query, results)

	history := a.sessions.History(sid)
	prompt := buildPrompt(history, results, a.sessions.CurrentCourse(sid), query)

	res, err := a.completion.Complete(ctx, prompt)
	if err != nil {
		log.Printf("advisor: completion failed for session %s: %v", sid, err)
		telemetry.CaptureError(ctx, err)
		span.SetError(err)
		a.sessions.AppendExchange(sid, query, domain.FallbackAnswer)
		return domain.FallbackAnswer, sid, nil
	}

	answer := domain.ExtractAnswer(res, domain.FallbackAnswer)
	a.sessions.AppendExchange(sid, query, answer)
	return answer, sid, nil
}

// trackCurrentCourse pins the session to a course when a retrieved chunk's
// label appears in the query, so vague follow-ups resolve against it.
func (a *Advisor) trackCurrentCourse(sid, query string, results []domain.ScoredChunk) {
	lowered := strings.ToLower(query)
	for _, r := range results {
		course := r.Chunk.Course
		if course == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(course)) {
			a.sessions.SetCurrentCourse(sid, course)
			return
		}
	}
}
