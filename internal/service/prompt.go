package service

import (
	"strings"

	"github.com/skillcapital/coursebot/internal/domain"
)

// systemPrompt is the persona and content policy for the course assistant.
// Answers must come only from retrieved knowledge; anything not found there
// gets the fixed fallback reply.
const systemPrompt = `You are the SkillCapital course assistant.
Answer ONLY using the retrieved knowledge. Do NOT invent anything.
If info is not found, respond exactly: "` + domain.FallbackAnswer + `".

Rules:
- Keep answers concise (2-4 sentences) unless more detail is explicitly requested.
- For course list, output all course titles found in retrieved knowledge, one course per line, numbered starting from 1.
- For curriculum or details, extract items under "Curriculum:" from the relevant course.
- For free courses, say 'Fundamentals of Tech' is free only with another purchase.
- For enrollment or course access:
  - Explain naturally that after payment, LMS credentials are emailed to the student.
  - If there are payment issues, ask to contact hello@skillcapital.ai.
  - If there are LMS access issues, ask to contact hello@skillcapital.ai.
  - Do NOT give step-by-step "Enroll Now" instructions.
- Always pick the most relevant chunk(s) for the user query.
- Provide clickable links in markdown wherever applicable.`

// buildPrompt assembles the bounded completion prompt: persona, prior
// transcript, retrieved knowledge (plus the current course when known), and
// the new question.
func buildPrompt(history []domain.Turn, retrieved []domain.ScoredChunk, currentCourse, query string) []domain.PromptMessage {
	messages := make([]domain.PromptMessage, 0, len(history)+3)
	messages = append(messages, domain.PromptMessage{Role: domain.RoleSystem, Content: systemPrompt})

	for _, turn := range history {
		messages = append(messages, domain.PromptMessage{Role: turn.Role, Content: turn.Text})
	}

	var ctx strings.Builder
	ctx.WriteString("Retrieved knowledge:\n")
	ctx.WriteString(retrievedText(retrieved))
	if currentCourse != "" {
		ctx.WriteString("\n\nCurrent course: ")
		ctx.WriteString(currentCourse)
	}
	messages = append(messages, domain.PromptMessage{Role: domain.RoleSystem, Content: ctx.String()})

	messages = append(messages, domain.PromptMessage{Role: domain.RoleUser, Content: query})
	return messages
}

// retrievedText concatenates chunk contents in relevance order.
func retrievedText(results []domain.ScoredChunk) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}
