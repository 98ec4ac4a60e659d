package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/skillcapital/coursebot/internal/api"
)

// AdvisorService runs the answer pipeline for one chat message.
type AdvisorService interface {
	Answer(ctx context.Context, query, sessionID string) (string, string, error)
}

// ChatHandler serves the chat endpoint.
type ChatHandler struct {
	svc AdvisorService
}

func NewChatHandler(svc AdvisorService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// Chat handles POST /chat. Empty messages are rejected before the pipeline;
// the reply's markdown links are rendered as anchors for the widget.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, sessionID, err := h.svc.Answer(r.Context(), req.Message, req.SessionID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, ChatResponse{
		Reply:     renderLinks(reply),
		SessionID: sessionID,
	})
}

var markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// renderLinks converts markdown links [text](url) to clickable anchors.
// Link text from retrieved knowledge is never discarded.
func renderLinks(text string) string {
	return markdownLink.ReplaceAllString(text, `<a href="$2" target="_blank">$1</a>`)
}
