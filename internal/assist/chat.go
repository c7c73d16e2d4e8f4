package assist

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	pkgllm "github.com/HerbHall/netsage/pkg/llm"
	"github.com/HerbHall/netsage/pkg/models"
	"go.uber.org/zap"
)

// ChatTurn is one prior exchange in the conversation.
type ChatTurn struct {
	Role    string `json:"role" example:"user"` // "user" or "assistant"
	Content string `json:"content" example:"ping the NAS"`
}

// ChatRequest is the body for POST /assist/chat.
// @Description A question about the monitored network plus prior conversation turns.
type ChatRequest struct {
	Message string     `json:"message" example:"which devices are offline?"`
	History []ChatTurn `json:"history,omitempty"`
}

// ChatResponse is the assistant's answer.
type ChatResponse struct {
	Reply string `json:"reply"`
	Model string `json:"model,omitempty"`
}

// handleChat answers a question using monitoring data and the LLM provider.
//
//	@Summary		Chat with the assistant
//	@Description	Builds a monitoring context for the question and asks the configured LLM.
//	@Tags			assist
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request body ChatRequest true "Question and history"
//	@Success		200 {object} ChatResponse
//	@Failure		400 {object} models.APIProblem
//	@Failure		503 {object} models.APIProblem
//	@Router			/assist/chat [post]
func (m *Module) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := m.decodeChatRequest(w, r)
	if !ok {
		return
	}

	messages, err := m.buildMessages(r.Context(), req)
	if err != nil {
		m.logger.Error("context build failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	lp, err := m.llmProvider()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp, err := lp.Provider().Chat(r.Context(), messages)
	if err != nil {
		m.logger.Error("llm chat failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "LLM request failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Reply: resp.Content,
		Model: resp.Model,
	})
}

// handleSnapshot returns the raw aggregated fleet snapshot.
//
//	@Summary		Fleet snapshot
//	@Description	Returns the aggregated monitoring snapshot across all configured sources.
//	@Tags			assist
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {object} models.MonitoringSnapshot
//	@Failure		503 {object} models.APIProblem
//	@Router			/assist/snapshot [get]
func (m *Module) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, _, err := m.currentSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (m *Module) decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return req, false
	}
	if len(req.History) > m.cfg.HistoryLimit {
		req.History = req.History[len(req.History)-m.cfg.HistoryLimit:]
	}
	return req, true
}

// buildMessages assembles the LLM conversation: a system message carrying
// the monitoring context, then the prior turns, then the question.
func (m *Module) buildMessages(ctx context.Context, req ChatRequest) ([]pkgllm.Message, error) {
	snap, controllers, err := m.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	// Referent resolution ("ping it") scans every prior turn, newest last.
	// Assistant turns count: the host a pronoun points at is often one the
	// assistant named, not the user.
	history := make([]string, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, turn.Content)
	}

	contextBlock := m.formatterFor(controllers).Build(ctx, snap, req.Message, history)

	messages := make([]pkgllm.Message, 0, len(req.History)+2)
	messages = append(messages, pkgllm.Message{
		Role:    pkgllm.RoleSystem,
		Content: m.cfg.SystemPrompt + "\n\n" + contextBlock,
	})
	for _, turn := range req.History {
		role := pkgllm.RoleUser
		if turn.Role == pkgllm.RoleAssistant {
			role = pkgllm.RoleAssistant
		}
		messages = append(messages, pkgllm.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, pkgllm.Message{Role: pkgllm.RoleUser, Content: req.Message})
	return messages, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIProblem{
		Type:   "https://netsage.com/problems/assist-error",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}
