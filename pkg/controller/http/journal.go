package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/utils/errutil"
	"github.com/reverie-dev/reverie/pkg/utils/safe"
)

type conversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type conversationSummaryResponse struct {
	ID            string     `json:"id"`
	Title         string     `json:"title,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

type messageResponse struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type agentDebugResponse struct {
	ExtractedMemoriesCount int    `json:"extracted_memories_count"`
	RetrievedContextCount  int    `json:"retrieved_context_count"`
	ResponseStrategy       string `json:"response_strategy"`
}

type agentResponse struct {
	Content           string              `json:"content"`
	Timestamp         time.Time           `json:"timestamp"`
	ShouldTerminate   bool                `json:"should_terminate"`
	TerminationReason string              `json:"termination_reason,omitempty"`
	Debug             *agentDebugResponse `json:"debug,omitempty"`
}

type memoryResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Relevance float64   `json:"relevance"`
	CreatedAt time.Time `json:"created_at"`
}

func toConversationResponse(c *model.Conversation) *conversationResponse {
	return &conversationResponse{
		ID:        string(c.ID),
		Title:     c.Title,
		Status:    c.Status.String(),
		CreatedAt: c.CreatedAt,
	}
}

func toAgentResponse(r *model.AgentResponse) *agentResponse {
	resp := &agentResponse{
		Content:           r.Content,
		Timestamp:         r.Timestamp,
		ShouldTerminate:   r.ShouldTerminate,
		TerminationReason: r.TerminationReason.String(),
	}
	if r.Planning != nil {
		resp.Debug = &agentDebugResponse{
			ExtractedMemoriesCount: len(r.Planning.ExtractedMemories),
			RetrievedContextCount:  len(r.Planning.RetrievedContext),
			ResponseStrategy:       r.Planning.ResponseStrategy.String(),
		}
	}
	return resp
}

// respondError maps domain sentinel errors onto HTTP status codes
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}
	errutil.HandleHTTP(r.Context(), w, err, status)
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(r.Context(), w, data)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	conv, err := s.uc.CreateConversation(r.Context(), userIDFrom(r.Context()), req.Title)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, toConversationResponse(conv))
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	status := types.ConversationStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		errutil.HandleHTTP(r.Context(), w, goerr.New("invalid status", goerr.V("status", status)), http.StatusBadRequest)
		return
	}

	summaries, cursor, err := s.uc.ListConversations(r.Context(), userIDFrom(r.Context()),
		status, queryInt(r, "limit", 0), r.URL.Query().Get("cursor"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	items := make([]*conversationSummaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		items = append(items, &conversationSummaryResponse{
			ID:            string(sum.ID),
			Title:         sum.Title,
			Status:        sum.Status.String(),
			CreatedAt:     sum.CreatedAt,
			MessageCount:  sum.MessageCount,
			LastMessageAt: sum.LastMessageAt,
		})
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"conversations": items,
		"next_cursor":   cursor,
	})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id := types.ConversationID(chi.URLParam(r, "conversationID"))

	conv, err := s.uc.GetConversation(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toConversationResponse(conv))
}

func (s *Server) archiveConversation(w http.ResponseWriter, r *http.Request) {
	id := types.ConversationID(chi.URLParam(r, "conversationID"))

	if err := s.uc.ArchiveConversation(r.Context(), userIDFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := types.ConversationID(chi.URLParam(r, "conversationID"))

	if err := s.uc.DeleteConversation(r.Context(), userIDFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startConversation(w http.ResponseWriter, r *http.Request) {
	id := types.ConversationID(chi.URLParam(r, "conversationID"))

	resp, err := s.uc.StartConversation(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toAgentResponse(resp))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	id := types.ConversationID(chi.URLParam(r, "conversationID"))

	messages, cursor, err := s.uc.ListMessages(r.Context(), userIDFrom(r.Context()), id,
		queryInt(r, "limit", 0), r.URL.Query().Get("cursor"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	items := make([]*messageResponse, 0, len(messages))
	for _, msg := range messages {
		items = append(items, &messageResponse{
			ID:        string(msg.ID),
			Role:      msg.Role.String(),
			Content:   msg.Content,
			Metadata:  msg.Metadata,
			CreatedAt: msg.CreatedAt,
		})
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"messages":    items,
		"next_cursor": cursor,
	})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	id := types.ConversationID(chi.URLParam(r, "conversationID"))

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		errutil.HandleHTTP(r.Context(), w, goerr.New("content is required"), http.StatusBadRequest)
		return
	}

	resp, err := s.uc.ProcessMessage(r.Context(), userIDFrom(r.Context()), id, req.Content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toAgentResponse(resp))
}

func (s *Server) listMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := s.uc.Memories(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{
		"memories": toMemoryResponses(memories),
	})
}

func (s *Server) searchMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := s.uc.SearchMemories(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 0))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{
		"memories": toMemoryResponses(memories),
	})
}

func (s *Server) memoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.uc.MemoryStats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{
		"total_memories": stats.TotalMemories,
	})
}

func toMemoryResponses(memories []*model.RetrievedMemory) []*memoryResponse {
	items := make([]*memoryResponse, 0, len(memories))
	for _, m := range memories {
		items = append(items, &memoryResponse{
			ID:        string(m.ID),
			Content:   m.Content,
			Relevance: m.Relevance,
			CreatedAt: m.CreatedAt,
		})
	}
	return items
}
