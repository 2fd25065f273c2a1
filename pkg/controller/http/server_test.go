package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	server "github.com/reverie-dev/reverie/pkg/controller/http"
	"github.com/reverie-dev/reverie/pkg/repository/memory"
	"github.com/reverie-dev/reverie/pkg/service/backend"
	"github.com/reverie-dev/reverie/pkg/usecase"
)

func setupServer(t *testing.T) *server.Server {
	t.Helper()

	memBackend := backend.NewInMemory()
	uc := usecase.New(memory.New(), memBackend)

	_, err := memBackend.EnsureAssistant(context.Background(), uc.AssistantName(), uc.SystemPrompt())
	gt.NoError(t, err).Required()

	return server.New(uc)
}

func doRequest(t *testing.T, srv *server.Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		gt.NoError(t, json.NewEncoder(&buf).Encode(body)).Required()
	}

	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Reverie-User", user)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func createConversation(t *testing.T, srv *server.Server, user, title string) string {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/api/conversations", user, map[string]string{"title": title})
	gt.Value(t, rec.Code).Equal(http.StatusCreated)

	var body struct {
		ID string `json:"id"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body)).Required()
	gt.String(t, body.ID).NotEqual("")
	return body.ID
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
	gt.Value(t, rec.Body.String()).Equal("OK")
}

func TestAuthRequired(t *testing.T) {
	srv := setupServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/conversations", "", nil)
	gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
}

func TestConversationEndpoints(t *testing.T) {
	srv := setupServer(t)

	id := createConversation(t, srv, "alice", "daily journal")

	rec := doRequest(t, srv, http.MethodGet, "/api/conversations/"+id, "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var conv struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv)).Required()
	gt.Value(t, conv.Title).Equal("daily journal")
	gt.Value(t, conv.Status).Equal("active")

	// Ownership is enforced through the user header
	rec = doRequest(t, srv, http.MethodGet, "/api/conversations/"+id, "bob", nil)
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)

	rec = doRequest(t, srv, http.MethodGet, "/api/conversations", "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var listing struct {
		Conversations []struct {
			ID string `json:"id"`
		} `json:"conversations"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing)).Required()
	gt.Array(t, listing.Conversations).Length(1)

	rec = doRequest(t, srv, http.MethodPost, "/api/conversations/"+id+"/archive", "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusNoContent)

	rec = doRequest(t, srv, http.MethodDelete, "/api/conversations/"+id, "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusNoContent)

	rec = doRequest(t, srv, http.MethodGet, "/api/conversations/"+id, "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)
}

func TestPostMessage(t *testing.T) {
	srv := setupServer(t)
	id := createConversation(t, srv, "alice", "daily journal")

	rec := doRequest(t, srv, http.MethodPost, "/api/conversations/"+id+"/messages", "alice",
		map[string]string{"content": "I went for a long walk today"})
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var resp struct {
		Content         string `json:"content"`
		ShouldTerminate bool   `json:"should_terminate"`
		Debug           *struct {
			ResponseStrategy string `json:"response_strategy"`
		} `json:"debug"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
	gt.String(t, resp.Content).NotEqual("")
	gt.Value(t, resp.ShouldTerminate).Equal(false)
	gt.Value(t, resp.Debug != nil).Equal(true)
	gt.String(t, resp.Debug.ResponseStrategy).NotEqual("")

	// Both sides of the exchange are persisted
	rec = doRequest(t, srv, http.MethodGet, "/api/conversations/"+id+"/messages", "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var listing struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing)).Required()
	gt.Array(t, listing.Messages).Length(2)
	gt.Value(t, listing.Messages[0].Role).Equal("assistant")
	gt.Value(t, listing.Messages[1].Role).Equal("user")
	gt.Value(t, listing.Messages[1].Content).Equal("I went for a long walk today")
}

func TestPostMessageValidation(t *testing.T) {
	srv := setupServer(t)
	id := createConversation(t, srv, "alice", "daily journal")

	rec := doRequest(t, srv, http.MethodPost, "/api/conversations/"+id+"/messages", "alice",
		map[string]string{"content": ""})
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
}

func TestPostMessageUnknownConversation(t *testing.T) {
	srv := setupServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/conversations/conv-missing/messages", "alice",
		map[string]string{"content": "hello"})
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)
}

func TestStartConversation(t *testing.T) {
	srv := setupServer(t)
	id := createConversation(t, srv, "alice", "daily journal")

	rec := doRequest(t, srv, http.MethodPost, "/api/conversations/"+id+"/start", "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var resp struct {
		Content string `json:"content"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
	gt.String(t, resp.Content).NotEqual("")

	// Only the greeting is persisted
	rec = doRequest(t, srv, http.MethodGet, "/api/conversations/"+id+"/messages", "alice", nil)
	var listing struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing)).Required()
	gt.Array(t, listing.Messages).Length(1)
	gt.Value(t, listing.Messages[0].Role).Equal("assistant")
}

func TestMemoryEndpoints(t *testing.T) {
	srv := setupServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/memories/stats", "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var stats struct {
		TotalMemories int `json:"total_memories"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats)).Required()
	gt.Value(t, stats.TotalMemories).Equal(0)

	rec = doRequest(t, srv, http.MethodGet, "/api/memories/search?q=anything", "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	rec = doRequest(t, srv, http.MethodGet, "/api/memories", "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
}

func TestInvalidStatusFilter(t *testing.T) {
	srv := setupServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/conversations?status=bogus", "alice", nil)
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
}
