package backend

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
	"github.com/reverie-dev/reverie/pkg/utils/safe"
	"golang.org/x/sync/singleflight"
)

// Client talks to the remote memory backend over its REST API. All
// methods map HTTP 404 to types.ErrNotFound and transport or 5xx
// failures to types.ErrBackendUnavailable so callers can branch on
// sentinel errors without knowing about HTTP.
type Client struct {
	http *resty.Client

	mu           sync.RWMutex
	assistantID  types.AssistantID
	configuredID types.AssistantID

	ensureGroup singleflight.Group
}

var _ interfaces.MemoryBackend = &Client{}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithAssistantID seeds a previously issued assistant id from
// configuration. EnsureAssistant verifies it against the backend before
// adopting it.
func WithAssistantID(id types.AssistantID) ClientOption {
	return func(c *Client) {
		c.configuredID = id
	}
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	if apiKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+apiKey)
	}

	c := &Client{http: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type assistantBody struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

type threadBody struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type messageBody struct {
	Content      string `json:"content"`
	MemoryMode   string `json:"memory_mode"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type replyBody struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type memoryBody struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Relevance float64        `json:"relevance"`
	Score     float64        `json:"score"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type memoriesBody struct {
	Memories []memoryBody `json:"memories"`
}

type memoryStatsBody struct {
	TotalMemories int `json:"total_memories"`
}

// wrapResponse maps a resty outcome to the sentinel error contract
func wrapResponse(resp *resty.Response, err error, msg string, vars ...goerr.Option) error {
	if err != nil {
		vars = append(vars, goerr.V("cause", err.Error()))
		return goerr.Wrap(types.ErrBackendUnavailable, msg, vars...)
	}
	if resp.StatusCode() == 404 {
		return goerr.Wrap(types.ErrNotFound, msg, vars...)
	}
	if resp.IsError() {
		vars = append(vars,
			goerr.V("status", resp.StatusCode()),
			goerr.V("body", string(resp.Body())))
		return goerr.Wrap(types.ErrBackendUnavailable, msg, vars...)
	}
	return nil
}

// EnsureAssistant resolves the assistant id exactly once per process,
// verifying any configured id before falling back to creation.
// Concurrent callers share a single in-flight resolution.
func (c *Client) EnsureAssistant(ctx context.Context, name, systemPrompt string) (types.AssistantID, error) {
	c.mu.RLock()
	if c.assistantID != "" {
		id := c.assistantID
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.ensureGroup.Do("ensure-assistant", func() (any, error) {
		c.mu.RLock()
		resolved := c.assistantID
		configured := c.configuredID
		c.mu.RUnlock()
		if resolved != "" {
			return resolved, nil
		}

		if configured != "" {
			ok, err := c.assistantExists(ctx, configured)
			if err != nil {
				return types.AssistantID(""), err
			}
			if ok {
				c.adopt(configured)
				return configured, nil
			}
			logging.From(ctx).Warn("configured assistant no longer exists, creating a new one",
				"assistantID", configured)
		}

		id, err := c.createAssistant(ctx, name, systemPrompt)
		if err != nil {
			return types.AssistantID(""), err
		}
		c.adopt(id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(types.AssistantID), nil
}

func (c *Client) adopt(id types.AssistantID) {
	c.mu.Lock()
	c.assistantID = id
	c.mu.Unlock()
}

func (c *Client) assistantExists(ctx context.Context, id types.AssistantID) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v1/assistants/" + string(id))
	if err != nil {
		return false, goerr.Wrap(types.ErrBackendUnavailable, "failed to verify assistant",
			goerr.V("assistantID", id), goerr.V("cause", err.Error()))
	}
	if resp.StatusCode() == 404 {
		return false, nil
	}
	if resp.IsError() {
		return false, goerr.Wrap(types.ErrBackendUnavailable, "failed to verify assistant",
			goerr.V("assistantID", id), goerr.V("status", resp.StatusCode()))
	}
	return true, nil
}

func (c *Client) createAssistant(ctx context.Context, name, systemPrompt string) (types.AssistantID, error) {
	var body assistantBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&assistantBody{Name: name, SystemPrompt: systemPrompt}).
		SetResult(&body).
		Post("/v1/assistants")
	if err := wrapResponse(resp, err, "failed to create assistant", goerr.V("name", name)); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", goerr.Wrap(types.ErrBackendUnavailable, "backend returned empty assistant id")
	}
	return types.AssistantID(body.ID), nil
}

func (c *Client) AssistantID() (types.AssistantID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.assistantID == "" {
		return "", goerr.Wrap(types.ErrFailedPrecondition, "assistant not initialized")
	}
	return c.assistantID, nil
}

// requireAssistant is the guard for operations that need a resolved id
func (c *Client) requireAssistant() (types.AssistantID, error) {
	return c.AssistantID()
}

func (c *Client) CreateThread(ctx context.Context) (types.ThreadID, error) {
	assistantID, err := c.requireAssistant()
	if err != nil {
		return "", err
	}

	var body threadBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"assistant_id": string(assistantID)}).
		SetResult(&body).
		Post("/v1/threads")
	if err := wrapResponse(resp, err, "failed to create thread"); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", goerr.Wrap(types.ErrBackendUnavailable, "backend returned empty thread id")
	}
	return types.ThreadID(body.ID), nil
}

func (c *Client) DeleteThread(ctx context.Context, id types.ThreadID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/v1/threads/" + string(id))
	return wrapResponse(resp, err, "failed to delete thread", goerr.V("threadID", id))
}

func (c *Client) GetThread(ctx context.Context, id types.ThreadID) (*model.Thread, error) {
	var body threadBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/v1/threads/" + string(id))
	if err := wrapResponse(resp, err, "failed to get thread", goerr.V("threadID", id)); err != nil {
		return nil, err
	}
	return &model.Thread{ID: types.ThreadID(body.ID), CreatedAt: body.CreatedAt}, nil
}

func (c *Client) SendMessage(ctx context.Context, msg *model.BackendMessage) (*model.BackendReply, error) {
	if msg == nil {
		return nil, goerr.New("message is nil")
	}
	if _, err := c.requireAssistant(); err != nil {
		return nil, err
	}

	var body replyBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&messageBody{
			Content:      msg.Content,
			MemoryMode:   msg.MemoryMode.String(),
			SystemPrompt: msg.SystemPrompt,
		}).
		SetResult(&body).
		Post(fmt.Sprintf("/v1/threads/%s/messages", msg.ThreadID))
	if err := wrapResponse(resp, err, "failed to send message", goerr.V("threadID", msg.ThreadID)); err != nil {
		return nil, err
	}

	role := types.Role(body.Role)
	if !role.IsValid() {
		role = types.RoleAssistant
	}
	return &model.BackendReply{Content: body.Content, Role: role}, nil
}

// StreamMessage consumes the backend's SSE stream. Each "data:" line
// becomes one chunk; the stream ends on "[DONE]" or EOF.
func (c *Client) StreamMessage(ctx context.Context, msg *model.BackendMessage) (<-chan string, error) {
	if msg == nil {
		return nil, goerr.New("message is nil")
	}
	if _, err := c.requireAssistant(); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&messageBody{
			Content:      msg.Content,
			MemoryMode:   msg.MemoryMode.String(),
			SystemPrompt: msg.SystemPrompt,
		}).
		SetDoNotParseResponse(true).
		Post(fmt.Sprintf("/v1/threads/%s/messages/stream", msg.ThreadID))
	if err != nil {
		return nil, goerr.Wrap(types.ErrBackendUnavailable, "failed to open message stream",
			goerr.V("threadID", msg.ThreadID), goerr.V("cause", err.Error()))
	}
	if resp.StatusCode() == 404 {
		safe.Close(ctx, resp.RawBody())
		return nil, goerr.Wrap(types.ErrNotFound, "thread not found", goerr.V("threadID", msg.ThreadID))
	}
	if resp.IsError() {
		safe.Close(ctx, resp.RawBody())
		return nil, goerr.Wrap(types.ErrBackendUnavailable, "failed to open message stream",
			goerr.V("threadID", msg.ThreadID), goerr.V("status", resp.StatusCode()))
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		defer safe.Close(ctx, resp.RawBody())

		scanner := bufio.NewScanner(resp.RawBody())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}
			select {
			case ch <- data:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logging.From(ctx).Warn("message stream ended with error",
				"threadID", msg.ThreadID, "error", err)
		}
	}()
	return ch, nil
}

func (c *Client) Memories(ctx context.Context, limit int) ([]*model.RetrievedMemory, error) {
	assistantID, err := c.requireAssistant()
	if err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx)
	if limit > 0 {
		req = req.SetQueryParam("limit", fmt.Sprintf("%d", limit))
	}

	var body memoriesBody
	resp, err := req.
		SetResult(&body).
		Get(fmt.Sprintf("/v1/assistants/%s/memories", assistantID))
	if err := wrapResponse(resp, err, "failed to list memories"); err != nil {
		return nil, err
	}

	result := make([]*model.RetrievedMemory, 0, len(body.Memories))
	for _, m := range body.Memories {
		relevance := m.Relevance
		if relevance == 0 {
			relevance = m.Score
		}
		result = append(result, &model.RetrievedMemory{
			ID:        types.MemoryID(m.ID),
			Content:   m.Content,
			Relevance: relevance,
			CreatedAt: m.CreatedAt,
		})
	}
	return result, nil
}

func (c *Client) MemoryStats(ctx context.Context) (*model.MemoryStats, error) {
	assistantID, err := c.requireAssistant()
	if err != nil {
		return nil, err
	}

	var body memoryStatsBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("/v1/assistants/%s/memories/stats", assistantID))
	if err := wrapResponse(resp, err, "failed to get memory stats"); err != nil {
		return nil, err
	}
	return &model.MemoryStats{TotalMemories: body.TotalMemories}, nil
}

func (c *Client) CreateMemory(ctx context.Context, content string, metadata map[string]any) (*model.Memory, error) {
	assistantID, err := c.requireAssistant()
	if err != nil {
		return nil, err
	}

	var body memoryBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"content": content, "metadata": metadata}).
		SetResult(&body).
		Post(fmt.Sprintf("/v1/assistants/%s/memories", assistantID))
	if err := wrapResponse(resp, err, "failed to create memory"); err != nil {
		return nil, err
	}

	return &model.Memory{
		ID:        types.MemoryID(body.ID),
		Content:   body.Content,
		Score:     body.Score,
		CreatedAt: body.CreatedAt,
		Metadata:  body.Metadata,
	}, nil
}

func (c *Client) DeleteMemory(ctx context.Context, id types.MemoryID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/v1/memories/" + string(id))
	return wrapResponse(resp, err, "failed to delete memory", goerr.V("memoryID", id))
}
