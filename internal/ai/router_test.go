package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heftcoder/pkg/models"
)

type stubClient struct {
	provider AIProvider
	reply    string
	err      error

	mu    sync.Mutex
	calls []*AIRequest
	usageTracker
}

func newStub(p AIProvider, reply string, err error) *stubClient {
	s := &stubClient{provider: p, reply: reply, err: err}
	s.init(p)
	return s
}

func (s *stubClient) Generate(ctx context.Context, req *AIRequest) (*AIResponse, error) {
	s.mu.Lock()
	clone := *req
	s.calls = append(s.calls, &clone)
	s.mu.Unlock()
	if s.err != nil {
		s.recordError()
		return nil, s.err
	}
	s.record(10, 0)
	return &AIResponse{ID: req.ID, Provider: s.provider, Model: req.Model, Content: s.reply}, nil
}

func (s *stubClient) GetProvider() AIProvider          { return s.provider }
func (s *stubClient) Health(ctx context.Context) error { return nil }

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestRouterUsesRoleBinding(t *testing.T) {
	anthropic := newStub(ProviderAnthropic, "from claude", nil)
	openai := newStub(ProviderOpenAI, "from gpt", nil)

	cfg := DefaultRouterConfig()
	cfg.Roles[models.RoleFrontend] = RoleBinding{Provider: ProviderOpenAI, Model: "gpt-test"}
	r := NewAIRouter(cfg, nil, anthropic, openai)

	out, err := r.CallAgent(context.Background(), models.RoleFrontend, "sys", "build it")
	require.NoError(t, err)
	assert.Equal(t, "from gpt", out)
	require.Equal(t, 1, openai.callCount())
	assert.Equal(t, "gpt-test", openai.calls[0].Model)
	assert.Equal(t, "sys", openai.calls[0].System)

	// Unbound roles follow the priority order.
	out, err = r.CallAgent(context.Background(), models.RoleArchitect, "", "plan")
	require.NoError(t, err)
	assert.Equal(t, "from claude", out)
}

func TestRouterFallsBackOnError(t *testing.T) {
	broken := newStub(ProviderAnthropic, "", errors.New("overloaded"))
	backup := newStub(ProviderOpenAI, "backup reply", nil)

	cfg := DefaultRouterConfig()
	cfg.Roles[models.RoleBackend] = RoleBinding{Provider: ProviderAnthropic, Model: "claude-x"}
	r := NewAIRouter(cfg, nil, broken, backup)

	out, err := r.CallAgent(context.Background(), models.RoleBackend, "", "p")
	require.NoError(t, err)
	assert.Equal(t, "backup reply", out)
	assert.Equal(t, 1, broken.callCount())
	// Provider specific model is not carried to the fallback.
	assert.Empty(t, backup.calls[0].Model)
	assert.Equal(t, int64(1), broken.GetUsage().ErrorCount)
}

func TestRouterAllProvidersFail(t *testing.T) {
	r := NewAIRouter(nil, nil, newStub(ProviderGemini, "", errors.New("down")))
	_, err := r.CallAgent(context.Background(), models.RoleQA, "", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}

func TestRouterNoProviders(t *testing.T) {
	r := NewAIRouter(nil, nil)
	_, err := r.CallAgent(context.Background(), models.RoleQA, "", "p")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestRouterRateLimit(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.RateLimits = map[AIProvider]int{ProviderOllama: 1}
	r := NewAIRouter(cfg, nil, newStub(ProviderOllama, "ok", nil))

	_, err := r.CallAgent(context.Background(), models.RoleFrontend, "", "p")
	require.NoError(t, err)
	_, err = r.CallAgent(context.Background(), models.RoleFrontend, "", "p")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestStreamAgentReportsFullReplyForNonStreamingProvider(t *testing.T) {
	r := NewAIRouter(nil, nil, newStub(ProviderAnthropic, "whole reply", nil))

	var seen []string
	out, err := r.StreamAgent(context.Background(), models.RoleFrontend, "", "p", func(s string) {
		seen = append(seen, s)
	})
	require.NoError(t, err)
	assert.Equal(t, "whole reply", out)
	assert.Equal(t, []string{"whole reply"}, seen)
}

func TestAgentAPIClient(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":"hello from agent","usage":{"total_tokens":42}}`))
	}))
	defer srv.Close()

	c := NewAgentAPIClient(srv.URL+"/", "secret")
	resp, err := c.Generate(context.Background(), &AIRequest{Role: models.RoleArchitect, AgentID: "arch-1", Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "/agents/arch-1/chat", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "hello from agent", resp.Content)
	assert.Equal(t, int64(42), c.GetUsage().TotalTokens)
}

func TestAgentAPIClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewAgentAPIClient(srv.URL, "")
	_, err := c.Generate(context.Background(), &AIRequest{Role: models.RoleFrontend, Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int64(1), c.GetUsage().ErrorCount)
}

func TestExtractReply(t *testing.T) {
	assert.Equal(t, "a", extractReply([]byte(`{"response":"a"}`)))
	assert.Equal(t, "b", extractReply([]byte(`{"choices":[{"message":{"content":"b"}}]}`)))
	assert.Equal(t, "c", extractReply([]byte(`{"message":{"content":"c"}}`)))
	assert.Equal(t, "plain text", extractReply([]byte("plain text")))
}
