package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// replyPaths are the response fields hosted agent endpoints put their text in.
var replyPaths = []string{
	"response",
	"output",
	"content",
	"message.content",
	"message",
	"choices.0.message.content",
	"data.response",
}

// AgentAPIClient calls a hosted agent service where each agent role is a
// pre-configured remote agent addressed by id.
type AgentAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	usageTracker
}

type agentAPIRequest struct {
	Message string `json:"message"`
	System  string `json:"system,omitempty"`
	Model   string `json:"model,omitempty"`
}

// NewAgentAPIClient creates a client for the service at baseURL.
func NewAgentAPIClient(baseURL, apiKey string) *AgentAPIClient {
	c := &AgentAPIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  normalizeAPIKey(apiKey),
		httpClient: &http.Client{
			Timeout: 180 * time.Second,
		},
	}
	c.init(ProviderAgentAPI)
	return c
}

// Generate implements AIClient. req.AgentID selects the remote agent; the
// role name is used when it is empty.
func (c *AgentAPIClient) Generate(ctx context.Context, req *AIRequest) (*AIResponse, error) {
	start := time.Now()

	agentID := req.AgentID
	if agentID == "" {
		agentID = string(req.Role)
	}
	if agentID == "" {
		return nil, errors.New("agent api request without agent id")
	}

	body, err := json.Marshal(agentAPIRequest{Message: req.Prompt, System: req.System, Model: req.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal agent request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/agents/%s/chat", c.baseURL, url.PathEscape(agentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordError()
		return nil, fmt.Errorf("call agent %s: %w", agentID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.recordError()
		return nil, fmt.Errorf("read agent %s response: %w", agentID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.recordError()
		return nil, fmt.Errorf("agent %s returned status %d: %s", agentID, resp.StatusCode, truncate(string(raw), 200))
	}

	content := extractReply(raw)
	tokens := int(gjson.GetBytes(raw, "usage.total_tokens").Int())
	c.record(tokens, time.Since(start))

	return &AIResponse{
		ID:        req.ID,
		Provider:  ProviderAgentAPI,
		Model:     agentID,
		Content:   content,
		Usage:     &Usage{TotalTokens: tokens},
		Duration:  time.Since(start),
		CreatedAt: time.Now(),
	}, nil
}

// extractReply finds the reply text in a JSON body. Non-JSON bodies are
// returned verbatim.
func extractReply(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return string(raw)
	}
	for _, path := range replyPaths {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String {
			return v.String()
		}
	}
	return string(raw)
}

// GetProvider implements AIClient.
func (c *AgentAPIClient) GetProvider() AIProvider { return ProviderAgentAPI }

// Health checks the service health endpoint.
func (c *AgentAPIClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent api unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("agent api unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
