// Package callback implements the bot-manager lifecycle callback client
// (C9): best-effort HTTP POSTs reporting joining/awaiting_admission/active/
// leaving/exited status. Grounded on the teacher's
// pkg/providers/llm/openai.go plain net/http JSON-POST client pattern.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

// Client posts bot lifecycle events to BotConfig.BotManagerCallbackURL.
type Client struct {
	httpClient *http.Client
}

// New builds a Client with the given request timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

type statusPayload struct {
	ConnectionID string     `json:"connection_id"`
	ContainerID  string     `json:"container_id,omitempty"`
	Status       string     `json:"status"`
	Timestamp    string     `json:"timestamp"`
	Outcome      string     `json:"outcome,omitempty"`
	Error        *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message  string `json:"message"`
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`
}

func (c *Client) Joining(ctx context.Context, cfg orchestrator.BotConfig) error {
	return c.post(ctx, cfg, "joining", c.payload(cfg, "joining"))
}

func (c *Client) AwaitingAdmission(ctx context.Context, cfg orchestrator.BotConfig) error {
	return c.post(ctx, cfg, "awaiting_admission", c.payload(cfg, "awaiting_admission"))
}

func (c *Client) Active(ctx context.Context, cfg orchestrator.BotConfig) error {
	return c.post(ctx, cfg, "started", c.payload(cfg, "active"))
}

func (c *Client) Leaving(ctx context.Context, cfg orchestrator.BotConfig) error {
	return c.post(ctx, cfg, "leaving", c.payload(cfg, "leaving"))
}

func (c *Client) Exited(ctx context.Context, cfg orchestrator.BotConfig, result orchestrator.Result) error {
	payload := c.payload(cfg, "exited")
	payload.Outcome = string(result.Outcome)
	if result.Detail != nil {
		payload.Error = &errorBody{
			Message:  result.Detail.Message,
			Name:     result.Detail.Name,
			Platform: string(result.Detail.Platform),
		}
	}
	return c.post(ctx, cfg, "exited", payload)
}

// payload builds the shared "minimum fields" body per spec.md §4.9:
// connection_id, container_id, status and an ISO-8601 timestamp.
func (c *Client) payload(cfg orchestrator.BotConfig, status string) statusPayload {
	return statusPayload{
		ConnectionID: cfg.ConnectionID,
		ContainerID:  cfg.ContainerName,
		Status:       status,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}

// post sends payload to the route derived from BotManagerCallbackURL by
// suffix substitution, e.g. "https://manager/bots/42" + "leaving" ->
// "https://manager/bots/42/leaving", per spec.md §4.9/§6: each lifecycle
// event is a distinct route, not one endpoint disambiguated by status.
func (c *Client) post(ctx context.Context, cfg orchestrator.BotConfig, suffix string, payload statusPayload) error {
	if cfg.BotManagerCallbackURL == "" {
		return nil
	}
	url := strings.TrimRight(cfg.BotManagerCallbackURL, "/") + "/" + suffix

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callback request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

var _ orchestrator.CallbackClient = (*Client)(nil)
