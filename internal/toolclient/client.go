package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// Client talks to the tool server. Call never returns an empty result: any
// transport failure is rendered as text so the conversation loop always has
// something to append.
type Client struct {
	baseURL   string
	accessKey string
	http      *http.Client
	listTO    time.Duration
	callTO    time.Duration
	logger    zerolog.Logger
}

type Option func(*Client)

// WithTimeouts overrides the catalogue and call timeouts.
func WithTimeouts(list, call time.Duration) Option {
	return func(c *Client) {
		c.listTO = list
		c.callTO = call
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL, accessKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		http:      &http.Client{},
		listTO:    30 * time.Second,
		callTO:    60 * time.Second,
		logger:    logging.Component("toolclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type toolsEnvelope struct {
	Tools []models.ToolSpec `json:"tools"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callEnvelope struct {
	Content []contentBlock `json:"content"`
	Error   string         `json:"error"`
}

// FetchCatalog retrieves the tool catalogue from the tool server.
func (c *Client) FetchCatalog(ctx context.Context) ([]models.ToolSpec, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTO)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, faults.Wrap(faults.SourceUnavailable, err, "build tools request")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.SourceUnavailable, err, "fetch tool catalogue")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, faults.New(faults.SourceUnavailable, "tool catalogue request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope toolsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, faults.Wrap(faults.SourceUnavailable, err, "decode tool catalogue")
	}
	c.logger.Debug().Int("tools", len(envelope.Tools)).Msg("catalogue fetched")
	return envelope.Tools, nil
}

// Call invokes one tool and returns its textual result. Multiple content
// blocks are joined with newlines. Failures and timeouts become result text
// with the matching status, never an error.
func (c *Client) Call(ctx context.Context, callID, name string, arguments map[string]any) models.ToolResult {
	ctx, cancel := context.WithTimeout(ctx, c.callTO)
	defer cancel()

	payload, err := json.Marshal(map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return models.ToolResult{CallID: callID, Status: 500, Text: fmt.Sprintf("Tool execution failed: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call-tool", bytes.NewReader(payload))
	if err != nil {
		return models.ToolResult{CallID: callID, Status: 500, Text: fmt.Sprintf("Tool execution failed: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Warn().Str("tool", name).Msg("tool call timed out")
			return models.ToolResult{CallID: callID, Status: 504, Text: fmt.Sprintf("Tool %s execution timeout", name)}
		}
		return models.ToolResult{CallID: callID, Status: 502, Text: fmt.Sprintf("Tool execution failed: %v", err)}
	}
	defer resp.Body.Close()

	var envelope callEnvelope
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.ToolResult{CallID: callID, Status: resp.StatusCode,
			Text: fmt.Sprintf("Tool execution failed: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	if envelope.Error != "" {
		return models.ToolResult{CallID: callID, Status: resp.StatusCode,
			Text: fmt.Sprintf("Tool execution failed: %d - %s", resp.StatusCode, envelope.Error)}
	}

	texts := make([]string, 0, len(envelope.Content))
	for _, block := range envelope.Content {
		if block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	if len(texts) == 0 {
		return models.ToolResult{CallID: callID, Status: resp.StatusCode,
			Text: fmt.Sprintf("Tool %s returned no content", name)}
	}
	return models.ToolResult{CallID: callID, Status: resp.StatusCode, Text: strings.Join(texts, "\n")}
}

func (c *Client) authorize(req *http.Request) {
	if c.accessKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessKey)
	}
}
