package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DeepSeek calls an OpenAI-compatible chat-completions gateway. The gateway
// base URL is configurable so the same adapter serves any compatible
// endpoint.
type DeepSeek struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewDeepSeek builds the adapter. timeout bounds each completion call.
func NewDeepSeek(apiKey, baseURL string, timeout time.Duration) *DeepSeek {
	return &DeepSeek{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (d *DeepSeek) Name() string { return "deepseek" }

// Close implements Provider. The underlying http.Client holds no resources
// beyond idle connections.
func (d *DeepSeek) Close() error {
	d.http.CloseIdleConnections()
	return nil
}

// chatMessage is one turn in the OpenAI-compatible wire format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate implements Provider over POST /chat/completions.
func (d *DeepSeek) Generate(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]chatMessage, 0, len(req.History)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	for _, t := range req.History {
		msgs = append(msgs, chatMessage{Role: t.Role, Content: t.Content})
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deepseek request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("deepseek read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepseek status %d: %s", resp.StatusCode, truncateErr(raw))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("deepseek decode: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("deepseek api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("deepseek: empty response")
	}

	return &Response{
		Content:    strings.TrimSpace(out.Choices[0].Message.Content),
		TokenCount: out.Usage.CompletionTokens,
		Provider:   d.Name(),
		Model:      req.Model,
	}, nil
}

// truncateErr bounds upstream error bodies included in Go errors.
func truncateErr(b []byte) string {
	const max = 512
	s := string(b)
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
