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

// hfDefaultModel answers wildcard requests when the caller's model name is
// not an HF repo id.
const hfDefaultModel = "HuggingFaceH4/zephyr-7b-beta"

// HuggingFace is the last-resort fallback provider, driving the hosted
// inference API's text-generation task. It flattens the chat history into a
// single prompt because the task API has no native chat shape.
type HuggingFace struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewHuggingFace builds the fallback adapter.
func NewHuggingFace(apiKey, baseURL string, timeout time.Duration) *HuggingFace {
	return &HuggingFace{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (h *HuggingFace) Name() string { return "huggingface" }

// Close implements Provider.
func (h *HuggingFace) Close() error {
	h.http.CloseIdleConnections()
	return nil
}

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
		Temperature    float32 `json:"temperature,omitempty"`
		TopP           float32 `json:"top_p,omitempty"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
}

type hfResponse []struct {
	GeneratedText string `json:"generated_text"`
}

// Generate implements Provider against POST /models/<id>.
func (h *HuggingFace) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if !strings.Contains(model, "/") {
		// Requested model belongs to another provider; serve the fallback model.
		model = hfDefaultModel
	}

	var payload hfRequest
	payload.Inputs = flattenHistory(req.System, req.History)
	payload.Parameters.MaxNewTokens = req.MaxTokens
	payload.Parameters.Temperature = req.Temperature
	payload.Parameters.TopP = req.TopP
	payload.Parameters.ReturnFullText = false

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/models/"+model, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("huggingface request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("huggingface read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface status %d: %s", resp.StatusCode, truncateErr(raw))
	}

	var out hfResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("huggingface decode: %w", err)
	}
	if len(out) == 0 || strings.TrimSpace(out[0].GeneratedText) == "" {
		return nil, fmt.Errorf("huggingface: empty response")
	}

	return &Response{
		Content:  strings.TrimSpace(out[0].GeneratedText),
		Provider: h.Name(),
		Model:    model,
	}, nil
}

// flattenHistory renders the chat as a plain transcript for text-generation
// models. The trailing "assistant:" cue prompts the continuation.
func flattenHistory(system string, turns []Turn) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant:")
	return b.String()
}
