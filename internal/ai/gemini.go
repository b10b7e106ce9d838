package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiTranslateModel is the model used for Arabic post-translation.
const geminiTranslateModel = "gemini-1.5-flash"

// Gemini serves requests through Google's generative AI SDK. It is safe for
// concurrent use; one client is shared by the chat router and the translator.
type Gemini struct {
	client *genai.Client
}

// NewGemini dials the Gemini API with the given key.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Name implements Provider.
func (g *Gemini) Name() string { return "gemini" }

// Close implements Provider.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Generate implements Provider. The history (minus the trailing user prompt)
// becomes the chat session history; system turns are folded into the system
// instruction.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.History) == 0 {
		return nil, fmt.Errorf("gemini: empty history")
	}
	last := req.History[len(req.History)-1]
	if last.Role != "user" {
		return nil, fmt.Errorf("gemini: last turn must be a user prompt, got %q", last.Role)
	}

	model := g.client.GenerativeModel(req.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.System)},
	}

	cfg := genai.GenerationConfig{}
	if req.Temperature > 0 {
		t := req.Temperature
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := int32(req.MaxTokens)
		cfg.MaxOutputTokens = &mt
	}
	if req.TopP > 0 {
		tp := req.TopP
		cfg.TopP = &tp
	}
	model.GenerationConfig = cfg

	session := model.StartChat()
	session.History = geminiHistory(req.History[:len(req.History)-1])

	resp, err := session.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := geminiText(resp)
	if text == "" {
		return nil, fmt.Errorf("gemini: empty response")
	}

	out := &Response{
		Content:  text,
		Provider: g.Name(),
		Model:    req.Model,
	}
	if resp.UsageMetadata != nil {
		out.TokenCount = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Translate implements Translator through a fixed translation model.
func (g *Gemini) Translate(ctx context.Context, text, targetLang string) (string, error) {
	lang := "Arabic"
	if targetLang == LangEnglish {
		lang = "English"
	}
	model := g.client.GenerativeModel(geminiTranslateModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(
			"You are a translation engine. Translate the user's text into " + lang +
				". Output only the translation, with no commentary.",
		)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", fmt.Errorf("gemini translate: %w", err)
	}
	out := geminiText(resp)
	if out == "" {
		return "", fmt.Errorf("gemini translate: empty response")
	}
	return strings.TrimSpace(out), nil
}

// geminiHistory maps conversation turns to genai content. Gemini only knows
// "user" and "model" roles; system turns are skipped (they live in the
// system instruction).
func geminiHistory(turns []Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		switch t.Role {
		case "assistant":
			role = "model"
		case "system":
			continue
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return out
}

// geminiText concatenates the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
