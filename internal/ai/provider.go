// Package ai implements the provider adapter layer: it maps a requested model
// name to one of the configured LLM providers (Gemini, a DeepSeek-compatible
// gateway, a Hugging Face fallback), assembles the provider request from a
// localized system prompt plus a trimmed history window, and routes around
// provider failures via an explicit, capability-tagged fallback ordering.
//
// Providers are dependency-injected clients with defined lifecycles:
// constructed at startup in cmd/server, closed at shutdown through Router.Close.
package ai

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Languages supported by the chat application.
const (
	LangEnglish = "en"
	LangArabic  = "ar"
)

// ErrNoProvider is returned when no configured provider serves the requested
// model and no wildcard fallback is registered.
var ErrNoProvider = errors.New("no provider available for model")

// Turn is one conversation turn sent to a provider. Role is one of
// "user", "assistant", or "system".
type Turn struct {
	Role    string
	Content string
}

// Request carries everything a provider needs to produce an assistant reply.
// History is chronological and its final element is the pending user prompt.
type Request struct {
	Model       string
	Language    string // target reply language, "en" or "ar"
	System      string // system prompt; filled by the Router when empty
	History     []Turn
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// Response is a provider reply. Translated reports whether Content was
// machine-translated into Arabic after generation; callers surface this flag
// instead of silently relabeling untranslated text.
type Response struct {
	Content    string
	TokenCount int
	Provider   string
	Model      string
	Translated bool
}

// Provider is a single upstream LLM API.
type Provider interface {
	// Name identifies the provider in logs and responses (e.g. "gemini").
	Name() string
	// Generate produces an assistant reply for the request. Implementations
	// must honor ctx for cancellation and timeouts.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Close releases underlying clients. Safe to call once at shutdown.
	Close() error
}

// Capability tags a provider with the models it serves and its position in
// the fallback ordering. A single "*" in Models marks a wildcard fallback
// that accepts any requested model.
type Capability struct {
	Provider     Provider
	Models       []string
	NativeArabic bool
	Priority     int // lower tries first
}

// ModelInfo is one entry of the public model catalogue.
type ModelInfo struct {
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	NativeArabic bool   `json:"native_arabic"`
	Fallback     bool   `json:"fallback"`
}

// Translator post-processes replies into Arabic when the generating provider
// lacks native Arabic support.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Router resolves a requested model against the capability list and walks the
// fallback ordering on provider failure.
type Router struct {
	caps       []Capability
	translator Translator
	log        zerolog.Logger
}

// NewRouter builds a Router from the capability list, sorted by priority.
// translator may be nil, in which case no post-translation is attempted.
func NewRouter(caps []Capability, translator Translator, log zerolog.Logger) *Router {
	sorted := make([]Capability, len(caps))
	copy(sorted, caps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &Router{caps: sorted, translator: translator, log: log}
}

// Models returns the catalogue of models served by the configured providers.
func (r *Router) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(r.caps))
	for _, c := range r.caps {
		for _, m := range c.Models {
			out = append(out, ModelInfo{
				Name:         m,
				Provider:     c.Provider.Name(),
				NativeArabic: c.NativeArabic,
				Fallback:     m == "*",
			})
		}
	}
	return out
}

// resolve returns the capabilities that can serve model: exact matches first
// (in priority order), then wildcard fallbacks.
func (r *Router) resolve(model string) []Capability {
	var exact, wild []Capability
	for _, c := range r.caps {
		for _, m := range c.Models {
			if m == "*" {
				wild = append(wild, c)
				break
			}
			if strings.EqualFold(m, model) {
				exact = append(exact, c)
				break
			}
		}
	}
	return append(exact, wild...)
}

// Generate routes the request to the first capable provider, falling down the
// capability list when a call fails. When the reply language is Arabic and
// the serving provider lacks native Arabic, the reply is translated; a failed
// translation logs a warning and returns the original text with
// Translated=false rather than mislabeling it.
func (r *Router) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Language == "" {
		req.Language = LangEnglish
	}
	if req.System == "" {
		req.System = SystemPrompt(req.Language)
	}

	cands := r.resolve(req.Model)
	if len(cands) == 0 {
		return nil, ErrNoProvider
	}

	var lastErr error
	for _, c := range cands {
		resp, err := c.Provider.Generate(ctx, req)
		if err != nil {
			lastErr = err
			r.log.Warn().
				Err(err).
				Str("provider", c.Provider.Name()).
				Str("model", req.Model).
				Msg("provider call failed, trying next")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if req.Language == LangArabic && !c.NativeArabic && r.translator != nil {
			translated, terr := r.translator.Translate(ctx, resp.Content, LangArabic)
			if terr != nil {
				r.log.Warn().
					Err(terr).
					Str("provider", c.Provider.Name()).
					Msg("arabic translation failed, returning original text")
			} else {
				resp.Content = translated
				resp.Translated = true
			}
		}
		if resp.TokenCount == 0 {
			resp.TokenCount = EstimateTokens(resp.Content)
		}
		return resp, nil
	}
	return nil, lastErr
}

// Close shuts down every distinct provider once.
func (r *Router) Close() error {
	seen := make(map[Provider]struct{}, len(r.caps))
	var first error
	for _, c := range r.caps {
		if _, ok := seen[c.Provider]; ok {
			continue
		}
		seen[c.Provider] = struct{}{}
		if err := c.Provider.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// EstimateTokens is a cheap token-count approximation (~4 chars per token)
// used when a provider does not report usage.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	t := n / 4
	if t < 1 {
		t = 1
	}
	return t
}
