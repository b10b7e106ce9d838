package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// stubProvider is a scriptable Provider for router tests.
type stubProvider struct {
	name   string
	reply  string
	err    error
	calls  int
	closed int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Generate(_ context.Context, req Request) (*Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Response{Content: p.reply, Provider: p.name, Model: req.Model}, nil
}

func (p *stubProvider) Close() error {
	p.closed++
	return nil
}

// stubTranslator implements Translator.
type stubTranslator struct {
	out   string
	err   error
	calls int
}

func (tr *stubTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	tr.calls++
	if tr.err != nil {
		return "", tr.err
	}
	if tr.out != "" {
		return tr.out, nil
	}
	return text, nil
}

func TestGenerate_PrefersExactMatchOverWildcard(t *testing.T) {
	exact := &stubProvider{name: "exact", reply: "from exact"}
	wild := &stubProvider{name: "wild", reply: "from wildcard"}
	r := NewRouter([]Capability{
		{Provider: wild, Models: []string{"*"}, Priority: 0},
		{Provider: exact, Models: []string{"model-a"}, Priority: 5},
	}, nil, zerolog.Nop())

	resp, err := r.Generate(context.Background(), Request{Model: "model-a"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Provider != "exact" {
		t.Fatalf("served by %q, want exact match despite lower wildcard priority", resp.Provider)
	}
	if wild.calls != 0 {
		t.Fatalf("wildcard called %d times", wild.calls)
	}
}

func TestGenerate_FallsThroughOnFailure(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("quota exceeded")}
	backup := &stubProvider{name: "backup", reply: "saved"}
	r := NewRouter([]Capability{
		{Provider: primary, Models: []string{"model-a"}, Priority: 0},
		{Provider: backup, Models: []string{"*"}, Priority: 1},
	}, nil, zerolog.Nop())

	resp, err := r.Generate(context.Background(), Request{Model: "model-a"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Provider != "backup" || primary.calls != 1 {
		t.Fatalf("fallback did not engage: provider=%q primary calls=%d", resp.Provider, primary.calls)
	}
}

func TestGenerate_AllProvidersFail(t *testing.T) {
	wantErr := errors.New("still down")
	a := &stubProvider{name: "a", err: errors.New("down")}
	b := &stubProvider{name: "b", err: wantErr}
	r := NewRouter([]Capability{
		{Provider: a, Models: []string{"model-a"}, Priority: 0},
		{Provider: b, Models: []string{"model-a"}, Priority: 1},
	}, nil, zerolog.Nop())

	_, err := r.Generate(context.Background(), Request{Model: "model-a"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the last provider error", err)
	}
}

func TestGenerate_UnknownModel(t *testing.T) {
	p := &stubProvider{name: "p", reply: "x"}
	r := NewRouter([]Capability{
		{Provider: p, Models: []string{"model-a"}},
	}, nil, zerolog.Nop())

	_, err := r.Generate(context.Background(), Request{Model: "model-z"})
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
	if p.calls != 0 {
		t.Fatalf("provider called for unknown model")
	}
}

func TestGenerate_FillsDefaultsAndEstimatesTokens(t *testing.T) {
	p := &stubProvider{name: "p", reply: "four word long reply"}
	r := NewRouter([]Capability{
		{Provider: p, Models: []string{"*"}},
	}, nil, zerolog.Nop())

	resp, err := r.Generate(context.Background(), Request{Model: "anything"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.TokenCount == 0 {
		t.Fatalf("token count not estimated for providers without usage data")
	}
}

func TestGenerate_TranslatesNonNativeArabic(t *testing.T) {
	p := &stubProvider{name: "p", reply: "hello"}
	tr := &stubTranslator{out: "مرحبا"}
	r := NewRouter([]Capability{
		{Provider: p, Models: []string{"model-a"}, NativeArabic: false},
	}, tr, zerolog.Nop())

	resp, err := r.Generate(context.Background(), Request{Model: "model-a", Language: LangArabic})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !resp.Translated || resp.Content != "مرحبا" {
		t.Fatalf("resp = %+v, want translated reply", resp)
	}
	if tr.calls != 1 {
		t.Fatalf("translator calls = %d", tr.calls)
	}
}

func TestGenerate_SkipsTranslationForNativeArabic(t *testing.T) {
	p := &stubProvider{name: "p", reply: "مرحبا"}
	tr := &stubTranslator{}
	r := NewRouter([]Capability{
		{Provider: p, Models: []string{"model-a"}, NativeArabic: true},
	}, tr, zerolog.Nop())

	resp, err := r.Generate(context.Background(), Request{Model: "model-a", Language: LangArabic})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Translated || tr.calls != 0 {
		t.Fatalf("native-arabic reply was translated anyway")
	}
}

func TestGenerate_FailedTranslationKeepsOriginalUnflagged(t *testing.T) {
	p := &stubProvider{name: "p", reply: "hello"}
	tr := &stubTranslator{err: errors.New("translate down")}
	r := NewRouter([]Capability{
		{Provider: p, Models: []string{"model-a"}, NativeArabic: false},
	}, tr, zerolog.Nop())

	resp, err := r.Generate(context.Background(), Request{Model: "model-a", Language: LangArabic})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Translated || resp.Content != "hello" {
		t.Fatalf("resp = %+v, want original text flagged untranslated", resp)
	}
}

func TestGenerate_LocalizedSystemPrompt(t *testing.T) {
	var seen Request
	capture := providerFunc(func(_ context.Context, req Request) (*Response, error) {
		seen = req
		return &Response{Content: "x", Provider: "capture"}, nil
	})
	r := NewRouter([]Capability{
		{Provider: capture, Models: []string{"*"}, NativeArabic: true},
	}, nil, zerolog.Nop())

	if _, err := r.Generate(context.Background(), Request{Model: "m", Language: LangArabic}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if seen.System != SystemPrompt(LangArabic) {
		t.Fatalf("system prompt not localized for arabic")
	}
	if _, err := r.Generate(context.Background(), Request{Model: "m"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if seen.Language != LangEnglish || seen.System != SystemPrompt(LangEnglish) {
		t.Fatalf("defaults not applied: lang=%q", seen.Language)
	}
}

// providerFunc adapts a function to the Provider interface.
type providerFunc func(ctx context.Context, req Request) (*Response, error)

func (f providerFunc) Name() string { return "func" }

func (f providerFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

func (f providerFunc) Close() error { return nil }

func TestModels_CataloguesWildcardAsFallback(t *testing.T) {
	a := &stubProvider{name: "a"}
	b := &stubProvider{name: "b"}
	r := NewRouter([]Capability{
		{Provider: a, Models: []string{"model-a", "model-b"}, NativeArabic: true, Priority: 0},
		{Provider: b, Models: []string{"*"}, Priority: 1},
	}, nil, zerolog.Nop())

	models := r.Models()
	if len(models) != 3 {
		t.Fatalf("catalogue size = %d, want 3", len(models))
	}
	if models[0].Name != "model-a" || !models[0].NativeArabic || models[0].Fallback {
		t.Fatalf("first entry = %+v", models[0])
	}
	last := models[len(models)-1]
	if !last.Fallback || last.Provider != "b" {
		t.Fatalf("wildcard entry = %+v", last)
	}
}

func TestClose_ClosesEachProviderOnce(t *testing.T) {
	p := &stubProvider{name: "p"}
	r := NewRouter([]Capability{
		{Provider: p, Models: []string{"model-a"}},
		{Provider: p, Models: []string{"model-b"}},
	}, nil, zerolog.Nop())

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.closed != 1 {
		t.Fatalf("provider closed %d times, want once", p.closed)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"12345678", 2},
		{"ابجد هوز حطي كلمن", 4},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
