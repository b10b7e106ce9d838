// Package services – SummaryService
//
// This file implements SummaryService, which builds the per-user AI profile:
// a bilingual natural-language summary of the user's conversations plus
// derived interests, topics, and usage statistics. Summaries are regenerated
// wholesale from the recent prompt history, never updated incrementally, and
// stored one-to-one with the user.
package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ai"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// summaryPromptLimit bounds the number of recent user prompts fed to the model.
const summaryPromptLimit = 200

// SummaryService generates and serves per-user AI summaries.
type SummaryService struct {
	DB *gorm.DB
	AI *ai.Router

	// Model used for summary generation.
	Model string
	// ActivityDays is the window for the daily-activity statistic.
	ActivityDays int
}

// NewSummaryService constructs a SummaryService.
func NewSummaryService(db *gorm.DB, router *ai.Router, model string) *SummaryService {
	return &SummaryService{DB: db, AI: router, Model: model, ActivityDays: 30}
}

// Get returns the stored summary, or ErrNoMessages when none was generated yet.
func (s *SummaryService) Get(ctx context.Context, userID string) (*domain.UserSummary, error) {
	sum, err := repo.GetSummary(ctx, s.DB, userID)
	if err != nil {
		return nil, ErrNoMessages
	}
	return sum, nil
}

// Generate rebuilds the summary from the user's recent prompts. The English
// summary is always produced first; the Arabic one comes from a second
// generation pass and may be machine-translated, in which case the underlying
// provider response is flagged rather than silently relabeled.
func (s *SummaryService) Generate(ctx context.Context, userID string) (*domain.UserSummary, error) {
	tr := otel.Tracer("services/SummaryService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	prompts, err := repo.ListUserPrompts(s.DB.WithContext(ctx), userID, summaryPromptLimit)
	if err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, ErrNoMessages
	}

	digest := buildPromptDigest(prompts)

	summaryEN, err := s.summarize(ctx, digest, domain.LangEnglish)
	if err != nil {
		return nil, err
	}
	// Arabic failure degrades to an English-only summary instead of failing
	// the whole operation.
	summaryAR, arErr := s.summarize(ctx, digest, domain.LangArabic)
	if arErr != nil {
		summaryAR = ""
	}

	stats, err := repo.ComputeUserStatistics(ctx, s.DB, userID, s.ActivityDays)
	if err != nil {
		return nil, err
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	interests, topics := extractKeywords(prompts)
	interestsJSON, _ := json.Marshal(interests)
	topicsJSON, _ := json.Marshal(topics)

	return repo.UpsertSummary(ctx, s.DB, &domain.UserSummary{
		UserID:      userID,
		SummaryEN:   summaryEN,
		SummaryAR:   summaryAR,
		Interests:   datatypes.JSON(interestsJSON),
		Topics:      datatypes.JSON(topicsJSON),
		Statistics:  datatypes.JSON(statsJSON),
		Model:       s.Model,
		GeneratedAt: time.Now().UTC(),
	})
}

// summarize runs one generation pass in the target language.
func (s *SummaryService) summarize(ctx context.Context, digest, lang string) (string, error) {
	resp, err := s.AI.Generate(ctx, ai.Request{
		Model:    s.Model,
		Language: lang,
		System:   ai.SummaryPrompt(lang),
		History:  []ai.Turn{{Role: domain.RoleUser, Content: digest}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// buildPromptDigest flattens recent prompts into a bounded plain-text block,
// oldest first.
func buildPromptDigest(prompts []domain.Message) string {
	var b strings.Builder
	for i := len(prompts) - 1; i >= 0; i-- {
		line := strings.TrimSpace(prompts[i].Content)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > 300 {
			line = string([]rune(line)[:300])
		}
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
		if b.Len() > 24_000 {
			break
		}
	}
	return b.String()
}

// extractKeywords derives rough interest/topic lists from prompt word
// frequencies. Interests are the top terms overall; topics the top terms of
// the most recent quarter of prompts.
func extractKeywords(prompts []domain.Message) (interests, topics []string) {
	recentCut := len(prompts) / 4
	if recentCut == 0 {
		recentCut = len(prompts)
	}
	all := map[string]int{}
	recent := map[string]int{}
	for i, p := range prompts {
		for _, w := range titleWordRE.FindAllString(strings.ToLower(p.Content), -1) {
			if _, stop := titleStopWords[w]; stop || utf8.RuneCountInString(w) < 4 {
				continue
			}
			all[w]++
			if i < recentCut {
				recent[w]++
			}
		}
	}
	return topTerms(all, 10), topTerms(recent, 10)
}

// topTerms returns the n highest-frequency terms, ties broken alphabetically.
func topTerms(freq map[string]int, n int) []string {
	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
