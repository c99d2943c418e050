// Package llm holds the prompt-level helpers built on interfaces.Completer:
// venue suggestion and title relevance filtering.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
)

const venueSystemPrompt = "You are a Reddit expert specializing in finance and company discussions."

const venuePromptTemplate = `Generate a list of 5-10 potentially relevant Reddit subreddit names (e.g., r/SubredditName) for finding public opinion and discussions about the company: %s.
Focus on finance, investing, and potentially company-specific or regional subreddits if applicable.

Rules for your response:
1. Provide *only* the list of subreddit names.
2. Each subreddit name must start with 'r/'.
3. Each subreddit name must be on a new line.
4. Do not add any introduction, explanation, or conversational text.`

var subredditName = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// VenueSuggester asks the LLM for subreddits and falls back to a fixed list
// when the call fails or the answer holds no usable name.
type VenueSuggester struct {
	completer interfaces.Completer
	defaults  []string
	max       int
}

var _ interfaces.VenueSuggester = (*VenueSuggester)(nil)

func NewVenueSuggester(c interfaces.Completer, defaults []string) *VenueSuggester {
	return &VenueSuggester{completer: c, defaults: append([]string(nil), defaults...), max: 10}
}

func (s *VenueSuggester) SuggestVenues(ctx context.Context, company string) ([]string, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("company name is empty")
	}

	answer, err := s.completer.Complete(ctx, venueSystemPrompt, fmt.Sprintf(venuePromptTemplate, company))
	if err != nil {
		logger.Warn(ctx, "Venue suggestion failed, using defaults", "company", company, "error", err)
		return s.fallback(), nil
	}

	venues := ParseVenues(answer)
	if len(venues) == 0 {
		logger.Info(ctx, "LLM returned no venues, using defaults", "company", company)
		return s.fallback(), nil
	}
	if len(venues) > s.max {
		venues = venues[:s.max]
	}
	logger.Info(ctx, "Venues suggested", "company", company, "venues", venues)
	return venues, nil
}

func (s *VenueSuggester) fallback() []string {
	return append([]string(nil), s.defaults...)
}

// ParseVenues keeps lines starting with "r/", strips the prefix and drops
// duplicates (case-insensitive) and malformed names.
func ParseVenues(answer string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if !strings.HasPrefix(line, "r/") {
			continue
		}
		fields := strings.Fields(line[2:])
		if len(fields) == 0 {
			continue
		}
		name := strings.TrimRight(fields[0], "/,.")
		if !subredditName.MatchString(name) {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}
