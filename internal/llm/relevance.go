package llm

import (
	"context"
	"fmt"
	"strings"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
)

const relevanceSystemPrompt = "You are a financial analyst specializing in assessing the stock market impact of news and discussions."

const relevancePromptTemplate = `Below is a list of Reddit post titles related to the company '%s'.
Identify ONLY the titles that discuss topics likely to have a DIRECT and SIGNIFICANT impact on the company's stock price. Consider factors like:
- Earnings reports or financial results
- Major product launches or failures
- Mergers, acquisitions, or significant partnerships
- Regulatory news or legal issues
- Scandals or major leadership changes
- Large scale operational news (e.g., factory openings/closings, major layoffs)

Exclude titles discussing:
- General stock price speculation without news
- Minor customer service issues
- Personal investment decisions
- Unsubstantiated rumors
- General brand discussion unrelated to finance/operations

Titles:
%s

Rules for your response:
1. List ONLY the titles you identified as relevant.
2. Each relevant title must be on a new line.
3. DO NOT include the leading dash ('-').
4. DO NOT add any introduction, explanation, conclusion, or conversational text. Just the list of relevant titles.`

// RelevanceFilter asks the LLM which post titles can move the stock.
// Titles are sent in batches; a batch whose call fails is dropped.
type RelevanceFilter struct {
	completer interfaces.Completer
	batchSize int
}

var _ interfaces.RelevanceFilter = (*RelevanceFilter)(nil)

func NewRelevanceFilter(c interfaces.Completer, batchSize int) *RelevanceFilter {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &RelevanceFilter{completer: c, batchSize: batchSize}
}

func (f *RelevanceFilter) FilterRelevant(ctx context.Context, company string, titles []string) ([]bool, error) {
	keep := make([]bool, len(titles))
	for start := 0; start < len(titles); start += f.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+f.batchSize, len(titles))
		batch := titles[start:end]

		answer, err := f.completer.Complete(ctx, relevanceSystemPrompt, relevancePrompt(company, batch))
		if err != nil {
			logger.Warn(ctx, "Relevance filter call failed, skipping batch",
				"company", company, "batch_start", start, "batch_size", len(batch), "error", err)
			continue
		}

		relevant := make(map[string]bool)
		for _, line := range strings.Split(answer, "\n") {
			if n := normalizeTitle(line); n != "" {
				relevant[n] = true
			}
		}
		hits := 0
		for i, title := range batch {
			if relevant[normalizeTitle(title)] {
				keep[start+i] = true
				hits++
			}
		}
		logger.Debug(ctx, "Relevance batch filtered", "company", company, "batch_size", len(batch), "relevant", hits)
	}
	return keep, nil
}

func relevancePrompt(company string, titles []string) string {
	var sb strings.Builder
	for i, t := range titles {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(strings.Join(strings.Fields(t), " "))
	}
	return fmt.Sprintf(relevancePromptTemplate, company, sb.String())
}

// normalizeTitle folds case and whitespace and strips list markers and quotes
// the model tends to add.
func normalizeTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*• ")
	s = strings.Trim(s, `"'`)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
