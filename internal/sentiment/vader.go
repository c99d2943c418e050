package sentiment

import (
	"context"
	"html"
	"math"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"

	"stock-sentiment-predictor/internal/types"
)

var (
	mdLinkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern    = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
)

// VaderClassifier scores text locally with the VADER lexicon. No network, never fails.
type VaderClassifier struct {
	analyzer  *govader.SentimentIntensityAnalyzer
	threshold float64
}

func NewVaderClassifier(threshold float64) *VaderClassifier {
	if threshold <= 0 {
		threshold = 0.20
	}
	return &VaderClassifier{
		analyzer:  govader.NewSentimentIntensityAnalyzer(),
		threshold: threshold,
	}
}

func (v *VaderClassifier) Name() string { return "vader" }

func (v *VaderClassifier) Classify(ctx context.Context, texts []string) ([]types.ClassifiedText, error) {
	out := make([]types.ClassifiedText, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		compound := v.analyzer.PolarityScores(PlainText(text)).Compound
		out = append(out, types.ClassifiedText{
			Text:       text,
			Label:      v.label(compound),
			Confidence: math.Abs(compound),
		})
	}
	return out, nil
}

func (v *VaderClassifier) label(compound float64) types.Label {
	switch {
	case compound >= v.threshold:
		return types.LabelPositive
	case compound <= -v.threshold:
		return types.LabelNegative
	default:
		return types.LabelNeutral
	}
}

// PlainText renders reddit markdown and strips markup and links.
func PlainText(input string) string {
	rendered := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	text := html.UnescapeString(tagPattern.ReplaceAllString(string(rendered), " "))
	text = mdLinkPattern.ReplaceAllString(text, "$1")
	text = urlPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
