package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-sentiment-predictor/internal/types"
)

func TestNormalizeLabel(t *testing.T) {
	tests := map[string]types.Label{
		"positive":  types.LabelPositive,
		" POSITIVE": types.LabelPositive,
		"Negative":  types.LabelNegative,
		"neutral":   types.LabelNeutral,
		"failed":    types.LabelFailed,
		"LABEL_1":   types.LabelOther,
		"":          types.LabelOther,
		"mixed":     types.LabelOther,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeLabel(raw), "raw=%q", raw)
	}
}

func TestTallyCountsEveryInput(t *testing.T) {
	in := []types.ClassifiedText{
		{Label: types.LabelPositive},
		{Label: types.LabelPositive},
		{Label: types.LabelNegative},
		{Label: types.LabelNeutral},
		{Label: types.LabelFailed},
		{Label: "unknown"},
		{Label: "NEGATIVE"},
	}
	got := Tally(in)
	assert.Equal(t, types.SentimentTally{Positive: 2, Negative: 2, Neutral: 1, Other: 1, Failed: 1}, got)
	assert.Equal(t, len(in), got.Total())
}

func TestTallyEmpty(t *testing.T) {
	assert.Equal(t, types.SentimentTally{}, Tally(nil))
}

func TestPolicyPredict(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name  string
		tally types.SentimentTally
		want  types.Direction
	}{
		{"no data", types.SentimentTally{}, types.DirectionNeutral},
		{"only failures", types.SentimentTally{Failed: 9, Other: 3}, types.DirectionNeutral},
		{"all positive", types.SentimentTally{Positive: 20}, types.DirectionRise},
		{"all negative", types.SentimentTally{Negative: 20}, types.DirectionFall},
		{"slightly negative inside band", types.SentimentTally{Positive: 5, Negative: 6, Neutral: 10}, types.DirectionNeutral},
		{"fall with margin two", types.SentimentTally{Positive: 3, Negative: 5, Neutral: 2}, types.DirectionFall},
		{"fall buffered to neutral", types.SentimentTally{Positive: 4, Negative: 5, Neutral: 1}, types.DirectionNeutral},
		{"rise at threshold is neutral", types.SentimentTally{Positive: 3, Negative: 0, Neutral: 17}, types.DirectionNeutral},
		{"rise just above threshold", types.SentimentTally{Positive: 4, Neutral: 16}, types.DirectionRise},
		{"failures ignored", types.SentimentTally{Positive: 10, Failed: 100}, types.DirectionRise},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Predict(tt.tally))
		})
	}
}

func TestPolicyIsConfigurable(t *testing.T) {
	p := Policy{RiseThreshold: 0.5, FallThreshold: -0.5, MinFallMargin: 0}
	assert.Equal(t, types.DirectionNeutral, p.Predict(types.SentimentTally{Positive: 6, Negative: 4}))
	assert.Equal(t, types.DirectionFall, p.Predict(types.SentimentTally{Negative: 1}))
}

func TestPolicyScore(t *testing.T) {
	score, ok := DefaultPolicy().Score(types.SentimentTally{Positive: 3, Negative: 5, Neutral: 2})
	require.True(t, ok)
	assert.InDelta(t, -0.2, score, 1e-9)

	_, ok = DefaultPolicy().Score(types.SentimentTally{Other: 4})
	assert.False(t, ok)
}

func TestVaderClassifier(t *testing.T) {
	v := NewVaderClassifier(0)
	got, err := v.Classify(context.Background(), []string{
		"This stock is amazing, great earnings and wonderful growth!",
		"Terrible results, awful guidance, I hate this company.",
		"The meeting is on Tuesday.",
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, types.LabelPositive, got[0].Label)
	assert.Equal(t, types.LabelNegative, got[1].Label)
	assert.Equal(t, types.LabelNeutral, got[2].Label)
	assert.Greater(t, got[0].Confidence, 0.2)
}

func TestPlainText(t *testing.T) {
	in := "**Great** quarter, see [the report](https://example.com/r) and https://x.com/y"
	assert.Equal(t, "Great quarter, see the report and", PlainText(in))
}

func TestTruncateRunesKeepsCharactersWhole(t *testing.T) {
	s := strings.Repeat("a", 3) + "日本語"
	assert.Equal(t, "aaa日", truncateRunes(s, 4))
	assert.Equal(t, s, truncateRunes(s, 6))
	assert.Equal(t, s, truncateRunes(s, 100))
	assert.Equal(t, "", truncateRunes(s, 0))
}

func TestHuggingFaceSendsValidUTF8(t *testing.T) {
	long := strings.Repeat("a", maxInputChars-1) + strings.Repeat("é", 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Inputs, 1)
		assert.True(t, utf8.ValidString(body.Inputs[0]))
		assert.Equal(t, maxInputChars, utf8.RuneCountInString(body.Inputs[0]))
		assert.True(t, strings.HasSuffix(body.Inputs[0], "aé"))
		w.Write([]byte(`[[{"label":"positive","score":0.9},{"label":"negative","score":0.1}]]`))
	}))
	defer srv.Close()

	h := NewHuggingFaceClassifier(HFConfig{BaseURL: srv.URL, Model: "m", Timeout: 2 * time.Second})
	got, err := h.Classify(context.Background(), []string{long})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.LabelPositive, got[0].Label)
	assert.Equal(t, long, got[0].Text)
}
