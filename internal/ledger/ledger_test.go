package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-sentiment-predictor/internal/types"
)

func TestRecord(t *testing.T) {
	l := New()
	require.NoError(t, l.Record("Apple", 0.75))
	require.NoError(t, l.Record("apple", 0.25))
	require.NoError(t, l.Record("tesla", 1))

	assert.Equal(t, types.Stats{TotalPredictions: 3, TotalScorePoints: 2}, l.Global)
	assert.Equal(t, types.Stats{TotalPredictions: 2, TotalScorePoints: 1}, l.Company("APPLE"))
	assert.Equal(t, []string{"apple", "tesla"}, l.Entities())
	assert.InDelta(t, 0.5, l.Company("apple").Reliability(), 1e-9)
	assert.NoError(t, l.Check())
}

func TestRecordRejectsOutOfRange(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Record("apple", 1.01), ErrScoreOutOfRange)
	assert.ErrorIs(t, l.Record("apple", -0.1), ErrScoreOutOfRange)
	assert.Error(t, l.Record("  ", 0.5))
	assert.Equal(t, types.Stats{}, l.Global)
}

func TestMigrateFlatV1(t *testing.T) {
	l, from, err := Decode([]byte(`{"total_predictions": 3, "total_score_points": 1.5}`))
	require.NoError(t, err)
	assert.Equal(t, 1, from)
	assert.Equal(t, types.Stats{TotalPredictions: 3, TotalScorePoints: 1.5}, l.Global)
	assert.Empty(t, l.Companies)
	assert.NotNil(t, l.Companies)
}

func TestMigrateCorrectIncorrectV0(t *testing.T) {
	l, from, err := Migrate(map[string]any{"correct_predictions": 4.0, "incorrect_predictions": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 0, from)
	assert.Equal(t, types.Stats{TotalPredictions: 6, TotalScorePoints: 4}, l.Global)
}

func TestMigrateCurrentWithoutVersion(t *testing.T) {
	l, from, err := Decode([]byte(`{"global":{"total_predictions":2,"total_score_points":1.2},
		"companies":{"Tesla":{"total_predictions":2,"total_score_points":1.2}}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, from)
	assert.Equal(t, types.Stats{TotalPredictions: 2, TotalScorePoints: 1.2}, l.Company("tesla"))
}

func TestMigrateMergesCaseVariantCompanies(t *testing.T) {
	l, _, err := Decode([]byte(`{"schema_version":2,"global":{"total_predictions":5,"total_score_points":3},
		"companies":{"Apple":{"total_predictions":2,"total_score_points":1.5},
		"apple":{"total_predictions":3,"total_score_points":1.5}}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"apple"}, l.Entities())
	assert.Equal(t, types.Stats{TotalPredictions: 5, TotalScorePoints: 3}, l.Company("apple"))
	assert.NoError(t, l.Check())
}

func TestDecodeCorrupt(t *testing.T) {
	for _, raw := range []string{`{not json`, `[1,2]`, `null`, `{"global": 5}`, `{"schema_version": 9}`} {
		_, _, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrCorrupt, raw)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(filepath.Join(t.TempDir(), "reliability_score.json"))

	l, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, New(), l)

	require.NoError(t, l.Record("google", 0.6))
	require.NoError(t, l.Record("reliance", 0.35))
	require.NoError(t, s.Save(l))

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, l, again)
}

func TestStoreMigratesInPlace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reliability_score.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"total_predictions": 3, "total_score_points": 1.5}`), 0o644))

	l, err := NewStore(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Global.TotalPredictions)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"schema_version": 2`)
	assert.Contains(t, string(raw), `"companies": {}`)
}

func TestStoreCorruptFileIsLeftAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reliability_score.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"global":`), 0o644))

	_, err := NewStore(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)

	raw, _ := os.ReadFile(path)
	assert.Equal(t, `{"global":`, string(raw))
}
