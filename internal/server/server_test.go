package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-sentiment-predictor/internal/ledger"
	"stock-sentiment-predictor/internal/predlog"
	"stock-sentiment-predictor/internal/types"
)

type stubPredictor struct {
	company string
	dateFor time.Time
	err     error
}

func (p *stubPredictor) Run(_ context.Context, company string, dateFor time.Time) (*types.PipelineResult, error) {
	p.company, p.dateFor = company, dateFor
	if p.err != nil {
		return nil, p.err
	}
	return &types.PipelineResult{
		Company:   company,
		DateFor:   dateFor.Format(types.DateLayout),
		Direction: types.DirectionRise,
	}, nil
}

type stubVerifier struct {
	summary *types.VerifySummary
	err     error
	calls   int
}

func (v *stubVerifier) Run(context.Context) (*types.VerifySummary, error) {
	v.calls++
	return v.summary, v.err
}

type fixture struct {
	srv       http.Handler
	predictor *stubPredictor
	verifier  *stubVerifier
	log       *predlog.Store
	ledger    *ledger.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		predictor: &stubPredictor{},
		verifier:  &stubVerifier{summary: &types.VerifySummary{}},
		log:       predlog.NewStore(filepath.Join(dir, "all_predictions.json")),
		ledger:    ledger.NewStore(filepath.Join(dir, "reliability_score.json")),
	}
	f.srv = New(f.predictor, f.verifier, f.log, f.ledger, time.UTC).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetScore(t *testing.T) {
	f := newFixture(t)
	l := ledger.New()
	require.NoError(t, l.Record("apple", 1))
	require.NoError(t, l.Record("tesla", 0.5))
	require.NoError(t, f.ledger.Save(l))

	rec := f.do(t, http.MethodGet, "/api/score", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["total_predictions"])
	assert.InDelta(t, 1.5, body["total_score_points"], 1e-9)
	assert.InDelta(t, 0.75, body["reliability"], 1e-9)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetScoreMigratesLegacyLedger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.ledger.Path(), []byte(`{"total_predictions": 4, "total_score_points": 3}`), 0o644))

	rec := f.do(t, http.MethodGet, "/api/score", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.75, decode(t, rec)["reliability"], 1e-9)
}

func TestGetScoreCorruptLedger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.ledger.Path(), []byte("{not json"), 0o644))

	rec := f.do(t, http.MethodGet, "/api/score", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestGetAllScores(t *testing.T) {
	f := newFixture(t)
	l := ledger.New()
	require.NoError(t, l.Record("apple", 1))
	require.NoError(t, f.ledger.Save(l))

	rec := f.do(t, http.MethodGet, "/api/score/all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	companies, ok := body["companies"].(map[string]any)
	require.True(t, ok)
	apple, ok := companies["apple"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 1.0, apple["reliability"], 1e-9)
}

func TestGetHistoryFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []types.Prediction{
		{Entity: "apple", Direction: types.DirectionRise, DateFor: "2024-06-10"},
		{Entity: "tesla", Direction: types.DirectionFall, DateFor: "2024-06-10"},
		{Entity: "Apple", Direction: types.DirectionFall, DateFor: "2024-06-11"},
	} {
		_, err := f.log.Append(ctx, p)
		require.NoError(t, err)
	}

	var all []types.Prediction
	rec := f.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	var apple []types.Prediction
	rec = f.do(t, http.MethodGet, "/api/history?entity=APPLE&limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apple))
	require.Len(t, apple, 1)
	assert.Equal(t, "2024-06-11", apple[0].DateFor)

	var checked []types.Prediction
	rec = f.do(t, http.MethodGet, "/api/history?status=checked", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checked))
	assert.Empty(t, checked)
}

func TestPredict(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/predict", `{"company_name":" Tesla ","prediction_date":"2024-06-10"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["message"], "Final Prediction: rise")
	assert.Equal(t, "Tesla", f.predictor.company)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), f.predictor.dateFor)
}

func TestPredictValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing company", `{"prediction_date":"2024-06-10"}`, "Company name is required."},
		{"missing date", `{"company_name":"tesla"}`, "Prediction date is required."},
		{"bad date", `{"company_name":"tesla","prediction_date":"10/06/2024"}`, "Invalid date format."},
		{"bad json", `{`, "Invalid JSON body."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/predict", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec)["message"])
			assert.Empty(t, f.predictor.company)
		})
	}
}

func TestPredictPipelineError(t *testing.T) {
	f := newFixture(t)
	f.predictor.err = errors.New("collector down")
	rec := f.do(t, http.MethodPost, "/api/predict", `{"company_name":"tesla","prediction_date":"2024-06-10"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "collector down")
}

func TestCheck(t *testing.T) {
	f := newFixture(t)
	f.verifier.summary = &types.VerifySummary{Checked: 1, Skipped: 2}
	_, err := f.log.Append(context.Background(), types.Prediction{Entity: "apple", Direction: types.DirectionRise, DateFor: "2024-06-10"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.verifier.calls)

	var body checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Contains(t, body.Message, "1 checked, 2 skipped")
	assert.Len(t, body.UpdatedHistory, 1)
}

func TestCheckFailure(t *testing.T) {
	f := newFixture(t)
	f.verifier.summary = nil
	f.verifier.err = ledger.ErrCorrupt

	rec := f.do(t, http.MethodPost, "/api/check", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, []any{}, body["updated_history"])
}

func TestMethodNotAllowedAndPreflight(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/predict", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodOptions, "/api/predict", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
}
