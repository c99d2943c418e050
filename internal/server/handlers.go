package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

type scoreResponse struct {
	types.Stats
	Reliability float64 `json:"reliability"`
}

func newScore(s types.Stats) scoreResponse {
	return scoreResponse{Stats: s, Reliability: s.Reliability()}
}

type predictRequest struct {
	CompanyName    string `json:"company_name" validate:"required,max=100"`
	PredictionDate string `json:"prediction_date" validate:"required,datetime=2006-01-02"`
}

type predictResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Result  *types.PipelineResult `json:"result,omitempty"`
}

type checkResponse struct {
	Success        bool                 `json:"success"`
	Message        string               `json:"message"`
	Summary        *types.VerifySummary `json:"summary,omitempty"`
	UpdatedScore   scoreResponse        `json:"updated_score"`
	UpdatedHistory []types.Prediction   `json:"updated_history"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]any{"success": false, "message": msg})
}

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	l, err := s.ledger.Load(r.Context())
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to load ledger", err)
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, newScore(l.Global))
}

func (s *Server) handleGetAllScores(w http.ResponseWriter, r *http.Request) {
	l, err := s.ledger.Load(r.Context())
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to load ledger", err)
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	companies := make(map[string]scoreResponse, len(l.Companies))
	for e, st := range l.Companies {
		companies[e] = newScore(st)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"global":    newScore(l.Global),
		"companies": companies,
	})
}

// handleGetHistory returns the log in insertion order. Optional filters:
// entity, status, and limit (most recent N).
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.log.Load()
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to load prediction log", err)
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	q := r.URL.Query()
	entity := strings.ToLower(strings.TrimSpace(q.Get("entity")))
	status := types.Status(strings.ToLower(q.Get("status")))
	out := make([]types.Prediction, 0, len(records))
	for _, p := range records {
		if entity != "" && strings.ToLower(p.Entity) != entity {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n < len(out) {
		out = out[len(out)-n:]
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.PredictionDate = strings.TrimSpace(req.PredictionDate)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}
	dateFor, err := time.ParseInLocation(types.DateLayout, req.PredictionDate, s.loc)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid date format.")
		return
	}

	res, err := s.predictor.Run(r.Context(), req.CompanyName, dateFor)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("Prediction pipeline failed for %s: %v", req.CompanyName, err))
		return
	}
	writeJSON(w, r, http.StatusOK, predictResponse{
		Success: true,
		Message: fmt.Sprintf("Prediction pipeline completed for %s (for %s). Final Prediction: %s",
			req.CompanyName, req.PredictionDate, res.Direction),
		Result: res,
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, runErr := s.verifier.Run(ctx)

	resp := checkResponse{Summary: summary}
	if l, err := s.ledger.Load(ctx); err == nil {
		resp.UpdatedScore = newScore(l.Global)
	}
	if records, err := s.log.Load(); err == nil {
		resp.UpdatedHistory = records
	}
	if resp.UpdatedHistory == nil {
		resp.UpdatedHistory = []types.Prediction{}
	}

	if runErr != nil {
		resp.Message = "Verification failed: " + runErr.Error()
		writeJSON(w, r, http.StatusInternalServerError, resp)
		return
	}
	resp.Success = true
	resp.Message = fmt.Sprintf("Verification finished: %d checked, %d skipped, %d deferred, %d errored.",
		summary.Checked, summary.Skipped, summary.Deferred, summary.Errored)
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	switch fe := verrs[0]; {
	case fe.Field() == "CompanyName" && fe.Tag() == "required":
		return "Company name is required."
	case fe.Field() == "PredictionDate" && fe.Tag() == "required":
		return "Prediction date is required."
	case fe.Field() == "PredictionDate":
		return "Invalid date format."
	default:
		return fmt.Sprintf("%s is invalid (%s).", fe.Field(), fe.Tag())
	}
}
