// Package server exposes the prediction pipeline and the verification
// cycle over HTTP, plus read-only views of the ledger and the log.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/ledger"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/predlog"
)

type Server struct {
	predictor interfaces.Predictor
	verifier  interfaces.Verifier
	log       *predlog.Store
	ledger    *ledger.Store
	validate  *validator.Validate
	loc       *time.Location
}

func New(predictor interfaces.Predictor, verifier interfaces.Verifier, log *predlog.Store, ledgerStore *ledger.Store, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		predictor: predictor,
		verifier:  verifier,
		log:       log,
		ledger:    ledgerStore,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		loc:       loc,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/score", s.handleGetScore)
	mux.HandleFunc("GET /api/score/all", s.handleGetAllScores)
	mux.HandleFunc("GET /api/history", s.handleGetHistory)
	mux.HandleFunc("POST /api/predict", s.handlePredict)
	mux.HandleFunc("POST /api/check", s.handleCheck)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, opts Options) error {
	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "API server starting", "addr", opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "API server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := logger.StartSpan(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		logger.Info(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
