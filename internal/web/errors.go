package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Oss53pa/cockpit-core/internal/core"
	"github.com/Oss53pa/cockpit-core/internal/logging"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// respondError maps core errors onto HTTP statuses and logs the failure
// with its request ID.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
	)
	writeError(w, status, err.Error(), code)
}

func classify(err error) (int, string) {
	var (
		formatErr    *core.UnsupportedFormatError
		emptyErr     *core.EmptyFileError
		lockedErr    *core.PeriodLockedError
		notClosedErr *core.PeriodNotClosedError
		closedErr    *core.AlreadyClosedError
	)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrNoSession):
		return http.StatusNotFound, "no_session"
	case errors.Is(err, core.ErrSessionActive):
		return http.StatusConflict, "session_active"
	case errors.Is(err, core.ErrWrongStage):
		return http.StatusConflict, "wrong_stage"
	case errors.Is(err, core.ErrConstraint):
		return http.StatusConflict, "constraint"
	case errors.As(err, &lockedErr):
		return http.StatusLocked, "period_locked"
	case errors.As(err, &closedErr):
		return http.StatusConflict, "already_closed"
	case errors.As(err, &notClosedErr):
		return http.StatusConflict, "period_not_closed"
	case errors.As(err, &formatErr):
		return http.StatusUnsupportedMediaType, "unsupported_format"
	case errors.As(err, &emptyErr):
		return http.StatusBadRequest, "empty_file"
	default:
		return http.StatusBadRequest, "bad_request"
	}
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE working through the status wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
