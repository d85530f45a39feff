package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/middleware"
	"github.com/nijaru/interview-feedback/models"
	"github.com/sirupsen/logrus"
)

const analyzeFailurePrefix = "Failed to analyze video: "

// Response is the envelope for endpoints other than analysis.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func respondEnvelope(w http.ResponseWriter, r *http.Request, code int, data interface{}) {
	respondJSON(w, code, Response{
		Success:   code >= 200 && code < 300,
		Data:      data,
		RequestID: middleware.RequestIDFrom(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// respondAnalysisError writes the failure body for the analyze endpoint.
// Validation messages go out as-is; everything else gets the failure prefix.
func respondAnalysisError(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, err error) {
	code := errors.StatusCode(err)
	msg := errors.Message(err)
	if !errors.Is(err, errors.KindValidation) {
		msg = analyzeFailurePrefix + msg
	}

	fields := logrus.Fields{
		"error":      err,
		"kind":       errors.KindOf(err),
		"status":     code,
		"request_id": middleware.RequestIDFrom(r.Context()),
		"path":       r.URL.Path,
		"method":     r.Method,
	}
	if appErr, ok := errors.As(err); ok {
		fields["op"] = appErr.Op
	}
	logger.WithFields(fields).Debug("Request error")

	respondJSON(w, code, models.NewFailure(msg))
}
