package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kalambet/doccheck/internal/pipeline"
)

func handleCheckDocument(checker Checker, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		defer r.Body.Close()

		var req pipeline.CheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body exceeds %d bytes", tooLarge.Limit)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res := checker.Run(r.Context(), req)
		writeJSON(w, statusFor(res), res)
	}
}

// statusFor maps a check outcome onto an HTTP status code.
func statusFor(res pipeline.CheckResult) int {
	switch {
	case res.Success:
		return http.StatusOK
	case res.Failure == pipeline.FailureValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
