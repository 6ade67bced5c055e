package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/overseerhq/overseer/internal/downstream"
	"github.com/overseerhq/overseer/internal/model"
	"github.com/overseerhq/overseer/internal/server/middleware"
	"github.com/overseerhq/overseer/internal/service"
)

// auditOutcome labels an audit record with the result of its primary
// operation. Every privileged action gets exactly one record, so the
// outcome distinguishes completed actions from refused or failed ones.
func auditOutcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// getPrincipal returns the authenticated principal for the request, or
// nil when the route is unauthenticated.
func getPrincipal(r *http.Request) *service.Principal {
	return middleware.GetPrincipal(r.Context())
}

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// writeDownstreamError maps a failed downstream call to the client-facing
// response. Every downstream failure looks the same to the client — a
// generic 502 that leaks no downstream internals. The real cause is
// logged with the request ID for diagnostics.
func writeDownstreamError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, operation string, err error) {
	var dsErr *downstream.Error
	if errors.As(err, &dsErr) {
		logger.Error("downstream call failed",
			"operation", operation,
			"status", dsErr.Status,
			"message", dsErr.Message,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	} else {
		logger.Error("downstream call failed",
			"operation", operation,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}

	writeError(w, http.StatusBadGateway, "downstream request failed")
}
