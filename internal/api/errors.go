package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cdnilsen/eliot-web/internal/util"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "EW-API-4000"

	switch {
	case status >= 500 && status != http.StatusBadGateway:
		raw := ""
		if err != nil {
			raw = strings.ToLower(err.Error())
		}
		switch {
		case errors.Is(err, util.ErrStoreUnavailable):
			return apiError{
				Code:    "EW-DB-5002",
				Message: "Verse store is unavailable. Check local services and retry.",
			}
		case strings.Contains(raw, "no such table"), strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "EW-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		default:
			return apiError{
				Code:    "EW-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "EW-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "EW-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "EW-API-4009"
		msg = "A reconciliation for this target is already running. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "EW-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "EW-API-5020"
		msg = "Workflow service unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case errors.Is(err, util.ErrUnknownBook):
			msg = "Unknown book name."
		case strings.Contains(strings.ToLower(err.Error()), "invalid limit"):
			msg = "Limit must be a non-negative integer."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
