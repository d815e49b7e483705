// Package handlers holds the HTTP handlers of the chat API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Bezhuang/my-little-app/internal/api/ctxkeys"
)

const (
	headerContentType = "Content-Type"
	mimeJSON          = "application/json"

	maxRequestBody = 1 << 20

	errMissingUserContext = "missing user context"
	errInvalidBody        = "invalid request body"
)

// userIDFrom retrieves the authenticated user id injected by AuthMiddleware.
// It writes the 401 itself and reports false when the id is absent.
func userIDFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := ctxkeys.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingUserContext)
		return 0, false
	}
	return id, true
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are ignored.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// parseLimit reads ?limit=, falling back to def and capping at max.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if lim, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && lim > 0 {
		limit = lim
	}
	if limit > max {
		limit = max
	}
	return limit
}

// parseID parses a positive integer path parameter.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
