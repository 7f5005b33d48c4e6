// Package handlers contains the HTTP handlers of the admin console's /v1 API.
//
// Each handler depends on a narrow service interface declared next to it so
// tests can substitute function-field mocks.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"subadmin/internal/core"
	"subadmin/internal/types"
)

// Guard returns middleware that requires a permission. core.Server's
// RequirePermission satisfies it.
type Guard func(p types.Permission) func(http.Handler) http.Handler

// AllowAll is a Guard that never blocks.
func AllowAll(types.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func guardOrAllow(g Guard) Guard {
	if g == nil {
		return AllowAll
	}
	return g
}

// pathID returns the {id} URL parameter.
func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// query returns a trimmed query parameter.
func query(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// queryInt parses an optional non-negative integer parameter.
func queryInt(r *http.Request, key string, max int) (int, error) {
	raw := query(r, key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > max {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
			key+" must be a number between 0 and "+strconv.Itoa(max), err, map[string]any{key: raw})
	}
	return n, nil
}

// decodeAndValidate reads a JSON body into dst and validates its tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *core.Validator, dst any) error {
	if err := core.DecodeJSON(w, r, dst); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return v.ValidateStruct(dst)
}

// decodeOptional decodes a body when one was sent. Transition endpoints
// accept an empty POST, including a chunked one with no bytes.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := core.DecodeJSON(w, r, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
