package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"subadmin/internal/types"
)

const maxRequestBodySize = 1 << 20

// APIResponse is the success envelope. Meta is set for collections.
type APIResponse struct {
	Data any                 `json:"data,omitempty"`
	Meta *types.ResponseMeta `json:"meta,omitempty"`
}

// APIErrorResponse is the error envelope.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Data writes data inside the success envelope.
func Data(w http.ResponseWriter, r *http.Request, status int, data any) {
	JSON(w, r, status, APIResponse{Data: data})
}

// List writes a filtered collection with its totals in meta. An empty
// result is encoded as [] rather than null.
func List[T any](w http.ResponseWriter, r *http.Request, res types.ListResult[T]) {
	rows := res.Data
	if rows == nil {
		rows = []T{}
	}
	total, totalAll := res.Total, res.TotalAll
	JSON(w, r, http.StatusOK, APIResponse{
		Data: rows,
		Meta: &types.ResponseMeta{Total: &total, TotalAll: &totalAll},
	})
}

// JSON encodes v before writing the header, so an encoding failure still
// becomes a well-formed 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorEnvelope(r, types.ErrCodeInternalUnexpected, "failed to encode response", nil))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err as an error envelope. Only AppError messages reach the
// client; any other error is reported as internal_unexpected_error.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		JSON(w, r, http.StatusInternalServerError,
			errorEnvelope(r, types.ErrCodeInternalUnexpected, "an unexpected error occurred", nil))
		return
	}
	JSON(w, r, appErr.HTTPStatus(), errorEnvelope(r, appErr.Code, appErr.Message, appErr.Details))
}

func errorEnvelope(r *http.Request, code types.ErrorCode, message string, details map[string]any) APIErrorResponse {
	return APIErrorResponse{Error: ErrorDetail{
		Code:      string(code),
		Message:   message,
		Details:   details,
		RequestID: types.GetRequestID(r.Context()),
	}}
}

// DecodeJSON reads exactly one JSON value into dst. Oversized bodies, unknown
// fields and trailing values fail with validation_invalid_json.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return invalidJSON("request body must contain a single JSON object", nil, nil)
	}
	return nil
}

func invalidJSON(message string, err error, details map[string]any) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJSON, message, err, details)
}

func decodeError(err error) *types.AppError {
	var (
		tooLarge *http.MaxBytesError
		syntax   *json.SyntaxError
		mismatch *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return invalidJSON("request body must not be empty", err, nil)
	case errors.As(err, &tooLarge):
		return invalidJSON("request body must not exceed 1MB", err, nil)
	case errors.As(err, &syntax):
		return invalidJSON("malformed JSON at offset "+strconv.FormatInt(syntax.Offset, 10), err, nil)
	case errors.As(err, &mismatch):
		return invalidJSON("invalid value for field "+mismatch.Field, err,
			map[string]any{"field": mismatch.Field, "expected": mismatch.Type.String()})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return invalidJSON("unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "), err, nil)
	default:
		return invalidJSON("invalid JSON in request body", err, nil)
	}
}
