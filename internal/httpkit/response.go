package httpkit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"manimrender/internal/pkg/errors"
)

// MaxBodyBytes bounds request bodies. Scene scripts are small text files.
const MaxBodyBytes = 2 << 20

// ErrorBody is the failure shape shared by every endpoint. It matches the
// failure variant of the render result.
type ErrorBody struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// DecodeJSON decodes a single JSON object from the request body, rejecting
// unknown fields and trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "httpkit.decode", "invalid json body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.Validationf("invalid json body: unexpected data after object")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code errors.Code, msg string, details map[string]any) {
	WriteJSON(w, status, ErrorBody{
		Success: false,
		Error:   msg,
		Code:    string(code),
		Details: details,
	})
}

// WriteError writes err using its code, HTTP status and fields.
func WriteError(w http.ResponseWriter, err error) {
	WriteErr(w, errors.GetHTTPStatus(err), errors.GetCode(err), errors.Describe(err), stringify(errors.GetFields(err)))
}

func stringify(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string, int, int64, bool:
			out[k] = val
		case error:
			out[k] = val.Error()
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
