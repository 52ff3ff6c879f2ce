//
//
package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// ContentType is the only request content type accepted, and the content
// type of every response.
const ContentType = "application/json;charset=UTF-8"

// Error codes carried in the error envelope.
const (
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeBadRequest           = "BAD_REQUEST"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeUnavailable          = "UNAVAILABLE"
	CodeTimeout              = "TIMEOUT"
)

// ErrorEnvelope is the body of every rejected request.
type ErrorEnvelope struct {
	Result        string `json:"result"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

// WriteError writes an error envelope. An empty correlationID gets a fresh one.
func WriteError(w http.ResponseWriter, status int, code, message, correlationID string) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	body, err := json.Marshal(ErrorEnvelope{
		Result:        "error",
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
	})
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, body)
}

// writeJSON writes an already encoded body with exact length headers.
func writeJSON(w http.ResponseWriter, status int, body []byte) {
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
