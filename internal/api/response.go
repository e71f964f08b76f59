package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

// Envelope wraps every JSON response
type Envelope struct {
	OK    bool          `json:"ok"`
	Data  interface{}   `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
	Meta  Meta          `json:"meta"`
}

func WriteOK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, status, true, data, "")
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	write(w, r, status, false, nil, msg)
}

// WritePipelineError maps a pipeline failure to a status code
func WritePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	WriteError(w, r, status, msg)
}

func write(w http.ResponseWriter, r *http.Request, status int, ok bool, data interface{}, errMsg string) {
	res := Envelope{
		OK: ok,
		Meta: Meta{
			RequestID: middleware.GetReqID(r.Context()),
		},
	}
	if ok {
		res.Data = data
	} else {
		if errMsg == "" {
			errMsg = http.StatusText(status)
		}
		res.Error = &ErrorPayload{
			Code:    codeFromStatus(status),
			Message: errMsg,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(res)
}

func statusFor(err error) int {
	if errors.Is(err, os.ErrNotExist) {
		return http.StatusNotFound
	}
	switch exam.TypeOf(err) {
	case exam.ErrorTypeInvalidInput:
		return http.StatusBadRequest
	case exam.ErrorTypeFetchFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusBadGateway:
		return "upstream_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		if status >= 200 && status < 300 {
			return ""
		}
		return "error"
	}
}
