package apperr

import (
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// Envelope is the JSON body of every error response
type Envelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes err as an error envelope and logs it with fields.
// Only codes marked DetailsAllowed expose details, and internal or
// configuration failures always use the generic public message.
func WriteError(w http.ResponseWriter, logger quota.Logger, err error, fields ...quota.Field) {
	typed := From(err)
	if typed == nil {
		typed = New(CodeInternal, "")
	}
	meta := MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case CodeInternal, CodeConfigError, CodeProviderError:
	default:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := Envelope{Error: string(typed.Code()), Message: msg}
	if meta.DetailsAllowed {
		payload.Details = typed.Details()
	}

	if logger != nil {
		fields = append(fields, quota.F("error_code", string(typed.Code())), quota.F("status", meta.HTTPStatus))
		if err != nil {
			fields = append(fields, quota.F("error", err.Error()))
		}
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Info("request rejected", fields...)
		}
	}

	WriteJSON(w, meta.HTTPStatus, payload)
}

// WriteJSON writes v as JSON with status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
