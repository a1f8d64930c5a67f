// Package apperr defines the stable error codes returned to clients and the
// JSON envelope they are written in.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-checkable error identifier
type Code string

const (
	CodeUnauthenticated    Code = "unauthenticated"
	CodeOriginRejected     Code = "origin_rejected"
	CodeQuotaExceeded      Code = "quota_exceeded"
	CodeMethodNotAllowed   Code = "method_not_allowed"
	CodeInvalidRequest     Code = "invalid_request"
	CodeUnknownTask        Code = "unknown_task"
	CodeProviderError      Code = "provider_error"
	CodeEmptyResponse      Code = "empty_response"
	CodeAIValidationFailed Code = "ai_validation_failed"
	CodeConfigError        Code = "config_error"
	CodeInvalidSignature   Code = "invalid_signature"
	CodeNotFound           Code = "not_found"
	CodeRateLimited        Code = "rate_limited"
	CodeInternal           Code = "internal"
)

// Metadata describes how a code is surfaced
type Metadata struct {
	HTTPStatus int
	// Refundable errors release the quota unit consumed at admission
	Refundable     bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeUnauthenticated: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeOriginRejected: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "origin not allowed",
	},
	CodeQuotaExceeded: {
		HTTPStatus:     http.StatusTooManyRequests,
		PublicMessage:  "quota exceeded for this period",
		DetailsAllowed: true,
	},
	CodeMethodNotAllowed: {
		HTTPStatus:    http.StatusMethodNotAllowed,
		PublicMessage: "method not allowed",
	},
	CodeInvalidRequest: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid request",
		DetailsAllowed: true,
	},
	CodeUnknownTask: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "unknown task",
	},
	CodeProviderError: {
		HTTPStatus:    http.StatusBadGateway,
		Refundable:    true,
		PublicMessage: "generation failed, please try again",
	},
	CodeEmptyResponse: {
		HTTPStatus:    http.StatusBadGateway,
		Refundable:    true,
		PublicMessage: "generation returned no content, please try again",
	},
	CodeAIValidationFailed: {
		HTTPStatus:    http.StatusBadGateway,
		Refundable:    true,
		PublicMessage: "generated content could not be validated, please try again",
	},
	CodeConfigError: {
		HTTPStatus:    http.StatusInternalServerError,
		Refundable:    true,
		PublicMessage: "service misconfigured",
	},
	CodeInvalidSignature: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "invalid signature",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeRateLimited: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "too many requests",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Refundable:    true,
		PublicMessage: "internal error",
	},
}

// MetadataFor returns the metadata of code, or of CodeInternal when unknown
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is an error with a stable code
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the *Error in err's chain, or nil
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// Refundable reports whether err should release an admitted quota unit
func Refundable(err error) bool {
	return MetadataFor(From(err).Code()).Refundable
}
