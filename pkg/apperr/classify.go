package apperr

import (
	"errors"

	"github.com/mihaimyh/fitgen/pkg/auth"
	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/generate"
	"github.com/mihaimyh/fitgen/pkg/normalize"
	"github.com/mihaimyh/fitgen/pkg/quota"
	"github.com/mihaimyh/fitgen/pkg/tasks"
)

// From converts any error into an *Error, classifying the sentinel errors of
// the domain packages. Unrecognized errors become CodeInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}

	var verr *tasks.ValidationError
	switch {
	case errors.As(err, &verr):
		return Wrap(CodeInvalidRequest, err, "invalid payload").WithDetails(verr.Fields)
	case errors.Is(err, tasks.ErrUnknownTask):
		return Wrap(CodeUnknownTask, err, "unknown task")
	case errors.Is(err, tasks.ErrInvalidPayload),
		errors.Is(err, tasks.ErrImageRequired),
		errors.Is(err, generate.ErrInvalidImage),
		errors.Is(err, quota.ErrInvalidCategory):
		return Wrap(CodeInvalidRequest, err, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		return Wrap(CodeUnauthenticated, err, "")
	case errors.Is(err, quota.ErrQuotaExceeded):
		return Wrap(CodeQuotaExceeded, err, "")
	case errors.Is(err, generate.ErrMissingAPIKey),
		errors.Is(err, billing.ErrProviderNotConfigured),
		errors.Is(err, billing.ErrPriceNotConfigured):
		return Wrap(CodeConfigError, err, "")
	case errors.Is(err, generate.ErrEmptyResponse):
		return Wrap(CodeEmptyResponse, err, "")
	case generate.IsProviderError(err):
		return Wrap(CodeProviderError, err, "")
	case errors.Is(err, normalize.ErrValidationFailed):
		return Wrap(CodeAIValidationFailed, err, "")
	case errors.Is(err, billing.ErrInvalidWebhookSignature):
		return Wrap(CodeInvalidSignature, err, "")
	case errors.Is(err, billing.ErrInvalidWebhookPayload):
		return Wrap(CodeInvalidRequest, err, "invalid webhook payload")
	case errors.Is(err, billing.ErrCustomerNotFound),
		errors.Is(err, billing.ErrUserNotFound):
		return Wrap(CodeNotFound, err, "no billing account for this user")
	default:
		return Wrap(CodeInternal, err, "")
	}
}
