package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/fitgen/pkg/apperr"
	"github.com/mihaimyh/fitgen/pkg/auth"
	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/pipeline"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// Handler provides the HTTP endpoints behind the request gate
type Handler struct {
	config Config
}

// Generate runs one generation task for the caller
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.config.GetIdentity(r)
	if !ok {
		h.handleError(w, r, nil, apperr.New(apperr.CodeUnauthenticated, "missing caller identity"))
		return
	}

	var in pipeline.Input
	if err := h.decode(w, r, &in); err != nil {
		h.handleError(w, r, caller, err)
		return
	}
	if strings.TrimSpace(string(in.Task)) == "" {
		h.handleError(w, r, caller, apperr.New(apperr.CodeInvalidRequest, "task is required"))
		return
	}

	out, err := h.config.Pipeline.Run(r.Context(), caller, in)
	if err != nil {
		h.handleError(w, r, caller, err, quota.F("task", string(in.Task)))
		return
	}

	apperr.WriteJSON(w, http.StatusOK, GenerateResponse{
		Text:      out.Text,
		Remaining: out.Remaining,
		ResetAt:   out.ResetAt.UTC().Format(time.RFC3339),
		Plan:      string(out.Plan),
	})
}

// GetUsage returns the caller's standing in every quota category
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.config.GetIdentity(r)
	if !ok {
		h.handleError(w, r, nil, apperr.New(apperr.CodeUnauthenticated, "missing caller identity"))
		return
	}

	snap, err := h.config.Usage.Usage(r.Context(), caller.UserID, caller.ClaimedPlan)
	if err != nil {
		h.handleError(w, r, caller, err)
		return
	}

	response := UsageResponse{
		UserID:     snap.UserID,
		Plan:       string(snap.Plan),
		Categories: make(map[string]quota.CategoryUsage, len(snap.Categories)),
	}
	if !snap.ResetAt.IsZero() {
		resetAt := snap.ResetAt.UTC()
		response.ResetAt = &resetAt
	}
	for cat, usage := range snap.Categories {
		response.Categories[string(cat)] = usage
	}

	apperr.WriteJSON(w, http.StatusOK, response)
}

// Checkout opens a subscription checkout session and returns its URL
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.config.GetIdentity(r)
	if !ok {
		h.handleError(w, r, nil, apperr.New(apperr.CodeUnauthenticated, "missing caller identity"))
		return
	}
	if h.config.Billing == nil {
		h.handleError(w, r, caller, billing.ErrProviderNotConfigured)
		return
	}

	var req CheckoutRequest
	if r.ContentLength != 0 {
		if err := h.decode(w, r, &req); err != nil {
			h.handleError(w, r, caller, err)
			return
		}
	}

	url, err := h.config.Billing.CheckoutURL(r.Context(), caller.UserID, req.Email,
		h.config.CheckoutSuccessURL, h.config.CheckoutCancelURL)
	if err != nil {
		h.handleError(w, r, caller, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, URLResponse{URL: url})
}

// Portal opens a billing portal session for the caller's customer
func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.config.GetIdentity(r)
	if !ok {
		h.handleError(w, r, nil, apperr.New(apperr.CodeUnauthenticated, "missing caller identity"))
		return
	}
	if h.config.Billing == nil {
		h.handleError(w, r, caller, billing.ErrProviderNotConfigured)
		return
	}

	url, err := h.config.Billing.PortalURL(r.Context(), caller.UserID, h.config.PortalReturnURL)
	if err != nil {
		h.handleError(w, r, caller, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, URLResponse{URL: url})
}

// Sync reconciles the caller's plan with the payment processor ("restore purchase")
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.config.GetIdentity(r)
	if !ok {
		h.handleError(w, r, nil, apperr.New(apperr.CodeUnauthenticated, "missing caller identity"))
		return
	}
	if h.config.Billing == nil {
		h.handleError(w, r, caller, billing.ErrProviderNotConfigured)
		return
	}

	plan, err := h.config.Billing.SyncUser(r.Context(), caller.UserID)
	if err != nil {
		h.handleError(w, r, caller, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, SyncResponse{Plan: string(plan)})
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body capped at MaxBodyBytes
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Wrap(apperr.CodeInvalidRequest, err, "request body too large")
		case errors.Is(err, io.EOF):
			return apperr.Wrap(apperr.CodeInvalidRequest, err, "request body is empty")
		default:
			return apperr.Wrap(apperr.CodeInvalidRequest, err, "request body is not valid JSON")
		}
	}
	return nil
}

// handleError writes err and logs it with the caller and route
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, caller *auth.Identity, err error, fields ...quota.Field) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	fields = append(fields, quota.F("path", r.URL.Path))
	if caller != nil {
		fields = append(fields, quota.F("user_id", caller.UserID))
	}
	apperr.WriteError(w, h.config.Logger, err, fields...)
}
