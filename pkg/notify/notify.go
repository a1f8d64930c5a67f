// Package notify delivers best-effort plan change notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// EventPlanChanged is the type attribute of plan change messages
const EventPlanChanged = "plan.changed"

// PlanChangedMessage is the JSON body published for a plan change
type PlanChangedMessage struct {
	EventID         string    `json:"eventId"`
	Type            string    `json:"type"`
	UserID          string    `json:"userId"`
	PreviousPlan    string    `json:"previousPlan,omitempty"`
	NewPlan         string    `json:"newPlan"`
	Provider        string    `json:"provider"`
	ProviderEventID string    `json:"providerEventId,omitempty"`
	ProviderType    string    `json:"providerEventType,omitempty"`
	CustomerID      string    `json:"customerId,omitempty"`
	SubscriptionID  string    `json:"subscriptionId,omitempty"`
	Status          string    `json:"status,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
	PublishedAt     time.Time `json:"publishedAt"`
}

// NewPlanChangedMessage builds the message for event with a fresh event id
func NewPlanChangedMessage(event billing.WebhookEvent, now time.Time) PlanChangedMessage {
	occurred := event.EventTimestamp
	if occurred.IsZero() {
		occurred = now
	}
	return PlanChangedMessage{
		EventID:         uuid.NewString(),
		Type:            EventPlanChanged,
		UserID:          event.UserID,
		PreviousPlan:    string(event.PreviousPlan),
		NewPlan:         string(event.NewPlan),
		Provider:        event.Provider,
		ProviderEventID: event.ID,
		ProviderType:    event.EventType,
		CustomerID:      event.CustomerID,
		SubscriptionID:  event.SubscriptionID,
		Status:          event.Status,
		OccurredAt:      occurred.UTC(),
		PublishedAt:     now.UTC(),
	}
}

// Attributes are the message attributes subscribers can filter on
func (m PlanChangedMessage) Attributes() map[string]string {
	return map[string]string{
		"type":     m.Type,
		"event_id": m.EventID,
		"user_id":  m.UserID,
		"new_plan": m.NewPlan,
		"provider": m.Provider,
	}
}

// LogNotifier writes plan changes to the log. It never fails.
type LogNotifier struct {
	logger quota.Logger
}

func NewLogNotifier(logger quota.Logger) *LogNotifier {
	if logger == nil {
		logger = &quota.NoopLogger{}
	}
	return &LogNotifier{logger: logger}
}

// PlanChanged implements billing.Notifier
func (n *LogNotifier) PlanChanged(_ context.Context, event billing.WebhookEvent) error {
	n.logger.Info("plan changed",
		quota.F("user_id", event.UserID),
		quota.F("from", string(event.PreviousPlan)),
		quota.F("to", string(event.NewPlan)),
		quota.F("provider", event.Provider),
		quota.F("event_type", event.EventType),
		quota.F("event_id", event.ID))
	return nil
}

// Multi fans a plan change out to several notifiers, attempting all of them
type Multi []billing.Notifier

// PlanChanged implements billing.Notifier
func (m Multi) PlanChanged(ctx context.Context, event billing.WebhookEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.PlanChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encode(m PlanChangedMessage) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode plan change: %w", err)
	}
	return data, nil
}

var (
	_ billing.Notifier = (*LogNotifier)(nil)
	_ billing.Notifier = Multi(nil)
)
