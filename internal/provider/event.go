package provider

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType enumerates the webhook event kinds this service understands.
// Everything else is acknowledged and ignored.
type EventType string

const (
	EventTypePaymentSucceeded EventType = "payment_intent.succeeded"
	EventTypePaymentFailed    EventType = "payment_intent.payment_failed"
)

// Event is a decoded, verified webhook event. Exactly one of the typed
// payloads is set, matching Type.
type Event struct {
	ID         string
	Type       EventType
	OccurredAt time.Time

	Succeeded *PaymentSucceededData
	Failed    *PaymentFailedData
}

// PaymentSucceededData carries the metadata of a successful payment intent.
// Amount is informational only: settlement re-derives totals from the ledger
// and never trusts a single event's amount for aggregates.
type PaymentSucceededData struct {
	PaymentID    string
	EnrollmentID string
	ProviderRef  string
	Amount       int64
}

// PaymentFailedData carries the metadata of a failed payment intent.
type PaymentFailedData struct {
	PaymentID   string
	ProviderRef string
	Reason      string
}

type wireEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Created int64         `json:"created"`
	Data    wireEventData `json:"data"`
}

type wireEventData struct {
	Object json.RawMessage `json:"object"`
}

type wirePaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Metadata         map[string]string `json:"metadata"`
	LastFailureCode  string            `json:"last_failure_code"`
	LastFailureTitle string            `json:"last_failure_message"`
}

// ParseEvent decodes a verified raw payload into a typed Event.
//
// Unknown event types return ErrEventIgnored, events missing the metadata the
// settlement engine needs return ErrMalformedEvent. Both must be acknowledged
// by the caller: retrying cannot fix either one.
func ParseEvent(payload []byte) (*Event, error) {
	var raw wireEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrMalformedEvent
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, ErrMalformedEvent
	}

	eventType := EventType(strings.TrimSpace(raw.Type))
	switch eventType {
	case EventTypePaymentSucceeded, EventTypePaymentFailed:
	default:
		return nil, ErrEventIgnored
	}

	var intent wirePaymentIntent
	if err := json.Unmarshal(raw.Data.Object, &intent); err != nil {
		return nil, ErrMalformedEvent
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, ErrMalformedEvent
	}

	event := &Event{
		ID:         raw.ID,
		Type:       eventType,
		OccurredAt: eventTime(raw.Created),
	}

	paymentID := strings.TrimSpace(intent.Metadata["payment_id"])
	switch eventType {
	case EventTypePaymentSucceeded:
		enrollmentID := strings.TrimSpace(intent.Metadata["enrollment_id"])
		if paymentID == "" || enrollmentID == "" {
			return nil, ErrMalformedEvent
		}
		amount := intent.AmountReceived
		if amount <= 0 {
			amount = intent.Amount
		}
		event.Succeeded = &PaymentSucceededData{
			PaymentID:    paymentID,
			EnrollmentID: enrollmentID,
			ProviderRef:  intent.ID,
			Amount:       amount,
		}
	case EventTypePaymentFailed:
		if paymentID == "" {
			return nil, ErrMalformedEvent
		}
		reason := intent.LastFailureTitle
		if reason == "" {
			reason = intent.LastFailureCode
		}
		event.Failed = &PaymentFailedData{
			PaymentID:   paymentID,
			ProviderRef: intent.ID,
			Reason:      reason,
		}
	}

	return event, nil
}

func eventTime(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}
