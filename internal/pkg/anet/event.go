package anet

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind is the closed set of webhook event variants this gateway handles.
// Downstream logic switches exhaustively over it; an event-type string we do
// not know maps to KindUnknown, which is a normal outcome and is acknowledged
// without side effects.
type EventKind string

const (
	KindSubscriptionCreated   EventKind = "subscription_created"
	KindChargeSucceeded       EventKind = "charge_succeeded"
	KindChargeDeclined        EventKind = "charge_declined"
	KindChargeErrored         EventKind = "charge_errored"
	KindSubscriptionSuspended EventKind = "subscription_suspended"
	KindSubscriptionCancelled EventKind = "subscription_cancelled"
	KindUnknown               EventKind = "unknown"
)

// Response codes Authorize.net uses on authcapture payloads.
const (
	ResponseCodeApproved = 1
	ResponseCodeDeclined = 2
	ResponseCodeError    = 3
)

const (
	eventSubscriptionCreated   = "net.authorize.customer.subscription.created"
	eventPaymentAuthCapture    = "net.authorize.payment.authcapture.created"
	eventSubscriptionSuspended = "net.authorize.customer.subscription.suspended"
	eventSubscriptionCancelled = "net.authorize.customer.subscription.cancelled"
)

// GatewayEvent is a webhook delivery decoded into a typed value. Fields not
// applicable to the kind stay zero. RawPayload keeps the original body for
// the audit store.
type GatewayEvent struct {
	Kind           EventKind
	RawType        string
	NotificationID string
	SubscriptionID string
	TransactionID  string
	Amount         float64
	ResponseCode   int
	RawPayload     json.RawMessage
}

type rawWebhook struct {
	NotificationID string `json:"notificationId"`
	EventType      string `json:"eventType"`
	Payload        struct {
		ID           string  `json:"id"`
		EntityName   string  `json:"entityName"`
		ResponseCode int     `json:"responseCode"`
		AuthAmount   float64 `json:"authAmount"`
	} `json:"payload"`
}

// ParseWebhookEvent decodes a raw webhook body into a GatewayEvent.
//
// Subscription events carry the subscription id in payload.id; the capture
// event carries a transaction id there instead, and its response code
// refines the kind into succeeded, declined or errored. The subscription a
// capture belongs to is not in the payload at all and has to be fetched via
// Client.GetTransactionSubscription.
func ParseWebhookEvent(rawBody []byte) (*GatewayEvent, error) {
	if len(rawBody) == 0 {
		return nil, ErrEmptyBody
	}

	var raw rawWebhook
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyBody, err)
	}

	eventType := strings.TrimSpace(raw.EventType)
	if eventType == "" {
		return nil, ErrMissingEventType
	}

	ev := &GatewayEvent{
		Kind:           KindUnknown,
		RawType:        eventType,
		NotificationID: strings.TrimSpace(raw.NotificationID),
		RawPayload:     append(json.RawMessage(nil), rawBody...),
	}

	switch eventType {
	case eventSubscriptionCreated:
		ev.Kind = KindSubscriptionCreated
		ev.SubscriptionID = strings.TrimSpace(raw.Payload.ID)
	case eventSubscriptionSuspended:
		ev.Kind = KindSubscriptionSuspended
		ev.SubscriptionID = strings.TrimSpace(raw.Payload.ID)
	case eventSubscriptionCancelled:
		ev.Kind = KindSubscriptionCancelled
		ev.SubscriptionID = strings.TrimSpace(raw.Payload.ID)
	case eventPaymentAuthCapture:
		ev.TransactionID = strings.TrimSpace(raw.Payload.ID)
		ev.Amount = raw.Payload.AuthAmount
		ev.ResponseCode = raw.Payload.ResponseCode
		switch raw.Payload.ResponseCode {
		case ResponseCodeApproved:
			ev.Kind = KindChargeSucceeded
		case ResponseCodeDeclined:
			ev.Kind = KindChargeDeclined
		default:
			ev.Kind = KindChargeErrored
		}
	}

	return ev, nil
}
