package anet

import (
	"errors"
	"testing"
)

func TestParseWebhookEvent_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind EventKind
		wantSub  string
		wantTxn  string
	}{
		{
			name:     "subscription created",
			body:     `{"notificationId":"n-1","eventType":"net.authorize.customer.subscription.created","payload":{"id":"1397","entityName":"subscription"}}`,
			wantKind: KindSubscriptionCreated,
			wantSub:  "1397",
		},
		{
			name:     "charge approved",
			body:     `{"notificationId":"n-2","eventType":"net.authorize.payment.authcapture.created","payload":{"id":"60998","responseCode":1,"authAmount":25.00,"entityName":"transaction"}}`,
			wantKind: KindChargeSucceeded,
			wantTxn:  "60998",
		},
		{
			name:     "charge declined",
			body:     `{"eventType":"net.authorize.payment.authcapture.created","payload":{"id":"60999","responseCode":2,"authAmount":25.00}}`,
			wantKind: KindChargeDeclined,
			wantTxn:  "60999",
		},
		{
			name:     "charge errored",
			body:     `{"eventType":"net.authorize.payment.authcapture.created","payload":{"id":"61000","responseCode":3}}`,
			wantKind: KindChargeErrored,
			wantTxn:  "61000",
		},
		{
			name:     "subscription suspended",
			body:     `{"eventType":"net.authorize.customer.subscription.suspended","payload":{"id":"1397","status":"suspended"}}`,
			wantKind: KindSubscriptionSuspended,
			wantSub:  "1397",
		},
		{
			name:     "subscription cancelled",
			body:     `{"eventType":"net.authorize.customer.subscription.cancelled","payload":{"id":"1397","status":"cancelled"}}`,
			wantKind: KindSubscriptionCancelled,
			wantSub:  "1397",
		},
		{
			name:     "unknown event type",
			body:     `{"eventType":"net.authorize.customer.created","payload":{"id":"77"}}`,
			wantKind: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseWebhookEvent([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected parse error: %v", err)
			}
			if ev.Kind != tt.wantKind {
				t.Fatalf("kind = %q, want %q", ev.Kind, tt.wantKind)
			}
			if ev.SubscriptionID != tt.wantSub {
				t.Fatalf("subscription id = %q, want %q", ev.SubscriptionID, tt.wantSub)
			}
			if ev.TransactionID != tt.wantTxn {
				t.Fatalf("transaction id = %q, want %q", ev.TransactionID, tt.wantTxn)
			}
			if len(ev.RawPayload) == 0 {
				t.Fatalf("raw payload must be retained")
			}
		})
	}
}

func TestParseWebhookEvent_Amount(t *testing.T) {
	ev, err := ParseWebhookEvent([]byte(`{"eventType":"net.authorize.payment.authcapture.created","payload":{"id":"1","responseCode":1,"authAmount":19.99}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Amount != 19.99 {
		t.Fatalf("amount = %v, want 19.99", ev.Amount)
	}
	if ev.ResponseCode != 1 {
		t.Fatalf("response code = %d, want 1", ev.ResponseCode)
	}
}

func TestParseWebhookEvent_Errors(t *testing.T) {
	if _, err := ParseWebhookEvent(nil); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("empty body: got %v, want ErrEmptyBody", err)
	}
	if _, err := ParseWebhookEvent([]byte("{not json")); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("malformed body: got %v, want ErrEmptyBody", err)
	}
	if _, err := ParseWebhookEvent([]byte(`{"payload":{"id":"1"}}`)); !errors.Is(err, ErrMissingEventType) {
		t.Fatalf("missing event type: got %v, want ErrMissingEventType", err)
	}
}
