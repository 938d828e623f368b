package controllers

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/anet"
	"github.com/membergate/membergate/internal/pkg/billing"
)

const testSignatureKey = "48D1BB5D3EC37B2F4E8D4A1C9F2B7A6548D1BB5D3EC37B2F4E8D4A1C9F2B7A65"

// stubRepo is the minimal billing.Repository needed by webhook handling:
// an event store, one membership and a payment set.
type stubRepo struct {
	membership *models.Membership
	events     map[string]*models.BillingWebhookEvent
	processed  map[uint]string
	payments   map[string]bool
	renewals   int
	nextID     uint
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		events:    make(map[string]*models.BillingWebhookEvent),
		processed: make(map[uint]string),
		payments:  make(map[string]bool),
	}
}

func (r *stubRepo) FindMembership(id uint) (*models.Membership, error) {
	if r.membership != nil && r.membership.ID == id {
		return r.membership, nil
	}
	return nil, billing.ErrMembershipNotFound
}

func (r *stubRepo) FindMembershipBySubscriptionID(subID string) (*models.Membership, error) {
	if r.membership != nil && r.membership.GatewaySubscriptionID == subID {
		return r.membership, nil
	}
	return nil, billing.ErrMembershipNotFound
}

func (r *stubRepo) ActivateMembership(uint) error { return nil }

func (r *stubRepo) RenewMembership(uint, bool) error {
	r.renewals++
	return nil
}

func (r *stubRepo) ExpireMembership(uint) (bool, error)         { return true, nil }
func (r *stubRepo) CancelMembership(uint) (bool, error)         { return true, nil }
func (r *stubRepo) SetMembershipRecurring(uint, bool) error     { return nil }
func (r *stubRepo) SetGatewaySubscriptionID(uint, string) error { return nil }
func (r *stubRepo) AddMembershipNote(uint, string) error        { return nil }
func (r *stubRepo) GetMembershipMeta(uint, string) (string, error) {
	return "", nil
}
func (r *stubRepo) SetMembershipMeta(uint, string, string) error { return nil }
func (r *stubRepo) DeleteMembershipMeta(uint, string) error      { return nil }

func (r *stubRepo) PaymentExists(transactionID string) (bool, error) {
	return r.payments[transactionID], nil
}

func (r *stubRepo) InsertPayment(p *models.Payment) (bool, error) {
	if r.payments[p.TransactionID] {
		return false, nil
	}
	r.payments[p.TransactionID] = true
	return true, nil
}

func (r *stubRepo) CompletePayment(uint, billing.PaymentUpdate) error { return nil }

func (r *stubRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + ":" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		return false, existing, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.events[key] = event
	return true, event, nil
}

func (r *stubRepo) MarkWebhookProcessed(id uint, processingError string) error {
	r.processed[id] = processingError
	for _, ev := range r.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
		}
	}
	return nil
}

func signBody(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testSignatureKey))
	mac.Write(body)
	return "sha512=" + strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookApp(repo *stubRepo, gw billing.GatewayClient) *fiber.App {
	cfg := anet.Config{APILoginID: "login", TransactionKey: "key", SignatureKey: testSignatureKey}
	svc := billing.NewService(repo, gw, nil, nil, cfg)
	wc := NewWebhookController(svc, cfg)

	app := fiber.New()
	app.Post("/webhook/authorizenet", wc.HandleWebhook)
	return app
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/authorizenet", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(payload)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	repo := newStubRepo()
	app := newWebhookApp(repo, nil)

	body := []byte(`{"notificationId":"n1","eventType":"net.authorize.customer.subscription.cancelled","payload":{"id":"555"}}`)

	status, _ := postWebhook(t, app, body, "sha512=DEADBEEF")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = postWebhook(t, app, body, "")
	assert.Equal(t, fiber.StatusForbidden, status)

	assert.Empty(t, repo.events, "unverified deliveries are not recorded")
}

func TestWebhookMissingEventType(t *testing.T) {
	app := newWebhookApp(newStubRepo(), nil)

	body := []byte(`{"notificationId":"n1","payload":{"id":"555"}}`)
	status, text := postWebhook(t, app, body, signBody(body))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Missing event type.", text)
}

func TestWebhookAcknowledgesCancellation(t *testing.T) {
	repo := newStubRepo()
	repo.membership = &models.Membership{
		ID:                    1,
		Status:                models.MembershipStatusActive,
		GatewaySubscriptionID: "anet_555",
	}
	app := newWebhookApp(repo, nil)

	body := []byte(`{"notificationId":"n1","eventType":"net.authorize.customer.subscription.cancelled","payload":{"id":"555","entityName":"subscription"}}`)
	status, text := postWebhook(t, app, body, signBody(body))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "success", text)

	require.Len(t, repo.events, 1)
	assert.Equal(t, "", repo.processed[1], "processed without error")
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	repo := newStubRepo()
	repo.membership = &models.Membership{
		ID:                    1,
		Status:                models.MembershipStatusActive,
		GatewaySubscriptionID: "anet_555",
	}
	app := newWebhookApp(repo, nil)

	body := []byte(`{"notificationId":"n1","eventType":"net.authorize.customer.subscription.cancelled","payload":{"id":"555"}}`)
	sig := signBody(body)

	status, _ := postWebhook(t, app, body, sig)
	require.Equal(t, fiber.StatusOK, status)

	status, text := postWebhook(t, app, body, sig)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "success", text)
	assert.Len(t, repo.events, 1)
}

func TestWebhookRetryAfterFailureReprocesses(t *testing.T) {
	repo := newStubRepo()
	repo.membership = &models.Membership{
		ID:                    1,
		Status:                models.MembershipStatusActive,
		Recurring:             true,
		GatewaySubscriptionID: "anet_555",
	}
	gw := &stubGateway{txnSub: "555", txnSubFailures: 1}
	app := newWebhookApp(repo, gw)

	body := []byte(`{"notificationId":"n4","eventType":"net.authorize.payment.authcapture.created","payload":{"id":"40001","responseCode":1,"authAmount":29.99}}`)
	sig := signBody(body)

	// The subscription lookup fails transiently, so the first delivery is
	// recorded but answers non-2xx and the processor will retry.
	status, _ := postWebhook(t, app, body, sig)
	require.Equal(t, fiber.StatusInternalServerError, status)
	require.Len(t, repo.events, 1)
	require.NotEmpty(t, repo.processed[1])
	assert.Zero(t, repo.renewals)

	// The retry hits the already-recorded delivery and must be handled
	// again, not just acknowledged: the renewal would be lost otherwise.
	status, text := postWebhook(t, app, body, sig)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "success", text)
	assert.Equal(t, 1, repo.renewals)
	assert.True(t, repo.payments["anet_40001"])
	assert.Len(t, repo.events, 1)
	assert.Empty(t, repo.processed[1])
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	repo := newStubRepo()
	app := newWebhookApp(repo, nil)

	body := []byte(`{"notificationId":"n2","eventType":"net.authorize.customer.created","payload":{"id":"77"}}`)
	status, text := postWebhook(t, app, body, signBody(body))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "success", text)
	assert.Len(t, repo.events, 1, "unknown events are still recorded for audit")
}

func TestWebhookChargeMissingTransactionID(t *testing.T) {
	app := newWebhookApp(newStubRepo(), nil)

	body := []byte(`{"notificationId":"n3","eventType":"net.authorize.payment.authcapture.created","payload":{"responseCode":1,"authAmount":29.99}}`)
	status, text := postWebhook(t, app, body, signBody(body))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Missing transaction ID.", text)
}
