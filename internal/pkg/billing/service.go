package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/anet"
)

// gatewayIDPrefix namespaces processor ids stored in membership and payment
// records, so records from other gateways can never collide.
const gatewayIDPrefix = "anet_"

func prefixGatewayID(id string) string {
	return gatewayIDPrefix + id
}

func stripGatewayID(id string) string {
	return strings.TrimPrefix(id, gatewayIDPrefix)
}

// GatewayClient is the facade over the processor RPC operations the
// lifecycle engine drives. Satisfied by *anet.Client.
type GatewayClient interface {
	AuthorizeOnly(ctx context.Context, amount float64, card anet.Card, refID string) (*anet.TransactionResult, error)
	ChargeCard(ctx context.Context, amount float64, card anet.Card, order anet.ChargeOrder, firstName, lastName string, refID string) (*anet.TransactionResult, error)
	VoidTransaction(ctx context.Context, transactionID, refID string) error
	CreateSubscription(ctx context.Context, spec anet.SubscriptionSpec, refID string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID, refID string) error
	GetTransactionSubscription(ctx context.Context, transactionID string) (string, error)
}

// Notifier emits out-of-band notifications for events that require human or
// platform attention but must not fail the webhook acknowledgement.
type Notifier interface {
	PaymentFailed(m *models.Membership, ev *anet.GatewayEvent)
	DuplicatePayment(m *models.Membership, transactionID string)
}

// TransactionCache memoizes transaction-to-subscription lookups so webhook
// retries do not repeat the outbound RPC. A nil cache disables memoization.
type TransactionCache interface {
	Get(key string) (string, error)
	Set(key string, value string, ttl time.Duration) error
}

// Service is the subscription lifecycle engine: it maps parsed gateway
// events and synchronous checkout outcomes onto membership state
// transitions and payment records.
type Service struct {
	repo     Repository
	gateway  GatewayClient
	notifier Notifier
	cache    TransactionCache
	config   anet.Config
}

func NewService(repo Repository, gateway GatewayClient, notifier Notifier, cache TransactionCache, cfg anet.Config) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		cache:    cache,
		config:   cfg,
	}
}

// RecordWebhookEvent persists a delivery idempotently. The bool reports
// whether this delivery is new; a false means the processor retried an
// already-recorded notification.
func (s *Service) RecordWebhookEvent(eventID, eventType string, payload []byte, signatureValid bool) (bool, *models.BillingWebhookEvent, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		// Without a notification id the unique index would treat every such
		// delivery as the same event. Transaction-level dedup still applies.
		id = "generated:" + uuid.NewString()
	}
	event := &models.BillingWebhookEvent{
		Provider:        models.BillingProviderAuthorizeNet,
		ProviderEventID: id,
		EventType:       strings.TrimSpace(eventType),
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks a recorded delivery processed, storing the
// processing error if any.
func (s *Service) MarkWebhookProcessed(webhookEventID uint, processingErr error) error {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// HandleEvent applies one parsed webhook event to membership state.
//
// A nil return means the event is acknowledged, which covers applied
// transitions as well as the deliberate no-ops: unknown event kinds,
// unknown subscription ids, duplicate transactions and non-active
// memberships. Errors are reserved for store failures and structurally
// unusable events.
func (s *Service) HandleEvent(ctx context.Context, ev *anet.GatewayEvent) error {
	switch ev.Kind {
	case anet.KindSubscriptionCreated:
		return s.handleSubscriptionCreated(ev)
	case anet.KindChargeSucceeded, anet.KindChargeDeclined, anet.KindChargeErrored:
		return s.handleCharge(ctx, ev)
	case anet.KindSubscriptionSuspended:
		return s.handleSubscriptionEnded(ev, true)
	case anet.KindSubscriptionCancelled:
		return s.handleSubscriptionEnded(ev, false)
	default:
		// Forward compatibility: acknowledge without side effects.
		log.Printf("billing: ignoring unknown webhook event type %q", ev.RawType)
		return nil
	}
}

func (s *Service) handleSubscriptionCreated(ev *anet.GatewayEvent) error {
	membership, err := s.repo.FindMembershipBySubscriptionID(prefixGatewayID(ev.SubscriptionID))
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			log.Printf("billing: no membership for subscription %s, dropping %s", ev.SubscriptionID, ev.RawType)
			return nil
		}
		return err
	}

	// The subscription id was already stored at signup; this webhook just
	// confirms the profile exists processor-side.
	log.Printf("billing: subscription %s confirmed for membership #%d", ev.SubscriptionID, membership.ID)
	return nil
}

func (s *Service) handleCharge(ctx context.Context, ev *anet.GatewayEvent) error {
	if ev.TransactionID == "" {
		return anet.ErrMissingTransactionID
	}

	subscriptionID, err := s.transactionSubscription(ctx, ev.TransactionID)
	if err != nil {
		return fmt.Errorf("billing: transaction %s subscription lookup failed: %w", ev.TransactionID, err)
	}
	if subscriptionID == "" {
		log.Printf("billing: transaction %s is a one-time payment, nothing to reconcile", ev.TransactionID)
		return nil
	}

	membership, err := s.repo.FindMembershipBySubscriptionID(prefixGatewayID(subscriptionID))
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			log.Printf("billing: no membership for subscription %s, dropping %s", subscriptionID, ev.RawType)
			return nil
		}
		return err
	}

	switch ev.Kind {
	case anet.KindChargeSucceeded:
		return s.applyApprovedCharge(ctx, membership, ev)
	default:
		// Declined or errored renewal: notify, leave membership state to
		// the platform's dunning policy.
		log.Printf("billing: payment failure (code %d) for membership #%d, transaction %s",
			ev.ResponseCode, membership.ID, ev.TransactionID)
		if s.notifier != nil {
			s.notifier.PaymentFailed(membership, ev)
		}
		return nil
	}
}

// applyApprovedCharge settles an approved capture. The pending-payment
// branch belongs to the checkout-time charge; the other branch is a renewal.
func (s *Service) applyApprovedCharge(ctx context.Context, membership *models.Membership, ev *anet.GatewayEvent) error {
	transactionID := prefixGatewayID(ev.TransactionID)

	exists, err := s.repo.PaymentExists(transactionID)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("billing: duplicate payment %s for membership #%d, acknowledging", transactionID, membership.ID)
		if s.notifier != nil {
			s.notifier.DuplicatePayment(membership, transactionID)
		}
		return nil
	}

	pendingPaymentID, err := s.repo.GetMembershipMeta(membership.ID, models.MetaPendingPaymentID)
	if err != nil {
		return err
	}

	if pendingPaymentID != "" {
		if err := s.completePendingPayment(ctx, membership, pendingPaymentID, ev); err != nil {
			return err
		}
	} else {
		if err := s.insertRenewalPayment(membership, ev); err != nil {
			return err
		}
	}

	if err := s.repo.AddMembershipNote(membership.ID, "Subscription payment processed in Authorize.net"); err != nil {
		log.Printf("billing: failed to add note to membership #%d: %v", membership.ID, err)
	}
	return nil
}

func (s *Service) completePendingPayment(ctx context.Context, membership *models.Membership, pendingPaymentID string, ev *anet.GatewayEvent) error {
	var paymentID uint
	if _, err := fmt.Sscanf(pendingPaymentID, "%d", &paymentID); err != nil {
		return fmt.Errorf("billing: invalid pending payment id %q: %w", pendingPaymentID, err)
	}

	err := s.repo.CompletePayment(paymentID, PaymentUpdate{
		Date:          time.Now(),
		PaymentType:   models.PaymentTypeCreditCard,
		TransactionID: prefixGatewayID(ev.TransactionID),
		Amount:        ev.Amount,
		Status:        models.PaymentStatusComplete,
	})
	if err != nil {
		return err
	}

	if !membership.IsActive() {
		if err := s.repo.ActivateMembership(membership.ID); err != nil {
			return err
		}
	}

	// The checkout-time charge is confirmed, so the pre-authorization hold
	// can be released. Best effort: a void failure must not fail the ack.
	authTransID, err := s.repo.GetMembershipMeta(membership.ID, models.MetaAuthOnlyTransactionID)
	if err != nil {
		return err
	}
	if authTransID != "" {
		if err := s.gateway.VoidTransaction(ctx, authTransID, anet.NewRefID()); err != nil {
			log.Printf("billing: voiding authorization %s for membership #%d failed: %v", authTransID, membership.ID, err)
		} else {
			if err := s.repo.AddMembershipNote(membership.ID,
				fmt.Sprintf("Successfully voided initial authorization ID %s.", authTransID)); err != nil {
				log.Printf("billing: failed to add note to membership #%d: %v", membership.ID, err)
			}
			if err := s.repo.DeleteMembershipMeta(membership.ID, models.MetaAuthOnlyTransactionID); err != nil {
				log.Printf("billing: failed to clear auth meta on membership #%d: %v", membership.ID, err)
			}
		}
	}

	// Later approved charges for this membership are renewals.
	return s.repo.DeleteMembershipMeta(membership.ID, models.MetaPendingPaymentID)
}

func (s *Service) insertRenewalPayment(membership *models.Membership, ev *anet.GatewayEvent) error {
	inserted, err := s.repo.InsertPayment(&models.Payment{
		MembershipID:    membership.ID,
		CustomerID:      membership.CustomerID,
		UserID:          membership.UserID,
		Subscription:    membership.LevelName,
		SubscriptionKey: membership.SubscriptionKey,
		Amount:          ev.Amount,
		PaymentType:     models.PaymentTypeCreditCard,
		TransactionID:   prefixGatewayID(ev.TransactionID),
		Status:          models.PaymentStatusComplete,
		Gateway:         models.PaymentGatewayAuthorizeNet,
		Date:            time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		// A concurrent delivery won the race; that delivery owns the renewal.
		log.Printf("billing: payment %s inserted concurrently, acknowledging", prefixGatewayID(ev.TransactionID))
		return nil
	}

	return s.repo.RenewMembership(membership.ID, membership.Recurring)
}

func (s *Service) handleSubscriptionEnded(ev *anet.GatewayEvent, suspended bool) error {
	membership, err := s.repo.FindMembershipBySubscriptionID(prefixGatewayID(ev.SubscriptionID))
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			log.Printf("billing: no membership for subscription %s, dropping %s", ev.SubscriptionID, ev.RawType)
			return nil
		}
		return err
	}

	var applied bool
	var note string
	if suspended {
		applied, err = s.repo.ExpireMembership(membership.ID)
		note = "Membership expired via authorize.customer.subscription.suspended webhook."
	} else {
		applied, err = s.repo.CancelMembership(membership.ID)
		note = "Membership cancelled via authorize.customer.subscription.cancelled webhook."
	}
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("billing: membership #%d is not active, ignoring %s", membership.ID, ev.RawType)
		return nil
	}

	if err := s.repo.AddMembershipNote(membership.ID, note); err != nil {
		log.Printf("billing: failed to add note to membership #%d: %v", membership.ID, err)
	}
	return nil
}

// CancelMembership cancels the recurring subscription at the processor and
// then cancels the membership locally. Used for member- or admin-initiated
// cancellations; processor-initiated ones arrive via webhook instead.
func (s *Service) CancelMembership(ctx context.Context, membershipID uint) error {
	membership, err := s.repo.FindMembership(membershipID)
	if err != nil {
		return err
	}
	if membership.GatewaySubscriptionID == "" {
		return fmt.Errorf("billing: membership #%d has no gateway subscription", membershipID)
	}

	if err := s.gateway.CancelSubscription(ctx, stripGatewayID(membership.GatewaySubscriptionID), anet.NewRefID()); err != nil {
		return err
	}

	if _, err := s.repo.CancelMembership(membership.ID); err != nil {
		return err
	}
	if err := s.repo.AddMembershipNote(membership.ID, "Subscription cancelled in Authorize.net."); err != nil {
		log.Printf("billing: failed to add note to membership #%d: %v", membership.ID, err)
	}
	return nil
}

const transactionCacheTTL = 24 * time.Hour

// transactionSubscription resolves which subscription a transaction belongs
// to, memoizing the answer because the processor retries webhooks and the
// lookup is an outbound RPC.
func (s *Service) transactionSubscription(ctx context.Context, transactionID string) (string, error) {
	key := "anet:txnsub:" + transactionID
	if s.cache != nil {
		if cached, err := s.cache.Get(key); err == nil {
			return stripGatewayID(cached), nil
		}
	}

	subscriptionID, err := s.gateway.GetTransactionSubscription(ctx, transactionID)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		// Store with the prefix so an empty (one-time) result is still a
		// cache hit distinguishable from a miss.
		if err := s.cache.Set(key, prefixGatewayID(subscriptionID), transactionCacheTTL); err != nil {
			log.Printf("billing: caching subscription lookup for %s failed: %v", transactionID, err)
		}
	}
	return subscriptionID, nil
}
