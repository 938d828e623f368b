package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/anet"
)

// trialAuthAmount is charged as a pre-authorization when the first real
// charge would be zero, to validate the card before creating the profile.
const trialAuthAmount = 1.00

// ProcessSignup runs one checkout: it validates the submission, charges or
// subscribes the card at the processor and settles the pending payment the
// platform created for this membership.
func (s *Service) ProcessSignup(ctx context.Context, req *SignupRequest) (*SignupResult, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	membership, err := s.repo.FindMembership(req.MembershipID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetMembershipMeta(membership.ID, models.MetaPendingPaymentID,
		fmt.Sprintf("%d", req.PendingPaymentID)); err != nil {
		return nil, err
	}

	result := &SignupResult{MembershipID: membership.ID}

	// A card that expires before the first renewal can never fund it. The
	// signup still goes through, it just falls back to a non-renewing term.
	autoRenew := req.AutoRenew
	if autoRenew && req.Card().ExpiresBefore(firstRenewalDate(req)) {
		autoRenew = false
		result.AutoRenewDisabled = true
		if err := s.repo.AddMembershipNote(membership.ID,
			"Auto renew disabled: card on file expires before the first renewal date."); err != nil {
			log.Printf("billing: failed to add note to membership #%d: %v", membership.ID, err)
		}
	}

	if autoRenew {
		if err := s.processRecurringSignup(ctx, membership, req, result); err != nil {
			return nil, err
		}
	} else {
		if err := s.processOneTimeSignup(ctx, membership, req, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// processRecurringSignup pre-authorizes the card, creates the recurring
// profile and leaves the pending payment to be settled by the first charge
// webhook. A zero or trial first charge settles immediately instead.
func (s *Service) processRecurringSignup(ctx context.Context, membership *models.Membership, req *SignupRequest, result *SignupResult) error {
	// Validate the card with a pre-authorization when something is due today
	// or a trial starts. Not done when today's amount is zero from credits
	// or discounts: nothing confirms the hold later, so it would linger.
	if req.InitialAmount > 0 || req.Trial {
		authAmount := req.InitialAmount
		if authAmount <= 0 {
			authAmount = trialAuthAmount
		}

		auth, err := s.gateway.AuthorizeOnly(ctx, authAmount, req.Card(), anet.NewRefID())
		if err != nil {
			return err
		}
		if err := s.repo.SetMembershipMeta(membership.ID, models.MetaAuthOnlyTransactionID, auth.TransactionID); err != nil {
			return err
		}
		if err := s.repo.AddMembershipNote(membership.ID,
			fmt.Sprintf("Initial authorization of $%.2f successful (ID %s).", authAmount, auth.TransactionID)); err != nil {
			log.Printf("billing: failed to add note to membership #%d: %v", membership.ID, err)
		}
	}

	length, unit := subscriptionInterval(req)
	firstName, lastName := req.CardholderNames()

	spec := anet.SubscriptionSpec{
		Name:             req.SubscriptionName,
		Amount:           req.RecurringAmount,
		IntervalLength:   length,
		IntervalUnit:     unit,
		StartDate:        subscriptionStartDate(req),
		Card:             req.Card(),
		OrderDescription: req.SubscriptionKey,
		FirstName:        firstName,
		LastName:         lastName,
		Zip:              req.CardZip,
	}
	if req.Trial || req.InitialAmount != req.RecurringAmount {
		spec.TrialOccurrences = 1
		spec.TrialAmount = req.InitialAmount
	}

	subscriptionID, err := s.gateway.CreateSubscription(ctx, spec, anet.NewRefID())
	if err != nil {
		return err
	}
	result.GatewaySubscriptionID = prefixGatewayID(subscriptionID)

	if err := s.repo.SetGatewaySubscriptionID(membership.ID, result.GatewaySubscriptionID); err != nil {
		return err
	}
	if err := s.repo.SetMembershipRecurring(membership.ID, true); err != nil {
		return err
	}

	if req.InitialAmount <= 0 || req.Trial {
		// The first real charge is in the future, so no webhook will settle
		// the pending payment. Settle it now and activate.
		err := s.repo.CompletePayment(req.PendingPaymentID, PaymentUpdate{
			Date:        time.Now(),
			PaymentType: models.PaymentTypeCreditCard,
			Amount:      req.InitialAmount,
			Status:      models.PaymentStatusComplete,
		})
		if err != nil {
			return err
		}
		if err := s.repo.DeleteMembershipMeta(membership.ID, models.MetaPendingPaymentID); err != nil {
			return err
		}
		result.NoChargeActivation = req.InitialAmount <= 0
	}

	// Activate optimistically. The first charge webhook settles the pending
	// payment and confirms; a failure arrives as a declined authcapture.
	if err := s.repo.ActivateMembership(membership.ID); err != nil {
		return err
	}
	result.Activated = true
	return nil
}

// processOneTimeSignup captures the full term in a single transaction and
// activates the membership synchronously.
func (s *Service) processOneTimeSignup(ctx context.Context, membership *models.Membership, req *SignupRequest, result *SignupResult) error {
	amount := req.InitialAmount

	if amount <= 0 {
		// Nothing to charge: settle and activate without touching the
		// processor at all.
		err := s.repo.CompletePayment(req.PendingPaymentID, PaymentUpdate{
			Date:        time.Now(),
			PaymentType: models.PaymentTypeOneTime,
			Amount:      0,
			Status:      models.PaymentStatusComplete,
		})
		if err != nil {
			return err
		}
		if err := s.repo.DeleteMembershipMeta(membership.ID, models.MetaPendingPaymentID); err != nil {
			return err
		}
		if err := s.repo.ActivateMembership(membership.ID); err != nil {
			return err
		}
		result.Activated = true
		result.NoChargeActivation = true
		return nil
	}

	firstName, lastName := req.CardholderNames()
	order := anet.ChargeOrder{
		InvoiceNumber: fmt.Sprintf("%d", req.PendingPaymentID),
		Description:   req.SubscriptionName,
		Email:         req.Email,
	}

	charge, err := s.gateway.ChargeCard(ctx, amount, req.Card(), order, firstName, lastName, anet.NewRefID())
	if err != nil {
		return err
	}

	// The response hash proves the approval really came from the processor
	// and covers this exact transaction and amount.
	computed, err := anet.ComputeIntegrityHash(s.config.APILoginID, charge.TransactionID, amount, s.config.SignatureKey)
	if err != nil {
		return err
	}
	if !anet.VerifyIntegrityHash(charge.IntegrityHash, computed) {
		return anet.ErrIntegrityMismatch
	}

	result.TransactionID = prefixGatewayID(charge.TransactionID)

	err = s.repo.CompletePayment(req.PendingPaymentID, PaymentUpdate{
		Date:          time.Now(),
		PaymentType:   models.PaymentTypeOneTime,
		TransactionID: result.TransactionID,
		Amount:        amount,
		Status:        models.PaymentStatusComplete,
	})
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMembershipMeta(membership.ID, models.MetaPendingPaymentID); err != nil {
		return err
	}
	if err := s.repo.ActivateMembership(membership.ID); err != nil {
		return err
	}
	result.Activated = true

	if err := s.repo.AddMembershipNote(membership.ID,
		fmt.Sprintf("One-time payment processed in Authorize.net (ID %s).", charge.TransactionID)); err != nil {
		log.Printf("billing: failed to add note to membership #%d: %v", membership.ID, err)
	}
	return nil
}

// subscriptionInterval maps the plan duration onto the units the recurring
// API accepts. It has no year unit, so years become months.
func subscriptionInterval(req *SignupRequest) (int, string) {
	switch req.DurationUnit {
	case "year":
		return req.DurationLength * 12, "months"
	case "month":
		return req.DurationLength, "months"
	default:
		return req.DurationLength, "days"
	}
}

// subscriptionStartDate is when the recurring profile begins charging.
func subscriptionStartDate(req *SignupRequest) time.Time {
	if req.StartDate != nil {
		return *req.StartDate
	}
	return time.Now()
}

// firstRenewalDate is the checkout date pushed forward by one plan term.
func firstRenewalDate(req *SignupRequest) time.Time {
	start := subscriptionStartDate(req)
	switch req.DurationUnit {
	case "year":
		return start.AddDate(req.DurationLength, 0, 0)
	case "month":
		return start.AddDate(0, req.DurationLength, 0)
	default:
		return start.AddDate(0, 0, req.DurationLength)
	}
}
