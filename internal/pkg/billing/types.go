package billing

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/membergate/membergate/internal/pkg/anet"
)

// Processor-imposed limits on recurring billing periods.
var (
	ErrRenewalPeriodTooShort = errors.New("billing: Authorize.net does not permit renewal periods shorter than 7 days")
	ErrRenewalPeriodTooLong  = errors.New("billing: Authorize.net does not permit renewal periods longer than 1 year")
)

// SignupRequest is one checkout submission. The membership and its pending
// payment are created by the platform before the gateway is invoked; the
// gateway only transitions them.
type SignupRequest struct {
	MembershipID     uint   `json:"membership_id" validate:"required"`
	PendingPaymentID uint   `json:"pending_payment_id" validate:"required"`
	CustomerID       uint   `json:"customer_id"`
	UserID           uint   `json:"user_id"`
	Email            string `json:"email" validate:"omitempty,email"`

	CardNumber   string `json:"card_number" validate:"required"`
	CardName     string `json:"card_name" validate:"required"`
	CardCVC      string `json:"card_cvc" validate:"required"`
	CardZip      string `json:"card_zip" validate:"required"`
	CardExpMonth int    `json:"card_exp_month" validate:"required,min=1,max=12"`
	CardExpYear  int    `json:"card_exp_year" validate:"required,min=2000"`

	SubscriptionName string `json:"subscription_name" validate:"required"`
	SubscriptionKey  string `json:"subscription_key" validate:"required"`

	InitialAmount   float64 `json:"initial_amount" validate:"min=0"`
	RecurringAmount float64 `json:"recurring_amount" validate:"min=0"`
	AutoRenew       bool    `json:"auto_renew"`
	Trial           bool    `json:"trial"`

	DurationLength int    `json:"duration_length" validate:"required,min=1"`
	DurationUnit   string `json:"duration_unit" validate:"required,oneof=day month year"`

	// StartDate delays the first recurring charge (free trials, scheduled
	// starts). Nil means billing starts today.
	StartDate *time.Time `json:"start_date,omitempty"`

	// ReturnURL, when set, switches the checkout controller into the
	// redirect flow used by hosted registration forms.
	ReturnURL string `json:"return_url,omitempty"`
}

var validate = validator.New()

// Validate checks field presence plus the renewal period limits the
// processor enforces for recurring subscriptions.
func (r *SignupRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}

	if r.AutoRenew {
		if r.DurationUnit == "day" && r.DurationLength < 7 {
			return ErrRenewalPeriodTooShort
		}
		if r.DurationUnit == "year" && r.DurationLength > 1 {
			return ErrRenewalPeriodTooLong
		}
	}
	return nil
}

// Card builds the gateway card value from the submitted fields.
func (r *SignupRequest) Card() anet.Card {
	return anet.Card{
		Number:   strings.TrimSpace(r.CardNumber),
		ExpYear:  r.CardExpYear,
		ExpMonth: r.CardExpMonth,
		Code:     strings.TrimSpace(r.CardCVC),
		Name:     strings.TrimSpace(r.CardName),
		Zip:      strings.TrimSpace(r.CardZip),
	}
}

// CardholderNames splits the name on card into first and last name,
// falling back to the whole string when only one name was given.
func (r *SignupRequest) CardholderNames() (string, string) {
	parts := strings.Fields(strings.TrimSpace(r.CardName))
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// SignupResult reports the outcome of a successful checkout.
type SignupResult struct {
	MembershipID          uint   `json:"membership_id"`
	Activated             bool   `json:"activated"`
	GatewaySubscriptionID string `json:"gateway_subscription_id,omitempty"`
	TransactionID         string `json:"transaction_id,omitempty"`
	AutoRenewDisabled     bool   `json:"auto_renew_disabled,omitempty"`
	NoChargeActivation    bool   `json:"no_charge_activation,omitempty"`
}
