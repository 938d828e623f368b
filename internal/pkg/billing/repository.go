package billing

import (
	"errors"
	"time"

	"github.com/membergate/membergate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMembershipNotFound is returned when no membership matches a lookup.
// Webhook handling treats it as a non-fatal acknowledge-and-drop.
var ErrMembershipNotFound = errors.New("billing: membership not found")

// PaymentUpdate carries the fields written when a pending payment completes.
type PaymentUpdate struct {
	Date          time.Time
	PaymentType   string
	TransactionID string
	Amount        float64
	Status        string
}

// Repository provides the membership/payment store operations the lifecycle
// engine needs. Membership transitions carry their guard condition into the
// store (e.g. expire only if currently active) so repeated delivery of the
// same event stays idempotent without in-process locking.
type Repository interface {
	FindMembership(id uint) (*models.Membership, error)
	FindMembershipBySubscriptionID(gatewaySubscriptionID string) (*models.Membership, error)

	ActivateMembership(id uint) error
	RenewMembership(id uint, recurring bool) error
	ExpireMembership(id uint) (bool, error)
	CancelMembership(id uint) (bool, error)
	SetMembershipRecurring(id uint, recurring bool) error
	SetGatewaySubscriptionID(id uint, gatewaySubscriptionID string) error
	AddMembershipNote(id uint, note string) error

	GetMembershipMeta(membershipID uint, key string) (string, error)
	SetMembershipMeta(membershipID uint, key, value string) error
	DeleteMembershipMeta(membershipID uint, key string) error

	PaymentExists(transactionID string) (bool, error)
	InsertPayment(p *models.Payment) (bool, error)
	CompletePayment(paymentID uint, update PaymentUpdate) error

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindMembership(id uint) (*models.Membership, error) {
	var m models.Membership
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) FindMembershipBySubscriptionID(gatewaySubscriptionID string) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("gateway_subscription_id = ?", gatewaySubscriptionID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) ActivateMembership(id uint) error {
	return r.db.Model(&models.Membership{}).Where("id = ?", id).
		Update("status", models.MembershipStatusActive).Error
}

// RenewMembership reactivates a membership for the paid term. The
// expiration stamp is cleared: the next end of term arrives via webhook.
func (r *gormRepository) RenewMembership(id uint, recurring bool) error {
	return r.db.Model(&models.Membership{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.MembershipStatusActive,
			"recurring":  recurring,
			"expires_at": nil,
		}).Error
}

// ExpireMembership transitions an active membership to expired. Returns
// false when the membership was not active, which makes repeated suspension
// events no-ops.
func (r *gormRepository) ExpireMembership(id uint) (bool, error) {
	tx := r.db.Model(&models.Membership{}).
		Where("id = ? AND status = ?", id, models.MembershipStatusActive).
		Updates(map[string]interface{}{
			"status":     models.MembershipStatusExpired,
			"expires_at": time.Now(),
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) CancelMembership(id uint) (bool, error) {
	tx := r.db.Model(&models.Membership{}).
		Where("id = ? AND status = ?", id, models.MembershipStatusActive).
		Updates(map[string]interface{}{
			"status":     models.MembershipStatusCancelled,
			"expires_at": time.Now(),
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) SetMembershipRecurring(id uint, recurring bool) error {
	return r.db.Model(&models.Membership{}).Where("id = ?", id).
		Update("recurring", recurring).Error
}

func (r *gormRepository) SetGatewaySubscriptionID(id uint, gatewaySubscriptionID string) error {
	return r.db.Model(&models.Membership{}).Where("id = ?", id).
		Update("gateway_subscription_id", gatewaySubscriptionID).Error
}

// AddMembershipNote appends an audit line in the database so concurrent
// webhook deliveries cannot clobber each other's notes.
func (r *gormRepository) AddMembershipNote(id uint, note string) error {
	line := time.Now().UTC().Format("2006-01-02 15:04:05") + " - " + note + "\n"
	return r.db.Model(&models.Membership{}).Where("id = ?", id).
		Update("notes", gorm.Expr("CONCAT(COALESCE(notes, ''), ?)", line)).Error
}

func (r *gormRepository) GetMembershipMeta(membershipID uint, key string) (string, error) {
	var meta models.MembershipMeta
	err := r.db.Where("membership_id = ? AND meta_key = ?", membershipID, key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return meta.MetaValue, nil
}

func (r *gormRepository) SetMembershipMeta(membershipID uint, key, value string) error {
	meta := models.MembershipMeta{
		MembershipID: membershipID,
		MetaKey:      key,
		MetaValue:    value,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "membership_id"},
			{Name: "meta_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value", "updated_at"}),
	}).Create(&meta).Error
}

func (r *gormRepository) DeleteMembershipMeta(membershipID uint, key string) error {
	return r.db.Where("membership_id = ? AND meta_key = ?", membershipID, key).
		Delete(&models.MembershipMeta{}).Error
}

func (r *gormRepository) PaymentExists(transactionID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).
		Where("transaction_id = ?", transactionID).Count(&count).Error
	return count > 0, err
}

// InsertPayment inserts a payment record; the unique transaction-id index
// plus DoNothing turns a concurrent duplicate delivery into a clean
// "already processed" signal instead of an error.
func (r *gormRepository) InsertPayment(p *models.Payment) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CompletePayment(paymentID uint, update PaymentUpdate) error {
	fields := map[string]interface{}{
		"status":       update.Status,
		"payment_type": update.PaymentType,
	}
	if !update.Date.IsZero() {
		fields["date"] = update.Date
	}
	if update.TransactionID != "" {
		fields["transaction_id"] = update.TransactionID
	}
	if update.Amount > 0 {
		fields["amount"] = update.Amount
	}
	return r.db.Model(&models.Payment{}).Where("id = ?", paymentID).
		Updates(fields).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
