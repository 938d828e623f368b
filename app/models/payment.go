package models

import "time"

const (
	PaymentStatusPending  = "pending"
	PaymentStatusComplete = "complete"
	PaymentStatusFailed   = "failed"
)

const (
	PaymentGatewayAuthorizeNet = "authorizenet"

	PaymentTypeCreditCard = "Credit Card"
	PaymentTypeOneTime    = "Authorize.net Credit Card One Time"
)

// Payment is a single charge attempt against a membership. TransactionID is
// the processor transaction id namespaced "anet_"; its unique index is the
// idempotency guard for webhook deliveries: a duplicate insert attempt means
// the event was already applied.
type Payment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	MembershipID    uint      `gorm:"not null;index" json:"membership_id"`
	CustomerID      uint      `gorm:"not null;index" json:"customer_id"`
	UserID          uint      `gorm:"not null" json:"user_id"`
	Subscription    string    `gorm:"type:varchar(150)" json:"subscription"`
	SubscriptionKey string    `gorm:"type:varchar(100)" json:"subscription_key"`
	Amount          float64   `gorm:"type:decimal(12,2)" json:"amount"`
	PaymentType     string    `gorm:"type:varchar(100)" json:"payment_type"`
	TransactionID   string    `gorm:"type:varchar(191);default:null;index:ux_payments_transaction,unique" json:"transaction_id"`
	Status          string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Gateway         string    `gorm:"type:varchar(50);not null;default:'authorizenet'" json:"gateway"`
	Date            time.Time `gorm:"type:timestamp" json:"date"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
