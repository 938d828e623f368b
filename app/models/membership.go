package models

import (
	"time"
)

const (
	MembershipStatusPending   = "pending"
	MembershipStatusActive    = "active"
	MembershipStatusExpired   = "expired"
	MembershipStatusCancelled = "cancelled"
)

// Metadata keys the gateway stashes on a membership during checkout.
const (
	MetaAuthOnlyTransactionID = "authorizenet_authonly_trans_id"
	MetaPendingPaymentID      = "pending_payment_id"
)

// Membership is the local mirror of a platform membership this gateway is
// allowed to transition. GatewaySubscriptionID is prefixed "anet_" to mark
// gateway ownership. The gateway never deletes memberships.
type Membership struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	CustomerID            uint       `gorm:"not null;index" json:"customer_id"`
	UserID                uint       `gorm:"not null;index" json:"user_id"`
	Email                 string     `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email"`
	LevelName             string     `gorm:"type:varchar(150);not null" json:"level_name"`
	SubscriptionKey       string     `gorm:"type:varchar(100);not null;index" json:"subscription_key"`
	Status                string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Recurring             bool       `gorm:"default:false" json:"recurring"`
	GatewaySubscriptionID string     `gorm:"type:varchar(191);index:ux_memberships_gateway_sub,unique" json:"gateway_subscription_id"`
	ExpiresAt             *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	Notes                 string     `gorm:"type:longtext" json:"notes"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the membership currently entitles access.
func (m *Membership) IsActive() bool {
	return m.Status == MembershipStatusActive
}

// MembershipMeta is a key/value stash per membership, used for the pending
// payment reference and the pre-authorization transaction id.
type MembershipMeta struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MembershipID uint      `gorm:"not null;index:ux_membership_meta_key,unique,priority:1" json:"membership_id"`
	MetaKey      string    `gorm:"type:varchar(100);not null;index:ux_membership_meta_key,unique,priority:2" json:"meta_key"`
	MetaValue    string    `gorm:"type:text" json:"meta_value"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
