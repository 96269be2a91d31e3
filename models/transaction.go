package models

import "time"

const (
	TransactionPurchase   = "purchase"
	TransactionGain       = "gain"
	TransactionWithdrawal = "withdrawal"

	TransactionPending   = "pending"
	TransactionSucceeded = "succeeded"
	TransactionFailed    = "failed"
	TransactionRefunded  = "refunded"
)

// Transaction records one payment attempt and its outcome. PaymentIntentID and
// SessionID correlate with the gateway and are unique when present. A
// transaction never mutates after reaching a terminal status.
type Transaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	Reference       string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"reference"`
	Amount          float64   `gorm:"type:decimal(15,2);not null" json:"amount"`
	Kind            string    `gorm:"type:varchar(16);not null;default:'purchase'" json:"kind"`
	Status          string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	PaymentMethod   string    `gorm:"type:varchar(16);default:'stripe'" json:"payment_method"`
	PaymentIntentID *string   `gorm:"type:varchar(191);uniqueIndex" json:"payment_intent_id,omitempty"`
	SessionID       *string   `gorm:"type:varchar(191);uniqueIndex" json:"session_id,omitempty"`
	InvestmentID    *uint     `gorm:"index" json:"investment_id,omitempty"`
	Description     string    `gorm:"size:255" json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"-"`

	// Relations
	Investment *Investment `gorm:"foreignKey:InvestmentID" json:"investment,omitempty"`
}

func (Transaction) TableName() string {
	return "transactions"
}
