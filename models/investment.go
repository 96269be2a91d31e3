package models

import "time"

const (
	InvestmentPending   = "pending"
	InvestmentConfirmed = "confirmed"
	InvestmentCancelled = "cancelled"
)

type Investment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	ListingID     uint      `gorm:"not null;index" json:"listing_id"`
	Amount        float64   `gorm:"type:decimal(15,2);not null" json:"amount"`
	Status        string    `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	TransactionID *uint     `gorm:"index" json:"transaction_id,omitempty"`
	Gains         float64   `gorm:"type:decimal(15,2);not null;default:0" json:"gains"`
	Active        bool      `gorm:"not null;default:true" json:"active"`
	InvestedAt    time.Time `json:"invested_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relations
	Listing     *Listing     `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	Transaction *Transaction `gorm:"foreignKey:TransactionID" json:"transaction,omitempty"`
}

func (Investment) TableName() string {
	return "investments"
}
