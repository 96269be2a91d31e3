package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:100;not null" json:"name"`
	Email         string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password      string    `gorm:"size:255;not null" json:"-"`
	Role          string    `gorm:"type:varchar(10);not null;default:'user'" json:"role"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	ListingsCount int       `gorm:"not null;default:0" json:"listings_count"`
	TotalInvested float64   `gorm:"type:decimal(15,2);not null;default:0" json:"total_invested"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"-"`

	// Relations
	Investments []Investment `gorm:"foreignKey:UserID" json:"investments,omitempty"`
}

func (User) TableName() string {
	return "users"
}
