package models

import "time"

// Listing is a purchasable brebis. Once sold it is never deleted; the sold
// transition is applied exactly once by the settlement engine.
type Listing struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:100;not null" json:"name"`
	Description  string     `gorm:"size:500;not null" json:"description"`
	Price        float64    `gorm:"type:decimal(15,2);not null" json:"price"`
	Image        string     `gorm:"size:255;default:'default-brebis.jpg'" json:"image"`
	Age          *int       `json:"age,omitempty"`
	Breed        string     `gorm:"size:100" json:"breed,omitempty"`
	Weight       *float64   `gorm:"type:decimal(6,2)" json:"weight,omitempty"`
	Health       string     `gorm:"size:20;default:'Bonne'" json:"health"`
	Reproduction bool       `gorm:"default:false" json:"reproduction"`
	Available    bool       `gorm:"not null;default:true;index:idx_listings_sale" json:"available"`
	Sold         bool       `gorm:"not null;default:false;index:idx_listings_sale" json:"sold"`
	BuyerID      *uint      `gorm:"index" json:"buyer_id,omitempty"`
	SoldAt       *time.Time `json:"sold_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Listing) TableName() string {
	return "listings"
}
