package models

import "gorm.io/gorm"

// GigPackage is one pricing tier of a gig. A cart line item may reference a
// package by index; otherwise the gig's base price applies.
type GigPackage struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	DeliveryDays int     `json:"delivery_days"`
}

// Gig represents a service listing offered by a seller.
type Gig struct {
	ID           string       `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	SellerID     string       `json:"seller_id" gorm:"index;type:varchar(36)" validate:"required"`
	Title        string       `json:"title" validate:"required,min=3,max=100"`
	Description  string       `json:"description" validate:"omitempty,max=2000"`
	PriceSol     float64      `json:"price_sol" validate:"required,gt=0"`
	DeliveryDays int          `json:"delivery_days" validate:"gte=0"`
	Packages     []GigPackage `json:"packages" gorm:"serializer:json"`
	gorm.Model   // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// PriceFor resolves the effective price and delivery window for a package
// index. A nil index selects the base offer.
func (g *Gig) PriceFor(packageIndex *int) (price float64, deliveryDays int) {
	price, deliveryDays = g.PriceSol, g.DeliveryDays
	if packageIndex == nil {
		return price, deliveryDays
	}
	if i := *packageIndex; i >= 0 && i < len(g.Packages) {
		pkg := g.Packages[i]
		price = pkg.Price
		if pkg.DeliveryDays > 0 {
			deliveryDays = pkg.DeliveryDays
		}
	}
	return price, deliveryDays
}
