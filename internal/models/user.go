package models

import "gorm.io/gorm"

// Marketplace roles. Admin is the only role allowed to resolve disputes.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// User represents a marketplace participant.
type User struct {
	ID            string `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username      string `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email         string `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password      string `gorm:"type:varchar(255)" validate:"required,min=6"` // No json tag for security
	Role          string `json:"role" gorm:"type:varchar(16)" validate:"omitempty,oneof=buyer seller admin"`
	WalletAddress string `json:"wallet_address" gorm:"type:varchar(64)"`
	gorm.Model    // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}
