package model

import (
	"time"

	"gorm.io/gorm"
)

// Customer represents a customer company owned by a single user.
// Every query against this table must be scoped by UserID.
type Customer struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	UserID        uint           `json:"user_id" gorm:"index;not null"`
	CompanyName   string         `json:"company_name" gorm:"type:varchar(100);index;not null"`
	ContactPerson string         `json:"contact_person" gorm:"type:varchar(100)"`
	Email         string         `json:"email" gorm:"type:varchar(100)"`
	Phone         string         `json:"phone" gorm:"type:varchar(20)"`
	Address       string         `json:"address" gorm:"type:text"`
	Industry      string         `json:"industry" gorm:"type:varchar(50)"`
	Status        string         `json:"status" gorm:"type:varchar(20);default:'active'"`
	TotalRevenue  float64        `json:"total_revenue" gorm:"default:0"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}
