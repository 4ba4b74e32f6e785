package model

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// Invoice statuses.
const (
	InvoiceStatusDraft   = "draft"
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusOverdue = "overdue"
)

// ValidInvoiceStatus reports whether s is a known invoice status.
func ValidInvoiceStatus(s string) bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// Invoice represents a billing document owned by a single user.
// Monetary totals are always derived from the line items, never taken
// from the client.
type Invoice struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	UserID           uint           `json:"user_id" gorm:"index;not null;uniqueIndex:idx_user_invoice_number"`
	CustomerID       uint           `json:"customer_id" gorm:"index;not null"`
	InvoiceNumber    string         `json:"invoice_number" gorm:"type:varchar(50);uniqueIndex:idx_user_invoice_number"`
	IssueDate        time.Time      `json:"issue_date"`
	DueDate          time.Time      `json:"due_date"`
	PaymentTermsDays int            `json:"payment_terms_days" gorm:"default:30"`
	SubtotalAmount   float64        `json:"subtotal_amount" gorm:"default:0"`
	TaxAmount        float64        `json:"tax_amount" gorm:"default:0"`
	TotalAmount      float64        `json:"total_amount" gorm:"default:0"`
	PaidAmount       float64        `json:"paid_amount" gorm:"default:0"`
	Status           string         `json:"status" gorm:"type:varchar(20);default:'draft'"`
	Notes            string         `json:"notes" gorm:"type:text"`
	Items            []InvoiceItem  `json:"items" gorm:"foreignKey:InvoiceID"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}

// InvoiceItem is a single line on an invoice.
type InvoiceItem struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	InvoiceID   uint      `json:"invoice_id" gorm:"index;not null"`
	Description string    `json:"description" gorm:"type:varchar(200)"`
	Quantity    float64   `json:"quantity" gorm:"default:1"`
	UnitPrice   float64   `json:"unit_price" gorm:"default:0"`
	Amount      float64   `json:"amount" gorm:"default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaxRate is the consumption tax applied to invoice subtotals.
const TaxRate = 0.10

// ComputeTotals recalculates line amounts and invoice totals from the
// items. Tax is rounded down to the nearest unit.
func (inv *Invoice) ComputeTotals() {
	var subtotal float64
	for i := range inv.Items {
		inv.Items[i].Amount = inv.Items[i].Quantity * inv.Items[i].UnitPrice
		subtotal += inv.Items[i].Amount
	}
	inv.SubtotalAmount = subtotal
	inv.TaxAmount = math.Floor(subtotal * TaxRate)
	inv.TotalAmount = inv.SubtotalAmount + inv.TaxAmount
}

// Outstanding returns the unpaid balance of the invoice.
func (inv *Invoice) Outstanding() float64 {
	return inv.TotalAmount - inv.PaidAmount
}
