package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FolioLine is a single charge, fee or adjustment. Rows are never deleted.
type FolioLine struct {
	ID             string          `gorm:"primaryKey;size:36"`
	StayID         string          `gorm:"size:36;not null;index:idx_folio_line_stay_seq"`
	Seq            int             `gorm:"not null;index:idx_folio_line_stay_seq"`
	Kind           string          `gorm:"size:16;not null"`
	Description    string          `gorm:"size:256;not null"`
	Source         string          `gorm:"size:32;not null"`
	UnitAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Quantity       int             `gorm:"not null"`
	Status         string          `gorm:"size:16;not null"`
	TargetID       string          `gorm:"size:36;index"`
	Night          int
	Reason         string    `gorm:"size:512"`
	PostSettlement bool      `gorm:"not null;default:false"`
	PostedAt       time.Time `gorm:"not null"`
	Actor          string    `gorm:"size:128"`
	VoidedAt       *time.Time
	VoidedBy       string `gorm:"size:128"`
	VoidReason     string `gorm:"size:512"`
}

// IdentityCheck is one verification attempt.
type IdentityCheck struct {
	ID             string `gorm:"primaryKey;size:36"`
	StayID         string `gorm:"size:36;not null;index"`
	Method         string `gorm:"size:32;not null"`
	DocumentNumber string `gorm:"size:64"`
	DocumentType   string `gorm:"size:32"`
	Score          float64
	Result         string    `gorm:"size:8;not null"`
	MatchedName    string    `gorm:"size:256"`
	Epoch          int       `gorm:"not null"`
	Actor          string    `gorm:"size:128"`
	CheckedAt      time.Time `gorm:"not null"`
}

// Settlement is the decision frozen when a stay is settled.
type Settlement struct {
	StayID          string          `gorm:"primaryKey;size:36"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Tax             decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	DepositApplied  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	NetAmount       decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Action          string          `gorm:"size:16;not null"`
	Method          string          `gorm:"size:16"`
	ReceiptID       string          `gorm:"size:64"`
	RefundRequestID string          `gorm:"size:64"`
	ComputedAt      time.Time       `gorm:"not null"`
}
