package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reservation is a booking as delivered by the booking channels.
type Reservation struct {
	Reference   string          `gorm:"primaryKey;size:64"`
	GuestName   string          `gorm:"size:256;not null"`
	GuestPhone  string          `gorm:"size:32"`
	GuestEmail  string          `gorm:"size:256"`
	RoomClass   string          `gorm:"size:32;not null"`
	RoomNumber  string          `gorm:"size:16;not null;index"`
	CheckIn     time.Time       `gorm:"not null"`
	CheckOut    time.Time       `gorm:"not null"`
	NightlyRate decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Deposit     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Channel     string          `gorm:"size:32"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Room is a physical room and its current hold.
type Room struct {
	Number     string `gorm:"primaryKey;size:16"`
	Class      string `gorm:"size:32;not null;index"`
	Floor      int
	OutOfOrder bool   `gorm:"not null;default:false"`
	HeldBy     string `gorm:"size:36;index"`
	HeldAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PaymentRecord is a collection or refund request taken at the desk.
type PaymentRecord struct {
	ID        string          `gorm:"primaryKey;size:36"`
	Kind      string          `gorm:"size:16;not null"`
	StayID    string          `gorm:"size:36;not null;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Method    string          `gorm:"size:16;not null"`
	Reason    string          `gorm:"size:512"`
	Terminal  string          `gorm:"size:64"`
	CreatedAt time.Time       `gorm:"not null"`
}
