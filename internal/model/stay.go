package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stay is one guest occupancy, from reservation lookup to check-out.
type Stay struct {
	ID             string `gorm:"primaryKey;size:36"`
	ReservationRef string `gorm:"index;size:64;not null"`
	GuestName      string `gorm:"size:256;not null"`
	GuestPhone     string `gorm:"size:32"`
	GuestEmail     string `gorm:"size:256"`

	OriginalClass      string              `gorm:"size:32;not null"`
	OriginalRoomNumber string              `gorm:"size:16;not null"`
	IsUpgrade          bool                `gorm:"not null;default:false"`
	UpgradeClass       string              `gorm:"size:32"`
	UpgradeRate        decimal.NullDecimal `gorm:"type:decimal(20,4)"`
	ExtraDeposit       decimal.Decimal     `gorm:"type:decimal(20,4);not null"`
	CandidateRoom      string              `gorm:"size:16"`
	AssignedRoom       string              `gorm:"index;size:16"`

	CheckIn         time.Time `gorm:"not null"`
	PlannedCheckOut time.Time `gorm:"not null"`
	ActualCheckOut  *time.Time

	NightlyRate decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Deposit     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Channel     string          `gorm:"size:32;not null"`

	Status string `gorm:"index;size:32;not null"`
	Epoch  int    `gorm:"not null;default:0"`

	OverrideActor  string `gorm:"size:128"`
	OverrideReason string `gorm:"size:512"`
	OverrideEpoch  *int
	OverrideAt     *time.Time

	LedgerSealed bool `gorm:"not null;default:false"`
	Version      int  `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Associations
	Lines       []FolioLine      `gorm:"foreignKey:StayID;constraint:OnDelete:CASCADE"`
	Checks      []IdentityCheck  `gorm:"foreignKey:StayID;constraint:OnDelete:CASCADE"`
	Transitions []StayTransition `gorm:"foreignKey:StayID;constraint:OnDelete:CASCADE"`
	Settlement  *Settlement      `gorm:"foreignKey:StayID;constraint:OnDelete:CASCADE"`
}

// StayTransition is the append-only history of a stay.
type StayTransition struct {
	ID     int64     `gorm:"primaryKey;autoIncrement"`
	StayID string    `gorm:"size:36;not null;uniqueIndex:idx_stay_transition_seq"`
	Seq    int       `gorm:"not null;uniqueIndex:idx_stay_transition_seq"`
	From   string    `gorm:"column:from_status;size:32;not null"`
	To     string    `gorm:"column:to_status;size:32;not null"`
	Step   string    `gorm:"size:32;not null"`
	Actor  string    `gorm:"size:128"`
	Reason string    `gorm:"size:512"`
	At     time.Time `gorm:"not null;index"`
}
