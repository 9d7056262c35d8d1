// Package stay drives one guest stay from reservation lookup to check-out.
//
// The Engine is the only writer of a Stay. Every state change goes through
// Advance, which runs the guard of the requested step and either commits the
// whole step or nothing at all.
package stay

import (
	"time"

	"github.com/shopspring/decimal"

	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/room"
	"frontdesk-backend/internal/settlement"
)

// Status is the lifecycle state of a stay.
type Status string

const (
	StatusLookedUp         Status = "LOOKED_UP"
	StatusIdentityPending  Status = "IDENTITY_PENDING"
	StatusIdentityVerified Status = "IDENTITY_VERIFIED"
	StatusRoomAssigned     Status = "ROOM_ASSIGNED"
	StatusInHouse          Status = "IN_HOUSE"
	StatusFolioReviewed    Status = "FOLIO_REVIEWED"
	StatusSettled          Status = "SETTLED"
	StatusCheckedOut       Status = "CHECKED_OUT"
	StatusCancelled        Status = "CANCELLED"
)

var statusOrder = map[Status]int{
	StatusLookedUp:         0,
	StatusIdentityPending:  1,
	StatusIdentityVerified: 2,
	StatusRoomAssigned:     3,
	StatusInHouse:          4,
	StatusFolioReviewed:    5,
	StatusSettled:          6,
	StatusCheckedOut:       7,
}

func (s Status) IsValid() bool {
	_, ok := statusOrder[s]
	return ok || s == StatusCancelled
}

// IsTerminal is true for CHECKED_OUT and CANCELLED.
func (s Status) IsTerminal() bool {
	return s == StatusCheckedOut || s == StatusCancelled
}

// AtLeast reports whether s is at or past other on the main path. CANCELLED is
// never past anything.
func (s Status) AtLeast(other Status) bool {
	a, ok := statusOrder[s]
	if !ok {
		return false
	}
	return a >= statusOrder[other]
}

// CanCancel lists the states a stay may be cancelled from. Once the guest is in
// house the stay can only be checked out.
func (s Status) CanCancel() bool {
	switch s {
	case StatusLookedUp, StatusIdentityPending, StatusIdentityVerified, StatusRoomAssigned:
		return true
	default:
		return false
	}
}

// LedgerOpen reports whether charges may be posted or voided in this state.
func (s Status) LedgerOpen() bool {
	return s.AtLeast(StatusIdentityVerified) && !s.AtLeast(StatusSettled)
}

type Guest struct {
	Name  string
	Phone string
	Email string
}

// Override records an operator decision to skip identity verification.
type Override struct {
	Actor  string
	Reason string
	Epoch  int
	At     time.Time
}

// Transition is one entry of the append-only stay history.
type Transition struct {
	From   Status
	To     Status
	Step   Step
	Actor  string
	Reason string
	At     time.Time
}

// Stay is the aggregate for one guest occupancy. The same Stay is resumed for
// check-out; check-out never creates a new one.
type Stay struct {
	ID             string
	ReservationRef string
	Guest          Guest

	OriginalClass      string
	OriginalRoomNumber string
	IsUpgrade          bool
	UpgradeClass       string
	UpgradeRate        decimal.NullDecimal
	ExtraDeposit       decimal.Decimal

	// CandidateRoom is the room picked for assignment, AssignedRoom is set once
	// the inventory hold succeeded.
	CandidateRoom string
	AssignedRoom  string

	CheckIn         time.Time
	PlannedCheckOut time.Time
	ActualCheckOut  *time.Time

	NightlyRate decimal.Decimal
	Deposit     decimal.Decimal
	Channel     folio.Source

	Status   Status
	Epoch    int
	Override *Override

	Ledger   *folio.Ledger
	Checks   []identity.Check
	History  []Transition
	Decision *settlement.Decision

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy.
func (s *Stay) Clone() *Stay {
	cp := *s
	if s.Ledger != nil {
		cp.Ledger = folio.Restore(s.Ledger.Lines(), s.Ledger.Sealed())
	}
	cp.Checks = append([]identity.Check(nil), s.Checks...)
	cp.History = append([]Transition(nil), s.History...)
	if s.Override != nil {
		o := *s.Override
		cp.Override = &o
	}
	if s.Decision != nil {
		d := *s.Decision
		cp.Decision = &d
	}
	if s.ActualCheckOut != nil {
		t := *s.ActualCheckOut
		cp.ActualCheckOut = &t
	}
	return &cp
}

// TargetClass is the class the assigned room must belong to.
func (s *Stay) TargetClass() string {
	if s.IsUpgrade {
		return s.UpgradeClass
	}
	return s.OriginalClass
}

// EffectiveRate is the nightly rate used for ROOM lines.
func (s *Stay) EffectiveRate() decimal.Decimal {
	if s.IsUpgrade && s.UpgradeRate.Valid {
		return s.UpgradeRate.Decimal
	}
	return s.NightlyRate
}

// DepositHeld is the reservation deposit plus any extra deposit taken at upgrade.
func (s *Stay) DepositHeld() decimal.Decimal {
	return s.Deposit.Add(s.ExtraDeposit)
}

// IdentityVerified is true when the current verification epoch holds a PASS
// check or an operator override.
func (s *Stay) IdentityVerified() bool {
	if s.Override != nil && s.Override.Epoch == s.Epoch {
		return true
	}
	return identity.HasPass(s.Checks, s.Epoch)
}

// Booking is the view handed to the room validator.
func (s *Stay) Booking() room.Booking {
	return room.Booking{
		StayID:             s.ID,
		OriginalRoomNumber: s.OriginalRoomNumber,
		OriginalClass:      s.OriginalClass,
		UpgradeTargetClass: s.UpgradeClass,
	}
}

func (s *Stay) transition(to Status, step Step, actor, reason string, at time.Time) {
	s.History = append(s.History, Transition{
		From:   s.Status,
		To:     to,
		Step:   step,
		Actor:  actor,
		Reason: reason,
		At:     at,
	})
	s.Status = to
	s.UpdatedAt = at
}
