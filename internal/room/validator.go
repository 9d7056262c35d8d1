// Package room decides whether a candidate room may be assigned to a stay.
// Availability is owned by the inventory; the validator only reads the snapshot
// handed to it and keeps no state between calls.
package room

import (
	"fmt"

	"frontdesk-backend/internal/apperr"
)

const (
	CodeRoomClassMismatch = "RoomClassMismatch"
	CodeRoomUnavailable   = "RoomUnavailable"
	CodeNoRoomSelected    = "NoRoomSelected"
)

// Room is an inventory snapshot of one room as seen by the caller.
type Room struct {
	Number string
	Class  string
	Free   bool
	// HeldBy is the stay currently holding the room, if any.
	HeldBy string
}

// Outcome is PASS or FAIL.
type Outcome string

const (
	Pass Outcome = "PASS"
	Fail Outcome = "FAIL"
)

// Result is the typed output of a validation.
type Result struct {
	Outcome Outcome
	Code    string
	Reason  string
}

func (r Result) Passed() bool { return r.Outcome == Pass }

// Err returns the guard failure carried by a FAIL result, nil on PASS.
func (r Result) Err() error {
	if r.Passed() {
		return nil
	}
	return apperr.Guard(r.Code, "%s", r.Reason)
}

// Booking is the part of a stay the validator looks at.
type Booking struct {
	StayID             string
	OriginalRoomNumber string
	OriginalClass      string
	UpgradeTargetClass string
}

func fail(code, format string, args ...any) Result {
	return Result{Outcome: Fail, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks candidate against the booking.
//
// Without an upgrade only the originally booked room passes. With an upgrade the
// candidate must belong to the upgrade target class and be free in the snapshot, a
// room already held by this very stay counts as free.
func Validate(b Booking, candidate Room, isUpgrade bool) Result {
	if candidate.Number == "" {
		return fail(CodeNoRoomSelected, "no room selected")
	}

	if !isUpgrade {
		if candidate.Number != b.OriginalRoomNumber {
			return fail(CodeRoomClassMismatch, "room %s is not the booked room %s", candidate.Number, b.OriginalRoomNumber)
		}
		return Result{Outcome: Pass}
	}

	if b.UpgradeTargetClass == "" || candidate.Class != b.UpgradeTargetClass {
		return fail(CodeRoomClassMismatch, "room %s is class %q, upgrade target is %q", candidate.Number, candidate.Class, b.UpgradeTargetClass)
	}
	if !candidate.Free && (candidate.HeldBy == "" || candidate.HeldBy != b.StayID) {
		return fail(CodeRoomUnavailable, "room %s is not free", candidate.Number)
	}
	return Result{Outcome: Pass}
}
