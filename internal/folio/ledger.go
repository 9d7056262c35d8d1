// Package folio implements the append-only ledger of charges attached to a stay.
//
// Lines are never deleted. Voids flip a status flag and keep the line for audit,
// corrections are separate ADJUSTMENT lines pointing at their target.
package folio

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"frontdesk-backend/internal/apperr"
)

const (
	CodeInvalidKind       = "InvalidKind"
	CodeInvalidSource     = "InvalidSource"
	CodeInvalidQuantity   = "InvalidQuantity"
	CodeInvalidAmount     = "InvalidAmount"
	CodeInvalidLine       = "InvalidLine"
	CodeInvalidNights     = "InvalidNights"
	CodeInvalidAdjustment = "InvalidAdjustment"
	CodeVoidNotAllowed    = "VoidNotAllowed"
	CodeLineNotFound      = "LineNotFound"
	CodeLedgerSealed      = "LedgerSealed"
)

var (
	ErrInvalidAmount     = apperr.Sentinel(CodeInvalidAmount)
	ErrInvalidAdjustment = apperr.Sentinel(CodeInvalidAdjustment)
	ErrVoidNotAllowed    = apperr.Sentinel(CodeVoidNotAllowed)
	ErrLineNotFound      = apperr.Sentinel(CodeLineNotFound)
	ErrLedgerSealed      = apperr.Sentinel(CodeLedgerSealed)
)

// newID generates line identifiers. Replaced in tests that need stable ids.
var newID = uuid.NewString

// Entry identifies who made a change and when.
type Entry struct {
	Actor string
	At    time.Time
}

// Ledger is the folio of one stay. It is not safe for concurrent use; the stay
// engine serializes access per stay.
type Ledger struct {
	lines  []Line
	sealed bool
}

// NewLedger returns an empty, open ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Restore rebuilds a ledger from persisted lines.
func Restore(lines []Line, sealed bool) *Ledger {
	cp := make([]Line, len(lines))
	copy(cp, lines)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Seq < cp[j].Seq })
	return &Ledger{lines: cp, sealed: sealed}
}

// Lines returns a copy of the stored lines in posting order.
func (l *Ledger) Lines() []Line {
	cp := make([]Line, len(l.lines))
	copy(cp, l.lines)
	return cp
}

// Snapshot returns the lines as presented to operators: a non-voided line with at
// least one active adjustment against it is reported as ADJUSTED.
func (l *Ledger) Snapshot() []Line {
	adjusted := make(map[string]bool)
	for _, line := range l.lines {
		if line.Kind == KindAdjustment && line.TargetID != "" && line.Active() {
			adjusted[line.TargetID] = true
		}
	}
	out := l.Lines()
	for i := range out {
		if out[i].Status == StatusPosted && adjusted[out[i].ID] {
			out[i].Status = StatusAdjusted
		}
	}
	return out
}

// Line looks up a line by id.
func (l *Ledger) Line(id string) (Line, bool) {
	if i := l.index(id); i >= 0 {
		return l.lines[i], true
	}
	return Line{}, false
}

// Sealed reports whether the ledger has been closed by settlement.
func (l *Ledger) Sealed() bool { return l.sealed }

// Seal closes the ledger. Only adjustments may be appended afterwards.
func (l *Ledger) Seal() { l.sealed = true }

// Total is the sum of unitAmount x quantity over all non-voided lines.
func (l *Ledger) Total() decimal.Decimal { return Total(l.lines) }

// SettledTotal excludes post-settlement dispute adjustments.
func (l *Ledger) SettledTotal() decimal.Decimal { return SettledTotal(l.lines) }

// RoomNights counts the active ROOM lines.
func (l *Ledger) RoomNights() int {
	n := 0
	for _, line := range l.lines {
		if line.Kind == KindRoom && line.Active() {
			n++
		}
	}
	return n
}

// RoomCharges describes the nightly charges to generate.
type RoomCharges struct {
	Nights int
	Rate   decimal.Decimal
	Source Source
	Entry
}

// InitializeRoomCharges posts one ROOM line per night. It is a no-op when the
// ledger already carries exactly that many active ROOM lines. When the night count
// changed the existing ROOM lines (and adjustments against them) are voided and a
// fresh set is posted. It reports whether anything was written.
func (l *Ledger) InitializeRoomCharges(rc RoomCharges) (bool, error) {
	if l.sealed {
		return false, apperr.Invariant(CodeLedgerSealed, "room charges cannot change after settlement")
	}
	if rc.Nights < 1 {
		return false, apperr.Validation(CodeInvalidNights, "night count must be at least 1, got %d", rc.Nights)
	}
	if rc.Rate.IsNegative() {
		return false, apperr.Validation(CodeInvalidAmount, "nightly rate must not be negative")
	}
	if rc.Source == "" {
		rc.Source = SourceWebBooking
	}
	if !rc.Source.IsValid() {
		return false, apperr.Validation(CodeInvalidSource, "unknown source %q", rc.Source)
	}

	current := l.RoomNights()
	if current == rc.Nights {
		return false, nil
	}

	if current > 0 {
		reason := fmt.Sprintf("night count changed from %d to %d", current, rc.Nights)
		voided := make(map[string]bool)
		for i := range l.lines {
			if l.lines[i].Kind == KindRoom && l.lines[i].Active() {
				l.markVoided(i, reason, rc.Entry)
				voided[l.lines[i].ID] = true
			}
		}
		// Adjustments may target other adjustments; void whole chains.
		for changed := true; changed; {
			changed = false
			for i := range l.lines {
				if l.lines[i].Kind == KindAdjustment && l.lines[i].Active() && voided[l.lines[i].TargetID] {
					l.markVoided(i, reason, rc.Entry)
					voided[l.lines[i].ID] = true
					changed = true
				}
			}
		}
	}

	for night := 1; night <= rc.Nights; night++ {
		l.append(Line{
			Kind:        KindRoom,
			Description: fmt.Sprintf("Room charge night %d/%d", night, rc.Nights),
			Source:      rc.Source,
			UnitAmount:  rc.Rate,
			Quantity:    1,
			Night:       night,
		}, rc.Entry)
	}
	return true, nil
}

// PostInput describes a manually posted charge.
type PostInput struct {
	Kind        Kind
	Description string
	Source      Source
	UnitAmount  decimal.Decimal
	Quantity    int
	Entry
}

// PostLine appends a POSTED line.
func (l *Ledger) PostLine(in PostInput) (Line, error) {
	if l.sealed {
		return Line{}, apperr.Invariant(CodeLedgerSealed, "charges cannot be posted after settlement")
	}
	if !in.Kind.IsValid() {
		return Line{}, apperr.Validation(CodeInvalidKind, "unknown kind %q", in.Kind)
	}
	if in.Kind == KindRoom {
		return Line{}, apperr.Validation(CodeInvalidKind, "ROOM lines are generated from the night count")
	}
	if !in.Source.IsValid() {
		return Line{}, apperr.Validation(CodeInvalidSource, "unknown source %q", in.Source)
	}
	if in.Description == "" {
		return Line{}, apperr.Validation(CodeInvalidLine, "description is required")
	}
	if in.Kind == KindAdjustment {
		if in.Quantity != 1 {
			return Line{}, apperr.Validation(CodeInvalidQuantity, "adjustments always have quantity 1, got %d", in.Quantity)
		}
		if in.UnitAmount.IsZero() {
			return Line{}, apperr.Validation(CodeInvalidAdjustment, "adjustment amount must not be zero")
		}
	} else {
		if in.Quantity <= 0 {
			return Line{}, apperr.Validation(CodeInvalidQuantity, "quantity must be positive, got %d", in.Quantity)
		}
		if in.UnitAmount.IsNegative() {
			return Line{}, apperr.Validation(CodeInvalidAmount, "only adjustments may carry a negative amount")
		}
	}

	return l.append(Line{
		Kind:        in.Kind,
		Description: in.Description,
		Source:      in.Source,
		UnitAmount:  in.UnitAmount,
		Quantity:    in.Quantity,
	}, in.Entry), nil
}

// AdjustInput describes a correction of an existing line.
type AdjustInput struct {
	TargetID string
	Delta    decimal.Decimal
	Reason   string
	Source   Source
	Entry
}

// Adjust appends an ADJUSTMENT line referencing the target. The target is left
// untouched. After settlement the adjustment is flagged post-settlement.
func (l *Ledger) Adjust(in AdjustInput) (Line, error) {
	if in.Delta.IsZero() {
		return Line{}, apperr.Validation(CodeInvalidAdjustment, "adjustment delta must not be zero")
	}
	i := l.index(in.TargetID)
	if i < 0 {
		return Line{}, apperr.Validation(CodeInvalidAdjustment, "target line %q does not exist", in.TargetID)
	}
	target := l.lines[i]
	if !target.Active() {
		return Line{}, apperr.Validation(CodeInvalidAdjustment, "target line %q is voided", in.TargetID)
	}
	if in.Source == "" {
		in.Source = SourceFrontDesk
	}
	if !in.Source.IsValid() {
		return Line{}, apperr.Validation(CodeInvalidSource, "unknown source %q", in.Source)
	}

	desc := "Adjustment: " + target.Description
	if in.Reason != "" {
		desc += " (" + in.Reason + ")"
	}
	return l.append(Line{
		Kind:           KindAdjustment,
		Description:    desc,
		Source:         in.Source,
		UnitAmount:     in.Delta,
		Quantity:       1,
		TargetID:       target.ID,
		Reason:         in.Reason,
		PostSettlement: l.sealed,
	}, in.Entry), nil
}

// VoidInput identifies the line to void.
type VoidInput struct {
	TargetID string
	Reason   string
	Entry
}

// Void marks a line VOIDED. ROOM lines can never be voided; they are corrected
// with adjustments instead.
func (l *Ledger) Void(in VoidInput) (Line, error) {
	if l.sealed {
		return Line{}, apperr.Invariant(CodeLedgerSealed, "lines cannot be voided after settlement")
	}
	i := l.index(in.TargetID)
	if i < 0 {
		return Line{}, apperr.NotFound(CodeLineNotFound, "line %q does not exist", in.TargetID)
	}
	target := l.lines[i]
	if target.Kind == KindRoom {
		return Line{}, apperr.Invariant(CodeVoidNotAllowed, "ROOM line %q cannot be voided; post an adjustment", target.ID)
	}
	if !target.Active() {
		return Line{}, apperr.Validation(CodeVoidNotAllowed, "line %q is already voided", target.ID)
	}
	for _, other := range l.lines {
		if other.Kind == KindAdjustment && other.TargetID == target.ID && other.Active() {
			return Line{}, apperr.Validation(CodeVoidNotAllowed, "line %q has active adjustment %q; void it first", target.ID, other.ID)
		}
	}

	l.markVoided(i, in.Reason, in.Entry)
	return l.lines[i], nil
}

func (l *Ledger) append(line Line, e Entry) Line {
	line.ID = newID()
	line.Seq = len(l.lines) + 1
	line.Status = StatusPosted
	line.PostedAt = e.At
	line.Actor = e.Actor
	l.lines = append(l.lines, line)
	return line
}

func (l *Ledger) markVoided(i int, reason string, e Entry) {
	at := e.At
	l.lines[i].Status = StatusVoided
	l.lines[i].VoidedAt = &at
	l.lines[i].VoidedBy = e.Actor
	l.lines[i].VoidReason = reason
}

func (l *Ledger) index(id string) int {
	for i := range l.lines {
		if l.lines[i].ID == id {
			return i
		}
	}
	return -1
}
