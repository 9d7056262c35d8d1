package folio

import (
	"time"

	"github.com/shopspring/decimal"

	"frontdesk-backend/internal/money"
)

// Kind is the category of a folio line.
type Kind string

const (
	KindRoom       Kind = "ROOM"
	KindService    Kind = "SERVICE"
	KindFee        Kind = "FEE"
	KindAdjustment Kind = "ADJUSTMENT"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindRoom, KindService, KindFee, KindAdjustment:
		return true
	default:
		return false
	}
}

// Source is the outlet or workflow that produced a line.
type Source string

const (
	SourceWebBooking  Source = "WEB_BOOKING"
	SourceMinibar     Source = "MINIBAR"
	SourcePointOfSale Source = "POINT_OF_SALE"
	SourceFrontDesk   Source = "FRONT_DESK"
	SourceInspection  Source = "INSPECTION"
)

func (s Source) IsValid() bool {
	switch s {
	case SourceWebBooking, SourceMinibar, SourcePointOfSale, SourceFrontDesk, SourceInspection:
		return true
	default:
		return false
	}
}

// Status is the lifecycle flag of a line. Stored lines are only ever POSTED or
// VOIDED; ADJUSTED is reported by Snapshot for lines carrying an active adjustment.
type Status string

const (
	StatusPosted   Status = "POSTED"
	StatusVoided   Status = "VOIDED"
	StatusAdjusted Status = "ADJUSTED"
)

// Line is one monetary entry on a stay's folio.
type Line struct {
	ID          string
	Seq         int
	Kind        Kind
	Description string
	Source      Source
	UnitAmount  decimal.Decimal
	Quantity    int
	Status      Status

	// TargetID is set on ADJUSTMENT lines that correct another line.
	TargetID string
	// Night is the 1-based night index of a ROOM line.
	Night          int
	Reason         string
	PostSettlement bool

	PostedAt time.Time
	Actor    string

	VoidedAt   *time.Time
	VoidedBy   string
	VoidReason string
}

// Amount is UnitAmount multiplied by Quantity.
func (l Line) Amount() decimal.Decimal {
	return l.UnitAmount.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Active reports whether the line counts towards totals.
func (l Line) Active() bool {
	return l.Status != StatusVoided
}

// Total sums the amounts of all non-voided lines.
func Total(lines []Line) decimal.Decimal {
	return sumWhere(lines, Line.Active)
}

// SettledTotal is Total without the dispute adjustments posted after settlement.
func SettledTotal(lines []Line) decimal.Decimal {
	return sumWhere(lines, func(l Line) bool { return l.Active() && !l.PostSettlement })
}

func sumWhere(lines []Line, keep func(Line) bool) decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(lines))
	for _, l := range lines {
		if keep(l) {
			amounts = append(amounts, l.Amount())
		}
	}
	return money.Sum(amounts...)
}
