package stay

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/room"
	"frontdesk-backend/internal/settlement"
)

const (
	CodeStayNotFound        = "StayNotFound"
	CodeReservationNotFound = "ReservationNotFound"
	CodeRoomNotFound        = "RoomNotFound"
	CodeRoomConflict        = "RoomConflict"
	CodeVersionConflict     = "VersionConflict"
)

var (
	ErrStayNotFound        = apperr.Sentinel(CodeStayNotFound)
	ErrReservationNotFound = apperr.Sentinel(CodeReservationNotFound)
	ErrRoomNotFound        = apperr.Sentinel(CodeRoomNotFound)
	ErrRoomConflict        = apperr.Sentinel(CodeRoomConflict)
	ErrVersionConflict     = apperr.Sentinel(CodeVersionConflict)
)

// Reservation is the booking a stay starts from. It is read-only to the engine.
type Reservation struct {
	Reference   string
	Guest       Guest
	RoomClass   string
	RoomNumber  string
	CheckIn     time.Time
	CheckOut    time.Time
	NightlyRate decimal.Decimal
	Deposit     decimal.Decimal
	Channel     folio.Source
}

// Query finds a reservation or stay. Reference wins when both are set.
type Query struct {
	Reference  string
	RoomNumber string
}

// ReservationSource returns ErrReservationNotFound for unknown references.
type ReservationSource interface {
	FindReservation(ctx context.Context, q Query) (Reservation, error)
}

// Inventory owns room availability.
type Inventory interface {
	// Lookup returns the current snapshot of a room, ErrRoomNotFound if unknown.
	Lookup(ctx context.Context, number string) (room.Room, error)
	// Reserve holds the room for stayID. It fails with ErrRoomConflict when
	// another stay holds it. Holding a room twice for the same stay is a no-op.
	Reserve(ctx context.Context, number, stayID string) error
	// Release drops the hold of stayID. Releasing an unheld room is a no-op.
	Release(ctx context.Context, number, stayID string) error
}

// PaymentProcessor performs the money movement decided at settlement. The engine
// only keeps the identifiers it returns.
type PaymentProcessor interface {
	Collect(ctx context.Context, amount decimal.Decimal, method settlement.Method, reference string) (receiptID string, err error)
	RequestRefund(ctx context.Context, amount decimal.Decimal, method settlement.Method, reason, reference string) (refundRequestID string, err error)
}

// Verifier runs identity checks.
type Verifier interface {
	VerifyManual(ctx context.Context, doc identity.Document) (identity.Check, error)
	VerifyFace(ctx context.Context, image []byte) (identity.Check, error)
}

// Repository persists stays together with their lines, checks and history.
type Repository interface {
	Get(ctx context.Context, id string) (*Stay, error)
	// FindByReservation returns the most recent stay for a reservation that is
	// not cancelled, or ErrStayNotFound.
	FindByReservation(ctx context.Context, reference string) (*Stay, error)
	// FindActiveByRoom returns the stay occupying a room between IN_HOUSE and
	// SETTLED, or ErrStayNotFound.
	FindActiveByRoom(ctx context.Context, number string) (*Stay, error)
	// Save writes s if its Version still matches the stored one and bumps it.
	// A lost race yields ErrVersionConflict.
	Save(ctx context.Context, s *Stay) error
}

// Event is published after a transition has been committed.
type Event struct {
	StayID string
	Room   string
	Guest  string
	From   Status
	To     Status
	Step   Step
	At     time.Time
}

// Listener receives committed transitions. Implementations must not block.
type Listener interface {
	StayTransitioned(ctx context.Context, ev Event)
}

// DepositPolicy decides how much extra deposit an upgrade requires.
type DepositPolicy interface {
	RequiredExtraDeposit(s *Stay) decimal.Decimal
}

// MinimumExtraDeposit requires a fixed minimum on every upgrade. Zero makes the
// extra deposit optional.
type MinimumExtraDeposit decimal.Decimal

func (m MinimumExtraDeposit) RequiredExtraDeposit(s *Stay) decimal.Decimal {
	if !s.IsUpgrade {
		return decimal.Zero
	}
	return decimal.Decimal(m)
}
