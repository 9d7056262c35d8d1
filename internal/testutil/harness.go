package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/lock"
	"frontdesk-backend/internal/logging"
	"frontdesk-backend/internal/stay"
)

// Documents known to the fake oracle.
const (
	KnownPassport   = "B12345678"
	UnknownPassport = "C7654321"
	GuestName       = "NGUYEN VAN AN"
)

// Start is the fixed "now" of every harness.
var Start = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

// Reservation returns a two night DELUXE booking for room 204 with a 2,000,000
// deposit at 1,200,000 per night.
func Reservation(ref string) stay.Reservation {
	return stay.Reservation{
		Reference:   ref,
		Guest:       stay.Guest{Name: GuestName, Phone: "+84901234567"},
		RoomClass:   "DELUXE",
		RoomNumber:  "204",
		CheckIn:     Start,
		CheckOut:    Start.Add(46 * time.Hour),
		NightlyRate: decimal.NewFromInt(1200000),
		Deposit:     decimal.NewFromInt(2000000),
		Channel:     folio.SourceWebBooking,
	}
}

// Harness wires an Engine to in-memory collaborators.
type Harness struct {
	Repo         *MemoryRepo
	Reservations *Reservations
	Inventory    *Inventory
	Oracle       *Oracle
	Payments     *Payments
	Listener     *Listener
	Clock        *Clock
	Engine       *stay.Engine
}

// Options tweak the engine built by NewHarness.
type Options struct {
	Config        stay.Config
	DepositPolicy stay.DepositPolicy
	NoPayments    bool
	Reservations  []stay.Reservation
}

func NewHarness(t *testing.T, opts Options) *Harness {
	t.Helper()

	if opts.Config.TaxRate.IsZero() {
		opts.Config.TaxRate = decimal.RequireFromString("0.08")
	}
	if opts.Config.InventoryTimeout == 0 {
		opts.Config.InventoryTimeout = 200 * time.Millisecond
	}
	if len(opts.Reservations) == 0 {
		opts.Reservations = []stay.Reservation{Reservation("RES-1")}
	}

	h := &Harness{
		Repo:         NewMemoryRepo(),
		Reservations: NewReservations(opts.Reservations...),
		Inventory: NewInventory().
			AddRoom("204", "DELUXE").
			AddRoom("205", "DELUXE").
			AddRoom("801", "SUITE").
			AddRoom("802", "SUITE"),
		Oracle: &Oracle{
			Names:     map[string]string{KnownPassport: GuestName},
			FaceName:  GuestName,
			FaceScore: 92,
		},
		Payments: &Payments{},
		Listener: &Listener{},
		Clock:    NewClock(Start),
	}

	gate, err := identity.NewGate(h.Oracle, identity.Options{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	gate.WithClock(h.Clock.Now)

	deps := stay.Deps{
		Repo:          h.Repo,
		Reservations:  h.Reservations,
		Inventory:     h.Inventory,
		Verifier:      gate,
		Payments:      h.Payments,
		Locker:        lock.NewLocal(),
		DepositPolicy: opts.DepositPolicy,
		Listeners:     []stay.Listener{h.Listener},
		Logger:        logging.Discard(),
		Now:           h.Clock.Now,
	}
	if opts.NoPayments {
		deps.Payments = nil
	}
	h.Engine = stay.NewEngine(opts.Config, deps)
	return h
}

// Context returns a context that is canceled when the test finishes, matching
// testing.T.Context from Go 1.24 for older toolchains.
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// Step runs one step and fails the test on error.
func (h *Harness) Step(t *testing.T, stayID string, in stay.StepInput) stay.Result {
	t.Helper()
	if in.Actor == "" {
		in.Actor = "desk-1"
	}
	res, err := h.Engine.Advance(Context(t), stayID, in)
	require.NoError(t, err, "step %s", in.Step)
	return res
}

// MustAdvance runs a step that is expected to pass its guard.
func (h *Harness) MustAdvance(t *testing.T, stayID string, in stay.StepInput) stay.Result {
	t.Helper()
	res := h.Step(t, stayID, in)
	require.Nil(t, res.Guard, "step %s: unexpected guard failure %+v", in.Step, res.Guard)
	return res
}

// CheckIn looks up ref and walks it to IN_HOUSE in the booked room.
func (h *Harness) CheckIn(t *testing.T, ref string) *stay.Stay {
	t.Helper()
	s, err := h.Engine.Lookup(Context(t), stay.Query{Reference: ref})
	require.NoError(t, err)

	h.MustAdvance(t, s.ID, stay.StepInput{Step: stay.StepBeginVerification})
	h.MustAdvance(t, s.ID, stay.StepInput{Step: stay.StepVerifyManual, Document: &identity.Document{Number: KnownPassport, Type: identity.DocPassport}})
	h.MustAdvance(t, s.ID, stay.StepInput{Step: stay.StepAssignRoom})
	h.MustAdvance(t, s.ID, stay.StepInput{Step: stay.StepCheckIn})

	s, err = h.Engine.Get(Context(t), s.ID)
	require.NoError(t, err)
	return s
}
