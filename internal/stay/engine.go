package stay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/lock"
	"frontdesk-backend/internal/logging"
	"frontdesk-backend/internal/money"
	"frontdesk-backend/internal/settlement"
)

const (
	CodeInventoryUnavailable = "InventoryUnavailable"
	CodePaymentUnavailable   = "PaymentUnavailable"
	CodeInvalidReservation   = "InvalidReservation"
	CodeInvalidQuery         = "InvalidQuery"
	CodeLedgerNotOpen        = "LedgerNotOpen"
	CodeNotInHouse           = "NotInHouse"
)

// Config is the engine policy.
type Config struct {
	TaxRate               decimal.Decimal
	CurrencyPlaces        int32
	InventoryTimeout      time.Duration
	PaymentTimeout        time.Duration
	AllowIdentityOverride bool
}

// Deps are the collaborators of an Engine. Payments and Listeners are optional.
type Deps struct {
	Repo          Repository
	Reservations  ReservationSource
	Inventory     Inventory
	Verifier      Verifier
	Payments      PaymentProcessor
	Locker        lock.Locker
	DepositPolicy DepositPolicy
	Listeners     []Listener
	Logger        *logrus.Logger
	Now           func() time.Time
}

// Engine runs the stay lifecycle.
type Engine struct {
	cfg   Config
	calc  settlement.Calculator
	deps  Deps
	log   *logrus.Logger
	now   func() time.Time
	newID func() string
}

func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.InventoryTimeout <= 0 {
		cfg.InventoryTimeout = 3 * time.Second
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 10 * time.Second
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.DepositPolicy == nil {
		deps.DepositPolicy = MinimumExtraDeposit(decimal.Zero)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:   cfg,
		calc:  settlement.NewCalculator(cfg.TaxRate, cfg.CurrencyPlaces),
		deps:  deps,
		log:   deps.Logger,
		now:   now,
		newID: uuid.NewString,
	}
}

// Lookup finds the reservation and returns its stay, creating one in LOOKED_UP
// when the reservation has none yet (or only cancelled ones).
func (e *Engine) Lookup(ctx context.Context, q Query) (*Stay, error) {
	q.Reference = strings.TrimSpace(q.Reference)
	if q.Reference == "" && strings.TrimSpace(q.RoomNumber) == "" {
		return nil, apperr.Validation(CodeInvalidQuery, "reservation reference or room number is required")
	}

	res, err := e.deps.Reservations.FindReservation(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find reservation: %w", err)
	}

	unlock, err := e.deps.Locker.Lock(ctx, "reservation:"+res.Reference)
	if err != nil {
		return nil, fmt.Errorf("lock reservation %s: %w", res.Reference, err)
	}
	defer unlock()

	existing, err := e.deps.Repo.FindByReservation(ctx, res.Reference)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, ErrStayNotFound):
		return nil, fmt.Errorf("find stay for reservation %s: %w", res.Reference, err)
	}

	s, err := e.newStay(res)
	if err != nil {
		return nil, err
	}
	if err := e.deps.Repo.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save new stay: %w", err)
	}
	e.log.WithFields(logrus.Fields{"module": "stay", "stay_id": s.ID, "reservation": res.Reference}).Info("stay looked up")
	return s, nil
}

func (e *Engine) newStay(res Reservation) (*Stay, error) {
	if res.RoomNumber == "" || res.RoomClass == "" {
		return nil, apperr.Validation(CodeInvalidReservation, "reservation %s has no room", res.Reference)
	}
	if _, err := money.NightCount(res.CheckIn, res.CheckOut); err != nil {
		return nil, apperr.Validation(CodeInvalidReservation, "reservation %s: %v", res.Reference, err)
	}
	if res.NightlyRate.IsNegative() || res.Deposit.IsNegative() {
		return nil, apperr.Validation(CodeInvalidReservation, "reservation %s has negative amounts", res.Reference)
	}
	channel := res.Channel
	if channel == "" {
		channel = folio.SourceWebBooking
	}

	at := e.now()
	return &Stay{
		ID:                 e.newID(),
		ReservationRef:     res.Reference,
		Guest:              res.Guest,
		OriginalClass:      res.RoomClass,
		OriginalRoomNumber: res.RoomNumber,
		CandidateRoom:      res.RoomNumber,
		CheckIn:            res.CheckIn,
		PlannedCheckOut:    res.CheckOut,
		NightlyRate:        res.NightlyRate,
		Deposit:            res.Deposit,
		Channel:            channel,
		Status:             StatusLookedUp,
		Ledger:             folio.NewLedger(),
		CreatedAt:          at,
		UpdatedAt:          at,
	}, nil
}

// FindForCheckOut resumes the in-house stay by reservation reference or room
// number. It never creates a stay.
func (e *Engine) FindForCheckOut(ctx context.Context, q Query) (*Stay, error) {
	var (
		s   *Stay
		err error
	)
	switch {
	case strings.TrimSpace(q.Reference) != "":
		s, err = e.deps.Repo.FindByReservation(ctx, strings.TrimSpace(q.Reference))
	case strings.TrimSpace(q.RoomNumber) != "":
		s, err = e.deps.Repo.FindActiveByRoom(ctx, strings.TrimSpace(q.RoomNumber))
	default:
		return nil, apperr.Validation(CodeInvalidQuery, "reservation reference or room number is required")
	}
	if err != nil {
		return nil, err
	}
	if !s.Status.AtLeast(StatusInHouse) || s.Status.IsTerminal() {
		return nil, apperr.Guard(CodeNotInHouse, "stay %s is %s, not in house", s.ID, s.Status)
	}
	return s, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*Stay, error) {
	return e.deps.Repo.Get(ctx, id)
}

func (e *Engine) History(ctx context.Context, id string) ([]Transition, error) {
	s, err := e.deps.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.History, nil
}

// LedgerSnapshot returns the folio lines of a stay as presented to operators.
func (e *Engine) LedgerSnapshot(ctx context.Context, id string) ([]folio.Line, error) {
	s, err := e.deps.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Ledger.Snapshot(), nil
}

// Settlement returns the frozen decision of a settled stay, otherwise a decision
// freshly computed from the current ledger.
func (e *Engine) Settlement(ctx context.Context, id string) (settlement.Decision, error) {
	s, err := e.deps.Repo.Get(ctx, id)
	if err != nil {
		return settlement.Decision{}, err
	}
	if s.Decision != nil && s.Decision.Frozen {
		return *s.Decision, nil
	}
	return e.compute(s), nil
}

// Recompute derives a decision from lines the way settlement does. Post-settlement
// dispute adjustments are not part of it.
func (e *Engine) Recompute(s *Stay, lines []folio.Line) settlement.Decision {
	d := e.calc.Compute(folio.SettledTotal(lines), s.DepositHeld())
	d.ComputedAt = e.now()
	return d
}

func (e *Engine) compute(s *Stay) settlement.Decision {
	d := e.calc.Compute(s.Ledger.Total(), s.DepositHeld())
	d.ComputedAt = e.now()
	return d
}

// PostLine adds a charge to an open folio.
func (e *Engine) PostLine(ctx context.Context, id string, in folio.PostInput) (folio.Line, error) {
	var line folio.Line
	err := e.mutateLedger(ctx, id, "PostLine", func(s *Stay) error {
		in.At = e.now()
		var err error
		line, err = s.Ledger.PostLine(in)
		return err
	})
	return line, err
}

// Adjust corrects a line. After settlement this is the only ledger operation
// left and the adjustment is flagged post-settlement.
func (e *Engine) Adjust(ctx context.Context, id string, in folio.AdjustInput) (folio.Line, error) {
	var line folio.Line
	err := e.mutateLedger(ctx, id, "Adjust", func(s *Stay) error {
		in.At = e.now()
		var err error
		line, err = s.Ledger.Adjust(in)
		return err
	})
	return line, err
}

// Void marks a line voided.
func (e *Engine) Void(ctx context.Context, id string, in folio.VoidInput) (folio.Line, error) {
	var line folio.Line
	err := e.mutateLedger(ctx, id, "Void", func(s *Stay) error {
		in.At = e.now()
		var err error
		line, err = s.Ledger.Void(in)
		return err
	})
	return line, err
}

func (e *Engine) mutateLedger(ctx context.Context, id, op string, fn func(*Stay) error) error {
	unlock, err := e.deps.Locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("lock stay %s: %w", id, err)
	}
	defer unlock()

	s, err := e.deps.Repo.Get(ctx, id)
	if err != nil {
		return err
	}

	// A sealed folio stays reachable so that post-settlement adjustments work and
	// other writes fail with LedgerSealed.
	if !s.Status.LedgerOpen() && !s.Ledger.Sealed() {
		return apperr.Guard(CodeLedgerNotOpen, "folio of stay %s is not open in state %s", id, s.Status)
	}
	if err := fn(s); err != nil {
		e.report(op, s, err)
		return err
	}
	s.UpdatedAt = e.now()
	if err := e.deps.Repo.Save(ctx, s); err != nil {
		return fmt.Errorf("save stay %s: %w", id, err)
	}
	return nil
}

// report logs err at the level its kind deserves.
func (e *Engine) report(op string, s *Stay, err error) {
	fields := logrus.Fields{"module": "stay", "funcName": op, "stay_id": s.ID, "status": s.Status, "code": apperr.CodeOf(err)}
	switch apperr.KindOf(err) {
	case apperr.KindGuard:
		e.log.WithFields(fields).Info(err.Error())
	case apperr.KindValidation, apperr.KindNotFound:
		e.log.WithFields(fields).Debug(err.Error())
	case apperr.KindConflict, apperr.KindUnavailable:
		e.log.WithFields(fields).Warn(err.Error())
	default:
		logging.Error(e.log, "stay", op, string(s.Status), s.ID, err)
	}
}

func (e *Engine) notify(ctx context.Context, events []Event) {
	for _, ev := range events {
		for _, l := range e.deps.Listeners {
			l.StayTransitioned(ctx, ev)
		}
	}
}

func (e *Engine) release(ctx context.Context, s *Stay, number string) {
	if number == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.InventoryTimeout)
	defer cancel()
	if err := e.deps.Inventory.Release(callCtx, number, s.ID); err != nil {
		logging.Error(e.log, "stay", "release", "room hold left behind", map[string]string{"stay_id": s.ID, "room": number}, err)
	}
}
