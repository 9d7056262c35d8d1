package stay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/logging"
	"frontdesk-backend/internal/money"
	"frontdesk-backend/internal/room"
	"frontdesk-backend/internal/settlement"
)

// Step names an operator action.
type Step string

const (
	StepBeginVerification Step = "begin_verification"
	StepVerifyManual      Step = "verify_manual"
	StepVerifyFace        Step = "verify_face"
	StepOverrideIdentity  Step = "override_identity"
	StepChooseUpgrade     Step = "choose_upgrade"
	StepAssignRoom        Step = "assign_room"
	StepCheckIn           Step = "check_in"
	StepReviewFolio       Step = "review_folio"
	StepSettle            Step = "settle"
	StepCheckOut          Step = "check_out"
	StepCancel            Step = "cancel"
	StepBack              Step = "back"
)

// Guard and invariant codes raised by the lifecycle.
const (
	CodeUnknownStep            = "UnknownStep"
	CodeInvalidTransition      = "InvalidTransition"
	CodeMissingInput           = "MissingInput"
	CodeIdentityCheckFailed    = "IdentityCheckFailed"
	CodeIdentityNotVerified    = "IdentityNotVerified"
	CodeOverrideNotAllowed     = "OverrideNotAllowed"
	CodeOverrideReasonRequired = "OverrideReasonRequired"
	CodeInvalidUpgrade         = "InvalidUpgrade"
	CodeExtraDepositRequired   = "ExtraDepositRequired"
	CodeRoomHoldLost           = "RoomHoldLost"
	CodeFolioEmpty             = "FolioEmpty"
	CodeInvalidCheckOutDate    = "InvalidCheckOutDate"
	CodeActionMismatch         = "SettlementActionMismatch"
	CodeSettlementChanged      = "SettlementChanged"
	CodePaymentNotRecorded     = "PaymentNotRecorded"
	CodeUnresolvedSettlement   = "UnresolvedSettlement"
	CodeSettlementDrift        = "SettlementDrift"
	CodeCancelNotAllowed       = "CancelNotAllowed"
	CodeBackNotAllowed         = "BackNotAllowed"
)

// UpgradeInput switches the upgrade on or off. Turning it off discards any
// candidate room and re-selects the booked one.
type UpgradeInput struct {
	Enabled      bool
	TargetClass  string
	ExtraDeposit decimal.Decimal
	// Rate replaces the nightly rate for an upgraded stay when set.
	Rate decimal.NullDecimal
}

// SettleInput is what the operator did at the payment step.
type SettleInput struct {
	Action          settlement.Action
	Method          settlement.Method
	ReceiptID       string
	RefundRequestID string
	// ExpectedNet, when set, must equal the net amount at settlement time. It
	// catches folio changes made after the operator reviewed the bill.
	ExpectedNet decimal.NullDecimal
	Reason      string
}

// StepInput carries the data of one Advance call. Only the fields of the
// requested step are read.
type StepInput struct {
	Step   Step
	Actor  string
	Reason string

	Document       *identity.Document
	FaceImage      []byte
	Upgrade        *UpgradeInput
	RoomNumber     string
	ActualCheckOut *time.Time
	Settle         *SettleInput
	BackTo         Status
}

// GuardFailure explains why a step did not advance.
type GuardFailure struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Result is the outcome of Advance. NewState equals the previous state when a
// guard failed.
type Result struct {
	StayID   string
	Previous Status
	NewState Status
	Guard    *GuardFailure
	Check    *identity.Check
	Decision *settlement.Decision
}

// effects are side effects that only run once the step is committed.
type effects struct {
	reserved string
	release  string
	events   []Event
}

type stepFunc func(ctx context.Context, s *Stay, in StepInput, res *Result, fx *effects) error

func (e *Engine) handler(step Step) (stepFunc, bool) {
	switch step {
	case StepBeginVerification:
		return e.beginVerification, true
	case StepVerifyManual:
		return e.verifyManual, true
	case StepVerifyFace:
		return e.verifyFace, true
	case StepOverrideIdentity:
		return e.overrideIdentity, true
	case StepChooseUpgrade:
		return e.chooseUpgrade, true
	case StepAssignRoom:
		return e.assignRoom, true
	case StepCheckIn:
		return e.checkIn, true
	case StepReviewFolio:
		return e.reviewFolio, true
	case StepSettle:
		return e.settle, true
	case StepCheckOut:
		return e.checkOut, true
	case StepCancel:
		return e.cancel, true
	case StepBack:
		return e.back, true
	}
	return nil, false
}

// Advance runs one step against a stay. Guard failures are reported in
// Result.Guard with a nil error and leave the stay unchanged, except that failed
// identity checks are still recorded. Any returned error means nothing was
// committed.
func (e *Engine) Advance(ctx context.Context, stayID string, in StepInput) (Result, error) {
	fn, ok := e.handler(in.Step)
	if !ok {
		return Result{}, apperr.Validation(CodeUnknownStep, "unknown step %q", in.Step)
	}

	res, fx, err := e.advanceLocked(ctx, stayID, in, fn)
	if err != nil {
		return res, err
	}
	e.notify(ctx, fx.events)
	return res, nil
}

func (e *Engine) advanceLocked(ctx context.Context, stayID string, in StepInput, fn stepFunc) (Result, *effects, error) {
	unlock, err := e.deps.Locker.Lock(ctx, stayID)
	if err != nil {
		return Result{}, nil, fmt.Errorf("lock stay %s: %w", stayID, err)
	}
	defer unlock()

	s, err := e.deps.Repo.Get(ctx, stayID)
	if err != nil {
		return Result{}, nil, err
	}

	res := Result{StayID: s.ID, Previous: s.Status, NewState: s.Status}
	fx := &effects{}
	historyLen := len(s.History)

	if err := fn(ctx, s, in, &res, fx); err != nil {
		e.report(string(in.Step), s, err)
		e.release(ctx, s, fx.reserved)
		if apperr.KindOf(err) == apperr.KindGuard {
			ae, _ := apperr.As(err)
			res.Guard = &GuardFailure{Code: ae.Code, Reason: ae.Message}
			return res, fx, nil
		}
		return Result{}, nil, err
	}

	s.UpdatedAt = e.now()
	if err := e.deps.Repo.Save(ctx, s); err != nil {
		e.release(ctx, s, fx.reserved)
		err = fmt.Errorf("save stay %s after %s: %w", s.ID, in.Step, err)
		if res.Decision != nil && (res.Decision.ReceiptID != "" || res.Decision.RefundRequestID != "") {
			// Money already moved. The ids go back to the operator, who re-runs
			// settle with them instead of charging again.
			logging.Error(e.log, "stay", "Advance", "settlement not persisted", res.Decision, err)
			return Result{StayID: s.ID, Previous: res.Previous, NewState: res.Previous, Decision: res.Decision}, nil, err
		}
		return Result{}, nil, err
	}
	if res.Guard != nil {
		e.log.WithFields(logrus.Fields{"module": "stay", "stay_id": s.ID, "step": in.Step, "code": res.Guard.Code}).Info(res.Guard.Reason)
	}

	e.release(ctx, s, fx.release)
	res.NewState = s.Status
	for _, t := range s.History[historyLen:] {
		if t.From == t.To {
			continue
		}
		fx.events = append(fx.events, Event{
			StayID: s.ID,
			Room:   firstNonEmpty(s.AssignedRoom, fx.release),
			Guest:  s.Guest.Name,
			From:   t.From,
			To:     t.To,
			Step:   t.Step,
			At:     t.At,
		})
	}
	if len(fx.events) > 0 {
		e.log.WithFields(logrus.Fields{"module": "stay", "stay_id": s.ID, "step": in.Step, "from": res.Previous, "to": s.Status}).Info("stay advanced")
	}
	return res, fx, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func expect(s *Stay, step Step, allowed ...Status) error {
	for _, st := range allowed {
		if s.Status == st {
			return nil
		}
	}
	return apperr.Guard(CodeInvalidTransition, "%s is not possible from %s", step, s.Status)
}

func (e *Engine) beginVerification(_ context.Context, s *Stay, in StepInput, _ *Result, _ *effects) error {
	if err := expect(s, in.Step, StatusLookedUp); err != nil {
		return err
	}
	s.transition(StatusIdentityPending, in.Step, in.Actor, in.Reason, e.now())
	return nil
}

func (e *Engine) verifyManual(ctx context.Context, s *Stay, in StepInput, res *Result, _ *effects) error {
	if err := expect(s, in.Step, StatusIdentityPending); err != nil {
		return err
	}
	if in.Document == nil {
		return apperr.Validation(CodeMissingInput, "document is required")
	}
	check, err := e.deps.Verifier.VerifyManual(ctx, *in.Document)
	if err != nil {
		return err
	}
	e.recordCheck(s, check, in, res)
	return nil
}

func (e *Engine) verifyFace(ctx context.Context, s *Stay, in StepInput, res *Result, _ *effects) error {
	if err := expect(s, in.Step, StatusIdentityPending); err != nil {
		return err
	}
	check, err := e.deps.Verifier.VerifyFace(ctx, in.FaceImage)
	if err != nil {
		return err
	}
	e.recordCheck(s, check, in, res)
	return nil
}

// recordCheck appends the attempt and advances on PASS. A FAIL is committed too
// and surfaced as a guard failure.
func (e *Engine) recordCheck(s *Stay, check identity.Check, in StepInput, res *Result) {
	check.Epoch = s.Epoch
	check.Actor = in.Actor
	if check.CheckedAt.IsZero() {
		check.CheckedAt = e.now()
	}
	s.Checks = append(s.Checks, check)
	res.Check = &check

	if check.Passed() {
		s.transition(StatusIdentityVerified, in.Step, in.Actor, in.Reason, check.CheckedAt)
		return
	}
	res.Guard = &GuardFailure{
		Code:   CodeIdentityCheckFailed,
		Reason: fmt.Sprintf("%s verification did not match", strings.ToLower(string(check.Method))),
	}
}

func (e *Engine) overrideIdentity(_ context.Context, s *Stay, in StepInput, _ *Result, _ *effects) error {
	if err := expect(s, in.Step, StatusIdentityPending); err != nil {
		return err
	}
	if !e.cfg.AllowIdentityOverride {
		return apperr.Guard(CodeOverrideNotAllowed, "identity override is disabled for this property")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return apperr.Validation(CodeOverrideReasonRequired, "an override needs a reason")
	}
	at := e.now()
	s.Override = &Override{Actor: in.Actor, Reason: in.Reason, Epoch: s.Epoch, At: at}
	s.transition(StatusIdentityVerified, in.Step, in.Actor, in.Reason, at)
	return nil
}

func (e *Engine) chooseUpgrade(_ context.Context, s *Stay, in StepInput, _ *Result, _ *effects) error {
	if err := expect(s, in.Step, StatusIdentityVerified); err != nil {
		return err
	}
	u := in.Upgrade
	if u == nil {
		return apperr.Validation(CodeMissingInput, "upgrade choice is required")
	}

	if !u.Enabled {
		s.IsUpgrade = false
		s.UpgradeClass = ""
		s.UpgradeRate = decimal.NullDecimal{}
		s.ExtraDeposit = decimal.Zero
		s.CandidateRoom = s.OriginalRoomNumber
		s.transition(s.Status, in.Step, in.Actor, "upgrade removed", e.now())
		return nil
	}

	target := strings.TrimSpace(u.TargetClass)
	switch {
	case target == "":
		return apperr.Validation(CodeInvalidUpgrade, "upgrade target class is required")
	case target == s.OriginalClass:
		return apperr.Validation(CodeInvalidUpgrade, "upgrade target equals the booked class %s", target)
	case u.ExtraDeposit.IsNegative():
		return apperr.Validation(CodeInvalidUpgrade, "extra deposit must not be negative")
	case u.Rate.Valid && u.Rate.Decimal.IsNegative():
		return apperr.Validation(CodeInvalidUpgrade, "upgrade rate must not be negative")
	}

	if !s.IsUpgrade || s.UpgradeClass != target {
		s.CandidateRoom = ""
	}
	s.IsUpgrade = true
	s.UpgradeClass = target
	s.UpgradeRate = u.Rate
	s.ExtraDeposit = u.ExtraDeposit
	s.transition(s.Status, in.Step, in.Actor, "upgrade to "+target, e.now())
	return nil
}

func (e *Engine) lookupRoom(ctx context.Context, number string) (room.Room, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.InventoryTimeout)
	defer cancel()
	r, err := e.deps.Inventory.Lookup(callCtx, number)
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.KindNotFound || k == apperr.KindValidation {
			return room.Room{}, err
		}
		return room.Room{}, apperr.Wrap(apperr.KindUnavailable, CodeInventoryUnavailable, err, "lookup room %s", number)
	}
	return r, nil
}

func (e *Engine) assignRoom(ctx context.Context, s *Stay, in StepInput, _ *Result, fx *effects) error {
	if err := expect(s, in.Step, StatusIdentityVerified); err != nil {
		return err
	}
	if !s.IdentityVerified() {
		return apperr.Guard(CodeIdentityNotVerified, "no passing identity check for the current verification")
	}

	number := strings.TrimSpace(in.RoomNumber)
	if number == "" {
		number = s.CandidateRoom
	}
	if number == "" && !s.IsUpgrade {
		number = s.OriginalRoomNumber
	}
	if number == "" {
		return apperr.Guard(room.CodeNoRoomSelected, "select a room of class %s", s.UpgradeClass)
	}

	snap, err := e.lookupRoom(ctx, number)
	if err != nil {
		return err
	}
	if v := room.Validate(s.Booking(), snap, s.IsUpgrade); !v.Passed() {
		return v.Err()
	}

	if required := e.deps.DepositPolicy.RequiredExtraDeposit(s); s.ExtraDeposit.LessThan(required) {
		return apperr.Guard(CodeExtraDepositRequired, "upgrade needs an extra deposit of at least %s", required)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.InventoryTimeout)
	defer cancel()
	if err := e.deps.Inventory.Reserve(callCtx, number, s.ID); err != nil {
		if k := apperr.KindOf(err); k == apperr.KindConflict || k == apperr.KindNotFound {
			return err
		}
		return apperr.Wrap(apperr.KindUnavailable, CodeInventoryUnavailable, err, "reserve room %s", number)
	}
	fx.reserved = number

	s.CandidateRoom = number
	s.AssignedRoom = number
	s.transition(StatusRoomAssigned, in.Step, in.Actor, in.Reason, e.now())
	return nil
}

func (e *Engine) checkIn(ctx context.Context, s *Stay, in StepInput, _ *Result, _ *effects) error {
	if err := expect(s, in.Step, StatusRoomAssigned); err != nil {
		return err
	}
	if !s.IdentityVerified() {
		return apperr.Guard(CodeIdentityNotVerified, "no passing identity check for the current verification")
	}
	if s.AssignedRoom == "" {
		return apperr.Invariant(room.CodeNoRoomSelected, "stay %s is %s without an assigned room", s.ID, s.Status)
	}

	snap, err := e.lookupRoom(ctx, s.AssignedRoom)
	if err != nil {
		return err
	}
	if v := room.Validate(s.Booking(), snap, s.IsUpgrade); !v.Passed() {
		return v.Err()
	}
	if snap.HeldBy != "" && snap.HeldBy != s.ID {
		return apperr.Guard(CodeRoomHoldLost, "room %s is now held by another stay", s.AssignedRoom)
	}

	nights, err := money.NightCount(s.CheckIn, s.PlannedCheckOut)
	if err != nil {
		return apperr.Invariant(CodeInvalidReservation, "stay %s: %v", s.ID, err)
	}
	at := e.now()
	if _, err := s.Ledger.InitializeRoomCharges(folio.RoomCharges{
		Nights: nights,
		Rate:   s.EffectiveRate(),
		Source: s.Channel,
		Entry:  folio.Entry{Actor: in.Actor, At: at},
	}); err != nil {
		return err
	}
	s.transition(StatusInHouse, in.Step, in.Actor, in.Reason, at)
	return nil
}

func (e *Engine) reviewFolio(_ context.Context, s *Stay, in StepInput, res *Result, _ *effects) error {
	if err := expect(s, in.Step, StatusInHouse); err != nil {
		return err
	}
	at := e.now()

	if in.ActualCheckOut != nil {
		nights, err := money.NightCount(s.CheckIn, *in.ActualCheckOut)
		if err != nil {
			return apperr.Validation(CodeInvalidCheckOutDate, "%v", err)
		}
		if s.Ledger.RoomNights() > 0 {
			if _, err := s.Ledger.InitializeRoomCharges(folio.RoomCharges{
				Nights: nights,
				Rate:   s.EffectiveRate(),
				Source: s.Channel,
				Entry:  folio.Entry{Actor: in.Actor, At: at},
			}); err != nil {
				return err
			}
		}
		t := *in.ActualCheckOut
		s.ActualCheckOut = &t
	}

	if s.Ledger.RoomNights() == 0 {
		return apperr.Guard(CodeFolioEmpty, "folio has no room charges")
	}
	d := e.compute(s)
	res.Decision = &d
	s.transition(StatusFolioReviewed, in.Step, in.Actor, in.Reason, at)
	return nil
}

func (e *Engine) settle(ctx context.Context, s *Stay, in StepInput, res *Result, _ *effects) error {
	if err := expect(s, in.Step, StatusFolioReviewed); err != nil {
		return err
	}
	si := in.Settle
	if si == nil {
		return apperr.Validation(CodeMissingInput, "settlement details are required")
	}

	d := e.compute(s)
	if si.Action != d.Action {
		return apperr.Guard(CodeActionMismatch, "settlement requires %s of %s, operator performed %s", d.Action, d.AbsNet(), si.Action)
	}
	if si.ExpectedNet.Valid && !si.ExpectedNet.Decimal.Equal(d.NetAmount) {
		return apperr.Guard(CodeSettlementChanged, "net amount is now %s, expected %s", d.NetAmount, si.ExpectedNet.Decimal)
	}
	if err := settlement.ValidateMethod(d.Action, si.Method); err != nil {
		return err
	}

	switch d.Action {
	case settlement.ActionCollect:
		receipt := strings.TrimSpace(si.ReceiptID)
		if receipt == "" {
			var err error
			if receipt, err = e.collect(ctx, s, d, si); err != nil {
				return err
			}
		}
		d.ReceiptID = receipt
	case settlement.ActionRefund:
		refund := strings.TrimSpace(si.RefundRequestID)
		if refund == "" {
			var err error
			if refund, err = e.refund(ctx, s, d, si); err != nil {
				return err
			}
		}
		d.RefundRequestID = refund
	}

	d.Method = si.Method
	d.Frozen = true
	s.Decision = &d
	s.Ledger.Seal()
	res.Decision = &d
	s.transition(StatusSettled, in.Step, in.Actor, in.Reason, d.ComputedAt)
	return nil
}

func (e *Engine) collect(ctx context.Context, s *Stay, d settlement.Decision, si *SettleInput) (string, error) {
	if e.deps.Payments == nil {
		return "", apperr.Guard(CodePaymentNotRecorded, "payment capture of %s must be confirmed with a receipt id", d.AbsNet())
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.PaymentTimeout)
	defer cancel()
	receipt, err := e.deps.Payments.Collect(callCtx, d.AbsNet(), si.Method, s.ID)
	if err != nil {
		return "", e.paymentErr(err, "collect")
	}
	if receipt == "" {
		return "", apperr.Invariant(CodePaymentNotRecorded, "payment processor returned no receipt id")
	}
	return receipt, nil
}

func (e *Engine) refund(ctx context.Context, s *Stay, d settlement.Decision, si *SettleInput) (string, error) {
	if e.deps.Payments == nil {
		return "", apperr.Guard(CodePaymentNotRecorded, "refund of %s must be confirmed with a refund request id", d.AbsNet())
	}
	reason := si.Reason
	if reason == "" {
		reason = "deposit exceeds charges"
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.PaymentTimeout)
	defer cancel()
	id, err := e.deps.Payments.RequestRefund(callCtx, d.AbsNet(), si.Method, reason, s.ID)
	if err != nil {
		return "", e.paymentErr(err, "request refund")
	}
	if id == "" {
		return "", apperr.Invariant(CodePaymentNotRecorded, "payment processor returned no refund request id")
	}
	return id, nil
}

func (e *Engine) paymentErr(err error, op string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Wrap(apperr.KindUnavailable, CodePaymentUnavailable, err, "%s", op)
}

func (e *Engine) checkOut(_ context.Context, s *Stay, in StepInput, _ *Result, fx *effects) error {
	if err := expect(s, in.Step, StatusSettled); err != nil {
		return err
	}
	d := s.Decision
	if d == nil || !d.Frozen {
		return apperr.Invariant(CodeUnresolvedSettlement, "stay %s is settled without a frozen decision", s.ID)
	}
	switch {
	case d.Action == settlement.ActionCollect && d.ReceiptID == "":
		return apperr.Invariant(CodeUnresolvedSettlement, "net %s is due but no payment was recorded", d.NetAmount)
	case d.Action == settlement.ActionRefund && d.RefundRequestID == "":
		return apperr.Invariant(CodeUnresolvedSettlement, "refund of %s is owed but no request was recorded", d.AbsNet())
	}
	if again := e.Recompute(s, s.Ledger.Lines()); !again.Equivalent(*d) {
		return apperr.Invariant(CodeSettlementDrift, "folio no longer matches the settled amount %s", d.NetAmount)
	}

	at := e.now()
	if s.ActualCheckOut == nil {
		s.ActualCheckOut = &at
	}
	fx.release = s.AssignedRoom
	s.transition(StatusCheckedOut, in.Step, in.Actor, in.Reason, at)
	return nil
}

func (e *Engine) cancel(_ context.Context, s *Stay, in StepInput, _ *Result, fx *effects) error {
	if !s.Status.CanCancel() {
		return apperr.Guard(CodeCancelNotAllowed, "a stay in %s cannot be cancelled", s.Status)
	}
	fx.release = s.AssignedRoom
	s.AssignedRoom = ""
	s.transition(StatusCancelled, in.Step, in.Actor, in.Reason, e.now())
	return nil
}

// back moves to an earlier step. Everything validated after the target step has
// to be validated again.
func (e *Engine) back(_ context.Context, s *Stay, in StepInput, _ *Result, fx *effects) error {
	allowed := false
	switch s.Status {
	case StatusIdentityVerified:
		allowed = in.BackTo == StatusIdentityPending
	case StatusRoomAssigned:
		allowed = in.BackTo == StatusIdentityVerified || in.BackTo == StatusIdentityPending
	case StatusFolioReviewed:
		allowed = in.BackTo == StatusInHouse
	}
	if !allowed {
		return apperr.Guard(CodeBackNotAllowed, "cannot go back from %s to %q", s.Status, in.BackTo)
	}

	if s.Status == StatusRoomAssigned {
		fx.release = s.AssignedRoom
		s.AssignedRoom = ""
		if s.IsUpgrade {
			s.CandidateRoom = ""
		}
	}
	if in.BackTo == StatusIdentityPending {
		s.Epoch++
		s.Override = nil
	}
	s.transition(in.BackTo, in.Step, in.Actor, in.Reason, e.now())
	return nil
}
