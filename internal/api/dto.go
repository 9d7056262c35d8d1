package api

import (
	"time"

	"github.com/shopspring/decimal"

	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/settlement"
	"frontdesk-backend/internal/stay"
)

type lookupRequest struct {
	Reference  string `json:"reference"`
	RoomNumber string `json:"room_number"`
}

type documentRequest struct {
	Number string `json:"number" binding:"required"`
	Type   string `json:"type" binding:"required"`
}

type upgradeRequest struct {
	Enabled      bool                `json:"enabled"`
	TargetClass  string              `json:"target_class"`
	ExtraDeposit decimal.Decimal     `json:"extra_deposit"`
	Rate         decimal.NullDecimal `json:"rate"`
}

type settleRequest struct {
	Action          string              `json:"action" binding:"required"`
	Method          string              `json:"method"`
	ReceiptID       string              `json:"receipt_id"`
	RefundRequestID string              `json:"refund_request_id"`
	ExpectedNet     decimal.NullDecimal `json:"expected_net"`
	Reason          string              `json:"reason"`
}

type stepRequest struct {
	Step           string           `json:"step" binding:"required"`
	Reason         string           `json:"reason"`
	Document       *documentRequest `json:"document"`
	FaceImage      []byte           `json:"face_image"`
	Upgrade        *upgradeRequest  `json:"upgrade"`
	RoomNumber     string           `json:"room_number"`
	ActualCheckOut *time.Time       `json:"actual_check_out"`
	Settle         *settleRequest   `json:"settle"`
	BackTo         string           `json:"back_to"`
}

func (r stepRequest) toInput(actor string) stay.StepInput {
	in := stay.StepInput{
		Step:           stay.Step(r.Step),
		Actor:          actor,
		Reason:         r.Reason,
		FaceImage:      r.FaceImage,
		RoomNumber:     r.RoomNumber,
		ActualCheckOut: r.ActualCheckOut,
		BackTo:         stay.Status(r.BackTo),
	}
	if r.Document != nil {
		in.Document = &identity.Document{Number: r.Document.Number, Type: identity.DocumentType(r.Document.Type)}
	}
	if u := r.Upgrade; u != nil {
		in.Upgrade = &stay.UpgradeInput{Enabled: u.Enabled, TargetClass: u.TargetClass, ExtraDeposit: u.ExtraDeposit, Rate: u.Rate}
	}
	if s := r.Settle; s != nil {
		in.Settle = &stay.SettleInput{
			Action:          settlement.Action(s.Action),
			Method:          settlement.Method(s.Method),
			ReceiptID:       s.ReceiptID,
			RefundRequestID: s.RefundRequestID,
			ExpectedNet:     s.ExpectedNet,
			Reason:          s.Reason,
		}
	}
	return in
}

type postLineRequest struct {
	Kind        string          `json:"kind" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Source      string          `json:"source" binding:"required"`
	UnitAmount  decimal.Decimal `json:"unit_amount"`
	Quantity    int             `json:"quantity" binding:"required"`
}

type adjustRequest struct {
	Delta  decimal.Decimal `json:"delta"`
	Reason string          `json:"reason" binding:"required"`
	Source string          `json:"source"`
}

type voidRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type guestView struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type overrideView struct {
	Actor  string    `json:"actor"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type checkView struct {
	ID             string    `json:"id"`
	Method         string    `json:"method"`
	DocumentNumber string    `json:"document_number,omitempty"`
	DocumentType   string    `json:"document_type,omitempty"`
	Score          float64   `json:"score,omitempty"`
	Result         string    `json:"result"`
	MatchedName    string    `json:"matched_name,omitempty"`
	Epoch          int       `json:"epoch"`
	Actor          string    `json:"actor"`
	CheckedAt      time.Time `json:"checked_at"`
}

type decisionView struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	DepositApplied  decimal.Decimal `json:"deposit_applied"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	Action          string          `json:"action"`
	Method          string          `json:"method,omitempty"`
	ReceiptID       string          `json:"receipt_id,omitempty"`
	RefundRequestID string          `json:"refund_request_id,omitempty"`
	ComputedAt      time.Time       `json:"computed_at"`
	Frozen          bool            `json:"frozen"`
}

type stayView struct {
	ID                 string           `json:"id"`
	ReservationRef     string           `json:"reservation_ref"`
	Guest              guestView        `json:"guest"`
	Status             string           `json:"status"`
	Epoch              int              `json:"epoch"`
	OriginalClass      string           `json:"original_class"`
	OriginalRoomNumber string           `json:"original_room_number"`
	IsUpgrade          bool             `json:"is_upgrade"`
	UpgradeClass       string           `json:"upgrade_class,omitempty"`
	UpgradeRate        *decimal.Decimal `json:"upgrade_rate,omitempty"`
	ExtraDeposit       decimal.Decimal  `json:"extra_deposit"`
	CandidateRoom      string           `json:"candidate_room,omitempty"`
	AssignedRoom       string           `json:"assigned_room,omitempty"`
	CheckIn            time.Time        `json:"check_in"`
	PlannedCheckOut    time.Time        `json:"planned_check_out"`
	ActualCheckOut     *time.Time       `json:"actual_check_out,omitempty"`
	NightlyRate        decimal.Decimal  `json:"nightly_rate"`
	Deposit            decimal.Decimal  `json:"deposit"`
	Channel            string           `json:"channel"`
	IdentityVerified   bool             `json:"identity_verified"`
	Override           *overrideView    `json:"override,omitempty"`
	Checks             []checkView      `json:"checks"`
	Decision           *decisionView    `json:"decision,omitempty"`
	Version            int              `json:"version"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

type lineView struct {
	ID             string          `json:"id"`
	Seq            int             `json:"seq"`
	Kind           string          `json:"kind"`
	Description    string          `json:"description"`
	Source         string          `json:"source"`
	UnitAmount     decimal.Decimal `json:"unit_amount"`
	Quantity       int             `json:"quantity"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	TargetID       string          `json:"target_id,omitempty"`
	Night          int             `json:"night,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	PostSettlement bool            `json:"post_settlement,omitempty"`
	PostedAt       time.Time       `json:"posted_at"`
	Actor          string          `json:"actor"`
	VoidedAt       *time.Time      `json:"voided_at,omitempty"`
	VoidedBy       string          `json:"voided_by,omitempty"`
	VoidReason     string          `json:"void_reason,omitempty"`
}

type folioView struct {
	Lines        []lineView      `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	SettledTotal decimal.Decimal `json:"settled_total"`
	Sealed       bool            `json:"sealed"`
}

type transitionView struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Step   string    `json:"step"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

type resultView struct {
	StayID   string             `json:"stay_id"`
	Previous string             `json:"previous"`
	NewState string             `json:"new_state"`
	Guard    *stay.GuardFailure `json:"guard,omitempty"`
	Check    *checkView         `json:"check,omitempty"`
	Decision *decisionView      `json:"decision,omitempty"`
}

// maskDocument keeps the last four characters of a document number.
func maskDocument(n string) string {
	if len(n) <= 4 {
		return n
	}
	masked := make([]byte, len(n))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(n)-4:], n[len(n)-4:])
	return string(masked)
}

func newCheckView(c identity.Check) checkView {
	return checkView{
		ID:             c.ID,
		Method:         string(c.Method),
		DocumentNumber: maskDocument(c.DocumentNumber),
		DocumentType:   string(c.DocumentType),
		Score:          c.Score,
		Result:         string(c.Result),
		MatchedName:    c.MatchedName,
		Epoch:          c.Epoch,
		Actor:          c.Actor,
		CheckedAt:      c.CheckedAt,
	}
}

func newDecisionView(d settlement.Decision) *decisionView {
	return &decisionView{
		Subtotal:        d.Subtotal,
		Tax:             d.Tax,
		DepositApplied:  d.DepositApplied,
		NetAmount:       d.NetAmount,
		Action:          string(d.Action),
		Method:          string(d.Method),
		ReceiptID:       d.ReceiptID,
		RefundRequestID: d.RefundRequestID,
		ComputedAt:      d.ComputedAt,
		Frozen:          d.Frozen,
	}
}

func newStayView(s *stay.Stay) stayView {
	v := stayView{
		ID:                 s.ID,
		ReservationRef:     s.ReservationRef,
		Guest:              guestView(s.Guest),
		Status:             string(s.Status),
		Epoch:              s.Epoch,
		OriginalClass:      s.OriginalClass,
		OriginalRoomNumber: s.OriginalRoomNumber,
		IsUpgrade:          s.IsUpgrade,
		UpgradeClass:       s.UpgradeClass,
		ExtraDeposit:       s.ExtraDeposit,
		CandidateRoom:      s.CandidateRoom,
		AssignedRoom:       s.AssignedRoom,
		CheckIn:            s.CheckIn,
		PlannedCheckOut:    s.PlannedCheckOut,
		ActualCheckOut:     s.ActualCheckOut,
		NightlyRate:        s.NightlyRate,
		Deposit:            s.Deposit,
		Channel:            string(s.Channel),
		IdentityVerified:   s.IdentityVerified(),
		Checks:             make([]checkView, 0, len(s.Checks)),
		Version:            s.Version,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
	if s.UpgradeRate.Valid {
		rate := s.UpgradeRate.Decimal
		v.UpgradeRate = &rate
	}
	if o := s.Override; o != nil && o.Epoch == s.Epoch {
		v.Override = &overrideView{Actor: o.Actor, Reason: o.Reason, At: o.At}
	}
	for _, c := range s.Checks {
		v.Checks = append(v.Checks, newCheckView(c))
	}
	if s.Decision != nil {
		v.Decision = newDecisionView(*s.Decision)
	}
	return v
}

func newLineView(l folio.Line) lineView {
	return lineView{
		ID:             l.ID,
		Seq:            l.Seq,
		Kind:           string(l.Kind),
		Description:    l.Description,
		Source:         string(l.Source),
		UnitAmount:     l.UnitAmount,
		Quantity:       l.Quantity,
		Amount:         l.Amount(),
		Status:         string(l.Status),
		TargetID:       l.TargetID,
		Night:          l.Night,
		Reason:         l.Reason,
		PostSettlement: l.PostSettlement,
		PostedAt:       l.PostedAt,
		Actor:          l.Actor,
		VoidedAt:       l.VoidedAt,
		VoidedBy:       l.VoidedBy,
		VoidReason:     l.VoidReason,
	}
}

func newFolioView(lines []folio.Line, sealed bool) folioView {
	v := folioView{
		Lines:        make([]lineView, 0, len(lines)),
		Total:        folio.Total(lines),
		SettledTotal: folio.SettledTotal(lines),
		Sealed:       sealed,
	}
	for _, l := range lines {
		v.Lines = append(v.Lines, newLineView(l))
	}
	return v
}

func newResultView(r stay.Result) resultView {
	v := resultView{
		StayID:   r.StayID,
		Previous: string(r.Previous),
		NewState: string(r.NewState),
		Guard:    r.Guard,
	}
	if r.Check != nil {
		c := newCheckView(*r.Check)
		v.Check = &c
	}
	if r.Decision != nil {
		v.Decision = newDecisionView(*r.Decision)
	}
	return v
}
