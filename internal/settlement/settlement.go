// Package settlement reconciles a folio against the deposit held and decides
// whether money is collected from or refunded to the guest.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/money"
)

type Action string

const (
	ActionCollect Action = "COLLECT"
	ActionRefund  Action = "REFUND"
	ActionNone    Action = "NONE"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCollect, ActionRefund, ActionNone:
		return true
	default:
		return false
	}
}

type Method string

const (
	MethodCash     Method = "cash"
	MethodCard     Method = "card"
	MethodTransfer Method = "transfer"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer:
		return true
	default:
		return false
	}
}

const CodeInvalidMethod = "InvalidMethod"

// Decision is the outcome of a settlement computation. Until the stay is settled
// it is recomputed on every read; at SETTLED it is frozen together with the
// identifiers returned by the payment processor.
type Decision struct {
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	DepositApplied  decimal.Decimal
	NetAmount       decimal.Decimal
	Action          Action
	Method          Method
	ReceiptID       string
	RefundRequestID string
	ComputedAt      time.Time
	Frozen          bool
}

// Equivalent reports whether two decisions agree on every amount and the action.
func (d Decision) Equivalent(o Decision) bool {
	return d.Subtotal.Equal(o.Subtotal) &&
		d.Tax.Equal(o.Tax) &&
		d.DepositApplied.Equal(o.DepositApplied) &&
		d.NetAmount.Equal(o.NetAmount) &&
		d.Action == o.Action
}

// AbsNet is the amount that changes hands.
func (d Decision) AbsNet() decimal.Decimal { return d.NetAmount.Abs() }

// Calculator holds the tax policy of the property.
type Calculator struct {
	TaxRate decimal.Decimal
	Places  int32
}

func NewCalculator(taxRate decimal.Decimal, places int32) Calculator {
	return Calculator{TaxRate: taxRate, Places: places}
}

// Compute derives the decision from a ledger subtotal and the deposit held.
//
//	tax = round(subtotal * taxRate)
//	net = subtotal + tax - deposit
func (c Calculator) Compute(subtotal, deposit decimal.Decimal) Decision {
	tax := money.Percent(subtotal, c.TaxRate, c.Places)
	net := subtotal.Add(tax).Sub(deposit)

	action := ActionNone
	switch net.Sign() {
	case 1:
		action = ActionCollect
	case -1:
		action = ActionRefund
	}
	return Decision{
		Subtotal:       subtotal,
		Tax:            tax,
		DepositApplied: deposit,
		NetAmount:      net,
		Action:         action,
	}
}

// ValidateMethod rejects unknown payment methods. NONE settlements need no method.
func ValidateMethod(action Action, m Method) error {
	if action == ActionNone && m == "" {
		return nil
	}
	if !m.IsValid() {
		return apperr.Validation(CodeInvalidMethod, "unknown payment method %q", m)
	}
	return nil
}
