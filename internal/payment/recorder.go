// Package payment records money taken or returned at the desk.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/settlement"
)

const (
	KindCollect = "collect"
	KindRefund  = "refund"

	CodeInvalidPayment = "InvalidPayment"
)

// Recorder is the desk terminal: it persists every collection and refund
// request and hands back its id as receipt or refund request id. Recording the
// same amount twice for a stay returns the first record, so a settle retried
// after a failed save does not take the money again.
type Recorder struct {
	db       *gorm.DB
	terminal string
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewRecorder(db *gorm.DB, terminal string, log logrus.FieldLogger) *Recorder {
	return &Recorder{db: db, terminal: terminal, log: log, now: time.Now}
}

func (r *Recorder) Collect(ctx context.Context, amount decimal.Decimal, method settlement.Method, reference string) (string, error) {
	return r.record(ctx, KindCollect, amount, method, "", reference)
}

func (r *Recorder) RequestRefund(ctx context.Context, amount decimal.Decimal, method settlement.Method, reason, reference string) (string, error) {
	return r.record(ctx, KindRefund, amount, method, reason, reference)
}

func (r *Recorder) record(ctx context.Context, kind string, amount decimal.Decimal, method settlement.Method, reason, stayID string) (string, error) {
	if !amount.IsPositive() {
		return "", apperr.Validation(CodeInvalidPayment, "%s amount must be positive, got %s", kind, amount)
	}
	if !method.IsValid() {
		return "", apperr.Validation(settlement.CodeInvalidMethod, "unknown payment method %q", method)
	}

	rec := model.PaymentRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		StayID:    stayID,
		Amount:    amount,
		Method:    string(method),
		Reason:    reason,
		Terminal:  r.terminal,
		CreatedAt: r.now(),
	}
	repeated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []model.PaymentRecord
		if err := tx.Where("stay_id = ? AND kind = ? AND method = ?", stayID, kind, string(method)).
			Order("created_at").Find(&existing).Error; err != nil {
			return err
		}
		for _, e := range existing {
			if e.Amount.Equal(amount) {
				rec, repeated = e, true
				return nil
			}
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to record %s for stay %s: %w", kind, stayID, err)
	}
	if repeated {
		r.log.WithFields(logrus.Fields{"module": "payment", "kind": kind, "stay_id": stayID, "id": rec.ID}).
			Warn("payment already recorded, returning the existing id")
		return rec.ID, nil
	}

	r.log.WithFields(logrus.Fields{
		"module":   "payment",
		"kind":     kind,
		"stay_id":  stayID,
		"amount":   amount.String(),
		"method":   method,
		"terminal": r.terminal,
	}).Info("payment recorded")
	return rec.ID, nil
}

// ForStay lists the payments of a stay, oldest first.
func (r *Recorder) ForStay(ctx context.Context, stayID string) ([]model.PaymentRecord, error) {
	var recs []model.PaymentRecord
	if err := r.db.WithContext(ctx).Where("stay_id = ?", stayID).Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments of stay %s: %w", stayID, err)
	}
	return recs, nil
}
