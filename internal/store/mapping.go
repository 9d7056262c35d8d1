package store

import (
	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/settlement"
	"frontdesk-backend/internal/stay"
)

func toModel(st *stay.Stay) model.Stay {
	row := model.Stay{
		ID:                 st.ID,
		ReservationRef:     st.ReservationRef,
		GuestName:          st.Guest.Name,
		GuestPhone:         st.Guest.Phone,
		GuestEmail:         st.Guest.Email,
		OriginalClass:      st.OriginalClass,
		OriginalRoomNumber: st.OriginalRoomNumber,
		IsUpgrade:          st.IsUpgrade,
		UpgradeClass:       st.UpgradeClass,
		UpgradeRate:        st.UpgradeRate,
		ExtraDeposit:       st.ExtraDeposit,
		CandidateRoom:      st.CandidateRoom,
		AssignedRoom:       st.AssignedRoom,
		CheckIn:            st.CheckIn,
		PlannedCheckOut:    st.PlannedCheckOut,
		ActualCheckOut:     st.ActualCheckOut,
		NightlyRate:        st.NightlyRate,
		Deposit:            st.Deposit,
		Channel:            string(st.Channel),
		Status:             string(st.Status),
		Epoch:              st.Epoch,
		Version:            st.Version,
		CreatedAt:          st.CreatedAt,
		UpdatedAt:          st.UpdatedAt,
	}
	if o := st.Override; o != nil {
		epoch, at := o.Epoch, o.At
		row.OverrideActor = o.Actor
		row.OverrideReason = o.Reason
		row.OverrideEpoch = &epoch
		row.OverrideAt = &at
	}

	if st.Ledger != nil {
		row.LedgerSealed = st.Ledger.Sealed()
		for _, l := range st.Ledger.Lines() {
			row.Lines = append(row.Lines, model.FolioLine{
				ID:             l.ID,
				StayID:         st.ID,
				Seq:            l.Seq,
				Kind:           string(l.Kind),
				Description:    l.Description,
				Source:         string(l.Source),
				UnitAmount:     l.UnitAmount,
				Quantity:       l.Quantity,
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
			})
		}
	}

	for _, c := range st.Checks {
		row.Checks = append(row.Checks, model.IdentityCheck{
			ID:             c.ID,
			StayID:         st.ID,
			Method:         string(c.Method),
			DocumentNumber: c.DocumentNumber,
			DocumentType:   string(c.DocumentType),
			Score:          c.Score,
			Result:         string(c.Result),
			MatchedName:    c.MatchedName,
			Epoch:          c.Epoch,
			Actor:          c.Actor,
			CheckedAt:      c.CheckedAt,
		})
	}

	for i, t := range st.History {
		row.Transitions = append(row.Transitions, model.StayTransition{
			StayID: st.ID,
			Seq:    i + 1,
			From:   string(t.From),
			To:     string(t.To),
			Step:   string(t.Step),
			Actor:  t.Actor,
			Reason: t.Reason,
			At:     t.At,
		})
	}

	if d := st.Decision; d != nil && d.Frozen {
		row.Settlement = &model.Settlement{
			StayID:          st.ID,
			Subtotal:        d.Subtotal,
			Tax:             d.Tax,
			DepositApplied:  d.DepositApplied,
			NetAmount:       d.NetAmount,
			Action:          string(d.Action),
			Method:          string(d.Method),
			ReceiptID:       d.ReceiptID,
			RefundRequestID: d.RefundRequestID,
			ComputedAt:      d.ComputedAt,
		}
	}
	return row
}

func fromModel(row model.Stay) *stay.Stay {
	st := &stay.Stay{
		ID:             row.ID,
		ReservationRef: row.ReservationRef,
		Guest: stay.Guest{
			Name:  row.GuestName,
			Phone: row.GuestPhone,
			Email: row.GuestEmail,
		},
		OriginalClass:      row.OriginalClass,
		OriginalRoomNumber: row.OriginalRoomNumber,
		IsUpgrade:          row.IsUpgrade,
		UpgradeClass:       row.UpgradeClass,
		UpgradeRate:        row.UpgradeRate,
		ExtraDeposit:       row.ExtraDeposit,
		CandidateRoom:      row.CandidateRoom,
		AssignedRoom:       row.AssignedRoom,
		CheckIn:            row.CheckIn,
		PlannedCheckOut:    row.PlannedCheckOut,
		ActualCheckOut:     row.ActualCheckOut,
		NightlyRate:        row.NightlyRate,
		Deposit:            row.Deposit,
		Channel:            folio.Source(row.Channel),
		Status:             stay.Status(row.Status),
		Epoch:              row.Epoch,
		Version:            row.Version,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.OverrideEpoch != nil {
		o := &stay.Override{Actor: row.OverrideActor, Reason: row.OverrideReason, Epoch: *row.OverrideEpoch}
		if row.OverrideAt != nil {
			o.At = *row.OverrideAt
		}
		st.Override = o
	}

	lines := make([]folio.Line, 0, len(row.Lines))
	for _, l := range row.Lines {
		lines = append(lines, folio.Line{
			ID:             l.ID,
			Seq:            l.Seq,
			Kind:           folio.Kind(l.Kind),
			Description:    l.Description,
			Source:         folio.Source(l.Source),
			UnitAmount:     l.UnitAmount,
			Quantity:       l.Quantity,
			Status:         folio.Status(l.Status),
			TargetID:       l.TargetID,
			Night:          l.Night,
			Reason:         l.Reason,
			PostSettlement: l.PostSettlement,
			PostedAt:       l.PostedAt,
			Actor:          l.Actor,
			VoidedAt:       l.VoidedAt,
			VoidedBy:       l.VoidedBy,
			VoidReason:     l.VoidReason,
		})
	}
	st.Ledger = folio.Restore(lines, row.LedgerSealed)

	for _, c := range row.Checks {
		st.Checks = append(st.Checks, identity.Check{
			ID:             c.ID,
			Method:         identity.Method(c.Method),
			DocumentNumber: c.DocumentNumber,
			DocumentType:   identity.DocumentType(c.DocumentType),
			Score:          c.Score,
			Result:         identity.Outcome(c.Result),
			MatchedName:    c.MatchedName,
			Epoch:          c.Epoch,
			Actor:          c.Actor,
			CheckedAt:      c.CheckedAt,
		})
	}

	for _, t := range row.Transitions {
		st.History = append(st.History, stay.Transition{
			From:   stay.Status(t.From),
			To:     stay.Status(t.To),
			Step:   stay.Step(t.Step),
			Actor:  t.Actor,
			Reason: t.Reason,
			At:     t.At,
		})
	}

	if d := row.Settlement; d != nil {
		st.Decision = &settlement.Decision{
			Subtotal:        d.Subtotal,
			Tax:             d.Tax,
			DepositApplied:  d.DepositApplied,
			NetAmount:       d.NetAmount,
			Action:          settlement.Action(d.Action),
			Method:          settlement.Method(d.Method),
			ReceiptID:       d.ReceiptID,
			RefundRequestID: d.RefundRequestID,
			ComputedAt:      d.ComputedAt,
			Frozen:          true,
		}
	}
	return st
}
