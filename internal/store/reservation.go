package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/stay"
)

// FindReservation looks a booking up by reference, or by room number picking
// the latest arrival.
func (s *gormStore) FindReservation(ctx context.Context, q stay.Query) (stay.Reservation, error) {
	var r model.Reservation
	db := s.db.WithContext(ctx)
	if q.Reference != "" {
		db = db.Where("reference = ?", q.Reference)
	} else {
		db = db.Where("room_number = ?", q.RoomNumber).Order("check_in DESC")
	}
	err := db.First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return stay.Reservation{}, apperr.NotFound(stay.CodeReservationNotFound, "no reservation for %+v", q)
	}
	if err != nil {
		return stay.Reservation{}, fmt.Errorf("failed to find reservation: %w", err)
	}
	return stay.Reservation{
		Reference:   r.Reference,
		Guest:       stay.Guest{Name: r.GuestName, Phone: r.GuestPhone, Email: r.GuestEmail},
		RoomClass:   r.RoomClass,
		RoomNumber:  r.RoomNumber,
		CheckIn:     r.CheckIn,
		CheckOut:    r.CheckOut,
		NightlyRate: r.NightlyRate,
		Deposit:     r.Deposit,
		Channel:     folio.Source(r.Channel),
	}, nil
}

// UpsertReservations imports bookings from the channels.
func (s *gormStore) UpsertReservations(ctx context.Context, rs []stay.Reservation) error {
	if len(rs) == 0 {
		return nil
	}
	rows := make([]model.Reservation, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, model.Reservation{
			Reference:   r.Reference,
			GuestName:   r.Guest.Name,
			GuestPhone:  r.Guest.Phone,
			GuestEmail:  r.Guest.Email,
			RoomClass:   r.RoomClass,
			RoomNumber:  r.RoomNumber,
			CheckIn:     r.CheckIn,
			CheckOut:    r.CheckOut,
			NightlyRate: r.NightlyRate,
			Deposit:     r.Deposit,
			Channel:     string(r.Channel),
		})
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference"}},
		DoUpdates: clause.AssignmentColumns([]string{"guest_name", "guest_phone", "guest_email", "room_class", "room_number", "check_in", "check_out", "nightly_rate", "deposit", "channel", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("batch upsert reservations failed: %w", err)
	}
	return nil
}
