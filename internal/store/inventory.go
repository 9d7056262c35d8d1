package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/room"
	"frontdesk-backend/internal/stay"
)

// Lookup returns the current snapshot of a room.
func (s *gormStore) Lookup(ctx context.Context, number string) (room.Room, error) {
	var r model.Room
	err := s.db.WithContext(ctx).First(&r, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return room.Room{}, apperr.NotFound(stay.CodeRoomNotFound, "room %s does not exist", number)
	}
	if err != nil {
		return room.Room{}, fmt.Errorf("failed to load room %s: %w", number, err)
	}
	return room.Room{
		Number: r.Number,
		Class:  r.Class,
		Free:   !r.OutOfOrder && r.HeldBy == "",
		HeldBy: r.HeldBy,
	}, nil
}

// Reserve holds a room for a stay with a conditional update, so two desks
// racing for the same room cannot both win.
func (s *gormStore) Reserve(ctx context.Context, number, stayID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Room{}).
			Where("number = ? AND out_of_order = ? AND (held_by = '' OR held_by IS NULL OR held_by = ?)", number, false, stayID).
			Updates(map[string]any{"held_by": stayID, "held_at": s.now()})
		if res.Error != nil {
			return fmt.Errorf("failed to reserve room %s: %w", number, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var n int64
		if err := tx.Model(&model.Room{}).Where("number = ?", number).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check room %s: %w", number, err)
		}
		if n == 0 {
			return apperr.NotFound(stay.CodeRoomNotFound, "room %s does not exist", number)
		}
		return apperr.Conflict(stay.CodeRoomConflict, "room %s is held by another stay", number)
	})
}

// Release drops the hold of stayID. Holds of other stays are left alone.
func (s *gormStore) Release(ctx context.Context, number, stayID string) error {
	err := s.db.WithContext(ctx).Model(&model.Room{}).
		Where("number = ? AND held_by = ?", number, stayID).
		Updates(map[string]any{"held_by": "", "held_at": nil}).Error
	if err != nil {
		return fmt.Errorf("failed to release room %s: %w", number, err)
	}
	return nil
}

// UpsertRooms loads the room list. Existing holds are kept.
func (s *gormStore) UpsertRooms(ctx context.Context, rooms []model.Room) error {
	if len(rooms) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "number"}},
		DoUpdates: clause.AssignmentColumns([]string{"class", "floor", "out_of_order", "updated_at"}),
	}).Create(&rooms).Error
}

func (s *gormStore) Rooms(ctx context.Context) ([]model.Room, error) {
	var rooms []model.Room
	if err := s.db.WithContext(ctx).Order("number").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}
