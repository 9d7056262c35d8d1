package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/stay"
)

// Store defines the interface for all database operations.
type Store interface {
	stay.Repository
	stay.ReservationSource
	stay.Inventory

	UpsertReservations(ctx context.Context, rs []stay.Reservation) error
	UpsertRooms(ctx context.Context, rooms []model.Room) error
	Rooms(ctx context.Context) ([]model.Room, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

// DB exposes the connection for handlers that work on plain tables.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

var activeStatuses = []string{
	string(stay.StatusInHouse),
	string(stay.StatusFolioReviewed),
	string(stay.StatusSettled),
}

func (s *gormStore) Get(ctx context.Context, id string) (*stay.Stay, error) {
	var row model.Stay
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Preload("Checks", func(db *gorm.DB) *gorm.DB { return db.Order("checked_at") }).
		Preload("Transitions", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Preload("Settlement").
		First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(stay.CodeStayNotFound, "stay %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stay %s: %w", id, err)
	}
	return fromModel(row), nil
}

// FindByReservation returns the most recent stay of a reservation that was not
// cancelled.
func (s *gormStore) FindByReservation(ctx context.Context, ref string) (*stay.Stay, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.Stay{}).
		Where("reservation_ref = ? AND status <> ?", ref, string(stay.StatusCancelled)).
		Order("created_at DESC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stay for reservation %s: %w", ref, err)
	}
	if len(ids) == 0 {
		return nil, apperr.NotFound(stay.CodeStayNotFound, "no stay for reservation %s", ref)
	}
	return s.Get(ctx, ids[0])
}

// FindActiveByRoom returns the stay occupying a room between check-in and
// check-out.
func (s *gormStore) FindActiveByRoom(ctx context.Context, number string) (*stay.Stay, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.Stay{}).
		Where("assigned_room = ? AND status IN ?", number, activeStatuses).
		Order("created_at DESC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stay in room %s: %w", number, err)
	}
	if len(ids) == 0 {
		return nil, apperr.NotFound(stay.CodeStayNotFound, "no stay in room %s", number)
	}
	return s.Get(ctx, ids[0])
}

// Save writes the stay and its children in one transaction. The stay row is
// only updated when its version still matches; on success st.Version is bumped.
func (s *gormStore) Save(ctx context.Context, st *stay.Stay) error {
	row := toModel(st)
	row.Version = st.Version + 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if st.Version == 0 {
			if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to create stay %s: %w", st.ID, err)
			}
		} else {
			res := tx.Model(&model.Stay{ID: st.ID}).
				Where("version = ?", st.Version).
				Select("*").
				Omit("id", "created_at", clause.Associations).
				Updates(&row)
			if res.Error != nil {
				return fmt.Errorf("failed to update stay %s: %w", st.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return s.missingOrStale(tx, st.ID)
			}
		}
		return saveChildren(tx, row)
	})
	if err != nil {
		return err
	}
	st.Version = row.Version
	return nil
}

func (s *gormStore) missingOrStale(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&model.Stay{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check stay %s: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound(stay.CodeStayNotFound, "stay %s not found", id)
	}
	return apperr.Conflict(stay.CodeVersionConflict, "stay %s was modified concurrently", id)
}

// saveChildren upserts folio lines and appends checks and transitions. Lines
// change status when voided, everything else is append-only.
func saveChildren(tx *gorm.DB, row model.Stay) error {
	if len(row.Lines) > 0 {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "voided_at", "voided_by", "void_reason"}),
		}).Create(&row.Lines).Error; err != nil {
			return fmt.Errorf("batch upsert folio lines failed: %w", err)
		}
	}
	if len(row.Checks) > 0 {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row.Checks).Error; err != nil {
			return fmt.Errorf("batch insert identity checks failed: %w", err)
		}
	}
	if len(row.Transitions) > 0 {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stay_id"}, {Name: "seq"}},
			DoNothing: true,
		}).Create(&row.Transitions).Error; err != nil {
			return fmt.Errorf("batch insert transitions failed: %w", err)
		}
	}
	if row.Settlement != nil {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stay_id"}},
			UpdateAll: true,
		}).Create(row.Settlement).Error; err != nil {
			return fmt.Errorf("failed to save settlement of stay %s: %w", row.ID, err)
		}
	}
	return nil
}
