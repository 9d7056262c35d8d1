package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/db"
	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/settlement"
	"frontdesk-backend/internal/stay"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteStore returns a store on a private in-memory database.
func newSQLiteStore(t *testing.T) *gormStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return NewGormStore(gormDB).(*gormStore)
}

var arrival = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newStay(id string) *stay.Stay {
	return &stay.Stay{
		ID:                 id,
		ReservationRef:     "RES-" + id,
		Guest:              stay.Guest{Name: "NGUYEN VAN AN", Phone: "+84901234567"},
		OriginalClass:      "DELUXE",
		OriginalRoomNumber: "204",
		CandidateRoom:      "204",
		CheckIn:            arrival,
		PlannedCheckOut:    arrival.Add(46 * time.Hour),
		NightlyRate:        d(1200000),
		Deposit:            d(2000000),
		Channel:            folio.SourceWebBooking,
		Status:             stay.StatusLookedUp,
		Ledger:             folio.NewLedger(),
		CreatedAt:          arrival,
		UpdatedAt:          arrival,
	}
}

func TestGormStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	st := newStay("stay-1")
	require.NoError(t, s.Save(ctx, st))
	assert.Equal(t, 1, st.Version)

	entry := folio.Entry{Actor: "desk-1", At: arrival}
	_, err := st.Ledger.InitializeRoomCharges(folio.RoomCharges{Nights: 2, Rate: d(1200000), Entry: entry})
	require.NoError(t, err)
	minibar, err := st.Ledger.PostLine(folio.PostInput{Kind: folio.KindService, Description: "Minibar", Source: folio.SourceMinibar, UnitAmount: d(60000), Quantity: 2, Entry: entry})
	require.NoError(t, err)
	st.Status = stay.StatusInHouse
	st.AssignedRoom = "204"
	st.Checks = []identity.Check{{
		ID: "chk-1", Method: identity.MethodManualDocument, DocumentNumber: "B12345678", DocumentType: identity.DocPassport,
		Result: identity.Pass, MatchedName: "NGUYEN VAN AN", Epoch: 0, Actor: "desk-1", CheckedAt: arrival,
	}}
	st.History = []stay.Transition{
		{From: stay.StatusLookedUp, To: stay.StatusIdentityPending, Step: stay.StepBeginVerification, Actor: "desk-1", At: arrival},
		{From: stay.StatusIdentityPending, To: stay.StatusInHouse, Step: stay.StepCheckIn, Actor: "desk-1", At: arrival},
	}
	require.NoError(t, s.Save(ctx, st))
	assert.Equal(t, 2, st.Version)

	// Void a line and add history; the line row is updated, not duplicated.
	_, err = st.Ledger.Void(folio.VoidInput{TargetID: minibar.ID, Reason: "not consumed", Entry: entry})
	require.NoError(t, err)
	st.History = append(st.History, stay.Transition{From: stay.StatusInHouse, To: stay.StatusFolioReviewed, Step: stay.StepReviewFolio, At: arrival})
	st.Status = stay.StatusFolioReviewed
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Get(ctx, "stay-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, stay.StatusFolioReviewed, got.Status)
	assert.Equal(t, "NGUYEN VAN AN", got.Guest.Name)
	assert.True(t, d(2000000).Equal(got.Deposit))

	lines := got.Ledger.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{lines[0].Seq, lines[1].Seq, lines[2].Seq})
	assert.Equal(t, folio.StatusVoided, lines[2].Status)
	assert.Equal(t, "not consumed", lines[2].VoidReason)
	assert.True(t, d(2400000).Equal(got.Ledger.Total()))

	require.Len(t, got.Checks, 1)
	assert.True(t, got.IdentityVerified())
	require.Len(t, got.History, 3)
	assert.Equal(t, stay.StepReviewFolio, got.History[2].Step)
	assert.Nil(t, got.Decision)
	assert.False(t, got.Ledger.Sealed())
}

func TestGormStore_SettlementAndOverride(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	st := newStay("stay-2")
	st.IsUpgrade = true
	st.UpgradeClass = "SUITE"
	st.UpgradeRate = decimal.NewNullDecimal(d(1500000))
	st.ExtraDeposit = d(500000)
	st.Override = &stay.Override{Actor: "manager", Reason: "document reader broken", Epoch: 0, At: arrival}
	st.Status = stay.StatusSettled
	st.Ledger.Seal()
	st.Decision = &settlement.Decision{
		Subtotal: d(3000000), Tax: d(240000), DepositApplied: d(2500000), NetAmount: d(740000),
		Action: settlement.ActionCollect, Method: settlement.MethodCard, ReceiptID: "rcpt-1",
		ComputedAt: arrival, Frozen: true,
	}
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Get(ctx, "stay-2")
	require.NoError(t, err)
	require.NotNil(t, got.Override)
	assert.Equal(t, "document reader broken", got.Override.Reason)
	assert.True(t, got.IdentityVerified())
	assert.True(t, got.UpgradeRate.Valid)
	assert.True(t, d(1500000).Equal(got.EffectiveRate()))
	assert.True(t, d(2500000).Equal(got.DepositHeld()))
	assert.True(t, got.Ledger.Sealed())
	require.NotNil(t, got.Decision)
	assert.True(t, got.Decision.Frozen)
	assert.True(t, st.Decision.Equivalent(*got.Decision))
	assert.Equal(t, "rcpt-1", got.Decision.ReceiptID)
}

func TestGormStore_SaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	st := newStay("stay-3")
	require.NoError(t, s.Save(ctx, st))

	a, err := s.Get(ctx, "stay-3")
	require.NoError(t, err)
	b, err := s.Get(ctx, "stay-3")
	require.NoError(t, err)

	a.Status = stay.StatusIdentityPending
	require.NoError(t, s.Save(ctx, a))

	b.Status = stay.StatusCancelled
	err = s.Save(ctx, b)
	assert.ErrorIs(t, err, stay.ErrVersionConflict)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	ghost := newStay("ghost")
	ghost.Version = 4
	assert.ErrorIs(t, s.Save(ctx, ghost), stay.ErrStayNotFound)
}

func TestGormStore_Finders(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	cancelled := newStay("old")
	cancelled.ReservationRef = "RES-9"
	cancelled.Status = stay.StatusCancelled
	require.NoError(t, s.Save(ctx, cancelled))

	current := newStay("new")
	current.ReservationRef = "RES-9"
	current.CreatedAt = arrival.Add(time.Hour)
	current.Status = stay.StatusInHouse
	current.AssignedRoom = "204"
	require.NoError(t, s.Save(ctx, current))

	got, err := s.FindByReservation(ctx, "RES-9")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)

	got, err = s.FindActiveByRoom(ctx, "204")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)

	_, err = s.FindActiveByRoom(ctx, "205")
	assert.ErrorIs(t, err, stay.ErrStayNotFound)
	_, err = s.FindByReservation(ctx, "RES-404")
	assert.ErrorIs(t, err, stay.ErrStayNotFound)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, stay.ErrStayNotFound)
}

func TestGormStore_Inventory(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.UpsertRooms(ctx, []model.Room{
		{Number: "204", Class: "DELUXE", Floor: 2},
		{Number: "801", Class: "SUITE", Floor: 8},
		{Number: "802", Class: "SUITE", Floor: 8, OutOfOrder: true},
	}))

	testCases := []struct {
		name     string
		number   string
		stayID   string
		expected error
	}{
		{"free room", "204", "stay-a", nil},
		{"same stay again", "204", "stay-a", nil},
		{"held by another stay", "204", "stay-b", stay.ErrRoomConflict},
		{"out of order", "802", "stay-b", stay.ErrRoomConflict},
		{"unknown room", "999", "stay-b", stay.ErrRoomNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Reserve(ctx, tc.number, tc.stayID)
			if tc.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.expected)
			}
		})
	}

	r, err := s.Lookup(ctx, "204")
	require.NoError(t, err)
	assert.False(t, r.Free)
	assert.Equal(t, "stay-a", r.HeldBy)

	// Releasing someone else's hold is a no-op.
	require.NoError(t, s.Release(ctx, "204", "stay-b"))
	r, err = s.Lookup(ctx, "204")
	require.NoError(t, err)
	assert.Equal(t, "stay-a", r.HeldBy)

	require.NoError(t, s.Release(ctx, "204", "stay-a"))
	r, err = s.Lookup(ctx, "204")
	require.NoError(t, err)
	assert.True(t, r.Free)

	r, err = s.Lookup(ctx, "802")
	require.NoError(t, err)
	assert.False(t, r.Free)

	_, err = s.Lookup(ctx, "999")
	assert.ErrorIs(t, err, stay.ErrRoomNotFound)

	// Reloading the room list keeps holds.
	require.NoError(t, s.Reserve(ctx, "801", "stay-c"))
	require.NoError(t, s.UpsertRooms(ctx, []model.Room{{Number: "801", Class: "SUITE", Floor: 8}}))
	r, err = s.Lookup(ctx, "801")
	require.NoError(t, err)
	assert.Equal(t, "stay-c", r.HeldBy)

	rooms, err := s.Rooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 3)
}

func TestGormStore_FindReservation(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.UpsertReservations(ctx, []stay.Reservation{
		{Reference: "RES-1", Guest: stay.Guest{Name: "A"}, RoomClass: "DELUXE", RoomNumber: "204", CheckIn: arrival, CheckOut: arrival.Add(46 * time.Hour), NightlyRate: d(1200000), Deposit: d(2000000), Channel: folio.SourceWebBooking},
		{Reference: "RES-2", Guest: stay.Guest{Name: "B"}, RoomClass: "DELUXE", RoomNumber: "204", CheckIn: arrival.Add(72 * time.Hour), CheckOut: arrival.Add(96 * time.Hour), NightlyRate: d(1200000), Deposit: d(0)},
	}))
	// A re-import updates in place.
	require.NoError(t, s.UpsertReservations(ctx, []stay.Reservation{
		{Reference: "RES-1", Guest: stay.Guest{Name: "A"}, RoomClass: "DELUXE", RoomNumber: "204", CheckIn: arrival, CheckOut: arrival.Add(46 * time.Hour), NightlyRate: d(1100000), Deposit: d(2000000), Channel: folio.SourceWebBooking},
	}))

	testCases := []struct {
		name        string
		query       stay.Query
		expectedRef string
		expectedErr error
	}{
		{"by reference", stay.Query{Reference: "RES-1"}, "RES-1", nil},
		{"by room picks latest arrival", stay.Query{RoomNumber: "204"}, "RES-2", nil},
		{"unknown reference", stay.Query{Reference: "RES-404"}, "", stay.ErrReservationNotFound},
		{"unknown room", stay.Query{RoomNumber: "999"}, "", stay.ErrReservationNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := s.FindReservation(ctx, tc.query)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedRef, r.Reference)
		})
	}

	r, err := s.FindReservation(ctx, stay.Query{Reference: "RES-1"})
	require.NoError(t, err)
	assert.True(t, d(1100000).Equal(r.NightlyRate))
	assert.Equal(t, folio.SourceWebBooking, r.Channel)
}

func TestGormStore_GetNotFound_SQL(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stays" WHERE id = $1`)).
		WithArgs("missing", Any{}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, stay.ErrStayNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ReserveConflict_SQL(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "rooms" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "rooms" WHERE number = $1`)).
		WithArgs("204").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := s.Reserve(context.Background(), "204", "stay-b")
	assert.ErrorIs(t, err, stay.ErrRoomConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
