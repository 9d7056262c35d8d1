package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frontdesk-backend/config"
	"frontdesk-backend/internal/db"
	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/lock"
	"frontdesk-backend/internal/logging"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/notification"
	"frontdesk-backend/internal/oracle"
	"frontdesk-backend/internal/payment"
	"frontdesk-backend/internal/reservation"
	"frontdesk-backend/internal/settlement"
	"frontdesk-backend/internal/stay"
	"frontdesk-backend/internal/store"
)

var arrival = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

type fixture struct {
	store    store.Store
	payments *payment.Recorder
	pool     *notification.WorkerPool
	engine   *stay.Engine
}

func newFixture(t *testing.T, dsn string) *fixture {
	t.Helper()
	logger := logging.Discard()

	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn, LogLevel: "silent"}, logger)
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	s := store.NewGormStore(gormDB)
	ctx := context.Background()
	require.NoError(t, s.UpsertRooms(ctx, []model.Room{
		{Number: "204", Class: "DELUXE", Floor: 2},
		{Number: "205", Class: "DELUXE", Floor: 2},
	}))
	require.NoError(t, s.UpsertReservations(ctx, []stay.Reservation{{
		Reference:   "RES-1",
		Guest:       stay.Guest{Name: "NGUYEN VAN AN", Phone: "+84901234567"},
		RoomClass:   "DELUXE",
		RoomNumber:  "204",
		CheckIn:     arrival,
		CheckOut:    arrival.Add(46 * time.Hour),
		NightlyRate: decimal.NewFromInt(1200000),
		Deposit:     decimal.NewFromInt(2000000),
		Channel:     folio.SourceWebBooking,
	}}))

	// Identity oracle answering for a single passport.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Number string `json:"number"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Number != "B12345678" {
			_ = json.NewEncoder(w).Encode(oracle.Response{Code: oracle.CodeNoMatch, Message: "no match"})
			return
		}
		resp := oracle.Response{}
		resp.Data.Name = "NGUYEN VAN AN"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	gate, err := identity.NewGate(oracle.NewClient(config.OracleConfig{URL: server.URL}, time.Second, logger), identity.Options{})
	require.NoError(t, err)

	f := &fixture{
		store:    s,
		payments: payment.NewRecorder(gormDB, "desk-01", logger),
		// Not started: queued jobs stay on the channel for inspection.
		pool: notification.NewWorkerPool(1, 4, gormDB, &webpush.Options{}, logger),
	}
	f.engine = stay.NewEngine(stay.Config{
		TaxRate:          decimal.RequireFromString("0.08"),
		InventoryTimeout: time.Second,
		PaymentTimeout:   time.Second,
	}, stay.Deps{
		Repo:         s,
		Reservations: reservation.NewCached(s, time.Minute),
		Inventory:    s,
		Verifier:     gate,
		Payments:     f.payments,
		Locker:       lock.NewLocal(),
		Listeners:    []stay.Listener{f.pool},
		Logger:       logger,
		Now:          func() time.Time { return arrival },
	})
	return f
}

func (f *fixture) advance(t *testing.T, id string, in stay.StepInput) stay.Result {
	t.Helper()
	in.Actor = "desk-1"
	res, err := f.engine.Advance(context.Background(), id, in)
	require.NoError(t, err, "step %s", in.Step)
	require.Nil(t, res.Guard, "step %s: %+v", in.Step, res.Guard)
	return res
}

func (f *fixture) room(t *testing.T, number string) model.Room {
	t.Helper()
	var r model.Room
	require.NoError(t, f.store.DB().First(&r, "number = ?", number).Error)
	return r
}

// TestStayLifecycle walks a reservation from lookup to check-out against a
// real database and checks what each stage leaves behind.
func TestStayLifecycle(t *testing.T) {
	f := newFixture(t, "file:lifecycle?mode=memory&cache=shared")
	ctx := context.Background()

	s, err := f.engine.Lookup(ctx, stay.Query{Reference: "RES-1"})
	require.NoError(t, err)
	id := s.ID

	t.Run("check-in holds the room and posts room nights", func(t *testing.T) {
		f.advance(t, id, stay.StepInput{Step: stay.StepBeginVerification})

		res, err := f.engine.Advance(ctx, id, stay.StepInput{
			Step:     stay.StepVerifyManual,
			Actor:    "desk-1",
			Document: &identity.Document{Number: "C7654321", Type: identity.DocPassport},
		})
		require.NoError(t, err)
		require.NotNil(t, res.Guard, "unknown passport must not verify")
		assert.Equal(t, stay.StatusIdentityPending, res.NewState)

		f.advance(t, id, stay.StepInput{Step: stay.StepVerifyManual, Document: &identity.Document{Number: "B12345678", Type: identity.DocPassport}})
		f.advance(t, id, stay.StepInput{Step: stay.StepAssignRoom})
		assert.Equal(t, id, f.room(t, "204").HeldBy)

		f.advance(t, id, stay.StepInput{Step: stay.StepCheckIn})

		lines, err := f.engine.LedgerSnapshot(ctx, id)
		require.NoError(t, err)
		assert.Len(t, lines, 2)
		assert.Equal(t, "2400000", folio.Total(lines).String())
	})

	t.Run("check-out finds the same stay by room", func(t *testing.T) {
		found, err := f.engine.FindForCheckOut(ctx, stay.Query{RoomNumber: "204"})
		require.NoError(t, err)
		assert.Equal(t, id, found.ID)
	})

	t.Run("settle records the payment and check-out frees the room", func(t *testing.T) {
		_, err := f.engine.PostLine(ctx, id, folio.PostInput{
			Kind:        folio.KindService,
			Description: "Minibar",
			Source:      folio.SourceMinibar,
			UnitAmount:  decimal.NewFromInt(50000),
			Quantity:    2,
			Entry:       folio.Entry{Actor: "housekeeping-3"},
		})
		require.NoError(t, err)

		reviewed := f.advance(t, id, stay.StepInput{Step: stay.StepReviewFolio})
		require.NotNil(t, reviewed.Decision)
		assert.Equal(t, settlement.ActionCollect, reviewed.Decision.Action)
		assert.Equal(t, "700000", reviewed.Decision.NetAmount.String())

		settled := f.advance(t, id, stay.StepInput{Step: stay.StepSettle, Settle: &stay.SettleInput{
			Action: settlement.ActionCollect,
			Method: settlement.MethodCash,
		}})
		require.NotNil(t, settled.Decision)
		assert.NotEmpty(t, settled.Decision.ReceiptID)

		records, err := f.payments.ForStay(ctx, id)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, settled.Decision.ReceiptID, records[0].ID)
		assert.True(t, records[0].Amount.Equal(decimal.NewFromInt(700000)))

		f.advance(t, id, stay.StepInput{Step: stay.StepCheckOut})
		assert.Empty(t, f.room(t, "204").HeldBy)
	})

	t.Run("persisted stay is complete", func(t *testing.T) {
		final, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, stay.StatusCheckedOut, final.Status)
		assert.Len(t, final.History, 7)
		assert.Len(t, final.Checks, 2)
		require.NotNil(t, final.Decision)
		assert.True(t, final.Decision.Frozen)
		assert.True(t, final.Ledger.Sealed())
		assert.Len(t, final.Ledger.Lines(), 3)
	})

	t.Run("housekeeping is notified", func(t *testing.T) {
		select {
		case job := <-f.pool.Jobs():
			assert.Equal(t, notification.Job{StayID: id, Room: "204", At: arrival}, job)
		default:
			t.Fatal("no room vacated notification queued")
		}
	})

	t.Run("lookup after check-out resumes the finished stay", func(t *testing.T) {
		again, err := f.engine.Lookup(ctx, stay.Query{Reference: "RES-1"})
		require.NoError(t, err)
		assert.Equal(t, id, again.ID)
		assert.Equal(t, stay.StatusCheckedOut, again.Status)
	})
}

// TestCancelReleasesRoom checks that a cancelled stay gives its room back and a
// new lookup starts a fresh stay.
func TestCancelReleasesRoom(t *testing.T) {
	f := newFixture(t, "file:cancel?mode=memory&cache=shared")
	ctx := context.Background()

	s, err := f.engine.Lookup(ctx, stay.Query{RoomNumber: "204"})
	require.NoError(t, err)
	f.advance(t, s.ID, stay.StepInput{Step: stay.StepBeginVerification})
	f.advance(t, s.ID, stay.StepInput{Step: stay.StepVerifyManual, Document: &identity.Document{Number: "B12345678", Type: identity.DocPassport}})
	f.advance(t, s.ID, stay.StepInput{Step: stay.StepAssignRoom, RoomNumber: "205"})
	assert.Equal(t, s.ID, f.room(t, "205").HeldBy)

	f.advance(t, s.ID, stay.StepInput{Step: stay.StepCancel, Reason: "guest changed plans"})
	assert.Empty(t, f.room(t, "205").HeldBy)

	fresh, err := f.engine.Lookup(ctx, stay.Query{Reference: "RES-1"})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, fresh.ID)
	assert.Equal(t, stay.StatusLookedUp, fresh.Status)

	select {
	case job := <-f.pool.Jobs():
		t.Fatalf("cancel must not notify housekeeping, got %+v", job)
	default:
	}
}
