package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/db"
	"frontdesk-backend/internal/logging"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/payment"
	"frontdesk-backend/internal/reservation"
	"frontdesk-backend/internal/settlement"
	"frontdesk-backend/internal/stay"
	"frontdesk-backend/internal/store"
	"frontdesk-backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	h        *testutil.Harness
	store    store.Store
	cache    *reservation.Cached
	payments *payment.Recorder
	router   *gin.Engine
}

func newTestServer(t *testing.T, opts testutil.Options) *testServer {
	t.Helper()
	h := testutil.NewHarness(t, opts)

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
	s := store.NewGormStore(gormDB)

	ts := &testServer{
		h:        h,
		store:    s,
		cache:    reservation.NewCached(s, time.Minute),
		payments: payment.NewRecorder(gormDB, "desk-01", logging.Discard()),
	}
	handler := NewHandler(h.Engine, s, &webpush.Options{VAPIDPublicKey: "test-public-key"}, logging.Discard()).
		WithReservationCache(ts.cache).
		WithPayments(ts.payments)
	ts.router = NewRouter(handler, RouterOptions{})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Operator-ID", "desk-1")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ts *testServer) lookup(t *testing.T) stayView {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/stays/lookup", gin.H{"reference": "RES-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[stayView](t, w)
}

func (ts *testServer) step(t *testing.T, id string, body gin.H) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, http.MethodPost, "/api/stays/"+id+"/steps", body)
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", apperr.Validation("X", "bad"), http.StatusBadRequest},
		{"not found", apperr.NotFound("X", "missing"), http.StatusNotFound},
		{"guard", apperr.Guard("X", "blocked"), http.StatusUnprocessableEntity},
		{"conflict", apperr.Conflict("X", "taken"), http.StatusConflict},
		{"unavailable", apperr.New(apperr.KindUnavailable, "X", "down"), http.StatusServiceUnavailable},
		{"invariant", apperr.Invariant("X", "broken"), http.StatusInternalServerError},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, statusFor(tc.err))
		})
	}
}

func TestMaskDocument(t *testing.T) {
	assert.Equal(t, "*****5678", maskDocument("B12345678"))
	assert.Equal(t, "1234", maskDocument("1234"))
	assert.Equal(t, "", maskDocument(""))
}

func TestLookupStay(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})

	testCases := []struct {
		name     string
		body     gin.H
		expected int
	}{
		{"by reference", gin.H{"reference": "RES-1"}, http.StatusOK},
		{"by room", gin.H{"room_number": "204"}, http.StatusOK},
		{"unknown reservation", gin.H{"reference": "RES-404"}, http.StatusNotFound},
		{"empty query", gin.H{}, http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/stays/lookup", tc.body)
			assert.Equal(t, tc.expected, w.Code, w.Body.String())
		})
	}

	first := ts.lookup(t)
	again := ts.lookup(t)
	assert.Equal(t, first.ID, again.ID, "lookup resumes the same stay")
	assert.Equal(t, "LOOKED_UP", first.Status)
	assert.Equal(t, testutil.GuestName, first.Guest.Name)
}

func TestLookupStay_RequiresOperator(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/stays/lookup", strings.NewReader(`{"reference":"RES-1"}`))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "OperatorRequired")
}

func TestAdvanceStay_FullLifecycle(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	s := ts.lookup(t)

	steps := []struct {
		body     gin.H
		expected string
	}{
		{gin.H{"step": "begin_verification"}, "IDENTITY_PENDING"},
		{gin.H{"step": "verify_manual", "document": gin.H{"number": testutil.KnownPassport, "type": "PASSPORT"}}, "IDENTITY_VERIFIED"},
		{gin.H{"step": "assign_room"}, "ROOM_ASSIGNED"},
		{gin.H{"step": "check_in"}, "IN_HOUSE"},
		{gin.H{"step": "review_folio"}, "FOLIO_REVIEWED"},
		{gin.H{"step": "settle", "settle": gin.H{"action": "COLLECT", "method": "card"}}, "SETTLED"},
		{gin.H{"step": "check_out"}, "CHECKED_OUT"},
	}
	for _, st := range steps {
		w := ts.step(t, s.ID, st.body)
		require.Equal(t, http.StatusOK, w.Code, "%v: %s", st.body["step"], w.Body.String())
		res := decode[resultView](t, w)
		assert.Equal(t, st.expected, res.NewState)
		assert.Nil(t, res.Guard)
	}

	w := ts.do(t, http.MethodGet, "/api/stays/"+s.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Transitions []transitionView `json:"transitions"`
	}](t, w)
	require.Len(t, history.Transitions, len(steps))
	assert.Equal(t, "CHECKED_OUT", history.Transitions[len(steps)-1].To)
	assert.Equal(t, "desk-1", history.Transitions[0].Actor)

	w = ts.do(t, http.MethodGet, "/api/stays/"+s.ID+"/settlement", nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[decisionView](t, w)
	assert.True(t, d.Frozen)
	assert.Equal(t, "COLLECT", d.Action)
	assert.Equal(t, "rcpt-1", d.ReceiptID)

	assert.Empty(t, ts.h.Inventory.HeldBy("204"), "room is released on check-out")
}

func TestAdvanceStay_Errors(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	s := ts.lookup(t)

	testCases := []struct {
		name     string
		body     gin.H
		expected int
		code     string
	}{
		{"missing step", gin.H{}, http.StatusBadRequest, "InvalidRequest"},
		{"unknown step", gin.H{"step": "teleport"}, http.StatusBadRequest, stay.CodeUnknownStep},
		{"out of order", gin.H{"step": "check_in"}, http.StatusUnprocessableEntity, stay.CodeInvalidTransition},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.step(t, s.ID, tc.body)
			assert.Equal(t, tc.expected, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}

	t.Run("unknown stay", func(t *testing.T) {
		w := ts.step(t, "missing", gin.H{"step": "begin_verification"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdvanceStay_GuardFailure(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	s := ts.lookup(t)
	require.Equal(t, http.StatusOK, ts.step(t, s.ID, gin.H{"step": "begin_verification"}).Code)

	w := ts.step(t, s.ID, gin.H{"step": "verify_manual", "document": gin.H{"number": testutil.UnknownPassport, "type": "PASSPORT"}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	res := decode[resultView](t, w)
	assert.Equal(t, "IDENTITY_PENDING", res.NewState)
	require.NotNil(t, res.Guard)
	assert.Equal(t, stay.CodeIdentityCheckFailed, res.Guard.Code)
	require.NotNil(t, res.Check)
	assert.Equal(t, "FAIL", res.Check.Result)
	assert.Equal(t, "****4321", res.Check.DocumentNumber)
}

func TestFolioEndpoints(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	s := ts.h.CheckIn(t, "RES-1")
	base := "/api/stays/" + s.ID + "/folio"

	w := ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	f := decode[folioView](t, w)
	require.Len(t, f.Lines, 2, "one room line per night")
	assert.Equal(t, "2400000", f.Total.String())

	w = ts.do(t, http.MethodPost, base+"/lines", gin.H{
		"kind": "SERVICE", "description": "Minibar", "source": "MINIBAR", "unit_amount": "50000", "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	minibar := decode[lineView](t, w)
	assert.Equal(t, "100000", minibar.Amount.String())
	assert.Equal(t, "desk-1", minibar.Actor)

	w = ts.do(t, http.MethodPost, base+"/lines/"+minibar.ID+"/adjustments", gin.H{"delta": "-50000", "reason": "one bottle returned"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	adj := decode[lineView](t, w)
	assert.Equal(t, minibar.ID, adj.TargetID)

	w = ts.do(t, http.MethodGet, base, nil)
	f = decode[folioView](t, w)
	assert.Equal(t, "2450000", f.Total.String())
	for _, l := range f.Lines {
		if l.ID == minibar.ID {
			assert.Equal(t, "ADJUSTED", l.Status)
		}
	}

	testCases := []struct {
		name     string
		method   string
		path     string
		body     gin.H
		expected int
	}{
		{"void needs a reason", http.MethodPost, base + "/lines/" + minibar.ID + "/void", gin.H{}, http.StatusBadRequest},
		{"void unknown line", http.MethodPost, base + "/lines/nope/void", gin.H{"reason": "typo"}, http.StatusNotFound},
		{"post without quantity", http.MethodPost, base + "/lines", gin.H{"kind": "SERVICE", "description": "x", "source": "MINIBAR", "unit_amount": "1"}, http.StatusBadRequest},
		{"unknown stay", http.MethodGet, "/api/stays/missing/folio", nil, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.expected, w.Code, w.Body.String())
		})
	}
}

func TestFindForCheckOut(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})

	w := ts.do(t, http.MethodPost, "/api/stays/checkout-lookup", gin.H{"room_number": "204"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	s := ts.h.CheckIn(t, "RES-1")
	w = ts.do(t, http.MethodPost, "/api/stays/checkout-lookup", gin.H{"room_number": "204"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v := decode[stayView](t, w)
	assert.Equal(t, s.ID, v.ID)
	assert.Equal(t, "IN_HOUSE", v.Status)
	assert.True(t, v.IdentityVerified)
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	require.NoError(t, ts.store.UpsertRooms(testutil.Context(t), []model.Room{
		{Number: "204", Class: "DELUXE", Floor: 2},
		{Number: "801", Class: "SUITE", Floor: 8},
	}))
	endpoint := "https://push.example.com/send/abc%3D%3D"

	w := ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": endpoint, "p256dh": "key", "auth": "secret", "subscribed_rooms": []string{"204", "999"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"subscribed_rooms":["204"]}`, w.Body.String())

	w = ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": endpoint, "p256dh": "key2", "auth": "secret", "subscribed_rooms": []string{"801"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.JSONEq(t, `{"subscribed_rooms":["801"]}`, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	w := ts.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"test-public-key"}`, w.Body.String())

	bare := NewRouter(NewHandler(ts.h.Engine, nil, nil, logging.Discard()), RouterOptions{})
	rec := httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vapid_public_key", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdvanceStay_SettlementNotPersisted(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	s := ts.h.CheckIn(t, "RES-1")
	require.Equal(t, http.StatusOK, ts.step(t, s.ID, gin.H{"step": "review_folio"}).Code)

	ts.h.Repo.SaveErr = fmt.Errorf("db down")
	w := ts.step(t, s.ID, gin.H{"step": "settle", "settle": gin.H{"action": "COLLECT", "method": "card"}})
	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())

	body := decode[struct {
		Code   string     `json:"code"`
		Result resultView `json:"result"`
	}](t, w)
	assert.Equal(t, "SettlementNotPersisted", body.Code)
	assert.Equal(t, "FOLIO_REVIEWED", body.Result.NewState)
	require.NotNil(t, body.Result.Decision)
	assert.Equal(t, "rcpt-1", body.Result.Decision.ReceiptID)
}

func TestRooms(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})

	w := ts.do(t, http.MethodPut, "/api/rooms", []gin.H{
		{"number": "801", "class": "SUITE", "floor": 8},
		{"number": "204", "class": "DELUXE", "floor": 2, "out_of_order": true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"imported":2}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rooms := decode[[]roomView](t, w)
	require.Len(t, rooms, 2)
	assert.Equal(t, "204", rooms[0].Number)
	assert.True(t, rooms[0].OutOfOrder)
	assert.Equal(t, "SUITE", rooms[1].Class)

	w = ts.do(t, http.MethodPut, "/api/rooms", []gin.H{{"number": "901"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutReservations(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	arrival := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	booking := gin.H{
		"reference":    "WEB-1",
		"guest_name":   "Ana",
		"room_class":   "DELUXE",
		"room_number":  "204",
		"check_in":     arrival,
		"check_out":    arrival.Add(48 * time.Hour),
		"nightly_rate": "1000000",
		"deposit":      "500000",
		"channel":      "WEB_BOOKING",
	}

	w := ts.do(t, http.MethodPut, "/api/reservations", []gin.H{booking})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	r, err := ts.cache.FindReservation(context.Background(), stay.Query{Reference: "WEB-1"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000000).Equal(r.NightlyRate))

	// The channel re-sends the booking with a new rate; the cached copy must go.
	booking["nightly_rate"] = "900000"
	w = ts.do(t, http.MethodPut, "/api/reservations", []gin.H{booking})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	r, err = ts.cache.FindReservation(context.Background(), stay.Query{Reference: "WEB-1"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(900000).Equal(r.NightlyRate))

	testCases := []struct {
		name  string
		patch gin.H
	}{
		{"missing guest", gin.H{"guest_name": ""}},
		{"check out before check in", gin.H{"check_out": arrival.Add(-time.Hour)}},
		{"negative deposit", gin.H{"deposit": "-1"}},
		{"unknown channel", gin.H{"channel": "FAX"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bad := gin.H{}
			for k, v := range booking {
				bad[k] = v
			}
			for k, v := range tc.patch {
				bad[k] = v
			}
			w := ts.do(t, http.MethodPut, "/api/reservations", []gin.H{bad})
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestGetPayments(t *testing.T) {
	ts := newTestServer(t, testutil.Options{})
	ctx := context.Background()

	receipt, err := ts.payments.Collect(ctx, decimal.NewFromInt(700000), settlement.MethodCard, "stay-1")
	require.NoError(t, err)
	refund, err := ts.payments.RequestRefund(ctx, decimal.NewFromInt(50000), settlement.MethodCash, "deposit overpaid", "stay-1")
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/api/stays/stay-1/payments", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recs := decode[[]paymentView](t, w)
	require.Len(t, recs, 2)
	byKind := map[string]paymentView{}
	for _, r := range recs {
		byKind[r.Kind] = r
	}
	assert.Equal(t, receipt, byKind[payment.KindCollect].ID)
	assert.Equal(t, "card", byKind[payment.KindCollect].Method)
	assert.Equal(t, refund, byKind[payment.KindRefund].ID)
	assert.Equal(t, "deposit overpaid", byKind[payment.KindRefund].Reason)
	assert.Equal(t, "desk-01", byKind[payment.KindRefund].Terminal)

	w = ts.do(t, http.MethodGet, "/api/stays/stay-2/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
