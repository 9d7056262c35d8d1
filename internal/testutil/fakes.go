// Package testutil provides in-memory collaborators for engine and API tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/room"
	"frontdesk-backend/internal/settlement"
	"frontdesk-backend/internal/stay"
)

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// MemoryRepo is a stay.Repository that stores deep copies.
type MemoryRepo struct {
	mu      sync.Mutex
	stays   map[string]*stay.Stay
	SaveErr error
	Saves   int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{stays: make(map[string]*stay.Stay)}
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*stay.Stay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stays[id]
	if !ok {
		return nil, apperr.NotFound(stay.CodeStayNotFound, "stay %s not found", id)
	}
	return s.Clone(), nil
}

func (r *MemoryRepo) FindByReservation(_ context.Context, ref string) (*stay.Stay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *stay.Stay
	for _, s := range r.stays {
		if s.ReservationRef == ref && s.Status != stay.StatusCancelled {
			if found == nil || s.CreatedAt.After(found.CreatedAt) {
				found = s
			}
		}
	}
	if found == nil {
		return nil, apperr.NotFound(stay.CodeStayNotFound, "no stay for reservation %s", ref)
	}
	return found.Clone(), nil
}

func (r *MemoryRepo) FindActiveByRoom(_ context.Context, number string) (*stay.Stay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stays {
		if s.AssignedRoom == number && s.Status.AtLeast(stay.StatusInHouse) && !s.Status.IsTerminal() {
			return s.Clone(), nil
		}
	}
	return nil, apperr.NotFound(stay.CodeStayNotFound, "no stay in room %s", number)
}

func (r *MemoryRepo) Save(_ context.Context, s *stay.Stay) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	current, ok := r.stays[s.ID]
	switch {
	case !ok && s.Version != 0:
		return apperr.NotFound(stay.CodeStayNotFound, "stay %s not found", s.ID)
	case ok && current.Version != s.Version:
		return apperr.Conflict(stay.CodeVersionConflict, "stay %s was modified concurrently", s.ID)
	}
	s.Version++
	r.stays[s.ID] = s.Clone()
	r.Saves++
	return nil
}

// Put stores s as is, bypassing version checks.
func (r *MemoryRepo) Put(s *stay.Stay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stays[s.ID] = s.Clone()
}

// Reservations is a fixed reservation book.
type Reservations struct {
	mu    sync.Mutex
	byRef map[string]stay.Reservation
	Calls int
}

func NewReservations(rs ...stay.Reservation) *Reservations {
	m := make(map[string]stay.Reservation, len(rs))
	for _, r := range rs {
		m[r.Reference] = r
	}
	return &Reservations{byRef: m}
}

func (s *Reservations) FindReservation(_ context.Context, q stay.Query) (stay.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if q.Reference != "" {
		if r, ok := s.byRef[q.Reference]; ok {
			return r, nil
		}
	} else {
		for _, r := range s.byRef {
			if r.RoomNumber == q.RoomNumber {
				return r, nil
			}
		}
	}
	return stay.Reservation{}, apperr.NotFound(stay.CodeReservationNotFound, "no reservation for %+v", q)
}

// Inventory is an in-memory room inventory. Occupied rooms are neither free nor
// held by any stay.
type Inventory struct {
	mu       sync.Mutex
	rooms    map[string]*invRoom
	Delay    time.Duration
	Err      error
	Reserves map[string]int
	Releases map[string]int
}

type invRoom struct {
	class    string
	occupied bool
	heldBy   string
}

func NewInventory() *Inventory {
	return &Inventory{
		rooms:    make(map[string]*invRoom),
		Reserves: make(map[string]int),
		Releases: make(map[string]int),
	}
}

// AddRoom registers a free room.
func (inv *Inventory) AddRoom(number, class string) *Inventory {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.rooms[number] = &invRoom{class: class}
	return inv
}

// Occupy marks a room taken outside the engine.
func (inv *Inventory) Occupy(number string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.rooms[number].occupied = true
}

// HeldBy reports the stay holding a room.
func (inv *Inventory) HeldBy(number string) string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if r, ok := inv.rooms[number]; ok {
		return r.heldBy
	}
	return ""
}

func (inv *Inventory) wait(ctx context.Context) error {
	inv.mu.Lock()
	delay, err := inv.Delay, inv.Err
	inv.mu.Unlock()
	if err != nil {
		return err
	}
	if delay == 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (inv *Inventory) Lookup(ctx context.Context, number string) (room.Room, error) {
	if err := inv.wait(ctx); err != nil {
		return room.Room{}, err
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	r, ok := inv.rooms[number]
	if !ok {
		return room.Room{}, apperr.NotFound(stay.CodeRoomNotFound, "room %s does not exist", number)
	}
	return room.Room{Number: number, Class: r.class, Free: !r.occupied && r.heldBy == "", HeldBy: r.heldBy}, nil
}

func (inv *Inventory) Reserve(ctx context.Context, number, stayID string) error {
	if err := inv.wait(ctx); err != nil {
		return err
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	r, ok := inv.rooms[number]
	if !ok {
		return apperr.NotFound(stay.CodeRoomNotFound, "room %s does not exist", number)
	}
	if r.heldBy == stayID {
		return nil
	}
	if r.occupied || r.heldBy != "" {
		return apperr.Conflict(stay.CodeRoomConflict, "room %s is held by another stay", number)
	}
	r.heldBy = stayID
	inv.Reserves[stayID]++
	return nil
}

func (inv *Inventory) Release(_ context.Context, number, stayID string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if r, ok := inv.rooms[number]; ok && r.heldBy == stayID {
		r.heldBy = ""
		inv.Releases[stayID]++
	}
	return nil
}

// Oracle answers document lookups from a name table and face matches with a
// fixed score.
type Oracle struct {
	mu        sync.Mutex
	Names     map[string]string
	FaceName  string
	FaceScore float64
	Err       error
	Delay     time.Duration
	Calls     int
}

func (o *Oracle) wait(ctx context.Context) error {
	o.mu.Lock()
	o.Calls++
	delay, err := o.Delay, o.Err
	o.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (o *Oracle) MatchDocument(ctx context.Context, number string, _ identity.DocumentType) (identity.Match, error) {
	if err := o.wait(ctx); err != nil {
		return identity.Match{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	name, ok := o.Names[number]
	if !ok {
		return identity.Match{}, identity.ErrNotFound
	}
	return identity.Match{Name: name}, nil
}

func (o *Oracle) MatchFace(ctx context.Context, _ []byte) (identity.Match, error) {
	if err := o.wait(ctx); err != nil {
		return identity.Match{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.FaceName == "" {
		return identity.Match{}, identity.ErrNotFound
	}
	return identity.Match{Name: o.FaceName, Score: o.FaceScore}, nil
}

// PaymentCall is one recorded processor invocation.
type PaymentCall struct {
	Kind      string
	Amount    decimal.Decimal
	Method    settlement.Method
	Reason    string
	Reference string
}

// Payments hands out sequential receipt and refund ids.
type Payments struct {
	mu    sync.Mutex
	Err   error
	Calls []PaymentCall
}

func (p *Payments) Collect(_ context.Context, amount decimal.Decimal, method settlement.Method, reference string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.Calls = append(p.Calls, PaymentCall{Kind: "collect", Amount: amount, Method: method, Reference: reference})
	return fmt.Sprintf("rcpt-%d", len(p.Calls)), nil
}

func (p *Payments) RequestRefund(_ context.Context, amount decimal.Decimal, method settlement.Method, reason, reference string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.Calls = append(p.Calls, PaymentCall{Kind: "refund", Amount: amount, Method: method, Reason: reason, Reference: reference})
	return fmt.Sprintf("rfnd-%d", len(p.Calls)), nil
}

// Listener records every event it receives.
type Listener struct {
	mu     sync.Mutex
	events []stay.Event
}

func (l *Listener) StayTransitioned(_ context.Context, ev stay.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *Listener) Events() []stay.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]stay.Event(nil), l.events...)
}
