// Package reservation caches booking lookups in front of the reservation store.
package reservation

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"frontdesk-backend/internal/stay"
)

// Cached is a stay.ReservationSource that keeps successful lookups for a TTL.
// Misses and errors are never cached.
type Cached struct {
	next  stay.ReservationSource
	store *cache.Cache
}

func NewCached(next stay.ReservationSource, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		store: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) FindReservation(ctx context.Context, q stay.Query) (stay.Reservation, error) {
	key := cacheKey(q)
	if v, found := c.store.Get(key); found {
		return v.(stay.Reservation), nil
	}

	r, err := c.next.FindReservation(ctx, q)
	if err != nil {
		return stay.Reservation{}, err
	}
	c.store.SetDefault(key, r)
	if q.Reference == "" {
		c.store.SetDefault(cacheKey(stay.Query{Reference: r.Reference}), r)
	}
	return r, nil
}

// Invalidate drops a reservation after it was re-imported.
func (c *Cached) Invalidate(r stay.Reservation) {
	c.store.Delete(cacheKey(stay.Query{Reference: r.Reference}))
	c.store.Delete(cacheKey(stay.Query{RoomNumber: r.RoomNumber}))
}

func cacheKey(q stay.Query) string {
	if q.Reference != "" {
		return "ref:" + q.Reference
	}
	return "room:" + q.RoomNumber
}
