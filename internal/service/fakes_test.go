package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL store.  Transactions are
// serialized by txMu (standing in for row locks) and roll back by restoring
// a snapshot.  now is the database clock.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	st  memState
	now time.Time

	failPayments bool
	failRelease  bool
}

type memState struct {
	seq        uint64
	bookings   map[uint64]model.Booking
	showtimes  map[uint64]model.Showtime
	layouts    map[uint64]model.SeatLayout
	instances  map[uint64]model.SeatInstance
	tickets    map[uint64]model.Ticket
	history    []model.BookingHistory
	payments   map[uint64]model.Payment
	balances   map[uint64]int64
	ledger     map[string]int64
	promotions map[uint64]model.Promotion
	usages     map[[2]uint64]bool
	outbox     []queue.Event
}

func newMemDB(now time.Time) *memDB {
	return &memDB{
		now: now,
		st: memState{
			seq:        1000,
			bookings:   map[uint64]model.Booking{},
			showtimes:  map[uint64]model.Showtime{},
			layouts:    map[uint64]model.SeatLayout{},
			instances:  map[uint64]model.SeatInstance{},
			tickets:    map[uint64]model.Ticket{},
			payments:   map[uint64]model.Payment{},
			balances:   map[uint64]int64{},
			ledger:     map[string]int64{},
			promotions: map[uint64]model.Promotion{},
			usages:     map[[2]uint64]bool{},
		},
	}
}

func (s memState) clone() memState {
	return memState{
		seq:        s.seq,
		bookings:   maps.Clone(s.bookings),
		showtimes:  maps.Clone(s.showtimes),
		layouts:    maps.Clone(s.layouts),
		instances:  maps.Clone(s.instances),
		tickets:    maps.Clone(s.tickets),
		history:    slices.Clone(s.history),
		payments:   maps.Clone(s.payments),
		balances:   maps.Clone(s.balances),
		ledger:     maps.Clone(s.ledger),
		promotions: maps.Clone(s.promotions),
		usages:     maps.Clone(s.usages),
		outbox:     slices.Clone(s.outbox),
	}
}

func (m *memDB) nextID() uint64 {
	m.st.seq++
	return m.st.seq
}

func (m *memDB) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clone()
}

func (m *memDB) restore(s memState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = s
}

func (m *memDB) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *memDB) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(nil); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memDB) SavepointTx(ctx context.Context, tx *sql.Tx, name string, fn func() error) error {
	snap := m.snapshot()
	if err := fn(); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// seed helpers

func (m *memDB) addShowtime(st model.Showtime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.showtimes[st.ID] = st
}

func (m *memDB) addLayout(l model.SeatLayout) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.layouts[l.ID] = l
}

func (m *memDB) setBalance(userID uint64, points int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.balances[userID] = points
}

func (m *memDB) addPromotion(p model.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.promotions[p.ID] = p
}

func (m *memDB) setBookingStatus(id uint64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.st.bookings[id]
	b.Status = status
	m.st.bookings[id] = b
}

// inspection helpers

func (m *memDB) state() memState { return m.snapshot() }

func (s memState) ticketsOf(bookingID uint64) []model.Ticket {
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	return out
}

func (s memState) historyOf(bookingID uint64) []model.BookingHistory {
	var out []model.BookingHistory
	for _, h := range s.history {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out
}

func (s memState) eventsOf(eventType string) []queue.Event {
	var out []queue.Event
	for _, e := range s.outbox {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// labelled returns the booking's tickets with seat labels, ordered by
// position.  Callers hold m.mu.
func (m *memDB) labelled(bookingID uint64) []model.Ticket {
	out := m.st.ticketsOf(bookingID)
	for i := range out {
		out[i].SeatLabel = m.st.layouts[out[i].SeatLayoutID].Label()
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := m.st.layouts[out[i].SeatLayoutID], m.st.layouts[out[j].SeatLayoutID]
		if a.RowLabel != b.RowLabel {
			return a.RowLabel < b.RowLabel
		}
		return a.Column < b.Column
	})
	return out
}

// bookings

type memBookings struct{ *memDB }

func (r memBookings) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking, grace time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.st.bookings {
		if other.CreatorID == b.CreatorID && other.Status == model.BookingPending {
			return repository.ErrPendingExists
		}
	}
	b.ID = r.nextID()
	b.BookedAt = r.now
	b.PaymentDeadline = r.now.Add(grace)
	b.CreatedAt, b.UpdatedAt = r.now, r.now
	r.st.bookings[b.ID] = *b
	return nil
}

func (r memBookings) get(id uint64) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r memBookings) Get(ctx context.Context, id uint64) (*model.Booking, error) { return r.get(id) }

func (r memBookings) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	return r.get(id)
}

func (r memBookings) FindPendingByCreator(ctx context.Context, creatorID uint64) (*model.PendingBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.Booking
	for _, b := range r.st.bookings {
		if b.CreatorID == creatorID && b.Status == model.BookingPending {
			if found == nil || b.ID > found.ID {
				b := b
				found = &b
			}
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	st := r.st.showtimes[found.ShowtimeID]
	p := &model.PendingBooking{
		Booking:          *found,
		RemainingSeconds: int64(found.PaymentDeadline.Sub(r.now) / time.Second),
		MovieTitle:       st.MovieTitle,
		RoomName:         st.RoomName,
		StartsAt:         st.StartsAt,
	}
	for _, t := range r.labelled(found.ID) {
		p.Seats = append(p.Seats, t.SeatLabel)
	}
	return p, nil
}

func (r memBookings) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.st.bookings[id]
	if !ok || b.Status != from {
		return repository.ErrConflict
	}
	b.Status = to
	r.st.bookings[id] = b
	return nil
}

func (r memBookings) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.st.bookings[id]
	if !ok || b.IsTerminal() {
		return repository.ErrConflict
	}
	b.Status = model.BookingCancelled
	b.PromotionID = nil
	r.st.bookings[id] = b
	return nil
}

func (r memBookings) ListExpiredPending(ctx context.Context, limit int) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint64
	for _, b := range r.st.bookings {
		if b.Status == model.BookingPending && !b.PaymentDeadline.After(r.now) {
			ids = append(ids, b.ID)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// showtimes

type memShowtimes struct{ *memDB }

func (r memShowtimes) get(id uint64) (*model.Showtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.st.showtimes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (r memShowtimes) Get(ctx context.Context, id uint64) (*model.Showtime, error) { return r.get(id) }

func (r memShowtimes) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error) {
	return r.get(id)
}

func (r memShowtimes) AdjustCapacityTx(ctx context.Context, tx *sql.Tx, id uint64, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.st.showtimes[id]
	next := st.AvailableSeats + delta
	if !ok || next < 0 || next > st.Capacity {
		return repository.ErrConflict
	}
	st.AvailableSeats = next
	r.st.showtimes[id] = st
	return nil
}

func (r memShowtimes) SeatMap(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.st.showtimes[showtimeID]
	var out []model.SeatStatus
	for _, l := range r.st.layouts {
		if l.RoomID != st.RoomID {
			continue
		}
		occupied := false
		for _, t := range r.st.tickets {
			if t.ShowtimeID == showtimeID && t.SeatLayoutID == l.ID && t.Status != model.TicketCancelled && t.Status != model.TicketExpired {
				occupied = true
			}
		}
		out = append(out, model.SeatStatus{SeatLayout: l, Label: l.Label(), Occupied: occupied})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// seats

type memSeats struct{ *memDB }

func (r memSeats) ListLayoutsByRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64) ([]model.SeatLayout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SeatLayout
	for _, l := range r.st.layouts {
		if l.RoomID == roomID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memSeats) InsertInstancesTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, layouts []model.SeatLayout) ([]model.SeatInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SeatInstance, 0, len(layouts))
	for _, l := range layouts {
		si := model.SeatInstance{ID: r.nextID(), SeatLayoutID: l.ID, ShowtimeID: showtimeID, IsActive: l.IsActive, CreatedAt: r.now}
		r.st.instances[si.ID] = si
		out = append(out, si)
	}
	return out, nil
}

func (r memSeats) DeleteInstancesTx(ctx context.Context, tx *sql.Tx, ids []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.st.instances, id)
	}
	return nil
}

// tickets

type memTickets struct{ *memDB }

func (r memTickets) OccupiedLayoutsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, layoutIDs []uint64) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var taken []uint64
	for _, id := range layoutIDs {
		for _, t := range r.st.tickets {
			if t.ShowtimeID == showtimeID && t.SeatLayoutID == id && t.Status != model.TicketCancelled && t.Status != model.TicketExpired {
				taken = append(taken, id)
				break
			}
		}
	}
	return taken, nil
}

func (r memTickets) InsertTx(ctx context.Context, tx *sql.Tx, tickets []*model.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tickets {
		for _, other := range r.st.tickets {
			if other.ShowtimeID == t.ShowtimeID && other.SeatLayoutID == t.SeatLayoutID &&
				other.Status != model.TicketCancelled && other.Status != model.TicketExpired {
				return repository.ErrSeatTaken
			}
		}
		t.ID = r.nextID()
		t.CreatedAt = r.now
		stored := *t
		stored.SeatLabel = ""
		r.st.tickets[t.ID] = stored
	}
	return nil
}

func (r memTickets) ListByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.Ticket, error) {
	return r.ListByBooking(ctx, bookingID)
}

func (r memTickets) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.labelled(bookingID), nil
}

func (r memTickets) SetStatusByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.st.tickets {
		if t.BookingID == bookingID {
			t.Status = status
			r.st.tickets[id] = t
		}
	}
	return nil
}

func (r memTickets) DeleteByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.st.tickets {
		if t.BookingID == bookingID {
			delete(r.st.tickets, id)
			n++
		}
	}
	return n, nil
}

// history, payments, outbox

type memHistory struct{ *memDB }

func (r memHistory) AppendTx(ctx context.Context, tx *sql.Tx, h *model.BookingHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.ID = r.nextID()
	h.CreatedAt = r.now
	r.st.history = append(r.st.history, *h)
	return nil
}

func (r memHistory) ListByBooking(ctx context.Context, bookingID uint64) ([]model.BookingHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.historyOf(bookingID), nil
}

type memPayments struct{ *memDB }

func (r memPayments) InsertTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPayments {
		return errors.New("payments table unavailable")
	}
	if _, ok := r.st.payments[p.BookingID]; ok {
		return repository.ErrDuplicate
	}
	p.ID = r.nextID()
	p.PaidAt = r.now
	r.st.payments[p.BookingID] = *p
	return nil
}

type memOutbox struct{ *memDB }

func (r memOutbox) EnqueueTx(ctx context.Context, tx *sql.Tx, evt queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.outbox = append(r.st.outbox, evt)
	return nil
}

// loyalty and promotions

type memLoyalty struct{ *memDB }

func (r memLoyalty) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.balances[userID], nil
}

func (r memLoyalty) DebitTx(ctx context.Context, tx *sql.Tx, userID, bookingID uint64, points int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st.balances[userID] < points {
		return repository.ErrInsufficientBalance
	}
	r.st.balances[userID] -= points
	r.st.ledger[fmt.Sprintf("%d/%s", bookingID, model.LoyaltyRedeem)] = -points
	return nil
}

type memPromotions struct{ *memDB }

func (r memPromotions) Get(ctx context.Context, id uint64) (*model.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.st.promotions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memPromotions) ApplyTx(ctx context.Context, tx *sql.Tx, promotionID, bookingID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.st.promotions[promotionID]
	if !ok || !p.ApplicableAt(r.now) {
		return repository.ErrPromotionNotApplicable
	}
	p.UsageCount++
	r.st.promotions[promotionID] = p
	r.st.usages[[2]uint64{promotionID, bookingID}] = true
	return nil
}

func (r memPromotions) ReleaseTx(ctx context.Context, tx *sql.Tx, promotionID, bookingID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRelease {
		return errors.New("promotion registry unavailable")
	}
	key := [2]uint64{promotionID, bookingID}
	if !r.st.usages[key] {
		return repository.ErrNotFound
	}
	r.st.usages[key] = false
	p := r.st.promotions[promotionID]
	if p.UsageCount > 0 {
		p.UsageCount--
	}
	r.st.promotions[promotionID] = p
	return nil
}
