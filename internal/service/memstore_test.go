package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/ticket-booking/internal/model"
	"github.com/iliyamo/ticket-booking/internal/queue"
	"github.com/iliyamo/ticket-booking/internal/repository"
)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type memTxKey struct{}

// memDB is an in-memory store with the same uniqueness rules as the MySQL
// schema.  Transactions are serialised and roll back by restoring a
// snapshot.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	events  map[uint64]model.Event
	seats   []model.Seat
	tickets []model.Ticket
	users   map[uint64]model.User
	nextID  uint64

	staleExists    bool  // existence check always says "free"; the unique key decides
	abortCreates   int   // ticket inserts that fail with ErrTxAborted
	failSeatInsert error // returned by CreateBulk
	failClaim      error // returned by ClaimReminder
	claimCalls     []uint64
	releaseCalls   [][]uint64
	listCalls      int
}

func newMemDB() *memDB {
	return &memDB{events: map[uint64]model.Event{}, users: map[uint64]model.User{}, nextID: 100}
}

type memSnapshot struct {
	events  map[uint64]model.Event
	seats   []model.Seat
	tickets []model.Ticket
	nextID  uint64
}

func (db *memDB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snap := memSnapshot{
		events:  make(map[uint64]model.Event, len(db.events)),
		seats:   append([]model.Seat(nil), db.seats...),
		tickets: append([]model.Ticket(nil), db.tickets...),
		nextID:  db.nextID,
	}
	for k, v := range db.events {
		snap.events[k] = v
	}
	db.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		db.mu.Lock()
		db.events, db.seats, db.tickets, db.nextID = snap.events, snap.seats, snap.tickets, snap.nextID
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *memDB) id() uint64 {
	db.nextID++
	return db.nextID
}

// seed helpers

func (db *memDB) addEvent(title string, startsAt *time.Time, rows, cols int) model.Event {
	db.mu.Lock()
	defer db.mu.Unlock()
	e := model.Event{ID: db.id(), Title: title, StartsAt: startsAt}
	db.events[e.ID] = e
	seats, err := GenerateSeats(e.ID, rows, cols)
	if err != nil {
		panic(err)
	}
	for _, s := range seats {
		s.ID = db.id()
		db.seats = append(db.seats, s)
	}
	return e
}

func (db *memDB) addUser(name, deviceToken string) model.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := model.User{ID: db.id(), Name: name, Email: strings.ToLower(name) + "@example.com", Role: model.RoleUser}
	if deviceToken != "" {
		tok := deviceToken
		u.DeviceToken = &tok
	}
	db.users[u.ID] = u
	return u
}

func (db *memDB) seatID(eventID uint64, label string) uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, s := range db.seats {
		if s.EventID == eventID && s.Label == label {
			return s.ID
		}
	}
	panic("no seat " + label)
}

// addTicket inserts a ticket directly, bypassing the uniqueness check.
func (db *memDB) addTicket(eventID, seatID uint64, userID *uint64, reminderSent bool) model.Ticket {
	db.mu.Lock()
	defer db.mu.Unlock()
	sid := seatID
	t := model.Ticket{ID: db.id(), EventID: eventID, SeatID: &sid, UserID: userID, ReminderSent: reminderSent}
	for _, s := range db.seats {
		if s.ID == seatID {
			t.SeatLabel = s.Label
		}
	}
	db.tickets = append(db.tickets, t)
	return t
}

func (db *memDB) ticketsOf(eventID uint64) []model.Ticket {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.Ticket
	for _, t := range db.tickets {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	return out
}

func (db *memDB) ticket(id uint64) model.Ticket {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, t := range db.tickets {
		if t.ID == id {
			return t
		}
	}
	panic(fmt.Sprintf("no ticket %d", id))
}

// memEvents implements EventStore.
type memEvents struct{ db *memDB }

func (m memEvents) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	e, ok := m.db.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return &e, nil
}

func (m memEvents) Create(_ context.Context, e *model.Event) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	e.ID = m.db.id()
	m.db.events[e.ID] = *e
	return nil
}

func (m memEvents) List(_ context.Context, city string) ([]model.Event, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.Event
	for _, e := range m.db.events {
		if city == "" || strings.EqualFold(e.City, city) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memEvents) Update(_ context.Context, e *model.Event) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.events[e.ID]; !ok {
		return repository.ErrEventNotFound
	}
	m.db.events[e.ID] = *e
	return nil
}

func (m memEvents) Delete(_ context.Context, id uint64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.events[id]; !ok {
		return repository.ErrEventNotFound
	}
	delete(m.db.events, id)
	return nil
}

// memSeats implements SeatStore.
type memSeats struct{ db *memDB }

func (m memSeats) CreateBulk(_ context.Context, seats []model.Seat) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.failSeatInsert != nil {
		return m.db.failSeatInsert
	}
	for _, s := range seats {
		for _, existing := range m.db.seats {
			if existing.EventID == s.EventID && existing.Label == s.Label {
				return fmt.Errorf("duplicate seat %s", s.Label)
			}
		}
		s.ID = m.db.id()
		m.db.seats = append(m.db.seats, s)
	}
	return nil
}

func (m memSeats) ListByEvent(_ context.Context, eventID uint64) ([]model.Seat, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.Seat
	for _, s := range m.db.seats {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RowNum != out[j].RowNum {
			return out[i].RowNum < out[j].RowNum
		}
		return out[i].ColNum < out[j].ColNum
	})
	return out, nil
}

func (m memSeats) FindByEventAndLabel(_ context.Context, eventID uint64, label string) (*model.Seat, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.seats {
		if s.EventID == eventID && s.Label == label {
			s := s
			return &s, nil
		}
	}
	return nil, repository.ErrSeatNotFound
}

// memTickets implements TicketStore.
type memTickets struct{ db *memDB }

func (m memTickets) ExistsForEventAndSeat(_ context.Context, eventID, seatID uint64) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.staleExists {
		return false, nil
	}
	for _, t := range m.db.tickets {
		if t.EventID == eventID && t.SeatID != nil && *t.SeatID == seatID {
			return true, nil
		}
	}
	return false, nil
}

func (m memTickets) Create(_ context.Context, t *model.Ticket) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.abortCreates > 0 {
		m.db.abortCreates--
		return fmt.Errorf("%w: deadlock", repository.ErrTxAborted)
	}
	for _, existing := range m.db.tickets {
		if existing.EventID == t.EventID && existing.SeatID != nil && t.SeatID != nil && *existing.SeatID == *t.SeatID {
			return fmt.Errorf("%w: seat %s", repository.ErrDuplicateTicket, t.SeatLabel)
		}
	}
	t.ID = m.db.id()
	m.db.tickets = append(m.db.tickets, *t)
	return nil
}

func (m memTickets) ListByEvent(_ context.Context, eventID uint64) ([]model.Ticket, error) {
	return m.db.ticketsOf(eventID), nil
}

func (m memTickets) ListUnsentReminders(_ context.Context, from, to time.Time) ([]model.ReminderCandidate, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.listCalls++
	var out []model.ReminderCandidate
	for _, t := range m.db.tickets {
		if t.ReminderSent || t.UserID == nil {
			continue
		}
		e, ok := m.db.events[t.EventID]
		if !ok || e.StartsAt == nil || e.StartsAt.Before(from) || e.StartsAt.After(to) {
			continue
		}
		u, ok := m.db.users[*t.UserID]
		if !ok || !u.HasDeviceToken() {
			continue
		}
		out = append(out, model.ReminderCandidate{Ticket: t, EventTitle: e.Title, StartsAt: *e.StartsAt, DeviceToken: *u.DeviceToken})
	}
	return out, nil
}

func (m memTickets) ClaimReminder(_ context.Context, id uint64) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.claimCalls = append(m.db.claimCalls, id)
	if m.db.failClaim != nil {
		return false, m.db.failClaim
	}
	for i := range m.db.tickets {
		if m.db.tickets[i].ID == id && !m.db.tickets[i].ReminderSent {
			m.db.tickets[i].ReminderSent = true
			return true, nil
		}
	}
	return false, nil
}

func (m memTickets) ReleaseReminder(_ context.Context, ids ...uint64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.releaseCalls = append(m.db.releaseCalls, ids)
	for _, id := range ids {
		for i := range m.db.tickets {
			if m.db.tickets[i].ID == id {
				m.db.tickets[i].ReminderSent = false
			}
		}
	}
	return nil
}

// memUsers implements UserLookup.
type memUsers struct{ db *memDB }

func (m memUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

type sentPush struct{ token, title, body string }

// fakeSender records pushes; tokens listed in failFor make Send fail.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentPush
	failFor map[string]bool
}

func (s *fakeSender) Send(_ context.Context, token, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[token] {
		return fmt.Errorf("push gateway rejected %s", token)
	}
	s.sent = append(s.sent, sentPush{token, title, body})
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.TicketsBookedEvent
	err    error
}

func (p *fakePublisher) PublishTicketsBooked(_ context.Context, ev queue.TicketsBookedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrUint(v uint64) *uint64 { return &v }
