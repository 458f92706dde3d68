package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-booking/internal/monitoring"
)

// ScanLock is a lease that keeps concurrent replicas from scanning at the
// same time.
type ScanLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ScanReport summarises one reminder scan.
type ScanReport struct {
	Candidates int
	Sent       int
	Failed     int
	Skipped    bool // another replica held the lease
}

// ReminderScanner periodically sends the day-before reminder for every
// ticket whose event enters the reminder window.  Each ticket gets at most
// one reminder; a failed send is retried on later scans while the event is
// still inside the window.
type ReminderScanner struct {
	tickets  TicketStore
	sender   Sender
	lock     ScanLock
	clock    Clock
	log      Logger
	interval time.Duration
	from, to time.Duration
}

// ReminderOption customises a ReminderScanner.
type ReminderOption func(*ReminderScanner)

// WithScanInterval sets the time between scans.  Default 10 minutes.
func WithScanInterval(d time.Duration) ReminderOption {
	return func(s *ReminderScanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithReminderWindow sets the inclusive time-to-start window.  Default
// [23h, 24h].
func WithReminderWindow(from, to time.Duration) ReminderOption {
	return func(s *ReminderScanner) { s.from, s.to = from, to }
}

// WithScanLock makes scans conditional on holding lock.
func WithScanLock(lock ScanLock) ReminderOption {
	return func(s *ReminderScanner) { s.lock = lock }
}

func NewReminderScanner(tickets TicketStore, sender Sender, clock Clock, log Logger, opts ...ReminderOption) *ReminderScanner {
	s := &ReminderScanner{
		tickets:  tickets,
		sender:   sender,
		clock:    clock,
		log:      log,
		interval: 10 * time.Minute,
		from:     23 * time.Hour,
		to:       24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans once right away and then on every tick until ctx is done.
func (s *ReminderScanner) Run(ctx context.Context) {
	s.log.Infof("reminder: scanner started (every %s, window %s..%s)", s.interval, s.from, s.to)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Errorf("reminder: scan failed: %v", err)
		}
		select {
		case <-ctx.Done():
			s.log.Infof("reminder: scanner stopped")
			return
		case <-ticker.C:
		}
	}
}

// ScanOnce performs a single pass.  Errors of individual tickets are logged
// and counted; only failing to list candidates is returned.
func (s *ReminderScanner) ScanOnce(ctx context.Context) (ScanReport, error) {
	var rep ScanReport
	if s.lock != nil {
		ok, err := s.lock.TryAcquire(ctx)
		if err != nil {
			// without the lease we would risk duplicate pushes
			return rep, fmt.Errorf("acquire scan lock: %w", err)
		}
		if !ok {
			s.log.Debugf("reminder: another replica is scanning")
			rep.Skipped = true
			return rep, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warnf("reminder: release scan lock: %v", err)
			}
		}()
	}

	now := s.clock.Now()
	candidates, err := s.tickets.ListUnsentReminders(ctx, now.Add(s.from), now.Add(s.to))
	if err != nil {
		return rep, fmt.Errorf("list unsent reminders: %w", err)
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		remaining := c.StartsAt.Sub(now)
		if remaining < s.from || remaining > s.to || c.DeviceToken == "" {
			continue
		}
		// the booking path may have reminded this ticket since it was listed
		ok, err := s.tickets.ClaimReminder(ctx, c.Ticket.ID)
		if err != nil {
			s.log.Errorf("reminder: claim ticket %d: %v", c.Ticket.ID, err)
			continue
		}
		if !ok {
			continue
		}
		rep.Candidates++

		title := "Event reminder"
		body := fmt.Sprintf("%q starts in %s. Seat %s", c.EventTitle, humanizeDuration(remaining), c.Ticket.SeatLabel)
		if err := s.sender.Send(ctx, c.DeviceToken, title, body); err != nil {
			rep.Failed++
			monitoring.TrackReminder(monitoring.ReminderScan, false)
			s.log.Warnf("reminder: send for ticket %d failed: %v", c.Ticket.ID, err)
			if err := s.tickets.ReleaseReminder(context.WithoutCancel(ctx), c.Ticket.ID); err != nil {
				s.log.Errorf("reminder: release ticket %d: %v", c.Ticket.ID, err)
			}
			continue
		}
		monitoring.TrackReminder(monitoring.ReminderScan, true)
		rep.Sent++
	}
	if rep.Candidates > 0 {
		s.log.Infof("reminder: scan done, %d due, %d sent, %d failed", rep.Candidates, rep.Sent, rep.Failed)
	}
	return rep, nil
}
