package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs the tracker once per day at a fixed UTC time.
type Scheduler struct {
	log     *slog.Logger
	tracker *Tracker
	hour    int
	minute  int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewScheduler(log *slog.Logger, t *Tracker, hourUTC, minuteUTC int) *Scheduler {
	if hourUTC < 0 || hourUTC > 23 {
		hourUTC = 3
	}
	if minuteUTC < 0 || minuteUTC > 59 {
		minuteUTC = 0
	}
	return &Scheduler{
		log:     log,
		tracker: t,
		hour:    hourUTC,
		minute:  minuteUTC,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the daily loop in its own goroutine.
func (s *Scheduler) Start() {
	go s.run()
	s.log.Info("scheduler_started", "hour_utc", s.hour, "minute_utc", s.minute)
}

// Stop halts the loop; a capture in flight finishes its current account.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	for {
		wait := time.Until(s.nextRun(time.Now().UTC()))
		timer := time.NewTimer(wait)

		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-s.stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		summaries, err := s.tracker.RunOnce(ctx)
		cancel()
		if err != nil {
			s.log.Error("scheduled_capture_failed", "error", err, "captured", len(summaries))
		} else {
			s.log.Info("scheduled_capture_complete", "accounts", len(summaries))
		}
	}
}

// nextRun returns the next hh:mm UTC strictly after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
