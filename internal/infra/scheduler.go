package infra

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// onceAt is a cron.Schedule that fires a single time.
type onceAt struct {
	at time.Time
}

// Next returns the instant if it is still ahead of t, else the zero time,
// which tells cron never to run the entry again.
func (s onceAt) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// CronScheduler implements domain.Scheduler on robfig/cron.
// Every entry is one-shot; re-scheduling a name replaces its entry.
type CronScheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	seq     uint64
	entries map[string]timerEntry
	onFire  func(name string)
}

// timerEntry is the live cron entry for a name. seq tells a fired job whether
// it still owns the name.
type timerEntry struct {
	id  cron.EntryID
	seq uint64
}

// NewCronScheduler creates a stopped scheduler.
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	return newCronScheduler(logger, time.Now)
}

func newCronScheduler(logger *zap.Logger, now func() time.Time) *CronScheduler {
	return &CronScheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{logger: logger}))),
		logger:  logger,
		now:     now,
		entries: make(map[string]timerEntry),
	}
}

// OnFire sets the callback invoked with the timer name. Must be called before Start.
func (s *CronScheduler) OnFire(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = fn
}

// ScheduleAt arranges for the callback to run at or after at. Instants in the
// past fire about one second from now.
func (s *CronScheduler) ScheduleAt(name string, at time.Time) error {
	if name == "" {
		return fmt.Errorf("timer name is required")
	}
	if min := s.now().Add(time.Second); at.Before(min) {
		at = min
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[name]; ok {
		s.cron.Remove(e.id)
		delete(s.entries, name)
	}

	s.seq++
	seq := s.seq
	id := s.cron.Schedule(onceAt{at: at}, cron.FuncJob(func() {
		s.fire(name, seq)
	}))
	s.entries[name] = timerEntry{id: id, seq: seq}

	s.logger.Debug("timer scheduled",
		zap.String("name", name),
		zap.Time("at", at))
	return nil
}

// fire runs the callback if the job with seq still owns name. A job replaced
// by a later ScheduleAt does nothing.
func (s *CronScheduler) fire(name string, seq uint64) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok || e.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.entries, name)
	fn := s.onFire
	s.mu.Unlock()

	// cron does not drop entries whose schedule is exhausted.
	s.cron.Remove(e.id)

	if fn != nil {
		fn(name)
	}
}

// Pending returns the names of timers that have not fired yet.
func (s *CronScheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Start runs the scheduler in its own goroutine.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running callbacks.
func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// Ensure CronScheduler implements domain.Scheduler.
var _ domain.Scheduler = (*CronScheduler)(nil)
