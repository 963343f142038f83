// Package attempts counts blocked access attempts per domain per calendar day.
// Counts reset lazily: a record from an earlier day reads as zero and is
// restarted on the next write.
package attempts

import (
	"context"
	"time"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/storage"
)

const dayLayout = "2006-01-02"

// Count is the per-day attempt tally returned to callers.
// LastAttempt is nil when there were no attempts today.
type Count struct {
	Count       int        `json:"count"`
	LastAttempt *time.Time `json:"lastAttempt"`
}

// Counter owns the accessAttempts key.
type Counter struct {
	state *storage.State
	loc   *time.Location
}

// NewCounter creates a counter that rolls over at local midnight.
func NewCounter(state *storage.State) *Counter {
	return NewCounterInLocation(state, time.Local)
}

// NewCounterInLocation creates a counter with a custom day boundary (for testing).
func NewCounterInLocation(state *storage.State, loc *time.Location) *Counter {
	return &Counter{state: state, loc: loc}
}

// Day returns the calendar-day key of t.
func (c *Counter) Day(t time.Time) string {
	return t.In(c.loc).Format(dayLayout)
}

// RecordAttempt increments today's count for d.
func (c *Counter) RecordAttempt(ctx context.Context, d string, now time.Time) (Count, error) {
	today := c.Day(now)
	var out domain.AttemptRecord

	err := c.state.UpdateAttempts(ctx, func(all map[string]domain.AttemptRecord) error {
		rec, ok := all[d]
		if !ok || rec.Date != today {
			rec = domain.AttemptRecord{Date: today}
		}
		rec.Count++
		rec.LastAttempt = now
		all[d] = rec
		out = rec
		return nil
	})
	if err != nil {
		return Count{}, err
	}
	return toCount(out), nil
}

// GetAttempts returns today's count for d without writing.
func (c *Counter) GetAttempts(ctx context.Context, d string, now time.Time) (Count, error) {
	all, err := c.state.Attempts(ctx)
	if err != nil {
		return Count{}, err
	}
	rec, ok := all[d]
	if !ok || rec.Date != c.Day(now) {
		return Count{}, nil
	}
	return toCount(rec), nil
}

func toCount(rec domain.AttemptRecord) Count {
	c := Count{Count: rec.Count}
	if !rec.LastAttempt.IsZero() {
		t := rec.LastAttempt
		c.LastAttempt = &t
	}
	return c
}
