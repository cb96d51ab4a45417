// Package audit appends immutable timeline entries to a case.
package audit

import (
	"time"

	"github.com/ehs-platform/services/noncompliance/internal/model"
)

// Recorder appends timeline entries. It is the sole mechanism by which any
// component records case history; entries are never removed or edited.
type Recorder struct {
	now func() time.Time
}

// NewRecorder creates a recorder using the given clock source. A nil clock
// falls back to time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Append adds an entry to the case timeline and returns it. The sequence
// number continues from the last entry, so the (timestamp, seq) pair is a
// total order per case even when the wall clock stalls or skews backwards.
func (r *Recorder) Append(c *model.Case, action, actor, detail string) model.TimelineEntry {
	entry := model.TimelineEntry{
		Seq:       len(c.Timeline) + 1,
		Action:    action,
		Actor:     actor,
		Detail:    detail,
		Timestamp: r.now().UTC(),
	}
	c.Timeline = append(c.Timeline, entry)
	return entry
}
