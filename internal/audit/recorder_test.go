package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ehs-platform/services/noncompliance/internal/model"
)

func TestAppendAssignsSequentialSeq(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(func() time.Time { return now })

	c := &model.Case{ID: "case-1"}

	first := r.Append(c, "Submitted", "alice", "")
	second := r.Append(c, "Validated", "bob", "")

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.Len(t, c.Timeline, 2)
	assert.Equal(t, "Submitted", c.Timeline[0].Action)
	assert.Equal(t, "alice", c.Timeline[0].Actor)
	assert.Equal(t, now, c.Timeline[0].Timestamp)
}

func TestAppendSeqBreaksTimestampTies(t *testing.T) {
	// A fixed clock produces identical timestamps; seq keeps the entries
	// strictly ordered regardless.
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(func() time.Time { return now })

	c := &model.Case{ID: "case-1"}
	for _, action := range []string{"Submitted", "Validated", "RCA Submitted"} {
		r.Append(c, action, "alice", "")
	}

	for i, entry := range c.Timeline {
		assert.Equal(t, i+1, entry.Seq)
		assert.Equal(t, now, entry.Timestamp)
	}
}

func TestAppendRecordsDetail(t *testing.T) {
	r := NewRecorder(nil)

	c := &model.Case{ID: "case-1"}
	entry := r.Append(c, "Rejected", "carol", "missing photos")

	assert.Equal(t, "missing photos", entry.Detail)
	assert.False(t, entry.Timestamp.IsZero())
}
