package session

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanEdit(t *testing.T) {
	created := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	s := Session{Status: StatusPendingReview, CreatedAt: created}

	for _, minutes := range []int{1, 5, 60, 24 * 60} {
		window := time.Duration(minutes) * time.Minute
		t.Run(fmt.Sprintf("%d minutes", minutes), func(t *testing.T) {
			assert.True(t, CanEdit(s, created, minutes), "at creation")
			assert.True(t, CanEdit(s, created.Add(window-time.Second), minutes), "1s before the end")
			assert.True(t, CanEdit(s, created.Add(window), minutes), "at the end")
			assert.False(t, CanEdit(s, created.Add(window+time.Second), minutes), "1s after the end")
		})
	}
}

func TestCanEdit_windowChangedAfterCreation(t *testing.T) {
	created := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	s := Session{Status: StatusPendingReview, CreatedAt: created}
	now := created.Add(90 * time.Minute)

	assert.False(t, CanEdit(s, now, 60))
	// relaxing the window extends the editability of existing sessions
	assert.True(t, CanEdit(s, now, 120))
	// and tightening it shortens it
	assert.False(t, CanEdit(s, created.Add(11*time.Minute), 10))
}

func TestCanEdit_onlyPendingReview(t *testing.T) {
	created := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	for _, st := range Statuses {
		s := Session{Status: st, CreatedAt: created}
		assert.Equal(t, st == StatusPendingReview, CanEdit(s, created, 60), st)
	}
}

func TestCanEdit_invalidWindow(t *testing.T) {
	created := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	s := Session{Status: StatusPendingReview, CreatedAt: created}
	assert.False(t, CanEdit(s, created, 0))
	assert.False(t, CanEdit(s, created, -5))
}

func TestCanEdit_hugeWindow(t *testing.T) {
	created := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	s := Session{Status: StatusPendingReview, CreatedAt: created}

	for _, minutes := range []int{200_000_000, int(MaxWindowMinutes), math.MaxInt32} {
		t.Run(fmt.Sprintf("%d minutes", minutes), func(t *testing.T) {
			assert.True(t, CanEdit(s, created.Add(time.Minute), minutes))
			assert.True(t, CanEdit(s, created.AddDate(50, 0, 0), minutes))
		})
	}
	assert.True(t, CanEdit(s, created.Add(time.Minute), int(MaxWindowMinutes-1)))
}
