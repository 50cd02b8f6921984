package session

import (
	"context"
	"math"
	"time"
)

// MaxWindowMinutes is the widest edit window a time.Duration can hold.
const MaxWindowMinutes = math.MaxInt64 / int64(time.Minute)

// WindowSource returns the current edit window in minutes.
type WindowSource interface {
	EditWindowMinutes(ctx context.Context) (int, error)
}

// CanEdit reports whether the declaring teacher may still change or delete s at now.
// The window is inclusive: a session is editable at exactly CreatedAt + windowMinutes.
func CanEdit(s Session, now time.Time, windowMinutes int) bool {
	if s.Status != StatusPendingReview || windowMinutes < 1 {
		return false
	}
	if int64(windowMinutes) >= MaxWindowMinutes {
		return true
	}
	return now.Sub(s.CreatedAt) <= time.Duration(windowMinutes)*time.Minute
}
