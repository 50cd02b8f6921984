// Package setting holds system-wide settings changed at runtime by administrators.
package setting

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

const KeyEditWindowMinutes = "edit_window_minutes"

var (
	ErrNotFound         = errors.New("setting not found")
	ErrPermissionDenied = errors.New("only administrators may change settings")

	errInvalidWindow = errors.New("edit window must be at least 1 minute")
	errWindowTooWide = errors.New("edit window is too wide")
)

// maxWindowMinutes keeps the window representable as a time.Duration.
const maxWindowMinutes = math.MaxInt64 / int64(time.Minute)

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

type (
	Repository interface {
		GetSetting(ctx context.Context, key string) (Setting, error)
		PutSetting(ctx context.Context, s Setting) error
	}

	Option func(*Service)

	Service struct {
		repo          Repository
		defaultWindow int
		now           func() time.Time
	}
)

// WithClock replaces the clock used to stamp setting changes.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func NewService(repo Repository, conf *core.Config, opts ...Option) *Service {
	window := conf.EditWindowMinutes
	if window < 1 {
		window = 60
	}
	svc := &Service{repo: repo, defaultWindow: window, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// EditWindowMinutes returns the current edit window.
// The stored value is read on every call so that a change applies to the very next check.
func (svc *Service) EditWindowMinutes(ctx context.Context) (int, error) {
	s, err := svc.repo.GetSetting(ctx, KeyEditWindowMinutes)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return svc.defaultWindow, nil
		}
		return 0, errors.Wrap(err, "reading edit window")
	}
	minutes, err := strconv.Atoi(s.Value)
	if err != nil || minutes < 1 || int64(minutes) > maxWindowMinutes {
		return svc.defaultWindow, nil
	}
	return minutes, nil
}

// SetEditWindowMinutes changes the edit window. Only administrators may call it.
func (svc *Service) SetEditWindowMinutes(ctx context.Context, actor staff.Actor, minutes int) error {
	if actor.Role != staff.RoleAdmin {
		return ErrPermissionDenied
	}
	if minutes < 1 {
		return core.NewValidationError(errInvalidWindow, core.FieldError{Field: "minutes", Error: errInvalidWindow.Error()})
	}
	if int64(minutes) > maxWindowMinutes {
		return core.NewValidationError(errWindowTooWide, core.FieldError{Field: "minutes", Error: errWindowTooWide.Error()})
	}
	return svc.repo.PutSetting(ctx, Setting{
		Key:       KeyEditWindowMinutes,
		Value:     strconv.Itoa(minutes),
		UpdatedAt: svc.now().UTC(),
		UpdatedBy: actor.ID,
	})
}
