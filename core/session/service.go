package session

import (
	"context"
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

type (
	// Change is everything one committed mutation writes. A Repository applies it atomically.
	Change struct {
		Session Session // the new state; Version is the version it was read at
		Attach  *Attachment
		Detach  string // attachment id
		Verify  *Verification
		Archive bool // archive every attachment of the session
		History HistoryEntry
	}

	Verification struct {
		AttachmentID string
		Verified     bool
	}

	Repository interface {
		// CreateSession stores s at version 1 along with its first history entry.
		CreateSession(ctx context.Context, s Session, entry HistoryEntry) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		// QuerySessions applies AND operation on available QueryFilter fields.
		QuerySessions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Session, error)
		// Commit applies chg atomically and returns the session at its new version.
		// It fails with ErrConflict when the stored version is not chg.Session.Version.
		Commit(ctx context.Context, chg Change) (Session, error)
		// DeleteSession removes the session, its attachments and its history.
		// It fails with ErrConflict when the stored version is not version.
		DeleteSession(ctx context.Context, id string, version int) error

		GetAttachment(ctx context.Context, id string) (Attachment, error)
		ListAttachments(ctx context.Context, sessionID string) ([]Attachment, error)
		ListHistory(ctx context.Context, sessionID string) ([]HistoryEntry, error)
	}

	// Notifier informs a teacher about the outcome of a workflow step. Delivery is best-effort.
	Notifier interface {
		Notify(ctx context.Context, n Notice) error
	}

	// Notice is sent to the declaring teacher when their session is rejected or returned for information.
	Notice struct {
		TeacherID string
		SessionID string
		Message   string
	}

	Option func(*Service)

	Service struct {
		repo       Repository
		window     WindowSource
		notifier   Notifier
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
		locks      *keyedLock
		now        func() time.Time
	}
)

// WithClock replaces the clock used for timestamps and edit window checks.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func NewService(
	repo Repository,
	window WindowSource,
	notifier Notifier,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
	opts ...Option,
) *Service {
	svc := &Service{
		repo:       repo,
		window:     window,
		notifier:   notifier,
		validate:   validate,
		translator: translator,
		logger:     logger,
		locks:      newKeyedLock(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (svc *Service) clock() time.Time {
	return svc.now().UTC()
}

// lock takes the single-writer lock of a session; a concurrent writer gets ErrConflict.
func (svc *Service) lock(id string) (func(), error) {
	unlock, ok := svc.locks.tryLock(id)
	if !ok {
		return nil, ErrConflict
	}
	return unlock, nil
}

// commit persists chg. It is not cancellable once started.
func (svc *Service) commit(ctx context.Context, op string, chg Change) (Session, error) {
	s, err := svc.repo.Commit(context.WithoutCancel(ctx), chg)
	if err != nil {
		err = storageErr(op, err)
		if IsStorageError(err) {
			svc.logger.Error(fmt.Sprintf("%s: %v", op, err), err, map[string]interface{}{
				"session_id": chg.Session.ID,
				"actor_id":   chg.History.ActorID,
				"action":     string(chg.History.Action),
			})
		}
		return Session{}, err
	}
	return s, nil
}

func (svc *Service) load(ctx context.Context, id string) (Session, error) {
	s, err := svc.repo.GetSession(ctx, id)
	return s, storageErr("loading session", err)
}

func (svc *Service) editWindow(ctx context.Context) (int, error) {
	minutes, err := svc.window.EditWindowMinutes(ctx)
	if err != nil {
		return 0, &StorageError{Op: "reading edit window", Err: err}
	}
	return minutes, nil
}

func (svc *Service) validateNewSession(ns *NewSession) (Payload, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return nil, core.TranslateValidationErrors(err, svc.translator)
	}
	payload, err := ns.Payload()
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "type", Error: err.Error()})
	}
	if err := svc.validate.Struct(payload); err != nil {
		return nil, core.TranslateValidationErrors(err, svc.translator)
	}
	return payload, nil
}

func isOwner(actor staff.Actor, s Session) bool {
	return actor.Role == staff.RoleTeacher && actor.ID == s.TeacherID
}

// Create declares a new session on behalf of the acting teacher.
func (svc *Service) Create(ctx context.Context, actor staff.Actor, ns NewSession) (Session, error) {
	if actor.Role != staff.RoleTeacher {
		return Session{}, ErrPermissionDenied
	}
	payload, err := svc.validateNewSession(&ns)
	if err != nil {
		return Session{}, err
	}

	now := svc.clock()
	s := Session{
		ID:        uuid.NewString(),
		Type:      ns.Type,
		Status:    StatusPendingReview,
		Date:      ns.Date,
		Slot:      ns.Slot,
		TeacherID: actor.ID,
		Payload:   payload,
		CreatedAt: now,
		CreatedBy: actor.ID,
		UpdatedAt: now,
		UpdatedBy: actor.ID,
		Version:   1,
	}
	entry := HistoryEntry{
		SessionID: s.ID,
		Seq:       1,
		Action:    HistoryCreated,
		To:        StatusPendingReview,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		At:        now,
	}
	s, err = svc.repo.CreateSession(ctx, s, entry)
	if err != nil {
		return Session{}, storageErr("creating session", err)
	}
	return s, nil
}

// Get returns a session. Teachers only see their own sessions.
func (svc *Service) Get(ctx context.Context, actor staff.Actor, id string) (Session, error) {
	s, err := svc.load(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if actor.Role == staff.RoleTeacher && !isOwner(actor, s) {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Query lists committed sessions matching filter. Teachers only see their own sessions.
func (svc *Service) Query(ctx context.Context, actor staff.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]Session, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	if actor.Role == staff.RoleTeacher {
		filter.TeacherID = actor.ID
	}
	ss, err := svc.repo.QuerySessions(ctx, filter, ordering)
	if err != nil {
		if core.IsValidationError(err) {
			return nil, err
		}
		return nil, storageErr("querying sessions", err)
	}
	return ss, nil
}

// History returns the committed history of a session, oldest first.
func (svc *Service) History(ctx context.Context, actor staff.Actor, id string) ([]HistoryEntry, error) {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := svc.repo.ListHistory(ctx, id)
	return entries, storageErr("listing history", err)
}

// Actions lists what actor may currently do on a session, edit window included.
func (svc *Service) Actions(ctx context.Context, actor staff.Actor, id string) ([]Action, error) {
	s, err := svc.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	minutes, err := svc.editWindow(ctx)
	if err != nil {
		return nil, err
	}
	editable := CanEdit(s, svc.clock(), minutes)

	all := Actions(s.Status, actor.Role)
	actions := make([]Action, 0, len(all))
	for _, a := range all {
		if (a == ActionEdit || a == ActionDelete) && !editable {
			continue
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// Edit applies patch to a session of the acting teacher while it is inside the edit window.
func (svc *Service) Edit(ctx context.Context, actor staff.Actor, id string, patch SessionPatch) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	unlock, err := svc.lock(id)
	if err != nil {
		return Session{}, err
	}
	defer unlock()

	s, err := svc.load(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := svc.checkEditable(ctx, actor, s); err != nil {
		return Session{}, err
	}

	ns := patch.apply(s)
	payload, err := svc.validateNewSession(&ns)
	if err != nil {
		return Session{}, err
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	now := svc.clock()
	s.Type, s.Date, s.Slot, s.Payload = ns.Type, ns.Date, ns.Slot, payload
	s.UpdatedAt, s.UpdatedBy = now, actor.ID
	return svc.commit(ctx, "editing session", Change{
		Session: s,
		History: svc.entry(s, HistoryEdited, actor, now),
	})
}

// Delete withdraws a session of the acting teacher while it is inside the edit window.
// Its attachments and history go with it.
func (svc *Service) Delete(ctx context.Context, actor staff.Actor, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock, err := svc.lock(id)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := svc.load(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.checkEditable(ctx, actor, s); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return storageErr("deleting session", svc.repo.DeleteSession(context.WithoutCancel(ctx), id, s.Version))
}

func (svc *Service) checkEditable(ctx context.Context, actor staff.Actor, s Session) error {
	if !isOwner(actor, s) || s.Status != StatusPendingReview {
		return ErrPermissionDenied
	}
	minutes, err := svc.editWindow(ctx)
	if err != nil {
		return err
	}
	if !CanEdit(s, svc.clock(), minutes) {
		return ErrEditWindowExpired
	}
	return nil
}

func (svc *Service) entry(s Session, action HistoryAction, actor staff.Actor, at time.Time) HistoryEntry {
	return HistoryEntry{
		SessionID: s.ID,
		Seq:       s.Version + 1,
		Action:    action,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		At:        at,
	}
}

// Transition moves a session to requested on behalf of actor.
//
// A front office request carrying a comment and the current status returns the session
// for more information instead: the comment is appended to the feedback and the teacher
// is notified, the status is left unchanged.
func (svc *Service) Transition(ctx context.Context, actor staff.Actor, id string, requested Status, opts TransitionOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	unlock, err := svc.lock(id)
	if err != nil {
		return Session{}, err
	}
	s, notice, err := svc.transition(ctx, actor, id, requested, opts)
	unlock()
	if err != nil {
		return Session{}, err
	}

	svc.logger.Info(fmt.Sprintf("session %s: %s by %s (%s)", s.ID, s.Status, actor.ID, actor.Role))
	if notice != nil {
		svc.notify(ctx, *notice)
	}
	return s, nil
}

func (svc *Service) transition(ctx context.Context, actor staff.Actor, id string, requested Status, opts TransitionOptions) (Session, *Notice, error) {
	s, err := svc.load(ctx, id)
	if err != nil {
		return Session{}, nil, err
	}
	comment := core.CleanString(opts.Comment)
	now := svc.clock()

	if actor.Role == staff.RoleFrontOffice && comment != "" {
		if requested != s.Status {
			return Session{}, nil, core.NewValidationError(errCommentWithTransition, core.FieldError{
				Field: "comment", Error: errCommentWithTransition.Error(),
			})
		}
		return svc.returnForInfo(ctx, actor, s, comment, now)
	}

	if !permits(s.Status, actor.Role, requested) {
		return Session{}, nil, ErrPermissionDenied
	}

	from := s.Status
	chg := Change{}
	switch requested {
	case StatusPendingValidation:
		atts, err := svc.repo.ListAttachments(ctx, s.ID)
		if err != nil {
			return Session{}, nil, storageErr("listing attachments", err)
		}
		if !AllVerified(atts) {
			return Session{}, nil, ErrAttachmentsUnverified
		}
	case StatusValidated:
		if s.Type == TypeOther {
			if opts.Conversion == nil {
				return Session{}, nil, ErrMissingConversion
			}
			conv, err := Resolve(s, *opts.Conversion, actor.ID, now)
			if err != nil {
				return Session{}, nil, err
			}
			s.Conversion = &conv
		} else if opts.Conversion != nil {
			return Session{}, nil, errors.Wrap(ErrInvalidConversion, "only OTHER sessions can be converted")
		}
	case StatusPaid:
		chg.Archive = true
	}
	if requested != StatusValidated && opts.Conversion != nil {
		return Session{}, nil, errors.Wrap(ErrInvalidConversion, "a conversion is only recorded on validation")
	}
	if err := ctx.Err(); err != nil {
		return Session{}, nil, err
	}

	s.Status = requested
	s.Feedback = appendFeedback(s.Feedback, comment)
	s.UpdatedAt, s.UpdatedBy = now, actor.ID

	chg.Session = s
	chg.History = svc.entry(s, HistoryTransitioned, actor, now)
	chg.History.From, chg.History.To = from, requested
	chg.History.Comment = comment
	if requested == StatusValidated {
		chg.History.Conversion = s.Conversion.Clone()
	}

	s, err = svc.commit(ctx, "committing transition", chg)
	if err != nil {
		return Session{}, nil, err
	}

	var notice *Notice
	if requested == StatusRejected {
		msg := fmt.Sprintf("Your %s session of %s (%s) was rejected.", typeLabel(s.Type), s.Date, s.Slot)
		if comment != "" {
			msg += " Reason: " + comment
		}
		notice = &Notice{TeacherID: s.TeacherID, SessionID: s.ID, Message: msg}
	}
	return s, notice, nil
}

func (svc *Service) returnForInfo(ctx context.Context, actor staff.Actor, s Session, comment string, now time.Time) (Session, *Notice, error) {
	if !canReturn(s.Status, actor.Role) {
		return Session{}, nil, ErrPermissionDenied
	}
	if err := ctx.Err(); err != nil {
		return Session{}, nil, err
	}

	s.Feedback = appendFeedback(s.Feedback, comment)
	s.UpdatedAt, s.UpdatedBy = now, actor.ID
	entry := svc.entry(s, HistoryReturned, actor, now)
	entry.Comment = comment

	s, err := svc.commit(ctx, "returning session", Change{Session: s, History: entry})
	if err != nil {
		return Session{}, nil, err
	}
	return s, &Notice{
		TeacherID: s.TeacherID,
		SessionID: s.ID,
		Message: fmt.Sprintf(
			"Your %s session of %s (%s) was returned for more information: %s",
			typeLabel(s.Type), s.Date, s.Slot, comment,
		),
	}, nil
}

// notify is called after commit, outside the session lock. Failures are logged only.
func (svc *Service) notify(ctx context.Context, n Notice) {
	if svc.notifier == nil {
		return
	}
	if err := svc.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		svc.logger.Error(fmt.Sprintf("notifying teacher %s: %v", n.TeacherID, err), err)
	}
}

func typeLabel(t Type) string {
	switch t {
	case TypeSubstitution:
		return "substitution"
	case TypeHomeworkHelp:
		return "homework help"
	case TypeExtraHours:
		return "extra hours"
	case TypeOther:
		return "other"
	}
	return string(t)
}
