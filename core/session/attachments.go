package session

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

// AllVerified reports whether every attachment is verified. It is true for zero attachments.
func AllVerified(atts []Attachment) bool {
	for _, at := range atts {
		if !at.Verified {
			return false
		}
	}
	return true
}

// KindOf classifies a mime type.
func KindOf(mimeType string) MimeKind {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch {
	case mt == "application/pdf":
		return KindPDF
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case mt == "application/msword",
		mt == "application/rtf",
		mt == "text/plain",
		mt == "application/vnd.oasis.opendocument.text",
		strings.HasPrefix(mt, "application/vnd.openxmlformats-officedocument."),
		strings.HasPrefix(mt, "application/vnd.ms-"):
		return KindDocument
	}
	return KindOther
}

// Attachments lists the evidence of a session. Teachers only see their own sessions.
func (svc *Service) Attachments(ctx context.Context, actor staff.Actor, sessionID string) ([]Attachment, error) {
	if _, err := svc.Get(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	atts, err := svc.repo.ListAttachments(ctx, sessionID)
	return atts, storageErr("listing attachments", err)
}

// Attach binds a new, unverified evidence file to a session of the acting teacher.
func (svc *Service) Attach(ctx context.Context, actor staff.Actor, sessionID string, na NewAttachment) (Attachment, error) {
	if err := ctx.Err(); err != nil {
		return Attachment{}, err
	}
	na.Filename = core.CleanString(na.Filename)
	na.MimeType = core.CleanString(na.MimeType, true /* lower */)
	if err := svc.validate.Struct(na); err != nil {
		return Attachment{}, core.TranslateValidationErrors(err, svc.translator)
	}

	unlock, err := svc.lock(sessionID)
	if err != nil {
		return Attachment{}, err
	}
	defer unlock()

	s, err := svc.load(ctx, sessionID)
	if err != nil {
		return Attachment{}, err
	}
	if !isOwner(actor, s) {
		return Attachment{}, ErrPermissionDenied
	}
	switch s.Status {
	case StatusPendingReview, StatusPendingValidation:
	case StatusPaid:
		return Attachment{}, ErrAttachmentArchived
	default:
		return Attachment{}, ErrPermissionDenied
	}

	now := svc.clock()
	at := Attachment{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Filename:  na.Filename,
		MimeType:  na.MimeType,
		Kind:      KindOf(na.MimeType),
		Size:      na.Size,
		CreatedAt: now,
		CreatedBy: actor.ID,
	}
	s.UpdatedAt, s.UpdatedBy = now, actor.ID
	entry := svc.entry(s, HistoryAttached, actor, now)
	entry.Comment = at.Filename

	if _, err := svc.commit(ctx, "attaching file", Change{Session: s, Attach: &at, History: entry}); err != nil {
		return Attachment{}, err
	}
	return at, nil
}

// SetAttachmentVerified marks an attachment as verified or not.
// Only the front office may do it, and only while the session is PENDING_REVIEW.
func (svc *Service) SetAttachmentVerified(ctx context.Context, actor staff.Actor, attachmentID string, verified bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if actor.Role != staff.RoleFrontOffice {
		return ErrPermissionDenied
	}
	at, err := svc.repo.GetAttachment(ctx, attachmentID)
	if err != nil {
		return storageErr("loading attachment", err)
	}

	unlock, err := svc.lock(at.SessionID)
	if err != nil {
		return err
	}
	defer unlock()

	// re-read under the lock, the attachment may have been detached meanwhile
	if at, err = svc.repo.GetAttachment(ctx, attachmentID); err != nil {
		return storageErr("loading attachment", err)
	}
	s, err := svc.load(ctx, at.SessionID)
	if err != nil {
		return err
	}
	if s.Status != StatusPendingReview {
		return ErrPermissionDenied
	}

	now := svc.clock()
	action := HistoryUnverified
	if verified {
		action = HistoryVerified
	}
	s.UpdatedAt, s.UpdatedBy = now, actor.ID
	entry := svc.entry(s, action, actor, now)
	entry.Comment = at.Filename

	_, err = svc.commit(ctx, "verifying attachment", Change{
		Session: s,
		Verify:  &Verification{AttachmentID: at.ID, Verified: verified},
		History: entry,
	})
	return err
}

// DeleteAttachment detaches an evidence file. Archived attachments can never be deleted;
// otherwise only the declaring teacher may do it, inside the edit window.
func (svc *Service) DeleteAttachment(ctx context.Context, actor staff.Actor, attachmentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	at, err := svc.repo.GetAttachment(ctx, attachmentID)
	if err != nil {
		return storageErr("loading attachment", err)
	}

	unlock, err := svc.lock(at.SessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if at, err = svc.repo.GetAttachment(ctx, attachmentID); err != nil {
		return storageErr("loading attachment", err)
	}
	if at.Archived {
		return ErrAttachmentArchived
	}
	s, err := svc.load(ctx, at.SessionID)
	if err != nil {
		return err
	}
	if err := svc.checkEditable(ctx, actor, s); err != nil {
		return err
	}

	now := svc.clock()
	s.UpdatedAt, s.UpdatedBy = now, actor.ID
	entry := svc.entry(s, HistoryDetached, actor, now)
	entry.Comment = at.Filename

	_, err = svc.commit(ctx, "detaching file", Change{Session: s, Detach: at.ID, History: entry})
	return err
}
