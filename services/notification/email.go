// Package notification delivers session notices to teachers.
package notification

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/session"
	"github.com/trezcool/heures/core/staff"
)

const noticeTemplate = "session_notice"

var ErrNoEmail = errors.New("staff member has no email address")

// StaffDirectory resolves a staff member by ID.
type StaffDirectory interface {
	GetByID(ctx context.Context, id string) (staff.Staff, error)
}

type noticeData struct {
	Name      string
	Message   string
	SessionID string
}

// EmailNotifier emails a Notice to its teacher.
type EmailNotifier struct {
	directory StaffDirectory
	mailSvc   core.EmailService
}

var _ session.Notifier = (*EmailNotifier)(nil)

func NewEmailNotifier(directory StaffDirectory, mailSvc core.EmailService) *EmailNotifier {
	return &EmailNotifier{directory: directory, mailSvc: mailSvc}
}

func (n *EmailNotifier) Notify(ctx context.Context, notice session.Notice) error {
	stf, err := n.directory.GetByID(ctx, notice.TeacherID)
	if err != nil {
		return errors.Wrap(err, "resolving teacher")
	}
	if stf.Email == "" {
		return errors.Wrapf(ErrNoEmail, "teacher %s", stf.ID)
	}

	n.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: stf.Name, Address: stf.Email}},
		Subject:      "Your extra time declaration",
		TemplateName: noticeTemplate,
		TemplateData: noticeData{Name: stf.Name, Message: notice.Message, SessionID: notice.SessionID},
	})
	return nil
}
