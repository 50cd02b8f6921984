package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/session"
)

const (
	sessionColumns = `id, session_type, status, session_date, time_slot, teacher_id, payload, feedback,
		conversion_type, conversion_hours, conversion_by, conversion_at,
		created_at, created_by, updated_at, updated_by, version`
	attachmentColumns = "id, session_id, filename, mime_type, kind, size, verified, archived, created_at, created_by"
	historyColumns    = `session_id, seq, action, from_status, to_status, actor_id, actor_role, comment,
		conversion_type, conversion_hours, occurred_at`
)

type (
	sessionRow struct {
		ID              string       `db:"id"`
		Type            string       `db:"session_type"`
		Status          string       `db:"status"`
		Date            string       `db:"session_date"`
		Slot            string       `db:"time_slot"`
		TeacherID       string       `db:"teacher_id"`
		Payload         string       `db:"payload"`
		Feedback        null.String  `db:"feedback"`
		ConversionType  null.String  `db:"conversion_type"`
		ConversionHours null.Float64 `db:"conversion_hours"`
		ConversionBy    null.String  `db:"conversion_by"`
		ConversionAt    null.Time    `db:"conversion_at"`
		CreatedAt       time.Time    `db:"created_at"`
		CreatedBy       string       `db:"created_by"`
		UpdatedAt       time.Time    `db:"updated_at"`
		UpdatedBy       string       `db:"updated_by"`
		Version         int          `db:"version"`
	}

	attachmentRow struct {
		ID        string    `db:"id"`
		SessionID string    `db:"session_id"`
		Filename  string    `db:"filename"`
		MimeType  string    `db:"mime_type"`
		Kind      string    `db:"kind"`
		Size      int64     `db:"size"`
		Verified  bool      `db:"verified"`
		Archived  bool      `db:"archived"`
		CreatedAt time.Time `db:"created_at"`
		CreatedBy string    `db:"created_by"`
	}

	historyRow struct {
		SessionID       string       `db:"session_id"`
		Seq             int          `db:"seq"`
		Action          string       `db:"action"`
		FromStatus      null.String  `db:"from_status"`
		ToStatus        null.String  `db:"to_status"`
		ActorID         string       `db:"actor_id"`
		ActorRole       string       `db:"actor_role"`
		Comment         null.String  `db:"comment"`
		ConversionType  null.String  `db:"conversion_type"`
		ConversionHours null.Float64 `db:"conversion_hours"`
		OccurredAt      time.Time    `db:"occurred_at"`
	}

	versionedRow struct {
		sessionRow
		Expected int `db:"expected_version"`
	}
)

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) session.Repository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) toRow(s session.Session) (sessionRow, error) {
	payload, err := session.EncodePayload(s.Payload)
	if err != nil {
		return sessionRow{}, errors.Wrap(err, "encoding payload")
	}
	row := sessionRow{
		ID:        s.ID,
		Type:      string(s.Type),
		Status:    string(s.Status),
		Date:      s.Date,
		Slot:      string(s.Slot),
		TeacherID: s.TeacherID,
		Payload:   string(payload),
		Feedback:  null.NewString(s.Feedback, s.Feedback != ""),
		CreatedAt: s.CreatedAt.UTC(),
		CreatedBy: s.CreatedBy,
		UpdatedAt: s.UpdatedAt.UTC(),
		UpdatedBy: s.UpdatedBy,
		Version:   s.Version,
	}
	if c := s.Conversion; c != nil {
		row.ConversionType = null.StringFrom(string(c.TargetType))
		row.ConversionHours = null.Float64From(c.Hours)
		row.ConversionBy = null.StringFrom(c.ResolvedBy)
		row.ConversionAt = null.TimeFrom(c.ResolvedAt.UTC())
	}
	return row, nil
}

func (repo *sessionRepository) fromRow(row sessionRow) (session.Session, error) {
	payload, err := session.DecodePayload(session.Type(row.Type), []byte(row.Payload))
	if err != nil {
		return session.Session{}, err
	}
	s := session.Session{
		ID:        row.ID,
		Type:      session.Type(row.Type),
		Status:    session.Status(row.Status),
		Date:      row.Date,
		Slot:      session.TimeSlot(row.Slot),
		TeacherID: row.TeacherID,
		Payload:   payload,
		Feedback:  row.Feedback.String,
		CreatedAt: row.CreatedAt.UTC(),
		CreatedBy: row.CreatedBy,
		UpdatedAt: row.UpdatedAt.UTC(),
		UpdatedBy: row.UpdatedBy,
		Version:   row.Version,
	}
	if row.ConversionType.Valid {
		s.Conversion = &session.Conversion{
			TargetType: session.Type(row.ConversionType.String),
			Hours:      row.ConversionHours.Float64,
			ResolvedBy: row.ConversionBy.String,
			ResolvedAt: row.ConversionAt.Time.UTC(),
		}
	}
	return s, nil
}

func toAttachmentRow(at session.Attachment) attachmentRow {
	return attachmentRow{
		ID:        at.ID,
		SessionID: at.SessionID,
		Filename:  at.Filename,
		MimeType:  at.MimeType,
		Kind:      string(at.Kind),
		Size:      at.Size,
		Verified:  at.Verified,
		Archived:  at.Archived,
		CreatedAt: at.CreatedAt.UTC(),
		CreatedBy: at.CreatedBy,
	}
}

func fromAttachmentRow(row attachmentRow) session.Attachment {
	return session.Attachment{
		ID:        row.ID,
		SessionID: row.SessionID,
		Filename:  row.Filename,
		MimeType:  row.MimeType,
		Kind:      session.MimeKind(row.Kind),
		Size:      row.Size,
		Verified:  row.Verified,
		Archived:  row.Archived,
		CreatedAt: row.CreatedAt.UTC(),
		CreatedBy: row.CreatedBy,
	}
}

func toHistoryRow(e session.HistoryEntry) historyRow {
	row := historyRow{
		SessionID:  e.SessionID,
		Seq:        e.Seq,
		Action:     string(e.Action),
		FromStatus: null.NewString(string(e.From), e.From != ""),
		ToStatus:   null.NewString(string(e.To), e.To != ""),
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		Comment:    null.NewString(e.Comment, e.Comment != ""),
		OccurredAt: e.At.UTC(),
	}
	if c := e.Conversion; c != nil {
		row.ConversionType = null.StringFrom(string(c.TargetType))
		row.ConversionHours = null.Float64From(c.Hours)
	}
	return row
}

func fromHistoryRow(row historyRow) session.HistoryEntry {
	e := session.HistoryEntry{
		SessionID: row.SessionID,
		Seq:       row.Seq,
		Action:    session.HistoryAction(row.Action),
		From:      session.Status(row.FromStatus.String),
		To:        session.Status(row.ToStatus.String),
		ActorID:   row.ActorID,
		ActorRole: row.ActorRole,
		Comment:   row.Comment.String,
		At:        row.OccurredAt.UTC(),
	}
	if row.ConversionType.Valid {
		e.Conversion = &session.Conversion{
			TargetType: session.Type(row.ConversionType.String),
			Hours:      row.ConversionHours.Float64,
			ResolvedBy: row.ActorID,
			ResolvedAt: row.OccurredAt.UTC(),
		}
	}
	return e
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, e session.HistoryEntry) error {
	q := `INSERT INTO session_history (` + historyColumns + `) VALUES (
		:session_id, :seq, :action, :from_status, :to_status, :actor_id, :actor_role, :comment,
		:conversion_type, :conversion_hours, :occurred_at
	)`
	_, err := tx.NamedExecContext(ctx, q, toHistoryRow(e))
	return errors.Wrap(err, "inserting history")
}

func (repo *sessionRepository) CreateSession(ctx context.Context, s session.Session, entry session.HistoryEntry) (session.Session, error) {
	s.Version = 1
	row, err := repo.toRow(s)
	if err != nil {
		return session.Session{}, err
	}
	entry.SessionID, entry.Seq = s.ID, 1

	err = inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO work_session (` + sessionColumns + `) VALUES (
			:id, :session_type, :status, :session_date, :time_slot, :teacher_id, :payload, :feedback,
			:conversion_type, :conversion_hours, :conversion_by, :conversion_at,
			:created_at, :created_by, :updated_at, :updated_by, :version
		)`
		if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
			return errors.Wrap(err, "inserting session")
		}
		return insertHistory(ctx, tx, entry)
	})
	if err != nil {
		return session.Session{}, err
	}
	return repo.GetSession(ctx, s.ID)
}

func (repo *sessionRepository) GetSession(ctx context.Context, id string) (session.Session, error) {
	var row sessionRow
	q := repo.db.Rebind("SELECT " + sessionColumns + " FROM work_session WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return session.Session{}, trapNoRowsErr(err, session.ErrNotFound, "finding session by ID")
	}
	return repo.fromRow(row)
}

var sessionOrderingColumns = map[string]string{
	"date":       "session_date",
	"slot":       "time_slot",
	"status":     "status",
	"type":       "session_type",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (repo *sessionRepository) QuerySessions(ctx context.Context, filter *session.QueryFilter, ordering []core.DBOrdering) ([]session.Session, error) {
	orderBy, err := core.OrderBy(ordering, sessionOrderingColumns, "created_at DESC")
	if err != nil {
		return nil, err
	}

	w := new(where)
	if filter != nil {
		if filter.TeacherID != "" {
			w.add("teacher_id = ?", filter.TeacherID)
		}
		statuses := make([]interface{}, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		w.in("status", statuses)
		types := make([]interface{}, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		w.in("session_type", types)
		if filter.DateFrom != "" {
			w.add("session_date >= ?", filter.DateFrom)
		}
		if filter.DateTo != "" {
			w.add("session_date <= ?", filter.DateTo)
		}
	}

	var rows []sessionRow
	q := repo.db.Rebind("SELECT " + sessionColumns + " FROM work_session" + w.String() + orderBy + ", id ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		s, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// checkVersion fails with ErrConflict when the stored version of id is not version.
func checkVersion(ctx context.Context, tx *sqlx.Tx, id string, version int) error {
	var stored int
	if err := tx.GetContext(ctx, &stored, tx.Rebind("SELECT version FROM work_session WHERE id = ?"), id); err != nil {
		return trapNoRowsErr(err, session.ErrNotFound, "reading session version")
	}
	if stored != version {
		return session.ErrConflict
	}
	return nil
}

func (repo *sessionRepository) Commit(ctx context.Context, chg session.Change) (session.Session, error) {
	s := chg.Session
	row, err := repo.toRow(s)
	if err != nil {
		return session.Session{}, err
	}
	row.Version = s.Version + 1

	entry := chg.History
	entry.SessionID, entry.Seq = s.ID, row.Version

	err = inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := checkVersion(ctx, tx, s.ID, s.Version); err != nil {
			return err
		}

		q := `UPDATE work_session SET
			session_type = :session_type, status = :status, session_date = :session_date, time_slot = :time_slot,
			payload = :payload, feedback = :feedback,
			conversion_type = :conversion_type, conversion_hours = :conversion_hours,
			conversion_by = :conversion_by, conversion_at = :conversion_at,
			updated_at = :updated_at, updated_by = :updated_by, version = :version
		WHERE id = :id AND version = :expected_version`
		// version is checked again by the update: the read above takes no row lock
		res, err := tx.NamedExecContext(ctx, q, versionedRow{sessionRow: row, Expected: s.Version})
		if err != nil {
			return errors.Wrap(err, "updating session")
		}
		if n, err := res.RowsAffected(); err != nil {
			return errors.Wrap(err, "updating session")
		} else if n == 0 {
			return session.ErrConflict
		}

		if at := chg.Attach; at != nil {
			atRow := toAttachmentRow(*at)
			atRow.SessionID = s.ID
			q := `INSERT INTO attachment (` + attachmentColumns + `) VALUES (
				:id, :session_id, :filename, :mime_type, :kind, :size, :verified, :archived, :created_at, :created_by
			)`
			if _, err := tx.NamedExecContext(ctx, q, atRow); err != nil {
				return errors.Wrap(err, "inserting attachment")
			}
		}
		if chg.Detach != "" {
			q := tx.Rebind("DELETE FROM attachment WHERE id = ? AND session_id = ?")
			if err := execOne(ctx, tx, q, chg.Detach, s.ID); err != nil {
				return err
			}
		}
		if v := chg.Verify; v != nil {
			q := tx.Rebind("UPDATE attachment SET verified = ? WHERE id = ? AND session_id = ?")
			if err := execOne(ctx, tx, q, v.Verified, v.AttachmentID, s.ID); err != nil {
				return err
			}
		}
		if chg.Archive {
			q := tx.Rebind("UPDATE attachment SET archived = ? WHERE session_id = ?")
			if _, err := tx.ExecContext(ctx, q, true, s.ID); err != nil {
				return errors.Wrap(err, "archiving attachments")
			}
		}
		return insertHistory(ctx, tx, entry)
	})
	if err != nil {
		return session.Session{}, err
	}
	return repo.GetSession(ctx, s.ID)
}

// execOne runs q and fails with ErrAttachmentNotFound when no row was touched.
func execOne(ctx context.Context, tx *sqlx.Tx, q string, args ...interface{}) error {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "updating attachment")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "updating attachment")
	} else if n == 0 {
		return session.ErrAttachmentNotFound
	}
	return nil
}

func (repo *sessionRepository) DeleteSession(ctx context.Context, id string, version int) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := checkVersion(ctx, tx, id, version); err != nil {
			return err
		}
		for _, q := range []string{
			"DELETE FROM session_history WHERE session_id = ?",
			"DELETE FROM attachment WHERE session_id = ?",
			"DELETE FROM work_session WHERE id = ?",
		} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), id); err != nil {
				return errors.Wrap(err, "deleting session")
			}
		}
		return nil
	})
}

func (repo *sessionRepository) GetAttachment(ctx context.Context, id string) (session.Attachment, error) {
	var row attachmentRow
	q := repo.db.Rebind("SELECT " + attachmentColumns + " FROM attachment WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return session.Attachment{}, trapNoRowsErr(err, session.ErrAttachmentNotFound, "finding attachment by ID")
	}
	return fromAttachmentRow(row), nil
}

func (repo *sessionRepository) ListAttachments(ctx context.Context, sessionID string) ([]session.Attachment, error) {
	var rows []attachmentRow
	q := repo.db.Rebind("SELECT " + attachmentColumns + " FROM attachment WHERE session_id = ? ORDER BY created_at ASC, id ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, sessionID); err != nil {
		return nil, errors.Wrap(err, "listing attachments")
	}
	atts := make([]session.Attachment, 0, len(rows))
	for _, row := range rows {
		atts = append(atts, fromAttachmentRow(row))
	}
	return atts, nil
}

func (repo *sessionRepository) ListHistory(ctx context.Context, sessionID string) ([]session.HistoryEntry, error) {
	var rows []historyRow
	q := repo.db.Rebind("SELECT " + historyColumns + " FROM session_history WHERE session_id = ? ORDER BY seq ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, sessionID); err != nil {
		return nil, errors.Wrap(err, "listing history")
	}
	entries := make([]session.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fromHistoryRow(row))
	}
	return entries, nil
}
