package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/session"
)

type sessionRepository struct {
	db *sessionTable
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) session.Repository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) takeFailure() error {
	err := repo.db.failNext
	repo.db.failNext = nil
	return err
}

func (repo *sessionRepository) CreateSession(_ context.Context, s session.Session, entry session.HistoryEntry) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.takeFailure(); err != nil {
		return session.Session{}, err
	}
	s = s.Clone()
	s.Version = 1
	entry.Seq = 1
	repo.db.sessions[s.ID] = &s
	repo.db.history[s.ID] = []session.HistoryEntry{entry}
	return s.Clone(), nil
}

func (repo *sessionRepository) GetSession(_ context.Context, id string) (session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return s.Clone(), nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) QuerySessions(_ context.Context, filter *session.QueryFilter, ordering []core.DBOrdering) ([]session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter == nil {
		filter = new(session.QueryFilter)
	}
	less, err := sessionOrdering(ordering)
	if err != nil {
		return nil, err
	}

	out := make([]session.Session, 0, len(repo.db.sessions))
	for _, s := range repo.db.sessions {
		if filter.TeacherID != "" && s.TeacherID != filter.TeacherID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, s.Status) {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, s.Type) {
			continue
		}
		// dates are YYYY-MM-DD, so lexical order is chronological
		if filter.DateFrom != "" && s.Date < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && s.Date > filter.DateTo {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func containsStatus(ss []session.Status, s session.Status) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsType(ts []session.Type, t session.Type) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}

var sessionOrderingFields = map[string]string{
	"date":       "date",
	"slot":       "slot",
	"status":     "status",
	"type":       "type",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func sessionOrdering(ordering []core.DBOrdering) (func(a, b session.Session) bool, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	if _, err := core.OrderBy(ordering, sessionOrderingFields, ""); err != nil {
		return nil, err
	}
	return func(a, b session.Session) bool {
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "date":
				cmp = strings.Compare(a.Date, b.Date)
			case "slot":
				cmp = strings.Compare(string(a.Slot), string(b.Slot))
			case "status":
				cmp = strings.Compare(string(a.Status), string(b.Status))
			case "type":
				cmp = strings.Compare(string(a.Type), string(b.Type))
			case "created_at":
				cmp = a.CreatedAt.Compare(b.CreatedAt)
			case "updated_at":
				cmp = a.UpdatedAt.Compare(b.UpdatedAt)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return a.ID < b.ID
	}, nil
}

func (repo *sessionRepository) Commit(_ context.Context, chg session.Change) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.sessions[chg.Session.ID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	if stored.Version != chg.Session.Version {
		return session.Session{}, session.ErrConflict
	}
	if err := repo.takeFailure(); err != nil {
		return session.Session{}, err
	}

	// validate everything before writing anything
	if chg.Detach != "" {
		if at, ok := repo.db.attachments[chg.Detach]; !ok || at.SessionID != chg.Session.ID {
			return session.Session{}, session.ErrAttachmentNotFound
		}
	}
	if chg.Verify != nil {
		if at, ok := repo.db.attachments[chg.Verify.AttachmentID]; !ok || at.SessionID != chg.Session.ID {
			return session.Session{}, session.ErrAttachmentNotFound
		}
	}

	if chg.Attach != nil {
		at := *chg.Attach
		at.SessionID = chg.Session.ID
		repo.db.attachments[at.ID] = &at
	}
	if chg.Detach != "" {
		delete(repo.db.attachments, chg.Detach)
	}
	if chg.Verify != nil {
		repo.db.attachments[chg.Verify.AttachmentID].Verified = chg.Verify.Verified
	}
	if chg.Archive {
		for _, at := range repo.db.attachments {
			if at.SessionID == chg.Session.ID {
				at.Archived = true
			}
		}
	}

	s := chg.Session.Clone()
	s.Version = stored.Version + 1
	repo.db.sessions[s.ID] = &s

	entry := chg.History
	entry.SessionID = s.ID
	entry.Seq = s.Version
	entry.Conversion = entry.Conversion.Clone()
	repo.db.history[s.ID] = append(repo.db.history[s.ID], entry)

	return s.Clone(), nil
}

func (repo *sessionRepository) DeleteSession(_ context.Context, id string, version int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	if stored.Version != version {
		return session.ErrConflict
	}
	if err := repo.takeFailure(); err != nil {
		return err
	}

	delete(repo.db.sessions, id)
	delete(repo.db.history, id)
	for atID, at := range repo.db.attachments {
		if at.SessionID == id {
			delete(repo.db.attachments, atID)
		}
	}
	return nil
}

func (repo *sessionRepository) GetAttachment(_ context.Context, id string) (session.Attachment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if at, ok := repo.db.attachments[id]; ok {
		return *at, nil
	}
	return session.Attachment{}, session.ErrAttachmentNotFound
}

func (repo *sessionRepository) ListAttachments(_ context.Context, sessionID string) ([]session.Attachment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	atts := make([]session.Attachment, 0)
	for _, at := range repo.db.attachments {
		if at.SessionID == sessionID {
			atts = append(atts, *at)
		}
	}
	sort.Slice(atts, func(i, j int) bool {
		if !atts[i].CreatedAt.Equal(atts[j].CreatedAt) {
			return atts[i].CreatedAt.Before(atts[j].CreatedAt)
		}
		return atts[i].ID < atts[j].ID
	})
	return atts, nil
}

func (repo *sessionRepository) ListHistory(_ context.Context, sessionID string) ([]session.HistoryEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]session.HistoryEntry, 0, len(repo.db.history[sessionID]))
	for _, e := range repo.db.history[sessionID] {
		e.Conversion = e.Conversion.Clone()
		entries = append(entries, e)
	}
	return entries, nil
}
