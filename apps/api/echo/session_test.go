package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/heures/apps/api/echo"
	"github.com/trezcool/heures/core/session"
	"github.com/trezcool/heures/core/staff"
)

var pdf = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type brokenRepo struct {
	session.Repository
}

func (brokenRepo) Commit(context.Context, session.Change) (session.Session, error) {
	return session.Session{}, errors.New("disk full")
}

type workflowStaff struct {
	teacher, other, frontOffice, director, multi staff.Staff
}

func (e *env) workflowStaff(t *testing.T) workflowStaff {
	t.Helper()
	return workflowStaff{
		teacher:     e.createStaff(t, "Ada Lovelace", "ada", staff.RoleTeacher),
		other:       e.createStaff(t, "Bob Marley", "bob", staff.RoleTeacher),
		frontOffice: e.createStaff(t, "Carl Sagan", "carl", staff.RoleFrontOffice),
		director:    e.createStaff(t, "Dora Maar", "dora", staff.RoleDirector),
		multi:       e.createStaff(t, "Eve Curie", "eve", staff.RoleTeacher, staff.RoleFrontOffice),
	}
}

func (e *env) declare(t *testing.T, token string, ns session.NewSession) sessionResp {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/sessions", token, marshalObj(t, ns))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s sessionResp
	decode(t, rec, &s)
	return s
}

func (e *env) transition(t *testing.T, token, id string, req echoapi.TransitionRequest, wantCode int) sessionResp {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/sessions/"+id+"/transition", token, marshalObj(t, req))
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	var s sessionResp
	if wantCode == http.StatusOK {
		decode(t, rec, &s)
	}
	return s
}

func substitution() session.NewSession {
	return session.NewSession{
		Type: session.TypeSubstitution,
		Date: "2025-03-07",
		Slot: session.SlotM2,
		Substitution: &session.SubstitutionPayload{
			ReplacedTeacher: "Mr. Smith",
			Class:           "6B",
		},
	}
}

func Test_sessionApi_workflow(t *testing.T) {
	e := newEnv(t)
	st := e.workflowStaff(t)
	teacher, fo, director := e.token(t, st.teacher), e.token(t, st.frontOffice), e.token(t, st.director)

	s := e.declare(t, teacher, session.NewSession{
		Type:        session.TypeOther,
		Date:        "2025-03-07",
		Slot:        session.SlotS1,
		Description: "  school trip supervision ",
	})
	assert.Equal(t, session.StatusPendingReview, s.Status)
	assert.Equal(t, st.teacher.ID, s.TeacherID)
	assert.Equal(t, "school trip supervision", s.Payload["description"])
	assert.Equal(t, 1, s.Version)

	rec := e.upload(t, "/v1/sessions/"+s.ID+"/attachments", teacher, "trip.pdf", pdf)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var at session.Attachment
	decode(t, rec, &at)
	assert.Equal(t, session.KindPDF, at.Kind)
	assert.Equal(t, "application/pdf", at.MimeType)
	assert.Equal(t, int64(len(pdf)), at.Size)
	assert.False(t, at.Verified)

	rec = e.do(http.MethodGet, "/v1/sessions/"+s.ID+"/attachments", fo)
	require.Equal(t, http.StatusOK, rec.Code)
	var atts []session.Attachment
	decode(t, rec, &atts)
	require.Len(t, atts, 1)
	assert.Equal(t, at.ID, atts[0].ID)

	e.transition(t, fo, s.ID, echoapi.TransitionRequest{Status: session.StatusPendingValidation}, http.StatusUnprocessableEntity)

	rec = e.do(http.MethodPatch, "/v1/attachments/"+at.ID, fo, []byte(`{"verified": true}`))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	s = e.transition(t, fo, s.ID, echoapi.TransitionRequest{Status: session.StatusPendingValidation}, http.StatusOK)
	assert.Equal(t, session.StatusPendingValidation, s.Status)

	rec = e.do(http.MethodPost, "/v1/sessions/"+s.ID+"/transition", director, marshalObj(t, echoapi.TransitionRequest{Status: session.StatusValidated}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error": "a conversion is required to validate this session"}`, rec.Body.String())

	s = e.transition(t, director, s.ID, echoapi.TransitionRequest{
		Status:     session.StatusValidated,
		Conversion: &session.ConversionRequest{TargetType: session.TypeHomeworkHelp, Hours: 2.5},
	}, http.StatusOK)
	require.NotNil(t, s.Conversion)
	assert.Equal(t, session.TypeHomeworkHelp, s.Conversion.TargetType)
	assert.Equal(t, 2.5, s.Conversion.Hours)
	assert.Equal(t, st.director.ID, s.Conversion.ResolvedBy)

	s = e.transition(t, director, s.ID, echoapi.TransitionRequest{Status: session.StatusPaid}, http.StatusOK)
	assert.Equal(t, session.StatusPaid, s.Status)

	rec = e.do(http.MethodDelete, "/v1/attachments/"+at.ID, teacher)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error": "attachment is archived"}`, rec.Body.String())

	rec = e.do(http.MethodGet, "/v1/sessions/"+s.ID+"/history", teacher)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []session.HistoryEntry
	decode(t, rec, &history)
	require.Len(t, history, 6)
	actions := make([]session.HistoryAction, 0, len(history))
	for i, h := range history {
		assert.Equal(t, i+1, h.Seq)
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []session.HistoryAction{
		session.HistoryCreated,
		session.HistoryAttached,
		session.HistoryVerified,
		session.HistoryTransitioned,
		session.HistoryTransitioned,
		session.HistoryTransitioned,
	}, actions)
	assert.Equal(t, s.Version, history[5].Seq)
	assert.Equal(t, session.StatusPaid, session.Replay(history).Status)
}

func Test_sessionApi_rejection(t *testing.T) {
	e := newEnv(t)
	st := e.workflowStaff(t)
	teacher, fo, director := e.token(t, st.teacher), e.token(t, st.frontOffice), e.token(t, st.director)

	s := e.declare(t, teacher, substitution())
	e.transition(t, fo, s.ID, echoapi.TransitionRequest{Status: session.StatusPendingValidation}, http.StatusOK)
	s = e.transition(t, director, s.ID, echoapi.TransitionRequest{Status: session.StatusRejected, Comment: "no such class"}, http.StatusOK)
	assert.Equal(t, session.StatusRejected, s.Status)
	assert.Equal(t, "no such class", s.Feedback)

	rec := e.do(http.MethodGet, "/v1/sessions/"+s.ID+"/actions", director)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"role": "director", "actions": []}`, rec.Body.String())
}

func Test_sessionApi_roles(t *testing.T) {
	e := newEnv(t)
	st := e.workflowStaff(t)
	multi := e.token(t, st.multi)
	s := e.declare(t, e.token(t, st.teacher), substitution())

	e.run(t, []httpTest{
		{
			name: "role required", method: http.MethodPost, path: "/v1/sessions", token: multi,
			body: marshalObj(t, substitution()), wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "role is required"}),
		},
		{
			name: "role not held", method: http.MethodPost, path: "/v1/sessions/" + s.ID + "/transition", token: multi,
			body:     marshalObj(t, echoapi.TransitionRequest{Status: session.StatusPendingValidation, Role: staff.RoleDirector}),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "role from query", path: "/v1/sessions/" + s.ID + "/actions?role=front_office", token: multi,
			wantCode: http.StatusOK,
			wantData: marshalObj(t, echoapi.ActionsResponse{
				Role:    staff.RoleFrontOffice,
				Actions: []session.Action{session.ActionVerify, session.ActionReturn, session.ActionForward},
			}),
		},
		{
			name: "teacher role sees only own sessions", path: "/v1/sessions/" + s.ID + "?role=teacher", token: multi,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "session not found"}),
		},
	})

	s2 := e.transition(t, multi, s.ID, echoapi.TransitionRequest{Status: session.StatusPendingValidation, Role: staff.RoleFrontOffice}, http.StatusOK)
	assert.Equal(t, session.StatusPendingValidation, s2.Status)
	assert.Equal(t, s.Version+1, s2.Version)
}

func Test_sessionApi_errors(t *testing.T) {
	e := newEnv(t)
	st := e.workflowStaff(t)
	teacher, other, director := e.token(t, st.teacher), e.token(t, st.other), e.token(t, st.director)
	s := e.declare(t, teacher, substitution())

	e.run(t, []httpTest{
		{name: "auth required", path: "/v1/sessions", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "unknown session", path: "/v1/sessions/missing", token: director,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "session not found"}),
		},
		{
			name: "session of another teacher", path: "/v1/sessions/" + s.ID, token: other,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "session not found"}),
		},
		{
			name: "only teachers declare", method: http.MethodPost, path: "/v1/sessions", token: director,
			body: marshalObj(t, substitution()), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "invalid declaration", method: http.MethodPost, path: "/v1/sessions", token: teacher,
			body: []byte(`{"type": "SUBSTITUTION", "date": "07/03/2025", "slot": "M9"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "teacher cannot transition", method: http.MethodPost, path: "/v1/sessions/" + s.ID + "/transition", token: teacher,
			body: marshalObj(t, echoapi.TransitionRequest{Status: session.StatusPendingValidation}), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, errForbidden),
		},
		{
			name: "unknown status", method: http.MethodPost, path: "/v1/sessions/" + s.ID + "/transition", token: director,
			body: []byte(`{"status": "ARCHIVED"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"status": "unknown status"}),
		},
		{
			name: "director cannot skip review", method: http.MethodPost, path: "/v1/sessions/" + s.ID + "/transition", token: director,
			body: marshalObj(t, echoapi.TransitionRequest{Status: session.StatusValidated}), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown attachment", method: http.MethodPatch, path: "/v1/attachments/missing", token: e.token(t, st.frontOffice),
			body: []byte(`{"verified": true}`), wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "attachment not found"}),
		},
		{
			name: "verified flag required", method: http.MethodPatch, path: "/v1/attachments/missing", token: e.token(t, st.frontOffice),
			body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"verified": "verified is a required field"}),
		},
		{
			name: "no file", method: http.MethodPost, path: "/v1/sessions/" + s.ID + "/attachments", token: teacher,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"file": "a file is required"}),
		},
	})

	t.Run("edit window", func(t *testing.T) {
		rec := e.do(http.MethodPatch, "/v1/sessions/"+s.ID, teacher, []byte(`{"slot": "M3"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var edited sessionResp
		decode(t, rec, &edited)
		assert.Equal(t, session.SlotM3, edited.Slot)
		assert.Equal(t, "Mr. Smith", edited.Payload["replaced_teacher"])

		e.clock.Advance(61 * time.Minute)

		rec = e.do(http.MethodPatch, "/v1/sessions/"+s.ID, teacher, []byte(`{"slot": "M4"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error": "edit window has expired"}`, rec.Body.String())

		rec = e.do(http.MethodDelete, "/v1/sessions/"+s.ID, teacher)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = e.do(http.MethodGet, "/v1/sessions/"+s.ID+"/actions", teacher)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"role": "teacher", "actions": ["attach"]}`, rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		fresh := e.declare(t, teacher, substitution())
		rec := e.do(http.MethodDelete, "/v1/sessions/"+fresh.ID, teacher)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = e.do(http.MethodGet, "/v1/sessions/"+fresh.ID, teacher)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_sessionApi_storageUnavailable(t *testing.T) {
	e := newEnv(t, func(repo session.Repository) session.Repository { return brokenRepo{repo} })
	st := e.workflowStaff(t)
	s := e.declare(t, e.token(t, st.teacher), substitution())

	rec := e.do(http.MethodPost, "/v1/sessions/"+s.ID+"/transition", e.token(t, st.frontOffice),
		marshalObj(t, echoapi.TransitionRequest{Status: session.StatusPendingValidation}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error": "Service Unavailable"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "disk full")

	rec = e.do(http.MethodGet, "/v1/sessions/"+s.ID, e.token(t, st.director))
	require.Equal(t, http.StatusOK, rec.Code)
	var got sessionResp
	decode(t, rec, &got)
	assert.Equal(t, session.StatusPendingReview, got.Status)
	assert.Equal(t, 1, got.Version)
}

func Test_sessionApi_query(t *testing.T) {
	e := newEnv(t)
	st := e.workflowStaff(t)
	teacher, other, fo := e.token(t, st.teacher), e.token(t, st.other), e.token(t, st.frontOffice)

	mine := e.declare(t, teacher, substitution())
	forwarded := e.declare(t, teacher, session.NewSession{
		Type:         session.TypeHomeworkHelp,
		Date:         "2025-03-10",
		Slot:         session.SlotS2,
		HomeworkHelp: &session.HomeworkHelpPayload{StudentCount: 12, GradeLevel: "5th"},
	})
	theirs := e.declare(t, other, session.NewSession{
		Type:        session.TypeExtraHours,
		Date:        "2025-03-11",
		Slot:        session.SlotM1,
		Description: "parents meeting",
	})
	e.transition(t, fo, forwarded.ID, echoapi.TransitionRequest{Status: session.StatusPendingValidation}, http.StatusOK)

	ids := func(t *testing.T, path, token string) []string {
		t.Helper()
		rec := e.do(http.MethodGet, path, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ss []sessionResp
		decode(t, rec, &ss)
		out := make([]string, 0, len(ss))
		for _, s := range ss {
			out = append(out, s.ID)
		}
		return out
	}

	tests := []struct {
		name  string
		path  string
		token string
		want  []string
	}{
		{name: "teacher sees own", path: "/v1/sessions", token: teacher, want: []string{mine.ID, forwarded.ID}},
		{name: "teacher filter is forced", path: "/v1/sessions?teacher_id=" + st.other.ID, token: teacher, want: []string{mine.ID, forwarded.ID}},
		{name: "front office sees all", path: "/v1/sessions", token: fo, want: []string{mine.ID, forwarded.ID, theirs.ID}},
		{name: "by teacher", path: "/v1/sessions?teacher_id=" + st.other.ID, token: fo, want: []string{theirs.ID}},
		{name: "by status", path: "/v1/sessions?status=PENDING_VALIDATION", token: fo, want: []string{forwarded.ID}},
		{name: "by type", path: "/v1/sessions?type=SUBSTITUTION&type=EXTRA_HOURS", token: fo, want: []string{mine.ID, theirs.ID}},
		{name: "by date", path: "/v1/sessions?date_from=2025-03-10&date_to=2025-03-10", token: fo, want: []string{forwarded.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, ids(t, tt.path, tt.token))
		})
	}

	t.Run("ordering", func(t *testing.T) {
		assert.Equal(t, []string{mine.ID, forwarded.ID, theirs.ID}, ids(t, "/v1/sessions?ordering=date", fo))
		assert.Equal(t, []string{theirs.ID, forwarded.ID, mine.ID}, ids(t, "/v1/sessions?ordering=-date", fo))

		rec := e.do(http.MethodGet, "/v1/sessions?ordering=payload", fo)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "invalid ordering field"))
	})
}
