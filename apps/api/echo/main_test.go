package echoapi_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/heures/apps/api/echo"
	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/session"
	"github.com/trezcool/heures/core/setting"
	"github.com/trezcool/heures/core/staff"
	emailsvc "github.com/trezcool/heures/services/email"
	"github.com/trezcool/heures/services/notification"
	sqlxrepos "github.com/trezcool/heures/storage/database/sqlx"
	"github.com/trezcool/heures/testutil"
)

const pwd = "Sup3r-S3cr3t!"

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// sessionResp mirrors session.Session with a raw payload.
type sessionResp struct {
	ID         string                 `json:"id"`
	Type       session.Type           `json:"type"`
	Status     session.Status         `json:"status"`
	Date       string                 `json:"date"`
	Slot       session.TimeSlot       `json:"slot"`
	TeacherID  string                 `json:"teacher_id"`
	Payload    map[string]interface{} `json:"payload"`
	Feedback   string                 `json:"feedback"`
	Conversion *session.Conversion    `json:"conversion"`
	Version    int                    `json:"version"`
}

type env struct {
	conf      *core.Config
	app       *echoapi.Server
	staffRepo staff.Repository
	clock     *testutil.Clock
	mailSvc   *emailsvc.ConsoleService
}

func newEnv(t *testing.T, wrap ...func(session.Repository) session.Repository) *env {
	t.Helper()
	conf := testutil.NewConfig()
	testutil.ParseEmailTemplates(conf)
	logger := testutil.NewLogger()
	validate, translator := testutil.NewValidator()
	db := testutil.PrepareDB(t)

	staffRepo := sqlxrepos.NewStaffRepository(db)
	var sessionRepo session.Repository = sqlxrepos.NewSessionRepository(db)
	for _, w := range wrap {
		sessionRepo = w(sessionRepo)
	}

	e := &env{
		conf:      conf,
		staffRepo: staffRepo,
		clock:     testutil.NewClock(time.Now()),
		mailSvc:   emailsvc.NewConsoleServiceMock(conf, logger),
	}
	staffSvc := staff.NewService(staffRepo, validate, translator)
	settingSvc := setting.NewService(sqlxrepos.NewSettingRepository(db), conf, setting.WithClock(e.clock.Now))
	sessionSvc := session.NewService(
		sessionRepo, settingSvc, notification.NewEmailNotifier(staffSvc, e.mailSvc),
		validate, translator, logger, session.WithClock(e.clock.Now),
	)
	e.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		StaffSvc:   staffSvc,
		SessionSvc: sessionSvc,
		SettingSvc: settingSvc,
		Validate:   validate,
		Translator: translator,
	})
	t.Cleanup(func() { _ = e.app.Close() })
	return e
}

func (e *env) createStaff(t *testing.T, name, uname string, roles ...string) staff.Staff {
	t.Helper()
	return testutil.CreateStaff(t, e.staffRepo, name, uname, uname+"@heures.test", pwd, roles, true)
}

func (e *env) token(t *testing.T, stf staff.Staff) string {
	t.Helper()
	token, err := echoapi.GenerateToken(e.conf, echoapi.GetStaffClaims(e.conf, stf))
	if err != nil {
		t.Fatalf("token(): %v", err)
	}
	return token
}

func (e *env) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}

func (e *env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	return e.serve(newAuthRequest(method, path, token, data...))
}

func (e *env) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			var data [][]byte
			if tt.body != nil {
				data = append(data, tt.body)
			}
			checkCodeAndData(t, tt, e.do(method, tt.path, tt.token, data...))
		})
	}
}

// upload posts content as the "file" field of a multipart form.
func (e *env) upload(t *testing.T, path, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return e.serve(req)
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
