package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/heures/apps/api/echo"
	"github.com/trezcool/heures/core/staff"
	"github.com/trezcool/heures/testutil"
)

func Test_home(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Heures API!", rec.Body.String())
}

func Test_staffApi_login(t *testing.T) {
	e := newEnv(t)
	ada := e.createStaff(t, "Ada", "ada", staff.RoleTeacher)
	testutil.CreateStaff(t, e.staffRepo, "Bob", "bob", "", pwd, []string{staff.RoleTeacher}, false)

	login := func(uname, pass string) []byte {
		return marshalObj(t, echoapi.LoginRequest{Username: uname, Password: pass})
	}

	e.run(t, []httpTest{
		{
			name: "missing credentials", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("ada", "nope"),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("bob", pwd),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	rec := e.do(http.MethodPost, "/v1/users/login", "", login(" ADA@heures.test ", pwd))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(e.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, ada.ID, claims.Subject)
	assert.Equal(t, []string{staff.RoleTeacher}, claims.Roles)

	rec = e.do(http.MethodGet, "/v1/users/me", resp.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me staff.Staff
	decode(t, rec, &me)
	assert.Equal(t, ada.ID, me.ID)
	assert.False(t, me.LastLogin.IsZero())

	rec = e.do(http.MethodPost, "/v1/users/token-refresh", resp.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed echoapi.LoginResponse
	decode(t, rec, &refreshed)
	assert.NotEmpty(t, refreshed.Token)
}

func Test_staffApi_tokens(t *testing.T) {
	e := newEnv(t)
	ada := e.createStaff(t, "Ada", "ada", staff.RoleTeacher)

	expired := echoapi.GetStaffClaims(e.conf, ada, time.Now().Add(-48*time.Hour).Unix())
	expiredToken, err := echoapi.GenerateToken(e.conf, expired)
	require.NoError(t, err)

	e.run(t, []httpTest{
		{name: "no token", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "garbage token", path: "/v1/users/me", token: "not-a-jwt", wantCode: http.StatusUnauthorized},
		{
			name: "refresh window over", method: http.MethodPost, path: "/v1/users/token-refresh", token: expiredToken,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "refresh has expired"}),
		},
	})
}

func Test_staffApi_admin(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC().Truncate(time.Second)
	admin := testutil.CreateStaff(t, e.staffRepo, "Admin", "admin", "admin@heures.test", pwd, []string{staff.RoleAdmin}, true, now)
	teacher := testutil.CreateStaff(t, e.staffRepo, "Ada", "ada", "ada@heures.test", pwd, []string{staff.RoleTeacher}, true, now.Add(time.Minute))
	adminToken := e.token(t, admin)

	e.run(t, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "admin required", path: "/v1/users", token: e.token(t, teacher), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "list", path: "/v1/users", token: adminToken, wantCode: http.StatusOK, wantData: marshalObj(t, []staff.Staff{teacher, admin})},
		{
			name: "list by name", path: "/v1/users?ordering=name", token: adminToken,
			wantCode: http.StatusOK, wantData: marshalObj(t, []staff.Staff{teacher, admin}),
		},
		{
			name: "filter by role", path: "/v1/users?role=admin", token: adminToken,
			wantCode: http.StatusOK, wantData: marshalObj(t, []staff.Staff{admin}),
		},
		{
			name: "bad ordering", path: "/v1/users?ordering=password_hash", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"ordering": "invalid ordering field: password_hash"}),
		},
		{name: "roles", path: "/v1/users/roles", token: adminToken, wantCode: http.StatusOK, wantData: marshalObj(t, staff.Roles)},
		{name: "retrieve", path: "/v1/users/" + teacher.ID, token: adminToken, wantCode: http.StatusOK, wantData: marshalObj(t, teacher)},
		{
			name: "retrieve unknown", path: "/v1/users/missing", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: staff.ErrNotFound.Error()}),
		},
		{
			name: "cannot deactivate oneself", method: http.MethodPut, path: "/v1/users/" + admin.ID, token: adminToken,
			body: []byte(`{"is_active": false}`), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
	})

	rec := e.do(http.MethodPost, "/v1/users/register", adminToken, marshalObj(t, staff.NewStaff{
		Name:            "Grace Hopper",
		Username:        "ghopper",
		Email:           "grace@heures.test",
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{staff.RoleFrontOffice, staff.RoleTeacher},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var grace staff.Staff
	decode(t, rec, &grace)
	assert.Equal(t, []string{staff.RoleFrontOffice, staff.RoleTeacher}, grace.Roles)

	rec = e.do(http.MethodPut, "/v1/users/"+grace.ID, adminToken, []byte(`{"roles": ["director"]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &grace)
	assert.Equal(t, []string{staff.RoleDirector}, grace.Roles)

	rec = e.do(http.MethodPost, "/v1/users/register", adminToken, []byte(`{"name": "X", "username": "ghopper", "password": "`+pwd+`", "password_confirm": "`+pwd+`", "roles": ["teacher"]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username"`)
}
