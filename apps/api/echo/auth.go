package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

const (
	jwtContextKey   = "staffToken"
	contextStaffKey = "staff"
	roleParam       = "role"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    jwtContextKey,
		Claims:        new(Claims),
	}
}

func GetStaffClaims(conf *core.Config, stf staff.Staff, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   stf.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     stf.Username,
		Email:        stf.Email,
		Roles:        stf.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the staff Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func authenticate(ctx context.Context, conf *core.Config, uname, pwd string, svc *staff.Service) (*Claims, error) {
	stf, err := svc.Authenticate(ctx, uname, pwd)
	if err != nil {
		if errors.Cause(err) == staff.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "authenticating staff")
	}
	if !stf.IsActive {
		return nil, errAccountDeactivated
	}
	stf, err = svc.SetLastLogin(ctx, stf)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return GetStaffClaims(conf, stf), nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(jwtContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextStaff(ctx echo.Context, svc *staff.Service) (staff.Staff, error) {
	if stf, ok := ctx.Get(contextStaffKey).(staff.Staff); ok {
		return stf, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return staff.Staff{}, err
	}
	stf, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == staff.ErrNotFound {
			return staff.Staff{}, errUnauthorized
		}
		return staff.Staff{}, errors.Wrap(err, "finding staff by ID")
	}
	ctx.Set(contextStaffKey, stf)
	return stf, nil
}

// contextActor resolves who is acting and under which role.
// The role comes from the request (body first, then the `role` query param);
// a staff member holding a single role may omit it.
func contextActor(ctx echo.Context, svc *staff.Service, requested string) (staff.Actor, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return staff.Actor{}, err
	}

	role := requested
	if role == "" {
		role = ctx.QueryParam(roleParam)
	}
	if role == "" {
		if len(claims.Roles) != 1 {
			return staff.Actor{}, errRoleRequired
		}
		role = claims.Roles[0]
	}
	if !core.StringInSlice(role, claims.Roles) {
		return staff.Actor{}, errHttpForbidden
	}

	// the token may predate a deactivation or a role change
	actor, err := svc.Actor(ctx.Request().Context(), claims.Subject, role)
	switch errors.Cause(err) {
	case nil:
		return actor, nil
	case staff.ErrNotFound:
		return staff.Actor{}, errUnauthorized
	case staff.ErrRoleNotHeld:
		return staff.Actor{}, errHttpForbidden
	default:
		return staff.Actor{}, errors.Wrap(err, "resolving actor")
	}
}

func refreshToken(ctx echo.Context, conf *core.Config, svc *staff.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	stf, err := getContextStaff(ctx, svc)
	if err != nil {
		return "", err
	}

	// check if staff is still active
	if !stf.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := GenerateToken(conf, GetStaffClaims(conf, stf, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
