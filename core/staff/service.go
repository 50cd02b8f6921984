package staff

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
)

var (
	// errors
	ErrNotFound       = errors.New("staff member not found")
	ErrEmailExists    = errors.New("a staff member with this email already exists")
	ErrUsernameExists = errors.New("a staff member with this username already exists")
	ErrRoleNotHeld    = errors.New("staff member does not hold this role")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreateStaff(ctx context.Context, stf Staff) (Staff, error)
		GetStaffByID(ctx context.Context, id string) (Staff, error)
		GetStaffByUsernameOrEmail(ctx context.Context, uname string) (Staff, error)
		// QueryStaff applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Staff.Name, Staff.Username or Staff.Email.
		QueryStaff(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Staff, error)
		UpdateStaff(ctx context.Context, stf Staff) (Staff, error)
	}

	Service struct {
		repo       Repository
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(repo Repository, validate *validator.Validate, translator ut.Translator) *Service {
	return &Service{repo: repo, validate: validate, translator: translator}
}

// CheckUniqueness checks that no other staff member holds uname or email.
func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, excludedIDs...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Validate cleans and validates ns, then checks uniqueness of its username and email.
func (svc *Service) Validate(ctx context.Context, ns *NewStaff) error {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return core.TranslateValidationErrors(err, svc.translator)
	}
	return svc.CheckUniqueness(ctx, ns.Username, ns.Email)
}

func (svc *Service) Create(ctx context.Context, ns NewStaff) (Staff, error) {
	if err := svc.Validate(ctx, &ns); err != nil {
		return Staff{}, err
	}

	now := time.Now().UTC()
	stf := Staff{
		Name:      ns.Name,
		Username:  ns.Username,
		Email:     ns.Email,
		IsActive:  true,
		Roles:     ns.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := stf.SetPassword(ns.Password); err != nil {
		return Staff{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateStaff(ctx, stf)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Staff, error) {
	return svc.repo.GetStaffByID(ctx, id)
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (Staff, error) {
	return svc.repo.GetStaffByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Staff, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryStaff(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStaff) (Staff, error) {
	if err := svc.validate.Struct(us); err != nil {
		return Staff{}, core.TranslateValidationErrors(err, svc.translator)
	}
	stf, err := svc.repo.GetStaffByID(ctx, id)
	if err != nil {
		return Staff{}, err
	}
	if name := core.CleanString(us.Name); name != "" {
		stf.Name = name
	}
	if us.IsActive != nil {
		stf.IsActive = *us.IsActive
	}
	if us.Roles != nil {
		stf.Roles = us.Roles
	}
	stf.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStaff(ctx, stf)
}

// SetPassword applies the password policy to pwd before storing it.
func (svc *Service) SetPassword(ctx context.Context, stf Staff, pwd string) (Staff, error) {
	if err := svc.validate.Struct(passwordChange{stf: stf, Password: pwd}); err != nil {
		return Staff{}, core.TranslateValidationErrors(err, svc.translator)
	}
	if err := stf.SetPassword(pwd); err != nil {
		return Staff{}, errors.Wrap(err, "setting password")
	}
	stf.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStaff(ctx, stf)
}

func (svc *Service) SetLastLogin(ctx context.Context, stf Staff) (Staff, error) {
	stf.LastLogin = time.Now().UTC()
	return svc.repo.UpdateStaff(ctx, stf)
}

// Authenticate returns the staff member matching uname and pwd.
// Unknown staff and wrong passwords both yield ErrNotFound.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (Staff, error) {
	stf, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return Staff{}, err
	}
	if err := stf.CheckPassword(pwd); err != nil {
		return Staff{}, ErrNotFound
	}
	return stf, nil
}

// Actor resolves the Actor of the staff member id under role.
// The caller is denied when they are unknown, inactive or do not hold role.
func (svc *Service) Actor(ctx context.Context, id, role string) (Actor, error) {
	stf, err := svc.repo.GetStaffByID(ctx, id)
	if err != nil {
		return Actor{}, err
	}
	actor, ok := stf.ActAs(role)
	if !ok {
		return Actor{}, ErrRoleNotHeld
	}
	return actor, nil
}

// passwordChange carries a new password through the password policy.
type passwordChange struct {
	stf      Staff
	Password string `json:"password" validate:"required"`
}
