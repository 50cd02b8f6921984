package staff

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/heures/core"
)

// Roles
const (
	RoleTeacher     = "teacher"
	RoleFrontOffice = "front_office"
	RoleDirector    = "director"
	RoleAdmin       = "admin"
)

var (
	AllRoles = []string{RoleAdmin, RoleDirector, RoleFrontOffice, RoleTeacher}

	Roles = []Role{
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Front Office", Value: RoleFrontOffice},
		{Name: "Director", Value: RoleDirector},
		{Name: "Administrator", Value: RoleAdmin},
	}
)

// IsRole reports whether role is one of AllRoles.
func IsRole(role string) bool {
	return core.StringInSlice(role, AllRoles)
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Actor is a staff member acting under one of their roles.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type Staff struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (s *Staff) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasswordHash = hash
	return nil
}

func (s *Staff) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(pwd))
}

func (s *Staff) HasRole(role string) bool {
	return core.StringInSlice(role, s.Roles)
}

func (s *Staff) IsAdmin() bool {
	return s.HasRole(RoleAdmin)
}

// ActAs returns the Actor of s under role, or false if s does not hold it.
func (s *Staff) ActAs(role string) (Actor, bool) {
	if !s.IsActive || !s.HasRole(role) {
		return Actor{}, false
	}
	return Actor{ID: s.ID, Role: role}, true
}

// NewStaff contains information needed to create a new Staff member.
type NewStaff struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"required,min=1,allroles"`
}

func (ns *NewStaff) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Username = core.CleanString(ns.Username, true /* lower */)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
}

// UpdateStaff defines what information may be provided to modify an existing Staff member.
type UpdateStaff struct {
	Name     string   `json:"name"`
	IsActive *bool    `json:"is_active"`
	Roles    []string `json:"roles" validate:"omitempty,min=1,allroles"`
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
