package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

const staffColumns = "id, name, username, email, roles, is_active, password_hash, created_at, updated_at, last_login"

type staffRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	Roles        string      `db:"roles"`
	IsActive     bool        `db:"is_active"`
	PasswordHash string      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type staffRepository struct {
	db *sqlx.DB
}

var _ staff.Repository = (*staffRepository)(nil) // interface compliance check

func NewStaffRepository(db *sqlx.DB) staff.Repository {
	return &staffRepository{db: db}
}

func (repo *staffRepository) toRow(stf staff.Staff) staffRow {
	return staffRow{
		ID:           stf.ID,
		Name:         stf.Name,
		Username:     null.NewString(stf.Username, stf.Username != ""),
		Email:        null.NewString(stf.Email, stf.Email != ""),
		Roles:        strings.Join(stf.Roles, ","),
		IsActive:     stf.IsActive,
		PasswordHash: string(stf.PasswordHash),
		CreatedAt:    stf.CreatedAt.UTC(),
		UpdatedAt:    stf.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(stf.LastLogin.UTC(), !stf.LastLogin.IsZero()),
	}
}

func (repo *staffRepository) fromRow(row staffRow) staff.Staff {
	stf := staff.Staff{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Roles:        []string{},
		IsActive:     row.IsActive,
		PasswordHash: []byte(row.PasswordHash),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.Roles != "" {
		stf.Roles = strings.Split(row.Roles, ",")
	}
	if row.LastLogin.Valid {
		stf.LastLogin = row.LastLogin.Time.UTC()
	}
	return stf
}

func (repo *staffRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	check := func(col, value string, exists error) error {
		if value == "" {
			return nil
		}
		w := new(where)
		w.add(col+" = ?", value)
		if len(excludedIDs) > 0 {
			ids := make([]interface{}, 0, len(excludedIDs))
			for _, id := range excludedIDs {
				ids = append(ids, id)
			}
			w.add("id NOT IN (?"+strings.Repeat(", ?", len(ids)-1)+")", ids...)
		}
		var count int
		q := repo.db.Rebind("SELECT COUNT(*) FROM staff" + w.String())
		if err := repo.db.GetContext(ctx, &count, q, w.args...); err != nil {
			return errors.Wrap(err, "checking "+col+" uniqueness")
		}
		if count > 0 {
			return exists
		}
		return nil
	}
	if err := check("username", username, staff.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, staff.ErrEmailExists)
}

func (repo *staffRepository) CreateStaff(ctx context.Context, stf staff.Staff) (staff.Staff, error) {
	if stf.ID == "" {
		stf.ID = uuid.NewString()
	}
	q := `INSERT INTO staff (` + staffColumns + `) VALUES (
		:id, :name, :username, :email, :roles, :is_active, :password_hash, :created_at, :updated_at, :last_login
	)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.toRow(stf)); err != nil {
		return staff.Staff{}, errors.Wrap(err, "inserting staff")
	}
	return repo.GetStaffByID(ctx, stf.ID)
}

func (repo *staffRepository) GetStaffByID(ctx context.Context, id string) (staff.Staff, error) {
	var row staffRow
	q := repo.db.Rebind("SELECT " + staffColumns + " FROM staff WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return staff.Staff{}, trapNoRowsErr(err, staff.ErrNotFound, "finding staff by ID")
	}
	return repo.fromRow(row), nil
}

func (repo *staffRepository) GetStaffByUsernameOrEmail(ctx context.Context, uname string) (staff.Staff, error) {
	var row staffRow
	q := repo.db.Rebind("SELECT " + staffColumns + " FROM staff WHERE username = ? OR email = ?")
	if err := repo.db.GetContext(ctx, &row, q, uname, uname); err != nil {
		return staff.Staff{}, trapNoRowsErr(err, staff.ErrNotFound, "finding staff by username or email")
	}
	return repo.fromRow(row), nil
}

var staffOrderingColumns = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"created_at": "created_at",
}

func (repo *staffRepository) QueryStaff(ctx context.Context, filter *staff.QueryFilter, ordering []core.DBOrdering) ([]staff.Staff, error) {
	orderBy, err := core.OrderBy(ordering, staffOrderingColumns, "created_at DESC")
	if err != nil {
		return nil, err
	}

	w := new(where)
	if filter != nil {
		if filter.Search != "" {
			like := "%" + strings.ToLower(filter.Search) + "%"
			w.add("(LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?)", like, like, like)
		}
		if len(filter.Roles) > 0 {
			// roles are stored comma separated
			conds := make([]string, 0, len(filter.Roles))
			args := make([]interface{}, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				conds = append(conds, "(',' || roles || ',') LIKE ?")
				args = append(args, "%,"+role+",%")
			}
			w.add("("+strings.Join(conds, " OR ")+")", args...)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}

	var rows []staffRow
	q := repo.db.Rebind("SELECT " + staffColumns + " FROM staff" + w.String() + orderBy + ", id ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying staff")
	}
	members := make([]staff.Staff, 0, len(rows))
	for _, row := range rows {
		members = append(members, repo.fromRow(row))
	}
	return members, nil
}

func (repo *staffRepository) UpdateStaff(ctx context.Context, stf staff.Staff) (staff.Staff, error) {
	q := `UPDATE staff SET
		name = :name, username = :username, email = :email, roles = :roles, is_active = :is_active,
		password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
	WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, repo.toRow(stf))
	if err != nil {
		return staff.Staff{}, errors.Wrap(err, "updating staff")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return staff.Staff{}, staff.ErrNotFound
	}
	return repo.GetStaffByID(ctx, stf.ID)
}
