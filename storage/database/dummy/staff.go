package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

type staffRepository struct {
	db *staffTable
}

var _ staff.Repository = (*staffRepository)(nil) // interface compliance check

func NewStaffRepository(db *DB) staff.Repository {
	return &staffRepository{db: db.staff}
}

func (repo *staffRepository) query() []staff.Staff {
	members := make([]staff.Staff, 0, len(repo.db.table))
	for _, stf := range repo.db.table {
		members = append(members, cloneStaff(*stf))
	}
	return members
}

func cloneStaff(stf staff.Staff) staff.Staff {
	stf.Roles = append([]string(nil), stf.Roles...)
	stf.PasswordHash = append([]byte(nil), stf.PasswordHash...)
	return stf
}

func (repo *staffRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, stf := range repo.db.table {
		if core.StringInSlice(stf.ID, excludedIDs) {
			continue
		}
		if username != "" && stf.Username == username {
			return staff.ErrUsernameExists
		}
		if email != "" && stf.Email == email {
			return staff.ErrEmailExists
		}
	}
	return nil
}

func (repo *staffRepository) CreateStaff(_ context.Context, stf staff.Staff) (staff.Staff, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if stf.ID == "" {
		stf.ID = uuid.NewString()
	}
	stf = cloneStaff(stf)
	repo.db.table[stf.ID] = &stf
	return cloneStaff(stf), nil
}

func (repo *staffRepository) GetStaffByID(_ context.Context, id string) (staff.Staff, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if stf, ok := repo.db.table[id]; ok {
		return cloneStaff(*stf), nil
	}
	return staff.Staff{}, staff.ErrNotFound
}

func (repo *staffRepository) GetStaffByUsernameOrEmail(_ context.Context, uname string) (staff.Staff, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if uname == "" {
		return staff.Staff{}, staff.ErrNotFound
	}
	for _, stf := range repo.db.table {
		if stf.Username == uname || stf.Email == uname {
			return cloneStaff(*stf), nil
		}
	}
	return staff.Staff{}, staff.ErrNotFound
}

func (repo *staffRepository) QueryStaff(_ context.Context, filter *staff.QueryFilter, ordering []core.DBOrdering) ([]staff.Staff, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	members := repo.query()
	if filter == nil {
		filter = new(staff.QueryFilter)
	}

	filtered := members[:0]
	search := strings.ToLower(filter.Search)
	for _, stf := range members {
		// search keyword matching any Name, Username or Email ?
		if search != "" &&
			!strings.Contains(strings.ToLower(stf.Username), search) &&
			!strings.Contains(strings.ToLower(stf.Email), search) &&
			!strings.Contains(strings.ToLower(stf.Name), search) {
			continue
		}
		// any of the specified roles
		if len(filter.Roles) > 0 {
			var match bool
			for _, r := range filter.Roles {
				if stf.HasRole(r) {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter.IsActive != nil && stf.IsActive != *filter.IsActive {
			continue
		}
		filtered = append(filtered, stf)
	}

	less, err := staffOrdering(ordering)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(filtered, func(i, j int) bool { return less(filtered[i], filtered[j]) })
	return filtered, nil
}

var staffOrderingFields = map[string]string{"name": "name", "username": "username", "email": "email", "created_at": "created_at"}

func staffOrdering(ordering []core.DBOrdering) (func(a, b staff.Staff) bool, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	if _, err := core.OrderBy(ordering, staffOrderingFields, ""); err != nil {
		return nil, err
	}
	return func(a, b staff.Staff) bool {
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "name":
				cmp = strings.Compare(a.Name, b.Name)
			case "username":
				cmp = strings.Compare(a.Username, b.Username)
			case "email":
				cmp = strings.Compare(a.Email, b.Email)
			case "created_at":
				cmp = a.CreatedAt.Compare(b.CreatedAt)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return a.ID < b.ID
	}, nil
}

func (repo *staffRepository) UpdateStaff(_ context.Context, stf staff.Staff) (staff.Staff, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[stf.ID]; !ok {
		return staff.Staff{}, staff.ErrNotFound
	}
	stf = cloneStaff(stf)
	repo.db.table[stf.ID] = &stf
	return cloneStaff(stf), nil
}
