package main

import (
	"context"
	"fmt"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

// addUser creates a staff.Staff holding roles.
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	for i, role := range roles {
		roles[i] = core.CleanString(role, true /* lower */)
	}
	stf, err := cli.staffSvc.Create(context.Background(), staff.NewStaff{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created staff member %s (%s)\n", stf.ID, stf.Name)
	return nil
}
