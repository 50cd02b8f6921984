package main

import (
	"context"
	"fmt"

	"github.com/trezcool/heures/core/staff"
)

func (cli *commandLine) showEditWindow() error {
	minutes, err := cli.settingSvc.EditWindowMinutes(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "edit window: %d minutes\n", minutes)
	return nil
}

// setEditWindow changes the edit window on behalf of the administrator uname.
func (cli *commandLine) setEditWindow(uname string, minutes int) error {
	ctx := context.Background()
	stf, err := cli.staffSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	actor, err := cli.staffSvc.Actor(ctx, stf.ID, staff.RoleAdmin)
	if err != nil {
		return err
	}
	if err := cli.settingSvc.SetEditWindowMinutes(ctx, actor, minutes); err != nil {
		return err
	}
	return cli.showEditWindow()
}
