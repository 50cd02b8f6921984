package main

import (
	"context"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	stf, err := cli.staffSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.staffSvc.SetPassword(ctx, stf, pwd)
	return err
}
