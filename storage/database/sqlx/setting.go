package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/heures/core/setting"
)

type settingRow struct {
	Key       string      `db:"setting_key"`
	Value     string      `db:"setting_value"`
	UpdatedAt time.Time   `db:"updated_at"`
	UpdatedBy null.String `db:"updated_by"`
}

type settingRepository struct {
	db *sqlx.DB
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *sqlx.DB) setting.Repository {
	return &settingRepository{db: db}
}

func (repo *settingRepository) GetSetting(ctx context.Context, key string) (setting.Setting, error) {
	var row settingRow
	q := repo.db.Rebind("SELECT setting_key, setting_value, updated_at, updated_by FROM system_setting WHERE setting_key = ?")
	if err := repo.db.GetContext(ctx, &row, q, key); err != nil {
		return setting.Setting{}, trapNoRowsErr(err, setting.ErrNotFound, "finding setting")
	}
	return setting.Setting{
		Key:       row.Key,
		Value:     row.Value,
		UpdatedAt: row.UpdatedAt.UTC(),
		UpdatedBy: row.UpdatedBy.String,
	}, nil
}

// PutSetting upserts s. ON CONFLICT ... DO UPDATE is understood by both postgres and sqlite.
func (repo *settingRepository) PutSetting(ctx context.Context, s setting.Setting) error {
	q := `INSERT INTO system_setting (setting_key, setting_value, updated_at, updated_by)
		VALUES (:setting_key, :setting_value, :updated_at, :updated_by)
		ON CONFLICT (setting_key) DO UPDATE SET
			setting_value = EXCLUDED.setting_value, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by`
	row := settingRow{
		Key:       s.Key,
		Value:     s.Value,
		UpdatedAt: s.UpdatedAt.UTC(),
		UpdatedBy: null.NewString(s.UpdatedBy, s.UpdatedBy != ""),
	}
	_, err := repo.db.NamedExecContext(ctx, q, row)
	return errors.Wrap(err, "storing setting")
}
