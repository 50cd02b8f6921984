package dummydb

import (
	"context"

	"github.com/trezcool/heures/core/setting"
)

type settingRepository struct {
	db *settingTable
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *DB) setting.Repository {
	return &settingRepository{db: db.setting}
}

func (repo *settingRepository) GetSetting(_ context.Context, key string) (setting.Setting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.table[key]; ok {
		return s, nil
	}
	return setting.Setting{}, setting.ErrNotFound
}

func (repo *settingRepository) PutSetting(_ context.Context, s setting.Setting) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[s.Key] = s
	return nil
}
