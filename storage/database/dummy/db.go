// Package dummydb keeps every table in memory. It backs the engine tests and local experiments.
package dummydb

import (
	"sync"

	"github.com/trezcool/heures/core/session"
	"github.com/trezcool/heures/core/setting"
	"github.com/trezcool/heures/core/staff"
)

type (
	DB struct {
		staff   *staffTable
		session *sessionTable
		setting *settingTable
	}

	staffTable struct {
		sync.RWMutex
		table map[string]*staff.Staff
	}

	sessionTable struct {
		sync.RWMutex
		sessions    map[string]*session.Session
		attachments map[string]*session.Attachment
		history     map[string][]session.HistoryEntry

		// failNext makes the next write fail, to exercise storage errors.
		failNext error
	}

	settingTable struct {
		sync.RWMutex
		table map[string]setting.Setting
	}
)

func Open() (*DB, error) {
	db := &DB{
		staff: &staffTable{table: make(map[string]*staff.Staff)},
		session: &sessionTable{
			sessions:    make(map[string]*session.Session),
			attachments: make(map[string]*session.Attachment),
			history:     make(map[string][]session.HistoryEntry),
		},
		setting: &settingTable{table: make(map[string]setting.Setting)},
	}
	return db, nil
}

// FailNextWrite makes the next session write return err.
func (db *DB) FailNextWrite(err error) {
	db.session.Lock()
	db.session.failNext = err
	db.session.Unlock()
}
