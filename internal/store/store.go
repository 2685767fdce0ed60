package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflicting write")
)

// Tx is the view of the store inside RunAtomic. Everything done through a
// Tx commits together or not at all.
type Tx interface {
	Account(uid string) (Account, error)
	PutAccount(a Account) error
	PutSchedule(l ScheduleLog) error
	DeleteAccount(uid string) error
	DeleteSchedule(id string) error
}

// Gorm is the transactional store client over a gorm database.
type Gorm struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Gorm {
	return &Gorm{DB: db}
}

func (s *Gorm) RunAtomic(ctx context.Context, fn func(tx Tx) error) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	return translate(err)
}

func (s *Gorm) Account(ctx context.Context, uid string) (Account, error) {
	var a Account
	err := s.DB.WithContext(ctx).Where("uid = ?", uid).First(&a).Error
	return a, translate(err)
}

// Schedule loads a log with its records in serial order.
func (s *Gorm) Schedule(ctx context.Context, id string) (ScheduleLog, error) {
	var l ScheduleLog
	err := s.DB.WithContext(ctx).
		Preload("Records", func(db *gorm.DB) *gorm.DB { return db.Order("serial_num asc") }).
		Where("id = ?", id).
		First(&l).Error
	return l, translate(err)
}

func (s *Gorm) SetDarkMode(ctx context.Context, uid string, v bool) error {
	res := s.DB.WithContext(ctx).Model(&Account{}).Where("uid = ?", uid).Update("dark_mode", v)
	return affected(res)
}

func (s *Gorm) SetSharing(ctx context.Context, scheduleID string, v bool) error {
	res := s.DB.WithContext(ctx).Model(&ScheduleLog{}).Where("id = ?", scheduleID).Update("sharing", v)
	return affected(res)
}

// AppendRecord assigns the next serial number and inserts the record in one
// transaction. The schedule row is locked so concurrent appends to a shared
// log serialise instead of reusing a serial.
func (s *Gorm) AppendRecord(ctx context.Context, scheduleID string, d RecordDraft) (ActivityRecord, error) {
	var rec ActivityRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l ScheduleLog
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", scheduleID).
			First(&l).Error; err != nil {
			return err
		}

		var max sql.NullInt64
		if err := tx.Model(&ActivityRecord{}).
			Select("MAX(serial_num)").
			Where("schedule_id = ?", scheduleID).
			Row().Scan(&max); err != nil {
			return err
		}
		serial := int64(0)
		if max.Valid {
			serial = max.Int64 + 1
		}

		rec = ActivityRecord{
			ID:          RecordID(scheduleID, serial),
			ScheduleID:  scheduleID,
			SerialNum:   serial,
			AuthorEmail: d.AuthorEmail,
			Title:       d.Title,
			Notes:       d.Notes,
			StartedAt:   d.StartedAt.UTC(),
			EndedAt:     d.EndedAt.UTC(),
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return tx.Model(&l).Update("updated_at", time.Now().UTC()).Error
	})
	if err != nil {
		return ActivityRecord{}, translate(err)
	}
	return rec, nil
}

// RecordID is the schedule id concatenated with the serial number.
func RecordID(scheduleID string, serial int64) string {
	return scheduleID + strconv.FormatInt(serial, 10)
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Account(uid string) (Account, error) {
	var a Account
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("uid = ?", uid).First(&a).Error
	return a, translate(err)
}

func (t *gormTx) PutAccount(a Account) error {
	return translate(t.db.Create(&a).Error)
}

func (t *gormTx) PutSchedule(l ScheduleLog) error {
	return translate(t.db.Omit(clause.Associations).Create(&l).Error)
}

func (t *gormTx) DeleteAccount(uid string) error {
	return affected(t.db.Where("uid = ?", uid).Delete(&Account{}))
}

// DeleteSchedule removes the log and its records.
func (t *gormTx) DeleteSchedule(id string) error {
	if err := t.db.Where("schedule_id = ?", id).Delete(&ActivityRecord{}).Error; err != nil {
		return translate(err)
	}
	return affected(t.db.Where("id = ?", id).Delete(&ScheduleLog{}))
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
