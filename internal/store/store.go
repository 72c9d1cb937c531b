// Package store implements the account-state and trade repositories on gorm.
package store

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"apolo/internal/ledger"
	"apolo/internal/state"
	"apolo/pkg/exception"
)

// Migrate creates or updates the account_states, trades and legs tables.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return exception.ErrStoreNilDB
	}
	if err := db.AutoMigrate(&accountStateModel{}, &tradeModel{}, &legModel{}); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	return nil
}

// AccountRepository is the append-only account-state series.
type AccountRepository struct {
	db *gorm.DB
}

var _ state.Repository = (*AccountRepository)(nil)

func NewAccountRepository(db *gorm.DB) (*AccountRepository, error) {
	if db == nil {
		return nil, exception.ErrStoreNilDB
	}
	return &AccountRepository{db: db}, nil
}

func (r *AccountRepository) Latest(ctx context.Context) (state.AccountState, bool, error) {
	var m accountStateModel
	err := r.db.WithContext(ctx).
		Order("timestamp_ns DESC").
		Order("id DESC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return state.AccountState{}, false, nil
	}
	if err != nil {
		return state.AccountState{}, false, errors.Wrap(err, "query latest account state")
	}
	return m.domain(), true, nil
}

// Append validates s and inserts it in its own transaction.
func (r *AccountRepository) Append(ctx context.Context, s state.AccountState) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m := newAccountStateModel(s)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return errors.Wrap(err, "insert account state")
		}
		return nil
	})
}

// History returns the most recent limit snapshots, newest first.
func (r *AccountRepository) History(ctx context.Context, limit int) ([]state.AccountState, error) {
	var models []accountStateModel
	q := r.db.WithContext(ctx).Order("timestamp_ns DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "query account history")
	}
	out := make([]state.AccountState, 0, len(models))
	for _, m := range models {
		out = append(out, m.domain())
	}
	return out, nil
}

// TradeRepository stores trades with their legs.
type TradeRepository struct {
	db *gorm.DB
}

var _ ledger.TradeStore = (*TradeRepository)(nil)

func NewTradeRepository(db *gorm.DB) (*TradeRepository, error) {
	if db == nil {
		return nil, exception.ErrStoreNilDB
	}
	return &TradeRepository{db: db}, nil
}

func (r *TradeRepository) CreateTrade(ctx context.Context, t ledger.Trade) error {
	m := newTradeModel(t)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return errors.Wrapf(err, "insert trade %s", t.ID)
		}
		return nil
	})
}

func (r *TradeRepository) GetTrade(ctx context.Context, id string) (ledger.Trade, error) {
	var m tradeModel
	err := r.withLegs(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Trade{}, errors.Wrapf(exception.ErrTradeNotFound, "id: %s", id)
	}
	if err != nil {
		return ledger.Trade{}, errors.Wrapf(err, "query trade %s", id)
	}
	return m.domain(), nil
}

// UpdateTrade rewrites the trade row and replaces its legs.
func (r *TradeRepository) UpdateTrade(ctx context.Context, t ledger.Trade) error {
	m := newTradeModel(t)
	legs := m.Legs
	m.Legs = nil
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&tradeModel{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
			return errors.Wrapf(err, "count trade %s", t.ID)
		}
		if count == 0 {
			return errors.Wrapf(exception.ErrTradeNotFound, "id: %s", t.ID)
		}
		if err := tx.Omit(clause.Associations).Save(&m).Error; err != nil {
			return errors.Wrapf(err, "update trade %s", t.ID)
		}
		if err := tx.Where("trade_id = ?", t.ID).Delete(&legModel{}).Error; err != nil {
			return errors.Wrapf(err, "delete legs of %s", t.ID)
		}
		if len(legs) == 0 {
			return nil
		}
		if err := tx.Create(&legs).Error; err != nil {
			return errors.Wrapf(err, "insert legs of %s", t.ID)
		}
		return nil
	})
}

func (r *TradeRepository) ListTrades(ctx context.Context, status ledger.TradeStatus) ([]ledger.Trade, error) {
	var models []tradeModel
	q := r.withLegs(ctx).Order("entry_time_ns DESC").Order("id ASC")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	out := make([]ledger.Trade, 0, len(models))
	for _, m := range models {
		out = append(out, m.domain())
	}
	return out, nil
}

func (r *TradeRepository) withLegs(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Legs", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	})
}
