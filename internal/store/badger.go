package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

const (
	stateKeyPrefix = "grid_state/"
	tradeKeyPrefix = "trade/"
	statusKey      = "system_status"
)

// BadgerRepository is the BadgerDB implementation of the Repository. Strategy
// snapshots live under one key per strategy; trades live under a per-strategy
// prefix keyed by trade id so prefix iteration returns them in append order.
type BadgerRepository struct {
	db       *badger.DB
	logger   *zap.Logger
	throttle *saveThrottle
}

var _ Repository = (*BadgerRepository)(nil)

func NewBadgerRepository(dbPath string, logger *zap.Logger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Errors still surface from DB operations; Badger's own chatter does not.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dbPath, err)
	}
	return &BadgerRepository{
		db:       db,
		logger:   logger,
		throttle: newSaveThrottle(defaultSaveGap),
	}, nil
}

func stateKey(strategyID string) []byte {
	return []byte(stateKeyPrefix + strategyID)
}

func tradeKey(strategyID, tradeID string) []byte {
	return []byte(tradeKeyPrefix + strategyID + "/" + tradeID)
}

func (r *BadgerRepository) SaveStrategyState(state *models.StrategyState, force bool) error {
	if state == nil {
		return fmt.Errorf("save strategy state: nil state")
	}
	if !force && !r.throttle.allow(state.StrategyID) {
		return nil
	}
	state.LastUpdate = time.Now()
	return r.setJSON(stateKey(state.StrategyID), state)
}

func (r *BadgerRepository) LoadStrategyState(strategyID string) (*models.StrategyState, error) {
	var state models.StrategyState
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(strategyID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", strategyID, err)
	}
	return &state, nil
}

func (r *BadgerRepository) SaveSystemStatus(status *models.SystemStatus) error {
	return r.setJSON([]byte(statusKey), status)
}

func (r *BadgerRepository) AppendTrade(trade *models.TradeRecord) error {
	if trade == nil {
		return fmt.Errorf("append trade: nil trade")
	}
	return r.setJSON(tradeKey(trade.StrategyID, trade.TradeID), trade)
}

func (r *BadgerRepository) LoadTrades(strategyID string) ([]*models.TradeRecord, error) {
	prefix := []byte(tradeKeyPrefix + strategyID + "/")
	var trades []*models.TradeRecord
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var trade models.TradeRecord
				if err := json.Unmarshal(val, &trade); err != nil {
					r.logger.Warn("skipping corrupt trade record",
						zap.String("strategy_id", strategyID), zap.Error(err))
					return nil
				}
				trades = append(trades, &trade)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load trades %s: %w", strategyID, err)
	}
	return trades, nil
}

func (r *BadgerRepository) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
