package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

const (
	stateDirName    = "grid_states"
	tradesDirName   = "trades"
	statusFileName  = "system_status.json"
	defaultSaveGap  = 5 * time.Second
	stateFilePerm   = 0o644
	stateDirPerm    = 0o755
	tmpFileSuffix   = ".tmp"
	tradeFileSuffix = ".jsonl"
)

// FileRepository stores strategy state as one JSON document per strategy and
// trade history as one JSON-lines file per strategy. Snapshot writes go
// through a temp file and rename so a crash mid-write never leaves a partial
// document behind.
type FileRepository struct {
	dataDir  string
	logger   *zap.Logger
	throttle *saveThrottle

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Repository = (*FileRepository)(nil)

func NewFileRepository(dataDir string, logger *zap.Logger) (*FileRepository, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, stateDirName), filepath.Join(dataDir, tradesDirName)} {
		if err := os.MkdirAll(dir, stateDirPerm); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	return &FileRepository{
		dataDir:  dataDir,
		logger:   logger,
		throttle: newSaveThrottle(defaultSaveGap),
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// fileLock returns the mutex guarding one file path, creating it on first use.
func (r *FileRepository) fileLock(path string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[path]
	if !ok {
		l = &sync.Mutex{}
		r.locks[path] = l
	}
	return l
}

func (r *FileRepository) statePath(strategyID string) string {
	return filepath.Join(r.dataDir, stateDirName, strategyID+".json")
}

func (r *FileRepository) tradesPath(strategyID string) string {
	return filepath.Join(r.dataDir, tradesDirName, strategyID+tradeFileSuffix)
}

func (r *FileRepository) SaveStrategyState(state *models.StrategyState, force bool) error {
	if state == nil {
		return fmt.Errorf("save strategy state: nil state")
	}
	if !force && !r.throttle.allow(state.StrategyID) {
		return nil
	}
	state.LastUpdate = time.Now()
	return r.writeJSON(r.statePath(state.StrategyID), state)
}

func (r *FileRepository) LoadStrategyState(strategyID string) (*models.StrategyState, error) {
	path := r.statePath(strategyID)
	lock := r.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", strategyID, err)
	}
	var state models.StrategyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", strategyID, err)
	}
	return &state, nil
}

func (r *FileRepository) SaveSystemStatus(status *models.SystemStatus) error {
	return r.writeJSON(filepath.Join(r.dataDir, statusFileName), status)
}

func (r *FileRepository) AppendTrade(trade *models.TradeRecord) error {
	if trade == nil {
		return fmt.Errorf("append trade: nil trade")
	}
	path := r.tradesPath(trade.StrategyID)
	lock := r.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, stateFilePerm)
	if err != nil {
		return fmt.Errorf("open trades %s: %w", trade.StrategyID, err)
	}
	defer f.Close()

	line, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", trade.TradeID, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write trade %s: %w", trade.TradeID, err)
	}
	return nil
}

func (r *FileRepository) LoadTrades(strategyID string) ([]*models.TradeRecord, error) {
	path := r.tradesPath(strategyID)
	lock := r.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trades %s: %w", strategyID, err)
	}
	defer f.Close()

	var trades []*models.TradeRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var trade models.TradeRecord
		if err := json.Unmarshal(line, &trade); err != nil {
			r.logger.Warn("skipping corrupt trade record",
				zap.String("strategy_id", strategyID), zap.Error(err))
			continue
		}
		trades = append(trades, &trade)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan trades %s: %w", strategyID, err)
	}
	return trades, nil
}

// writeJSON writes a document to a sibling temp file and renames it over the
// target, serialized per path.
func (r *FileRepository) writeJSON(path string, v any) error {
	lock := r.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + tmpFileSuffix
	if err := os.WriteFile(tmp, data, stateFilePerm); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (r *FileRepository) Close() error {
	return nil
}
