package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/hedge"
	"grid-hedge-bot-go/internal/models"
	"grid-hedge-bot-go/internal/store"
	"grid-hedge-bot-go/internal/strategy"
	"grid-hedge-bot-go/internal/venue"
)

// shutdownWait bounds how long the scheduler waits for strategy loops to
// drain. Loops past the deadline are abandoned; their in-flight calls may
// still complete and are ignored.
const shutdownWait = 5 * time.Second

// StatusSink receives the periodic system snapshot. The reporter implements
// it for console rendering.
type StatusSink interface {
	Publish(status *models.SystemStatus)
}

// VenueSet is the scheduler's view of the venue layer. venue.Manager
// satisfies it.
type VenueSet interface {
	Init() error
	Primary() venue.Gateway
	Futures() venue.Gateway
	HedgeVenues() []venue.Gateway
	Count() int
	Close()
}

// Scheduler boots the venues, restores and runs every configured strategy in
// its own goroutine, and executes the ordered shutdown sequence.
type Scheduler struct {
	cfg    *models.Config
	venues VenueSet
	repo   store.Repository
	logger *zap.Logger
	sink   StatusSink

	hedger      *hedge.Coordinator
	recorder    *store.TradeRecorder
	controllers []*strategy.Controller

	startTime time.Time
	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewScheduler(cfg *models.Config, venues VenueSet, repo store.Repository, sink StatusSink, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		venues: venues,
		repo:   repo,
		sink:   sink,
		logger: logger,
	}
}

// Init connects the venues and constructs one controller per configured
// strategy. A strategy that fails to construct is logged and omitted; the
// scheduler aborts only when no venue or no strategy survives.
func (s *Scheduler) Init(ctx context.Context) error {
	if err := s.venues.Init(); err != nil {
		return fmt.Errorf("venue init: %w", err)
	}

	s.hedger = hedge.NewCoordinator(s.venues, s.logger)
	s.recorder = store.NewTradeRecorder(s.repo, s.logger)

	for _, sc := range s.cfg.Strategies {
		saved, err := s.repo.LoadStrategyState(sc.ID)
		if err != nil {
			s.logger.Warn("saved state unreadable, starting fresh",
				zap.String("strategy_id", sc.ID), zap.Error(err))
			saved = nil
		}
		ctrl, err := strategy.NewController(ctx, sc, s.tradingVenue(sc), s.hedger, s.recorder, s.repo, s.logger, saved)
		if err != nil {
			s.logger.Error("strategy construction failed, omitting",
				zap.String("strategy_id", sc.ID), zap.Error(err))
			continue
		}
		s.controllers = append(s.controllers, ctrl)
	}
	if len(s.controllers) == 0 {
		return fmt.Errorf("no strategy could be started")
	}

	s.logger.Info("scheduler initialized",
		zap.Int("venues", s.venues.Count()),
		zap.Int("strategies", len(s.controllers)))
	return nil
}

// tradingVenue resolves the venue a strategy trades on: the futures venue
// for futures-flagged strategies when one is connected, the primary
// otherwise.
func (s *Scheduler) tradingVenue(sc models.StrategyConfig) venue.Gateway {
	if sc.IsFuture {
		if gw := s.venues.Futures(); gw != nil {
			return gw
		}
		s.logger.Warn("futures strategy but no futures venue connected, using primary",
			zap.String("strategy_id", sc.ID))
	}
	return s.venues.Primary()
}

// Start launches one polling loop per strategy plus the status-snapshot
// loop. It returns immediately; Shutdown stops everything.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startTime = time.Now()
	s.running.Store(true)

	for _, ctrl := range s.controllers {
		s.wg.Add(1)
		go s.runStrategy(runCtx, ctrl)
	}

	s.wg.Add(1)
	go s.runStatusLoop(runCtx)
}

// runStrategy is one strategy's polling loop: update, then sleep. Cycles for
// the same strategy never overlap.
func (s *Scheduler) runStrategy(ctx context.Context, ctrl *strategy.Controller) {
	defer s.wg.Done()
	for s.running.Load() {
		if err := ctrl.Update(ctx); err != nil {
			s.logger.Error("update cycle failed",
				zap.String("strategy_id", ctrl.ID()), zap.Error(err))
		}
		if !sleepCtx(ctx, s.cfg.System.UpdateInterval) {
			return
		}
	}
}

// runStatusLoop periodically aggregates and persists the system snapshot.
func (s *Scheduler) runStatusLoop(ctx context.Context) {
	defer s.wg.Done()
	for s.running.Load() {
		if !sleepCtx(ctx, s.cfg.System.StatusInterval) {
			return
		}
		status := s.SystemStatus()
		if err := s.repo.SaveSystemStatus(status); err != nil {
			s.logger.Error("failed to persist system status", zap.Error(err))
		}
		if s.sink != nil {
			s.sink.Publish(status)
		}
	}
}

// SystemStatus builds the aggregate snapshot across all strategies.
func (s *Scheduler) SystemStatus() *models.SystemStatus {
	status := &models.SystemStatus{
		Timestamp:  time.Now(),
		Uptime:     time.Since(s.startTime),
		Strategies: make([]models.StrategyStatus, 0, len(s.controllers)),
	}
	for _, ctrl := range s.controllers {
		status.Strategies = append(status.Strategies, ctrl.Status())
	}
	return status
}

// Shutdown runs the ordered stop sequence. Every phase is best-effort: a
// failure in one strategy or venue never blocks the rest.
//
// Order: stop the loops, cancel outstanding orders per strategy, drain the
// background goroutines with a bounded wait, persist final states, close
// the venues.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.logger.Info("shutdown started")
	s.running.Store(false)

	var cancelWG sync.WaitGroup
	for _, ctrl := range s.controllers {
		cancelWG.Add(1)
		go func(c *strategy.Controller) {
			defer cancelWG.Done()
			c.Shutdown(ctx)
		}(ctrl)
	}
	cancelWG.Wait()

	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownWait):
		s.logger.Warn("strategy loops did not drain in time, abandoning")
	}

	for _, ctrl := range s.controllers {
		if err := ctrl.Persist(); err != nil {
			s.logger.Error("failed to persist final state",
				zap.String("strategy_id", ctrl.ID()), zap.Error(err))
		}
	}

	s.venues.Close()
	s.logger.Info("shutdown complete")
}

// Controllers exposes the running controllers for inspection.
func (s *Scheduler) Controllers() []*strategy.Controller { return s.controllers }

// sleepCtx sleeps for d unless the context ends first; it reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
