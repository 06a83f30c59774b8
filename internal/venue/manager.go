package venue

import (
	"fmt"

	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

// Manager owns every configured venue connection and resolves the roles the
// rest of the system cares about: the primary venue, the hedge venues, and
// lookups by name or account alias.
type Manager struct {
	configs  []models.VenueConfig
	logger   *zap.Logger
	gateways map[string]Gateway
	order    []string // construction order, for deterministic iteration
	primary  Gateway
	futures  Gateway
}

// NewManager creates an uninitialized manager; call Init to connect.
func NewManager(configs []models.VenueConfig, logger *zap.Logger) *Manager {
	return &Manager{
		configs:  configs,
		logger:   logger.Named("venues"),
		gateways: make(map[string]Gateway),
	}
}

// Init connects every configured venue. A venue that fails to connect is
// logged and skipped; Init fails only when no venue at all became usable.
func (m *Manager) Init() error {
	for _, cfg := range m.configs {
		if cfg.APIKey == "" || cfg.APISecret == "" {
			m.logger.Warn("venue config missing credentials, skipping",
				zap.String("venue", venueID(cfg)))
			continue
		}

		gw, err := m.connect(cfg)
		if err != nil {
			m.logger.Error("venue initialization failed",
				zap.String("venue", venueID(cfg)), zap.Error(err))
			continue
		}

		id := gw.Name()
		m.gateways[id] = gw
		m.order = append(m.order, id)
		if cfg.IsPrimary && m.primary == nil {
			m.primary = gw
			m.logger.Info("primary venue set", zap.String("venue", id))
		}
		if cfg.Name == "binance_future" && m.futures == nil {
			m.futures = gw
		}
		m.logger.Info("venue initialized", zap.String("venue", id))
	}

	if len(m.gateways) == 0 {
		return fmt.Errorf("no usable venue connections")
	}
	if m.primary == nil {
		first := m.gateways[m.order[0]]
		m.primary = first
		m.logger.Info("no venue marked primary, using first",
			zap.String("venue", first.Name()))
	}
	return nil
}

func (m *Manager) connect(cfg models.VenueConfig) (Gateway, error) {
	switch cfg.Name {
	case "binance":
		return NewSpotGateway(cfg, m.logger)
	case "binance_future":
		return NewFuturesGateway(cfg, m.logger)
	default:
		return nil, fmt.Errorf("unsupported venue type %q", cfg.Name)
	}
}

// Primary returns the primary venue gateway.
func (m *Manager) Primary() Gateway { return m.primary }

// ByName returns the gateway with the given unique id, or nil.
func (m *Manager) ByName(name string) Gateway { return m.gateways[name] }

// Futures returns the first connected futures venue, or nil. Tracked at Init
// by venue type, so an account alias in the id does not hide it.
func (m *Manager) Futures() Gateway { return m.futures }

// HedgeVenues returns every initialized venue marked is_hedge, in
// configuration order.
func (m *Manager) HedgeVenues() []Gateway {
	var hedges []Gateway
	for _, cfg := range m.configs {
		if !cfg.IsHedge {
			continue
		}
		if gw, ok := m.gateways[venueID(cfg)]; ok {
			hedges = append(hedges, gw)
		}
	}
	return hedges
}

// All returns every initialized gateway in configuration order.
func (m *Manager) All() []Gateway {
	gws := make([]Gateway, 0, len(m.order))
	for _, id := range m.order {
		gws = append(gws, m.gateways[id])
	}
	return gws
}

// Count returns the number of usable venue connections.
func (m *Manager) Count() int { return len(m.gateways) }

// Close shuts down every venue connection, logging failures instead of
// propagating them; shutdown continues regardless.
func (m *Manager) Close() {
	for _, id := range m.order {
		if err := m.gateways[id].Close(); err != nil {
			m.logger.Error("venue close failed", zap.String("venue", id), zap.Error(err))
			continue
		}
		m.logger.Info("venue closed", zap.String("venue", id))
	}
}
