package reporter

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

// Reporter renders the periodic system snapshot as a console table.
type Reporter struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Reporter {
	return &Reporter{logger: logger}
}

// Publish writes one status table to stdout.
func (r *Reporter) Publish(status *models.SystemStatus) {
	if status == nil || len(status.Strategies) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("System Status  |  uptime %s", status.Uptime.Round(time.Second))
	t.AppendHeader(table.Row{
		"Strategy", "Pair", "Range", "Levels", "Investment",
		"Realized Profit", "Trades", "Active Orders",
	})
	for _, s := range status.Strategies {
		t.AppendRow(table.Row{
			s.StrategyID,
			s.TradingPair,
			s.StartPrice.String() + " - " + s.EndPrice.String(),
			s.GridLevels,
			s.TotalInvestment.String(),
			s.RealizedProfit.String(),
			s.CompletedTrades,
			s.ActiveOrders,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()

	r.logger.Debug("status snapshot rendered",
		zap.Int("strategies", len(status.Strategies)))
}
