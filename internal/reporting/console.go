package reporting

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/crypto-signal-trader/internal/agent"
)

// PrintTradingStats renders the operator stats summary to stdout.
func PrintTradingStats(stats agent.TradingStats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADING STATS")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Total Orders", stats.Orders.Total},
		{"Active", stats.Orders.Active},
		{"Filled", stats.Orders.Filled},
		{"Cancelled", stats.Orders.Cancelled},
		{"Failed", stats.Orders.Failed},
		{"Success Rate", fmt.Sprintf("%.1f%%", stats.Orders.SuccessRate*100)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Portfolio Value", fmt.Sprintf("$%.2f", stats.Risk.PortfolioValue)},
		{"High-Water Mark", fmt.Sprintf("$%.2f", stats.Risk.MaxPortfolioValue)},
		{"Daily Trades", stats.Risk.DailyTrades},
		{"Daily PnL", fmt.Sprintf("$%.2f", stats.Risk.DailyPnL)},
		{"Open Positions", stats.Risk.OpenPositions},
		{"Circuit Breaker", string(stats.Risk.Breaker)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 15, Align: text.AlignRight},
	})

	t.Render()
	fmt.Println()
}
