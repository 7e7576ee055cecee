// Package report renders backtest results as terminal tables.
package report

import (
	"fmt"
	"io"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/olekukonko/tablewriter"
)

const dateLayout = "2006-01-02 15:04"

// Summary writes the headline statistics of a run.
func Summary(w io.Writer, title string, res *model.BacktestResult) error {
	if title != "" {
		fmt.Fprintf(w, "\n  %s\n\n", title)
	}

	sharpe := "n/a"
	if res.SharpeRatio != nil {
		sharpe = fmt.Sprintf("%.3f", *res.SharpeRatio)
	}
	winRate := "n/a"
	if res.TotalTrades > 0 {
		winRate = fmt.Sprintf("%.1f%%", float64(res.WinningTrades)/float64(res.TotalTrades)*100)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"Initial capital", money(res.InitialCapital)},
		{"Final capital", money(res.FinalCapital)},
		{"Total P&L", money(res.TotalPnL)},
		{"Total return", fmt.Sprintf("%.2f%%", res.TotalReturn)},
		{"Trades", fmt.Sprintf("%d (%d won, %d lost)", res.TotalTrades, res.WinningTrades, res.LosingTrades)},
		{"Win rate", winRate},
		{"Max drawdown", fmt.Sprintf("%.2f%%", res.MaxDrawdown)},
		{"Sharpe ratio", sharpe},
	}
	if op := res.OpenPosition; op != nil {
		rows = append(rows, []string{
			"Open position",
			fmt.Sprintf("%g @ %s since %s (unrealized %s)", op.Size, money(op.EntryPrice), op.EntryDate.Format(dateLayout), money(op.Unrealized)),
		})
	}
	for _, r := range rows {
		if err := table.Append(r); err != nil {
			return err
		}
	}
	return table.Render()
}

// Trades writes one row per completed trade.
func Trades(w io.Writer, trades []model.SimulatedTrade) error {
	if len(trades) == 0 {
		_, err := fmt.Fprintln(w, "  No completed trades.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Entry", "Entry price", "Exit", "Exit price", "Size", "P&L", "Reason")
	for i, t := range trades {
		err := table.Append([]string{
			fmt.Sprintf("%d", i+1),
			t.EntryDate.Format(dateLayout),
			money(t.EntryPrice),
			t.ExitDate.Format(dateLayout),
			money(t.ExitPrice),
			fmt.Sprintf("%g", t.Size),
			money(t.PnL),
			t.ExitReason,
		})
		if err != nil {
			return err
		}
	}
	return table.Render()
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
