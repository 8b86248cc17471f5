package journal

import (
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the closed-trade history. Computed only from CLOSED rows;
// an empty journal yields a zeroed struct, never an error.
type Stats struct {
	TotalTrades   int       `json:"total_trades"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	WinRate       float64   `json:"win_rate"` // percent
	TotalPnL      float64   `json:"total_pnl"`
	AvgPnL        float64   `json:"avg_pnl"`
	AvgRMultiple  float64   `json:"avg_r_multiple"`
	BestTrade     float64   `json:"best_trade"`
	WorstTrade    float64   `json:"worst_trade"`
	MaxDrawdown   float64   `json:"max_drawdown"` // worst peak-to-trough on the cumulative PnL curve
	CumulativePnL []float64 `json:"cumulative_pnl,omitempty"`
}

// Analyze computes summary stats over the closed entries, which must be
// ordered by exit time ascending (ClosedEntries guarantees this).
func Analyze(closed []Entry) Stats {
	if len(closed) == 0 {
		return Stats{}
	}

	pnls := make([]float64, len(closed))
	rs := make([]float64, 0, len(closed))
	stats := Stats{
		TotalTrades: len(closed),
		BestTrade:   closed[0].PnLDollars,
		WorstTrade:  closed[0].PnLDollars,
	}

	for i, e := range closed {
		pnls[i] = e.PnLDollars
		if e.PnLDollars > 0 {
			stats.Wins++
		} else {
			stats.Losses++
		}
		if e.PnLDollars > stats.BestTrade {
			stats.BestTrade = e.PnLDollars
		}
		if e.PnLDollars < stats.WorstTrade {
			stats.WorstTrade = e.PnLDollars
		}
		if e.RiskDollars > 0 {
			rs = append(rs, e.RMultiple)
		}
	}

	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
	stats.AvgPnL = stat.Mean(pnls, nil)
	if len(rs) > 0 {
		stats.AvgRMultiple = stat.Mean(rs, nil)
	}

	// Cumulative PnL curve and its worst drawdown (running peak minus
	// running cumulative).
	stats.CumulativePnL = make([]float64, len(pnls))
	var cum, peak float64
	for i, p := range pnls {
		cum += p
		stats.CumulativePnL[i] = cum
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > stats.MaxDrawdown {
			stats.MaxDrawdown = dd
		}
	}
	stats.TotalPnL = cum

	return stats
}
