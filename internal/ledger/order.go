package ledger

import (
	"sort"

	"fintrack/internal/core"
)

// SortNewestFirst orders transactions by date descending. Records sharing a
// date keep the most recently created first.
func SortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date.Time) {
			return txs[i].Date.After(txs[j].Date.Time)
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
