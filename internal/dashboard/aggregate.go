// Package dashboard derives summary views from a set of transactions.
// Every function is pure: inputs are never modified and results depend only
// on the arguments.
package dashboard

import (
	"sort"

	"fintrack/internal/core"
)

const (
	KindIncome  = "income"
	KindExpense = "expense"
)

type (
	Totals struct {
		Income   core.Money `json:"income"`
		Expenses core.Money `json:"expenses"`
		Balance  core.Money `json:"balance"`
	}

	CategoryShare struct {
		Category   string     `json:"category"`
		Total      core.Money `json:"total"`
		Count      int        `json:"count"`
		Percentage float64    `json:"percentage"`
	}

	BalancePoint struct {
		TransactionID string     `json:"transactionId"`
		Date          core.Date  `json:"date"`
		Description   string     `json:"description"`
		Amount        core.Money `json:"amount"`
		Kind          string     `json:"kind"`
		Balance       core.Money `json:"balance"`
	}

	MonthTrend struct {
		Month    string     `json:"month"` // YYYY-MM
		Income   core.Money `json:"income"`
		Expenses core.Money `json:"expenses"`
		Net      core.Money `json:"net"`
	}

	Health struct {
		Score       int     `json:"score"`
		Level       string  `json:"level"`
		SavingsRate float64 `json:"savingsRate"`
	}

	Summary struct {
		Totals         Totals             `json:"totals"`
		Categories     []CategoryShare    `json:"categories"`
		RunningBalance []BalancePoint     `json:"runningBalance"`
		Top            []core.Transaction `json:"-"`
		Trend          []MonthTrend       `json:"trend"`
		Health         Health             `json:"health"`
	}
)

// Kind classifies an amount; zero counts as income.
func Kind(m core.Money) string {
	if m.Cents >= 0 {
		return KindIncome
	}
	return KindExpense
}

func ComputeTotals(txs []core.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch {
		case tx.Amount.Cents > 0:
			t.Income = t.Income.Add(tx.Amount)
		case tx.Amount.Cents < 0:
			t.Expenses = t.Expenses.Add(tx.Amount)
		}
	}
	t.Balance = t.Income.Add(t.Expenses)
	return t
}

// CategoryBreakdown groups expenses by category, largest share first.
func CategoryBreakdown(txs []core.Transaction) []CategoryShare {
	index := make(map[string]int)
	out := make([]CategoryShare, 0)
	var all int64
	for _, tx := range txs {
		if tx.Amount.Cents >= 0 {
			continue
		}
		abs := tx.Amount.Abs()
		all += abs.Cents
		i, ok := index[tx.Category]
		if !ok {
			i = len(out)
			index[tx.Category] = i
			out = append(out, CategoryShare{Category: tx.Category})
		}
		out[i].Total = out[i].Total.Add(abs)
		out[i].Count++
	}
	for i := range out {
		if all > 0 {
			out[i].Percentage = float64(out[i].Total.Cents) / float64(all) * 100
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total.Cents != out[j].Total.Cents {
			return out[i].Total.Cents > out[j].Total.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// RunningBalance orders transactions by date ascending and accumulates their
// signed amounts.
func RunningBalance(txs []core.Transaction) []BalancePoint {
	sorted := make([]core.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date.Time) {
			return sorted[i].Date.Before(sorted[j].Date.Time)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	out := make([]BalancePoint, 0, len(sorted))
	var running core.Money
	for _, tx := range sorted {
		running = running.Add(tx.Amount)
		out = append(out, BalancePoint{
			TransactionID: tx.ID,
			Date:          tx.Date,
			Description:   tx.Description,
			Amount:        tx.Amount,
			Kind:          Kind(tx.Amount),
			Balance:       running,
		})
	}
	return out
}

// TopN returns the n transactions with the largest absolute amount.
func TopN(txs []core.Transaction, n int) []core.Transaction {
	if n <= 0 {
		return []core.Transaction{}
	}
	sorted := make([]core.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.Abs().Cents > sorted[j].Amount.Abs().Cents
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// MonthlyTrend buckets income and expenses per calendar month, oldest first.
func MonthlyTrend(txs []core.Transaction) []MonthTrend {
	index := make(map[string]int)
	out := make([]MonthTrend, 0)
	for _, tx := range txs {
		key := tx.Date.Format("2006-01")
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, MonthTrend{Month: key})
		}
		if tx.Amount.Cents > 0 {
			out[i].Income = out[i].Income.Add(tx.Amount)
		} else {
			out[i].Expenses = out[i].Expenses.Add(tx.Amount)
		}
		out[i].Net = out[i].Net.Add(tx.Amount)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// HealthScore rates savings behaviour on a 0-100 scale.
func HealthScore(t Totals) Health {
	income := t.Income.Cents
	expenses := t.Expenses.Abs().Cents

	var rate float64
	if income > 0 {
		rate = float64(income-expenses) / float64(income) * 100
	}

	score := 50
	switch {
	case rate > 20:
		score += 25
	case rate > 10:
		score += 15
	case rate > 0:
		score += 5
	}
	if income > expenses*3 {
		score += 15
	}
	score = min(100, max(0, score))

	return Health{Score: score, Level: healthLevel(score), SavingsRate: rate}
}

func healthLevel(score int) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Fair"
	default:
		return "Needs Work"
	}
}

// Summarize computes every view at once.
func Summarize(txs []core.Transaction, topN int) Summary {
	totals := ComputeTotals(txs)
	return Summary{
		Totals:         totals,
		Categories:     CategoryBreakdown(txs),
		RunningBalance: RunningBalance(txs),
		Top:            TopN(txs, topN),
		Trend:          MonthlyTrend(txs),
		Health:         HealthScore(totals),
	}
}
