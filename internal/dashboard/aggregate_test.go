package dashboard

import (
	"reflect"
	"testing"

	"fintrack/internal/core"
)

func txn(id string, cents int64, category string, d core.Date) core.Transaction {
	return core.Transaction{ID: id, Description: id, Amount: core.Money{Cents: cents}, Category: category, Date: d}
}

func foodExample() []core.Transaction {
	return []core.Transaction{
		txn("salary", 100000, "Work", core.NewDate(2024, 1, 1)),
		txn("lunch", -10000, "Food", core.NewDate(2024, 1, 2)),
		txn("dinner", -15000, "Food", core.NewDate(2024, 1, 3)),
	}
}

func TestComputeTotals(t *testing.T) {
	got := ComputeTotals(foodExample())
	want := Totals{
		Income:   core.Money{Cents: 100000},
		Expenses: core.Money{Cents: -25000},
		Balance:  core.Money{Cents: 75000},
	}
	if got != want {
		t.Fatalf("ComputeTotals = %+v, want %+v", got, want)
	}
}

func TestCategoryBreakdown(t *testing.T) {
	t.Run("food example", func(t *testing.T) {
		got := CategoryBreakdown(foodExample())
		want := []CategoryShare{{Category: "Food", Total: core.Money{Cents: 25000}, Count: 2, Percentage: 100}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("CategoryBreakdown = %+v, want %+v", got, want)
		}
	})

	t.Run("sorted by sum", func(t *testing.T) {
		d := core.NewDate(2024, 1, 1)
		got := CategoryBreakdown([]core.Transaction{
			txn("a", -1000, "Fun", d),
			txn("b", -3000, "Rent", d),
			txn("c", 5000, "Work", d),
		})
		if len(got) != 2 || got[0].Category != "Rent" || got[1].Category != "Fun" {
			t.Fatalf("unexpected order: %+v", got)
		}
		if got[0].Percentage != 75 || got[1].Percentage != 25 {
			t.Fatalf("unexpected percentages: %+v", got)
		}
	})

	t.Run("no expenses", func(t *testing.T) {
		got := CategoryBreakdown([]core.Transaction{txn("a", 100, "Work", core.NewDate(2024, 1, 1))})
		if len(got) != 0 {
			t.Fatalf("expected empty breakdown, got %+v", got)
		}
	})
}

func TestRunningBalance(t *testing.T) {
	in := []core.Transaction{
		txn("dinner", -15000, "Food", core.NewDate(2024, 1, 3)),
		txn("salary", 100000, "Work", core.NewDate(2024, 1, 1)),
		txn("lunch", -10000, "Food", core.NewDate(2024, 1, 2)),
	}
	snapshot := append([]core.Transaction(nil), in...)

	got := RunningBalance(in)
	wantIDs := []string{"salary", "lunch", "dinner"}
	wantBalances := []int64{100000, 90000, 75000}
	wantKinds := []string{KindIncome, KindExpense, KindExpense}
	for i := range wantIDs {
		if got[i].TransactionID != wantIDs[i] || got[i].Balance.Cents != wantBalances[i] || got[i].Kind != wantKinds[i] {
			t.Errorf("point %d = %+v", i, got[i])
		}
	}
	if !reflect.DeepEqual(in, snapshot) {
		t.Fatal("input was modified")
	}
}

func TestTopN(t *testing.T) {
	txs := foodExample()
	tests := []struct {
		n    int
		want []string
	}{
		{0, []string{}},
		{2, []string{"salary", "dinner"}},
		{10, []string{"salary", "dinner", "lunch"}},
	}
	for _, tt := range tests {
		got := TopN(txs, tt.n)
		ids := make([]string, 0, len(got))
		for _, tx := range got {
			ids = append(ids, tx.ID)
		}
		if !reflect.DeepEqual(ids, tt.want) {
			t.Errorf("TopN(%d) = %v, want %v", tt.n, ids, tt.want)
		}
	}
	if txs[0].ID != "salary" || txs[1].ID != "lunch" {
		t.Fatal("input was reordered")
	}
}

func TestMonthlyTrend(t *testing.T) {
	got := MonthlyTrend([]core.Transaction{
		txn("feb", -500, "Food", core.NewDate(2024, 2, 10)),
		txn("jan-in", 2000, "Work", core.NewDate(2024, 1, 5)),
		txn("jan-out", -700, "Food", core.NewDate(2024, 1, 20)),
	})
	want := []MonthTrend{
		{Month: "2024-01", Income: core.Money{Cents: 2000}, Expenses: core.Money{Cents: -700}, Net: core.Money{Cents: 1300}},
		{Month: "2024-02", Expenses: core.Money{Cents: -500}, Net: core.Money{Cents: -500}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MonthlyTrend = %+v, want %+v", got, want)
	}
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name     string
		income   int64
		expenses int64
		score    int
		level    string
	}{
		{"empty ledger", 0, 0, 50, "Fair"},
		{"high saver", 100000, -25000, 90, "Excellent"},
		{"modest saver", 100000, -85000, 65, "Good"},
		{"thin margin", 100000, -95000, 55, "Fair"},
		{"overspending", 100000, -120000, 50, "Fair"},
		{"no income", 0, -1000, 50, "Fair"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HealthScore(Totals{Income: core.Money{Cents: tt.income}, Expenses: core.Money{Cents: tt.expenses}})
			if h.Score != tt.score || h.Level != tt.level {
				t.Errorf("HealthScore = %+v, want %d/%s", h, tt.score, tt.level)
			}
		})
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, 5)
	if s.Totals != (Totals{}) || len(s.Categories) != 0 || len(s.RunningBalance) != 0 || len(s.Top) != 0 {
		t.Fatalf("unexpected summary for empty input: %+v", s)
	}
}
