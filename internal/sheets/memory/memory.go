package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

// Journal keeps journal entries in process. Used when Google Sheets is not
// configured and in tests.
type Journal struct {
	mu      sync.Mutex
	entries []ports.JournalEntry
}

var (
	_ ports.JournalWriter = (*Journal)(nil)
	_ ports.JournalReader = (*Journal)(nil)
)

func New() *Journal {
	return &Journal{}
}

// AppendEntry stores the entry and returns a synthetic row reference.
func (j *Journal) AppendEntry(_ context.Context, e ports.JournalEntry) (string, error) {
	if e.TransactionID == "" {
		return "", core.NewValidationError("transactionId", "journal entry requires a transaction id")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return fmt.Sprintf("mem:%d", len(j.entries)), nil
}

func (j *Journal) Entries(_ context.Context) ([]ports.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]ports.JournalEntry(nil), j.entries...), nil
}
