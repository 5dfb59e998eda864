package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	Weekly  RepeatInterval = "weekly"
	Monthly RepeatInterval = "monthly"
)

const (
	maxDescriptionLen = 200
	maxCategoryLen    = 100
)

type (
	RepeatInterval string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single ledger entry. When IsRecurring is set the record
	// is a template and its Date is the anchor of the recurrence.
	Transaction struct {
		ID             string
		OwnerID        string
		Description    string
		Amount         Money
		Date           Date
		Category       string
		IsRecurring    bool
		RepeatInterval RepeatInterval // empty unless IsRecurring
		AttachmentRef  string
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	// TransactionPatch carries the fields of a partial update. Nil fields are
	// left untouched.
	TransactionPatch struct {
		Description    *string
		Amount         *Money
		Date           *Date
		Category       *string
		IsRecurring    *bool
		RepeatInterval *RepeatInterval
		AttachmentRef  *string
	}

	User struct {
		ID           string
		Name         string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
		LastLogin    time.Time
	}
)

// IsValid reports whether the interval is one of the supported recurrences.
func (r RepeatInterval) IsValid() bool {
	switch r {
	case Weekly, Monthly:
		return true
	default:
		return false
	}
}

// ParseRepeatInterval normalizes user input; empty input yields an empty interval.
func ParseRepeatInterval(s string) (RepeatInterval, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	r := RepeatInterval(s)
	if !r.IsValid() {
		return "", NewValidationError("repeatInterval", fmt.Sprintf("invalid repeat interval %q: must be weekly or monthly", s))
	}
	return r, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, NewValidationError("date", "date is required")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, NewValidationError("date", fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", s))
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// LastDayOfMonth returns the number of days in the date's month.
func (d Date) LastDayOfMonth() int {
	return time.Date(d.Year(), d.Time.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsIncome reports whether the transaction is classified as income.
func (t Transaction) IsIncome() bool {
	return t.Amount.Cents >= 0
}

// Validate checks the ledger invariants of a transaction.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return NewValidationError("description", "description is required")
	}
	if len(t.Description) > maxDescriptionLen {
		return NewValidationError("description", fmt.Sprintf("description too long (max %d characters)", maxDescriptionLen))
	}
	if t.Amount.Cents == 0 {
		return NewValidationError("amount", "amount is required and must be non-zero")
	}
	if t.Date.IsZero() {
		return NewValidationError("date", "date is required")
	}
	if strings.TrimSpace(t.Category) == "" {
		return NewValidationError("category", "category is required")
	}
	if len(t.Category) > maxCategoryLen {
		return NewValidationError("category", fmt.Sprintf("category too long (max %d characters)", maxCategoryLen))
	}
	if t.IsRecurring {
		if t.RepeatInterval == "" {
			return NewValidationError("repeatInterval", "repeatInterval is required for recurring transactions")
		}
		if !t.RepeatInterval.IsValid() {
			return NewValidationError("repeatInterval", fmt.Sprintf("invalid repeat interval %q: must be weekly or monthly", t.RepeatInterval))
		}
	} else if t.RepeatInterval != "" {
		return NewValidationError("repeatInterval", "repeatInterval is only allowed on recurring transactions")
	}
	return nil
}

// Normalize trims text fields and drops the repeat interval of
// non-recurring records.
func (t Transaction) Normalize() Transaction {
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	if !t.IsRecurring {
		t.RepeatInterval = ""
	}
	return t
}

// Validate checks the patch on its own. A patch turning recurrence on must
// name the interval in the same request.
func (p TransactionPatch) Validate() error {
	if p.IsRecurring != nil && *p.IsRecurring && (p.RepeatInterval == nil || *p.RepeatInterval == "") {
		return NewValidationError("repeatInterval", "repeatInterval is required for recurring transactions")
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Description == nil && p.Amount == nil && p.Date == nil && p.Category == nil &&
		p.IsRecurring == nil && p.RepeatInterval == nil && p.AttachmentRef == nil
}

// Apply merges the patch into t. Identity fields never change.
func (t Transaction) Apply(p TransactionPatch) Transaction {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.IsRecurring != nil {
		t.IsRecurring = *p.IsRecurring
	}
	if p.RepeatInterval != nil {
		t.RepeatInterval = *p.RepeatInterval
	}
	if p.AttachmentRef != nil {
		t.AttachmentRef = *p.AttachmentRef
	}
	return t.Normalize()
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
