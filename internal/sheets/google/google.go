package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultJournalSheet = "Journal"

// valuesAPI is the subset of the Sheets values API the journal uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Append(ctx context.Context, spreadsheetID, rng string, rows [][]any) (string, error)
}

type Client struct {
	values        valuesAPI
	spreadsheetID string
	// Base name without year (e.g. "Journal"); the year of each entry is prefixed.
	sheetBase string

	mu          sync.Mutex
	initialized map[string]bool
}

var (
	_ ports.JournalWriter = (*Client)(nil)
	_ ports.JournalReader = (*Client)(nil)
)

// NewFromEnv creates a journal client using service account credentials.
// Required: GOOGLE_SPREADSHEET_ID.
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Journal").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(&serviceValues{svc: svc}, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME")), nil
}

// New builds a client over an existing values API.
func New(values valuesAPI, spreadsheetID, sheetBase string) *Client {
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = defaultJournalSheet
	}
	return &Client{
		values:        values,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		initialized:   make(map[string]bool),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling returns an HTTP client with connection pooling
// and bounded timeouts for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// AppendEntry appends e to the journal sheet of the entry's year, writing
// the header first when the sheet is empty.
func (c *Client) AppendEntry(ctx context.Context, e ports.JournalEntry) (string, error) {
	if c.values == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.TransactionID == "" {
		return "", core.NewValidationError("transactionId", "journal entry requires a transaction id")
	}
	sheet := yearPrefixedName(c.sheetBase, e.RecordedAt.UTC().Year())

	rows := [][]any{e.Row()}
	needHeader, err := c.needsHeader(ctx, sheet)
	if err != nil {
		return "", err
	}
	if needHeader {
		rows = append([][]any{ports.Header()}, rows...)
	}

	ref, err := c.values.Append(ctx, c.spreadsheetID, fmt.Sprintf("%s!A:J", sheet), rows)
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	c.mu.Lock()
	c.initialized[sheet] = true
	c.mu.Unlock()
	return ref, nil
}

func (c *Client) needsHeader(ctx context.Context, sheet string) (bool, error) {
	c.mu.Lock()
	done := c.initialized[sheet]
	c.mu.Unlock()
	if done {
		return false, nil
	}
	values, err := c.values.Get(ctx, c.spreadsheetID, fmt.Sprintf("%s!A1:A1", sheet))
	if err != nil {
		return false, fmt.Errorf("read header of %s: %w", sheet, err)
	}
	return len(values) == 0, nil
}

// Entries reads back the journal of the current year.
func (c *Client) Entries(ctx context.Context) ([]ports.JournalEntry, error) {
	if c.values == nil {
		return nil, errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, time.Now().UTC().Year())
	rng := fmt.Sprintf("%s!A:J", sheet)
	values, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseJournal(values), nil
}

// parseJournal converts a values matrix into entries, skipping the header
// and rows that cannot be read.
func parseJournal(values [][]any) []ports.JournalEntry {
	out := make([]ports.JournalEntry, 0, len(values))
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 5 {
			continue
		}
		at, err := time.Parse(time.RFC3339, cols[0])
		if err != nil {
			// header or hand-edited row
			continue
		}
		e := ports.JournalEntry{
			RecordedAt:    at,
			Event:         core.EventType(cols[1]),
			Source:        cols[2],
			OwnerID:       cols[3],
			TransactionID: cols[4],
			Date:          safeGet(cols, 5),
			Description:   safeGet(cols, 6),
			Category:      safeGet(cols, 7),
		}
		if m, err := core.ParseAmount(safeGet(cols, 8)); err == nil {
			e.Amount = m
		}
		e.Recurring, _ = strconv.ParseBool(safeGet(cols, 9))
		out = append(out, e)
	}
	return out
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// serviceValues adapts *gsheet.Service to valuesAPI.
type serviceValues struct {
	svc *gsheet.Service
}

func (s *serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceValues) Append(ctx context.Context, spreadsheetID, rng string, rows [][]any) (string, error) {
	vr := &gsheet.ValueRange{Values: rows}
	resp, err := s.svc.Spreadsheets.Values.Append(spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}
