// Package storage is the SQLite backend of the ledger.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// Fixed-width so timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const transactionColumns = `id, owner_id, description, amount_cents, date, category,
	is_recurring, repeat_interval, attachment_ref, created_at, updated_at`

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// DSN returns the connection string used for dbPath.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	created, err := r.insertTransaction(ctx, r.db, t)
	if err != nil {
		return core.Transaction{}, core.Persistence("insert transaction", err)
	}
	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"transaction_id", created.ID,
		"owner_id", created.OwnerID,
		"amount_cents", created.Amount.Cents,
		"date", created.Date.String())
	return created, nil
}

func (r *SQLiteRepository) insertTransaction(ctx context.Context, db execer, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Description, t.Amount.Cents, t.Date.String(), t.Category,
		t.IsRecurring, nullableInterval(t.RepeatInterval), t.AttachmentRef,
		now.Format(timestampLayout), now.Format(timestampLayout))
	if err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE owner_id = ?
		 ORDER BY date DESC, created_at DESC`, ownerID)
	if err != nil {
		return nil, core.Persistence("list transactions", err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, core.Persistence("list transactions", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.Persistence("get transaction", err)
	}
	return t, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, ownerID string, t core.Transaction) (core.Transaction, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET description = ?, amount_cents = ?, date = ?, category = ?,
		     is_recurring = ?, repeat_interval = ?, attachment_ref = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		t.Description, t.Amount.Cents, t.Date.String(), t.Category,
		t.IsRecurring, nullableInterval(t.RepeatInterval), t.AttachmentRef, now.Format(timestampLayout),
		t.ID, ownerID)
	if err != nil {
		return core.Transaction{}, core.Persistence("update transaction", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.Transaction{}, core.Persistence("update transaction", err)
	} else if n == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return r.GetTransaction(ctx, ownerID, t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return core.Persistence("delete transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence("delete transaction", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE is_recurring = 1
		 ORDER BY date DESC, created_at DESC`)
	if err != nil {
		return nil, core.Persistence("list templates", err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, core.Persistence("list templates", err)
	}
	return txs, nil
}

// MaterializeOccurrence claims (template, due) and inserts the instance in a
// single SQL transaction.
func (r *SQLiteRepository) MaterializeOccurrence(ctx context.Context, template core.Transaction, due core.Date, instance core.Transaction) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, core.Persistence("begin materialize", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO recurrence_runs (template_id, due_date, instance_id, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (template_id, due_date) DO NOTHING`,
		template.ID, due.String(), instance.ID, r.now().Format(timestampLayout))
	if err != nil {
		return core.Transaction{}, core.Persistence("claim occurrence", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.Transaction{}, core.Persistence("claim occurrence", err)
	} else if n == 0 {
		return core.Transaction{}, core.ErrAlreadyMaterialized
	}

	created, err := r.insertTransaction(ctx, tx, instance)
	if err != nil {
		return core.Transaction{}, core.Persistence("insert occurrence", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Transaction{}, core.Persistence("commit materialize", err)
	}
	return created, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = core.NormalizeEmail(u.Email)
	u.CreatedAt = r.now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt.Format(timestampLayout))
	if isUniqueViolation(err) {
		return core.User{}, core.NewEmailTakenError()
	}
	if err != nil {
		return core.User{}, core.Persistence("insert user", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, `email = ?`, core.NormalizeEmail(email))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) getUser(ctx context.Context, where string, arg any) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at, last_login FROM users WHERE `+where, arg)

	var (
		u         core.User
		createdAt string
		lastLogin sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	if u.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	if lastLogin.Valid {
		if u.LastLogin, err = time.Parse(timestampLayout, lastLogin.String); err != nil {
			return core.User{}, core.Persistence("get user", err)
		}
	}
	return u, nil
}

func (r *SQLiteRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`,
		at.UTC().Format(timestampLayout), id)
	if err != nil {
		return core.Persistence("touch last login", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		date                 string
		interval             sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Description, &t.Amount.Cents, &date, &t.Category,
		&t.IsRecurring, &interval, &t.AttachmentRef, &createdAt, &updatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	if interval.Valid {
		t.RepeatInterval = core.RepeatInterval(interval.String)
	}
	if t.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return core.Transaction{}, err
	}
	if t.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullableInterval(r core.RepeatInterval) any {
	if r == "" {
		return nil
	}
	return string(r)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
