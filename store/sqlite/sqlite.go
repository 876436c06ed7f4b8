/*
Package sqlite provides the SQLite-backed implementation of the ledger,
catalog, and operator stores.

PURPOSE:
  One database, one writer. Implements ledger.Store (grants,
  redemptions, customers), the reward catalog store, the operator
  account store, and the reporting queries behind the statement,
  dashboard, and audit endpoints.

LOCKING:
  SQLite has no SELECT ... FOR UPDATE. The equivalent pessimistic lock
  is the store-level mutex held for the full span of InTx, paired with
  a database transaction for atomicity. Concurrent redemptions
  serialize; the loser re-reads committed state. A PostgreSQL
  implementation would instead lock the customer's grant rows and drop
  the mutex.

KEY TABLES:
  customers:    CPF-keyed, name optional until registration
  grants:       point-earning events; the only UPDATE ever applied is
                the unconsumed -> consumed flip
  redemptions:  append-only spending history
  rewards:      soft-deleted catalog
  users:        operator accounts

TIME:
  Timestamps are stored as RFC3339Nano TEXT and compared in Go after
  scanning - release/expiry logic never depends on SQL string
  collation.

WAL MODE:
  Opened with WAL so readers don't block behind the writer.

USAGE:
  store, err := sqlite.New("./data/pontos.db")
  ...
  recorder := ledger.NewGrantRecorder(store, timing)

MIGRATION:
  Schema is auto-migrated on New(). Use ":memory:" for tests.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fidelium/pontos/auth"
	"github.com/fidelium/pontos/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps SQLITE_BUSY out of the picture and
	// makes :memory: databases shareable across goroutines.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		cpf TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		consent INTEGER NOT NULL DEFAULT 0,
		consent_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		points INTEGER NOT NULL,
		value TEXT NOT NULL,
		created_at TEXT NOT NULL,
		release_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'unconsumed',
		consumed_by TEXT,
		recorded_by TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_grants_customer
		ON grants(customer_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_grants_customer_status
		ON grants(customer_id, status);

	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		reward_id TEXT NOT NULL REFERENCES rewards(id),
		points INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		redeemed_by TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_customer
		ON redemptions(customer_id, created_at);

	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		cost INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// queryer abstracts *sql.DB and *sql.Tx so the row helpers work inside
// and outside transactions.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER READER (ledger.Reader interface)
// =============================================================================

func (s *Store) CustomerByCPF(ctx context.Context, cpf string) (*ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return customerByCPF(ctx, s.db, cpf)
}

func (s *Store) GrantsForCustomer(ctx context.Context, customerID string) ([]ledger.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return grantsForCustomer(ctx, s.db, customerID)
}

func (s *Store) RedemptionsForCustomer(ctx context.Context, customerID string) ([]ledger.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return redemptionsForCustomer(ctx, s.db, customerID)
}

func (s *Store) RewardByID(ctx context.Context, id string) (*ledger.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rewardByID(ctx, s.db, id)
}

// =============================================================================
// TRANSACTIONAL ENTRY POINT (ledger.Store interface)
// =============================================================================

// InTx runs fn inside one database transaction under the store's write
// lock. Any error from fn rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore implements ledger.Tx on a live *sql.Tx. The store mutex is
// already held; no further locking here.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) CustomerByCPF(ctx context.Context, cpf string) (*ledger.Customer, error) {
	return customerByCPF(ctx, t.tx, cpf)
}

func (t *txStore) GrantsForCustomer(ctx context.Context, customerID string) ([]ledger.Grant, error) {
	return grantsForCustomer(ctx, t.tx, customerID)
}

func (t *txStore) RedemptionsForCustomer(ctx context.Context, customerID string) ([]ledger.Redemption, error) {
	return redemptionsForCustomer(ctx, t.tx, customerID)
}

func (t *txStore) RewardByID(ctx context.Context, id string) (*ledger.Reward, error) {
	return rewardByID(ctx, t.tx, id)
}

func (t *txStore) CreateCustomer(ctx context.Context, c ledger.Customer) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO customers (id, cpf, name, consent, consent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.CPF, c.Name, boolToInt(c.Consent), nullTime(c.ConsentAt), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (t *txStore) NameCustomer(ctx context.Context, customerID, name string, consent bool, consentAt *time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE customers SET name = ?, consent = ?, consent_at = ?
		WHERE id = ?`,
		name, boolToInt(consent), nullTime(consentAt), customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to name customer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrCustomerNotFound
	}
	return nil
}

func (t *txStore) InsertGrant(ctx context.Context, g ledger.Grant) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO grants
		(id, customer_id, points, value, created_at, release_at, expires_at, status, consumed_by, recorded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		g.ID, g.CustomerID, g.Points, g.Value.String(),
		formatTime(g.CreatedAt), formatTime(g.ReleaseAt), formatTime(g.ExpiresAt),
		string(g.Status), g.RecordedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

func (t *txStore) ConsumeGrant(ctx context.Context, grantID, redemptionID string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE grants SET status = 'consumed', consumed_by = ?
		WHERE id = ? AND status = 'unconsumed'`,
		redemptionID, grantID,
	)
	if err != nil {
		return fmt.Errorf("failed to consume grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		// Already consumed or missing; the redemption must not proceed.
		return fmt.Errorf("grant %s not consumable", grantID)
	}
	return nil
}

func (t *txStore) InsertRedemption(ctx context.Context, r ledger.Redemption) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO redemptions (id, customer_id, reward_id, points, created_at, redeemed_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.CustomerID, r.RewardID, r.Points, formatTime(r.CreatedAt), r.RedeemedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}
	return nil
}

// =============================================================================
// ROW HELPERS - Shared between Store and txStore
// =============================================================================

func customerByCPF(ctx context.Context, q queryer, cpf string) (*ledger.Customer, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, cpf, name, consent, consent_at, created_at
		FROM customers WHERE cpf = ?`, cpf)
	return scanCustomer(row)
}

func scanCustomer(row *sql.Row) (*ledger.Customer, error) {
	var c ledger.Customer
	var consent int
	var consentAt sql.NullString
	var createdAt string
	err := row.Scan(&c.ID, &c.CPF, &c.Name, &consent, &consentAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	c.Consent = consent != 0
	if consentAt.Valid {
		at, err := parseTime(consentAt.String)
		if err != nil {
			return nil, err
		}
		c.ConsentAt = &at
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func grantsForCustomer(ctx context.Context, q queryer, customerID string) ([]ledger.Grant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, points, value, created_at, release_at, expires_at, status, consumed_by, recorded_by
		FROM grants
		WHERE customer_id = ?
		ORDER BY created_at ASC, id ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []ledger.Grant
	for rows.Next() {
		var g ledger.Grant
		var value, createdAt, releaseAt, expiresAt, status string
		var consumedBy sql.NullString
		if err := rows.Scan(&g.ID, &g.CustomerID, &g.Points, &value,
			&createdAt, &releaseAt, &expiresAt, &status, &consumedBy, &g.RecordedBy); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		if g.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("failed to parse grant value: %w", err)
		}
		if g.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if g.ReleaseAt, err = parseTime(releaseAt); err != nil {
			return nil, err
		}
		if g.ExpiresAt, err = parseTime(expiresAt); err != nil {
			return nil, err
		}
		g.Status = ledger.GrantStatus(status)
		g.ConsumedBy = consumedBy.String
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RFC3339Nano strings with differing fractional precision don't
	// collate chronologically; re-sort on parsed times.
	sort.SliceStable(grants, func(i, j int) bool {
		if grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].ID < grants[j].ID
		}
		return grants[i].CreatedAt.Before(grants[j].CreatedAt)
	})
	return grants, nil
}

func redemptionsForCustomer(ctx context.Context, q queryer, customerID string) ([]ledger.Redemption, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, reward_id, points, created_at, redeemed_by
		FROM redemptions
		WHERE customer_id = ?
		ORDER BY created_at ASC, id ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Redemption
	for rows.Next() {
		var r ledger.Redemption
		var createdAt string
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.RewardID, &r.Points, &createdAt, &r.RedeemedBy); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func rewardByID(ctx context.Context, q queryer, id string) (*ledger.Reward, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, description, cost, active, created_at
		FROM rewards WHERE id = ?`, id)
	return scanReward(row)
}

func scanReward(row *sql.Row) (*ledger.Reward, error) {
	var r ledger.Reward
	var active int
	var createdAt string
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Cost, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reward: %w", err)
	}
	r.Active = active != 0
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// =============================================================================
// REWARD CATALOG (catalog.Store interface)
// =============================================================================

func (s *Store) InsertReward(ctx context.Context, r ledger.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewards (id, name, description, cost, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.Cost, boolToInt(r.Active), formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reward: %w", err)
	}
	return nil
}

func (s *Store) UpdateReward(ctx context.Context, r ledger.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE rewards SET name = ?, description = ?, cost = ?, active = ?
		WHERE id = ?`,
		r.Name, r.Description, r.Cost, boolToInt(r.Active), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrRewardNotFound
	}
	return nil
}

// DeactivateReward soft-deletes a reward. Historical redemptions keep
// referencing it.
func (s *Store) DeactivateReward(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE rewards SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate reward: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrRewardNotFound
	}
	return nil
}

// ListRewards returns rewards cheapest first. With activeOnly,
// deactivated entries are hidden (the public catalog view).
func (s *Store) ListRewards(ctx context.Context, activeOnly bool) ([]ledger.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, description, cost, active, created_at FROM rewards`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY cost ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	defer rows.Close()

	var out []ledger.Reward
	for rows.Next() {
		var r ledger.Reward
		var active int
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Cost, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		r.Active = active != 0
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// OPERATOR ACCOUNTS (auth.Store interface)
// =============================================================================

func (s *Store) UserByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE email = ?`, email)

	var u auth.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, formatTime(u.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
