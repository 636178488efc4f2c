package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const createAccountsTable = `
	CREATE TABLE IF NOT EXISTS accounts (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`

// additiveMigrations run on every start. Each one either applies or fails
// with "duplicate column name", which means it already ran.
var additiveMigrations = []string{
	`ALTER TABLE accounts ADD COLUMN role TEXT NOT NULL DEFAULT 'user'`,
	`ALTER TABLE accounts ADD COLUMN last_login TEXT`,
	`ALTER TABLE accounts ADD COLUMN is_active INTEGER NOT NULL DEFAULT 1`,
}

const createUsernameIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username)`

const accountColumns = `id, username, password_hash, role, created_at, updated_at, last_login, is_active`

// UserStore implements ports.UserStore on a SQLite file. The connection is
// opened by Initialize and released by Shutdown; every other call fails with
// domain.ErrNotInitialized outside that window.
type UserStore struct {
	cfg       Config
	hasher    ports.CredentialHasher
	log       zerolog.Logger
	opTimeout time.Duration
	now       func() time.Time

	mu sync.RWMutex
	db *sql.DB
}

// NewUserStore returns an uninitialised store. The hasher is only used to
// seed the bootstrap account.
func NewUserStore(cfg Config, hasher ports.CredentialHasher, opTimeout time.Duration, log zerolog.Logger) *UserStore {
	if opTimeout <= 0 {
		opTimeout = defaultTimeout
	}
	return &UserStore{
		cfg:       cfg,
		hasher:    hasher,
		log:       log,
		opTimeout: opTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Initialize opens the database, applies the schema and migrations, and seeds
// the bootstrap admin when the table is empty. Calling it again on an
// initialised store is a no-op.
func (s *UserStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := Open(ctx, s.cfg)
	if err != nil {
		return err
	}

	if err := s.migrate(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	if err := s.seed(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	s.log.Info().Str("path", s.cfg.Path).Msg("sqlite user store initialized")
	return nil
}

func (s *UserStore) migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	for _, stmt := range additiveMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("migrating accounts table: %w", err)
		}
		s.log.Info().Str("migration", stmt).Msg("applied schema migration")
	}

	if _, err := db.ExecContext(ctx, createUsernameIndex); err != nil {
		return fmt.Errorf("creating username index: %w", err)
	}
	return nil
}

// seed inserts the bootstrap admin with a single compare-and-create
// statement, so concurrent initialisers cannot both seed.
func (s *UserStore) seed(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return fmt.Errorf("counting accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := s.hasher.Hash(domain.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("hashing bootstrap password: %w", err)
	}

	now := s.now().Format(timeLayout)
	res, err := db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_hash, role, created_at, updated_at, is_active)
		 SELECT ?, ?, ?, ?, ?, 1
		 WHERE NOT EXISTS (SELECT 1 FROM accounts)`,
		domain.BootstrapUsername, hash, string(domain.RoleAdmin), now, now,
	)
	if err != nil {
		return fmt.Errorf("seeding bootstrap account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	s.log.Warn().
		Str("audit", "insecure_config").
		Str("username", domain.BootstrapUsername).
		Str("action_required", "change this password immediately").
		Msg("bootstrap admin account created with the default password, which is insecure")
	return nil
}

// Shutdown closes the connection. The store can be initialised again later.
func (s *UserStore) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("closing sqlite: %w", err)
	}
	return nil
}

// Ping checks that the connection is alive.
func (s *UserStore) Ping(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *UserStore) CreateAccount(ctx context.Context, username, passwordHash string, role domain.Role) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	if !role.IsValid() {
		return 0, domain.ErrInvalidRole
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	now := s.now().Format(timeLayout)
	res, err := db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_hash, role, created_at, updated_at, is_active)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		username, passwordHash, string(role), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrDuplicateUsername
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return id, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	row := db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE username = ? AND is_active = 1", username)
	return scanAccount(row)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.AccountView, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	row := db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? AND is_active = 1", id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	return a.View(), nil
}

// ListAll returns every account, inactive ones included, newest first.
func (s *UserStore) ListAll(ctx context.Context) ([]domain.AccountView, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	views := []domain.AccountView{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *a.View())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return views, nil
}

func (s *UserStore) UpdateRole(ctx context.Context, id int64, role domain.Role) error {
	return s.UpdateFields(ctx, id, domain.AccountUpdate{Role: &role})
}

// UpdateFields changes only the supplied fields; updated_at always moves.
func (s *UserStore) UpdateFields(ctx context.Context, id int64, update domain.AccountUpdate) error {
	if update.Role != nil && !update.Role.IsValid() {
		return domain.ErrInvalidRole
	}

	sets := []string{"updated_at = ?"}
	args := []any{s.now().Format(timeLayout)}
	if update.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *update.Username)
	}
	if update.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, string(*update.Role))
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*update.IsActive))
	}
	args = append(args, id)

	err := s.execOne(ctx, "UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateUsername
	}
	return err
}

// RecordLogin stamps last_login. Callers treat a failure as a warning.
func (s *UserStore) RecordLogin(ctx context.Context, id int64) error {
	now := s.now().Format(timeLayout)
	return s.execOne(ctx, "UPDATE accounts SET last_login = ?, updated_at = ? WHERE id = ?", now, now, id)
}

func (s *UserStore) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	return s.execOne(ctx, "UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, s.now().Format(timeLayout), id)
}

// Deactivate hides the account from lookups but keeps the row.
func (s *UserStore) Deactivate(ctx context.Context, id int64) error {
	return s.execOne(ctx, "UPDATE accounts SET is_active = 0, updated_at = ? WHERE id = ?",
		s.now().Format(timeLayout), id)
}

// DeleteHard removes the row for good.
func (s *UserStore) DeleteHard(ctx context.Context, id int64) error {
	return s.execOne(ctx, "DELETE FROM accounts WHERE id = ?", id)
}

// execOne runs a statement that must touch exactly one row.
func (s *UserStore) execOne(ctx context.Context, query string, args ...any) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UserStore) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, domain.ErrNotInitialized
	}
	return s.db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*domain.Account, error) {
	var (
		a                    domain.Account
		role                 string
		createdAt, updatedAt string
		lastLogin            sql.NullString
		isActive             int
	)

	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &role, &createdAt, &updatedAt, &lastLogin, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.Role = domain.Role(role)
	a.IsActive = isActive != 0
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		a.LastLoginAt = &t
	}
	return &a, nil
}

// parseTime accepts the store's own layout and plain RFC3339 from rows
// written before it.
func parseTime(v string) time.Time {
	if t, err := time.Parse(timeLayout, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
