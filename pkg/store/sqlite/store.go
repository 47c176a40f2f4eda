// Package sqlite implements [store.Store] on an embedded SQLite database
// using the pure-Go modernc.org/sqlite driver.
//
// Timestamps are stored as Unix microseconds in UTC.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
)

//go:embed schema.sql
var schema string

const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

const userColumns = "id, username, email, password_hash, created_at"

// Store is a SQLite-backed [store.Store].
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, sserr.Required("sqlite path")
	}
	db, err := sql.Open("sqlite", filepath.Clean(path)+dsnPragmas)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "sqlite: open")
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY on
	// lock upgrades.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "sqlite: ping")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "sqlite: apply schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u       models.User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = fromMicros(created)
	return &u, nil
}

func (s *Store) FindUserByUsernameOrEmail(ctx context.Context, v string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? ORDER BY (username = ?) DESC LIMIT 1`,
		v, v, v)
	return s.findUser(row)
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.findUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) findUser(row *sql.Row) (*models.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "sqlite: find user")
	}
	return u, nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`, username)
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = ?)`, email)
}

func (s *Store) exists(ctx context.Context, query, arg string) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, classify(err, "sqlite: exists")
	}
	return ok, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) InsertUser(ctx context.Context, u models.User) (models.User, error) {
	if err := u.Validate(); err != nil {
		return models.User{}, err
	}
	return s.insertUser(ctx, s.db, u)
}

func (s *Store) insertUser(ctx context.Context, db execer, u models.User) (models.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	u.CreatedAt = fromMicros(toMicros(u.CreatedAt))
	res, err := db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, toMicros(u.CreatedAt))
	if err != nil {
		return models.User{}, classify(err, "sqlite: insert user")
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return models.User{}, classify(err, "sqlite: insert user")
	}
	return u, nil
}

func (s *Store) FindExternalLogin(ctx context.Context, provider models.Provider, subject string) (*models.ExternalLogin, *models.User, error) {
	var (
		l                models.ExternalLogin
		u                models.User
		provName         string
		email            sql.NullString
		lastUsed         sql.NullInt64
		created, uCreate int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT l.id, l.user_id, l.provider, l.provider_user_id, l.email, l.created_at, l.last_used_at,
u.id, u.username, u.email, u.password_hash, u.created_at
FROM external_logins l
JOIN users u ON u.id = l.user_id
WHERE l.provider = ? AND l.provider_user_id = ?`, string(provider), subject).Scan(
		&l.ID, &l.UserID, &provName, &l.ProviderUserID, &email, &created, &lastUsed,
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &uCreate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, classify(err, "sqlite: find external login")
	}
	l.Provider = models.Provider(provName)
	l.CreatedAt = fromMicros(created)
	if email.Valid {
		l.Email = &email.String
	}
	if lastUsed.Valid {
		t := fromMicros(lastUsed.Int64)
		l.LastUsedAt = &t
	}
	u.CreatedAt = fromMicros(uCreate)
	return &l, &u, nil
}

func (s *Store) InsertExternalLogin(ctx context.Context, l models.ExternalLogin) (models.ExternalLogin, error) {
	if err := l.Validate(); err != nil {
		return models.ExternalLogin{}, err
	}
	return s.insertExternalLogin(ctx, s.db, l)
}

func (s *Store) insertExternalLogin(ctx context.Context, db execer, l models.ExternalLogin) (models.ExternalLogin, error) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	l.CreatedAt = fromMicros(toMicros(l.CreatedAt))
	res, err := db.ExecContext(ctx,
		`INSERT INTO external_logins (user_id, provider, provider_user_id, email, created_at, last_used_at) VALUES (?, ?, ?, ?, ?, ?)`,
		l.UserID, string(l.Provider), l.ProviderUserID, nullString(l.Email), toMicros(l.CreatedAt), nullMicros(l.LastUsedAt))
	if err != nil {
		return models.ExternalLogin{}, classify(err, "sqlite: insert external login")
	}
	if l.ID, err = res.LastInsertId(); err != nil {
		return models.ExternalLogin{}, classify(err, "sqlite: insert external login")
	}
	return l, nil
}

func (s *Store) UpdateExternalLogin(ctx context.Context, l models.ExternalLogin) error {
	if err := l.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE external_logins SET last_used_at = ?, email = ? WHERE id = ?`,
		nullMicros(l.LastUsedAt), nullString(l.Email), l.ID)
	if err != nil {
		return classify(err, "sqlite: update external login")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sserr.Newf(sserr.CodeNotFound, "sqlite: external login %d not found", l.ID)
	}
	return nil
}

func (s *Store) InsertUserWithExternalLogin(ctx context.Context, u models.User, l models.ExternalLogin) (models.User, models.ExternalLogin, error) {
	if err := u.Validate(); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}
	if err := l.Validate(); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, models.ExternalLogin{}, classify(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if u, err = s.insertUser(ctx, tx, u); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}
	l.UserID = u.ID
	if l, err = s.insertExternalLogin(ctx, tx, l); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.User{}, models.ExternalLogin{}, classify(err, "sqlite: commit provisioning")
	}
	return u, l, nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "sqlite: health check failed")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

// classify maps SQLite constraint failures to store conflicts. The driver
// reports the failing columns only in the message text.
func classify(err error, message string) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		msg := sqliteErr.Error()
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			switch {
			case strings.Contains(msg, "users.username"):
				return store.UniqueViolation(store.ColumnUsername, err)
			case strings.Contains(msg, "users.email"):
				return store.UniqueViolation(store.ColumnEmail, err)
			case strings.Contains(msg, "external_logins.provider_user_id"):
				return store.UniqueViolation(store.ColumnProviderUserID, err)
			}
			return sserr.Wrap(err, sserr.CodeConflict, message)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return sserr.Wrap(err, sserr.CodeNotFoundUser, "sqlite: user not found")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
